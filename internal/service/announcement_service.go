package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
	appErrors "github.com/noah-isme/clinic-announcements-api/pkg/errors"
)

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	CountUnread(ctx context.Context, role models.UserRole, recipientID string, now time.Time) (int, error)
	ListByPublisher(ctx context.Context, filter models.PublisherFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error)
	CountReads(ctx context.Context, id string) (int, error)
}

// statsInvalidator drops cached statistics after a mutation.
type statsInvalidator interface {
	Invalidate(ctx context.Context)
}

// AnnouncementServiceConfig bounds listing pages.
type AnnouncementServiceConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// AnnouncementService publishes announcements and tracks who has read them.
type AnnouncementService struct {
	repo      announcementRepository
	validator *validator.Validate
	stats     statsInvalidator
	metrics   *MetricsService
	logger    *zap.Logger
	config    AnnouncementServiceConfig
	now       func() time.Time
}

// NewAnnouncementService constructs the service. stats and metrics may be nil.
func NewAnnouncementService(repo announcementRepository, validate *validator.Validate, stats statsInvalidator, metrics *MetricsService, logger *zap.Logger, cfg AnnouncementServiceConfig) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	registerAnnouncementRules(validate)
	return &AnnouncementService{
		repo:      repo,
		validator: validate,
		stats:     stats,
		metrics:   metrics,
		logger:    logger,
		config:    cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateAnnouncementRequest is the publish payload. Omitted type, priority, target roles and
// publish date fall back to general, medium, all and the current time.
type CreateAnnouncementRequest struct {
	Title       string              `json:"title"`
	Content     string              `json:"content"`
	Type        string              `json:"type"`
	Priority    string              `json:"priority"`
	TargetRoles []string            `json:"target_roles"`
	PublishDate *time.Time          `json:"publish_date"`
	ExpiryDate  *time.Time          `json:"expiry_date"`
	Attachments []models.Attachment `json:"attachments"`
}

// UpdateAnnouncementRequest is a partial update. Nil fields are left unchanged.
// The trailing fields are server-managed; a patch that sets any of them is refused.
type UpdateAnnouncementRequest struct {
	Title       *string              `json:"title"`
	Content     *string              `json:"content"`
	Type        *string              `json:"type"`
	Priority    *string              `json:"priority"`
	TargetRoles *[]string            `json:"target_roles"`
	PublishDate *time.Time           `json:"publish_date"`
	ExpiryDate  *time.Time           `json:"expiry_date"`
	ClearExpiry bool                 `json:"clear_expiry"`
	Attachments *[]models.Attachment `json:"attachments"`

	ID        *string         `json:"id"`
	CreatedBy *string         `json:"created_by"`
	ReadBy    json.RawMessage `json:"read_by"`
	IsActive  *bool           `json:"is_active"`
	CreatedAt *time.Time      `json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at"`
}

// immutableField names the first server-managed field the patch tries to set.
func (r UpdateAnnouncementRequest) immutableField() string {
	switch {
	case r.ID != nil:
		return "id"
	case r.CreatedBy != nil:
		return "created_by"
	case len(r.ReadBy) > 0:
		return "read_by"
	case r.IsActive != nil:
		return "is_active"
	case r.CreatedAt != nil:
		return "created_at"
	case r.UpdatedAt != nil:
		return "updated_at"
	default:
		return ""
	}
}

// ListAnnouncementsRequest narrows a recipient listing.
type ListAnnouncementsRequest struct {
	Priority   string `form:"priority"`
	Type       string `form:"type"`
	UnreadOnly bool   `form:"unread_only"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// Create validates and stores a new announcement authored by the caller.
func (s *AnnouncementService) Create(ctx context.Context, caller models.Caller, req CreateAnnouncementRequest) (*models.Announcement, error) {
	if !caller.IsPublisher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller may not publish announcements")
	}
	now := s.now()
	announcement := &models.Announcement{
		Title:       strings.TrimSpace(req.Title),
		Content:     req.Content,
		Type:        models.AnnouncementType(strings.ToLower(req.Type)),
		Priority:    models.AnnouncementPriority(strings.ToLower(req.Priority)),
		TargetRoles: toRoleSet(req.TargetRoles),
		IsActive:    true,
		PublishDate: now,
		CreatedBy:   caller.ID,
		Attachments: models.Attachments(req.Attachments),
		CreatedAt:   now,
	}
	if announcement.Type == "" {
		announcement.Type = models.AnnouncementTypeGeneral
	}
	if announcement.Priority == "" {
		announcement.Priority = models.AnnouncementPriorityMedium
	}
	if req.TargetRoles == nil {
		announcement.TargetRoles = models.RoleSet{models.RoleAll}
	}
	if req.PublishDate != nil {
		announcement.PublishDate = req.PublishDate.UTC()
	}
	if req.ExpiryDate != nil {
		expiry := req.ExpiryDate.UTC()
		announcement.ExpiryDate = &expiry
	}
	if announcement.Attachments == nil {
		announcement.Attachments = models.Attachments{}
	}
	if err := validateAnnouncement(s.validator, announcement); err != nil {
		return nil, err
	}
	if !caller.CanTarget(announcement.TargetRoles) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller may not publish to the requested roles")
	}

	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Storage(err, "failed to create announcement")
	}
	s.metrics.RecordPublished(string(announcement.Priority))
	s.invalidateStats(ctx)
	s.logger.Info("announcement published",
		zap.String("announcement_id", announcement.ID),
		zap.String("created_by", announcement.CreatedBy),
		zap.String("priority", string(announcement.Priority)),
		zap.Strings("target_roles", announcement.TargetRoles.Strings()),
	)
	return announcement, nil
}

// Update applies a partial patch. Inactive announcements may still be edited.
func (s *AnnouncementService) Update(ctx context.Context, caller models.Caller, id string, req UpdateAnnouncementRequest) (*models.Announcement, error) {
	if !caller.IsPublisher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller may not edit announcements")
	}
	if field := req.immutableField(); field != "" {
		forbidden := appErrors.Clone(appErrors.ErrForbidden, field+" cannot be changed")
		forbidden.Field = field
		return nil, forbidden
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Title != nil {
		updated.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		updated.Content = *req.Content
	}
	if req.Type != nil {
		updated.Type = models.AnnouncementType(strings.ToLower(*req.Type))
	}
	if req.Priority != nil {
		updated.Priority = models.AnnouncementPriority(strings.ToLower(*req.Priority))
	}
	if req.TargetRoles != nil {
		updated.TargetRoles = toRoleSet(*req.TargetRoles)
	}
	if req.PublishDate != nil {
		updated.PublishDate = req.PublishDate.UTC()
	}
	switch {
	case req.ClearExpiry:
		updated.ExpiryDate = nil
	case req.ExpiryDate != nil:
		expiry := req.ExpiryDate.UTC()
		updated.ExpiryDate = &expiry
	}
	if req.Attachments != nil {
		updated.Attachments = models.Attachments(*req.Attachments)
	}
	if err := validateAnnouncement(s.validator, &updated); err != nil {
		return nil, err
	}
	if !caller.CanTarget(updated.TargetRoles) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller may not publish to the requested roles")
	}

	updated.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Storage(err, "failed to update announcement")
	}
	s.invalidateStats(ctx)
	s.logger.Info("announcement updated", zap.String("announcement_id", id), zap.String("updated_by", caller.ID))
	return &updated, nil
}

// SoftDelete deactivates an announcement. Repeating it is a no-op that still succeeds.
func (s *AnnouncementService) SoftDelete(ctx context.Context, caller models.Caller, id string) (*models.Announcement, error) {
	if !caller.IsPublisher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller may not delete announcements")
	}
	if !validID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Storage(err, "failed to delete announcement")
	}
	s.invalidateStats(ctx)
	s.logger.Info("announcement deactivated", zap.String("announcement_id", id), zap.String("deleted_by", caller.ID))
	return s.load(ctx, id)
}

// ListForRole returns the caller's page of currently active announcements, critical first.
func (s *AnnouncementService) ListForRole(ctx context.Context, caller models.Caller, req ListAnnouncementsRequest) ([]models.Announcement, *models.Pagination, error) {
	filter := models.AnnouncementFilter{
		Role:        caller.Role,
		RecipientID: caller.ID,
		UnreadOnly:  req.UnreadOnly,
		Now:         s.now(),
		Page:        req.Page,
		PageSize:    req.PageSize,
	}
	if req.Priority != "" {
		priority := models.AnnouncementPriority(strings.ToLower(req.Priority))
		if !priority.Valid() {
			return nil, nil, appErrors.Validation("priority", "must be one of low, medium, high, critical")
		}
		filter.Priority = &priority
	}
	if req.Type != "" {
		typ := models.AnnouncementType(strings.ToLower(req.Type))
		if !typ.Valid() {
			return nil, nil, appErrors.Validation("type", "must be one of general, urgent, policy, training, maintenance, system")
		}
		filter.Type = &typ
	}
	page, pageSize, err := s.paging(filter.Page, filter.PageSize)
	if err != nil {
		return nil, nil, err
	}
	filter.Page, filter.PageSize = page, pageSize

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Storage(err, "failed to list announcements")
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// UnreadCount returns how many currently visible announcements the caller has not opened.
func (s *AnnouncementService) UnreadCount(ctx context.Context, caller models.Caller) (int, error) {
	count, err := s.repo.CountUnread(ctx, caller.Role, caller.ID, s.now())
	if err != nil {
		return 0, appErrors.Storage(err, "failed to count unread announcements")
	}
	return count, nil
}

// MarkRead records that the caller opened the announcement. Only currently active announcements
// visible to the caller's role can be marked; repeated calls keep the first receipt.
func (s *AnnouncementService) MarkRead(ctx context.Context, caller models.Caller, id string) (*models.MarkReadResult, error) {
	announcement, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !announcement.IsCurrentlyActive(now) || !announcement.IsVisibleTo(caller.Role) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}

	created, err := s.repo.MarkRead(ctx, id, caller.ID, now)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to mark announcement read")
	}
	if !created && !announcement.HasRead(caller.ID) {
		// Either another request won the insert or the announcement was deactivated meanwhile.
		current, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !current.HasRead(caller.ID) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
	}
	count, err := s.repo.CountReads(ctx, id)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to count read receipts")
	}
	s.metrics.RecordReadReceipt(created)
	if created {
		s.logger.Debug("announcement read", zap.String("announcement_id", id), zap.String("recipient_id", caller.ID))
	}
	return &models.MarkReadResult{AnnouncementID: id, AlreadyRead: !created, ReadCount: count}, nil
}

// Get returns a single announcement. Publishers see any record with its receipts; other callers
// only see currently active announcements targeted at their role.
func (s *AnnouncementService) Get(ctx context.Context, caller models.Caller, id string) (*models.Announcement, error) {
	announcement, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	announcement.IsRead = announcement.HasRead(caller.ID)
	if caller.IsPublisher {
		return announcement, nil
	}
	if !announcement.IsCurrentlyActive(s.now()) || !announcement.IsVisibleTo(caller.Role) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	announcement.ReadBy = nil
	return announcement, nil
}

// ListByPublisher pages through everything the caller has authored, inactive records included.
func (s *AnnouncementService) ListByPublisher(ctx context.Context, caller models.Caller, page, pageSize int) ([]models.Announcement, *models.Pagination, error) {
	if !caller.IsPublisher {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "caller may not list authored announcements")
	}
	page, pageSize, err := s.paging(page, pageSize)
	if err != nil {
		return nil, nil, err
	}
	rows, total, err := s.repo.ListByPublisher(ctx, models.PublisherFilter{CreatedBy: caller.ID, Page: page, PageSize: pageSize})
	if err != nil {
		return nil, nil, appErrors.Storage(err, "failed to list authored announcements")
	}
	return rows, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

func (s *AnnouncementService) load(ctx context.Context, id string) (*models.Announcement, error) {
	if !validID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Storage(err, "failed to load announcement")
	}
	return announcement, nil
}

// maxPage keeps the row offset well inside Postgres' bigint OFFSET.
const maxPage = math.MaxInt32

func (s *AnnouncementService) paging(page, pageSize int) (int, int, error) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		return 0, 0, appErrors.Validation("page", fmt.Sprintf("must not exceed %d", maxPage))
	}
	if pageSize <= 0 {
		pageSize = s.config.DefaultPageSize
	}
	if pageSize > s.config.MaxPageSize {
		pageSize = s.config.MaxPageSize
	}
	return page, pageSize, nil
}

func (s *AnnouncementService) invalidateStats(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func toRoleSet(values []string) models.RoleSet {
	roles := make([]models.UserRole, 0, len(values))
	for _, value := range values {
		roles = append(roles, models.UserRole(strings.ToLower(strings.TrimSpace(value))))
	}
	return models.NewRoleSet(roles...)
}
