package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
	appErrors "github.com/noah-isme/clinic-announcements-api/pkg/errors"
	"github.com/noah-isme/clinic-announcements-api/pkg/export"
)

type announcementStatsRepository interface {
	Counts(ctx context.Context, now time.Time) (*models.AnnouncementCounts, error)
	CountByType(ctx context.Context) ([]models.TypeCount, error)
	ReadCountsByRecipient(ctx context.Context) ([]models.RecipientReadCount, error)
}

type roleResolver interface {
	Resolve(ctx context.Context, ids []string) (map[string]models.UserRole, error)
}

// AnnouncementStatsService builds the administrative engagement summary. Read counts are
// grouped by each reader's role at aggregation time, not at read time.
type AnnouncementStatsService struct {
	repo    announcementStatsRepository
	roles   roleResolver
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	ttl     time.Duration
	now     func() time.Time
}

// NewAnnouncementStatsService constructs the service. cache and metrics may be nil.
func NewAnnouncementStatsService(repo announcementStatsRepository, roles roleResolver, cache *CacheService, metrics *MetricsService, logger *zap.Logger, ttl time.Duration) *AnnouncementStatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementStatsService{
		repo:    repo,
		roles:   roles,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *AnnouncementStatsService) summaryKey() string {
	return s.cache.Key("stats", "summary")
}

// Summarize returns the current summary. The boolean reports whether it came from cache.
func (s *AnnouncementStatsService) Summarize(ctx context.Context) (*models.AnnouncementSummary, bool, error) {
	if s.cache != nil {
		var cached models.AnnouncementSummary
		if hit, err := s.cache.Get(ctx, s.summaryKey(), &cached); err == nil && hit {
			return &cached, true, nil
		}
	}
	summary, err := s.Refresh(ctx)
	if err != nil {
		return nil, false, err
	}
	return summary, false, nil
}

// Refresh recomputes the summary from storage and stores it in cache.
func (s *AnnouncementStatsService) Refresh(ctx context.Context) (*models.AnnouncementSummary, error) {
	start := time.Now()
	summary, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDBQuery("announcement_stats", time.Since(start))
	if s.cache != nil {
		if err := s.cache.Set(ctx, s.summaryKey(), summary, s.ttl); err != nil {
			s.logger.Warn("cache announcement stats", zap.Error(err))
		}
	}
	return summary, nil
}

// Invalidate drops every cached statistics entry.
func (s *AnnouncementStatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, s.cache.Key("stats", "*"))
}

func (s *AnnouncementStatsService) compute(ctx context.Context) (*models.AnnouncementSummary, error) {
	now := s.now()
	counts, err := s.repo.Counts(ctx, now)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to count announcements")
	}
	byType, err := s.repo.CountByType(ctx)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to count announcements by type")
	}
	perRecipient, err := s.repo.ReadCountsByRecipient(ctx)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to count read receipts")
	}

	ids := make([]string, 0, len(perRecipient))
	for _, row := range perRecipient {
		ids = append(ids, row.RecipientID)
	}
	roles, err := s.roles.Resolve(ctx, ids)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to resolve reader roles")
	}

	summary := &models.AnnouncementSummary{
		TotalActive:         counts.TotalActive,
		CurrentlyActive:     counts.TotalActive - counts.ExpiredButActive,
		HighPriorityOrAbove: counts.HighPriorityOrAbove,
		ExpiredButActive:    counts.ExpiredButActive,
		ByType:              make(map[models.AnnouncementType]int, len(models.AnnouncementTypes)),
		ReadCountsByRole:    make(map[models.UserRole]int),
		GeneratedAt:         now,
	}
	for _, typ := range models.AnnouncementTypes {
		summary.ByType[typ] = 0
	}
	for _, row := range byType {
		summary.ByType[row.Type] = row.Count
	}
	for _, row := range perRecipient {
		role, ok := roles[row.RecipientID]
		if !ok {
			role = models.RoleUnknown
		}
		summary.ReadCountsByRole[role] += row.Count
		summary.TotalReadReceipts += row.Count
	}
	return summary, nil
}

// Export renders the summary as a metric table in the given format.
func (s *AnnouncementStatsService) Export(ctx context.Context, format export.Format) ([]byte, error) {
	summary, _, err := s.Summarize(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := export.Render(format, summaryReport(summary))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statistics export")
	}
	return payload, nil
}

func summaryReport(summary *models.AnnouncementSummary) export.Report {
	itoa := strconv.Itoa
	rows := [][]string{
		{"total_active", "", itoa(summary.TotalActive)},
		{"currently_active", "", itoa(summary.CurrentlyActive)},
		{"high_priority_or_above", "", itoa(summary.HighPriorityOrAbove)},
		{"expired_but_active", "", itoa(summary.ExpiredButActive)},
		{"total_read_receipts", "", itoa(summary.TotalReadReceipts)},
	}
	for _, typ := range models.AnnouncementTypes {
		rows = append(rows, []string{"by_type", string(typ), itoa(summary.ByType[typ])})
	}
	roles := make([]string, 0, len(summary.ReadCountsByRole))
	for role := range summary.ReadCountsByRole {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)
	for _, role := range roles {
		rows = append(rows, []string{"read_counts_by_role", role, itoa(summary.ReadCountsByRole[models.UserRole(role)])})
	}
	return export.Report{
		Title:    "Announcement statistics",
		Subtitle: fmt.Sprintf("Generated %s", summary.GeneratedAt.UTC().Format(time.RFC3339)),
		Headers:  []string{"metric", "group", "value"},
		Rows:     rows,
	}
}
