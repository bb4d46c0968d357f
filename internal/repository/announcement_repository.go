package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
)

const announcementColumns = `a.id, a.title, a.content, a.type, a.priority, a.target_roles, a.is_active, a.publish_date, a.expiry_date, a.created_by, a.attachments, a.created_at, a.updated_at`

// AnnouncementRepository provides persistence for announcements and their read receipts.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

type queryArgs []interface{}

func (q *queryArgs) bind(v interface{}) string {
	*q = append(*q, v)
	return fmt.Sprintf("$%d", len(*q))
}

// visibleWhere builds the predicate shared by listings and unread counts so both always agree.
// It returns the clause, its arguments and the placeholder bound to the recipient, if any.
func visibleWhere(filter models.AnnouncementFilter) (string, queryArgs, string) {
	args := queryArgs{}
	where := []string{
		"a.is_active = TRUE",
		fmt.Sprintf("(a.expiry_date IS NULL OR a.expiry_date > %s)", args.bind(filter.Now)),
		fmt.Sprintf("a.target_roles && %s", args.bind(pq.Array([]string{string(filter.Role), string(models.RoleAll)}))),
	}
	if filter.Priority != nil {
		where = append(where, fmt.Sprintf("a.priority = %s", args.bind(string(*filter.Priority))))
	}
	if filter.Type != nil {
		where = append(where, fmt.Sprintf("a.type = %s", args.bind(string(*filter.Type))))
	}
	recipientParam := ""
	if filter.UnreadOnly {
		recipientParam = args.bind(filter.RecipientID)
		where = append(where, "NOT "+readExists(recipientParam))
	}
	return strings.Join(where, " AND "), args, recipientParam
}

func readExists(recipientParam string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM announcement_reads r WHERE r.announcement_id = a.id AND r.recipient_id = %s)", recipientParam)
}

// List returns the page of announcements visible to filter.Role at filter.Now along with the
// total number of matching rows. Ties on priority and publish date fall back to insertion order.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	whereClause, args, recipientParam := visibleWhere(filter)

	listArgs := append(queryArgs{}, args...)
	if recipientParam == "" {
		recipientParam = listArgs.bind(filter.RecipientID)
	}

	query := fmt.Sprintf(`SELECT %s, %s AS is_read
FROM announcements a WHERE %s
ORDER BY a.priority_rank DESC, a.publish_date DESC, a.seq ASC
LIMIT %d OFFSET %d`, announcementColumns, readExists(recipientParam), whereClause, filter.PageSize, filter.Offset())
	announcements := []models.Announcement{}
	if err := r.db.SelectContext(ctx, &announcements, query, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM announcements a WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// CountUnread returns how many visible, currently active announcements the recipient has not read.
func (r *AnnouncementRepository) CountUnread(ctx context.Context, role models.UserRole, recipientID string, now time.Time) (int, error) {
	whereClause, args, _ := visibleWhere(models.AnnouncementFilter{Role: role, RecipientID: recipientID, Now: now, UnreadOnly: true})
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM announcements a WHERE %s", whereClause), args...); err != nil {
		return 0, fmt.Errorf("count unread announcements: %w", err)
	}
	return total, nil
}

// ListByPublisher returns announcements authored by a publisher, including inactive ones.
func (r *AnnouncementRepository) ListByPublisher(ctx context.Context, filter models.PublisherFilter) ([]models.Announcement, int, error) {
	query := fmt.Sprintf(`SELECT %s FROM announcements a WHERE a.created_by = $1
ORDER BY a.publish_date DESC, a.seq DESC
LIMIT %d OFFSET %d`, announcementColumns, filter.PageSize, filter.Offset())
	announcements := []models.Announcement{}
	if err := r.db.SelectContext(ctx, &announcements, query, filter.CreatedBy); err != nil {
		return nil, 0, fmt.Errorf("list publisher announcements: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM announcements a WHERE a.created_by = $1", filter.CreatedBy); err != nil {
		return nil, 0, fmt.Errorf("count publisher announcements: %w", err)
	}
	return announcements, total, nil
}

// GetByID returns an announcement with its read receipts. Inactive rows are returned too.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := fmt.Sprintf("SELECT %s FROM announcements a WHERE a.id = $1", announcementColumns)
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		return nil, err
	}
	receipts := []models.ReadReceipt{}
	if err := r.db.SelectContext(ctx, &receipts, `SELECT recipient_id, read_at FROM announcement_reads
WHERE announcement_id = $1 ORDER BY read_at ASC, recipient_id ASC`, id); err != nil {
		return nil, fmt.Errorf("list read receipts: %w", err)
	}
	announcement.ReadBy = receipts
	return &announcement, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = now
	}
	announcement.UpdatedAt = announcement.CreatedAt
	query := `INSERT INTO announcements (id, title, content, type, priority, target_roles, is_active, publish_date, expiry_date, created_by, attachments, created_at, updated_at)
VALUES (:id, :title, :content, :type, :priority, :target_roles, :is_active, :publish_date, :expiry_date, :created_by, :attachments, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an announcement. Authorship, activity and receipts are
// never touched here.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	if announcement.UpdatedAt.IsZero() {
		announcement.UpdatedAt = time.Now().UTC()
	}
	query := `UPDATE announcements SET title = :title, content = :content, type = :type, priority = :priority,
target_roles = :target_roles, publish_date = :publish_date, expiry_date = :expiry_date, attachments = :attachments, updated_at = :updated_at
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, announcement)
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return requireAffected(result)
}

// SoftDelete marks an announcement inactive. Deleting an inactive row succeeds and keeps its
// timestamps; an unknown id yields sql.ErrNoRows.
func (r *AnnouncementRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE announcements
SET updated_at = CASE WHEN is_active THEN $2 ELSE updated_at END, is_active = FALSE
WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("soft delete announcement: %w", err)
	}
	return requireAffected(result)
}

// MarkRead appends a read receipt only when the recipient has none and the announcement is still
// active. The check and the append run as one statement, so concurrent callers cannot both insert.
// It reports whether a new receipt was written.
func (r *AnnouncementRepository) MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error) {
	const query = `INSERT INTO announcement_reads (announcement_id, recipient_id, read_at)
SELECT a.id, $2, $3 FROM announcements a WHERE a.id = $1 AND a.is_active = TRUE
ON CONFLICT (announcement_id, recipient_id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, id, recipientID, at)
	if err != nil {
		return false, fmt.Errorf("mark announcement read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark announcement read: %w", err)
	}
	return affected > 0, nil
}

// CountReads returns the number of receipts held by an announcement.
func (r *AnnouncementRepository) CountReads(ctx context.Context, id string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM announcement_reads WHERE announcement_id = $1", id); err != nil {
		return 0, fmt.Errorf("count read receipts: %w", err)
	}
	return total, nil
}

// Counts returns administrative counters over active announcements evaluated at now.
func (r *AnnouncementRepository) Counts(ctx context.Context, now time.Time) (*models.AnnouncementCounts, error) {
	const query = `SELECT COUNT(*) AS total_active,
COUNT(*) FILTER (WHERE priority IN ('high', 'critical')) AS high_priority_or_above,
COUNT(*) FILTER (WHERE expiry_date IS NOT NULL AND expiry_date <= $1) AS expired_but_active
FROM announcements WHERE is_active = TRUE`
	var counts models.AnnouncementCounts
	if err := r.db.GetContext(ctx, &counts, query, now); err != nil {
		return nil, fmt.Errorf("count announcements: %w", err)
	}
	return &counts, nil
}

// CountByType groups active announcements by type.
func (r *AnnouncementRepository) CountByType(ctx context.Context) ([]models.TypeCount, error) {
	rows := []models.TypeCount{}
	if err := r.db.SelectContext(ctx, &rows, `SELECT type, COUNT(*) AS count FROM announcements
WHERE is_active = TRUE GROUP BY type ORDER BY type`); err != nil {
		return nil, fmt.Errorf("count announcements by type: %w", err)
	}
	return rows, nil
}

// ReadCountsByRecipient counts receipts on active announcements per recipient.
func (r *AnnouncementRepository) ReadCountsByRecipient(ctx context.Context) ([]models.RecipientReadCount, error) {
	rows := []models.RecipientReadCount{}
	if err := r.db.SelectContext(ctx, &rows, `SELECT r.recipient_id, COUNT(*) AS count
FROM announcement_reads r JOIN announcements a ON a.id = r.announcement_id
WHERE a.is_active = TRUE GROUP BY r.recipient_id ORDER BY r.recipient_id`); err != nil {
		return nil, fmt.Errorf("count read receipts by recipient: %w", err)
	}
	return rows, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
