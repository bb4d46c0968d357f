package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// AnnouncementType classifies an announcement.
type AnnouncementType string

const (
	AnnouncementTypeGeneral     AnnouncementType = "general"
	AnnouncementTypeUrgent      AnnouncementType = "urgent"
	AnnouncementTypePolicy      AnnouncementType = "policy"
	AnnouncementTypeTraining    AnnouncementType = "training"
	AnnouncementTypeMaintenance AnnouncementType = "maintenance"
	AnnouncementTypeSystem      AnnouncementType = "system"
)

// AnnouncementTypes lists every accepted announcement type.
var AnnouncementTypes = []AnnouncementType{
	AnnouncementTypeGeneral,
	AnnouncementTypeUrgent,
	AnnouncementTypePolicy,
	AnnouncementTypeTraining,
	AnnouncementTypeMaintenance,
	AnnouncementTypeSystem,
}

// Valid reports whether the type belongs to the catalog.
func (t AnnouncementType) Valid() bool {
	for _, candidate := range AnnouncementTypes {
		if t == candidate {
			return true
		}
	}
	return false
}

// AnnouncementPriority defines ordering for announcements.
type AnnouncementPriority string

const (
	AnnouncementPriorityLow      AnnouncementPriority = "low"
	AnnouncementPriorityMedium   AnnouncementPriority = "medium"
	AnnouncementPriorityHigh     AnnouncementPriority = "high"
	AnnouncementPriorityCritical AnnouncementPriority = "critical"
)

// Rank returns the position of the priority in the total order low < medium < high < critical.
// Unknown priorities rank below low.
func (p AnnouncementPriority) Rank() int {
	switch p {
	case AnnouncementPriorityLow:
		return 1
	case AnnouncementPriorityMedium:
		return 2
	case AnnouncementPriorityHigh:
		return 3
	case AnnouncementPriorityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether the priority belongs to the catalog.
func (p AnnouncementPriority) Valid() bool {
	return p.Rank() > 0
}

// ReadReceipt proves a recipient has opened an announcement.
type ReadReceipt struct {
	RecipientID string    `db:"recipient_id" json:"recipient_id"`
	ReadAt      time.Time `db:"read_at" json:"read_at"`
}

// Attachment is opaque file metadata carried alongside an announcement.
type Attachment struct {
	Name         string `json:"name" validate:"required,max=255"`
	OriginalName string `json:"original_name" validate:"max=255"`
	ContentType  string `json:"content_type" validate:"max=255"`
	Size         int64  `json:"size" validate:"gte=0"`
	Location     string `json:"location" validate:"required"`
}

// Attachments is stored as a JSONB column.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Attachments{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported attachments type %T", src)
	}
	if len(raw) == 0 {
		*a = Attachments{}
		return nil
	}
	return json.Unmarshal(raw, a)
}

// Announcement represents a persisted announcement row.
type Announcement struct {
	ID          string               `db:"id" json:"id"`
	Title       string               `db:"title" json:"title"`
	Content     string               `db:"content" json:"content"`
	Type        AnnouncementType     `db:"type" json:"type"`
	Priority    AnnouncementPriority `db:"priority" json:"priority"`
	TargetRoles RoleSet              `db:"target_roles" json:"target_roles"`
	IsActive    bool                 `db:"is_active" json:"is_active"`
	PublishDate time.Time            `db:"publish_date" json:"publish_date"`
	ExpiryDate  *time.Time           `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedBy   string               `db:"created_by" json:"created_by"`
	Attachments Attachments          `db:"attachments" json:"attachments"`
	ReadBy      []ReadReceipt        `db:"-" json:"read_by,omitempty"`
	IsRead      bool                 `db:"is_read" json:"is_read"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updated_at"`
}

// IsVisibleTo reports whether the announcement targets role, directly or through the wildcard.
func (a *Announcement) IsVisibleTo(role UserRole) bool {
	for _, target := range a.TargetRoles {
		if target == role || target == RoleAll {
			return true
		}
	}
	return false
}

// IsCurrentlyActive reports whether recipients may see the announcement at now.
// A missing expiry never lapses; an expiry equal to now has already lapsed.
func (a *Announcement) IsCurrentlyActive(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiryDate == nil || a.ExpiryDate.After(now)
}

// IsExpired reports whether the expiry date lies at or before now, independent of IsActive.
func (a *Announcement) IsExpired(now time.Time) bool {
	return a.ExpiryDate != nil && !a.ExpiryDate.After(now)
}

// HasRead reports whether recipientID already holds a read receipt.
func (a *Announcement) HasRead(recipientID string) bool {
	for _, receipt := range a.ReadBy {
		if receipt.RecipientID == recipientID {
			return true
		}
	}
	return false
}

// MarkRead appends a receipt for recipientID unless one exists. It returns false when the
// announcement was already read; the existing timestamp is left untouched.
func (a *Announcement) MarkRead(recipientID string, now time.Time) bool {
	if a.HasRead(recipientID) {
		return false
	}
	a.ReadBy = append(a.ReadBy, ReadReceipt{RecipientID: recipientID, ReadAt: now})
	return true
}

// AnnouncementFilter narrows a recipient listing.
type AnnouncementFilter struct {
	Role        UserRole
	RecipientID string
	Priority    *AnnouncementPriority
	Type        *AnnouncementType
	UnreadOnly  bool
	Now         time.Time
	Page        int
	PageSize    int
}

// Offset returns the zero-based row offset for the filter's page.
func (f AnnouncementFilter) Offset() int {
	return pageOffset(f.Page, f.PageSize)
}

// PublisherFilter selects announcements authored by a publisher.
type PublisherFilter struct {
	CreatedBy string
	Page      int
	PageSize  int
}

// Offset returns the zero-based row offset for the filter's page.
func (f PublisherFilter) Offset() int {
	return pageOffset(f.Page, f.PageSize)
}

// pageOffset saturates at math.MaxInt instead of wrapping negative.
func pageOffset(page, pageSize int) int {
	if page < 1 || pageSize < 1 {
		return 0
	}
	if page-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (page - 1) * pageSize
}

// MarkReadResult reports the outcome of opening an announcement.
type MarkReadResult struct {
	AnnouncementID string `json:"announcement_id"`
	AlreadyRead    bool   `json:"already_read"`
	ReadCount      int    `json:"read_count"`
}

// AnnouncementCounts holds administrative counters over active announcements.
type AnnouncementCounts struct {
	TotalActive         int `db:"total_active" json:"total_active"`
	HighPriorityOrAbove int `db:"high_priority_or_above" json:"high_priority_or_above"`
	ExpiredButActive    int `db:"expired_but_active" json:"expired_but_active"`
}

// TypeCount is a per-type counter row.
type TypeCount struct {
	Type  AnnouncementType `db:"type" json:"type"`
	Count int              `db:"count" json:"count"`
}

// RecipientReadCount is the number of receipts a single recipient holds on active announcements.
type RecipientReadCount struct {
	RecipientID string `db:"recipient_id" json:"recipient_id"`
	Count       int    `db:"count" json:"count"`
}

// AnnouncementSummary is the administrative engagement report.
type AnnouncementSummary struct {
	TotalActive         int                      `json:"total_active"`
	CurrentlyActive     int                      `json:"currently_active"`
	HighPriorityOrAbove int                      `json:"high_priority_or_above"`
	ExpiredButActive    int                      `json:"expired_but_active"`
	TotalReadReceipts   int                      `json:"total_read_receipts"`
	ByType              map[AnnouncementType]int `json:"by_type"`
	ReadCountsByRole    map[UserRole]int         `json:"read_counts_by_role"`
	GeneratedAt         time.Time                `json:"generated_at"`
}
