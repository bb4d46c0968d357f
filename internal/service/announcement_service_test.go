package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
	appErrors "github.com/noah-isme/clinic-announcements-api/pkg/errors"
)

type storedAnnouncement struct {
	record models.Announcement
	seq    int
}

// memoryAnnouncementRepo mirrors the SQL repository's query semantics in memory.
type memoryAnnouncementRepo struct {
	mu        sync.Mutex
	rows      map[string]*storedAnnouncement
	seq       int
	createErr error
}

func newMemoryAnnouncementRepo() *memoryAnnouncementRepo {
	return &memoryAnnouncementRepo{rows: map[string]*storedAnnouncement{}}
}

func (m *memoryAnnouncementRepo) visible(filter models.AnnouncementFilter) []*storedAnnouncement {
	out := []*storedAnnouncement{}
	for _, row := range m.rows {
		a := &row.record
		if !a.IsCurrentlyActive(filter.Now) || !a.IsVisibleTo(filter.Role) {
			continue
		}
		if filter.Priority != nil && a.Priority != *filter.Priority {
			continue
		}
		if filter.Type != nil && a.Type != *filter.Type {
			continue
		}
		if filter.UnreadOnly && a.HasRead(filter.RecipientID) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].record, out[j].record
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.PublishDate.Equal(b.PublishDate) {
			return a.PublishDate.After(b.PublishDate)
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (m *memoryAnnouncementRepo) List(_ context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matches := m.visible(filter)
	page := []models.Announcement{}
	for i := filter.Offset(); i < len(matches) && len(page) < filter.PageSize; i++ {
		item := matches[i].record
		item.IsRead = item.HasRead(filter.RecipientID)
		item.ReadBy = nil
		page = append(page, item)
	}
	return page, len(matches), nil
}

func (m *memoryAnnouncementRepo) CountUnread(_ context.Context, role models.UserRole, recipientID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visible(models.AnnouncementFilter{Role: role, RecipientID: recipientID, Now: now, UnreadOnly: true})), nil
}

func (m *memoryAnnouncementRepo) ListByPublisher(_ context.Context, filter models.PublisherFilter) ([]models.Announcement, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Announcement{}
	for _, row := range m.rows {
		if row.record.CreatedBy == filter.CreatedBy {
			out = append(out, row.record)
		}
	}
	return out, len(out), nil
}

func (m *memoryAnnouncementRepo) GetByID(_ context.Context, id string) (*models.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := row.record
	copied.ReadBy = append([]models.ReadReceipt(nil), row.record.ReadBy...)
	return &copied, nil
}

func (m *memoryAnnouncementRepo) Create(_ context.Context, a *models.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.UpdatedAt = a.CreatedAt
	m.seq++
	m.rows[a.ID] = &storedAnnouncement{record: *a, seq: m.seq}
	return nil
}

func (m *memoryAnnouncementRepo) Update(_ context.Context, a *models.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[a.ID]
	if !ok {
		return sql.ErrNoRows
	}
	r := &row.record
	r.Title, r.Content, r.Type, r.Priority = a.Title, a.Content, a.Type, a.Priority
	r.TargetRoles, r.PublishDate, r.ExpiryDate, r.Attachments = a.TargetRoles, a.PublishDate, a.ExpiryDate, a.Attachments
	r.UpdatedAt = a.UpdatedAt
	return nil
}

func (m *memoryAnnouncementRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	if row.record.IsActive {
		row.record.IsActive = false
		row.record.UpdatedAt = at
	}
	return nil
}

func (m *memoryAnnouncementRepo) MarkRead(_ context.Context, id, recipientID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || !row.record.IsActive {
		return false, nil
	}
	return row.record.MarkRead(recipientID, at), nil
}

func (m *memoryAnnouncementRepo) CountReads(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		return len(row.record.ReadBy), nil
	}
	return 0, nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

var serviceNow = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestAnnouncementService(t *testing.T) (*AnnouncementService, *memoryAnnouncementRepo, *countingInvalidator) {
	t.Helper()
	repo := newMemoryAnnouncementRepo()
	stats := &countingInvalidator{}
	svc := NewAnnouncementService(repo, nil, stats, nil, zap.NewNop(), AnnouncementServiceConfig{DefaultPageSize: 10, MaxPageSize: 50})
	svc.now = func() time.Time { return serviceNow }
	return svc, repo, stats
}

var (
	adminCaller = models.Caller{ID: "admin-1", Role: models.RoleAdmin, IsPublisher: true, PublishableRoles: models.RoleSet{models.RoleAll}}
	nurseCaller = models.Caller{ID: "nurse-1", Role: models.RoleNurse}
	pharmCaller = models.Caller{ID: "pharm-1", Role: models.RolePharmacist}
)

func publish(t *testing.T, svc *AnnouncementService, req CreateAnnouncementRequest) *models.Announcement {
	t.Helper()
	if req.Title == "" {
		req.Title = "Notice"
	}
	if req.Content == "" {
		req.Content = "Body"
	}
	created, err := svc.Create(context.Background(), adminCaller, req)
	require.NoError(t, err)
	return created
}

func timePtr(t time.Time) *time.Time { return &t }
func strPtr(s string) *string         { return &s }

func TestCreateAppliesDefaults(t *testing.T) {
	svc, _, stats := newTestAnnouncementService(t)

	created, err := svc.Create(context.Background(), adminCaller, CreateAnnouncementRequest{Title: "  Fire drill  ", Content: "At noon"})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Fire drill", created.Title)
	assert.Equal(t, models.AnnouncementTypeGeneral, created.Type)
	assert.Equal(t, models.AnnouncementPriorityMedium, created.Priority)
	assert.Equal(t, models.RoleSet{models.RoleAll}, created.TargetRoles)
	assert.True(t, created.IsActive)
	assert.Equal(t, serviceNow, created.PublishDate)
	assert.Equal(t, adminCaller.ID, created.CreatedBy)
	assert.Equal(t, 1, stats.calls)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}

	cases := []struct {
		name  string
		req   CreateAnnouncementRequest
		field string
	}{
		{"missing title", CreateAnnouncementRequest{Content: "x"}, "title"},
		{"title too long", CreateAnnouncementRequest{Title: string(long), Content: "x"}, "title"},
		{"missing content", CreateAnnouncementRequest{Title: "x"}, "content"},
		{"unknown type", CreateAnnouncementRequest{Title: "x", Content: "x", Type: "memo"}, "type"},
		{"unknown priority", CreateAnnouncementRequest{Title: "x", Content: "x", Priority: "urgent"}, "priority"},
		{"empty targets", CreateAnnouncementRequest{Title: "x", Content: "x", TargetRoles: []string{}}, "target_roles"},
		{"unknown role", CreateAnnouncementRequest{Title: "x", Content: "x", TargetRoles: []string{"janitor"}}, "target_roles[0]"},
		{"zero expiry", CreateAnnouncementRequest{Title: "x", Content: "x", ExpiryDate: &time.Time{}}, "expiry_date"},
		{"attachment without location", CreateAnnouncementRequest{Title: "x", Content: "x", Attachments: []models.Attachment{{Name: "a.pdf"}}}, "attachments[0].location"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), adminCaller, tc.req)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			assert.Equal(t, tc.field, appErr.Field)
		})
	}
}

func TestCreateAcceptsPastExpiry(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	created := publish(t, svc, CreateAnnouncementRequest{ExpiryDate: timePtr(serviceNow.Add(-24 * time.Hour))})
	assert.False(t, created.IsCurrentlyActive(serviceNow))
}

func TestCreateRequiresPublisherAndAllowedTargets(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)

	_, err := svc.Create(context.Background(), nurseCaller, CreateAnnouncementRequest{Title: "x", Content: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	doctor := models.Caller{ID: "doc-1", Role: models.RoleDoctor, IsPublisher: true, PublishableRoles: models.RoleSet{models.RoleDoctor, models.RoleNurse}}
	_, err = svc.Create(context.Background(), doctor, CreateAnnouncementRequest{Title: "x", Content: "x", TargetRoles: []string{"pharmacist"}})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Create(context.Background(), doctor, CreateAnnouncementRequest{Title: "x", Content: "x", TargetRoles: []string{"nurse"}})
	assert.NoError(t, err)
}

func TestCreateStorageFailure(t *testing.T) {
	svc, repo, stats := newTestAnnouncementService(t)
	repo.createErr = errors.New("connection refused")

	_, err := svc.Create(context.Background(), adminCaller, CreateAnnouncementRequest{Title: "x", Content: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrStorage))
	assert.Equal(t, 0, stats.calls)
}

func TestListForRoleVisibilityAndOrdering(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	critical := publish(t, svc, CreateAnnouncementRequest{Title: "Critical", Priority: "critical", TargetRoles: []string{"nurse"}, PublishDate: timePtr(serviceNow.Add(-2 * time.Hour))})
	medium := publish(t, svc, CreateAnnouncementRequest{Title: "Medium", Priority: "medium", PublishDate: timePtr(serviceNow.Add(-time.Hour))})
	publish(t, svc, CreateAnnouncementRequest{Title: "Expired", ExpiryDate: timePtr(serviceNow.Add(-24 * time.Hour))})
	publish(t, svc, CreateAnnouncementRequest{Title: "Doctors", TargetRoles: []string{"doctor"}})

	items, page, err := svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, critical.ID, items[0].ID)
	assert.Equal(t, medium.ID, items[1].ID)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, 10, page.PageSize)

	items, _, err = svc.ListForRole(context.Background(), pharmCaller, ListAnnouncementsRequest{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, medium.ID, items[0].ID)
}

func TestListForRoleStableTieBreak(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	same := timePtr(serviceNow.Add(-time.Hour))
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, publish(t, svc, CreateAnnouncementRequest{PublishDate: same}).ID)
	}

	for run := 0; run < 3; run++ {
		var got []string
		for page := 1; page <= 3; page++ {
			items, _, err := svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{Page: page, PageSize: 2})
			require.NoError(t, err)
			for _, item := range items {
				got = append(got, item.ID)
			}
		}
		assert.Equal(t, ids, got)
	}
}

func TestListForRoleFilters(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	publish(t, svc, CreateAnnouncementRequest{Priority: "high", Type: "policy"})
	publish(t, svc, CreateAnnouncementRequest{Priority: "low", Type: "training"})

	items, _, err := svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{Priority: "HIGH"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.AnnouncementTypePolicy, items[0].Type)

	items, _, err = svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{Type: "training"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, _, err = svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{Priority: "severe"})
	assert.Equal(t, "priority", appErrors.FromError(err).Field)
}

func TestListForRoleCapsPageSize(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	_, page, err := svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{Page: -1, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.PageSize)
}

func TestUnreadCountMatchesUnreadListing(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	first := publish(t, svc, CreateAnnouncementRequest{})
	publish(t, svc, CreateAnnouncementRequest{TargetRoles: []string{"nurse"}})
	publish(t, svc, CreateAnnouncementRequest{TargetRoles: []string{"doctor"}})
	publish(t, svc, CreateAnnouncementRequest{ExpiryDate: timePtr(serviceNow)})

	_, err := svc.MarkRead(context.Background(), nurseCaller, first.ID)
	require.NoError(t, err)

	count, err := svc.UnreadCount(context.Background(), nurseCaller)
	require.NoError(t, err)
	items, page, err := svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{UnreadOnly: true, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, count, page.TotalCount)
	assert.Len(t, items, count)

	all, _, err := svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, item := range all {
		assert.Equal(t, item.ID == first.ID, item.IsRead)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestAnnouncementService(t)
	a := publish(t, svc, CreateAnnouncementRequest{})

	first, err := svc.MarkRead(context.Background(), nurseCaller, a.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyRead)
	assert.Equal(t, 1, first.ReadCount)

	svc.now = func() time.Time { return serviceNow.Add(time.Hour) }
	second, err := svc.MarkRead(context.Background(), nurseCaller, a.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyRead)
	assert.Equal(t, 1, second.ReadCount)

	stored, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, stored.ReadBy, 1)
	assert.Equal(t, serviceNow, stored.ReadBy[0].ReadAt)
}

func TestMarkReadConcurrentCallsKeepSingleReceipt(t *testing.T) {
	svc, repo, _ := newTestAnnouncementService(t)
	a := publish(t, svc, CreateAnnouncementRequest{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.MarkRead(context.Background(), nurseCaller, a.ID)
			if assert.NoError(t, err) && !result.AlreadyRead {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	stored, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ReadBy, 1)
	assert.Equal(t, 1, created)
}

func TestMarkReadRejectsInvisibleAnnouncements(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	doctorsOnly := publish(t, svc, CreateAnnouncementRequest{TargetRoles: []string{"doctor"}})
	expired := publish(t, svc, CreateAnnouncementRequest{ExpiryDate: timePtr(serviceNow.Add(-time.Minute))})
	deleted := publish(t, svc, CreateAnnouncementRequest{})
	_, err := svc.SoftDelete(context.Background(), adminCaller, deleted.ID)
	require.NoError(t, err)

	for _, id := range []string{doctorsOnly.ID, expired.ID, deleted.ID, uuid.NewString(), "not-a-uuid"} {
		_, err := svc.MarkRead(context.Background(), nurseCaller, id)
		assert.True(t, errors.Is(err, appErrors.ErrNotFound), id)
	}
}

func TestSoftDeleteTwiceIsNoop(t *testing.T) {
	svc, _, stats := newTestAnnouncementService(t)
	a := publish(t, svc, CreateAnnouncementRequest{})

	first, err := svc.SoftDelete(context.Background(), adminCaller, a.ID)
	require.NoError(t, err)
	assert.False(t, first.IsActive)

	svc.now = func() time.Time { return serviceNow.Add(time.Hour) }
	second, err := svc.SoftDelete(context.Background(), adminCaller, a.ID)
	require.NoError(t, err)
	assert.False(t, second.IsActive)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	assert.Equal(t, 3, stats.calls)

	items, _, err := svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = svc.SoftDelete(context.Background(), adminCaller, uuid.NewString())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	_, err = svc.SoftDelete(context.Background(), nurseCaller, a.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestUpdateAppliesPatch(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	a := publish(t, svc, CreateAnnouncementRequest{ExpiryDate: timePtr(serviceNow.Add(time.Hour))})

	svc.now = func() time.Time { return serviceNow.Add(time.Minute) }
	roles := []string{"nurse", "doctor"}
	updated, err := svc.Update(context.Background(), adminCaller, a.ID, UpdateAnnouncementRequest{
		Title:       strPtr("Updated"),
		Priority:    strPtr("critical"),
		TargetRoles: &roles,
		ClearExpiry: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated.Title)
	assert.Equal(t, "Body", updated.Content)
	assert.Equal(t, models.AnnouncementPriorityCritical, updated.Priority)
	assert.Equal(t, models.RoleSet{models.RoleNurse, models.RoleDoctor}, updated.TargetRoles)
	assert.Nil(t, updated.ExpiryDate)
	assert.Equal(t, adminCaller.ID, updated.CreatedBy)
	assert.Equal(t, serviceNow.Add(time.Minute), updated.UpdatedAt)
}

func TestUpdateRejectsImmutableFields(t *testing.T) {
	svc, repo, _ := newTestAnnouncementService(t)
	a := publish(t, svc, CreateAnnouncementRequest{})

	patches := map[string]UpdateAnnouncementRequest{
		"id":         {ID: strPtr(uuid.NewString())},
		"created_by": {CreatedBy: strPtr("intruder"), Title: strPtr("x")},
		"read_by":    {ReadBy: json.RawMessage(`[]`)},
		"is_active":  {IsActive: new(bool)},
		"created_at": {CreatedAt: timePtr(serviceNow)},
		"updated_at": {UpdatedAt: timePtr(serviceNow)},
	}
	for field, patch := range patches {
		_, err := svc.Update(context.Background(), adminCaller, a.ID, patch)
		require.Error(t, err, field)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code, field)
		assert.Equal(t, field, appErr.Field)
	}

	stored, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, adminCaller.ID, stored.CreatedBy)
	assert.Equal(t, "Notice", stored.Title)
}

func TestUpdateValidationLeavesRecordIntact(t *testing.T) {
	svc, repo, _ := newTestAnnouncementService(t)
	a := publish(t, svc, CreateAnnouncementRequest{})

	empty := []string{}
	_, err := svc.Update(context.Background(), adminCaller, a.ID, UpdateAnnouncementRequest{Title: strPtr("New"), TargetRoles: &empty})
	require.Error(t, err)
	assert.Equal(t, "target_roles", appErrors.FromError(err).Field)

	stored, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Notice", stored.Title)
	assert.Equal(t, models.RoleSet{models.RoleAll}, stored.TargetRoles)
}

func TestUpdateMissingAnnouncement(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	_, err := svc.Update(context.Background(), adminCaller, uuid.NewString(), UpdateAnnouncementRequest{Title: strPtr("x")})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestGetHonoursVisibilityForRecipients(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	a := publish(t, svc, CreateAnnouncementRequest{TargetRoles: []string{"doctor"}})
	_, err := svc.MarkRead(context.Background(), models.Caller{ID: "doc-1", Role: models.RoleDoctor}, a.ID)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), nurseCaller, a.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	asDoctor, err := svc.Get(context.Background(), models.Caller{ID: "doc-1", Role: models.RoleDoctor}, a.ID)
	require.NoError(t, err)
	assert.True(t, asDoctor.IsRead)
	assert.Nil(t, asDoctor.ReadBy)

	asPublisher, err := svc.Get(context.Background(), adminCaller, a.ID)
	require.NoError(t, err)
	assert.Len(t, asPublisher.ReadBy, 1)
}

func TestListByPublisherIncludesInactive(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	a := publish(t, svc, CreateAnnouncementRequest{})
	_, err := svc.SoftDelete(context.Background(), adminCaller, a.ID)
	require.NoError(t, err)

	items, page, err := svc.ListByPublisher(context.Background(), adminCaller, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].IsActive)
	assert.Equal(t, 1, page.TotalCount)

	_, _, err = svc.ListByPublisher(context.Background(), nurseCaller, 1, 10)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestListRejectsPageBeyondLimit(t *testing.T) {
	svc, _, _ := newTestAnnouncementService(t)
	publish(t, svc, CreateAnnouncementRequest{})

	_, _, err := svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{Page: math.MaxInt / 50, PageSize: 50})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, "page", appErrors.FromError(err).Field)

	_, _, err = svc.ListByPublisher(context.Background(), adminCaller, math.MaxInt, 10)
	assert.Equal(t, "page", appErrors.FromError(err).Field)

	items, page, err := svc.ListForRole(context.Background(), nurseCaller, ListAnnouncementsRequest{Page: maxPage, PageSize: 50})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, page.TotalCount)
}

func TestCreateStoresExpiryInUTC(t *testing.T) {
	svc, repo, _ := newTestAnnouncementService(t)
	wib := time.FixedZone("WIB", 7*3600)
	expiry := time.Date(2024, 3, 2, 9, 0, 0, 0, wib)

	created := publish(t, svc, CreateAnnouncementRequest{ExpiryDate: &expiry})

	require.NotNil(t, created.ExpiryDate)
	assert.Equal(t, time.UTC, created.ExpiryDate.Location())
	assert.True(t, created.ExpiryDate.Equal(expiry))
	stored := repo.rows[created.ID].record
	assert.Equal(t, time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC), *stored.ExpiryDate)
}
