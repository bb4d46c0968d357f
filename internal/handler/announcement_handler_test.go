package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-announcements-api/internal/middleware"
	"github.com/noah-isme/clinic-announcements-api/internal/models"
	"github.com/noah-isme/clinic-announcements-api/internal/service"
	appErrors "github.com/noah-isme/clinic-announcements-api/pkg/errors"
	"github.com/noah-isme/clinic-announcements-api/pkg/export"
)

type fakeAnnouncementSrv struct {
	created    service.CreateAnnouncementRequest
	updated    service.UpdateAnnouncementRequest
	listReq    service.ListAnnouncementsRequest
	lastCaller models.Caller
	lastID     string
	err        error
}

func (f *fakeAnnouncementSrv) Create(_ context.Context, caller models.Caller, req service.CreateAnnouncementRequest) (*models.Announcement, error) {
	f.lastCaller, f.created = caller, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Announcement{ID: "a1", Title: req.Title, CreatedBy: caller.ID, IsActive: true}, nil
}

func (f *fakeAnnouncementSrv) Update(_ context.Context, caller models.Caller, id string, req service.UpdateAnnouncementRequest) (*models.Announcement, error) {
	f.lastCaller, f.lastID, f.updated = caller, id, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Announcement{ID: id}, nil
}

func (f *fakeAnnouncementSrv) SoftDelete(_ context.Context, caller models.Caller, id string) (*models.Announcement, error) {
	f.lastCaller, f.lastID = caller, id
	return &models.Announcement{ID: id, IsActive: false}, f.err
}

func (f *fakeAnnouncementSrv) ListForRole(_ context.Context, caller models.Caller, req service.ListAnnouncementsRequest) ([]models.Announcement, *models.Pagination, error) {
	f.lastCaller, f.listReq = caller, req
	if f.err != nil {
		return nil, nil, f.err
	}
	return []models.Announcement{{ID: "a1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakeAnnouncementSrv) UnreadCount(_ context.Context, caller models.Caller) (int, error) {
	f.lastCaller = caller
	return 3, f.err
}

func (f *fakeAnnouncementSrv) MarkRead(_ context.Context, caller models.Caller, id string) (*models.MarkReadResult, error) {
	f.lastCaller, f.lastID = caller, id
	if f.err != nil {
		return nil, f.err
	}
	return &models.MarkReadResult{AnnouncementID: id, AlreadyRead: true, ReadCount: 4}, nil
}

func (f *fakeAnnouncementSrv) Get(_ context.Context, caller models.Caller, id string) (*models.Announcement, error) {
	f.lastCaller, f.lastID = caller, id
	if f.err != nil {
		return nil, f.err
	}
	return &models.Announcement{ID: id}, nil
}

func (f *fakeAnnouncementSrv) ListByPublisher(_ context.Context, caller models.Caller, page, pageSize int) ([]models.Announcement, *models.Pagination, error) {
	f.lastCaller = caller
	return []models.Announcement{}, &models.Pagination{Page: page, PageSize: pageSize}, f.err
}

type fakeStatsSrv struct {
	summary *models.AnnouncementSummary
	hit     bool
	format  export.Format
}

func (f *fakeStatsSrv) Summarize(context.Context) (*models.AnnouncementSummary, bool, error) {
	return f.summary, f.hit, nil
}

func (f *fakeStatsSrv) Export(_ context.Context, format export.Format) ([]byte, error) {
	f.format = format
	return []byte("metric,group,value\n"), nil
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

var nurse = models.Caller{ID: "nurse-1", Role: models.RoleNurse}

func newContext(method, target, body string, caller *models.Caller) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if caller != nil {
		c.Set(middleware.ContextCallerKey, *caller)
	}
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestAnnouncementHandlerRequiresCaller(t *testing.T) {
	h := NewAnnouncementHandler(&fakeAnnouncementSrv{}, nil)
	c, rec := newContext(http.MethodGet, "/announcements", "", nil)

	h.List(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnnouncementHandlerListBindsQuery(t *testing.T) {
	srv := &fakeAnnouncementSrv{}
	h := NewAnnouncementHandler(srv, nil)
	c, rec := newContext(http.MethodGet, "/announcements?priority=high&unread_only=true&page=2&page_size=5", "", &nurse)

	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ListAnnouncementsRequest{Priority: "high", UnreadOnly: true, Page: 2, PageSize: 5}, srv.listReq)
	assert.Equal(t, nurse, srv.lastCaller)
	env := decode(t, rec)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestAnnouncementHandlerListRejectsBadPage(t *testing.T) {
	h := NewAnnouncementHandler(&fakeAnnouncementSrv{}, nil)
	c, rec := newContext(http.MethodGet, "/announcements?page=abc", "", &nurse)

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnnouncementHandlerCreate(t *testing.T) {
	srv := &fakeAnnouncementSrv{}
	h := NewAnnouncementHandler(srv, nil)
	admin := models.Caller{ID: "admin-1", Role: models.RoleAdmin, IsPublisher: true}
	c, rec := newContext(http.MethodPost, "/announcements", `{"title":"Drill","content":"Noon","priority":"critical","target_roles":["nurse"],"expiry_date":"2024-03-02T00:00:00Z"}`, &admin)

	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Drill", srv.created.Title)
	assert.Equal(t, []string{"nurse"}, srv.created.TargetRoles)
	require.NotNil(t, srv.created.ExpiryDate)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), srv.created.ExpiryDate.UTC())
}

func TestAnnouncementHandlerCreateMapsServiceErrors(t *testing.T) {
	srv := &fakeAnnouncementSrv{err: appErrors.Validation("title", "is required")}
	h := NewAnnouncementHandler(srv, nil)
	c, rec := newContext(http.MethodPost, "/announcements", `{"content":"x"}`, &nurse)

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "title", env.Error.Field)
}

func TestAnnouncementHandlerUpdateCarriesImmutableFields(t *testing.T) {
	srv := &fakeAnnouncementSrv{}
	h := NewAnnouncementHandler(srv, nil)
	c, _ := newContext(http.MethodPatch, "/announcements/a1", `{"title":"New","created_by":"someone","read_by":[]}`, &nurse)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	h.Update(c)

	assert.Equal(t, "a1", srv.lastID)
	require.NotNil(t, srv.updated.CreatedBy)
	assert.Equal(t, "someone", *srv.updated.CreatedBy)
	assert.JSONEq(t, `[]`, string(srv.updated.ReadBy))
}

func TestAnnouncementHandlerMarkReadNotFound(t *testing.T) {
	srv := &fakeAnnouncementSrv{err: appErrors.Clone(appErrors.ErrNotFound, "announcement not found")}
	h := NewAnnouncementHandler(srv, nil)
	c, rec := newContext(http.MethodPost, "/announcements/a1/read", "", &nurse)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	h.MarkRead(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnnouncementHandlerStorageErrorHidesCause(t *testing.T) {
	srv := &fakeAnnouncementSrv{err: appErrors.Storage(errors.New("pq: password authentication failed"), "failed to count unread announcements")}
	h := NewAnnouncementHandler(srv, nil)
	c, rec := newContext(http.MethodGet, "/announcements/unread-count", "", &nurse)

	h.UnreadCount(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Len(t, c.Errors, 1)
}

func TestAnnouncementHandlerStats(t *testing.T) {
	generated := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	stats := &fakeStatsSrv{summary: &models.AnnouncementSummary{TotalActive: 7, GeneratedAt: generated}, hit: true}
	h := NewAnnouncementHandler(&fakeAnnouncementSrv{}, stats)
	c, rec := newContext(http.MethodGet, "/announcements/stats", "", &nurse)
	middleware.WithResponseMeta()(c)

	h.Stats(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Equal(t, "2024-03-01T08:00:00Z", env.Meta["generated_at"])
	var summary models.AnnouncementSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 7, summary.TotalActive)
}

func TestAnnouncementHandlerExportStats(t *testing.T) {
	stats := &fakeStatsSrv{}
	h := NewAnnouncementHandler(&fakeAnnouncementSrv{}, stats)

	c, rec := newContext(http.MethodGet, "/announcements/stats/export", "", &nurse)
	h.ExportStats(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.FormatCSV, stats.format)
	assert.Equal(t, `attachment; filename="announcement-stats.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	c, rec = newContext(http.MethodGet, "/announcements/stats/export?format=docx", "", &nurse)
	h.ExportStats(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandlerReady(t *testing.T) {
	h := NewHealthHandler(nil, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	c, rec := newContext(http.MethodGet, "/ready", "", nil)

	h.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"postgres":"ok","redis":"connection refused"}}`, rec.Body.String())
}

func TestAnnouncementHandlerNamesMalformedBodyField(t *testing.T) {
	admin := models.Caller{ID: "admin-1", Role: models.RoleAdmin, IsPublisher: true}
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "unparseable expiry", body: `{"title":"Drill","content":"Noon","expiry_date":"tomorrow"}`, field: "expiry_date"},
		{name: "numeric publish date", body: `{"title":"Drill","content":"Noon","publish_date":1709280000}`, field: "publish_date"},
		{name: "wrong title type", body: `{"title":5,"content":"Noon"}`, field: "title"},
		{name: "roles not an array", body: `{"title":"Drill","content":"Noon","target_roles":"nurse"}`, field: "target_roles"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := &fakeAnnouncementSrv{}
			h := NewAnnouncementHandler(srv, nil)
			c, rec := newContext(http.MethodPost, "/announcements", tc.body, &admin)

			h.Create(c)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			env := decode(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, appErrors.ErrValidation.Code, env.Error.Code)
			assert.Equal(t, tc.field, env.Error.Field)
			assert.Empty(t, srv.created.Title, "service must not be called")
		})
	}
}

func TestAnnouncementHandlerUpdateNamesMalformedExpiry(t *testing.T) {
	srv := &fakeAnnouncementSrv{}
	h := NewAnnouncementHandler(srv, nil)
	c, rec := newContext(http.MethodPatch, "/announcements/a1", `{"expiry_date":"2024-13-45"}`, &nurse)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	h.Update(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "expiry_date", decode(t, rec).Error.Field)
	assert.Empty(t, srv.lastID)
}

func TestAnnouncementHandlerMalformedJSONHasNoField(t *testing.T) {
	h := NewAnnouncementHandler(&fakeAnnouncementSrv{}, nil)
	c, rec := newContext(http.MethodPost, "/announcements", `{"title":`, &nurse)

	h.Create(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, decode(t, rec).Error.Field)
}

func TestAnnouncementHandlerMineBindsPaging(t *testing.T) {
	admin := models.Caller{ID: "admin-1", Role: models.RoleAdmin, IsPublisher: true}
	h := NewAnnouncementHandler(&fakeAnnouncementSrv{}, nil)

	c, rec := newContext(http.MethodGet, "/announcements/mine?page=2&page_size=5", "", &admin)
	h.Mine(c)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 2, env.Pagination.Page)
	assert.Equal(t, 5, env.Pagination.PageSize)

	c, rec = newContext(http.MethodGet, "/announcements/mine?page=abc", "", &admin)
	h.Mine(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
