package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-announcements-api/internal/middleware"
	"github.com/noah-isme/clinic-announcements-api/internal/models"
	"github.com/noah-isme/clinic-announcements-api/internal/service"
	appErrors "github.com/noah-isme/clinic-announcements-api/pkg/errors"
	"github.com/noah-isme/clinic-announcements-api/pkg/export"
	"github.com/noah-isme/clinic-announcements-api/pkg/response"
)

type announcementService interface {
	Create(ctx context.Context, caller models.Caller, req service.CreateAnnouncementRequest) (*models.Announcement, error)
	Update(ctx context.Context, caller models.Caller, id string, req service.UpdateAnnouncementRequest) (*models.Announcement, error)
	SoftDelete(ctx context.Context, caller models.Caller, id string) (*models.Announcement, error)
	ListForRole(ctx context.Context, caller models.Caller, req service.ListAnnouncementsRequest) ([]models.Announcement, *models.Pagination, error)
	UnreadCount(ctx context.Context, caller models.Caller) (int, error)
	MarkRead(ctx context.Context, caller models.Caller, id string) (*models.MarkReadResult, error)
	Get(ctx context.Context, caller models.Caller, id string) (*models.Announcement, error)
	ListByPublisher(ctx context.Context, caller models.Caller, page, pageSize int) ([]models.Announcement, *models.Pagination, error)
}

type announcementStatsService interface {
	Summarize(ctx context.Context) (*models.AnnouncementSummary, bool, error)
	Export(ctx context.Context, format export.Format) ([]byte, error)
}

// AnnouncementHandler exposes announcement endpoints.
type AnnouncementHandler struct {
	service announcementService
	stats   announcementStatsService
}

// NewAnnouncementHandler constructs the handler.
func NewAnnouncementHandler(service announcementService, stats announcementStatsService) *AnnouncementHandler {
	return &AnnouncementHandler{service: service, stats: stats}
}

// List godoc
// @Summary List announcements for the caller's role
// @Tags Announcements
// @Produce json
// @Param priority query string false "low|medium|high|critical"
// @Param type query string false "Announcement type"
// @Param unread_only query bool false "Only unread announcements"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}
	var req service.ListAnnouncementsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.ListForRole(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// UnreadCount godoc
// @Summary Count unread announcements for the caller
// @Tags Announcements
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /announcements/unread-count [get]
func (h *AnnouncementHandler) UnreadCount(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), caller)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread_count": count}, nil)
}

// Mine godoc
// @Summary List announcements authored by the caller
// @Tags Announcements
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /announcements/mine [get]
func (h *AnnouncementHandler) Mine(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}
	var query pageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.ListByPublisher(c.Request.Context(), caller, query.Page, query.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get an announcement
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id} [get]
func (h *AnnouncementHandler) Get(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}
	announcement, err := h.service.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Create godoc
// @Summary Publish an announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param payload body service.CreateAnnouncementRequest true "Announcement"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}
	var req service.CreateAnnouncementRequest
	if !bindJSON(c, &req) {
		return
	}
	announcement, err := h.service.Create(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, announcement)
}

// Update godoc
// @Summary Patch an announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param id path string true "Announcement ID"
// @Param payload body service.UpdateAnnouncementRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id} [patch]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}
	var req service.UpdateAnnouncementRequest
	if !bindJSON(c, &req) {
		return
	}
	announcement, err := h.service.Update(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Delete godoc
// @Summary Deactivate an announcement
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}
	announcement, err := h.service.SoftDelete(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// MarkRead godoc
// @Summary Mark an announcement as read by the caller
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id}/read [post]
func (h *AnnouncementHandler) MarkRead(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}
	result, err := h.service.MarkRead(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Stats godoc
// @Summary Announcement engagement statistics
// @Tags Announcements
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /announcements/stats [get]
func (h *AnnouncementHandler) Stats(c *gin.Context) {
	if h.stats == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.stats.Summarize(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetGeneratedAt(c, summary.GeneratedAt)
	meta := middleware.ExtractMeta(c)
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}

// ExportStats godoc
// @Summary Download announcement statistics
// @Tags Announcements
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Router /announcements/stats/export [get]
func (h *AnnouncementHandler) ExportStats(c *gin.Context) {
	if h.stats == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.FormatCSV)))
	if err != nil {
		response.Error(c, appErrors.Validation("format", "must be csv or pdf"))
		return
	}
	payload, err := h.stats.Export(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, format.ContentType(), format.FileName("announcement-stats"), payload)
}
