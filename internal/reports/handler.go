package reports

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/middleware"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the reports service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches report routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reports", h.createReport)
	rg.GET("/reports", h.listReports)
	rg.GET("/reports/:id", h.getReport)
	rg.DELETE("/reports/:id", h.deleteReport)
	rg.POST("/reports/:id/retry", h.retryReport)
	rg.GET("/reports/:id/status", h.reportStatus)
}

type createReportRequest struct {
	Workflow      string           `json:"workflow"`
	Title         string           `json:"title"`
	Companies     []string         `json:"companies"`
	Depth         string           `json:"depth"`
	Sections      []string         `json:"sections"`
	ExportFormats []string         `json:"exportFormats"`
	Delivery      *DeliveryOptions `json:"delivery"`
	Podcast       *PodcastOptions  `json:"podcast"`
}

func (h *Handler) createReport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req createReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	report, err := h.Svc.Create(c.Request.Context(), CreateInput{
		UserID:        userID,
		Workflow:      strings.TrimSpace(req.Workflow),
		Title:         req.Title,
		Companies:     req.Companies,
		Depth:         req.Depth,
		Sections:      req.Sections,
		ExportFormats: req.ExportFormats,
		Delivery:      req.Delivery,
		Podcast:       req.Podcast,
	})
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	respond.Accepted(c, gin.H{
		"reportId": report.ID,
		"status":   report.Status,
	})
}

func (h *Handler) getReport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	report, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err, "failed to fetch report")
		return
	}

	resp := gin.H{
		"id":        report.ID,
		"workflow":  report.Workflow,
		"title":     report.Title,
		"status":    report.Status,
		"companies": report.Companies,
		"depth":     report.Depth,
		"sections":  report.Sections,
		"createdAt": report.CreatedAt,
	}
	if report.Status == StatusCompleted && report.Content != nil {
		resp["content"] = report.Content
		resp["tokensUsed"] = report.TokensUsed
	}
	if report.Status == StatusFailed && report.ErrorMessage != "" {
		resp["error"] = report.ErrorMessage
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) listReports(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	reports, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list reports", nil)
		return
	}

	resp := make([]gin.H, 0, len(reports))
	for _, report := range reports {
		resp = append(resp, gin.H{
			"id":        report.ID,
			"workflow":  report.Workflow,
			"title":     report.Title,
			"status":    report.Status,
			"companies": report.Companies,
			"createdAt": report.CreatedAt,
		})
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) deleteReport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if err := h.Svc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondLookupError(c, err, "failed to delete report")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) retryReport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	report, err := h.Svc.Retry(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
			return
		}
		respond.Error(c, http.StatusConflict, "not_retryable", err.Error(), nil)
		return
	}
	respond.Accepted(c, gin.H{
		"reportId": report.ID,
		"status":   report.Status,
	})
}

func (h *Handler) reportStatus(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	report, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err, "failed to fetch report status")
		return
	}

	resp := gin.H{
		"reportId": report.ID,
		"status":   report.Status,
		"progress": report.Progress(),
	}
	if report.Status == StatusFailed && report.ErrorMessage != "" {
		resp["error"] = report.ErrorMessage
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) respondLookupError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
}
