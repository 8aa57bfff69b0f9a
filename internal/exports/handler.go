package exports

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/middleware"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the exports service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches export routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reports/:id/exports", h.requestExport)
	rg.GET("/reports/:id/exports", h.listExports)
	rg.GET("/exports/:id", h.getExport)
	rg.GET("/exports/:id/download", h.downloadExport)
}

type requestExportBody struct {
	Format string `json:"format"`
}

func (h *Handler) requestExport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	reportID := c.Param("id")

	var body requestExportBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	if err := h.checkOwner(c, userID, reportID); err != nil {
		return
	}

	export, err := h.Svc.Request(c.Request.Context(), reportID, body.Format, TriggerOnDemand)
	if err != nil {
		switch {
		case errors.Is(err, ErrReportNotReady):
			respond.Error(c, http.StatusConflict, "report_not_ready", "report is not completed", nil)
		case errors.Is(err, reports.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		}
		return
	}

	respond.Accepted(c, exportPayload(export))
}

func (h *Handler) listExports(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	exports, err := h.Svc.ListForReport(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, reports.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list exports", nil)
		return
	}

	resp := make([]gin.H, 0, len(exports))
	for _, export := range exports {
		resp = append(resp, exportPayload(export))
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) getExport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	export, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, reports.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "export not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch export", nil)
		return
	}
	respond.JSON(c, http.StatusOK, exportPayload(export))
}

func (h *Handler) downloadExport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	export, body, err := h.Svc.Download(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound) || errors.Is(err, reports.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "export not found", nil)
		case errors.Is(err, ErrNotDownloadable):
			respond.Error(c, http.StatusGone, "expired", "export artifact is no longer available", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to download export", nil)
		}
		return
	}
	defer body.Close()

	contentType := "application/octet-stream"
	if renderer, rendererErr := h.Svc.Renderers.For(export.Format); rendererErr == nil {
		contentType = renderer.ContentType()
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("report-%s.%s", export.ReportID, export.Format)))
	c.Header("Content-Type", contentType)
	if export.FileSize > 0 {
		c.Header("Content-Length", fmt.Sprintf("%d", export.FileSize))
	}
	c.Status(http.StatusOK)
	// Headers are already out; a broken stream can only be dropped.
	_, _ = io.Copy(c.Writer, body)
}

func (h *Handler) checkOwner(c *gin.Context, userID, reportID string) error {
	if err := h.Svc.checkOwner(c.Request.Context(), userID, reportID); err != nil {
		if errors.Is(err, reports.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
		} else {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to resolve report", nil)
		}
		return err
	}
	return nil
}

func exportPayload(export Export) gin.H {
	payload := gin.H{
		"id":         export.ID,
		"reportId":   export.ReportID,
		"format":     export.Format,
		"status":     export.Status,
		"trigger":    export.TriggerReason,
		"retryCount": export.RetryCount,
		"createdAt":  export.CreatedAt,
		"expiresAt":  export.ExpiresAt,
	}
	if export.Status == StatusCompleted {
		payload["fileSize"] = export.FileSize
	}
	if export.Status == StatusFailed && export.ErrorMessage != "" {
		payload["error"] = export.ErrorMessage
	}
	return payload
}
