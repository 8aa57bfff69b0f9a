package deliveries

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/middleware"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the delivery service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches delivery routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reports/:id/deliveries", h.scheduleDelivery)
	rg.GET("/reports/:id/deliveries", h.listDeliveries)
	rg.GET("/deliveries/:id", h.getDelivery)
	rg.POST("/deliveries/:id/retry", h.retryDelivery)
}

type scheduleDeliveryBody struct {
	Destination     string `json:"destination"`
	DestinationType string `json:"destinationType"`
	ContentMode     string `json:"contentMode"`
	Format          string `json:"format"`
}

func (h *Handler) scheduleDelivery(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	reportID := c.Param("id")

	var body scheduleDeliveryBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	report, err := h.Svc.Reports.GetByID(c.Request.Context(), reportID)
	if err != nil || report.UserID != userID {
		respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
		return
	}
	if report.Status != reports.StatusCompleted {
		respond.Error(c, http.StatusConflict, "report_not_ready", "report is not completed", nil)
		return
	}

	report.Delivery = &reports.DeliveryOptions{
		Enabled:         true,
		Destination:     body.Destination,
		DestinationType: body.DestinationType,
		ContentMode:     body.ContentMode,
		Format:          body.Format,
	}
	if err := h.Svc.ScheduleForReport(c.Request.Context(), report); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	respond.Accepted(c, gin.H{"reportId": reportID, "status": StatusPending})
}

func (h *Handler) listDeliveries(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	deliveries, err := h.Svc.ListForReport(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, reports.ErrNotFound) || errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list deliveries", nil)
		return
	}
	respond.JSON(c, http.StatusOK, deliveries)
}

func (h *Handler) getDelivery(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	delivery, err := h.Svc.Get(c.Request.Context(), userID, kindParam(c), c.Param("id"))
	if err != nil {
		respondLookupError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, delivery)
}

func (h *Handler) retryDelivery(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	delivery, err := h.Svc.Retry(c.Request.Context(), userID, kindParam(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, reports.ErrNotFound) {
			respondLookupError(c, err)
			return
		}
		respond.Error(c, http.StatusConflict, "not_retryable", err.Error(), nil)
		return
	}
	respond.Accepted(c, delivery)
}

// kindParam selects the job table; report deliveries are the default.
func kindParam(c *gin.Context) string {
	if c.Query("kind") == TargetPodcast {
		return TargetPodcast
	}
	return TargetReport
}

func respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, reports.ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "delivery not found", nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load delivery", nil)
}
