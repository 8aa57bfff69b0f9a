package podcasts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/middleware"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the podcast service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches podcast routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reports/:id/podcast", h.requestPodcast)
	rg.GET("/reports/:id/podcast", h.getReportPodcast)
	rg.GET("/podcasts/:id", h.getPodcast)
	rg.GET("/podcasts/queue/stats", h.queueStats)
}

type requestPodcastBody struct {
	Style           string `json:"style"`
	DurationClass   string `json:"durationClass"`
	Destination     string `json:"destination"`
	DestinationType string `json:"destinationType"`
}

func (h *Handler) requestPodcast(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body requestPodcastBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	podcast, err := h.Svc.Request(c.Request.Context(), userID, c.Param("id"), RequestInput{
		Style:           body.Style,
		DurationClass:   body.DurationClass,
		Destination:     body.Destination,
		DestinationType: body.DestinationType,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrReportNotReady):
			respond.Error(c, http.StatusConflict, "report_not_ready", "report is not completed", nil)
		case errors.Is(err, reports.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to request podcast", nil)
		}
		return
	}
	respond.Accepted(c, podcast)
}

func (h *Handler) getReportPodcast(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	podcast, err := h.Svc.StatusForReport(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondPodcastError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, podcast)
}

func (h *Handler) getPodcast(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	podcast, err := h.Svc.Status(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondPodcastError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, podcast)
}

func (h *Handler) queueStats(c *gin.Context) {
	stats, err := h.Svc.Stats(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read queue stats", nil)
		return
	}
	respond.JSON(c, http.StatusOK, stats)
}

func respondPodcastError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, reports.ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "podcast not found", nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load podcast", nil)
}
