package schedules

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/middleware"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the schedule service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches template and schedule routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/templates", h.createTemplate)
	rg.GET("/templates", h.listTemplates)
	rg.GET("/templates/:id", h.getTemplate)

	rg.POST("/schedules", h.createSchedule)
	rg.GET("/schedules", h.listSchedules)
	rg.GET("/schedules/:id", h.getSchedule)
	rg.PUT("/schedules/:id", h.updateSchedule)
	rg.DELETE("/schedules/:id", h.deleteSchedule)
	rg.POST("/schedules/:id/activate", h.activateSchedule)
	rg.POST("/schedules/:id/deactivate", h.deactivateSchedule)
	rg.POST("/schedules/:id/trigger", h.triggerSchedule)
}

type templateBody struct {
	Name          string                   `json:"name"`
	Workflow      string                   `json:"workflow"`
	Sections      []string                 `json:"sections"`
	Depth         string                   `json:"depth"`
	ExportFormats []string                 `json:"exportFormats"`
	Delivery      *reports.DeliveryOptions `json:"delivery"`
	Podcast       *reports.PodcastOptions  `json:"podcast"`
}

type scheduleBody struct {
	TemplateID string   `json:"templateId"`
	CronExpr   string   `json:"cronExpr"`
	Timezone   string   `json:"timezone"`
	Companies  []string `json:"companies"`
	Active     *bool    `json:"active"`
}

func (h *Handler) createTemplate(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body templateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	template, err := h.Svc.CreateTemplate(c.Request.Context(), userID, TemplateInput{
		Name:          body.Name,
		Workflow:      body.Workflow,
		Sections:      body.Sections,
		Depth:         body.Depth,
		ExportFormats: body.ExportFormats,
		Delivery:      body.Delivery,
		Podcast:       body.Podcast,
	})
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	respond.JSON(c, http.StatusCreated, template)
}

func (h *Handler) listTemplates(c *gin.Context) {
	templates, err := h.Svc.ListTemplates(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list templates", nil)
		return
	}
	respond.JSON(c, http.StatusOK, templates)
}

func (h *Handler) getTemplate(c *gin.Context) {
	template, err := h.Svc.GetTemplate(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		respondScheduleError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, template)
}

func (h *Handler) createSchedule(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body scheduleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	active := true
	if body.Active != nil {
		active = *body.Active
	}
	schedule, err := h.Svc.Create(c.Request.Context(), userID, CreateInput{
		TemplateID: body.TemplateID,
		CronExpr:   body.CronExpr,
		Timezone:   body.Timezone,
		Companies:  body.Companies,
		Active:     active,
	})
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "template not found", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	respond.JSON(c, http.StatusCreated, schedule)
}

func (h *Handler) listSchedules(c *gin.Context) {
	schedules, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list schedules", nil)
		return
	}
	respond.JSON(c, http.StatusOK, schedules)
}

func (h *Handler) getSchedule(c *gin.Context) {
	schedule, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		respondScheduleError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, schedule)
}

func (h *Handler) updateSchedule(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body scheduleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	schedule, err := h.Svc.Update(c.Request.Context(), userID, c.Param("id"), CreateInput{
		CronExpr:  body.CronExpr,
		Timezone:  body.Timezone,
		Companies: body.Companies,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respondScheduleError(c, err)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	respond.JSON(c, http.StatusOK, schedule)
}

func (h *Handler) deleteSchedule(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id")); err != nil {
		respondScheduleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) activateSchedule(c *gin.Context) {
	schedule, err := h.Svc.Activate(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		respondScheduleError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, schedule)
}

func (h *Handler) deactivateSchedule(c *gin.Context) {
	schedule, err := h.Svc.Deactivate(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		respondScheduleError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, schedule)
}

func (h *Handler) triggerSchedule(c *gin.Context) {
	schedule, err := h.Svc.TriggerNow(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		respondScheduleError(c, err)
		return
	}
	respond.Accepted(c, schedule)
}

func respondScheduleError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTemplateNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "not found", nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal_error", "request failed", nil)
}
