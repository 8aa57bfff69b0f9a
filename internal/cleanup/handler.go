package cleanup

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server/respond"
)

// Handler exposes the manual cleanup trigger.
type Handler struct {
	Processor *Processor
}

func NewHandler(processor *Processor) *Handler {
	return &Handler{Processor: processor}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/admin/cleanup", h.trigger)
}

func (h *Handler) trigger(c *gin.Context) {
	result, err := h.Processor.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			respond.Error(c, http.StatusConflict, "already_running", "a cleanup run is already in progress", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "cleanup failed", nil)
		return
	}
	respond.JSON(c, http.StatusOK, result)
}
