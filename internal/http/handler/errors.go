package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/service"
	"basegraph.app/booking/internal/store"
)

// respondError maps domain errors to status codes. Provider failures are
// reported by status text key, never by raw provider output.
func respondError(c *gin.Context, err error, action string) {
	ctx := c.Request.Context()

	var perr *app.ProviderError
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "app instance not found"})
	case errors.Is(err, app.ErrUnknownType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown integration type"})
	case errors.Is(err, app.ErrCapabilityNotSupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": "integration does not support this operation"})
	case errors.Is(err, app.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       "invalid configuration",
			"status_text": app.StatusTextFor(err, app.StatusKeyConfigureFailed),
		})
	case errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, service.ErrInvalidRepeat),
		errors.Is(err, service.ErrPastWeek),
		errors.Is(err, app.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnreadableOverride):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &perr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       "provider call failed",
			"status_text": perr.Text,
		})
	default:
		slog.ErrorContext(ctx, "request failed", "action", action, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}

// appIDParam reads the :id path parameter, answering 400 when it is not an id.
func appIDParam(c *gin.Context, name string) (int64, bool) {
	appID, err := id.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app id"})
		return 0, false
	}
	return appID, true
}
