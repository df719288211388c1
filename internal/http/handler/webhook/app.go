// Package webhook receives provider callbacks addressed to app instances.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/store"
)

const maxBody = 1 << 20

type Receiver interface {
	ProcessWebhook(ctx context.Context, appID int64, req app.WebhookRequest) (app.WebhookResponse, error)
}

type AppWebhookHandler struct {
	apps Receiver
}

func NewAppWebhookHandler(apps Receiver) *AppWebhookHandler {
	return &AppWebhookHandler{apps: apps}
}

// HandleEvent hands the unmodified body and headers to the instance. The
// receiver decides the status code.
func (h *AppWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	appID, err := id.Parse(c.Param("app_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app id"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if len(body) > maxBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	resp, err := h.apps.ProcessWebhook(ctx, appID, app.WebhookRequest{
		Header: c.Request.Header.Clone(),
		Body:   body,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "app instance not found"})
		case errors.Is(err, app.ErrCapabilityNotSupported):
			c.JSON(http.StatusBadRequest, gin.H{"error": "app instance does not accept webhooks"})
		default:
			slog.ErrorContext(ctx, "failed to process webhook", "app_id", appID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
		}
		return
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if resp.Body == nil {
		c.Status(status)
		return
	}
	c.JSON(status, resp.Body)
}
