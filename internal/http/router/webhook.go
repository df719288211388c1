package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/booking/internal/http/handler/webhook"
)

func WebhookRouter(rg *gin.RouterGroup, h *webhook.AppWebhookHandler) {
	rg.POST("/:app_id", h.HandleEvent)
}
