package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/booking/internal/http/handler"
)

func OAuthRouter(rg *gin.RouterGroup, h *handler.OAuthHandler) {
	rg.GET("/:app_id/login", h.Login)
	rg.GET("/redirect", h.Redirect)
}
