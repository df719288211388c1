package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/booking/internal/http/handler"
)

func InstanceRouter(rg *gin.RouterGroup, h *handler.InstanceHandler) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/configure", h.Configure)
	rg.POST("/:id/reauthorize", h.Reauthorize)
}

func IntegrationRouter(rg *gin.RouterGroup, h *handler.InstanceHandler) {
	rg.GET("/types", h.Types)
	rg.GET("/types/:type/schema", h.Schema)
}

// DispatchRouter mounts the capability calls of an instance.
func DispatchRouter(rg *gin.RouterGroup, h *handler.DispatchHandler) {
	rg.POST("/:id/mail", h.SendMail)
	rg.POST("/:id/text", h.SendText)
	rg.POST("/:id/events", h.CreateEvent)
	rg.PUT("/:id/events/:uid", h.UpdateEvent)
	rg.DELETE("/:id/events/:uid", h.DeleteEvent)
}
