package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/booking/internal/http/handler"
)

func ScheduleRouter(rg *gin.RouterGroup, h *handler.ScheduleHandler) {
	rg.GET("", h.Get)
	rg.PUT("", h.Set)
	rg.DELETE("", h.Remove)
	rg.POST("/copy", h.Copy)
	rg.POST("/repeat", h.Repeat)
	rg.GET("/days", h.Days)
}

func SettingsRouter(rg *gin.RouterGroup, h *handler.ScheduleHandler) {
	rg.GET("/default-schedule", h.GetDefault)
	rg.PUT("/default-schedule", h.PutDefault)
}
