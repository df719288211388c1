package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/booking/internal/http/handler"
)

func AvailabilityRouter(rg *gin.RouterGroup, instances *gin.RouterGroup, h *handler.AvailabilityHandler) {
	rg.GET("/busy", h.Busy)
	instances.GET("/:id/busy", h.InstanceBusy)
}
