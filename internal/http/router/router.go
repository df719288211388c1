package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"basegraph.app/booking/internal/http/handler"
	"basegraph.app/booking/internal/http/handler/webhook"
	"basegraph.app/booking/internal/service"
)

type RouterConfig struct {
	AdminAPIKey    string
	MetricsEnabled bool
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	apps := services.Apps()

	OAuthRouter(router.Group("/oauth"), handler.NewOAuthHandler(apps))
	WebhookRouter(router.Group("/webhooks"), webhook.NewAppWebhookHandler(apps))

	v1 := router.Group("/api/v1")
	v1.Use(handler.RequireAdminAPIKey(cfg.AdminAPIKey))
	{
		instances := v1.Group("/instances")
		InstanceRouter(instances, handler.NewInstanceHandler(apps, apps.Registry()))
		DispatchRouter(instances, handler.NewDispatchHandler(apps))

		scheduleHandler := handler.NewScheduleHandler(services.Schedules(), services.Availability(), services.Apps())
		ScheduleRouter(instances.Group("/:id/schedule"), scheduleHandler)
		SettingsRouter(v1.Group("/settings"), scheduleHandler)

		availabilityHandler := handler.NewAvailabilityHandler(services.Availability())
		AvailabilityRouter(v1.Group("/availability"), instances, availabilityHandler)

		IntegrationRouter(v1.Group("/integrations"), handler.NewInstanceHandler(apps, apps.Registry()))
	}
}
