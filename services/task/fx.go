package task

import (
	"github.com/founoun2/FollowMe/pkg/middleware"
	"github.com/founoun2/FollowMe/services/campaign"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("task.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(
		bindCatalog,
		registerRoutes,
	),
)

// bindCatalog closes the campaign -> task loop after both services exist.
func bindCatalog(campaigns *campaign.Service, svc *Service) {
	campaigns.SetCatalog(svc)
}

func registerRoutes(engine *gin.Engine, h *Handler, auth middleware.AuthMiddleware) {
	group := engine.Group("/v1/tasks", gin.HandlerFunc(auth))
	group.GET("", h.Feed)
	group.POST("/:id/start", h.Start)
	group.POST("/:id/verify", h.Verify)
	group.POST("/:id/skip", h.Skip)
	group.POST("/:id/report", h.Report)
}
