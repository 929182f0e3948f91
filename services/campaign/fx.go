package campaign

import (
	"github.com/founoun2/FollowMe/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, h *Handler, auth middleware.AuthMiddleware) {
	group := engine.Group("/v1/campaigns", gin.HandlerFunc(auth))
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("/:id/toggle", h.Toggle)
	group.PATCH("/:id", h.Edit)
	group.DELETE("/:id", h.Delete)
}
