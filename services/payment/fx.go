package payment

import (
	"github.com/founoun2/FollowMe/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, h *Handler, auth middleware.AuthMiddleware) {
	// package listing is public; anonymous callers see USD prices
	engine.GET("/v1/packages", h.ListPackages)

	group := engine.Group("/v1/purchases", gin.HandlerFunc(auth))
	group.POST("", h.ConfirmPurchase)
}
