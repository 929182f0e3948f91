package ledger

import (
	"github.com/founoun2/FollowMe/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, h *Handler, auth middleware.AuthMiddleware) {
	wallet := engine.Group("/v1/wallet", gin.HandlerFunc(auth))
	wallet.GET("", h.GetBalance)
	wallet.GET("/transactions", h.ListTransactions)
	wallet.GET("/verify", h.VerifyChain)
}
