package advice

import (
	"github.com/founoun2/FollowMe/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("advice.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, h *Handler, auth middleware.AuthMiddleware) {
	group := engine.Group("/v1/advice", gin.HandlerFunc(auth))
	group.POST("", h.Generate)
}
