package account

import (
	"github.com/founoun2/FollowMe/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, h *Handler, auth middleware.AuthMiddleware) {
	me := engine.Group("/v1/me", gin.HandlerFunc(auth))
	me.GET("", h.GetProfile)
	me.PATCH("", h.UpdateProfile)
	me.POST("/avatar", h.UploadAvatar)
}
