package auth

import (
	"github.com/founoun2/FollowMe/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, h *Handler, auth middleware.AuthMiddleware) {
	group := engine.Group("/v1/auth")
	group.POST("/signup", h.Signup)
	group.POST("/login", h.Login)
	group.POST("/logout", gin.HandlerFunc(auth), h.Logout)
}
