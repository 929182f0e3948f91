package engagement

import (
	"github.com/founoun2/FollowMe/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("engagement.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

// SchedulerModule runs in the worker binary only.
var SchedulerModule = fx.Module("engagement.scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)

func registerRoutes(engine *gin.Engine, h *Handler, auth middleware.AuthMiddleware) {
	group := engine.Group("/v1/engagement", gin.HandlerFunc(auth))
	group.GET("/daily-bonus", h.DailyBonusStatus)
	group.POST("/daily-bonus/claim", h.ClaimDailyBonus)
	group.POST("/ads/start", h.StartAdWatch)
	group.POST("/ads/claim", h.ClaimAdReward)
}
