package main

import (
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	pkgasynq "github.com/founoun2/FollowMe/pkg/asynq"
	"github.com/founoun2/FollowMe/pkg/config"
	"github.com/founoun2/FollowMe/pkg/db"
	"github.com/founoun2/FollowMe/pkg/featureflags"
	"github.com/founoun2/FollowMe/pkg/gen"
	"github.com/founoun2/FollowMe/pkg/logger"
	"github.com/founoun2/FollowMe/pkg/minio"
	"github.com/founoun2/FollowMe/pkg/redis"
	"github.com/founoun2/FollowMe/pkg/sequence"
	"github.com/founoun2/FollowMe/services/account"
	"github.com/founoun2/FollowMe/services/campaign"
	"github.com/founoun2/FollowMe/services/engagement"
	"github.com/founoun2/FollowMe/services/ledger"
	"github.com/founoun2/FollowMe/services/targeting"
	"github.com/founoun2/FollowMe/services/task"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		gen.Module,
		db.Module,
		redis.Module,
		pkgasynq.Client,
		pkgasynq.Server,
		sequence.Module,
		featureflags.Module,
		minio.Module,
		fx.Provide(
			targeting.NewEvaluator,
			account.NewService,
			ledger.NewService,
			campaign.NewService,
			task.NewService,
			engagement.NewService,
		),
		engagement.SchedulerModule,
		fx.Invoke(registerHandlers),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func registerHandlers(mux *asynq.ServeMux, tasks *task.Service, eng *engagement.Service, accounts *account.Service) {
	mux.HandleFunc(pkgasynq.TaskVerify, tasks.HandleVerify)
	mux.HandleFunc(pkgasynq.AdQuotaReset, eng.HandleAdQuotaReset)
	mux.HandleFunc(pkgasynq.AvatarCleanup, accounts.HandleAvatarCleanup)
}
