package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	pkgasynq "github.com/founoun2/FollowMe/pkg/asynq"
	"github.com/founoun2/FollowMe/pkg/config"
	"github.com/founoun2/FollowMe/pkg/db"
	"github.com/founoun2/FollowMe/pkg/featureflags"
	"github.com/founoun2/FollowMe/pkg/gen"
	"github.com/founoun2/FollowMe/pkg/hashistack/servicediscover"
	"github.com/founoun2/FollowMe/pkg/health"
	"github.com/founoun2/FollowMe/pkg/logger"
	"github.com/founoun2/FollowMe/pkg/middleware"
	"github.com/founoun2/FollowMe/pkg/minio"
	"github.com/founoun2/FollowMe/pkg/otelcol"
	"github.com/founoun2/FollowMe/pkg/profiling"
	"github.com/founoun2/FollowMe/pkg/redis"
	"github.com/founoun2/FollowMe/pkg/sequence"
	"github.com/founoun2/FollowMe/pkg/server"
	"github.com/founoun2/FollowMe/services/account"
	"github.com/founoun2/FollowMe/services/advice"
	"github.com/founoun2/FollowMe/services/auth"
	"github.com/founoun2/FollowMe/services/campaign"
	"github.com/founoun2/FollowMe/services/engagement"
	"github.com/founoun2/FollowMe/services/ledger"
	"github.com/founoun2/FollowMe/services/payment"
	"github.com/founoun2/FollowMe/services/targeting"
	"github.com/founoun2/FollowMe/services/task"

	"gorm.io/gorm"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		gen.Module,
		db.Module,
		redis.Module,
		pkgasynq.Client,
		sequence.Module,
		otelcol.Module,
		profiling.Module,
		featureflags.Module,
		minio.Module,
		middleware.Module,
		health.Module,
		fx.Invoke(migrate),
		targeting.Module,
		account.Module,
		auth.Module,
		ledger.Module,
		campaign.Module,
		task.Module,
		engagement.Module,
		payment.Module,
		advice.Module,
		server.ProvideHTTPServer,
		servicediscover.Module,
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

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&account.User{},
		&ledger.Transaction{},
		&campaign.Campaign{},
		&task.Task{},
		&task.UserTask{},
	)
}
