package engagement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/founoun2/FollowMe/pkg/asynq"

	hibiken "github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues the nightly ad-counter reset shortly after UTC midnight.
type Scheduler struct {
	client *hibiken.Client
}

type SchedulerParams struct {
	fx.In
	Client *hibiken.Client `optional:"true"`
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{client: p.Client}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	if s.client == nil {
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started ad quota reset scheduler")

	for {
		now := time.Now().UTC()
		next := nextRunTime(now, 0, 5)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	day := time.Now().UTC().Format("2006-01-02")
	payload, _ := json.Marshal(asynq.AdQuotaResetPayload{Day: day})

	if _, err := s.client.EnqueueContext(ctx,
		hibiken.NewTask(asynq.AdQuotaReset, payload),
		hibiken.Queue("low"),
		hibiken.TaskID("adreset:"+day),
	); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue ad quota reset", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] enqueued ad quota reset", zap.String("day", day))
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
