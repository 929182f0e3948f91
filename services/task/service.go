package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/founoun2/FollowMe/pkg/asynq"
	"github.com/founoun2/FollowMe/pkg/config"
	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/pkg/repository"
	"github.com/founoun2/FollowMe/pkg/sequence"
	"github.com/founoun2/FollowMe/services/account"
	"github.com/founoun2/FollowMe/services/campaign"
	"github.com/founoun2/FollowMe/services/ledger"
	"github.com/founoun2/FollowMe/services/targeting"

	"github.com/bwmarrin/snowflake"
	hibiken "github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	cfg       *config.Config
	seq       sequence.Generator
	client    *hibiken.Client
	ledger    *ledger.Service
	campaigns *campaign.Service
	evaluator *targeting.Evaluator

	tasks     repository.Repository[Task]
	userTasks repository.Repository[UserTask]
	users     repository.Repository[account.User]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Config    *config.Config
	Seq       sequence.Generator `optional:"true"`
	Client    *hibiken.Client    `optional:"true"`
	Ledger    *ledger.Service
	Campaigns *campaign.Service
	Evaluator *targeting.Evaluator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		cfg:       p.Config,
		seq:       p.Seq,
		client:    p.Client,
		ledger:    p.Ledger,
		campaigns: p.Campaigns,
		evaluator: p.Evaluator,

		tasks:     repository.ProvideStore[Task](p.DB),
		userTasks: repository.ProvideStore[UserTask](p.DB),
		users:     repository.ProvideStore[account.User](p.DB),
	}
}

// feedRow carries the task plus the campaign columns the feed filter needs.
type feedRow struct {
	Task
	OwnerID             string `gorm:"column:owner_id"`
	TargetingExpression string `gorm:"column:targeting_expression"`
}

// Feed returns the tasks the user can work on right now. A user never sees
// their own campaigns, tasks they already finished, skipped or reported, or
// tasks whose targeting expression rejects them.
func (s *Service) Feed(ctx context.Context, userID string) ([]*Task, error) {
	span := trace.SpanFromContext(ctx)
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("user_id", userID),
	}

	user, err := s.users.FindOne(ctx, &account.User{ID: userID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errutil.NotFound("user not found", nil)
	}

	var rows []*feedRow
	if err := s.db.WithContext(ctx).
		Table("tasks").
		Select("tasks.*, campaigns.user_id AS owner_id, campaigns.targeting_expression").
		Joins("JOIN campaigns ON campaigns.id = tasks.campaign_id").
		Where("campaigns.status = ?", campaign.StatusActive).
		Where("campaigns.user_id <> ?", userID).
		Where("NOT EXISTS (SELECT 1 FROM user_tasks ut WHERE ut.task_id = tasks.id AND ut.user_id = ? AND ut.status <> ?)", userID, StatusPending).
		Order("tasks.created_at DESC").
		Scan(&rows).Error; err != nil {
		zap.L().With(opts...).Error("failed to query task feed", zap.Error(err))
		return nil, err
	}

	userCtx := map[string]any{
		"country":    user.Country,
		"language":   user.Language,
		"reputation": user.Reputation,
		"streak":     user.Streak,
	}

	feed := make([]*Task, 0, len(rows))
	for _, row := range rows {
		match, err := s.evaluator.Evaluate(row.TargetingExpression, map[string]any{
			"user": userCtx,
			"task": map[string]any{
				"platform": string(row.Platform),
				"type":     string(row.Type),
				"reward":   row.Reward,
				"country":  row.Country,
			},
		})
		if err != nil {
			// a broken expression hides the campaign instead of breaking the feed
			zap.L().With(opts...).Warn("targeting expression failed",
				zap.String("campaign_id", row.CampaignID), zap.Error(err))
			continue
		}
		if !match {
			continue
		}
		t := row.Task
		feed = append(feed, &t)
	}

	return feed, nil
}

// Start marks the task as in progress. Calling it twice is a no-op that
// returns the existing row.
func (s *Service) Start(ctx context.Context, userID, taskID string) (*UserTask, error) {
	t, err := s.tasks.FindOne(ctx, &Task{ID: taskID})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errutil.NotFound("task not found", nil)
	}

	existing, err := s.userTasks.FindOne(ctx, &UserTask{UserID: userID, TaskID: taskID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	ut := &UserTask{
		ID:     s.node.Generate().String(),
		UserID: userID,
		TaskID: taskID,
		Status: StatusPending,
	}
	if err := s.userTasks.Create(ctx, ut); err != nil {
		return nil, err
	}

	return ut, nil
}

// Verify moves a pending task into the verifying state and schedules the
// settlement after the verification delay. The status transition is an atomic
// update so a double submit schedules the settlement once.
func (s *Service) Verify(ctx context.Context, userID, taskID string) (*UserTask, error) {
	ut, err := s.Start(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	switch ut.Status {
	case StatusPending:
	case StatusVerifying:
		return ut, nil
	case StatusCompleted:
		return nil, errutil.Conflict("task already completed", nil)
	default:
		return nil, errutil.UnprocessableEntity("task is not available", nil)
	}

	res := s.db.WithContext(ctx).Model(&UserTask{}).
		Where("user_id = ? AND task_id = ? AND status = ?", userID, taskID, StatusPending).
		Updates(map[string]any{"status": StatusVerifying, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// lost the race; whoever won already scheduled the settlement
		return s.userTasks.FindOne(ctx, &UserTask{UserID: userID, TaskID: taskID})
	}
	ut.Status = StatusVerifying

	payload, _ := json.Marshal(asynq.VerifyTaskPayload{UserID: userID, TaskID: taskID})
	if s.client != nil {
		if _, err := s.client.EnqueueContext(ctx,
			hibiken.NewTask(asynq.TaskVerify, payload),
			hibiken.ProcessIn(s.cfg.Engagement.VerifyDelay),
			hibiken.Queue("critical"),
			hibiken.MaxRetry(5),
		); err != nil {
			zap.L().Error("failed to enqueue task verification",
				zap.String("user_id", userID), zap.String("task_id", taskID), zap.Error(err))
			return nil, errutil.Internal("failed to schedule verification", err)
		}
	}

	return ut, nil
}

// Complete settles a verified task: the worker earns the reward, gains a
// reputation point and the campaign's fulfillment counter advances. Safe to
// retry; the ledger reference and the status gate make it idempotent.
func (s *Service) Complete(ctx context.Context, userID, taskID string) error {
	ut, err := s.userTasks.FindOne(ctx, &UserTask{UserID: userID, TaskID: taskID})
	if err != nil {
		return err
	}
	if ut == nil {
		return errutil.NotFound("task was never started", nil)
	}
	if ut.Status == StatusCompleted {
		return nil
	}
	if ut.Status != StatusVerifying {
		return errutil.UnprocessableEntity("task is not awaiting verification", nil)
	}

	t, err := s.tasks.FindOne(ctx, &Task{ID: taskID})
	if err != nil {
		return err
	}
	if t == nil {
		return errutil.NotFound("task not found", nil)
	}

	if _, err := s.ledger.Credit(ctx, ledger.EntryRequest{
		UserID:      userID,
		Type:        ledger.TypeEarn,
		Amount:      t.Reward,
		Description: fmt.Sprintf("Task: %s %s", t.Platform, t.Type),
		ReferenceID: ut.ID,
		Metadata:    map[string]string{"task_id": t.ID, "campaign_id": t.CampaignID},
	}); err != nil {
		var be errutil.BaseError
		if !errors.As(err, &be) || be.Code != errutil.StatusConflict {
			return err
		}
		// already paid on a previous attempt, keep going
	}

	// the flip, the reputation gain and the fulfillment commit together; a
	// transient failure rolls everything back and the asynq retry replays it
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.WithContext(ctx).Model(&UserTask{}).
			Where("id = ? AND status = ?", ut.ID, StatusVerifying).
			Updates(map[string]any{"status": StatusCompleted, "completed_at": now, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost the race; the winner settles the side effects
			return nil
		}

		if err := tx.WithContext(ctx).Model(&account.User{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"reputation": gorm.Expr("reputation + ?", reputationPerTask),
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}

		if err := s.campaigns.RecordFulfillmentTx(ctx, tx, t.CampaignID); err != nil {
			var be errutil.BaseError
			if errors.As(err, &be) && be.Code == errutil.StatusNotFound {
				// campaign deleted while the task settled; the worker keeps the reward
				zap.L().Warn("campaign gone during settlement", zap.String("campaign_id", t.CampaignID))
				return nil
			}
			return err
		}

		return nil
	})
}

// Skip hides the task from the user's feed without payment.
func (s *Service) Skip(ctx context.Context, userID, taskID string) (*UserTask, error) {
	return s.closeOut(ctx, userID, taskID, StatusSkipped, "")
}

// Report flags the task and hides it from the user's feed.
func (s *Service) Report(ctx context.Context, userID, taskID string, reason ReportReason) (*UserTask, error) {
	if !validReportReason(reason) {
		return nil, errutil.BadRequest("unsupported report reason", nil)
	}
	return s.closeOut(ctx, userID, taskID, StatusReported, reason)
}

func (s *Service) closeOut(ctx context.Context, userID, taskID string, status Status, reason ReportReason) (*UserTask, error) {
	ut, err := s.Start(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	switch ut.Status {
	case StatusCompleted:
		return nil, errutil.Conflict("task already completed", nil)
	case StatusVerifying:
		return nil, errutil.Conflict("task is awaiting verification", nil)
	}

	updates := map[string]any{"status": status, "updated_at": time.Now()}
	if reason != "" {
		updates["report_reason"] = reason
	}
	if err := s.userTasks.Update(ctx, ut.ID, updates); err != nil {
		return nil, err
	}
	ut.Status = status
	ut.ReportReason = reason

	return ut, nil
}

// HandleVerify is the worker-side handler for scheduled settlements.
func (s *Service) HandleVerify(ctx context.Context, t *hibiken.Task) error {
	var payload asynq.VerifyTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, hibiken.SkipRetry)
	}

	return s.Complete(ctx, payload.UserID, payload.TaskID)
}

// CreateForCampaign publishes a campaign into the task feed.
func (s *Service) CreateForCampaign(ctx context.Context, c *campaign.Campaign) error {
	code := ""
	if s.seq != nil {
		var err error
		if code, err = s.seq.NextTaskCode(ctx); err != nil {
			zap.L().Warn("failed to generate task code", zap.Error(err))
			code = ""
		}
	}

	return s.tasks.Create(ctx, &Task{
		ID:           s.node.Generate().String(),
		Code:         code,
		CampaignID:   c.ID,
		Platform:     c.Platform,
		Type:         c.Type,
		Reward:       c.Reward,
		Description:  c.Description,
		TargetURL:    c.TargetURL,
		ThumbnailURL: c.ThumbnailURL,
		Country:      c.Country,
	})
}

// RemoveForCampaign pulls a campaign's task out of the feed.
func (s *Service) RemoveForCampaign(ctx context.Context, campaignID string) error {
	return s.tasks.Delete(ctx, &Task{CampaignID: campaignID})
}
