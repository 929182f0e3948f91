package task

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/founoun2/FollowMe/pkg/config"
	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/services/account"
	"github.com/founoun2/FollowMe/services/campaign"
	"github.com/founoun2/FollowMe/services/ledger"
	"github.com/founoun2/FollowMe/services/targeting"
	"github.com/founoun2/FollowMe/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc       *Service
	campaigns *campaign.Service
	ledger    *ledger.Service
	db        *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &account.User{}, &ledger.Transaction{}, &campaign.Campaign{}, &Task{}, &UserTask{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	evaluator, err := targeting.NewEvaluator()
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	campaignSvc := campaign.NewService(campaign.ServiceParams{DB: db, Node: node, Ledger: ledgerSvc, Evaluator: evaluator})
	svc := NewService(ServiceParams{
		DB:        db,
		Node:      node,
		Config:    &config.Config{},
		Ledger:    ledgerSvc,
		Campaigns: campaignSvc,
		Evaluator: evaluator,
	})
	campaignSvc.SetCatalog(svc)

	return &fixture{svc: svc, campaigns: campaignSvc, ledger: ledgerSvc, db: db}
}

func (f *fixture) seedUser(t *testing.T, id, country string, credits int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&account.User{
		ID:         id,
		Username:   "user-" + id,
		Email:      id + "@example.com",
		Country:    country,
		Reputation: account.InitialReputation,
	}).Error)

	if credits > 0 {
		_, err := f.ledger.Credit(context.Background(), ledger.EntryRequest{
			UserID: id,
			Type:   ledger.TypePurchase,
			Amount: credits,
		})
		require.NoError(t, err)
	}
}

// seedCampaign publishes a campaign row and its feed task directly, bypassing
// the ledger charge.
func (f *fixture) seedCampaign(t *testing.T, owner, expression string, reward, total int64) *campaign.Campaign {
	t.Helper()

	c := &campaign.Campaign{
		ID:                  "c-" + owner + "-" + expression,
		UserID:              owner,
		Platform:            campaign.PlatformInstagram,
		Type:                campaign.ActionLike,
		TargetURL:           "https://instagram.com/p/abc",
		Country:             "Worldwide",
		TargetingExpression: expression,
		Reward:              reward,
		CostPerAction:       reward,
		TotalRequested:      total,
		Status:              campaign.StatusActive,
	}
	require.NoError(t, f.db.Create(c).Error)
	require.NoError(t, f.svc.CreateForCampaign(context.Background(), c))

	return c
}

func TestFeedExcludesOwnCampaigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "worker", "Worldwide", 0)
	f.seedCampaign(t, "owner", "", 2, 50)

	feed, err := f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.Equal(t, int64(2), feed[0].Reward)

	feed, err = f.svc.Feed(ctx, "owner")
	require.NoError(t, err)
	require.Empty(t, feed)
}

func TestFeedHonorsTargeting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "french", "France", 0)
	f.seedUser(t, "other", "Brazil", 0)
	f.seedCampaign(t, "owner", `user.country == "France"`, 2, 50)

	feed, err := f.svc.Feed(ctx, "french")
	require.NoError(t, err)
	require.Len(t, feed, 1)

	feed, err = f.svc.Feed(ctx, "other")
	require.NoError(t, err)
	require.Empty(t, feed)
}

func TestFeedHidesPausedCampaigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "worker", "Worldwide", 0)
	c := f.seedCampaign(t, "owner", "", 2, 50)

	require.NoError(t, f.db.Model(&campaign.Campaign{}).Where("id = ?", c.ID).Update("status", campaign.StatusPaused).Error)

	feed, err := f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	require.Empty(t, feed)
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "worker", "Worldwide", 0)
	f.seedCampaign(t, "owner", "", 2, 50)

	feed, err := f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	taskID := feed[0].ID

	first, err := f.svc.Start(ctx, "worker", taskID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, first.Status)

	second, err := f.svc.Start(ctx, "worker", taskID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestVerifyAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "worker", "Worldwide", 0)
	c := f.seedCampaign(t, "owner", "", 3, 2)

	feed, err := f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	taskID := feed[0].ID

	ut, err := f.svc.Verify(ctx, "worker", taskID)
	require.NoError(t, err)
	require.Equal(t, StatusVerifying, ut.Status)

	require.NoError(t, f.svc.Complete(ctx, "worker", taskID))

	balance, err := f.ledger.GetBalance(ctx, "worker")
	require.NoError(t, err)
	require.Equal(t, int64(3), balance)

	var worker account.User
	require.NoError(t, f.db.First(&worker, "id = ?", "worker").Error)
	require.Equal(t, account.InitialReputation+1, worker.Reputation)

	current, err := f.campaigns.Get(ctx, "owner", c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), current.CompletedCount)

	// a verifying or completed task leaves the feed
	feed, err = f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	require.Empty(t, feed)
}

func TestCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "worker", "Worldwide", 0)
	c := f.seedCampaign(t, "owner", "", 3, 50)

	feed, err := f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	taskID := feed[0].ID

	_, err = f.svc.Verify(ctx, "worker", taskID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Complete(ctx, "worker", taskID))
	require.NoError(t, f.svc.Complete(ctx, "worker", taskID))

	balance, err := f.ledger.GetBalance(ctx, "worker")
	require.NoError(t, err)
	require.Equal(t, int64(3), balance)

	current, err := f.campaigns.Get(ctx, "owner", c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), current.CompletedCount)
}

func TestLastCompletionClosesCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "w1", "Worldwide", 0)
	f.seedUser(t, "w2", "Worldwide", 0)
	c := f.seedCampaign(t, "owner", "", 2, 2)

	for _, worker := range []string{"w1", "w2"} {
		feed, err := f.svc.Feed(ctx, worker)
		require.NoError(t, err)
		require.Len(t, feed, 1)

		_, err = f.svc.Verify(ctx, worker, feed[0].ID)
		require.NoError(t, err)
		require.NoError(t, f.svc.Complete(ctx, worker, feed[0].ID))
	}

	current, err := f.campaigns.Get(ctx, "owner", c.ID)
	require.NoError(t, err)
	require.Equal(t, campaign.StatusCompleted, current.Status)
}

func TestSkipHidesTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "worker", "Worldwide", 0)
	f.seedCampaign(t, "owner", "", 2, 50)

	feed, err := f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	taskID := feed[0].ID

	ut, err := f.svc.Skip(ctx, "worker", taskID)
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, ut.Status)

	feed, err = f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	require.Empty(t, feed)

	// skipping pays nothing
	balance, err := f.ledger.GetBalance(ctx, "worker")
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestReportRequiresValidReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "worker", "Worldwide", 0)
	f.seedCampaign(t, "owner", "", 2, 50)

	feed, err := f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	taskID := feed[0].ID

	_, err = f.svc.Report(ctx, "worker", taskID, "nonsense")
	require.Error(t, err)

	ut, err := f.svc.Report(ctx, "worker", taskID, ReasonBroken)
	require.NoError(t, err)
	require.Equal(t, StatusReported, ut.Status)
	require.Equal(t, ReasonBroken, ut.ReportReason)
}

func TestCompleteUnknownUserTask(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Complete(context.Background(), "worker", "missing")
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestRemoveForCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "worker", "Worldwide", 0)
	c := f.seedCampaign(t, "owner", "", 2, 50)

	require.NoError(t, f.svc.RemoveForCampaign(ctx, c.ID))

	feed, err := f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	require.Empty(t, feed)
}

func TestCompleteRollsBackOnSettlementFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "owner", "Worldwide", 0)
	f.seedUser(t, "worker", "Worldwide", 0)
	c := f.seedCampaign(t, "owner", "", 3, 2)

	feed, err := f.svc.Feed(ctx, "worker")
	require.NoError(t, err)
	taskID := feed[0].ID

	_, err = f.svc.Verify(ctx, "worker", taskID)
	require.NoError(t, err)

	// the first campaign update fails as a transient glitch
	failOnce := true
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("campaign_update_glitch", func(tx *gorm.DB) {
		if failOnce && tx.Statement.Table == "campaigns" {
			failOnce = false
			_ = tx.AddError(errors.New("connection reset"))
		}
	}))

	require.Error(t, f.svc.Complete(ctx, "worker", taskID))

	// the status flip rolled back with the rest of the settlement
	var ut UserTask
	require.NoError(t, f.db.First(&ut, "user_id = ? AND task_id = ?", "worker", taskID).Error)
	require.Equal(t, StatusVerifying, ut.Status)

	var worker account.User
	require.NoError(t, f.db.First(&worker, "id = ?", "worker").Error)
	require.Equal(t, account.InitialReputation, worker.Reputation)

	// the retry settles everything exactly once
	require.NoError(t, f.svc.Complete(ctx, "worker", taskID))

	balance, err := f.ledger.GetBalance(ctx, "worker")
	require.NoError(t, err)
	require.Equal(t, int64(3), balance)

	require.NoError(t, f.db.First(&worker, "id = ?", "worker").Error)
	require.Equal(t, account.InitialReputation+1, worker.Reputation)

	current, err := f.campaigns.Get(ctx, "owner", c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), current.CompletedCount)
}
