package campaign

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/services/account"
	"github.com/founoun2/FollowMe/services/ledger"
	"github.com/founoun2/FollowMe/services/targeting"
	"github.com/founoun2/FollowMe/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	verifyHost = func(string) error { return nil }
}

func newTestService(t *testing.T) (*Service, *ledger.Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &account.User{}, &ledger.Transaction{}, &Campaign{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	evaluator, err := targeting.NewEvaluator()
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	svc := NewService(ServiceParams{DB: db, Node: node, Ledger: ledgerSvc, Evaluator: evaluator})

	return svc, ledgerSvc, db
}

func seedUser(t *testing.T, db *gorm.DB, ledgerSvc *ledger.Service, id string, credits int64) {
	t.Helper()
	require.NoError(t, db.Create(&account.User{
		ID:       id,
		Username: "user-" + id,
		Email:    id + "@example.com",
	}).Error)

	if credits > 0 {
		_, err := ledgerSvc.Credit(context.Background(), ledger.EntryRequest{
			UserID: id,
			Type:   ledger.TypePurchase,
			Amount: credits,
		})
		require.NoError(t, err)
	}
}

func TestCreateWorldwideCampaign(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()
	seedUser(t, db, ledgerSvc, "u1", 150)

	c, err := svc.Create(ctx, "u1", CreateCampaignRequest{
		Platform:  PlatformInstagram,
		Type:      ActionLike,
		TargetURL: "https://instagram.com/p/abc",
		Budget:    100,
		Reward:    2,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), c.CostPerAction)
	require.Equal(t, int64(50), c.TotalRequested)
	require.Equal(t, StatusActive, c.Status)
	require.Equal(t, "Worldwide", c.Country)

	// the full quantity was charged up front
	balance, err := ledgerSvc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
}

func TestCreateGeoTargetedCampaign(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()
	seedUser(t, db, ledgerSvc, "u1", 150)

	c, err := svc.Create(ctx, "u1", CreateCampaignRequest{
		Platform:  PlatformTikTok,
		Type:      ActionFollow,
		TargetURL: "https://tiktok.com/@someone",
		Country:   "France",
		Budget:    100,
		Reward:    2,
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), c.CostPerAction)
	require.Equal(t, int64(33), c.TotalRequested)

	// 33 * 3 = 99 charged, not the raw budget of 100
	balance, err := ledgerSvc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(51), balance)
}

func TestCreateRejectsTinyBudget(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	seedUser(t, db, ledgerSvc, "u1", 150)

	_, err := svc.Create(context.Background(), "u1", CreateCampaignRequest{
		Platform:  PlatformInstagram,
		Type:      ActionLike,
		TargetURL: "https://instagram.com/p/abc",
		Country:   "France",
		Budget:    2,
		Reward:    2,
	})
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Status())
}

func TestCreateInsufficientCredits(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	seedUser(t, db, ledgerSvc, "u1", 50)

	_, err := svc.Create(context.Background(), "u1", CreateCampaignRequest{
		Platform:  PlatformInstagram,
		Type:      ActionLike,
		TargetURL: "https://instagram.com/p/abc",
		Budget:    100,
		Reward:    2,
	})
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Status())
}

func TestCreateRejectsBadURL(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "u1", CreateCampaignRequest{
		Platform:  PlatformInstagram,
		Type:      ActionLike,
		TargetURL: "not-a-url",
		Budget:    100,
		Reward:    2,
	})
	require.Error(t, err)
}

func TestCreateRejectsBrokenTargeting(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	seedUser(t, db, ledgerSvc, "u1", 150)

	_, err := svc.Create(context.Background(), "u1", CreateCampaignRequest{
		Platform:            PlatformInstagram,
		Type:                ActionLike,
		TargetURL:           "https://instagram.com/p/abc",
		Budget:              100,
		Reward:              2,
		TargetingExpression: "user.country ==",
	})
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusValidationFailed, be.Status())
}

func TestToggle(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()
	seedUser(t, db, ledgerSvc, "u1", 150)

	c, err := svc.Create(ctx, "u1", CreateCampaignRequest{
		Platform:  PlatformInstagram,
		Type:      ActionLike,
		TargetURL: "https://instagram.com/p/abc",
		Budget:    100,
		Reward:    2,
	})
	require.NoError(t, err)

	toggled, err := svc.Toggle(ctx, "u1", c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, toggled.Status)

	toggled, err = svc.Toggle(ctx, "u1", c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, toggled.Status)

	require.NoError(t, db.Model(&Campaign{}).Where("id = ?", c.ID).Update("status", StatusCompleted).Error)

	_, err = svc.Toggle(ctx, "u1", c.ID)
	require.Error(t, err)
}

func TestDeleteRefundsRemaining(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()
	seedUser(t, db, ledgerSvc, "u1", 100)

	c, err := svc.Create(ctx, "u1", CreateCampaignRequest{
		Platform:  PlatformInstagram,
		Type:      ActionLike,
		TargetURL: "https://instagram.com/p/abc",
		Budget:    100,
		Reward:    2,
	})
	require.NoError(t, err)
	require.Equal(t, int64(50), c.TotalRequested)

	// 10 actions fulfilled, 40 remain
	require.NoError(t, db.Model(&Campaign{}).Where("id = ?", c.ID).Update("completed_count", 10).Error)

	require.NoError(t, svc.Delete(ctx, "u1", c.ID))

	balance, err := ledgerSvc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(80), balance)

	var refund ledger.Transaction
	require.NoError(t, db.Where("user_id = ? AND type = ?", "u1", ledger.TypeRefund).First(&refund).Error)
	require.Equal(t, int64(80), refund.Amount)

	gone, err := svc.campaigns.FindOne(ctx, &Campaign{ID: c.ID})
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestRecordFulfillmentCompletesCampaign(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()
	seedUser(t, db, ledgerSvc, "u1", 10)

	c, err := svc.Create(ctx, "u1", CreateCampaignRequest{
		Platform:  PlatformYouTube,
		Type:      ActionView,
		TargetURL: "https://youtube.com/watch?v=abc",
		Budget:    4,
		Reward:    2,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), c.TotalRequested)

	require.NoError(t, svc.RecordFulfillment(ctx, c.ID))

	current, err := svc.Get(ctx, "u1", c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), current.CompletedCount)
	require.Equal(t, StatusActive, current.Status)

	require.NoError(t, svc.RecordFulfillment(ctx, c.ID))

	current, err = svc.Get(ctx, "u1", c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), current.CompletedCount)
	require.Equal(t, StatusCompleted, current.Status)
}

func TestGetWrongOwner(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()
	seedUser(t, db, ledgerSvc, "u1", 150)

	c, err := svc.Create(ctx, "u1", CreateCampaignRequest{
		Platform:  PlatformInstagram,
		Type:      ActionLike,
		TargetURL: "https://instagram.com/p/abc",
		Budget:    100,
		Reward:    2,
	})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "someone-else", c.ID)
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}
