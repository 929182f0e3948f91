package payment

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
	"github.com/founoun2/FollowMe/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *ledger.Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &account.User{}, &ledger.Transaction{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	svc := NewService(ServiceParams{DB: db, Ledger: ledgerSvc})

	return svc, ledgerSvc, db
}

func TestListPackagesDefaultsToUSD(t *testing.T) {
	svc, _, _ := newTestService(t)

	localized, err := svc.ListPackages(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, localized, 3)
	require.Equal(t, "USD", localized[0].Currency)
	require.Equal(t, 4.99, localized[0].Price)
	require.Equal(t, int64(100), localized[0].Coins)
	require.True(t, localized[1].Popular)
}

func TestListPackagesLocalizes(t *testing.T) {
	svc, _, db := newTestService(t)

	require.NoError(t, db.Create(&account.User{
		ID:       "u1",
		Username: "user-u1",
		Email:    "u1@example.com",
		Country:  "France",
	}).Error)

	localized, err := svc.ListPackages(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "EUR", localized[0].Currency)
	require.Equal(t, 4.59, localized[0].Price)
}

func TestConfirmPurchaseCreditsCoins(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&account.User{
		ID:       "u1",
		Username: "user-u1",
		Email:    "u1@example.com",
	}).Error)

	result, err := svc.ConfirmPurchase(ctx, "u1", PurchaseRequest{
		PackageID: "starter",
		OrderID:   "PAYPAL-123",
		PayerName: "Jordan",
	})
	require.NoError(t, err)
	require.Equal(t, int64(100), result.Coins)
	require.Equal(t, ledger.TypePurchase, result.Transaction.Type)
	require.Equal(t, "Purchase via PayPal (Jordan)", result.Transaction.Description)

	balance, err := ledgerSvc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)
}

func TestConfirmPurchaseIsIdempotentPerOrder(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&account.User{
		ID:       "u1",
		Username: "user-u1",
		Email:    "u1@example.com",
	}).Error)

	_, err := svc.ConfirmPurchase(ctx, "u1", PurchaseRequest{PackageID: "starter", OrderID: "PAYPAL-123"})
	require.NoError(t, err)

	_, err = svc.ConfirmPurchase(ctx, "u1", PurchaseRequest{PackageID: "starter", OrderID: "PAYPAL-123"})
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusConflict, be.Status())

	balance, err := ledgerSvc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)
}

func TestConfirmPurchaseUnknownPackage(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ConfirmPurchase(context.Background(), "u1", PurchaseRequest{PackageID: "mega", OrderID: "x"})
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestConfirmPurchaseRequiresOrder(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ConfirmPurchase(context.Background(), "u1", PurchaseRequest{PackageID: "starter"})
	require.Error(t, err)
}
