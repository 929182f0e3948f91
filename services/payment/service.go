package payment

import (
	"context"
	"fmt"
	"math"

	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/pkg/repository"
	"github.com/founoun2/FollowMe/services/account"
	"github.com/founoun2/FollowMe/services/ledger"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	ledger *ledger.Service

	users repository.Repository[account.User]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		ledger: p.Ledger,

		users: repository.ProvideStore[account.User](p.DB),
	}
}

type LocalizedPackage struct {
	Package
	Currency string  `json:"currency"`
	Price    float64 `json:"price"`
}

// ListPackages returns the coin bundles priced in the caller's currency.
// Anonymous callers get USD.
func (s *Service) ListPackages(ctx context.Context, userID string) ([]LocalizedPackage, error) {
	cur := defaultCurrency
	if userID != "" {
		user, err := s.users.FindOne(ctx, &account.User{ID: userID})
		if err != nil {
			return nil, err
		}
		if user != nil {
			cur = currencyFor(user.Country)
		}
	}

	localized := make([]LocalizedPackage, 0, len(packages))
	for _, p := range packages {
		price := float64(p.PriceUSD) / 100 * cur.Rate
		localized = append(localized, LocalizedPackage{
			Package:  p,
			Currency: cur.Code,
			Price:    math.Round(price*100) / 100,
		})
	}

	return localized, nil
}

type PurchaseRequest struct {
	PackageID string `json:"package_id"`
	OrderID   string `json:"order_id"`
	PayerName string `json:"payer_name"`
}

type PurchaseResult struct {
	Coins       int64               `json:"coins"`
	Transaction *ledger.Transaction `json:"transaction"`
}

// ConfirmPurchase records a completed PayPal checkout. The order id is the
// ledger reference, so confirming the same order twice credits once.
func (s *Service) ConfirmPurchase(ctx context.Context, userID string, req PurchaseRequest) (*PurchaseResult, error) {
	if req.OrderID == "" {
		return nil, errutil.BadRequest("order_id is required", nil)
	}

	pkg, ok := packageByID(req.PackageID)
	if !ok {
		return nil, errutil.NotFound("unknown package", nil)
	}

	payer := req.PayerName
	if payer == "" {
		payer = "unknown"
	}

	entry, err := s.ledger.Credit(ctx, ledger.EntryRequest{
		UserID:      userID,
		Type:        ledger.TypePurchase,
		Amount:      pkg.Coins,
		Description: fmt.Sprintf("Purchase via PayPal (%s)", payer),
		ReferenceID: req.OrderID,
		Metadata:    map[string]string{"package_id": pkg.ID, "order_id": req.OrderID},
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("purchase confirmed",
		zap.String("user_id", userID),
		zap.String("package_id", pkg.ID),
		zap.String("order_id", req.OrderID),
		zap.Int64("coins", pkg.Coins),
	)

	return &PurchaseResult{Coins: pkg.Coins, Transaction: entry}, nil
}
