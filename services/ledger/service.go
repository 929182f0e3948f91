package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/founoun2/FollowMe/pkg/db/option"
	"github.com/founoun2/FollowMe/pkg/db/pagination"
	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/pkg/repository"
	"github.com/founoun2/FollowMe/pkg/sequence"
	"github.com/founoun2/FollowMe/services/account"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service owns every credit mutation. Callers never touch users.credits
// directly; the balance stays equal to the signed sum of transactions by
// construction.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator

	transactions repository.Repository[Transaction]
	users        repository.Repository[account.User]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
	Seq  sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		seq:  p.Seq,

		transactions: repository.ProvideStore[Transaction](p.DB),
		users:        repository.ProvideStore[account.User](p.DB),
	}
}

type EntryRequest struct {
	UserID      string
	Type        TransactionType
	Amount      int64
	Description string
	ReferenceID string
	Metadata    map[string]string
}

// Credit appends a positive entry and raises the balance.
func (s *Service) Credit(ctx context.Context, req EntryRequest) (*Transaction, error) {
	span := trace.SpanFromContext(ctx)
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("user_id", req.UserID),
	}

	if !ValidCreditType(req.Type) {
		return nil, errutil.BadRequest("unsupported credit type", nil)
	}
	if req.Amount <= 0 {
		return nil, errutil.BadRequest("amount must be > 0", nil)
	}

	// fast path only; the unique index on (user_id, reference_id) is the
	// real safeguard against a concurrent duplicate
	if req.ReferenceID != "" {
		if exist, _ := s.transactions.FindOne(ctx, &Transaction{UserID: req.UserID, ReferenceID: &req.ReferenceID}); exist != nil {
			zap.L().With(opts...).Warn("reference_id already exists", zap.String("reference_id", req.ReferenceID))
			return nil, errutil.Conflict("reference_id already exists", nil)
		}
	}

	var entry *Transaction
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.appendEntry(ctx, tx, req, req.Amount)
		return err
	}); err != nil {
		if req.ReferenceID != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
			zap.L().With(opts...).Warn("reference_id already exists", zap.String("reference_id", req.ReferenceID))
			return nil, errutil.Conflict("reference_id already exists", err)
		}
		zap.L().With(opts...).Error("failed to process credit", zap.Error(err))
		return nil, err
	}

	return entry, nil
}

// Debit appends a spend entry. The balance check happens here, inside the
// row lock, so a balance can never go negative.
func (s *Service) Debit(ctx context.Context, req EntryRequest) (*Transaction, error) {
	span := trace.SpanFromContext(ctx)
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("user_id", req.UserID),
	}

	if req.Amount <= 0 {
		return nil, errutil.BadRequest("amount must be > 0", nil)
	}
	req.Type = TypeSpend

	var entry *Transaction
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.appendEntry(ctx, tx, req, -req.Amount)
		return err
	}); err != nil {
		if req.ReferenceID != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
			zap.L().With(opts...).Warn("reference_id already exists", zap.String("reference_id", req.ReferenceID))
			return nil, errutil.Conflict("reference_id already exists", err)
		}
		zap.L().With(opts...).Warn("failed to process debit", zap.Error(err))
		return nil, err
	}

	return entry, nil
}

// appendEntry locks the user row, validates the resulting balance, chains the
// new entry onto the previous hash and applies the delta.
func (s *Service) appendEntry(ctx context.Context, tx *gorm.DB, req EntryRequest, delta int64) (*Transaction, error) {
	usersTx := s.users.WithTrx(tx)
	transactionsTx := s.transactions.WithTrx(tx)

	user, err := usersTx.FindOne(ctx, &account.User{ID: req.UserID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errutil.NotFound("user not found", nil)
	}

	if user.Credits+delta < 0 {
		return nil, errutil.UnprocessableEntity("insufficient credits", nil)
	}

	lastEntry, err := transactionsTx.FindOne(ctx, &Transaction{UserID: req.UserID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLockingUpdate(),
	)
	if err != nil {
		return nil, err
	}

	code := ""
	if s.seq != nil {
		if code, err = s.seq.NextTransactionCode(ctx); err != nil {
			zap.L().Warn("failed to generate transaction code", zap.Error(err))
			code = ""
		}
	}

	previousHash := genesisHash
	if lastEntry != nil {
		previousHash = lastEntry.Hash
	}

	var meta datatypes.JSON
	if len(req.Metadata) > 0 {
		metaBytes, _ := json.Marshal(req.Metadata)
		meta = datatypes.JSON(metaBytes)
	}

	var ref *string
	if req.ReferenceID != "" {
		ref = &req.ReferenceID
	}

	entry := &Transaction{
		ID:           s.node.Generate().String(),
		UserID:       req.UserID,
		Type:         req.Type,
		Amount:       req.Amount,
		Code:         code,
		ReferenceID:  ref,
		Description:  req.Description,
		PreviousHash: previousHash,
		Metadata:     meta,
		CreatedAt:    time.Now().UTC(),
	}
	entry.Hash = entry.GenerateHash()

	if err := transactionsTx.Create(ctx, entry); err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Model(&account.User{}).
		Where("id = ?", req.UserID).
		Updates(map[string]any{
			"credits":    gorm.Expr("credits + ?", delta),
			"updated_at": time.Now(),
		}).Error; err != nil {
		return nil, err
	}

	return entry, nil
}

func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	user, err := s.users.FindOne(ctx, &account.User{ID: userID})
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, errutil.NotFound("user not found", nil)
	}

	return user.Credits, nil
}

// ListTransactions returns entries newest first with cursor pagination.
func (s *Service) ListTransactions(ctx context.Context, userID string, page pagination.Pagination) ([]*Transaction, *pagination.PageInfo, error) {
	span := trace.SpanFromContext(ctx)

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}

	q := s.db.WithContext(ctx).Where("user_id = ?", userID)

	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		q = q.Where("created_at < ?", cursor.CreatedAt)
	}

	var entries []*Transaction
	if err := q.Order("created_at DESC").Limit(limit + 1).Find(&entries).Error; err != nil {
		zap.L().Error("failed to query transactions",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err))
		return nil, nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(entries, int32(limit), func(t *Transaction) string {
		encoded, _ := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
			ID:        t.ID,
		})
		return encoded
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, pageInfo, nil
}

// VerifyChain walks the user's entries oldest first and revalidates every
// hash link.
func (s *Service) VerifyChain(ctx context.Context, userID string) (bool, error) {
	entries, err := s.transactions.Find(ctx, &Transaction{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}),
	)
	if err != nil {
		return false, err
	}

	lastHash := genesisHash
	for _, entry := range entries {
		if entry.Hash != entry.GenerateHash() || entry.PreviousHash != lastHash {
			return false, nil
		}
		lastHash = entry.Hash
	}

	return true, nil
}
