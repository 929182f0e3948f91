package campaign

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/founoun2/FollowMe/pkg/db/option"
	"github.com/founoun2/FollowMe/pkg/dns"
	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/pkg/repository"
	"github.com/founoun2/FollowMe/pkg/sequence"
	"github.com/founoun2/FollowMe/services/ledger"
	"github.com/founoun2/FollowMe/services/targeting"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubbed in tests to keep them off the network
var verifyHost = dns.VerifyHostResolves

// TaskCatalog mirrors campaigns into the task feed. Implemented by the task
// service and injected to avoid an import cycle.
type TaskCatalog interface {
	CreateForCampaign(ctx context.Context, c *Campaign) error
	RemoveForCampaign(ctx context.Context, campaignID string) error
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	seq       sequence.Generator
	ledger    *ledger.Service
	evaluator *targeting.Evaluator
	catalog   TaskCatalog

	campaigns repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Seq       sequence.Generator `optional:"true"`
	Ledger    *ledger.Service
	Evaluator *targeting.Evaluator
	Catalog   TaskCatalog `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		seq:       p.Seq,
		ledger:    p.Ledger,
		evaluator: p.Evaluator,
		catalog:   p.Catalog,

		campaigns: repository.ProvideStore[Campaign](p.DB),
	}
}

// SetCatalog wires the task catalog after construction. The task service
// depends on this service for fulfillment, so constructor injection would
// form a cycle.
func (s *Service) SetCatalog(catalog TaskCatalog) {
	s.catalog = catalog
}

type CreateCampaignRequest struct {
	Platform            Platform   `json:"platform"`
	Type                ActionType `json:"type"`
	TargetURL           string     `json:"target_url"`
	Description         string     `json:"description"`
	Country             string     `json:"country"`
	Budget              int64      `json:"budget"`
	Reward              int64      `json:"reward"`
	TargetingExpression string     `json:"targeting_expression"`
	ThumbnailURL        string     `json:"thumbnail_url"`
}

// Create charges the full quantity up front: quantity * costPerAction is
// debited before the campaign goes live.
func (s *Service) Create(ctx context.Context, userID string, req CreateCampaignRequest) (*Campaign, error) {
	span := trace.SpanFromContext(ctx)
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("user_id", userID),
	}

	if !validActionType(req.Type) {
		return nil, errutil.BadRequest("unsupported action type", nil)
	}
	if req.Platform == "" {
		return nil, errutil.BadRequest("platform is required", nil)
	}
	if req.Reward < 1 {
		return nil, errutil.ValidationFailed("reward must be at least 1", nil)
	}
	if req.Budget < 1 {
		return nil, errutil.ValidationFailed("budget must be at least 1", nil)
	}

	parsed, err := url.Parse(req.TargetURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errutil.ValidationFailed("target_url must be a valid http(s) URL", nil)
	}

	// best-effort; an unreachable resolver must not block campaign creation
	if err := verifyHost(parsed.Hostname()); err != nil {
		zap.L().With(opts...).Warn("target host did not resolve", zap.String("host", parsed.Hostname()), zap.Error(err))
	}

	if req.TargetingExpression != "" {
		if err := s.evaluator.Validate(req.TargetingExpression); err != nil {
			return nil, errutil.ValidationFailed("invalid targeting expression", err)
		}
	}

	country := req.Country
	if country == "" {
		country = "Worldwide"
	}

	costPerAction := CostPerAction(req.Reward, country)
	totalRequested := req.Budget / costPerAction
	if totalRequested < 1 {
		return nil, errutil.UnprocessableEntity("budget is below the cost of a single action", nil)
	}
	totalCost := totalRequested * costPerAction

	code := ""
	if s.seq != nil {
		if code, err = s.seq.NextCampaignCode(ctx); err != nil {
			zap.L().With(opts...).Warn("failed to generate campaign code", zap.Error(err))
			code = ""
		}
	}

	c := &Campaign{
		ID:                  s.node.Generate().String(),
		UserID:              userID,
		Code:                code,
		Platform:            req.Platform,
		Type:                req.Type,
		TargetURL:           req.TargetURL,
		Description:         req.Description,
		Country:             country,
		TargetingExpression: req.TargetingExpression,
		ThumbnailURL:        req.ThumbnailURL,
		Reward:              req.Reward,
		CostPerAction:       costPerAction,
		TotalRequested:      totalRequested,
		Status:              StatusActive,
	}

	// The debit enforces the balance; on a later failure the charge is
	// compensated with a refund entry.
	if _, err := s.ledger.Debit(ctx, ledger.EntryRequest{
		UserID:      userID,
		Amount:      totalCost,
		Description: fmt.Sprintf("Campaign: %s %s", c.Platform, c.Type),
		ReferenceID: c.ID,
		Metadata:    map[string]string{"campaign_id": c.ID},
	}); err != nil {
		return nil, err
	}

	if err := s.campaigns.Create(ctx, c); err != nil {
		zap.L().With(opts...).Error("failed to create campaign", zap.Error(err))
		s.compensate(ctx, c, totalCost)
		return nil, err
	}

	if s.catalog != nil {
		if err := s.catalog.CreateForCampaign(ctx, c); err != nil {
			zap.L().With(opts...).Error("failed to publish campaign task", zap.Error(err))
			_ = s.campaigns.Delete(ctx, &Campaign{ID: c.ID})
			s.compensate(ctx, c, totalCost)
			return nil, err
		}
	}

	return c, nil
}

func (s *Service) compensate(ctx context.Context, c *Campaign, amount int64) {
	if _, err := s.ledger.Credit(ctx, ledger.EntryRequest{
		UserID:      c.UserID,
		Type:        ledger.TypeRefund,
		Amount:      amount,
		Description: fmt.Sprintf("Refund: %s Campaign", c.Platform),
		Metadata:    map[string]string{"campaign_id": c.ID},
	}); err != nil {
		zap.L().Error("failed to compensate campaign charge",
			zap.String("campaign_id", c.ID), zap.Int64("amount", amount), zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, userID, campaignID string) (*Campaign, error) {
	c, err := s.campaigns.FindOne(ctx, &Campaign{ID: campaignID, UserID: userID})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, userID string, status Status) ([]*Campaign, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var campaigns []*Campaign
	if err := q.Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

// Toggle flips Active and Paused. Completed campaigns stay completed.
func (s *Service) Toggle(ctx context.Context, userID, campaignID string) (*Campaign, error) {
	c, err := s.Get(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case StatusActive:
		c.Status = StatusPaused
	case StatusPaused:
		c.Status = StatusActive
	default:
		return nil, errutil.UnprocessableEntity("completed campaigns cannot be toggled", nil)
	}

	if err := s.campaigns.Update(ctx, c.ID, map[string]any{"status": c.Status, "updated_at": time.Now()}); err != nil {
		return nil, err
	}

	return c, nil
}

type EditCampaignRequest struct {
	Description *string `json:"description"`
	TargetURL   *string `json:"target_url"`
}

// Edit mutates only the fields that do not change the economics.
func (s *Service) Edit(ctx context.Context, userID, campaignID string, req EditCampaignRequest) (*Campaign, error) {
	c, err := s.Get(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Description != nil {
		updates["description"] = *req.Description
		c.Description = *req.Description
	}
	if req.TargetURL != nil {
		parsed, err := url.Parse(*req.TargetURL)
		if err != nil || parsed.Host == "" {
			return nil, errutil.ValidationFailed("target_url must be a valid URL", nil)
		}
		updates["target_url"] = *req.TargetURL
		c.TargetURL = *req.TargetURL
	}

	if len(updates) == 0 {
		return c, nil
	}
	updates["updated_at"] = time.Now()

	if err := s.campaigns.Update(ctx, c.ID, updates); err != nil {
		return nil, err
	}

	return c, nil
}

// Delete refunds the unfulfilled remainder and removes the campaign.
func (s *Service) Delete(ctx context.Context, userID, campaignID string) error {
	c, err := s.Get(ctx, userID, campaignID)
	if err != nil {
		return err
	}

	if remaining := c.Remaining(); remaining > 0 {
		if _, err := s.ledger.Credit(ctx, ledger.EntryRequest{
			UserID:      userID,
			Type:        ledger.TypeRefund,
			Amount:      remaining * c.CostPerAction,
			Description: fmt.Sprintf("Refund: %s Campaign", c.Platform),
			Metadata:    map[string]string{"campaign_id": c.ID},
		}); err != nil {
			return err
		}
	}

	if s.catalog != nil {
		if err := s.catalog.RemoveForCampaign(ctx, c.ID); err != nil {
			zap.L().Warn("failed to remove campaign task", zap.String("campaign_id", c.ID), zap.Error(err))
		}
	}

	return s.campaigns.Delete(ctx, &Campaign{ID: c.ID})
}

// RecordFulfillment increments the completed count and closes the campaign
// once the last requested action lands.
func (s *Service) RecordFulfillment(ctx context.Context, campaignID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.RecordFulfillmentTx(ctx, tx, campaignID)
	})
}

// RecordFulfillmentTx runs the increment inside the caller's transaction so
// a task settlement commits or rolls back as one unit.
func (s *Service) RecordFulfillmentTx(ctx context.Context, tx *gorm.DB, campaignID string) error {
	campaignsTx := s.campaigns.WithTrx(tx)

	c, err := campaignsTx.FindOne(ctx, &Campaign{ID: campaignID}, option.WithLockingUpdate())
	if err != nil {
		return err
	}
	if c == nil {
		return errutil.NotFound("campaign not found", nil)
	}

	updates := map[string]any{
		"completed_count": gorm.Expr("completed_count + 1"),
		"updated_at":      time.Now(),
	}
	if c.CompletedCount+1 >= c.TotalRequested {
		updates["status"] = StatusCompleted
	}

	return campaignsTx.Update(ctx, c.ID, updates)
}
