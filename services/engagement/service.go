package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/founoun2/FollowMe/pkg/asynq"
	"github.com/founoun2/FollowMe/pkg/config"
	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/pkg/featureflags"
	"github.com/founoun2/FollowMe/pkg/rediskey"
	"github.com/founoun2/FollowMe/pkg/repository"
	"github.com/founoun2/FollowMe/pkg/util"
	"github.com/founoun2/FollowMe/services/account"
	"github.com/founoun2/FollowMe/services/ledger"

	hibiken "github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Streak bonus curve: 10 base plus 2 per day of streak, capped at 50.
const (
	bonusBase     int64 = 10
	bonusPerDay   int64 = 2
	bonusCap      int64 = 50
	adRewardsFlag       = "ad_rewards_enabled"
)

type Service struct {
	db     *gorm.DB
	cfg    *config.Config
	rdb    *redis.Client
	flags  featureflags.FeatureFlag
	ledger *ledger.Service

	users repository.Repository[account.User]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
	Redis  *redis.Client            `optional:"true"`
	Flags  featureflags.FeatureFlag `optional:"true"`
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		cfg:    p.Config,
		rdb:    p.Redis,
		flags:  p.Flags,
		ledger: p.Ledger,

		users: repository.ProvideStore[account.User](p.DB),
	}
}

// adQuota is the number of rewarded ad watches allowed per UTC day.
func (s *Service) adQuota() int64 {
	if s.cfg.Engagement.RewardPerAd <= 0 {
		return 0
	}
	return s.cfg.Engagement.DailyAdCoinLimit / s.cfg.Engagement.RewardPerAd
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// nextStreak continues the streak only across consecutive UTC days.
func nextStreak(lastLogin *time.Time, streak int64, now time.Time) int64 {
	if lastLogin == nil {
		return 1
	}
	yesterday := now.UTC().AddDate(0, 0, -1)
	if sameUTCDay(*lastLogin, yesterday) {
		return streak + 1
	}
	return 1
}

func streakBonus(streak int64) int64 {
	bonus := bonusBase + streak*bonusPerDay
	if bonus > bonusCap {
		return bonusCap
	}
	return bonus
}

type DailyBonusStatus struct {
	ClaimedToday bool  `json:"claimed_today"`
	Streak       int64 `json:"streak"`
	NextBonus    int64 `json:"next_bonus"`
}

func (s *Service) GetDailyBonusStatus(ctx context.Context, userID string) (*DailyBonusStatus, error) {
	user, err := s.users.FindOne(ctx, &account.User{ID: userID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errutil.NotFound("user not found", nil)
	}

	now := time.Now().UTC()
	claimed := user.LastLoginAt != nil && sameUTCDay(*user.LastLoginAt, now)

	status := &DailyBonusStatus{
		ClaimedToday: claimed,
		Streak:       user.Streak,
	}
	if !claimed {
		status.NextBonus = streakBonus(nextStreak(user.LastLoginAt, user.Streak, now))
	}

	return status, nil
}

type DailyBonusResult struct {
	Streak int64 `json:"streak"`
	Bonus  int64 `json:"bonus"`
}

// ClaimDailyBonus grants the streak bonus at most once per UTC day. The
// ledger reference carries the day, so a concurrent double claim collapses
// into a single payout.
func (s *Service) ClaimDailyBonus(ctx context.Context, userID string) (*DailyBonusResult, error) {
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

	now := time.Now().UTC()
	if user.LastLoginAt != nil && sameUTCDay(*user.LastLoginAt, now) {
		return nil, errutil.Conflict("daily bonus already claimed", nil)
	}

	streak := nextStreak(user.LastLoginAt, user.Streak, now)
	bonus := streakBonus(streak)

	if _, err := s.ledger.Credit(ctx, ledger.EntryRequest{
		UserID:      userID,
		Type:        ledger.TypeBonus,
		Amount:      bonus,
		Description: fmt.Sprintf("Daily Streak Bonus (Day %d)", streak),
		ReferenceID: fmt.Sprintf("daily:%s:%s", userID, now.Format("2006-01-02")),
	}); err != nil {
		var be errutil.BaseError
		if errors.As(err, &be) && be.Code == errutil.StatusConflict {
			return nil, errutil.Conflict("daily bonus already claimed", nil)
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&account.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"streak":        streak,
			"last_login_at": now,
			"updated_at":    now,
		}).Error; err != nil {
		zap.L().With(opts...).Error("failed to advance streak", zap.Error(err))
		return nil, err
	}

	return &DailyBonusResult{Streak: streak, Bonus: bonus}, nil
}

type AdSession struct {
	SessionID string    `json:"session_id"`
	ReadyAt   time.Time `json:"ready_at"`
	Countdown int64     `json:"countdown_seconds"`
	Reward    int64     `json:"reward"`
}

// StartAdWatch opens a rewarded ad session. The reward can only be claimed
// after the countdown elapses, enforced server side via the session key.
func (s *Service) StartAdWatch(ctx context.Context, userID string) (*AdSession, error) {
	if s.flags != nil && !s.flags.IsEnabled(ctx, userID, adRewardsFlag, true) {
		return nil, errutil.Forbidden("rewarded ads are disabled", nil)
	}

	user, err := s.users.FindOne(ctx, &account.User{ID: userID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errutil.NotFound("user not found", nil)
	}

	now := time.Now().UTC()
	watches := user.AdWatchesToday
	if user.LastAdAt == nil || !sameUTCDay(*user.LastAdAt, now) {
		watches = 0
	}
	if watches >= s.adQuota() {
		return nil, errutil.TooManyRequest("daily ad limit reached", nil)
	}

	if s.rdb == nil {
		return nil, errutil.NotImplemented("rewarded ads are not configured", nil)
	}

	session := &AdSession{
		SessionID: util.GenerateSessionID(),
		ReadyAt:   now.Add(s.cfg.Engagement.AdCountdown),
		Countdown: int64(s.cfg.Engagement.AdCountdown.Seconds()),
		Reward:    s.cfg.Engagement.RewardPerAd,
	}

	key := rediskey.BuildAdSessionKey(userID, session.SessionID)
	ttl := s.cfg.Engagement.AdCountdown + 5*time.Minute
	if err := s.rdb.Set(ctx, key, strconv.FormatInt(session.ReadyAt.Unix(), 10), ttl).Err(); err != nil {
		return nil, errutil.Internal("failed to open ad session", err)
	}

	return session, nil
}

type AdReward struct {
	Reward         int64 `json:"reward"`
	WatchesToday   int64 `json:"watches_today"`
	WatchesAllowed int64 `json:"watches_allowed"`
}

// ClaimAdReward settles an ad session. The GETDEL makes each session single
// use, so replaying a claim cannot double pay.
func (s *Service) ClaimAdReward(ctx context.Context, userID, sessionID string) (*AdReward, error) {
	if s.rdb == nil {
		return nil, errutil.NotImplemented("rewarded ads are not configured", nil)
	}

	key := rediskey.BuildAdSessionKey(userID, sessionID)
	raw, err := s.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errutil.NotFound("ad session not found or already claimed", nil)
	}
	if err != nil {
		return nil, errutil.Internal("failed to read ad session", err)
	}

	readyUnix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errutil.Internal("corrupt ad session", err)
	}

	now := time.Now().UTC()
	if now.Before(time.Unix(readyUnix, 0)) {
		return nil, errutil.UnprocessableEntity("ad countdown has not finished", nil)
	}

	user, err := s.users.FindOne(ctx, &account.User{ID: userID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errutil.NotFound("user not found", nil)
	}

	watches := user.AdWatchesToday
	if user.LastAdAt == nil || !sameUTCDay(*user.LastAdAt, now) {
		watches = 0
	}
	if watches >= s.adQuota() {
		return nil, errutil.TooManyRequest("daily ad limit reached", nil)
	}

	reward := s.cfg.Engagement.RewardPerAd
	if _, err := s.ledger.Credit(ctx, ledger.EntryRequest{
		UserID:      userID,
		Type:        ledger.TypeEarn,
		Amount:      reward,
		Description: "Video Ad Reward",
		ReferenceID: "ad:" + sessionID,
	}); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&account.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"ad_watches_today": watches + 1,
			"last_ad_at":       now,
			"updated_at":       now,
		}).Error; err != nil {
		return nil, err
	}

	return &AdReward{
		Reward:         reward,
		WatchesToday:   watches + 1,
		WatchesAllowed: s.adQuota(),
	}, nil
}

// ResetStaleAdCounters zeroes ad counters that belong to a previous day.
// Runs nightly from the worker so read paths never see stale quota.
func (s *Service) ResetStaleAdCounters(ctx context.Context) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	res := s.db.WithContext(ctx).Model(&account.User{}).
		Where("ad_watches_today > 0 AND (last_ad_at IS NULL OR last_ad_at < ?)", today).
		Updates(map[string]any{
			"ad_watches_today": 0,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}

	zap.L().Info("reset stale ad counters", zap.Int64("users", res.RowsAffected))
	return nil
}

// HandleAdQuotaReset is the worker-side handler for the nightly reset.
func (s *Service) HandleAdQuotaReset(ctx context.Context, t *hibiken.Task) error {
	var payload asynq.AdQuotaResetPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, hibiken.SkipRetry)
	}

	return s.ResetStaleAdCounters(ctx)
}
