package auth

import (
	"context"
	"strings"
	"time"

	"github.com/founoun2/FollowMe/pkg/config"
	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/pkg/middleware"
	"github.com/founoun2/FollowMe/pkg/rediskey"
	"github.com/founoun2/FollowMe/pkg/repository"
	"github.com/founoun2/FollowMe/pkg/util"
	"github.com/founoun2/FollowMe/services/account"
	"github.com/founoun2/FollowMe/services/ledger"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	cfg    *config.Config
	rdb    *redis.Client
	ledger *ledger.Service

	users repository.Repository[account.User]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		cfg:    p.Config,
		rdb:    p.Redis,
		ledger: p.Ledger,

		users: repository.ProvideStore[account.User](p.DB),
	}
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Country  string `json:"country"`
	Language string `json:"language"`
}

type SessionResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      *account.User `json:"user"`
}

// Signup creates the account and writes the welcome bonus through the
// ledger, so the starting balance is backed by a transaction.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*SessionResponse, error) {
	if len(req.Username) < 3 {
		return nil, errutil.ValidationFailed("username must be at least 3 characters", nil)
	}
	if !strings.Contains(req.Email, "@") {
		return nil, errutil.ValidationFailed("invalid email address", nil)
	}
	if len(req.Password) < 8 {
		return nil, errutil.ValidationFailed("password must be at least 8 characters", nil)
	}

	if existing, err := s.users.FindOne(ctx, &account.User{Email: req.Email}); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errutil.Conflict("email already registered", nil)
	}

	if existing, err := s.users.FindOne(ctx, &account.User{Username: req.Username}); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errutil.Conflict("username already taken", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errutil.Internal("failed to hash password", err)
	}

	country := req.Country
	if country == "" {
		country = account.DefaultCountry
	}

	now := time.Now().UTC()
	user := &account.User{
		ID:           s.node.Generate().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Credits:      0,
		Reputation:   account.InitialReputation,
		Streak:       account.InitialStreak,
		LastLoginAt:  &now,
		Country:      country,
		Language:     req.Language,
	}

	if err := s.users.Create(ctx, user); err != nil {
		zap.L().Error("failed to create user", zap.Error(err))
		return nil, err
	}

	if _, err := s.ledger.Credit(ctx, ledger.EntryRequest{
		UserID:      user.ID,
		Type:        ledger.TypeBonus,
		Amount:      account.WelcomeBonus,
		Description: "Welcome Bonus",
	}); err != nil {
		zap.L().Error("failed to write welcome bonus", zap.String("user_id", user.ID), zap.Error(err))
		return nil, err
	}
	user.Credits = account.WelcomeBonus

	return s.issueSession(user)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	user, err := s.users.FindOne(ctx, &account.User{Email: req.Email})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errutil.Unauthorized("invalid credentials", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errutil.Unauthorized("invalid credentials", nil)
	}

	return s.issueSession(user)
}

// Logout revokes the session id until the token would have expired anyway.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errutil.BadRequest("missing session id", nil)
	}

	if s.rdb == nil {
		return nil
	}

	return s.rdb.Set(ctx, rediskey.BuildRevokedSessionKey(sessionID), "1", s.cfg.Session.TTL).Err()
}

func (s *Service) issueSession(user *account.User) (*SessionResponse, error) {
	expiresAt := time.Now().Add(s.cfg.Session.TTL)

	claims := middleware.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		SessionID: util.GenerateSessionID(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Session.Secret))
	if err != nil {
		return nil, errutil.Internal("failed to sign session token", err)
	}

	return &SessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}
