package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/founoun2/FollowMe/pkg/asynq"
	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/pkg/minio"
	"github.com/founoun2/FollowMe/pkg/repository"
	"github.com/founoun2/FollowMe/pkg/util"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	hibiken "github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	storage minio.Storage
	tasks   *hibiken.Client

	users repository.Repository[User]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Storage minio.Storage   `optional:"true"`
	Tasks   *hibiken.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		storage: p.Storage,
		tasks:   p.Tasks,

		users: repository.ProvideStore[User](p.DB),
	}
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*User, error) {
	span := trace.SpanFromContext(ctx)

	user, err := s.users.FindOne(ctx, &User{ID: userID})
	if err != nil {
		zap.L().Error("failed to query user",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err))
		return nil, err
	}

	if user == nil {
		return nil, errutil.NotFound("user not found", nil)
	}

	return user, nil
}

type UpdateProfileRequest struct {
	Username string `json:"username"`
	Country  string `json:"country"`
	Language string `json:"language"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}

	if req.Username != "" && req.Username != user.Username {
		if len(req.Username) < 3 {
			return nil, errutil.ValidationFailed("username must be at least 3 characters", nil)
		}

		existing, err := s.users.FindOne(ctx, &User{Username: req.Username})
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != userID {
			return nil, errutil.Conflict("username already taken", nil)
		}

		updates["username"] = req.Username
	}

	if req.Country != "" {
		updates["country"] = req.Country
	}

	if req.Language != "" {
		updates["language"] = req.Language
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.users.Update(ctx, userID, updates); err != nil {
		zap.L().Error("failed to update profile", zap.Error(err))
		return nil, err
	}

	return s.GetProfile(ctx, userID)
}

// UploadAvatar stores the image and schedules cleanup of the replaced object.
func (s *Service) UploadAvatar(ctx context.Context, userID, filename, contentType string, r io.Reader, size int64) (*User, error) {
	if s.storage == nil {
		return nil, errutil.NotImplemented("object storage is not configured", nil)
	}

	if !strings.HasPrefix(contentType, "image/") {
		return nil, errutil.UnsupportedMediaType("avatar must be an image", nil)
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("avatars/%s-%s%s", slug.Make(user.Username), util.GenerateSessionID(), path.Ext(filename))
	url, err := s.storage.Upload(ctx, objectName, contentType, r, size)
	if err != nil {
		zap.L().Error("failed to upload avatar", zap.Error(err))
		return nil, err
	}

	previous := user.AvatarURL
	if err := s.users.Update(ctx, userID, map[string]any{"avatar_url": url}); err != nil {
		return nil, err
	}

	if previous != "" && s.tasks != nil {
		if objectName, ok := objectNameFromURL(previous); ok {
			payload, _ := json.Marshal(asynq.AvatarCleanupPayload{ObjectName: objectName})
			if _, err := s.tasks.EnqueueContext(ctx, hibiken.NewTask(asynq.AvatarCleanup, payload), hibiken.Queue("low")); err != nil {
				zap.L().Warn("failed to enqueue avatar cleanup", zap.Error(err))
			}
		}
	}

	user.AvatarURL = url
	return user, nil
}

// HandleAvatarCleanup removes a replaced avatar object. Worker-side handler.
func (s *Service) HandleAvatarCleanup(ctx context.Context, t *hibiken.Task) error {
	var payload asynq.AvatarCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}

	if s.storage == nil || payload.ObjectName == "" {
		return nil
	}

	return s.storage.Remove(ctx, payload.ObjectName)
}

func objectNameFromURL(url string) (string, bool) {
	idx := strings.Index(url, "/avatars/")
	if idx < 0 {
		return "", false
	}
	return url[idx+1:], true
}
