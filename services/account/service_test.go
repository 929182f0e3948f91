package account

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &User{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node}), db
}

func seedUser(t *testing.T, db *gorm.DB, user *User) {
	t.Helper()
	if user.Username == "" {
		user.Username = "user-" + user.ID
	}
	if user.Email == "" {
		user.Email = user.ID + "@example.com"
	}
	require.NoError(t, db.Create(user).Error)
}

func TestGetProfile(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, &User{ID: "u1", Username: "jordan", Country: "France"})

	user, err := svc.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "jordan", user.Username)
	require.True(t, user.Onboarded())
}

func TestGetProfileNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetProfile(context.Background(), "ghost")
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestUpdateProfile(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seedUser(t, db, &User{ID: "u1", Username: "jordan"})

	user, err := svc.UpdateProfile(ctx, "u1", UpdateProfileRequest{
		Username: "jordan_creates",
		Country:  "France",
		Language: "fr",
	})
	require.NoError(t, err)
	require.Equal(t, "jordan_creates", user.Username)
	require.Equal(t, "France", user.Country)
	require.Equal(t, "fr", user.Language)
}

func TestUpdateProfileRejectsShortUsername(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, &User{ID: "u1", Username: "jordan"})

	_, err := svc.UpdateProfile(context.Background(), "u1", UpdateProfileRequest{Username: "ab"})
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusValidationFailed, be.Status())
}

func TestUpdateProfileUsernameTaken(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, &User{ID: "u1", Username: "jordan"})
	seedUser(t, db, &User{ID: "u2", Username: "taylor"})

	_, err := svc.UpdateProfile(context.Background(), "u1", UpdateProfileRequest{Username: "taylor"})
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusConflict, be.Status())
}

func TestUpdateProfileNoChanges(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, &User{ID: "u1", Username: "jordan"})

	user, err := svc.UpdateProfile(context.Background(), "u1", UpdateProfileRequest{})
	require.NoError(t, err)
	require.Equal(t, "jordan", user.Username)
}

func TestUploadAvatarWithoutStorage(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, &User{ID: "u1", Username: "jordan"})

	_, err := svc.UploadAvatar(context.Background(), "u1", "me.png", "image/png", bytes.NewReader(nil), 0)
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotImplemented, be.Status())
}

type storageMock struct {
	uploads []string
	removed []string
}

func (m *storageMock) Upload(ctx context.Context, objectName, contentType string, r io.Reader, size int64) (string, error) {
	m.uploads = append(m.uploads, objectName)
	return "http://minio.local/followme/" + objectName, nil
}

func (m *storageMock) Remove(ctx context.Context, objectName string) error {
	m.removed = append(m.removed, objectName)
	return nil
}

func TestUploadAvatarRejectsNonImage(t *testing.T) {
	svc, db := newTestService(t)
	svc.storage = &storageMock{}
	seedUser(t, db, &User{ID: "u1", Username: "jordan"})

	_, err := svc.UploadAvatar(context.Background(), "u1", "notes.txt", "text/plain", bytes.NewReader(nil), 0)
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusUnsupportedMediaType, be.Status())
}

func TestUploadAvatarStoresURL(t *testing.T) {
	svc, db := newTestService(t)
	storage := &storageMock{}
	svc.storage = storage
	seedUser(t, db, &User{ID: "u1", Username: "jordan"})

	user, err := svc.UploadAvatar(context.Background(), "u1", "me.png", "image/png", bytes.NewReader([]byte("img")), 3)
	require.NoError(t, err)
	require.Contains(t, user.AvatarURL, "/avatars/jordan-")
	require.Len(t, storage.uploads, 1)
}

func TestObjectNameFromURL(t *testing.T) {
	name, ok := objectNameFromURL("http://minio.local/followme/avatars/jordan-abc.png")
	require.True(t, ok)
	require.Equal(t, "avatars/jordan-abc.png", name)

	_, ok = objectNameFromURL("http://example.com/something-else.png")
	require.False(t, ok)
}
