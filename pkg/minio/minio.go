package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/founoun2/FollowMe/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("minio",
	fx.Provide(
		registerClient,
		ProvideStorage,
	),
)

func registerClient(c *config.Config) *minio.Client {
	if c.Minio.Endpoint == "" {
		zap.L().Warn("MinIO endpoint not configured, object storage disabled")
		return nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Fatal("failed to create MinIO client", zap.Error(err))
	}
	exists, errBucketExists := client.BucketExists(context.Background(), c.Minio.BucketName)
	if errBucketExists != nil {
		zap.L().Fatal("failed to check if bucket exists", zap.Error(errBucketExists))
	}
	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.Bool("bucketExists", exists))
	return client
}

// Storage stores user avatars and campaign thumbnails.
type Storage interface {
	Upload(ctx context.Context, objectName, contentType string, r io.Reader, size int64) (string, error)
	Remove(ctx context.Context, objectName string) error
}

type objectStorage struct {
	client *minio.Client
	bucket string
	secure bool
	host   string
}

type StorageParams struct {
	fx.In
	Client *minio.Client
	Config *config.Config
}

func ProvideStorage(p StorageParams) Storage {
	if p.Client == nil {
		return nil
	}

	return &objectStorage{
		client: p.Client,
		bucket: p.Config.Minio.BucketName,
		secure: p.Config.Minio.Secure,
		host:   p.Config.Minio.Endpoint,
	}
}

func (s *objectStorage) Upload(ctx context.Context, objectName, contentType string, r io.Reader, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}

	scheme := "http"
	if s.secure {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.host, s.bucket, objectName), nil
}

func (s *objectStorage) Remove(ctx context.Context, objectName string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
}
