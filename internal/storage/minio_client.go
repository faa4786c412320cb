package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"lorelink/internal/config"
)

// AvatarStorage turns a stored avatarRef into a URL a client can fetch.
type AvatarStorage interface {
	AvatarURL(ctx context.Context, ref string) (string, error)
}

type MinIOClient struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewMinIOClient(ctx context.Context, cfg *config.Config) (*MinIOClient, error) {
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
		Region: cfg.MinIO.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinIO.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinIO.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinIO.BucketName, minio.MakeBucketOptions{Region: cfg.MinIO.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinIO.BucketName, err)
		}
	}

	return &MinIOClient{client: client, bucket: cfg.MinIO.BucketName, expiry: cfg.MinIO.URLExpiry}, nil
}

// AvatarURL presigns object keys; absolute URLs are returned unchanged.
func (m *MinIOClient) AvatarURL(ctx context.Context, ref string) (string, error) {
	if ref == "" || isAbsoluteURL(ref) {
		return ref, nil
	}

	u, err := m.client.PresignedGetObject(ctx, m.bucket, strings.TrimPrefix(ref, "/"), m.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign avatar %s: %w", ref, err)
	}
	return u.String(), nil
}

// StaticAvatars serves refs relative to a fixed base URL when no object store is configured.
type StaticAvatars struct {
	BaseURL string
}

func (s StaticAvatars) AvatarURL(_ context.Context, ref string) (string, error) {
	if ref == "" || isAbsoluteURL(ref) || s.BaseURL == "" {
		return ref, nil
	}
	return strings.TrimSuffix(s.BaseURL, "/") + "/" + strings.TrimPrefix(ref, "/"), nil
}

func isAbsoluteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
