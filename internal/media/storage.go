package media

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"spacedub/internal/config"
	"spacedub/internal/services"
)

// ObjectStore uploads a local file and returns a URL the dubbing backend can
// fetch it from.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// S3Store uploads to an S3-compatible bucket and presigns GET URLs.
type S3Store struct {
	client  *minio.Client
	bucket  string
	region  string
	expiry  time.Duration
	ensured sync.Once
	ensure  error
}

// NewS3Store creates a MinIO client from the storage section of cfg.
func NewS3Store(cfg *config.Config) (*S3Store, error) {
	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
		Region: cfg.Storage.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &S3Store{
		client: client,
		bucket: cfg.Storage.Bucket,
		region: cfg.Storage.Region,
		expiry: time.Duration(cfg.Storage.PresignSeconds) * time.Second,
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.ensured.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.ensure = fmt.Errorf("check bucket %s: %w", s.bucket, err)
			return
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				s.ensure = fmt.Errorf("make bucket %s: %w", s.bucket, err)
			}
		}
	})
	return s.ensure
}

// Upload stores localPath under key and returns a presigned GET URL.
// Network failures and 5xx responses are marked transient.
func (s *S3Store) Upload(ctx context.Context, localPath, key string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", classifyStorageError("ensure bucket", err)
	}
	contentType := contentTypes[strings.TrimPrefix(strings.ToLower(filepath.Ext(localPath)), ".")]
	if _, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", classifyStorageError("put object", err)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, url.Values{})
	if err != nil {
		return "", classifyStorageError("presign object", err)
	}
	return u.String(), nil
}

func classifyStorageError(operation string, err error) error {
	resp := minio.ToErrorResponse(err)
	marker := services.ErrExternalService
	if resp.Code == "" || resp.StatusCode >= 500 || resp.StatusCode == 429 ||
		resp.Code == "SlowDown" || resp.Code == "RequestTimeout" {
		marker = services.ErrTransient
	}
	return services.Wrap(marker, "preparing_media", operation, resp.Code, err)
}
