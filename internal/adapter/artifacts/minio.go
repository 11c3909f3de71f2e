package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig addresses an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

func (c MinioConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// Minio mirrors artifacts into a bucket under prefix/runID/.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinio connects to the endpoint and makes sure the bucket exists.
func NewMinio(ctx context.Context, cfg MinioConfig, runID string) (*Minio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("minio: create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return NewMinioWithClient(client, cfg.Bucket, ObjectPrefix(cfg.Prefix, runID))
}

func NewMinioWithClient(client *minio.Client, bucket, prefix string) (*Minio, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	return &Minio{client: client, bucket: bucket, prefix: prefix}, nil
}

func (m *Minio) Put(ctx context.Context, name string, body io.Reader, size int64) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	key := ObjectKey(m.prefix, name)
	opts := minio.PutObjectOptions{ContentType: ContentType(name)}
	if _, err := m.client.PutObject(ctx, m.bucket, key, body, size, opts); err != nil {
		return "", fmt.Errorf("minio: put %s: %w", key, err)
	}
	return "s3://" + m.bucket + "/" + key, nil
}

// ObjectPrefix joins the configured prefix and the run id.
func ObjectPrefix(prefix, runID string) string {
	return strings.Trim(path.Join(strings.Trim(prefix, "/"), runID), "/")
}

// ObjectKey places name under prefix.
func ObjectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// ContentType guesses a content type; model files are plain text.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "text/plain; charset=utf-8"
}
