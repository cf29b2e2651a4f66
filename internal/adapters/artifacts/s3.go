package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/target/runboard/config"
	"github.com/target/runboard/internal/core"
	apperrors "github.com/target/runboard/internal/errors"
)

var (
	_ core.ArtifactPublisher = (*S3Publisher)(nil)
	_ core.ArtifactReader    = (*S3Publisher)(nil)
)

// objectStore is the subset of *minio.Client the publisher uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// S3Publisher uploads artifacts to an S3-compatible bucket.
type S3Publisher struct {
	client    objectStore
	bucket    string
	publicURL string
}

// NewS3Publisher connects to the endpoint and makes sure the bucket exists.
func NewS3Publisher(ctx context.Context, cfg config.S3Config) (*S3Publisher, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	p := newS3Publisher(client, cfg)
	if err := p.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return p, nil
}

func newS3Publisher(client objectStore, cfg config.S3Config) *S3Publisher {
	return &S3Publisher{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}
}

func (p *S3Publisher) ensureBucket(ctx context.Context, region string) error {
	err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: region})
	if err == nil {
		return nil
	}
	exists, existsErr := p.client.BucketExists(ctx, p.bucket)
	if existsErr == nil && exists {
		return nil
	}
	return fmt.Errorf("create bucket %s: %w", p.bucket, err)
}

// Publish uploads the file. The locator is under PublicURL when one is configured, otherwise
// under /artifacts/ for the HTTP server to proxy.
func (p *S3Publisher) Publish(ctx context.Context, req core.PublishRequest) (string, error) {
	key := objectKey(req)
	opts := minio.PutObjectOptions{
		ContentType: contentType(key),
		UserMetadata: map[string]string{
			"job-id": req.JobID.String(),
			"kind":   string(req.Kind),
		},
	}
	if _, err := p.client.FPutObject(ctx, p.bucket, key, req.Path, opts); err != nil {
		return "", fmt.Errorf("upload artifact %s: %w", key, err)
	}
	if p.publicURL != "" {
		return p.publicURL + "/" + p.bucket + "/" + key, nil
	}
	return URLPrefix + key, nil
}

// Open streams an uploaded artifact. Missing objects are NotFound.
func (p *S3Publisher) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, ok := cleanKey(key)
	if !ok {
		return nil, apperrors.NotFoundf("artifact %q not found", key)
	}
	if _, err := p.client.StatObject(ctx, p.bucket, clean, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperrors.NotFoundf("artifact %q not found", key)
		}
		return nil, fmt.Errorf("stat artifact %s: %w", clean, err)
	}
	obj, err := p.client.GetObject(ctx, p.bucket, clean, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", clean, err)
	}
	return obj, nil
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
