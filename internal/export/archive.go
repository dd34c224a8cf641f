package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver stores a finished export and returns a URL it can be fetched from.
type Archiver interface {
	Put(ctx context.Context, key string, res *Result) (string, error)
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// LinkTTL bounds how long a presigned download link stays valid.
	LinkTTL time.Duration
}

// MinIOArchive keeps exports in an S3-compatible bucket.
type MinIOArchive struct {
	client  *minio.Client
	bucket  string
	linkTTL time.Duration
}

func NewMinIOArchive(ctx context.Context, cfg MinIOConfig) (*MinIOArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MinIOArchive{client: client, bucket: cfg.Bucket, linkTTL: ttl}, nil
}

func (a *MinIOArchive) Put(ctx context.Context, key string, res *Result) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(res.Data), int64(len(res.Data)), minio.PutObjectOptions{
		ContentType: res.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload export %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	link, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.linkTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign export %s: %w", key, err)
	}
	return link.String(), nil
}

// archiveKey lays exports out per world and page, newest sorting last.
func archiveKey(req Request, filename string, at time.Time) string {
	return fmt.Sprintf("worlds/%s/pages/%s/%s-%s", req.WorldID, req.PageID, at.UTC().Format("20060102T150405Z"), filename)
}
