// Package s3 implements object storage against S3-compatible backends
// (AWS S3, Cloudflare R2, MinIO).
package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker/v2"

	"github.com/convertly/server/internal/module/file"
	"github.com/convertly/server/internal/shared/config"
)

// Compile-time check
var _ file.ObjectStorage = (*ObjectStorage)(nil)

// ObjectStorage implements file.ObjectStorage against an S3 bucket. Calls
// run through a circuit breaker so a storage outage fails fast instead of
// piling up blocked requests.
type ObjectStorage struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	breaker   *gobreaker.CircuitBreaker[any]
}

// New creates a new S3-backed object storage adapter.
func New(cfg *config.StorageConfig) (*ObjectStorage, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, errors.New("incomplete storage configuration")
	}

	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	// R2 uses "auto" but the SDK still needs a region string.
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // R2 and MinIO require path-style URLs
		}
	})

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "object-storage",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &ObjectStorage{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		breaker:   breaker,
	}, nil
}

// Delete removes the object at key. S3 DeleteObject succeeds for missing
// keys, which keeps file deletion idempotent.
func (o *ObjectStorage) Delete(ctx context.Context, key string) error {
	_, err := o.breaker.Execute(func() (any, error) {
		return o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// PresignPut returns a URL the client can PUT the object bytes to.
// Presigning is local signing, so it bypasses the breaker.
func (o *ObjectStorage) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := o.presigner.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}

	return req.URL, nil
}
