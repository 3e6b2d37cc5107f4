// Package s3 implements snapshot storage on Amazon S3 or a compatible
// service, for caches shared between machines.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/store/cache"
)

// Client is the subset of the S3 API the cache uses. *s3.Client satisfies
// it.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3CacheStore stores each owner's snapshot as one object.
type S3CacheStore struct {
	client    Client
	bucket    string
	keyPrefix string
}

// S3CacheStoreConfig contains configuration for the S3 cache.
type S3CacheStoreConfig struct {
	// Client is the S3 client to use
	Client Client

	// Bucket is the bucket holding snapshots
	Bucket string

	// KeyPrefix is prepended to every object key (e.g. "gridinv/")
	KeyPrefix string

	// SkipBucketCheck disables the HeadBucket probe at construction
	SkipBucketCheck bool
}

// NewS3CacheStore creates an S3-backed cache and verifies bucket access.
//
// Parameters:
//   - ctx: Context for the bucket probe
//   - cfg: Client, bucket and key prefix
//
// Returns:
//   - *S3CacheStore: Initialized store
//   - error: Returns error if configuration is invalid or the bucket is not accessible
func NewS3CacheStore(ctx context.Context, cfg S3CacheStoreConfig) (*S3CacheStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	if !cfg.SkipBucketCheck {
		_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &S3CacheStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (s *S3CacheStore) objectKey(owner uuid.UUID) string {
	return s.keyPrefix + cache.FileName(owner)
}

// Save implements cache.Store. S3 object writes are atomic.
func (s *S3CacheStore) Save(ctx context.Context, owner uuid.UUID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(owner)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to put snapshot object: %w", err)
	}
	return nil
}

// Load implements cache.Store.
func (s *S3CacheStore) Load(ctx context.Context, owner uuid.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(owner)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get snapshot object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot object: %w", err)
	}
	return data, nil
}

// Delete implements cache.Store. S3 deletes of missing keys succeed.
func (s *S3CacheStore) Delete(ctx context.Context, owner uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(owner)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete snapshot object: %w", err)
	}
	return nil
}

// Close implements cache.Store.
func (s *S3CacheStore) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
