//go:build integration

package s3_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/config"
	"github.com/marmos91/gridinv/pkg/store/cache"
	cacheS3 "github.com/marmos91/gridinv/pkg/store/cache/s3"
	cachetesting "github.com/marmos91/gridinv/pkg/store/cache/testing"
)

// localstackEndpoint returns the S3-compatible endpoint used by the tests.
func localstackEndpoint() string {
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "http://localhost:4566"
}

// setupTestS3 creates an S3 client and test bucket for integration tests.
//
// It connects to Localstack (or other S3-compatible endpoint) and creates a
// test bucket that will be cleaned up when the test ends.
func setupTestS3(t *testing.T, bucketName string) *s3.Client {
	t.Helper()
	ctx := context.Background()

	client, err := cacheS3.NewClient(ctx, cacheS3.ClientConfig{
		Region:          "us-east-1",
		Endpoint:        localstackEndpoint(),
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxRetries:      3,
	})
	if err != nil {
		t.Fatalf("Failed to create S3 client: %v", err)
	}

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		t.Fatalf("Failed to create test bucket: %v", err)
	}

	t.Cleanup(func() {
		listResp, _ := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucketName),
		})
		if listResp != nil {
			for _, obj := range listResp.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucketName),
					Key:    obj.Key,
				})
			}
		}

		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucketName),
		})
	})

	return client
}

// TestS3CacheStore_Integration runs the cache conformance suite against a
// real S3-compatible service (Localstack).
//
// Prerequisites:
//   - Localstack running on localhost:4566
//   - Run with: go test -tags=integration ./test/integration/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3CacheStore_Integration(t *testing.T) {
	ctx := context.Background()
	bucketName := "gridinv-test-bucket"
	client := setupTestS3(t, bucketName)

	// Each test gets a fresh store with a unique key prefix for isolation
	testCounter := 0
	suite := &cachetesting.StoreTestSuite{
		NewStore: func(t *testing.T) cache.Store {
			testCounter++
			store, err := cacheS3.NewS3CacheStore(ctx, cacheS3.S3CacheStoreConfig{
				Client:    client,
				Bucket:    bucketName,
				KeyPrefix: fmt.Sprintf("test-%d/", testCounter),
			})
			if err != nil {
				t.Fatalf("Failed to create S3 cache for test %d: %v", testCounter, err)
			}
			return store
		},
	}

	suite.Run(t)
}

// TestS3CacheStore_FromConfig builds the backend through the config factory.
func TestS3CacheStore_FromConfig(t *testing.T) {
	ctx := context.Background()
	bucketName := "gridinv-config-bucket"
	setupTestS3(t, bucketName)

	store, err := config.CreateCacheStore(ctx, &config.CacheConfig{
		Type: "s3",
		S3: map[string]any{
			"region":            "us-east-1",
			"bucket":            bucketName,
			"endpoint":          localstackEndpoint(),
			"access_key_id":     "test",
			"secret_access_key": "test",
			"key_prefix":        "snapshots/",
		},
	})
	if err != nil {
		t.Fatalf("Failed to create S3 cache from config: %v", err)
	}
	defer store.Close()

	owner := uuid.New()
	if err := store.Save(ctx, owner, []byte("snapshot")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := store.Load(ctx, owner)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != "snapshot" {
		t.Errorf("Expected stored snapshot, got %q", data)
	}
}

// TestS3CacheStore_MissingBucket verifies the bucket probe at construction.
func TestS3CacheStore_MissingBucket(t *testing.T) {
	ctx := context.Background()
	client := setupTestS3(t, "gridinv-probe-bucket")

	_, err := cacheS3.NewS3CacheStore(ctx, cacheS3.S3CacheStoreConfig{
		Client: client,
		Bucket: "gridinv-no-such-bucket",
	})
	if err == nil {
		t.Fatal("Expected error for a bucket that does not exist")
	}
}
