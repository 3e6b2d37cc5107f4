package config

import (
	"context"
	"fmt"

	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/internal/ratelimiter"
	"github.com/marmos91/gridinv/pkg/caps"
	"github.com/marmos91/gridinv/pkg/metrics"
	"github.com/marmos91/gridinv/pkg/store/cache"
	cacheBadger "github.com/marmos91/gridinv/pkg/store/cache/badger"
	cacheFs "github.com/marmos91/gridinv/pkg/store/cache/fs"
	cacheMemory "github.com/marmos91/gridinv/pkg/store/cache/memory"
	cacheS3 "github.com/marmos91/gridinv/pkg/store/cache/s3"
	"github.com/mitchellh/mapstructure"
)

// CreateCacheStore creates a snapshot cache based on configuration.
//
// This factory function uses the Type field to determine which backend
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the backend's constructor.
//
// Supported types:
//   - "fs": Uses pkg/store/cache/fs (one file per owner)
//   - "memory": Uses pkg/store/cache/memory (process lifetime only)
//   - "badger": Uses pkg/store/cache/badger (embedded key-value store)
//   - "s3": Uses pkg/store/cache/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Cache configuration
//
// Returns:
//   - cache.Store: Initialized backend, to be closed by the caller
//   - error: Configuration or initialization error
func CreateCacheStore(ctx context.Context, cfg *CacheConfig) (cache.Store, error) {
	switch cfg.Type {
	case "fs":
		return createFSCacheStore(ctx, cfg.FS)
	case "memory":
		return cacheMemory.NewMemoryCacheStore(), nil
	case "badger":
		return createBadgerCacheStore(ctx, cfg.Badger)
	case "s3":
		return createS3CacheStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown cache type: %q", cfg.Type)
	}
}

// CreateInstrumentedCacheStore creates the configured backend and reports its
// calls to m, labelled with the cache type.
func CreateInstrumentedCacheStore(ctx context.Context, cfg *CacheConfig, m metrics.CacheMetrics) (cache.Store, error) {
	store, err := CreateCacheStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cache.NewInstrumentedStore(store, cfg.Type, m), nil
}

// createFSCacheStore creates a filesystem-backed cache.
func createFSCacheStore(ctx context.Context, options map[string]any) (cache.Store, error) {
	type FSCacheStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg FSCacheStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode fs cache config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("fs cache: path is required")
	}

	store, err := cacheFs.NewFSCacheStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create fs cache: %w", err)
	}

	return store, nil
}

// createBadgerCacheStore creates a BadgerDB-backed cache.
func createBadgerCacheStore(ctx context.Context, options map[string]any) (cache.Store, error) {
	var storeCfg cacheBadger.BadgerCacheStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger cache config: %w", err)
	}

	store, err := cacheBadger.NewBadgerCacheStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger cache: %w", err)
	}

	logger.Debug("Badger cache opened (in_memory=%v, path=%s)", storeCfg.InMemory, storeCfg.DBPath)
	return store, nil
}

// createS3CacheStore creates an S3-backed cache.
func createS3CacheStore(ctx context.Context, options map[string]any) (cache.Store, error) {
	type S3CacheStoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		ForcePathStyle  bool   `mapstructure:"force_path_style"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg S3CacheStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 cache config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 cache: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 cache: region is required")
	}

	client, err := cacheS3.NewClient(ctx, cacheS3.ClientConfig{
		Region:          storeCfg.Region,
		Endpoint:        storeCfg.Endpoint,
		AccessKeyID:     storeCfg.AccessKeyID,
		SecretAccessKey: storeCfg.SecretAccessKey,
		ForcePathStyle:  storeCfg.ForcePathStyle,
		MaxRetries:      storeCfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	store, err := cacheS3.NewS3CacheStore(ctx, cacheS3.S3CacheStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 cache: %w", err)
	}

	logger.Info("S3 cache ready: bucket=%s, prefix=%q, region=%s", storeCfg.Bucket, storeCfg.KeyPrefix, storeCfg.Region)
	return store, nil
}

// ConfigureLogging applies the logging section to the global logger.
func ConfigureLogging(cfg *LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	if err := logger.SetOutput(cfg.Output); err != nil {
		return fmt.Errorf("failed to set log output: %w", err)
	}
	return nil
}

// CreateRateLimiter builds the outbound message limiter.
func CreateRateLimiter(cfg *TransportConfig) *ratelimiter.RateLimiter {
	return ratelimiter.New(cfg.RequestsPerSecond, cfg.Burst)
}

// CreateCapsClient builds the capability HTTP client.
func CreateCapsClient(cfg *CapabilitiesConfig) *caps.Client {
	return caps.NewClient(caps.Config{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.Backoff,
	})
}
