package e2e

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/marmos91/gridinv/pkg/config"
	"github.com/marmos91/gridinv/pkg/store/cache"
)

// CacheType represents the snapshot cache backend of a run
type CacheType string

const (
	CacheMemory CacheType = "memory"
	CacheFS     CacheType = "fs"
	CacheBadger CacheType = "badger"
	CacheS3     CacheType = "s3"
)

// FetchMode represents how the client lists folders and fetches items
type FetchMode string

const (
	// FetchMessages sends FetchInventoryDescendents/FetchInventory messages
	FetchMessages FetchMode = "messages"

	// FetchHTTP uses the FetchInventoryDescendents2/FetchInventory2 capabilities
	FetchHTTP FetchMode = "http"
)

// TestContextProvider is an interface for providing test context dependencies
type TestContextProvider interface {
	CreateTempDir(prefix string) string
	GetConfig() *TestConfig
}

// TestConfig holds the configuration for a test run
type TestConfig struct {
	Name  string
	Cache CacheType
	Fetch FetchMode

	// S3-specific fields (set by localstack setup)
	s3Endpoint string
	s3Bucket   string
}

// String returns a string representation of the configuration
func (tc *TestConfig) String() string {
	return fmt.Sprintf("%s/%s", tc.Cache, tc.Fetch)
}

// CacheConfig builds the cache section a user would write for this run.
func (tc *TestConfig) CacheConfig(testCtx TestContextProvider) (*config.CacheConfig, error) {
	cfg := &config.CacheConfig{Type: string(tc.Cache)}

	switch tc.Cache {
	case CacheMemory:
	case CacheFS:
		cfg.FS = map[string]any{
			"path": testCtx.CreateTempDir("gridinv-snapshots-*"),
		}
	case CacheBadger:
		cfg.Badger = map[string]any{
			"db_path":     filepath.Join(testCtx.CreateTempDir("gridinv-badger-*"), "cache.db"),
			"compression": true,
		}
	case CacheS3:
		if tc.s3Endpoint == "" {
			return nil, fmt.Errorf("S3 endpoint not initialized (localstack not running?)")
		}
		cfg.S3 = map[string]any{
			"region":            "us-east-1",
			"endpoint":          tc.s3Endpoint,
			"bucket":            tc.s3Bucket,
			"key_prefix":        "e2e/",
			"access_key_id":     "test",
			"secret_access_key": "test",
			"force_path_style":  true,
			"max_retries":       3,
		}
	default:
		return nil, fmt.Errorf("unknown cache type: %s", tc.Cache)
	}
	return cfg, nil
}

// CreateCacheStore creates the snapshot cache backend of the configuration
// through the same factory the CLI uses.
func (tc *TestConfig) CreateCacheStore(ctx context.Context, testCtx TestContextProvider) (cache.Store, *config.CacheConfig, error) {
	cfg, err := tc.CacheConfig(testCtx)
	if err != nil {
		return nil, nil, err
	}
	store, err := config.CreateCacheStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s cache: %w", tc.Cache, err)
	}
	return store, cfg, nil
}

// AllConfigurations returns all test configurations to run
func AllConfigurations() []*TestConfig {
	return []*TestConfig{
		{
			Name:  "memory-messages",
			Cache: CacheMemory,
			Fetch: FetchMessages,
		},
		{
			Name:  "fs-messages",
			Cache: CacheFS,
			Fetch: FetchMessages,
		},
		{
			Name:  "fs-http",
			Cache: CacheFS,
			Fetch: FetchHTTP,
		},
		{
			Name:  "badger-http",
			Cache: CacheBadger,
			Fetch: FetchHTTP,
		},
	}
}

// S3Configurations returns configurations that use S3 (requires localstack)
func S3Configurations() []*TestConfig {
	return []*TestConfig{
		{
			Name:  "s3-messages",
			Cache: CacheS3,
			Fetch: FetchMessages,
		},
		{
			Name:  "s3-http",
			Cache: CacheS3,
			Fetch: FetchHTTP,
		},
	}
}

// GetConfiguration returns a specific configuration by name
func GetConfiguration(name string) *TestConfig {
	for _, config := range AllConfigurations() {
		if config.Name == name {
			return config
		}
	}
	for _, config := range S3Configurations() {
		if config.Name == name {
			return config
		}
	}
	return nil
}
