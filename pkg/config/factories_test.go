package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/pkg/metrics"
	"github.com/marmos91/gridinv/pkg/store/cache"
)

func TestCreateCacheStore_FS(t *testing.T) {
	ctx := context.Background()
	cfg := &CacheConfig{
		Type: "fs",
		FS: map[string]any{
			"path": t.TempDir(),
		},
	}

	store, err := CreateCacheStore(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create fs cache: %v", err)
	}
	defer func() { _ = store.Close() }()

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

func TestCreateInstrumentedCacheStore(t *testing.T) {
	ctx := context.Background()
	cfg := &CacheConfig{Type: "memory"}

	plain, err := CreateInstrumentedCacheStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create memory cache: %v", err)
	}
	if _, wrapped := plain.(*cache.InstrumentedStore); wrapped {
		t.Error("Expected an unwrapped backend without metrics")
	}

	store, err := CreateInstrumentedCacheStore(ctx, cfg, metrics.NewNoopCacheMetrics())
	if err != nil {
		t.Fatalf("Failed to create instrumented cache: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, wrapped := store.(*cache.InstrumentedStore); !wrapped {
		t.Errorf("Expected an instrumented backend, got %T", store)
	}
	if err := store.Save(ctx, uuid.New(), []byte("snapshot")); err != nil {
		t.Errorf("Save through instrumented backend failed: %v", err)
	}
}

func TestCreateCacheStore_FSMissingPath(t *testing.T) {
	ctx := context.Background()
	cfg := &CacheConfig{
		Type: "fs",
		FS:   map[string]any{},
	}

	_, err := CreateCacheStore(ctx, cfg)
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateCacheStore_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := &CacheConfig{Type: "memory"}

	store, err := CreateCacheStore(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create memory cache: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := store.Load(ctx, uuid.New()); err != cache.ErrCacheMiss {
		t.Errorf("Expected cache miss on empty store, got: %v", err)
	}
}

func TestCreateCacheStore_BadgerInMemory(t *testing.T) {
	ctx := context.Background()
	cfg := &CacheConfig{
		Type: "badger",
		Badger: map[string]any{
			"in_memory": true,
		},
	}

	store, err := CreateCacheStore(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create badger cache: %v", err)
	}
	defer func() { _ = store.Close() }()

	owner := uuid.New()
	if err := store.Save(ctx, owner, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestCreateCacheStore_BadgerOnDisk(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "badger")
	cfg := &CacheConfig{
		Type: "badger",
		Badger: map[string]any{
			"db_path":     dbPath,
			"compression": true,
		},
	}

	store, err := CreateCacheStore(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create badger cache: %v", err)
	}
	_ = store.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Expected database directory at %s: %v", dbPath, err)
	}
}

func TestCreateCacheStore_BadgerMissingPath(t *testing.T) {
	ctx := context.Background()
	cfg := &CacheConfig{
		Type:   "badger",
		Badger: map[string]any{},
	}

	_, err := CreateCacheStore(ctx, cfg)
	if err == nil {
		t.Fatal("Expected error for missing db_path")
	}
}

func TestCreateCacheStore_S3MissingBucket(t *testing.T) {
	ctx := context.Background()
	cfg := &CacheConfig{
		Type: "s3",
		S3: map[string]any{
			"region": "us-east-1",
		},
	}

	_, err := CreateCacheStore(ctx, cfg)
	if err == nil {
		t.Fatal("Expected error for missing bucket")
	}
	if !strings.Contains(err.Error(), "bucket is required") {
		t.Errorf("Expected 'bucket is required' error, got: %v", err)
	}
}

func TestCreateCacheStore_S3MissingRegion(t *testing.T) {
	ctx := context.Background()
	cfg := &CacheConfig{
		Type: "s3",
		S3: map[string]any{
			"bucket": "snapshots",
		},
	}

	_, err := CreateCacheStore(ctx, cfg)
	if err == nil {
		t.Fatal("Expected error for missing region")
	}
	if !strings.Contains(err.Error(), "region is required") {
		t.Errorf("Expected 'region is required' error, got: %v", err)
	}
}

func TestCreateCacheStore_UnknownType(t *testing.T) {
	ctx := context.Background()
	cfg := &CacheConfig{Type: "redis"}

	_, err := CreateCacheStore(ctx, cfg)
	if err == nil {
		t.Fatal("Expected error for unknown cache type")
	}
	if !strings.Contains(err.Error(), "unknown cache type") {
		t.Errorf("Expected 'unknown cache type' error, got: %v", err)
	}
}

func TestCreateCacheStore_DecodeError(t *testing.T) {
	ctx := context.Background()
	cfg := &CacheConfig{
		Type: "fs",
		FS: map[string]any{
			"path": []string{"not", "a", "string"},
		},
	}

	_, err := CreateCacheStore(ctx, cfg)
	if err == nil {
		t.Fatal("Expected decode error")
	}
	if !strings.Contains(err.Error(), "decode") {
		t.Errorf("Expected decode error, got: %v", err)
	}
}

func TestConfigureLogging(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "gridinv.log")
	defer func() {
		_ = logger.SetOutput("stdout")
		logger.SetLevel("INFO")
		logger.SetFormat("text")
	}()

	err := ConfigureLogging(&LoggingConfig{Level: "DEBUG", Format: "json", Output: logFile})
	if err != nil {
		t.Fatalf("ConfigureLogging failed: %v", err)
	}

	logger.Debug("configured")

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"configured"`) {
		t.Errorf("Expected JSON debug line in log file, got %q", content)
	}
}

func TestConfigureLogging_BadOutput(t *testing.T) {
	defer logger.SetLevel("INFO")

	err := ConfigureLogging(&LoggingConfig{Level: "INFO", Format: "text", Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	if err == nil {
		t.Fatal("Expected error for unwritable log output")
	}
}

func TestCreateRateLimiter(t *testing.T) {
	unlimited := CreateRateLimiter(&TransportConfig{})
	if !unlimited.Unlimited() {
		t.Error("Expected zero requests_per_second to disable limiting")
	}

	limited := CreateRateLimiter(&TransportConfig{RequestsPerSecond: 5, Burst: 2})
	if limited.Unlimited() {
		t.Error("Expected a limited rate limiter")
	}
	if !limited.Allow() || !limited.Allow() {
		t.Error("Expected burst of 2 to be allowed")
	}
	if limited.Allow() {
		t.Error("Expected third immediate request to be throttled")
	}
}

func TestCreateCapsClient(t *testing.T) {
	client := CreateCapsClient(&CapabilitiesConfig{Timeout: time.Second, MaxRetries: 1, Backoff: time.Millisecond})
	if client == nil {
		t.Fatal("Expected non-nil client")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()

	result := InitializeMetrics(cfg)
	if result.Server != nil {
		t.Error("Expected no metrics server when disabled")
	}
	if result.InventoryMetrics == nil {
		t.Fatal("Expected no-op inventory metrics")
	}
	if result.CacheMetrics == nil {
		t.Fatal("Expected no-op cache metrics")
	}

	// No-op metrics accept calls
	result.InventoryMetrics.RecordStaleReport()
	result.InventoryMetrics.SetPendingCallbacks(3)
}

func TestInitializeMetrics_Enabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 19091

	result := InitializeMetrics(cfg)
	if result.Server == nil {
		t.Fatal("Expected metrics server when enabled")
	}
	if result.Server.Port() != 19091 {
		t.Errorf("Expected port 19091, got %d", result.Server.Port())
	}
	if result.InventoryMetrics == nil {
		t.Fatal("Expected inventory metrics")
	}
	if result.CacheMetrics == nil {
		t.Fatal("Expected cache metrics")
	}
}
