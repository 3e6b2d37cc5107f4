package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/pkg/caps"
	"github.com/marmos91/gridinv/pkg/config"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/manager"
	"github.com/marmos91/gridinv/pkg/protocol"
	"github.com/marmos91/gridinv/pkg/store/cache"
	"github.com/marmos91/gridinv/test/e2e/framework"
)

// DefaultTimeout bounds every synchronous wrapper used by the tests
const DefaultTimeout = 5 * time.Second

// TestContext provides a complete testing environment with:
// - A simulated grid holding the server-side inventory
// - A logged-in manager talking to it
// - The snapshot cache backend of the configuration
type TestContext struct {
	T           *testing.T
	Config      *TestConfig
	Grid        *framework.TestGrid
	Manager     *manager.Manager
	Cache       cache.Store
	CacheConfig *config.CacheConfig
	ctx         context.Context
	cancel      context.CancelFunc
	tempDirs    []string
}

// NewTestContext creates a new test environment with the specified configuration.
// It starts the simulated grid and logs a manager in to it.
func NewTestContext(t *testing.T, cfg *TestConfig) *TestContext {
	t.Helper()

	// Keep test output clean; these are functional tests
	logger.SetLevel("ERROR")

	ctx, cancel := context.WithCancel(context.Background())
	tc := &TestContext{
		T:      t,
		Config: cfg,
		Grid:   framework.NewTestGrid(t, uuid.New()),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Fetch == FetchHTTP {
		tc.Grid.Start()
	}

	var err error
	tc.Cache, tc.CacheConfig, err = cfg.CreateCacheStore(ctx, tc)
	if err != nil {
		tc.Cleanup()
		t.Fatalf("Failed to create cache: %v", err)
	}

	tc.Manager = tc.Login()
	return tc
}

// Context returns the context of the run
func (tc *TestContext) Context() context.Context {
	return tc.ctx
}

// Login creates a new manager session against the grid, the way a viewer
// does after login: the inventory root is known, its contents are not.
func (tc *TestContext) Login() *manager.Manager {
	tc.T.Helper()

	opts := manager.Options{
		Transport:      tc.Grid,
		AgentID:        tc.Grid.Owner(),
		SessionID:      uuid.New(),
		AgentName:      "E2E Resident",
		DefaultTimeout: DefaultTimeout,
	}
	if tc.Config.Fetch == FetchHTTP {
		opts.Capabilities = tc.Grid.Capabilities()
		opts.CapsClient = caps.NewClient(caps.Config{Timeout: DefaultTimeout, MaxRetries: 1, Backoff: time.Millisecond})
	}

	m, err := manager.New(opts)
	if err != nil {
		tc.T.Fatalf("Failed to create manager: %v", err)
	}

	store := m.Store()
	store.SetInventoryRoot(tc.Grid.Root())
	root := inventory.NewFolder(tc.Grid.Root(), uuid.Nil, tc.Grid.Owner(), "My Inventory", inventory.FolderTypeRoot)
	if err := store.Add(root); err != nil {
		tc.T.Fatalf("Failed to add inventory root: %v", err)
	}

	tc.Grid.Attach(m.HandleMessage)
	return m
}

// Relogin saves the current session to the cache, closes it and starts a
// new one restored from the cache.
func (tc *TestContext) Relogin() *manager.Manager {
	tc.T.Helper()

	if err := tc.Manager.SaveCache(tc.ctx, tc.Cache); err != nil {
		tc.T.Fatalf("Failed to save cache: %v", err)
	}
	if err := tc.Manager.Close(); err != nil {
		tc.T.Fatalf("Failed to close manager: %v", err)
	}

	tc.Manager = tc.Login()
	found, err := tc.Manager.LoadCache(tc.ctx, tc.Cache)
	if err != nil {
		tc.T.Fatalf("Failed to load cache: %v", err)
	}
	if !found {
		tc.T.Fatal("Expected a cached snapshot after saving one")
	}
	return tc.Manager
}

// SyncAll walks the whole server-side tree through FolderContents, the
// way a viewer fetches the inventory after login.
func (tc *TestContext) SyncAll() {
	tc.T.Helper()

	queue := []uuid.UUID{tc.Grid.Root()}
	for len(queue) > 0 {
		folderID := queue[0]
		queue = queue[1:]

		nodes, err := tc.Manager.FolderContents(tc.ctx, folderID, tc.Grid.Owner(), true, true, protocol.SortByName, DefaultTimeout)
		if err != nil {
			tc.T.Fatalf("Failed to list %s: %v", folderID, err)
		}
		for _, node := range nodes {
			if folder, ok := node.(*inventory.Folder); ok {
				queue = append(queue, folder.ID)
			}
		}
	}
}

// Store returns the current session's inventory store
func (tc *TestContext) Store() *inventory.Store {
	return tc.Manager.Store()
}

// Cleanup closes the session, the cache and the grid and removes temp dirs
func (tc *TestContext) Cleanup() {
	if tc.Manager != nil {
		_ = tc.Manager.Close()
	}
	if tc.Cache != nil {
		_ = tc.Cache.Close()
	}
	tc.Grid.Stop()
	tc.cancel()

	for _, dir := range tc.tempDirs {
		_ = os.RemoveAll(dir)
	}
}

// CreateTempDir creates a temporary directory removed by Cleanup
func (tc *TestContext) CreateTempDir(prefix string) string {
	tc.T.Helper()

	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		tc.T.Fatalf("Failed to create temp dir: %v", err)
	}
	tc.tempDirs = append(tc.tempDirs, dir)
	return dir
}

// GetConfig returns the test configuration
func (tc *TestContext) GetConfig() *TestConfig {
	return tc.Config
}
