package manager

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/caps"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/protocol"
	"github.com/marmos91/gridinv/pkg/protocol/llsd"
	"github.com/marmos91/gridinv/pkg/store/cache"
	"github.com/marmos91/gridinv/pkg/store/cache/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func llsdHandler(t *testing.T, fn func(req map[string]any) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		req, err := llsd.Unmarshal(body)
		require.NoError(t, err)

		data, err := llsd.Marshal(fn(llsd.AsMap(req)))
		require.NoError(t, err)
		w.Header().Set("Content-Type", llsd.ContentType)
		_, _ = w.Write(data)
	}
}

func withCaps(provider caps.StaticProvider) func(*Options) {
	return func(o *Options) {
		o.Capabilities = provider
		o.CapsClient = caps.NewClient(caps.Config{Timeout: 2 * time.Second, MaxRetries: 1, Backoff: time.Millisecond})
	}
}

// ============================================================================
// HTTP fetch variants
// ============================================================================

func TestFolderContentsOverHTTP(t *testing.T) {
	provider := caps.StaticProvider{}
	fx := newFixture(t, withCaps(provider))
	owner := fx.owner
	item := uuid.New()

	srv := httptest.NewServer(llsdHandler(t, func(req map[string]any) any {
		folders := llsd.AsArray(req["folders"])
		require.Len(t, folders, 1)
		folderID := llsd.AsUUID(llsd.AsMap(folders[0])["folder_id"])
		return map[string]any{
			"folders": []any{
				map[string]any{
					"agent_id":    owner,
					"folder_id":   folderID,
					"owner_id":    owner,
					"version":     int32(2),
					"descendents": int32(1),
					"categories":  []any{},
					"items": []any{
						caps.ItemToLLSD(itemData(item, folderID, owner, "Over HTTP")),
					},
				},
			},
		}
	}))
	defer srv.Close()
	provider[caps.FetchInventoryDescendents2] = srv.URL

	nodes, err := fx.m.FolderContents(context.Background(), fx.root, owner, true, true, protocol.SortByName, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, item, inventory.IDOf(nodes[0]))
	assert.Equal(t, "Over HTTP", inventory.NameOf(nodes[0]))
	assert.Empty(t, fx.transport.messages(), "no message when the capability is advertised")
}

func TestFetchItemOverHTTP(t *testing.T) {
	provider := caps.StaticProvider{}
	fx := newFixture(t, withCaps(provider))
	owner, root := fx.owner, fx.root

	srv := httptest.NewServer(llsdHandler(t, func(req map[string]any) any {
		items := llsd.AsArray(req["items"])
		require.Len(t, items, 1)
		id := llsd.AsUUID(llsd.AsMap(items[0])["item_id"])
		return map[string]any{
			"agent_id": owner,
			"items":    []any{caps.ItemToLLSD(itemData(id, root, owner, "Fetched over HTTP"))},
		}
	}))
	defer srv.Close()
	provider[caps.FetchInventory2] = srv.URL

	item, ok := fx.m.FetchItem(context.Background(), uuid.New(), owner, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, "Fetched over HTTP", item.Name)
	assert.Empty(t, fx.transport.messages())
}

func TestLibraryFetchFallsBackToMessages(t *testing.T) {
	fx := newFixture(t, withCaps(caps.StaticProvider{caps.FetchInventoryDescendents2: "http://127.0.0.1:1/unused"}))
	libraryOwner := uuid.New()

	require.NoError(t, fx.m.RequestFolderContents(context.Background(), uuid.New(), libraryOwner, true, true, protocol.SortByName))

	req, ok := fx.transport.last().(*protocol.FetchInventoryDescendents)
	require.True(t, ok, "library folders need FetchLibDescendents2")
	assert.Equal(t, libraryOwner, req.OwnerID)
}

// ============================================================================
// Uploads
// ============================================================================

func uploadServer(t *testing.T, assetID, itemID uuid.UUID, check func(req map[string]any)) *httptest.Server {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/cap", llsdHandler(t, func(req map[string]any) any {
		check(req)
		return map[string]any{"state": "upload", "uploader": srv.URL + "/uploader"}
	}))
	mux.HandleFunc("/uploader", func(w http.ResponseWriter, r *http.Request) {
		data, _ := llsd.Marshal(map[string]any{
			"state":              "complete",
			"new_asset":          assetID,
			"new_inventory_item": itemID,
		})
		_, _ = w.Write(data)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestUploadWithoutCapability(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.m.UpdateNotecard(context.Background(), uuid.New(), []byte("text"))
	assert.True(t, inventory.IsErrorCode(err, inventory.ErrNotSupported))

	_, err = fx.m.CreateItemFromAsset(context.Background(), AssetUpload{Name: "x"}, nil)
	assert.True(t, inventory.IsErrorCode(err, inventory.ErrNotSupported))
	assert.Empty(t, fx.transport.messages())
}

func TestUpdateNotecard(t *testing.T) {
	provider := caps.StaticProvider{}
	fx := newFixture(t, withCaps(provider))
	itemID := fx.addItem(t, fx.root, "Notes")
	newAsset := uuid.New()

	srv := uploadServer(t, newAsset, uuid.Nil, func(req map[string]any) {
		assert.Equal(t, itemID, llsd.AsUUID(req["item_id"]))
	})
	provider[caps.UpdateNotecardAgentInventory] = srv.URL + "/cap"

	asset, err := fx.m.UpdateNotecard(context.Background(), itemID, []byte("new body"))
	require.NoError(t, err)
	assert.Equal(t, newAsset, asset)

	stored, _ := fx.m.Store().GetItem(itemID)
	assert.Equal(t, newAsset, stored.AssetID)
}

func TestCreateItemFromAsset(t *testing.T) {
	provider := caps.StaticProvider{}
	fx := newFixture(t, withCaps(provider))
	folder := fx.root
	newAsset, newItem := uuid.New(), uuid.New()

	srv := uploadServer(t, newAsset, newItem, func(req map[string]any) {
		assert.Equal(t, folder, llsd.AsUUID(req["folder_id"]))
		assert.Equal(t, "texture", llsd.AsString(req["asset_type"]))
		assert.Equal(t, "Photo", llsd.AsString(req["name"]))
	})
	provider[caps.NewFileAgentInventory] = srv.URL + "/cap"

	result, err := fx.m.CreateItemFromAsset(context.Background(), AssetUpload{
		FolderID:      folder,
		Name:          "Photo",
		AssetType:     inventory.AssetTypeTexture,
		InventoryType: inventory.InventoryTypeTexture,
		Permissions:   inventory.FullPermissions(),
	}, []byte{0xFF, 0xD8})
	require.NoError(t, err)
	assert.Equal(t, newAsset, result.AssetID)
	assert.Equal(t, newItem, result.ItemID)

	req, ok := fx.transport.last().(*protocol.FetchInventory)
	require.True(t, ok, "the new item is fetched")
	assert.Equal(t, newItem, req.Items[0].ItemID)
}

// ============================================================================
// Cache glue
// ============================================================================

func TestCacheRoundTrip(t *testing.T) {
	backend := memory.NewMemoryCacheStore()
	fx := newFixture(t)
	a := fx.addFolder(t, fx.root, "A", inventory.FolderTypeNone)
	item := fx.addItem(t, a, "Note")
	require.NoError(t, fx.m.SaveCache(context.Background(), backend))

	restored, err := New(Options{Transport: &fakeTransport{}, AgentID: fx.owner})
	require.NoError(t, err)
	defer restored.Close()

	loaded, err := restored.LoadCache(context.Background(), backend)
	require.NoError(t, err)
	require.True(t, loaded)

	path, err := restored.Store().Path(item)
	require.NoError(t, err)
	assert.Equal(t, "A/Note", path)
	assert.Equal(t, fx.m.Store().Stats(), restored.Store().Stats())
}

func TestLoadCacheMiss(t *testing.T) {
	fx := newFixture(t)

	loaded, err := fx.m.LoadCache(context.Background(), memory.NewMemoryCacheStore())
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.True(t, fx.m.Store().Contains(fx.root), "a miss leaves the store alone")
}

func TestLoadCacheCorrupt(t *testing.T) {
	fx := newFixture(t)
	backend := memory.NewMemoryCacheStore()
	require.NoError(t, backend.Save(context.Background(), fx.owner, []byte("not a snapshot")))

	_, err := fx.m.LoadCache(context.Background(), backend)
	assert.Error(t, err)
}

var _ cache.Store = (*memory.MemoryCacheStore)(nil)

// ============================================================================
// Metrics wiring
// ============================================================================

type recordingMetrics struct {
	mu        sync.Mutex
	sent      map[string]int
	waits     map[string]int
	stale     int
	storeOps  map[string]int
	nodeCalls int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		sent:     make(map[string]int),
		waits:    make(map[string]int),
		storeOps: make(map[string]int),
	}
}

func (r *recordingMetrics) RecordStoreOperation(op string, _ time.Duration, _ error) {
	r.mu.Lock()
	r.storeOps[op]++
	r.mu.Unlock()
}

func (r *recordingMetrics) SetNodeCounts(int, int, int) {
	r.mu.Lock()
	r.nodeCalls++
	r.mu.Unlock()
}

func (r *recordingMetrics) RecordStaleReport() {
	r.mu.Lock()
	r.stale++
	r.mu.Unlock()
}

func (r *recordingMetrics) RecordRequestSent(messageType string) {
	r.mu.Lock()
	r.sent[messageType]++
	r.mu.Unlock()
}

func (r *recordingMetrics) RecordCapabilityRequest(string, time.Duration, error) {}

func (r *recordingMetrics) RecordWait(kind, outcome string, _ time.Duration) {
	r.mu.Lock()
	r.waits[kind+"/"+outcome]++
	r.mu.Unlock()
}

func (r *recordingMetrics) SetPendingCallbacks(int) {}

func TestMetricsWiring(t *testing.T) {
	rec := newRecordingMetrics()
	fx := newFixture(t, func(o *Options) { o.Metrics = rec })

	_, ok := fx.m.FetchItem(context.Background(), uuid.New(), fx.owner, 10*time.Millisecond)
	require.False(t, ok)

	fx.m.HandleMessage(context.Background(), &protocol.InventoryDescendents{FolderID: fx.root, Version: 5})
	fx.m.HandleMessage(context.Background(), &protocol.InventoryDescendents{FolderID: fx.root, Version: 4})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.sent["FetchInventory"])
	assert.Equal(t, 1, rec.waits["fetch_item/timeout"])
	assert.Equal(t, 1, rec.stale)
	assert.Equal(t, 2, rec.storeOps["reconcile"])
	assert.Positive(t, rec.nodeCalls)
}
