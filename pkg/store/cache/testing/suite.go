package testing

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/store/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a conformance suite for cache.Store implementations.
// It tests the interface contract, not implementation details, so every
// backend (memory, filesystem, badger, S3) runs the same checks.
//
// Usage:
//
//	func TestMyCacheStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func(t *testing.T) cache.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test
	NewStore func(t *testing.T) cache.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Load_Miss", suite.testLoadMiss)
	t.Run("Save_Load", suite.testSaveLoad)
	t.Run("Save_Replaces", suite.testSaveReplaces)
	t.Run("Save_Empty", suite.testSaveEmpty)
	t.Run("Save_Large", suite.testSaveLarge)
	t.Run("Owners_Isolated", suite.testOwnersIsolated)
	t.Run("Delete", suite.testDelete)
	t.Run("Delete_Missing", suite.testDeleteMissing)
	t.Run("Cancelled_Context", suite.testCancelledContext)
	t.Run("Concurrent", suite.testConcurrent)
}

func (suite *StoreTestSuite) newStore(t *testing.T) cache.Store {
	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testContext() context.Context {
	return context.Background()
}

// ============================================================================
// Load / Save
// ============================================================================

func (suite *StoreTestSuite) testLoadMiss(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.Load(testContext(), uuid.New())
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func (suite *StoreTestSuite) testSaveLoad(t *testing.T) {
	store := suite.newStore(t)
	owner := uuid.New()
	data := []byte("GINV snapshot bytes")

	require.NoError(t, store.Save(testContext(), owner, data))

	loaded, err := store.Load(testContext(), owner)
	require.NoError(t, err)
	assert.Equal(t, data, loaded)
}

func (suite *StoreTestSuite) testSaveReplaces(t *testing.T) {
	store := suite.newStore(t)
	owner := uuid.New()

	require.NoError(t, store.Save(testContext(), owner, []byte("first version, longer")))
	require.NoError(t, store.Save(testContext(), owner, []byte("second")))

	loaded, err := store.Load(testContext(), owner)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), loaded)
}

func (suite *StoreTestSuite) testSaveEmpty(t *testing.T) {
	store := suite.newStore(t)
	owner := uuid.New()

	require.NoError(t, store.Save(testContext(), owner, []byte{}))

	loaded, err := store.Load(testContext(), owner)
	require.NoError(t, err)
	assert.Len(t, loaded, 0)
}

func (suite *StoreTestSuite) testSaveLarge(t *testing.T) {
	store := suite.newStore(t)
	owner := uuid.New()
	data := bytes.Repeat([]byte{0xAB, 0x00, 0x17}, 1<<20)

	require.NoError(t, store.Save(testContext(), owner, data))

	loaded, err := store.Load(testContext(), owner)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, loaded), "large snapshot mismatch")
}

func (suite *StoreTestSuite) testOwnersIsolated(t *testing.T) {
	store := suite.newStore(t)
	a, b := uuid.New(), uuid.New()

	require.NoError(t, store.Save(testContext(), a, []byte("a")))
	require.NoError(t, store.Save(testContext(), b, []byte("b")))

	loaded, err := store.Load(testContext(), a)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), loaded)

	loaded, err = store.Load(testContext(), b)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), loaded)
}

// ============================================================================
// Delete
// ============================================================================

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	store := suite.newStore(t)
	owner := uuid.New()

	require.NoError(t, store.Save(testContext(), owner, []byte("x")))
	require.NoError(t, store.Delete(testContext(), owner))

	_, err := store.Load(testContext(), owner)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func (suite *StoreTestSuite) testDeleteMissing(t *testing.T) {
	store := suite.newStore(t)
	assert.NoError(t, store.Delete(testContext(), uuid.New()))
}

// ============================================================================
// Context and concurrency
// ============================================================================

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.newStore(t)
	ctx, cancel := context.WithCancel(testContext())
	cancel()

	assert.ErrorIs(t, store.Save(ctx, uuid.New(), []byte("x")), context.Canceled)
	_, err := store.Load(ctx, uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Delete(ctx, uuid.New()), context.Canceled)
}

func (suite *StoreTestSuite) testConcurrent(t *testing.T) {
	store := suite.newStore(t)
	owner := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := []byte(fmt.Sprintf("snapshot-%02d", i))
			assert.NoError(t, store.Save(testContext(), owner, data))
			loaded, err := store.Load(testContext(), owner)
			if assert.NoError(t, err) {
				assert.Len(t, loaded, len(data))
			}
		}(i)
	}
	wg.Wait()
}
