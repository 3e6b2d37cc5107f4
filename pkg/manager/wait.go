package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/metrics"
)

// Wait kinds reported to metrics.
const (
	waitFetchItem      = "fetch_item"
	waitFolderContents = "folder_contents"
	waitFindPath       = "find_path"
	waitCreateItem     = "create_item"
	waitCopyItem       = "copy_item"
)

// await blocks until ready delivers, the timeout expires or ctx is done, and
// records the outcome.
func await[T any](ctx context.Context, m *Manager, kind string, ready <-chan T, timeout time.Duration) (T, bool) {
	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case v := <-ready:
		m.metrics.RecordWait(kind, metrics.WaitCompleted, time.Since(start))
		return v, true
	case <-timer.C:
		m.metrics.RecordWait(kind, metrics.WaitTimeout, time.Since(start))
		logger.Debug("Wait for %s timed out after %s", kind, timeout)
		return zero, false
	case <-ctx.Done():
		m.metrics.RecordWait(kind, metrics.WaitCancelled, time.Since(start))
		return zero, false
	}
}

// beginWait counts a blocked wrapper; the returned func undoes it.
func (m *Manager) beginWait() func() {
	m.waiters.Add(1)
	m.reportPending()
	return func() {
		m.waiters.Add(-1)
		m.reportPending()
	}
}

// FetchItem requests an item and waits for the reply.
//
// Returns:
//   - item: Copy of the stored item once the reply is applied
//   - ok: false on timeout, cancellation or send failure
func (m *Manager) FetchItem(ctx context.Context, itemID, ownerID uuid.UUID, timeout time.Duration) (*inventory.Item, bool) {
	defer m.beginWait()()

	ready := make(chan *inventory.Item, 1)
	unsubscribe := m.itemReceived.Add(func(item *inventory.Item) {
		if item.ID != itemID {
			return
		}
		select {
		case ready <- item:
		default:
		}
	})
	defer unsubscribe()

	if err := m.RequestFetchInventory(ctx, itemID, ownerID); err != nil {
		logSendFailure("fetch item", err)
		return nil, false
	}
	return await(ctx, m, waitFetchItem, ready, m.timeoutOrDefault(timeout))
}

// FolderContents requests a folder's children and waits for the report.
//
// Returns:
//   - nodes: Sorted copies of the folder's children once the report is
//     applied; nil on timeout or cancellation
//   - error: Send failures only
func (m *Manager) FolderContents(ctx context.Context, folderID, ownerID uuid.UUID, folders, items bool, order int32, timeout time.Duration) ([]inventory.Node, error) {
	defer m.beginWait()()

	ready := make(chan struct{}, 1)
	unsubscribe := m.folderUpdated.Add(func(id uuid.UUID) {
		if id != folderID {
			return
		}
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if err := m.RequestFolderContents(ctx, folderID, ownerID, folders, items, order); err != nil {
		return nil, err
	}
	if _, ok := await(ctx, m, waitFolderContents, ready, m.timeoutOrDefault(timeout)); !ok {
		return nil, nil
	}
	return m.store.Contents(folderID)
}

// CreateItem creates an item and waits for the server's confirmation.
//
// Returns:
//   - item: The created item
//   - ok: false on rejection, timeout, cancellation or send failure
func (m *Manager) CreateItem(ctx context.Context, req CreateItemRequest, timeout time.Duration) (*inventory.Item, bool) {
	ready := make(chan *inventory.Item, 1)
	id, err := m.requestCreateItem(ctx, req, oneShot(ready))
	if err != nil {
		logSendFailure("create item", err)
		return nil, false
	}
	defer m.popCallback(id)

	item, ok := await(ctx, m, waitCreateItem, ready, m.timeoutOrDefault(timeout))
	return item, ok && item != nil
}

// CopyItem copies an item and waits for the copy to arrive.
func (m *Manager) CopyItem(ctx context.Context, itemID, newParentID uuid.UUID, newName string, timeout time.Duration) (*inventory.Item, bool) {
	ready := make(chan *inventory.Item, 1)
	id, err := m.requestCopyItem(ctx, itemID, newParentID, newName, oneShot(ready))
	if err != nil {
		logSendFailure("copy item", err)
		return nil, false
	}
	defer m.popCallback(id)

	item, ok := await(ctx, m, waitCopyItem, ready, m.timeoutOrDefault(timeout))
	return item, ok && item != nil
}

// oneShot adapts a buffered channel to an ItemCreatedCallback. A rejection
// delivers nil so the waiter stops early.
func oneShot(ready chan<- *inventory.Item) ItemCreatedCallback {
	return func(success bool, item *inventory.Item) {
		if !success {
			item = nil
		}
		select {
		case ready <- item:
		default:
		}
	}
}
