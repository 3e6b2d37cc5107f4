package manager

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/callback"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/protocol"
)

// FindObjectCallback receives the node found at path.
type FindObjectCallback func(path string, id uuid.UUID)

// search is a path lookup waiting for the contents of folder.
type search struct {
	folder   uuid.UUID
	owner    uuid.UUID
	path     string
	segments []string
	level    int
	callback FindObjectCallback
}

type searchResult struct {
	callback FindObjectCallback
	path     string
	id       uuid.UUID
}

type folderRequest struct {
	folder uuid.UUID
	owner  uuid.UUID
}

// splitPath returns the non-empty "/"-separated segments of path.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// RequestFindObjectByPath resolves a "/"-separated path of names below
// baseFolder, fetching one folder per level. cb runs once with the id of the
// node named by the last segment. A segment that matches nothing stalls the
// search; the returned cancel func discards it.
//
// An empty path resolves to baseFolder immediately.
func (m *Manager) RequestFindObjectByPath(ctx context.Context, baseFolder, ownerID uuid.UUID, path string, cb FindObjectCallback) (cancel func(), err error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		if cb != nil {
			callback.Guard("find object", func() { cb(path, baseFolder) })
		}
		return func() {}, nil
	}

	m.mu.Lock()
	m.nextSearch++
	id := m.nextSearch
	m.searches[id] = &search{
		folder:   baseFolder,
		owner:    ownerID,
		path:     path,
		segments: segments,
		callback: cb,
	}
	m.mu.Unlock()
	m.reportPending()

	cancel = func() {
		m.mu.Lock()
		_, ok := m.searches[id]
		delete(m.searches, id)
		m.mu.Unlock()
		if ok {
			m.reportPending()
		}
	}

	if err := m.RequestFolderContents(ctx, baseFolder, ownerID, true, true, protocol.SortByName); err != nil {
		cancel()
		return func() {}, err
	}
	return cancel, nil
}

// FindObjectByPath resolves path below baseFolder and waits for the result.
//
// Returns:
//   - id: The node named by the last segment
//   - ok: false on timeout, cancellation or send failure
func (m *Manager) FindObjectByPath(ctx context.Context, baseFolder, ownerID uuid.UUID, path string, timeout time.Duration) (uuid.UUID, bool) {
	ready := make(chan uuid.UUID, 1)
	cancel, err := m.RequestFindObjectByPath(ctx, baseFolder, ownerID, path, func(_ string, id uuid.UUID) {
		select {
		case ready <- id:
		default:
		}
	})
	if err != nil {
		logSendFailure("find object by path", err)
		return uuid.Nil, false
	}
	defer cancel()

	return await(ctx, m, waitFindPath, ready, m.timeoutOrDefault(timeout))
}

// advanceSearches moves every search waiting on folderID one level down.
// Follow-up requests and completion callbacks run after the manager lock is
// released.
func (m *Manager) advanceSearches(folderID uuid.UUID) {
	m.mu.Lock()
	if len(m.searches) == 0 {
		m.mu.Unlock()
		return
	}

	var contents []inventory.Node
	var loaded bool
	var results []searchResult
	var requests []folderRequest
	requested := make(map[uuid.UUID]bool)

	for id, s := range m.searches {
		if s.folder != folderID {
			continue
		}
		if !loaded {
			contents, _ = m.store.Contents(folderID)
			loaded = true
		}

		last := s.level == len(s.segments)-1
		match, ok := findChild(contents, s.segments[s.level], !last)
		if !ok {
			continue
		}

		if last {
			delete(m.searches, id)
			results = append(results, searchResult{callback: s.callback, path: s.path, id: match})
			continue
		}

		s.folder = match
		s.level++
		if !requested[match] {
			requested[match] = true
			requests = append(requests, folderRequest{folder: match, owner: s.owner})
		}
	}
	m.mu.Unlock()

	if len(results) > 0 {
		m.reportPending()
	}
	for _, r := range results {
		if r.callback != nil {
			callback.Guard("find object", func() { r.callback(r.path, r.id) })
		}
	}
	for _, r := range requests {
		if err := m.RequestFolderContents(m.ctx, r.folder, r.owner, true, true, protocol.SortByName); err != nil {
			logSendFailure("path search follow-up", err)
		}
	}
}

// findChild returns the first child named name in Contents order.
// Intermediate segments only match folders.
func findChild(contents []inventory.Node, name string, foldersOnly bool) (uuid.UUID, bool) {
	for _, node := range contents {
		if foldersOnly {
			if _, ok := node.(*inventory.Folder); !ok {
				continue
			}
		}
		if inventory.NameOf(node) == name {
			return inventory.IDOf(node), true
		}
	}
	return uuid.Nil, false
}
