package framework

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/caps"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/protocol"
	"github.com/marmos91/gridinv/pkg/protocol/llsd"
)

// Handler receives the messages the grid sends back to the client.
type Handler func(ctx context.Context, msg protocol.Message)

type gridFolder struct {
	data    protocol.FolderData
	version int32
}

// TestGrid simulates the server side of an agent's inventory.
//
// It implements protocol.Transport: every request the client sends is applied
// to the server-side tree and answered synchronously through the attached
// Handler. When started, it also serves the FetchInventoryDescendents2 and
// FetchInventory2 capabilities over HTTP.
type TestGrid struct {
	t       testing.TB
	owner   uuid.UUID
	root    uuid.UUID
	mu      sync.Mutex
	folders map[uuid.UUID]*gridFolder
	items   map[uuid.UUID]protocol.ItemData
	handler Handler
	counts  map[protocol.MessageType]int
	httpSrv *httptest.Server
	fetches int
}

// NewTestGrid creates a grid holding only the owner's root folder.
func NewTestGrid(t testing.TB, owner uuid.UUID) *TestGrid {
	g := &TestGrid{
		t:       t,
		owner:   owner,
		root:    uuid.New(),
		folders: make(map[uuid.UUID]*gridFolder),
		items:   make(map[uuid.UUID]protocol.ItemData),
		counts:  make(map[protocol.MessageType]int),
	}
	g.folders[g.root] = &gridFolder{
		data: protocol.FolderData{
			FolderID: g.root,
			OwnerID:  owner,
			Name:     "My Inventory",
			Type:     inventory.FolderTypeRoot,
		},
		version: 1,
	}
	return g
}

// Owner returns the agent owning the inventory.
func (g *TestGrid) Owner() uuid.UUID { return g.owner }

// Root returns the id of the inventory root folder.
func (g *TestGrid) Root() uuid.UUID { return g.root }

// Attach sets the handler replies are delivered to.
func (g *TestGrid) Attach(h Handler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
}

// ============================================================================
// Server-side tree
// ============================================================================

// Folder adds a folder to the server-side tree without notifying the client.
func (g *TestGrid) Folder(parent uuid.UUID, name string, ptype inventory.FolderType) uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.New()
	g.addFolderLocked(protocol.FolderData{
		FolderID: id,
		ParentID: parent,
		OwnerID:  g.owner,
		Name:     name,
		Type:     ptype,
	})
	return id
}

// Item adds a notecard to the server-side tree without notifying the client.
func (g *TestGrid) Item(parent uuid.UUID, name string) uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.New()
	g.putItemLocked(g.newItem(id, parent, name, inventory.AssetTypeNotecard, inventory.InventoryTypeNotecard))
	return id
}

// HasFolder reports whether the server-side tree holds folder id.
func (g *TestGrid) HasFolder(id uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.folders[id]
	return ok
}

// HasItem reports whether the server-side tree holds item id.
func (g *TestGrid) HasItem(id uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.items[id]
	return ok
}

// ParentOf returns the server-side parent of a node.
func (g *TestGrid) ParentOf(id uuid.UUID) (uuid.UUID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if f, ok := g.folders[id]; ok {
		return f.data.ParentID, true
	}
	if it, ok := g.items[id]; ok {
		return it.FolderID, true
	}
	return uuid.Nil, false
}

// NameOf returns the server-side name of a node.
func (g *TestGrid) NameOf(id uuid.UUID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if f, ok := g.folders[id]; ok {
		return f.data.Name
	}
	return g.items[id].Name
}

// ItemData returns the server-side record of an item.
func (g *TestGrid) ItemData(id uuid.UUID) (protocol.ItemData, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	it, ok := g.items[id]
	return it, ok
}

// Received returns how many messages of type t the grid received.
func (g *TestGrid) Received(t protocol.MessageType) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[t]
}

// CapabilityFetches returns how many capability requests the grid served.
func (g *TestGrid) CapabilityFetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches
}

func (g *TestGrid) newItem(id, parent uuid.UUID, name string, assetType inventory.AssetType, invType inventory.InventoryType) protocol.ItemData {
	return protocol.ItemData{
		ItemID:      id,
		FolderID:    parent,
		OwnerID:     g.owner,
		CreatorID:   g.owner,
		AssetID:     uuid.New(),
		Permissions: inventory.FullPermissions(),
		Type:        assetType,
		InvType:     invType,
		Name:        name,
	}
}

func (g *TestGrid) addFolderLocked(data protocol.FolderData) {
	g.folders[data.FolderID] = &gridFolder{data: data, version: 1}
	g.bumpLocked(data.ParentID)
}

func (g *TestGrid) putItemLocked(data protocol.ItemData) {
	data.CallbackID = 0
	if old, ok := g.items[data.ItemID]; ok {
		g.bumpLocked(old.FolderID)
	}
	g.items[data.ItemID] = data
	g.bumpLocked(data.FolderID)
}

func (g *TestGrid) bumpLocked(folderID uuid.UUID) {
	if f, ok := g.folders[folderID]; ok {
		f.version++
	}
}

func (g *TestGrid) removeFolderLocked(id uuid.UUID) {
	f, ok := g.folders[id]
	if !ok {
		return
	}
	g.purgeLocked(id)
	delete(g.folders, id)
	g.bumpLocked(f.data.ParentID)
}

func (g *TestGrid) removeItemLocked(id uuid.UUID) {
	it, ok := g.items[id]
	if !ok {
		return
	}
	delete(g.items, id)
	g.bumpLocked(it.FolderID)
}

func (g *TestGrid) purgeLocked(folderID uuid.UUID) {
	for id, f := range g.folders {
		if f.data.ParentID == folderID {
			g.removeFolderLocked(id)
		}
	}
	for id, it := range g.items {
		if it.FolderID == folderID {
			delete(g.items, id)
		}
	}
	g.bumpLocked(folderID)
}

// descendentsLocked builds the report listing the children of folderID.
func (g *TestGrid) descendentsLocked(folderID uuid.UUID) (*protocol.InventoryDescendents, bool) {
	folder, ok := g.folders[folderID]
	if !ok {
		return nil, false
	}

	reply := &protocol.InventoryDescendents{
		AgentID:  g.owner,
		FolderID: folderID,
		OwnerID:  g.owner,
		Version:  folder.version,
	}
	for _, f := range g.folders {
		if f.data.ParentID == folderID && f.data.FolderID != g.root {
			data := f.data
			data.Version = inventory.FolderVersionUnknown
			reply.Folders = append(reply.Folders, data)
		}
	}
	for _, it := range g.items {
		if it.FolderID == folderID {
			reply.Items = append(reply.Items, it)
		}
	}
	reply.Descendents = int32(len(reply.Folders) + len(reply.Items))
	return reply, true
}

// ============================================================================
// Transport
// ============================================================================

// Send implements protocol.Transport.
func (g *TestGrid) Send(ctx context.Context, msg protocol.Message) error {
	g.mu.Lock()
	g.counts[msg.Type()]++
	replies := g.applyLocked(msg)
	handler := g.handler
	g.mu.Unlock()

	if handler == nil {
		return nil
	}
	for _, reply := range replies {
		handler(ctx, reply)
	}
	return nil
}

func (g *TestGrid) applyLocked(msg protocol.Message) []protocol.Message {
	switch msg := msg.(type) {
	case *protocol.FetchInventoryDescendents:
		if reply, ok := g.descendentsLocked(msg.FolderID); ok {
			return []protocol.Message{reply}
		}

	case *protocol.FetchInventory:
		reply := &protocol.FetchInventoryReply{AgentID: g.owner}
		for _, req := range msg.Items {
			if it, ok := g.items[req.ItemID]; ok {
				reply.Items = append(reply.Items, it)
			}
		}
		return []protocol.Message{reply}

	case *protocol.CreateInventoryFolder:
		g.addFolderLocked(protocol.FolderData{
			FolderID: msg.FolderID,
			ParentID: msg.ParentID,
			OwnerID:  g.owner,
			Name:     msg.Name,
			Type:     msg.FolderType,
		})

	case *protocol.UpdateInventoryFolder:
		for _, data := range msg.Folders {
			if f, ok := g.folders[data.FolderID]; ok {
				g.bumpLocked(f.data.ParentID)
				f.data.Name = data.Name
				f.data.ParentID = data.ParentID
				f.data.Type = data.Type
				g.bumpLocked(data.ParentID)
			}
		}

	case *protocol.MoveInventoryFolder:
		for _, move := range msg.Moves {
			if f, ok := g.folders[move.FolderID]; ok {
				g.bumpLocked(f.data.ParentID)
				f.data.ParentID = move.ParentID
				g.bumpLocked(move.ParentID)
			}
		}

	case *protocol.MoveInventoryItem:
		for _, move := range msg.Moves {
			if it, ok := g.items[move.ItemID]; ok {
				it.FolderID = move.FolderID
				if move.NewName != "" {
					it.Name = move.NewName
				}
				g.putItemLocked(it)
			}
		}

	case *protocol.RemoveInventoryFolder:
		for _, id := range msg.FolderIDs {
			g.removeFolderLocked(id)
		}

	case *protocol.RemoveInventoryItem:
		for _, id := range msg.ItemIDs {
			g.removeItemLocked(id)
		}

	case *protocol.RemoveInventoryObjects:
		for _, id := range msg.FolderIDs {
			g.removeFolderLocked(id)
		}
		for _, id := range msg.ItemIDs {
			g.removeItemLocked(id)
		}

	case *protocol.PurgeInventoryDescendents:
		g.purgeLocked(msg.FolderID)

	case *protocol.CreateInventoryItem:
		if _, ok := g.folders[msg.FolderID]; !ok {
			return nil
		}
		item := g.newItem(uuid.New(), msg.FolderID, msg.Name, msg.AssetType, msg.InvType)
		item.Description = msg.Description
		item.TransactionID = msg.TransactionID
		item.Permissions.NextOwner = msg.NextOwnerMask
		g.putItemLocked(item)

		item.CallbackID = msg.CallbackID
		return []protocol.Message{&protocol.UpdateCreateInventoryItem{
			AgentID:       g.owner,
			SimApproved:   true,
			TransactionID: msg.TransactionID,
			Items:         []protocol.ItemData{item},
		}}

	case *protocol.CopyInventoryItem:
		reply := &protocol.BulkUpdateInventory{AgentID: g.owner}
		for _, copyReq := range msg.Items {
			src, ok := g.items[copyReq.OldItemID]
			if !ok {
				continue
			}
			dup := src
			dup.ItemID = uuid.New()
			dup.FolderID = copyReq.NewFolderID
			if copyReq.NewName != "" {
				dup.Name = copyReq.NewName
			}
			g.putItemLocked(dup)

			dup.CallbackID = copyReq.CallbackID
			reply.Items = append(reply.Items, dup)
		}
		return []protocol.Message{reply}

	case *protocol.LinkInventoryItem:
		link := g.newItem(uuid.New(), msg.FolderID, msg.Name, msg.AssetType, msg.InvType)
		link.AssetID = msg.OldItemID
		link.Description = msg.Description
		g.putItemLocked(link)

		link.CallbackID = msg.CallbackID
		return []protocol.Message{&protocol.UpdateCreateInventoryItem{
			AgentID:     g.owner,
			SimApproved: true,
			Items:       []protocol.ItemData{link},
		}}

	case *protocol.UpdateInventoryItem:
		var echoed []protocol.ItemData
		for _, data := range msg.Items {
			if _, ok := g.items[data.ItemID]; !ok {
				continue
			}
			g.putItemLocked(data)
			if data.CallbackID != 0 {
				echoed = append(echoed, data)
			}
		}
		if len(echoed) > 0 {
			return []protocol.Message{&protocol.UpdateCreateInventoryItem{
				AgentID:     g.owner,
				SimApproved: true,
				Items:       echoed,
			}}
		}
	}
	return nil
}

// ============================================================================
// Server-initiated changes
// ============================================================================

// Give files a new notecard under parent and tells the client with a bulk
// update, the way the grid announces items given by other residents.
func (g *TestGrid) Give(ctx context.Context, parent uuid.UUID, name string) uuid.UUID {
	g.mu.Lock()
	id := uuid.New()
	item := g.newItem(id, parent, name, inventory.AssetTypeNotecard, inventory.InventoryTypeNotecard)
	g.putItemLocked(item)
	handler := g.handler
	g.mu.Unlock()

	if handler != nil {
		handler(ctx, &protocol.BulkUpdateInventory{AgentID: g.owner, Items: []protocol.ItemData{item}})
	}
	return id
}

// Delete removes an item server-side and tells the client.
func (g *TestGrid) Delete(ctx context.Context, itemID uuid.UUID) {
	g.mu.Lock()
	g.removeItemLocked(itemID)
	handler := g.handler
	g.mu.Unlock()

	if handler != nil {
		handler(ctx, &protocol.InventoryRemoved{AgentID: g.owner, ItemIDs: []uuid.UUID{itemID}})
	}
}

// Relocate moves an item server-side and tells the client.
func (g *TestGrid) Relocate(ctx context.Context, itemID, folderID uuid.UUID, newName string) {
	g.mu.Lock()
	if it, ok := g.items[itemID]; ok {
		it.FolderID = folderID
		if newName != "" {
			it.Name = newName
		}
		g.putItemLocked(it)
	}
	handler := g.handler
	g.mu.Unlock()

	if handler != nil {
		handler(ctx, &protocol.InventoryMoved{
			AgentID: g.owner,
			Moves:   []protocol.InventoryMove{{ItemID: itemID, FolderID: folderID, NewName: newName}},
		})
	}
}

// ============================================================================
// Capabilities
// ============================================================================

// Start serves the fetch capabilities over HTTP.
func (g *TestGrid) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/"+caps.FetchInventoryDescendents2, g.llsdHandler(g.serveDescendents))
	mux.HandleFunc("/"+caps.FetchInventory2, g.llsdHandler(g.serveItems))
	g.httpSrv = httptest.NewServer(mux)
}

// Stop shuts the capability server down.
func (g *TestGrid) Stop() {
	if g.httpSrv != nil {
		g.httpSrv.Close()
		g.httpSrv = nil
	}
}

// Capabilities returns the capability URLs served by Start; empty when the
// grid is not serving HTTP.
func (g *TestGrid) Capabilities() caps.StaticProvider {
	provider := caps.StaticProvider{}
	if g.httpSrv == nil {
		return provider
	}
	provider[caps.FetchInventoryDescendents2] = g.httpSrv.URL + "/" + caps.FetchInventoryDescendents2
	provider[caps.FetchInventory2] = g.httpSrv.URL + "/" + caps.FetchInventory2
	return provider
}

func (g *TestGrid) llsdHandler(fn func(req map[string]any) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req, err := llsd.Unmarshal(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		g.mu.Lock()
		g.fetches++
		reply := fn(llsd.AsMap(req))
		g.mu.Unlock()

		data, err := llsd.Marshal(reply)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", llsd.ContentType)
		_, _ = w.Write(data)
	}
}

// serveDescendents runs under g.mu.
func (g *TestGrid) serveDescendents(req map[string]any) any {
	folders := []any{}
	badFolders := []any{}
	for _, raw := range llsd.AsArray(req["folders"]) {
		folderID := llsd.AsUUID(llsd.AsMap(raw)["folder_id"])
		reply, ok := g.descendentsLocked(folderID)
		if !ok {
			badFolders = append(badFolders, map[string]any{"folder_id": folderID, "error": "Unknown"})
			continue
		}

		categories := []any{}
		for _, f := range reply.Folders {
			categories = append(categories, map[string]any{
				"category_id":  f.FolderID,
				"parent_id":    f.ParentID,
				"agent_id":     f.OwnerID,
				"name":         f.Name,
				"type_default": int32(f.Type),
			})
		}
		items := []any{}
		for _, it := range reply.Items {
			items = append(items, caps.ItemToLLSD(it))
		}
		folders = append(folders, map[string]any{
			"agent_id":    g.owner,
			"folder_id":   folderID,
			"owner_id":    g.owner,
			"version":     reply.Version,
			"descendents": reply.Descendents,
			"categories":  categories,
			"items":       items,
		})
	}
	return map[string]any{"folders": folders, "bad_folders": badFolders}
}

// serveItems runs under g.mu.
func (g *TestGrid) serveItems(req map[string]any) any {
	items := []any{}
	for _, raw := range llsd.AsArray(req["items"]) {
		if it, ok := g.items[llsd.AsUUID(llsd.AsMap(raw)["item_id"])]; ok {
			items = append(items, caps.ItemToLLSD(it))
		}
	}
	return map[string]any{"agent_id": g.owner, "items": items}
}
