package inventory

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/callback"
	"github.com/marmos91/gridinv/internal/logger"
)

// Store owns the local replica of one agent's inventory tree.
//
// Updates arrive from the server asynchronously, out of order and partially:
// an item may be delivered before the folder that contains it. The store
// reconciles these arrivals into a consistent hierarchy by parking nodes
// whose declared parent is not yet known and linking them as soon as that
// parent arrives.
//
// Thread Safety:
// All operations are protected by a single read-write mutex (mu). Moves and
// cascading removes touch several nodes and must be indivisible, so there is
// no per-node locking. Listeners registered with Subscribe are invoked after
// the lock has been released.
//
// Storage Model:
//
//  1. Linked nodes (folders, items):
//     Every node reachable from the synthetic top folder (id uuid.Nil) is
//     present in exactly one of these tables, keyed by its id, and appears
//     exactly once in its parent's children.
//
//  2. Parked nodes (unresolved, parked):
//     Nodes whose declared parent is not in the folder table. unresolved
//     groups them by the parent id they wait for; parked maps each parked
//     node id to that parent id. Parked nodes are invisible to lookups and
//     hold no children: a folder that gets parked releases its subtree,
//     each child parking under the folder's id until it is linked again.
//
// A node is never present in both a table and the parking lot, and never
// attached to two folders at once.
type Store struct {
	// mu protects every field below.
	mu sync.RWMutex

	owner uuid.UUID

	// top is the synthetic top folder, always present in folders
	top *Folder

	folders map[uuid.UUID]*Folder
	items   map[uuid.UUID]*Item

	unresolved map[uuid.UUID]map[uuid.UUID]Node
	parked     map[uuid.UUID]uuid.UUID

	inventoryRoot uuid.UUID
	libraryRoot   uuid.UUID

	listeners *callback.List[Event]
}

// Stats summarises the store contents.
type Stats struct {
	// Folders is the number of linked folders, not counting the synthetic top
	Folders int

	// Items is the number of linked items
	Items int

	// Unresolved is the number of parked nodes
	Unresolved int
}

// NewStore creates an empty store for the given agent.
func NewStore(owner uuid.UUID) *Store {
	store := &Store{owner: owner, listeners: callback.NewList[Event]("inventory event")}
	store.resetLocked()
	return store
}

// resetLocked drops all nodes. Must be called with mu held (or before the
// store is shared).
func (store *Store) resetLocked() {
	store.top = NewFolder(uuid.Nil, uuid.Nil, store.owner, "", FolderTypeNone)
	store.top.attach(uuid.Nil)
	store.folders = map[uuid.UUID]*Folder{uuid.Nil: store.top}
	store.items = make(map[uuid.UUID]*Item)
	store.unresolved = make(map[uuid.UUID]map[uuid.UUID]Node)
	store.parked = make(map[uuid.UUID]uuid.UUID)
}

// Owner returns the agent the store belongs to.
func (store *Store) Owner() uuid.UUID {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.owner
}

// SetInventoryRoot records the id of the agent's inventory root folder.
func (store *Store) SetInventoryRoot(id uuid.UUID) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.inventoryRoot = id
}

// InventoryRoot returns the id of the agent's inventory root folder.
func (store *Store) InventoryRoot() uuid.UUID {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.inventoryRoot
}

// SetLibraryRoot records the id of the shared library root folder.
func (store *Store) SetLibraryRoot(id uuid.UUID) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.libraryRoot = id
}

// LibraryRoot returns the id of the shared library root folder.
func (store *Store) LibraryRoot() uuid.UUID {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.libraryRoot
}

// ============================================================================
// Insert / update
// ============================================================================

// Add inserts a node or updates the stored copy of a node with the same id.
//
// The store keeps its own copy of the node; later changes to the argument
// have no effect on the tree. When the node is already known its fields are
// merged into the stored copy:
//   - name, owner, declared parent and variant metadata are overwritten
//   - a folder keeps its children
//   - a folder's Version and DescendentCount are only taken when the
//     incoming Version is not older than the stored one
//
// If the declared parent differs from the folder the node is attached to,
// the node is detached from the old folder first (a move). The node is then
// linked when its parent is known, or parked until the parent arrives. When
// a folder is linked, every node parked under it is linked as well,
// recursively, so the resulting tree does not depend on arrival order.
//
// Parameters:
//   - node: Folder or item to insert, with ParentID set
//
// Returns:
//   - error: ErrInvalidArgument for a nil node, the synthetic top id, a node
//     claiming itself or one of its descendants as parent, or a folder/item
//     id collision
func (store *Store) Add(node Node) error {
	store.mu.Lock()
	var events []Event
	err := store.addLocked(node, &events)
	store.mu.Unlock()

	store.dispatch(events)
	return err
}

// Move reparents node under newParentID and stores it. Renames travel the
// same path: set the new name on node before calling Move.
func (store *Store) Move(node Node, newParentID uuid.UUID) error {
	if isNil(node) {
		return newError(ErrInvalidArgument, uuid.Nil, "nil node")
	}
	node.Base().ParentID = newParentID
	return store.Add(node)
}

// MoveByID reparents the stored node id under newParentID, renaming it when
// newName is not empty.
//
// Returns:
//   - error: ErrNodeNotKnown if id is neither linked nor parked, or any
//     error Add would return
func (store *Store) MoveByID(id, newParentID uuid.UUID, newName string) error {
	store.mu.Lock()
	var events []Event
	err := store.moveByIDLocked(id, newParentID, newName, &events)
	store.mu.Unlock()

	store.dispatch(events)
	return err
}

func (store *Store) moveByIDLocked(id, newParentID uuid.UUID, newName string, events *[]Event) error {
	existing, ok := store.lookupLocked(id)
	if !ok {
		return newError(ErrNodeNotKnown, id, "cannot move unknown node")
	}

	updated := existing.Clone()
	updated.Base().ParentID = newParentID
	if newName != "" {
		updated.Base().Name = newName
	}
	return store.addLocked(updated, events)
}

func (store *Store) addLocked(node Node, events *[]Event) error {
	if isNil(node) {
		return newError(ErrInvalidArgument, uuid.Nil, "nil node")
	}

	incoming := node.Base()
	id := incoming.ID
	if id == uuid.Nil {
		return newError(ErrInvalidArgument, id, "cannot add a node with the nil id")
	}
	if incoming.ParentID == id {
		return newError(ErrInvalidArgument, id, "node cannot be its own parent")
	}

	stored, known := store.lookupLocked(id)
	if !known {
		stored = node.Clone()
	} else {
		if !sameVariant(stored, node) {
			logger.Error("Inventory node %s delivered as both folder and item, ignoring update", id)
			return newError(ErrInvalidArgument, id, "folder/item id collision")
		}
		if folder, ok := stored.(*Folder); ok && incoming.ParentID != folder.ParentID {
			if store.isDescendantLocked(incoming.ParentID, folder) {
				return newError(ErrInvalidArgument, id, "folder cannot move under its own descendant")
			}
		}
		mergeNode(stored, node)
	}

	base := stored.Base()
	newParent := base.ParentID

	// Already in place: a plain update
	if attachedTo, attached := base.AttachedTo(); attached && attachedTo == newParent {
		*events = append(*events, Event{Kind: EventNodeUpdated, Node: stored.Clone(), Parent: newParent})
		return nil
	}

	// Move detection: leave the old folder or the old slot in the parking lot
	oldParent, wasLinked := base.AttachedTo()
	if wasLinked {
		if old, ok := store.folders[oldParent]; ok {
			delete(old.children, id)
		}
		base.detach()
	} else if known {
		store.unparkLocked(id)
	}

	if parent, ok := store.folders[newParent]; ok {
		parent.childMap()[id] = stored
		base.attach(newParent)
		if wasLinked {
			*events = append(*events, Event{Kind: EventNodeMoved, Node: stored.Clone(), Parent: newParent, OldParent: oldParent})
			return nil
		}
		store.linkLocked(stored, events)
		return nil
	}

	// Parent unknown: park, releasing the subtree of a folder that was linked
	if wasLinked {
		store.unlinkLocked(stored, events)
	}
	store.parkLocked(stored, newParent)
	return nil
}

// linkLocked enters an attached node into the tables and drains the nodes
// parked under it (breadth first, so arbitrarily deep parked chains are
// linked without recursion).
func (store *Store) linkLocked(node Node, events *[]Event) {
	queue := []Node{node}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		id := current.Base().ID
		*events = append(*events, Event{Kind: EventNodeAdded, Node: current.Clone(), Parent: current.Base().ParentID})

		switch n := current.(type) {
		case *Item:
			store.items[id] = n
		case *Folder:
			store.folders[id] = n
			orphans := store.unresolved[id]
			if len(orphans) == 0 {
				continue
			}
			delete(store.unresolved, id)
			children := n.childMap()
			for orphanID, orphan := range orphans {
				delete(store.parked, orphanID)
				children[orphanID] = orphan
				orphan.Base().attach(id)
				queue = append(queue, orphan)
			}
		}
	}
}

// unlinkLocked takes a detached node and its subtree out of the tables. Each
// descendant is parked under its own parent so that relinking the node
// restores the subtree through the regular drain.
func (store *Store) unlinkLocked(node Node, events *[]Event) {
	stack := []Node{node}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		id := current.Base().ID
		*events = append(*events, Event{Kind: EventNodeRemoved, Node: current.Clone(), Parent: current.Base().ParentID})

		switch n := current.(type) {
		case *Item:
			delete(store.items, id)
		case *Folder:
			delete(store.folders, id)
			for childID, child := range n.children {
				child.Base().detach()
				store.parkLocked(child, id)
				stack = append(stack, child)
				delete(n.children, childID)
			}
		}
	}
}

func (store *Store) parkLocked(node Node, parentID uuid.UUID) {
	id := node.Base().ID
	orphans, ok := store.unresolved[parentID]
	if !ok {
		orphans = make(map[uuid.UUID]Node)
		store.unresolved[parentID] = orphans
	}
	orphans[id] = node
	store.parked[id] = parentID
	logger.Debug("Parked inventory node %s until folder %s arrives", id, parentID)
}

func (store *Store) unparkLocked(id uuid.UUID) {
	parentID, ok := store.parked[id]
	if !ok {
		return
	}
	delete(store.parked, id)
	if orphans, ok := store.unresolved[parentID]; ok {
		delete(orphans, id)
		if len(orphans) == 0 {
			delete(store.unresolved, parentID)
		}
	}
}

// lookupLocked finds a node whether linked or parked.
func (store *Store) lookupLocked(id uuid.UUID) (Node, bool) {
	if folder, ok := store.folders[id]; ok {
		return folder, true
	}
	if item, ok := store.items[id]; ok {
		return item, true
	}
	if parentID, ok := store.parked[id]; ok {
		node, ok := store.unresolved[parentID][id]
		return node, ok
	}
	return nil, false
}

// isDescendantLocked reports whether candidate is folder itself or lies in
// its linked subtree.
func (store *Store) isDescendantLocked(candidate uuid.UUID, folder *Folder) bool {
	current, ok := store.folders[candidate]
	for ok {
		if current.ID == folder.ID {
			return true
		}
		parent, attached := current.AttachedTo()
		if !attached || current.ID == uuid.Nil {
			return false
		}
		current, ok = store.folders[parent]
	}
	return false
}

func isNil(node Node) bool {
	switch n := node.(type) {
	case nil:
		return true
	case *Folder:
		return n == nil
	case *Item:
		return n == nil
	}
	return false
}

func sameVariant(a, b Node) bool {
	_, aFolder := a.(*Folder)
	_, bFolder := b.(*Folder)
	return aFolder == bFolder
}

// mergeNode copies the incoming fields into the stored node, keeping the
// stored node's link state and children.
func mergeNode(stored, incoming Node) {
	switch dst := stored.(type) {
	case *Folder:
		src := incoming.(*Folder)
		dst.Name = src.Name
		dst.OwnerID = src.OwnerID
		dst.ParentID = src.ParentID
		dst.PreferredType = src.PreferredType
		if src.Version >= dst.Version {
			dst.Version = src.Version
			dst.DescendentCount = src.DescendentCount
		}
	case *Item:
		src := incoming.(*Item)
		link := dst.NodeBase
		*dst = *src
		dst.attachedTo = link.attachedTo
		dst.attached = link.attached
	}
}

// ============================================================================
// Removal
// ============================================================================

// Remove deletes a node. Removing a folder removes its whole subtree, along
// with any node still parked under a removed folder.
//
// Returns:
//   - error: ErrInvalidArgument for the synthetic top folder, ErrNodeNotKnown
//     if id is neither linked nor parked
func (store *Store) Remove(id uuid.UUID) error {
	store.mu.Lock()
	var events []Event
	err := store.removeLocked(id, &events)
	store.mu.Unlock()

	store.dispatch(events)
	return err
}

func (store *Store) removeLocked(id uuid.UUID, events *[]Event) error {
	if id == uuid.Nil {
		return newError(ErrInvalidArgument, id, "cannot remove the top folder")
	}

	node, ok := store.lookupLocked(id)
	if !ok {
		return newError(ErrNodeNotKnown, id, "cannot remove unknown node")
	}

	if parentID, attached := node.Base().AttachedTo(); attached {
		if parent, ok := store.folders[parentID]; ok {
			delete(parent.children, id)
		}
		node.Base().detach()

		// Depth first: children leave the tables before their folder
		var remove func(n Node)
		remove = func(n Node) {
			nid := n.Base().ID
			if folder, ok := n.(*Folder); ok {
				for _, child := range folder.children {
					remove(child)
				}
				folder.children = nil
				delete(store.folders, nid)
				store.dropOrphansLocked(nid)
			} else {
				delete(store.items, nid)
			}
			*events = append(*events, Event{Kind: EventNodeRemoved, Node: n.Clone(), Parent: n.Base().ParentID})
		}
		remove(node)
		return nil
	}

	// Parked nodes were never visible: no events
	store.unparkLocked(id)
	store.dropOrphansLocked(id)
	return nil
}

// dropOrphansLocked discards the nodes parked under a folder that will never
// arrive again, together with anything parked under them.
func (store *Store) dropOrphansLocked(folderID uuid.UUID) {
	pending := []uuid.UUID{folderID}
	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		orphans := store.unresolved[current]
		delete(store.unresolved, current)
		for orphanID := range orphans {
			delete(store.parked, orphanID)
			pending = append(pending, orphanID)
		}
		if len(orphans) > 0 {
			logger.Debug("Dropped %d inventory nodes parked under removed folder %s", len(orphans), current)
		}
	}
}

// ============================================================================
// Bulk descendant reports
// ============================================================================

// ReconcileDescendants applies a server report listing the children of
// folderID.
//
// A report whose version is older than the folder's current version arrived
// out of order and is discarded without touching the folder. Otherwise the
// reported folders are added before the reported items, so items filed under
// a reported folder link immediately, and then the folder's version and
// descendant count are recorded and a folder-updated event is emitted.
// Records that fail to apply are logged and skipped.
//
// Parameters:
//   - folderID: Folder the report describes
//   - version: Folder version reported by the server
//   - descendents: Server-side count of the folder's children
//   - folders, items: Reported children
//
// Returns:
//   - bool: true if the report was applied to a known folder
//   - error: ErrFolderNotKnown if folderID is not linked; the records are
//     still stored (they park until the folder arrives) but no version is
//     recorded
func (store *Store) ReconcileDescendants(folderID uuid.UUID, version, descendents int32, folders []*Folder, items []*Item) (bool, error) {
	store.mu.Lock()
	var events []Event
	applied, err := store.reconcileLocked(folderID, version, descendents, folders, items, &events)
	store.mu.Unlock()

	store.dispatch(events)
	return applied, err
}

func (store *Store) reconcileLocked(folderID uuid.UUID, version, descendents int32, folders []*Folder, items []*Item, events *[]Event) (bool, error) {
	if folder, ok := store.folders[folderID]; ok && version < folder.Version {
		logger.Debug("Discarding stale descendents of %s: version %d < %d", folderID, version, folder.Version)
		return false, nil
	}

	for _, f := range folders {
		if f == nil {
			continue
		}
		if err := store.addLocked(f, events); err != nil {
			logger.Error("Skipping folder %s in descendents of %s: %v", f.ID, folderID, err)
		}
	}
	for _, i := range items {
		if i == nil {
			continue
		}
		if err := store.addLocked(i, events); err != nil {
			logger.Error("Skipping item %s in descendents of %s: %v", i.ID, folderID, err)
		}
	}

	folder, ok := store.folders[folderID]
	if !ok {
		return false, newError(ErrFolderNotKnown, folderID, "descendents reported for unknown folder")
	}
	folder.Version = version
	folder.DescendentCount = descendents
	*events = append(*events, Event{Kind: EventFolderUpdated, Node: folder.Clone(), Parent: folder.ParentID})
	return true, nil
}

// ============================================================================
// Queries
// ============================================================================

// Contents returns copies of the children of a folder, folders first, then
// by name. The slice is a snapshot: later tree changes do not affect it.
//
// Returns:
//   - error: ErrFolderNotKnown if folderID is not a linked folder
func (store *Store) Contents(folderID uuid.UUID) ([]Node, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	folder, ok := store.folders[folderID]
	if !ok {
		return nil, newError(ErrFolderNotKnown, folderID, "folder not known")
	}

	contents := make([]Node, 0, len(folder.children))
	for _, child := range folder.children {
		contents = append(contents, child.Clone())
	}
	sortNodes(contents)
	return contents, nil
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		_, iFolder := nodes[i].(*Folder)
		_, jFolder := nodes[j].(*Folder)
		if iFolder != jFolder {
			return iFolder
		}
		ni, nj := nodes[i].Base(), nodes[j].Base()
		if ni.Name != nj.Name {
			return ni.Name < nj.Name
		}
		return strings.Compare(ni.ID.String(), nj.ID.String()) < 0
	})
}

// ChildCount returns the number of materialized children of a linked folder.
func (store *Store) ChildCount(folderID uuid.UUID) (int, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	folder, ok := store.folders[folderID]
	if !ok {
		return 0, false
	}
	return len(folder.children), true
}

// Get returns a copy of a linked node. Parked nodes are not visible.
func (store *Store) Get(id uuid.UUID) (Node, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if folder, ok := store.folders[id]; ok {
		return folder.Clone(), true
	}
	if item, ok := store.items[id]; ok {
		return item.Clone(), true
	}
	return nil, false
}

// GetFolder returns a copy of a linked folder.
func (store *Store) GetFolder(id uuid.UUID) (*Folder, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	folder, ok := store.folders[id]
	if !ok {
		return nil, false
	}
	return folder.Clone().(*Folder), true
}

// GetItem returns a copy of a linked item.
func (store *Store) GetItem(id uuid.UUID) (*Item, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	item, ok := store.items[id]
	if !ok {
		return nil, false
	}
	return item.Clone().(*Item), true
}

// Contains reports whether id is a linked node.
func (store *Store) Contains(id uuid.UUID) bool {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if _, ok := store.folders[id]; ok {
		return true
	}
	_, ok := store.items[id]
	return ok
}

// IsParked reports whether id is waiting for its parent folder.
func (store *Store) IsParked(id uuid.UUID) bool {
	store.mu.RLock()
	defer store.mu.RUnlock()

	_, ok := store.parked[id]
	return ok
}

// Parent returns a copy of the folder a linked node is attached to.
func (store *Store) Parent(id uuid.UUID) (*Folder, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	node, ok := store.linkedLocked(id)
	if !ok || id == uuid.Nil {
		return nil, false
	}
	parentID, _ := node.Base().AttachedTo()
	parent, ok := store.folders[parentID]
	if !ok {
		return nil, false
	}
	return parent.Clone().(*Folder), true
}

func (store *Store) linkedLocked(id uuid.UUID) (Node, bool) {
	if folder, ok := store.folders[id]; ok {
		return folder, true
	}
	if item, ok := store.items[id]; ok {
		return item, true
	}
	return nil, false
}

// Path returns the "/"-joined names leading from the inventory (or library)
// root to a linked node. The root itself has the empty path.
//
// Returns:
//   - error: ErrNodeNotKnown if id is not linked
func (store *Store) Path(id uuid.UUID) (string, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	node, ok := store.linkedLocked(id)
	if !ok {
		return "", newError(ErrNodeNotKnown, id, "node not known")
	}

	var names []string
	for {
		base := node.Base()
		if base.ID == uuid.Nil || base.ID == store.inventoryRoot || base.ID == store.libraryRoot {
			break
		}
		names = append(names, base.Name)
		parentID, _ := base.AttachedTo()
		parent, ok := store.folders[parentID]
		if !ok {
			break
		}
		node = parent
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "/"), nil
}

// FindFolderForType returns the top-level folder under the inventory root
// whose preferred type is t. When there is none the inventory root itself
// is returned.
func (store *Store) FindFolderForType(t FolderType) uuid.UUID {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if t == FolderTypeRoot {
		return store.inventoryRoot
	}

	root, ok := store.folders[store.inventoryRoot]
	if !ok {
		return store.inventoryRoot
	}

	// Pick the smallest id on duplicates so the answer is stable
	found := uuid.Nil
	for id, child := range root.children {
		folder, ok := child.(*Folder)
		if !ok || folder.PreferredType != t {
			continue
		}
		if found == uuid.Nil || strings.Compare(id.String(), found.String()) < 0 {
			found = id
		}
	}
	if found == uuid.Nil {
		return store.inventoryRoot
	}
	return found
}

// Walk visits every linked node depth first, starting with the children of
// the synthetic top folder. Parents are visited before their children and
// siblings in Contents order. fn receives a copy of each node and its depth
// (0 for top-level folders); returning false skips the node's subtree.
func (store *Store) Walk(fn func(node Node, depth int) bool) {
	store.mu.RLock()
	nodes, depths := store.walkLocked()
	store.mu.RUnlock()

	skipBelow := -1
	for i, node := range nodes {
		if skipBelow >= 0 {
			if depths[i] > skipBelow {
				continue
			}
			skipBelow = -1
		}
		if !fn(node, depths[i]) {
			skipBelow = depths[i]
		}
	}
}

// walkLocked returns copies of every linked node in depth-first order.
func (store *Store) walkLocked() ([]Node, []int) {
	nodes := make([]Node, 0, len(store.folders)+len(store.items))
	depths := make([]int, 0, cap(nodes))

	var visit func(folder *Folder, depth int)
	visit = func(folder *Folder, depth int) {
		children := make([]Node, 0, len(folder.children))
		for _, child := range folder.children {
			children = append(children, child)
		}
		sortNodes(children)
		for _, child := range children {
			nodes = append(nodes, child.Clone())
			depths = append(depths, depth)
			if sub, ok := child.(*Folder); ok {
				visit(sub, depth+1)
			}
		}
	}
	visit(store.top, 0)
	return nodes, depths
}

// Stats returns node counts.
func (store *Store) Stats() Stats {
	store.mu.RLock()
	defer store.mu.RUnlock()

	return Stats{
		Folders:    len(store.folders) - 1,
		Items:      len(store.items),
		Unresolved: len(store.parked),
	}
}
