package inventory

import "github.com/google/uuid"

// EventKind identifies a change to the linked tree.
type EventKind int

const (
	// EventNodeAdded: a node became visible (first arrival or relinked)
	EventNodeAdded EventKind = iota

	// EventNodeUpdated: a linked node's fields changed in place
	EventNodeUpdated

	// EventNodeMoved: a linked node moved between two linked folders
	EventNodeMoved

	// EventNodeRemoved: a node left the linked tree
	EventNodeRemoved

	// EventFolderUpdated: a descendants report was applied to a folder
	EventFolderUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventNodeAdded:
		return "added"
	case EventNodeUpdated:
		return "updated"
	case EventNodeMoved:
		return "moved"
	case EventNodeRemoved:
		return "removed"
	case EventFolderUpdated:
		return "folder_updated"
	default:
		return "unknown"
	}
}

// Event describes one change. Node is a detached copy.
type Event struct {
	Kind EventKind
	Node Node

	// Parent is the node's declared parent after the change
	Parent uuid.UUID

	// OldParent is set for EventNodeMoved
	OldParent uuid.UUID
}

// Subscribe registers fn for every tree change and returns a function that
// cancels the subscription.
//
// Events are delivered after the store lock is released, in the order the
// changes were applied, on the goroutine that made the change. fn may call
// back into the store. A panic inside fn is recovered and logged.
func (store *Store) Subscribe(fn func(Event)) func() {
	return store.listeners.Add(fn)
}

func (store *Store) dispatch(events []Event) {
	for _, event := range events {
		store.listeners.Emit(event)
	}
}
