// Package manager drives an inventory Store from the grid.
//
// The Manager issues inventory requests through a protocol.Transport (or the
// HTTP capability variants when the server advertises them), applies the
// decoded replies handed to HandleMessage to the Store, and correlates replies
// with callers: callback ids for create/copy/link requests, one-shot waiters
// for the bounded synchronous wrappers, and path searches advanced by folder
// updates.
//
// Requests are fire-and-forget. The bounded wrappers (FetchItem,
// FolderContents, FindObjectByPath, CreateItem, CopyItem) never report a
// timeout as an error: they return a false "found" flag or an empty result
// and leave the in-flight request alone.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/callback"
	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/internal/ratelimiter"
	"github.com/marmos91/gridinv/pkg/caps"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/metrics"
	"github.com/marmos91/gridinv/pkg/protocol"
)

// DefaultTimeout bounds the synchronous wrappers when neither the call nor
// Options provide a timeout.
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned by requests issued after Close.
var ErrClosed = errors.New("inventory manager closed")

// Options configures a Manager.
type Options struct {
	// Transport sends decoded requests to the grid (required)
	Transport protocol.Transport

	// Capabilities resolves capability URLs. Nil means no HTTP variants.
	Capabilities caps.Provider

	// CapsClient performs capability requests. Defaults to a client with
	// default settings when Capabilities is set.
	CapsClient *caps.Client

	// Store receives every applied change. Defaults to a new store for Owner.
	Store *inventory.Store

	// Owner is the agent owning the inventory. Defaults to AgentID.
	Owner uuid.UUID

	// AgentID and SessionID identify the sender of every request
	AgentID   uuid.UUID
	SessionID uuid.UUID

	// AgentName is used as the sender name in offer replies
	AgentName string

	// Limiter throttles outbound messages. Nil means unlimited.
	Limiter *ratelimiter.RateLimiter

	// Metrics records manager activity. Defaults to a no-op implementation.
	Metrics metrics.InventoryMetrics

	// DefaultTimeout bounds synchronous wrappers called with a zero timeout
	DefaultTimeout time.Duration
}

// Manager issues inventory requests and applies their replies to a Store.
//
// All methods are safe for concurrent use. Listener callbacks run on the
// goroutine that delivered the triggering message, outside every lock.
type Manager struct {
	transport      protocol.Transport
	capabilities   caps.Provider
	capsClient     *caps.Client
	store          *inventory.Store
	session        protocol.Session
	agentName      string
	limiter        *ratelimiter.RateLimiter
	metrics        metrics.InventoryMetrics
	defaultTimeout time.Duration

	// mu guards the callback table, the search list and the offer handler
	mu           sync.Mutex
	nextCallback uint32
	callbacks    map[uint32]ItemCreatedCallback
	nextSearch   uint64
	searches     map[uint64]*search
	offerHandler func(Offer) OfferDecision

	// waiters counts bounded wrappers currently blocked
	waiters atomic.Int64

	folderUpdated      *callback.List[uuid.UUID]
	itemReceived       *callback.List[*inventory.Item]
	taskItemReceived   *callback.List[TaskItem]
	taskInventoryReply *callback.List[TaskInventoryReply]

	// ctx scopes background capability requests; cancelled by Close
	ctx         context.Context
	cancel      context.CancelFunc
	background  sync.WaitGroup
	unsubscribe func()
	closeOnce   sync.Once
}

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	if opts.Owner == uuid.Nil {
		opts.Owner = opts.AgentID
	}
	if opts.Store == nil {
		opts.Store = inventory.NewStore(opts.Owner)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopInventoryMetrics()
	}
	if opts.Capabilities != nil && opts.CapsClient == nil {
		opts.CapsClient = caps.NewClient(caps.Config{})
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		transport:    opts.Transport,
		capabilities: opts.Capabilities,
		capsClient:   opts.CapsClient,
		store:        opts.Store,
		session: protocol.Session{
			AgentID:   opts.AgentID,
			SessionID: opts.SessionID,
		},
		agentName:          opts.AgentName,
		limiter:            opts.Limiter,
		metrics:            opts.Metrics,
		defaultTimeout:     opts.DefaultTimeout,
		callbacks:          make(map[uint32]ItemCreatedCallback),
		searches:           make(map[uint64]*search),
		folderUpdated:      callback.NewList[uuid.UUID]("folder updated"),
		itemReceived:       callback.NewList[*inventory.Item]("item received"),
		taskItemReceived:   callback.NewList[TaskItem]("task item received"),
		taskInventoryReply: callback.NewList[TaskInventoryReply]("task inventory reply"),
		ctx:                ctx,
		cancel:             cancel,
	}
	m.unsubscribe = m.store.Subscribe(m.onStoreEvent)

	return m, nil
}

// Store returns the store the manager applies changes to.
func (m *Manager) Store() *inventory.Store {
	return m.store
}

// Session returns the identity requests are sent with.
func (m *Manager) Session() protocol.Session {
	return m.session
}

// Close stops background capability requests and detaches from the store.
// Pending callbacks and searches are discarded without being invoked.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.unsubscribe()
		m.cancel()
		m.background.Wait()

		m.mu.Lock()
		m.callbacks = make(map[uint32]ItemCreatedCallback)
		m.searches = make(map[uint64]*search)
		m.mu.Unlock()
		m.reportPending()
	})
	return nil
}

// PendingCallbacks returns the number of registered callback ids, active
// path searches and blocked synchronous wrappers.
func (m *Manager) PendingCallbacks() int {
	m.mu.Lock()
	n := len(m.callbacks) + len(m.searches)
	m.mu.Unlock()
	return n + int(m.waiters.Load())
}

func (m *Manager) reportPending() {
	m.metrics.SetPendingCallbacks(m.PendingCallbacks())
}

// send throttles and sends one request.
func (m *Manager) send(ctx context.Context, msg protocol.Message) error {
	if m.ctx.Err() != nil {
		return ErrClosed
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait for %s: %w", msg.Type(), err)
		}
	}
	if err := m.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	m.metrics.RecordRequestSent(msg.Type().String())
	return nil
}

// goBackground runs fn on its own goroutine with the manager's lifetime
// context, so that capability requests outlive the caller's wait.
func (m *Manager) goBackground(fn func(ctx context.Context)) {
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		fn(m.ctx)
	}()
}

// capability returns the URL of an advertised capability.
func (m *Manager) capability(name string) (string, bool) {
	if m.capabilities == nil {
		return "", false
	}
	return m.capabilities.CapabilityURL(name)
}

// isLibrary reports whether owner is someone other than the inventory owner,
// which routes fetches to the library capabilities.
func (m *Manager) isLibrary(owner uuid.UUID) bool {
	return owner != uuid.Nil && owner != m.store.Owner()
}

// observe applies a store mutation and records it.
func (m *Manager) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.metrics.RecordStoreOperation(op, time.Since(start), err)

	stats := m.store.Stats()
	m.metrics.SetNodeCounts(stats.Folders, stats.Items, stats.Unresolved)
	return err
}

func (m *Manager) timeoutOrDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return m.defaultTimeout
	}
	return timeout
}

func notSupported(capability string) error {
	return &inventory.StoreError{
		Code:    inventory.ErrNotSupported,
		Message: fmt.Sprintf("capability %s not advertised", capability),
	}
}

func logSendFailure(what string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Debug("%s: %v", what, err)
		return
	}
	logger.Warn("%s: %v", what, err)
}
