// Package callback holds listener lists whose callbacks run outside the
// caller's locks and cannot take the caller down by panicking.
package callback

import (
	"runtime/debug"
	"sync"

	"github.com/marmos91/gridinv/internal/logger"
)

// Guard runs fn and recovers from a panic inside it. The panic is logged
// with the stack and reported through the return value.
func Guard(name string, fn func()) (recovered any) {
	defer func() {
		if recovered = recover(); recovered != nil {
			logger.Error("Recovered panic in %s callback: %v\n%s", name, recovered, debug.Stack())
		}
	}()
	fn()
	return nil
}

// List is a copy-on-write list of listeners. Emit iterates a snapshot, so
// listeners may subscribe or unsubscribe from inside a callback.
type List[T any] struct {
	name string

	mu        sync.Mutex
	nextID    uint64
	listeners []entry[T]
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

// NewList returns an empty list. name identifies the list in logs.
func NewList[T any](name string) *List[T] {
	return &List[T]{name: name}
}

// Add registers fn and returns a function removing it again. The returned
// function is idempotent.
func (l *List[T]) Add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	next := make([]entry[T], len(l.listeners), len(l.listeners)+1)
	copy(next, l.listeners)
	l.listeners = append(next, entry[T]{id: id, fn: fn})

	return func() { l.remove(id) }
}

func (l *List[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.listeners {
		if e.id != id {
			continue
		}
		next := make([]entry[T], 0, len(l.listeners)-1)
		next = append(next, l.listeners[:i]...)
		next = append(next, l.listeners[i+1:]...)
		l.listeners = next
		return
	}
}

// Len returns the number of registered listeners.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.listeners)
}

// Emit calls every listener with value, each under Guard.
func (l *List[T]) Emit(value T) {
	l.mu.Lock()
	listeners := l.listeners
	l.mu.Unlock()

	for _, e := range listeners {
		Guard(l.name, func() { e.fn(value) })
	}
}
