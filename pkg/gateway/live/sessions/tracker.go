// Package sessions tracks live stream connections so shutdown can notify,
// cancel, and wait for them.
package sessions

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Handle is what a live session exposes to the tracker.
type Handle struct {
	Cancel func()
	Notify func(status, message string) error
}

type tracked struct {
	handle Handle
	once   sync.Once
}

// Tracker holds the set of active stream connections keyed by session id.
// Registering a second connection for the same session evicts the first.
type Tracker struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*tracked
	wg       sync.WaitGroup
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[uuid.UUID]*tracked)}
}

// Register adds a connection and returns its unregister func. Unregister is
// idempotent.
func (t *Tracker) Register(id uuid.UUID, h Handle) (unregister func()) {
	entry := &tracked{handle: h}

	t.mu.Lock()
	old := t.sessions[id]
	t.sessions[id] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.remove(id, old)
		if old.handle.Cancel != nil {
			old.handle.Cancel()
		}
	}
	return func() { t.remove(id, entry) }
}

func (t *Tracker) remove(id uuid.UUID, entry *tracked) {
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions[id] == entry {
			delete(t.sessions, id)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// NotifyAll sends a status frame to every live connection, used to announce
// shutdown before cancelling.
func (t *Tracker) NotifyAll(status, message string) (sent int) {
	var notifies []func(status, message string) error
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry.handle.Notify != nil {
			notifies = append(notifies, entry.handle.Notify)
		}
	}
	t.mu.Unlock()

	for _, notify := range notifies {
		_ = notify(status, message)
		sent++
	}
	return sent
}

// CancelAll cancels every live connection.
func (t *Tracker) CancelAll() (canceled int) {
	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry.handle.Cancel != nil {
			cancels = append(cancels, entry.handle.Cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered connection has unregistered, or ctx
// expires. Returns true on a full drain.
func (t *Tracker) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
