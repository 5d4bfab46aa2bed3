// Package events provides typed publish/subscribe topics for sync lifecycle
// notifications. Delivery is synchronous, in registration order.
package events

import (
	"sync"

	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// Topic fans out values of one event kind to its subscribers.
type Topic[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it. Calling
// the returned function more than once is harmless.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscriber[T]{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers v to every subscriber registered at the time of the call.
// Subscribers may unsubscribe from within their callback.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	subs := make([]subscriber[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// SyncCompleted carries the counts of a finished sync run.
type SyncCompleted struct {
	SyncedCount int
	FailedCount int
	Message     string
}

// SyncFailed carries the error that aborted a sync run.
type SyncFailed struct {
	Err error
}

// PendingCountUpdated carries the current offline queue size.
type PendingCountUpdated struct {
	Count int
}

// StorageError carries a cache or store failure for user notification.
type StorageError struct {
	Op  string
	Err error
}

// SessionExpired is published when the remote API rejects the session.
type SessionExpired struct {
	Source string
}

// Bus groups one topic per event kind.
type Bus struct {
	SyncStarted         Topic[struct{}]
	SyncProgress        Topic[models.SyncState]
	SyncCompleted       Topic[SyncCompleted]
	SyncFailed          Topic[SyncFailed]
	PendingCountUpdated Topic[PendingCountUpdated]
	ManualSyncRequested Topic[struct{}]
	SessionExpired      Topic[SessionExpired]
	StorageError        Topic[StorageError]
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// NotifyStorageError publishes a StorageError. It lets the bus act as the
// cache layer's notifier.
func (b *Bus) NotifyStorageError(op string, err error) {
	b.StorageError.Publish(StorageError{Op: op, Err: err})
}
