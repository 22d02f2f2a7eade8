// Package fabric provides the many-producer/one-consumer event queue and the
// single-writer/many-reader latest-value snapshot cell and cache that let
// HTTP handlers, WebSocket sessions, the tick task, and the world task
// cooperate without the audio thread ever blocking.
package fabric

import (
	"sync"

	"github.com/opd-ai/ambientworld/pkg/worldengine"
)

// ErrRateLimited is returned by EventQueue.TrySend when the queue is full.
// Producers never block; the caller (session layer, HTTP handler) turns
// this into a RATE_LIMITED reply.
type ErrRateLimited struct{}

func (ErrRateLimited) Error() string { return "event queue full" }

// EventQueue is a bounded many-producer/one-consumer FIFO. FIFO order is
// preserved per producer because each producer's sends happen-before in
// program order and the channel itself is FIFO.
type EventQueue struct {
	ch chan worldengine.Event
}

// NewEventQueue builds a bounded queue with the given capacity.
func NewEventQueue(capacity int) *EventQueue {
	return &EventQueue{ch: make(chan worldengine.Event, capacity)}
}

// TrySend attempts to enqueue ev without blocking. It returns ErrRateLimited
// if the queue is full.
func (q *EventQueue) TrySend(ev worldengine.Event) error {
	select {
	case q.ch <- ev:
		return nil
	default:
		return ErrRateLimited{}
	}
}

// Receive returns the queue's receive-only channel, consumed exclusively by
// the world task.
func (q *EventQueue) Receive() <-chan worldengine.Event {
	return q.ch
}

// SnapshotCell holds the latest published Snapshot. One writer (the world
// task), many readers. Readers observe the latest value only; intermediate
// publications may be skipped. Readers may also await the next publication.
type SnapshotCell struct {
	mu      sync.Mutex
	value   worldengine.Snapshot
	version uint64
	changed chan struct{}
}

// NewSnapshotCell builds a cell holding initial.
func NewSnapshotCell(initial worldengine.Snapshot) *SnapshotCell {
	return &SnapshotCell{value: initial, changed: make(chan struct{})}
}

// Publish stores snap as the latest value and wakes any awaiting readers.
// Called exclusively by the world task.
func (c *SnapshotCell) Publish(snap worldengine.Snapshot) {
	c.mu.Lock()
	c.value = snap
	c.version++
	ch := c.changed
	c.changed = make(chan struct{})
	c.mu.Unlock()
	close(ch)
}

// Load returns the latest published Snapshot.
func (c *SnapshotCell) Load() worldengine.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// AwaitChange blocks until the next Publish call or until cancel is closed.
// After a Publish it returns the latest Snapshot and true; on cancellation it
// returns a zero Snapshot and false. A Publish that happens before this call
// starts waiting does not wake it.
func (c *SnapshotCell) AwaitChange(cancel <-chan struct{}) (worldengine.Snapshot, bool) {
	c.mu.Lock()
	ch := c.changed
	c.mu.Unlock()

	select {
	case <-ch:
		return c.Load(), true
	case <-cancel:
		return worldengine.Snapshot{}, false
	}
}

// SnapshotCache is a periodically refreshed mirror of a SnapshotCell, read
// synchronously by HTTP handlers so a GET never blocks on writer contention.
// It uses a sync.RWMutex: readers share the lock and block only briefly
// against the writer's swap. The lock is not reader-preferring: once a
// writer is waiting, new readers wait until its swap is done.
type SnapshotCache struct {
	mu    sync.RWMutex
	value worldengine.Snapshot
}

// NewSnapshotCache builds a cache holding initial.
func NewSnapshotCache(initial worldengine.Snapshot) *SnapshotCache {
	return &SnapshotCache{value: initial}
}

// Refresh overwrites the cached value. Called by the snapshot cache task.
func (c *SnapshotCache) Refresh(snap worldengine.Snapshot) {
	c.mu.Lock()
	c.value = snap
	c.mu.Unlock()
}

// Load returns the most recently cached Snapshot, safe for concurrent
// synchronous reads from any number of goroutines.
func (c *SnapshotCache) Load() worldengine.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}
