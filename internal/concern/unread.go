package concern

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mkadenge/shulelink/internal/models"
)

// UnreadTracker derives unread state for one viewer from thread
// metadata. Nothing is persisted server-side beyond the thread's
// lastReadBy map; the only local state is the set of mark-read writes
// still in flight.
//
// A thread counts as unread when the viewer has never opened it, or
// when it was updated after the viewer's last recorded read. A
// mark-read write that hasn't round-tripped yet counts as read — the
// viewer just opened the thread, and flickering it back to unread
// until the server timestamp lands would be wrong.
type UnreadTracker struct {
	viewerID uuid.UUID

	mu      sync.Mutex
	pending map[uuid.UUID]struct{}
}

func NewUnreadTracker(viewerID uuid.UUID) *UnreadTracker {
	return &UnreadTracker{
		viewerID: viewerID,
		pending:  make(map[uuid.UUID]struct{}),
	}
}

// MarkPending records that a mark-read write for the thread has been
// issued but not yet acknowledged.
func (t *UnreadTracker) MarkPending(threadID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[threadID] = struct{}{}
}

// Resolve drops the in-flight override once the server timestamp has
// round-tripped (or the write failed — the next snapshot then reflects
// the true state).
func (t *UnreadTracker) Resolve(threadID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, threadID)
}

// IsUnread reports whether the thread is unread for this tracker's
// viewer.
func (t *UnreadTracker) IsUnread(th models.Thread) bool {
	t.mu.Lock()
	_, inFlight := t.pending[th.ID]
	t.mu.Unlock()
	if inFlight {
		return false
	}

	lastRead, ok := th.LastReadBy[t.viewerID]
	if !ok {
		return true
	}
	return th.LastUpdated.After(lastRead)
}

// CountUnread is the badge number: how many of the given threads are
// unread for this viewer.
func (t *UnreadTracker) CountUnread(threads []models.Thread) int {
	n := 0
	for _, th := range threads {
		if t.IsUnread(th) {
			n++
		}
	}
	return n
}

// ThreadWatcher detects newly arrived threads across successive
// snapshots of the thread feed. Each subscription owns its own watcher;
// the seen set lives and dies with the subscription, so concurrent
// sessions never share bookkeeping.
type ThreadWatcher struct {
	mu     sync.Mutex
	seen   map[uuid.UUID]struct{}
	primed bool
}

func NewThreadWatcher() *ThreadWatcher {
	return &ThreadWatcher{seen: make(map[uuid.UUID]struct{})}
}

// Observe ingests one snapshot and returns the threads that were not in
// any earlier snapshot, newest first. The first snapshot only primes
// the seen set: pre-existing threads never raise an alert on initial
// load.
func (w *ThreadWatcher) Observe(threads []models.Thread) []models.Thread {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.primed {
		for _, th := range threads {
			w.seen[th.ID] = struct{}{}
		}
		w.primed = true
		return nil
	}

	var fresh []models.Thread
	for _, th := range threads {
		if _, ok := w.seen[th.ID]; !ok {
			fresh = append(fresh, th)
			w.seen[th.ID] = struct{}{}
		}
	}
	// Feed snapshots arrive ordered lastUpdated descending, so fresh
	// already leads with the most recent arrival.
	return fresh
}
