package orderbook

import "github.com/dnft/swap-engine/internal/model"

// QueueCapacity is the number of slots in a staging queue: the full range
// of the wrapping uint8 index.
const QueueCapacity = 256

// stagingQueue is the persisted form of a ring-buffer staging queue: a
// backing map keyed by wrapping index plus (start, end) bounds stored
// alongside it. The queue is empty when start == end.
type stagingQueue struct {
	start uint8
	end   uint8
	items map[uint8]model.StagedOrder
}

func newStagingQueue() *stagingQueue {
	return &stagingQueue{items: make(map[uint8]model.StagedOrder)}
}

// oldest returns the queue's oldest live entry without removing it.
func (q *stagingQueue) oldest() (model.StagedOrder, bool) {
	if q.start == q.end {
		return model.StagedOrder{}, false
	}
	v := q.items[q.start]
	if !v.Live {
		return model.StagedOrder{}, false
	}
	return v, true
}

// queueTransient is a transient view over a stagingQueue. Mutations touch
// the backing map directly but the bounds are buffered; Close flushes them
// back and must run on every exit path, success or error.
type queueTransient struct {
	q     *stagingQueue
	start uint8
	end   uint8
}

func (q *stagingQueue) transient() *queueTransient {
	return &queueTransient{q: q, start: q.start, end: q.end}
}

// Push writes at end and advances it. When the buffer is full the oldest
// entry is overwritten and start advances to match: ring semantics, not
// backpressure.
func (t *queueTransient) Push(v model.StagedOrder) {
	t.q.items[t.end] = v
	next := t.end + 1 // wraps at 256
	if next == t.start {
		t.start++
	}
	t.end = next
}

// Pop removes and returns the oldest entry.
func (t *queueTransient) Pop() (model.StagedOrder, bool) {
	if t.Empty() {
		return model.StagedOrder{}, false
	}
	v := t.q.items[t.start]
	delete(t.q.items, t.start)
	t.start++
	return v, true
}

// Empty reports whether the queue has no entries.
func (t *queueTransient) Empty() bool { return t.start == t.end }

// Close commits the bounds back to the persisted queue.
func (t *queueTransient) Close() {
	t.q.start, t.q.end = t.start, t.end
}
