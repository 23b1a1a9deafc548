package orderbook

import (
	"testing"

	"github.com/dnft/swap-engine/internal/model"
)

func TestQueueFIFO(t *testing.T) {
	q := newStagingQueue()

	tr := q.transient()
	tr.Push(model.StagedOrder{OrderIndex: 1, Live: true})
	tr.Push(model.StagedOrder{OrderIndex: 2, Live: true})
	tr.Push(model.StagedOrder{OrderIndex: 3, Live: true})
	tr.Close()

	if v, ok := q.oldest(); !ok || v.OrderIndex != 1 {
		t.Errorf("oldest = %+v, %v", v, ok)
	}

	tr = q.transient()
	for want := uint32(1); want <= 3; want++ {
		v, ok := tr.Pop()
		if !ok || v.OrderIndex != want {
			t.Errorf("Pop = %+v, %v, want index %d", v, ok, want)
		}
	}
	if _, ok := tr.Pop(); ok {
		t.Error("Pop on empty queue succeeded")
	}
	tr.Close()

	if q.start != q.end {
		t.Errorf("bounds after drain = (%d, %d), want equal", q.start, q.end)
	}
}

func TestQueueBoundsCommittedOnClose(t *testing.T) {
	q := newStagingQueue()

	tr := q.transient()
	tr.Push(model.StagedOrder{OrderIndex: 7, Live: true})
	// Bounds are buffered until Close.
	if q.end != 0 {
		t.Errorf("end committed early: %d", q.end)
	}
	tr.Close()
	if q.end != 1 {
		t.Errorf("end after Close = %d, want 1", q.end)
	}
}

func TestQueueOverwritesOldestWhenFull(t *testing.T) {
	q := newStagingQueue()

	tr := q.transient()
	// Capacity is the full uint8 range; one more push must overwrite the
	// oldest entry rather than reject.
	for i := 0; i < QueueCapacity; i++ {
		tr.Push(model.StagedOrder{OrderIndex: uint32(i), Live: true})
	}
	tr.Close()

	if q.start != 1 || q.end != 0 {
		t.Fatalf("bounds after fill = (%d, %d), want (1, 0)", q.start, q.end)
	}

	tr = q.transient()
	tr.Push(model.StagedOrder{OrderIndex: 999, Live: true})
	v, ok := tr.Pop()
	tr.Close()

	// Index 0 was overwritten at fill time, index 1 by the extra push.
	if !ok || v.OrderIndex != 2 {
		t.Errorf("oldest after overflow = %+v, %v, want index 2", v, ok)
	}
}
