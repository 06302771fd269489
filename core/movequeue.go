package core

import "errors"

// MoveQueueCapacity is the move-segment ring's capacity. Kept small: the
// builder only needs to stay a few segments ahead of the slowest generator's
// lookback requirement.
const MoveQueueCapacity = 16

// ErrQueueFull / ErrQueueEmpty are the expected, non-fatal back-pressure
// conditions producers and consumers report; callers retry later.
var (
	ErrQueueFull  = errors.New("queue full, try again")
	ErrQueueEmpty = errors.New("queue empty, try again")
)

// MoveQueue is a bounded SPSC ring of move segments with three cursors:
// tail (oldest slot still referenced by some generator), unprocessed (first
// segment not yet seen by the "move processed" handler), and head (next
// write slot). Invariant: tail <= unprocessed <= head, modulo capacity, and
// at least one slot is always free so the ending-empty move can always be
// enqueued.
type MoveQueue struct {
	data                     [MoveQueueCapacity]MoveSegment
	tail, unprocessed, head  uint8
}

func moveQueueMod(i uint8) uint8 { return i % MoveQueueCapacity }

// NextIndex and PrevIndex return adjacent ring slot indices.
func (q *MoveQueue) NextIndex(i uint8) uint8 { return moveQueueMod(i + 1) }
func (q *MoveQueue) PrevIndex(i uint8) uint8 { return moveQueueMod(i - 1 + MoveQueueCapacity) }

// Size returns the number of segments currently queued (tail..head).
func (q *MoveQueue) Size() uint8 { return moveQueueMod(q.head - q.tail) }

// FreeSlots returns the number of slots available for Push, always keeping
// one slot in reserve.
func (q *MoveQueue) FreeSlots() uint8 { return MoveQueueCapacity - 1 - q.Size() }

// IsFull reports whether the queue cannot accept another segment.
func (q *MoveQueue) IsFull() bool { return q.FreeSlots() == 0 }

// HasQueued reports whether any segment is reachable from tail..head.
func (q *MoveQueue) HasQueued() bool { return q.head != q.tail }

// HasUnprocessed reports whether a segment is queued but not yet marked
// processed.
func (q *MoveQueue) HasUnprocessed() bool { return q.head != q.unprocessed }

// Push appends a new segment, returning ErrQueueFull if no free slot is
// available. The enqueued segment starts with a reference count of zero;
// callers (generators) increment it when they acquire a pointer.
func (q *MoveQueue) Push(seg MoveSegment) error {
	if q.IsFull() {
		return ErrQueueFull
	}
	q.data[q.head] = seg
	q.head = q.NextIndex(q.head)
	return nil
}

// At returns a pointer to the segment at ring index i.
func (q *MoveQueue) At(i uint8) *MoveSegment { return &q.data[i] }

// Tail returns the oldest reachable segment, or nil if the queue is empty.
func (q *MoveQueue) Tail() *MoveSegment {
	if !q.HasQueued() {
		return nil
	}
	return &q.data[q.tail]
}

// Unprocessed returns the first segment not yet seen by "move processed"
// handling, or nil if none remain.
func (q *MoveQueue) Unprocessed() *MoveSegment {
	if !q.HasUnprocessed() {
		return nil
	}
	return &q.data[q.unprocessed]
}

// MarkProcessed advances the unprocessed cursor past the current segment.
func (q *MoveQueue) MarkProcessed() {
	if q.HasUnprocessed() {
		q.unprocessed = q.NextIndex(q.unprocessed)
	}
}

// Reclaim advances tail past segments whose reference count has reached
// zero, returning the number of slots reclaimed. Never reclaims past
// unprocessed (a segment referenced by nothing may still be pending the
// "move consumed" notification that retires the originating planner block).
func (q *MoveQueue) Reclaim() uint8 {
	var n uint8
	for q.tail != q.unprocessed {
		seg := &q.data[q.tail]
		if seg.ReferenceCount > 0 {
			break
		}
		q.tail = q.NextIndex(q.tail)
		n++
	}
	return n
}

// Clear resets all three cursors, discarding all queued segments. Used by
// reset_queues() on stop_pending.
func (q *MoveQueue) Clear() {
	q.tail, q.unprocessed, q.head = 0, 0, 0
}

// IndexAfter returns the next index in the queue after i along with whether
// it is still within tail..head (i.e. a real segment, not past head).
func (q *MoveQueue) IndexAfter(i uint8) (uint8, bool) {
	n := q.NextIndex(i)
	if n == q.head {
		return n, false
	}
	return n, true
}
