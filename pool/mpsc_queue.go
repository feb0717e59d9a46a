package pool

import (
	"runtime"
	"sync/atomic"
)

// cacheLinePad prevents false sharing between hot fields
type cacheLinePad struct {
	_ [64]byte
}

// taskQueue is a bounded ring of tasks. Any number of submitters push
// concurrently; only the owning worker pops.
type taskQueue struct {
	_ cacheLinePad

	// next slot to pop, written by the consumer only
	head atomic.Uint64

	_ cacheLinePad

	// next slot to claim, advanced by producers with CAS
	tail atomic.Uint64

	_ cacheLinePad

	slots []atomic.Pointer[Task]
	mask  uint64
}

// maxPushAttempts bounds how long tryPush contends before giving up and
// letting Submit fall back to another queue or the caller.
const maxPushAttempts = 64

// newTaskQueue creates a queue. Capacity must be a power of two.
func newTaskQueue(capacity int) *taskQueue {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("capacity must be a power of two and > 0")
	}

	return &taskQueue{
		slots: make([]atomic.Pointer[Task], capacity),
		mask:  uint64(capacity - 1),
	}
}

// tryPush claims a slot and publishes task in it. It returns false for a nil
// task, a full queue, or when the claim keeps losing to other submitters.
func (q *taskQueue) tryPush(task Task) bool {
	if task == nil {
		return false
	}

	for attempt := range maxPushAttempts {
		tail := q.tail.Load()

		// one slot stays empty so full and empty differ
		if tail-q.head.Load() >= uint64(len(q.slots))-1 {
			return false
		}

		if q.tail.CompareAndSwap(tail, tail+1) {
			q.slots[tail&q.mask].Store(&task)
			return true
		}

		backoff(attempt)
	}

	return false
}

func backoff(attempt int) {
	yields := 1
	if attempt >= 4 {
		yields = min(1<<(attempt-4), 16)
	}
	for range yields {
		runtime.Gosched()
	}
}

// pop removes and returns one task (single consumer only).
// It returns nil when the queue is empty or when the next slot has been
// claimed but not yet published; callers check isEmpty to tell them apart.
func (q *taskQueue) pop() Task {
	head := q.head.Load()
	if head >= q.tail.Load() {
		return nil
	}

	slot := &q.slots[head&q.mask]
	task := slot.Load()
	if task == nil {
		return nil
	}

	slot.Store(nil)
	q.head.Store(head + 1)

	return *task
}

// size returns the approximate queue length
func (q *taskQueue) size() int {
	head, tail := q.head.Load(), q.tail.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

func (q *taskQueue) isEmpty() bool {
	return q.head.Load() >= q.tail.Load()
}

func (q *taskQueue) capacity() int {
	return len(q.slots)
}
