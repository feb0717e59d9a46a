package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

// ============================================================================
// BASIC FUNCTIONALITY TESTS
// ============================================================================

func TestTaskQueue_NewPanicsOnInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -4, 7} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("Expected panic on capacity %d", capacity)
				}
			}()
			newTaskQueue(capacity)
		}()
	}
}

func TestTaskQueue_PushPop(t *testing.T) {
	q := newTaskQueue(16)

	executed := false
	if !q.tryPush(func(context.Context) { executed = true }) {
		t.Fatal("Failed to push to empty queue")
	}

	if q.size() != 1 {
		t.Errorf("Expected size 1, got %d", q.size())
	}

	popped := q.pop()
	if popped == nil {
		t.Fatal("Failed to pop from queue")
	}

	popped(context.Background())
	if !executed {
		t.Error("Task was not executed")
	}

	if !q.isEmpty() {
		t.Errorf("Expected empty queue after pop, size %d", q.size())
	}
}

func TestTaskQueue_PopFromEmpty(t *testing.T) {
	q := newTaskQueue(16)

	if q.pop() != nil {
		t.Error("Expected nil from empty queue")
	}
}

func TestTaskQueue_PushNil(t *testing.T) {
	q := newTaskQueue(16)

	if q.tryPush(nil) {
		t.Error("Should not be able to push nil")
	}
}

func TestTaskQueue_FIFOOrder(t *testing.T) {
	q := newTaskQueue(16)

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		q.tryPush(func(context.Context) { order = append(order, i) })
	}

	for task := q.pop(); task != nil; task = q.pop() {
		task(context.Background())
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("Expected FIFO order, got %v", order)
		}
	}
}

func TestTaskQueue_Full(t *testing.T) {
	q := newTaskQueue(8)

	// One slot stays empty to distinguish full from empty
	for i := 0; i < 7; i++ {
		if !q.tryPush(func(context.Context) {}) {
			t.Fatalf("Push %d failed before queue was full", i)
		}
	}

	if q.tryPush(func(context.Context) {}) {
		t.Error("Push should fail on a full queue")
	}

	if q.capacity() != 8 {
		t.Errorf("Expected capacity 8, got %d", q.capacity())
	}
}

func TestTaskQueue_WrapAround(t *testing.T) {
	q := newTaskQueue(4)

	var count int
	for round := 0; round < 100; round++ {
		q.tryPush(func(context.Context) { count++ })
		q.tryPush(func(context.Context) { count++ })
		for task := q.pop(); task != nil; task = q.pop() {
			task(context.Background())
		}
	}

	if count != 200 {
		t.Errorf("Expected 200 executions, got %d", count)
	}
}

// ============================================================================
// CONCURRENCY TESTS
// ============================================================================

func TestTaskQueue_ConcurrentProducers(t *testing.T) {
	q := newTaskQueue(1024)

	const producers = 8
	const perProducer = 100

	var executed atomic.Int64
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !q.tryPush(func(context.Context) { executed.Add(1) }) {
				}
			}
		}()
	}
	wg.Wait()

	for !q.isEmpty() {
		if task := q.pop(); task != nil {
			task(context.Background())
		}
	}

	if executed.Load() != producers*perProducer {
		t.Errorf("Expected %d executions, got %d", producers*perProducer, executed.Load())
	}
}

func TestTaskQueue_ConcurrentProducerConsumer(t *testing.T) {
	q := newTaskQueue(64)

	const total = 10000
	var executed atomic.Int64
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/4; i++ {
				for !q.tryPush(func(context.Context) { executed.Add(1) }) {
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for executed.Load() < total {
			if task := q.pop(); task != nil {
				task(context.Background())
			}
		}
		close(done)
	}()

	wg.Wait()
	<-done

	if executed.Load() != total {
		t.Errorf("Expected %d executions, got %d", total, executed.Load())
	}
}
