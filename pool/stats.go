package pool

import "time"

// Stats is a snapshot of pool statistics. Counters are read without locks and
// may be slightly inconsistent while tasks are running.
type Stats struct {
	// Submitted counts tasks accepted by Submit.
	Submitted uint64

	// Completed counts tasks that finished, including those that panicked.
	Completed uint64

	// Failed counts tasks that panicked.
	Failed uint64

	// Dropped counts queued tasks discarded by ShutdownNow.
	Dropped uint64

	// FallbackExecuted counts tasks run in the submitter's goroutine because
	// every queue was full.
	FallbackExecuted uint64

	// InFlight is Submitted - Completed - Dropped.
	InFlight uint64

	NumWorkers int

	// TotalQueueDepth is the number of tasks waiting in worker queues.
	TotalQueueDepth int

	// LatencyAvg and LatencyMax measure task execution time.
	LatencyAvg time.Duration
	LatencyMax time.Duration

	WorkerStats []WorkerStats
}

// WorkerStats contains statistics for one worker goroutine.
type WorkerStats struct {
	WorkerID      int
	TasksExecuted uint64
	TasksFailed   uint64
	QueueDepth    int
	Capacity      int

	// State is one of "RUNNING", "SPINNING", "PARKED" or "SHUTDOWN".
	State string
}
