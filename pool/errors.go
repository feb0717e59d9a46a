package pool

import "fmt"

// Common errors returned by the pool.
var (
	// ErrPoolShutdown is returned when submitting to a pool after Shutdown or
	// ShutdownNow. A shut down pool never accepts tasks again.
	ErrPoolShutdown = &PoolError{msg: "pool is shutdown"}

	// ErrNilTask is returned when submitting a nil task.
	ErrNilTask = &PoolError{msg: "task is nil"}

	// ErrQueueFull is returned by TrySubmit when no worker queue has room.
	ErrQueueFull = &PoolError{msg: "queues are full"}

	// ErrInvalidConfig is matched by configuration errors from New.
	ErrInvalidConfig = &PoolError{msg: "invalid config"}
)

// PoolError represents an error that occurred within the worker pool.
type PoolError struct {
	msg string
	err error
}

// Error returns a formatted error message.
func (e *PoolError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("pool: %s: %v", e.msg, e.err)
	}
	return fmt.Sprintf("pool: %s", e.msg)
}

// Unwrap returns the underlying error, allowing use with errors.Is and errors.As.
func (e *PoolError) Unwrap() error {
	return e.err
}

// errInvalidConfig creates an error for invalid pool configuration.
func errInvalidConfig(msg string) error {
	return &PoolError{msg: msg, err: ErrInvalidConfig}
}
