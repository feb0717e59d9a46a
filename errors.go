package pimc

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the engine.
var (
	// ErrInvalidConfig is matched by every configuration error. It is returned
	// before any worker starts or any resource is allocated.
	//
	// Example:
	//  _, err := pimc.New(pimc.WithAccuracy(0))
	//  if errors.Is(err, pimc.ErrInvalidConfig) {
	//      log.Fatal(err)
	//  }
	ErrInvalidConfig = &EngineError{msg: "invalid config"}

	// ErrTimeout is returned when the pool did not finish before the run
	// timeout. The RunResult returned alongside it is populated with whatever
	// the workers had flushed, so TotalSamples is lower than requested.
	ErrTimeout = &EngineError{msg: "run timed out"}

	// ErrInterrupted is returned when the caller's context was cancelled
	// while the run was in progress. Same partial-result caveat as ErrTimeout.
	ErrInterrupted = &EngineError{msg: "run interrupted"}

	// ErrWorkerFault is matched by WorkerFault and FaultError. A fault never
	// aborts the run; the other workers keep going.
	ErrWorkerFault = &EngineError{msg: "worker fault"}
)

// EngineError represents an error that occurred within the engine.
type EngineError struct {
	msg string
	err error
}

// Error returns a formatted error message.
func (e *EngineError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("pimc: %s: %v", e.msg, e.err)
	}
	return fmt.Sprintf("pimc: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.err
}

// ConfigError reports a single invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pimc: invalid config: %s %s", e.Field, e.Reason)
}

// Unwrap makes every ConfigError match ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func errInvalidConfig(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}

// WorkerFault describes a worker that terminated abnormally, either by
// panicking (Value and Stack are set) or by returning an error (Err is set).
type WorkerFault struct {
	WorkerID int
	Value    any
	Stack    string
	Err      error
}

func (f *WorkerFault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("pimc: worker %d fault: %v", f.WorkerID, f.Err)
	}
	return fmt.Sprintf("pimc: worker %d fault: panic: %v", f.WorkerID, f.Value)
}

// Unwrap returns the error the backend returned, if any.
func (f *WorkerFault) Unwrap() error {
	return f.Err
}

// Is reports whether target is ErrWorkerFault.
func (f *WorkerFault) Is(target error) bool {
	return target == ErrWorkerFault
}

// FaultError combines the faults of one run.
type FaultError struct {
	Faults []*WorkerFault
}

func (a *FaultError) Error() string {
	if len(a.Faults) == 0 {
		return "pimc: no worker faults"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "pimc: %d worker fault(s):", len(a.Faults))
	for i, f := range a.Faults {
		fmt.Fprintf(&b, "\n  [%d] %v", i+1, f)
	}
	return b.String()
}

// Unwrap makes FaultError compatible with errors.Is/errors.As
func (a *FaultError) Unwrap() []error {
	errs := make([]error, len(a.Faults))
	for i, f := range a.Faults {
		errs[i] = f
	}
	return errs
}

// Is implements error matching for the wrapped faults
func (a *FaultError) Is(target error) bool {
	return target == ErrWorkerFault && len(a.Faults) > 0
}

// joinErrors returns nil, the only non-nil error, or errors.Join of all.
func joinErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return errors.Join(nonNil...)
	}
}
