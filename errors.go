package tardy

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by ordinary, expected failure paths (capacity
// limits, bad configuration). These are not invariant violations and never
// cause a panic.
var (
	// ErrOutOfSlots is returned by Pool.Borrow, Scheduler.Spawn, and
	// AsyncIO.Queue* when the relevant fixed-capacity pool is full.
	ErrOutOfSlots = errors.New("tardy: out of slots")

	// ErrInvalidOptions is returned by NewRuntime when size_aio_reap_max
	// exceeds size_aio_jobs_max.
	ErrInvalidOptions = errors.New("tardy: size_aio_reap_max must be <= size_aio_jobs_max")

	// ErrNotRunning reports that a Runtime's run loop is not active. No
	// Runtime method in this package returns it.
	ErrNotRunning = errors.New("tardy: runtime is not running")

	// ErrTaskNotWaiting is the cause wrapped by a StateViolationError raised
	// when a completion names a task that is not currently TaskWaiting.
	ErrTaskNotWaiting = errors.New("tardy: task is not waiting")

	// ErrJobNotDirty is the cause wrapped by a StateViolationError raised
	// when a backend is about to operate on a job index that is not
	// currently borrowed.
	ErrJobNotDirty = errors.New("tardy: job index is not in use")
)

// StateViolationError indicates a scheduler or backend invariant was
// broken: a task addressed by a completion was not waiting, or a job index
// the backend is about to operate on was not marked dirty. These indicate a
// bug in the runtime itself, not an ordinary I/O failure, and the runtime
// panics with this error rather than attempting to continue.
type StateViolationError struct {
	Op      string
	Message string
	Cause   error
}

func (e *StateViolationError) Error() string {
	return fmt.Sprintf("tardy: invariant violated in %s: %s", e.Op, e.Message)
}

// Unwrap exposes the sentinel cause (e.g. ErrTaskNotWaiting), so callers
// can errors.Is against it instead of matching on Op/Message text.
func (e *StateViolationError) Unwrap() error { return e.Cause }

// TaskPanicError wraps a value recovered from a panicking task body. The
// dispatch loop recovers, logs, and discards these: a failing task is
// isolated and its slot released, but the runtime itself keeps running.
type TaskPanicError struct {
	Task  TaskIndex
	Value any
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("tardy: task %d panicked: %v", e.Task, e.Value)
}

// Unwrap returns the recovered value when it is itself an error, enabling
// errors.Is/errors.As to see through to the original cause.
func (e *TaskPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func violation(op, format string, args ...any) *StateViolationError {
	return &StateViolationError{Op: op, Message: fmt.Sprintf(format, args...)}
}

func violationCause(op string, cause error, format string, args ...any) *StateViolationError {
	return &StateViolationError{Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}
