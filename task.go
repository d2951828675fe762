package tardy

// TaskIndex is a stable Task slot index, assigned by the Scheduler's Pool
// and reused only after the slot is released.
type TaskIndex uint32

// JobIndex is a stable Job slot index, assigned by a backend's internal
// Pool[Job]. It is an opaque value from the core's perspective: only the
// owning backend interprets it.
type JobIndex uint32

// TaskState is one of runnable, waiting, or dead. Exactly one of
// {runnable-set membership, waiting, dead} holds for any occupied slot; a
// released slot's Task record is stale.
type TaskState uint8

const (
	// TaskRunnable marks a task eligible for dispatch in the next tick.
	TaskRunnable TaskState = iota
	// TaskWaiting marks a task whose resumption depends on a Job completion.
	TaskWaiting
	// TaskDead marks a task whose slot has been released.
	TaskDead
)

func (s TaskState) String() string {
	switch s {
	case TaskRunnable:
		return "runnable"
	case TaskWaiting:
		return "waiting"
	case TaskDead:
		return "dead"
	default:
		return "unknown"
	}
}

// EntryFunc is a task's entry point. result is the zero Result on the
// task's initial invocation, and the completion's Result on every
// resumption. An error returned (or a panic recovered) from EntryFunc is
// logged and swallowed: task failure is isolated from the rest of the
// runtime.
//
// Runtimes in languages without closures typically pass a type-erased
// function pointer plus an opaque context pointer, cast back to its
// concrete type by a per-task trampoline. In Go, an EntryFunc is
// ordinarily a closure over whatever typed state the caller needs, which
// subsumes that pattern directly: there is no separate "context" value in
// this Task record because the closure already holds it.
type EntryFunc func(rt *Runtime, meta *TaskMetadata, result Result) error

// TaskMetadata is the read-only view of a Task passed to its EntryFunc. It
// intentionally does not expose the mutable scheduler bookkeeping (state,
// pool membership) to task bodies.
type TaskMetadata struct {
	Index TaskIndex
}

// task is the Scheduler's internal record.
type task struct {
	index TaskIndex
	state TaskState
	fn    EntryFunc
}
