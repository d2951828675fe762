package tardy

// AsyncIO is the backend-independent contract every OS I/O backend honors.
// The epoll backend (package tardy/epoll) is the reference implementation;
// io_uring and kqueue backends are meant to satisfy the same interface.
//
// Every Queue* method registers the given task as awaiting the operation's
// result and must only be called while that task is in TaskWaiting state
// (the Runtime's Queue* helpers and SpawnDelay spawn the task in that
// state before calling the backend).
type AsyncIO interface {
	QueueTimer(task TaskIndex, d Timespec) (JobIndex, error)
	QueueOpen(task TaskIndex, path string) (JobIndex, error)
	QueueStat(task TaskIndex, fd int) (JobIndex, error)
	QueueRead(task TaskIndex, fd int, buf []byte, off int64) (JobIndex, error)
	QueueWrite(task TaskIndex, fd int, buf []byte, off int64) (JobIndex, error)
	QueueClose(task TaskIndex, fd int) (JobIndex, error)
	QueueAccept(task TaskIndex, sock int) (JobIndex, error)
	QueueConnect(task TaskIndex, sock int, host string, port uint16) (JobIndex, error)
	QueueRecv(task TaskIndex, sock int, buf []byte) (JobIndex, error)
	QueueSend(task TaskIndex, sock int, buf []byte) (JobIndex, error)

	// Wake is safe to call concurrently from any goroutine. It causes a
	// blocked Reap on this backend to return with a synthetic ResultWake
	// completion for a long-lived internal job.
	Wake()

	// Submit hands pending work to the kernel. May be a no-op for
	// readiness-based backends such as epoll.
	Submit() error

	// Reap returns a batch of completions bounded by len(out). If wait is
	// false, it returns immediately with whatever is ready (possibly zero).
	// If wait is true, it blocks until at least one completion is
	// available, unless the backend has fallback-blocking work
	// outstanding, in which case it polls instead of blocking so that work
	// keeps progressing.
	Reap(wait bool, out []Completion) (int, error)

	// Outstanding reports the number of jobs still in flight (queued
	// operations that have not yet produced a completion), excluding the
	// backend's permanent wake job. The Runtime loop's deadlock guard uses
	// this to distinguish "nothing left to do" from "idle but still
	// waiting on I/O".
	Outstanding() int

	// Close releases all kernel resources owned by the backend (epoll fd,
	// eventfd, any fds registered by in-flight jobs). Close is called
	// exactly once, by Runtime.Close.
	Close() error
}
