package tardy

import "fmt"

// Runtime ties a Scheduler to an AsyncIO backend and drives the dispatch
// loop: run every currently-runnable task, submit queued operations,
// reap completions, repeat until quiescent. A Runtime is built to run on a
// single goroutine; Wake is the only method safe to call from elsewhere.
type Runtime struct {
	scheduler *Scheduler
	aio       AsyncIO
	opts      Options

	running     bool
	completions []Completion
	// results holds the completion Result pending delivery to each waiting
	// task, indexed by TaskIndex. It is populated by the reap step and
	// consumed by the next dispatch phase that resumes that slot.
	results []Result

	// ownerGoroutine is the id of the goroutine that first called a
	// single-goroutine Runtime method, recorded and checked only under the
	// tardy_debug build tag; see assertOwner.
	ownerGoroutine uint64
}

// NewRuntime constructs a Runtime over the given backend. opts are applied
// over DefaultOptions(); NewRuntime returns ErrInvalidOptions if the
// resulting size_aio_reap_max exceeds size_aio_jobs_max.
func NewRuntime(aio AsyncIO, opts ...Option) (*Runtime, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Runtime{
		scheduler:   NewScheduler(int(o.SizeTasksMax)),
		aio:         aio,
		opts:        o,
		completions: make([]Completion, o.SizeAIOReapMax),
		results:     make([]Result, o.SizeTasksMax),
	}, nil
}

// Spawn adds a new runnable task running fn, to be dispatched on the next
// tick. Returns ErrOutOfSlots if the task pool is at size_tasks_max.
func (rt *Runtime) Spawn(fn EntryFunc) (TaskIndex, error) {
	rt.assertOwner()
	return rt.scheduler.Spawn(fn, TaskRunnable)
}

// SpawnDelay adds a new task that becomes runnable after d elapses,
// implemented by queuing a timer job. There is no cancellation primitive:
// once spawned, the timer runs to completion.
func (rt *Runtime) SpawnDelay(fn EntryFunc, d Timespec) (TaskIndex, error) {
	rt.assertOwner()
	idx, err := rt.scheduler.Spawn(fn, TaskWaiting)
	if err != nil {
		return 0, err
	}
	if _, err := rt.aio.QueueTimer(idx, d); err != nil {
		rt.abandon(idx)
		return 0, err
	}
	return idx, nil
}

// Stop requests that Run return once the current dispatch phase finishes.
func (rt *Runtime) Stop() {
	rt.assertOwner()
	rt.running = false
}

// Wake interrupts a blocked Reap on this Runtime's backend. Safe to call
// from any goroutine.
func (rt *Runtime) Wake() { rt.aio.Wake() }

// Close tears down the backend's kernel resources. Call after Run returns.
func (rt *Runtime) Close() error { return rt.aio.Close() }

// abandon releases a task slot that was spawned waiting but whose queue
// operation failed to register with the backend.
func (rt *Runtime) abandon(idx TaskIndex) {
	rt.scheduler.MarkDead(idx)
	rt.scheduler.Release(idx)
}

// --- AsyncIO suspension helpers ---
//
// Each of these spawns a fresh waiting task to hold the continuation, then
// registers the operation against it: every queue_* operation internally
// spawns a fresh waiting task rather than requiring the caller to do so.

// QueueTimer suspends until d elapses, then resumes cont with a ResultNone.
func (rt *Runtime) QueueTimer(d Timespec, cont EntryFunc) (TaskIndex, error) {
	return rt.suspend(cont, func(idx TaskIndex) (JobIndex, error) { return rt.aio.QueueTimer(idx, d) })
}

// QueueOpen suspends until path is opened, resuming cont with ResultFD.
func (rt *Runtime) QueueOpen(path string, cont EntryFunc) (TaskIndex, error) {
	return rt.suspend(cont, func(idx TaskIndex) (JobIndex, error) { return rt.aio.QueueOpen(idx, path) })
}

// QueueStat suspends until fd's metadata is fetched, resuming cont with ResultStat.
func (rt *Runtime) QueueStat(fd int, cont EntryFunc) (TaskIndex, error) {
	return rt.suspend(cont, func(idx TaskIndex) (JobIndex, error) { return rt.aio.QueueStat(idx, fd) })
}

// QueueRead suspends until a read from fd at off into buf completes,
// resuming cont with ResultValue (bytes read).
func (rt *Runtime) QueueRead(fd int, buf []byte, off int64, cont EntryFunc) (TaskIndex, error) {
	return rt.suspend(cont, func(idx TaskIndex) (JobIndex, error) { return rt.aio.QueueRead(idx, fd, buf, off) })
}

// QueueWrite suspends until a write to fd at off from buf completes,
// resuming cont with ResultValue (bytes written).
func (rt *Runtime) QueueWrite(fd int, buf []byte, off int64, cont EntryFunc) (TaskIndex, error) {
	return rt.suspend(cont, func(idx TaskIndex) (JobIndex, error) { return rt.aio.QueueWrite(idx, fd, buf, off) })
}

// QueueClose suspends until fd is closed, resuming cont with ResultNone.
func (rt *Runtime) QueueClose(fd int, cont EntryFunc) (TaskIndex, error) {
	return rt.suspend(cont, func(idx TaskIndex) (JobIndex, error) { return rt.aio.QueueClose(idx, fd) })
}

// QueueAccept suspends until sock accepts a connection, resuming cont with ResultSocket.
func (rt *Runtime) QueueAccept(sock int, cont EntryFunc) (TaskIndex, error) {
	return rt.suspend(cont, func(idx TaskIndex) (JobIndex, error) { return rt.aio.QueueAccept(idx, sock) })
}

// QueueConnect suspends until sock connects to host:port, resuming cont with ResultValue.
func (rt *Runtime) QueueConnect(sock int, host string, port uint16, cont EntryFunc) (TaskIndex, error) {
	return rt.suspend(cont, func(idx TaskIndex) (JobIndex, error) { return rt.aio.QueueConnect(idx, sock, host, port) })
}

// QueueRecv suspends until sock has data to receive into buf, resuming
// cont with ResultValue (bytes received).
func (rt *Runtime) QueueRecv(sock int, buf []byte, cont EntryFunc) (TaskIndex, error) {
	return rt.suspend(cont, func(idx TaskIndex) (JobIndex, error) { return rt.aio.QueueRecv(idx, sock, buf) })
}

// QueueSend suspends until buf is sent on sock, resuming cont with
// ResultValue (bytes sent).
func (rt *Runtime) QueueSend(sock int, buf []byte, cont EntryFunc) (TaskIndex, error) {
	return rt.suspend(cont, func(idx TaskIndex) (JobIndex, error) { return rt.aio.QueueSend(idx, sock, buf) })
}

func (rt *Runtime) suspend(cont EntryFunc, register func(TaskIndex) (JobIndex, error)) (TaskIndex, error) {
	rt.assertOwner()
	idx, err := rt.scheduler.Spawn(cont, TaskWaiting)
	if err != nil {
		return 0, err
	}
	if _, err := register(idx); err != nil {
		rt.abandon(idx)
		return 0, err
	}
	return idx, nil
}

// Run executes the drive loop until Stop is called or the runtime quiesces
// (no runnable tasks and no outstanding jobs).
func (rt *Runtime) Run() error {
	rt.assertOwner()
	rt.running = true
	for rt.running {
		rt.dispatch()

		if !rt.running {
			break
		}

		if err := rt.aio.Submit(); err != nil {
			return fmt.Errorf("tardy: submit: %w", err)
		}

		waitForIO := rt.scheduler.RunnableCount() == 0 && rt.aio.Outstanding() > 0
		n, err := rt.aio.Reap(waitForIO, rt.completions)
		if err != nil {
			return fmt.Errorf("tardy: reap: %w", err)
		}
		rt.resume(n)

		if rt.scheduler.RunnableCount() == 0 && rt.aio.Outstanding() == 0 {
			rt.opts.Logger.Debug("runtime quiescent, stopping")
			rt.running = false
		}
	}
	return nil
}

// dispatch runs the snapshot of tasks that were runnable when it was
// called. Tasks made runnable by a task body during this call are not
// visited until the next tick.
func (rt *Runtime) dispatch() {
	type ready struct {
		idx    TaskIndex
		fn     EntryFunc
		result Result
	}
	var batch []ready
	rt.scheduler.EachRunnable(func(i TaskIndex, t task) {
		if t.state != TaskRunnable {
			panic(violation("Runtime.dispatch", "task %d in runnable set but state=%s", i, t.state))
		}
		batch = append(batch, ready{idx: i, fn: t.fn, result: rt.results[i]})
	})
	for _, r := range batch {
		rt.results[r.idx] = Result{}
		rt.scheduler.MarkDead(r.idx)
		rt.scheduler.Release(r.idx)
		rt.invoke(r.idx, r.fn, r.result)
	}
}

// invoke calls a task's entry point, isolating panics and returned errors:
// both are logged and swallowed so one task's failure never takes down the
// runtime or any other task.
func (rt *Runtime) invoke(idx TaskIndex, fn EntryFunc, result Result) {
	defer func() {
		if v := recover(); v != nil {
			rt.opts.Logger.Warn("task panicked", Int("task", int(idx)), Err(&TaskPanicError{Task: idx, Value: v}))
		}
	}()
	meta := &TaskMetadata{Index: idx}
	if err := fn(rt, meta, result); err != nil {
		rt.opts.Logger.Warn("task returned error", Int("task", int(idx)), Err(err))
	}
}

// resume processes the first n completions in rt.completions, transitioning
// each named task from waiting to runnable and stashing its Result for
// delivery on the next dispatch. Wake completions are not tied to any
// single waiting task and are used only to break out of a blocked Reap.
func (rt *Runtime) resume(n int) {
	for i := 0; i < n; i++ {
		c := rt.completions[i]
		if c.Result.Kind == ResultWake {
			continue
		}
		if rt.scheduler.State(c.Task) != TaskWaiting {
			panic(violationCause("Runtime.resume", ErrTaskNotWaiting, "completion for task %d which is not waiting", c.Task))
		}
		rt.results[c.Task] = c.Result
		rt.scheduler.SetRunnable(c.Task)
	}
}
