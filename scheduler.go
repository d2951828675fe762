package tardy

// Scheduler owns an indexed collection of Task slots and the subset of
// those slots currently eligible for dispatch. Invariant: runnable is
// always a subset of occupied (the pool's dirty bitmap); releasing a slot
// clears both.
type Scheduler struct {
	tasks    *Pool[task]
	runnable bitmap
}

// NewScheduler allocates a Scheduler with capacity for size_tasks_max live
// tasks.
func NewScheduler(capacity int) *Scheduler {
	return &Scheduler{
		tasks:    NewPool[task](capacity),
		runnable: newBitmap(capacity),
	}
}

// Cap returns size_tasks_max.
func (s *Scheduler) Cap() int { return s.tasks.Cap() }

// OccupiedCount returns the number of borrowed task slots, including a
// slot marked dead that has not yet been released.
func (s *Scheduler) OccupiedCount() int { return s.tasks.Len() }

// RunnableCount returns the number of tasks currently eligible for
// dispatch.
func (s *Scheduler) RunnableCount() int { return s.runnable.count() }

// Spawn borrows a task slot, installs fn, and marks the task runnable (or
// waiting, per initialState). Returns ErrOutOfSlots if the scheduler is at
// capacity.
func (s *Scheduler) Spawn(fn EntryFunc, initialState TaskState) (TaskIndex, error) {
	i, t, err := s.tasks.Borrow()
	if err != nil {
		return 0, err
	}
	t.index = TaskIndex(i)
	t.state = initialState
	t.fn = fn
	if initialState == TaskRunnable {
		s.runnable.set(i)
	}
	return t.index, nil
}

// SetRunnable transitions task i from waiting to runnable. Precondition:
// the task must currently be waiting; violating this is a scheduler bug
// and panics via a StateViolationError.
func (s *Scheduler) SetRunnable(i TaskIndex) {
	t := s.tasks.At(int(i))
	if !s.tasks.Dirty(int(i)) || t.state != TaskWaiting {
		panic(violationCause("Scheduler.SetRunnable", ErrTaskNotWaiting, "task %d is not waiting (dirty=%v state=%s)", i, s.tasks.Dirty(int(i)), t.state))
	}
	t.state = TaskRunnable
	s.runnable.set(int(i))
}

// MarkDead transitions task i to dead and clears its runnable bit, without
// releasing its slot. Used by the dispatch loop's two-step "mark dead, then
// release" sequence, which frees the slot before invoking the task body so
// a task that respawns itself can reuse its own index.
func (s *Scheduler) MarkDead(i TaskIndex) {
	t := s.tasks.At(int(i))
	t.state = TaskDead
	s.runnable.clear(int(i))
}

// Release clears task i's occupancy, making the slot eligible for reuse.
// The caller is responsible for having transitioned the task to dead
// first; Release itself does not inspect task state.
func (s *Scheduler) Release(i TaskIndex) {
	s.runnable.clear(int(i))
	s.tasks.Release(int(i))
}

// State returns the current state of task i.
func (s *Scheduler) State(i TaskIndex) TaskState {
	return s.tasks.At(int(i)).state
}

// EachRunnable calls fn with the index and a copy of every task that was
// runnable at the moment EachRunnable was called (snapshot semantics:
// tasks made runnable by fn itself are not visited by this call).
func (s *Scheduler) EachRunnable(fn func(i TaskIndex, t task)) {
	var snapshot []int
	s.runnable.each(func(i int) { snapshot = append(snapshot, i) })
	for _, i := range snapshot {
		fn(TaskIndex(i), *s.tasks.At(i))
	}
}
