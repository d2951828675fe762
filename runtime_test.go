package tardy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAIO is a hand-rolled AsyncIO double: every Queue* call immediately
// completes with the next Result off a pre-loaded script, so Reap never
// needs to actually block a goroutine. This lets a single Run() call drive
// a whole multi-step scenario deterministically and terminate on its own.
type fakeAIO struct {
	script []Result
	jobs   []fakeJob

	queueErr error // when set, every Queue* call fails with this error instead

	woken   bool
	closed  bool
	submits int
}

type fakeJob struct {
	task   TaskIndex
	result Result
	reaped bool
}

func (f *fakeAIO) next(task TaskIndex) (JobIndex, error) {
	if f.queueErr != nil {
		return 0, f.queueErr
	}
	var r Result
	if len(f.script) > 0 {
		r = f.script[0]
		f.script = f.script[1:]
	}
	idx := JobIndex(len(f.jobs))
	f.jobs = append(f.jobs, fakeJob{task: task, result: r})
	return idx, nil
}

func (f *fakeAIO) QueueTimer(task TaskIndex, d Timespec) (JobIndex, error)          { return f.next(task) }
func (f *fakeAIO) QueueOpen(task TaskIndex, path string) (JobIndex, error)          { return f.next(task) }
func (f *fakeAIO) QueueStat(task TaskIndex, fd int) (JobIndex, error)               { return f.next(task) }
func (f *fakeAIO) QueueRead(task TaskIndex, fd int, buf []byte, off int64) (JobIndex, error) {
	return f.next(task)
}
func (f *fakeAIO) QueueWrite(task TaskIndex, fd int, buf []byte, off int64) (JobIndex, error) {
	return f.next(task)
}
func (f *fakeAIO) QueueClose(task TaskIndex, fd int) (JobIndex, error)   { return f.next(task) }
func (f *fakeAIO) QueueAccept(task TaskIndex, sock int) (JobIndex, error) { return f.next(task) }
func (f *fakeAIO) QueueConnect(task TaskIndex, sock int, host string, port uint16) (JobIndex, error) {
	return f.next(task)
}
func (f *fakeAIO) QueueRecv(task TaskIndex, sock int, buf []byte) (JobIndex, error) {
	return f.next(task)
}
func (f *fakeAIO) QueueSend(task TaskIndex, sock int, buf []byte) (JobIndex, error) {
	return f.next(task)
}

func (f *fakeAIO) Wake()         { f.woken = true }
func (f *fakeAIO) Submit() error { f.submits++; return nil }

func (f *fakeAIO) Reap(wait bool, out []Completion) (int, error) {
	n := 0
	for i := range f.jobs {
		if n >= len(out) {
			break
		}
		if !f.jobs[i].reaped {
			out[n] = Completion{Task: f.jobs[i].task, Result: f.jobs[i].result}
			f.jobs[i].reaped = true
			n++
		}
	}
	return n, nil
}

func (f *fakeAIO) Outstanding() int {
	n := 0
	for _, j := range f.jobs {
		if !j.reaped {
			n++
		}
	}
	return n
}

func (f *fakeAIO) Close() error { f.closed = true; return nil }

func newTestRuntime(t *testing.T, aio *fakeAIO) *Runtime {
	t.Helper()
	rt, err := NewRuntime(aio, WithTaskCapacity(4), WithJobCapacity(4), WithReapCapacity(4))
	require.NoError(t, err)
	return rt
}

func TestRuntime_TimerFires(t *testing.T) {
	aio := &fakeAIO{script: []Result{{Kind: ResultNone}}}
	rt := newTestRuntime(t, aio)

	fired := false
	_, err := rt.SpawnDelay(func(rt *Runtime, meta *TaskMetadata, result Result) error {
		fired = true
		rt.Stop()
		return nil
	}, Timespec{Seconds: 1})
	require.NoError(t, err)

	require.NoError(t, rt.Run())
	assert.True(t, fired)
}

func TestRuntime_ChainedOpenStatRead(t *testing.T) {
	aio := &fakeAIO{script: []Result{
		{Kind: ResultFD, FD: 7},
		{Kind: ResultStat, Stat: Stat{Size: 42}},
		{Kind: ResultValue, Value: 13},
	}}
	rt := newTestRuntime(t, aio)

	var gotFD int32
	var gotSize uint64
	var gotN int64

	_, err := rt.QueueOpen("/tmp/example", func(rt *Runtime, meta *TaskMetadata, result Result) error {
		gotFD = result.FD
		_, err := rt.QueueStat(int(result.FD), func(rt *Runtime, meta *TaskMetadata, result Result) error {
			gotSize = result.Stat.Size
			_, err := rt.QueueRead(int(gotFD), make([]byte, 16), 0, func(rt *Runtime, meta *TaskMetadata, result Result) error {
				gotN = result.Value
				rt.Stop()
				return nil
			})
			return err
		})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, rt.Run())
	assert.Equal(t, int32(7), gotFD)
	assert.Equal(t, uint64(42), gotSize)
	assert.Equal(t, int64(13), gotN)
}

func TestRuntime_SpawnAtCapacityReturnsErrOutOfSlots(t *testing.T) {
	aio := &fakeAIO{}
	rt, err := NewRuntime(aio, WithTaskCapacity(1), WithJobCapacity(4), WithReapCapacity(4))
	require.NoError(t, err)

	_, err = rt.Spawn(noopEntry)
	require.NoError(t, err)
	_, err = rt.Spawn(noopEntry)
	assert.ErrorIs(t, err, ErrOutOfSlots)
}

func TestRuntime_AbandonReleasesSlotOnFailedQueueRegistration(t *testing.T) {
	aio := &fakeAIO{queueErr: errors.New("backend: out of jobs")}
	rt := newTestRuntime(t, aio)

	before := rt.scheduler.OccupiedCount()
	_, err := rt.QueueTimer(Timespec{Seconds: 1}, noopEntry)
	assert.Error(t, err)
	assert.Equal(t, before, rt.scheduler.OccupiedCount(), "a task spawned to hold a failed registration must not leak its slot")
}

func TestRuntime_WakeCompletionIsSkippedByResume(t *testing.T) {
	aio := &fakeAIO{}
	rt := newTestRuntime(t, aio)

	ticks := 0
	_, err := rt.QueueTimer(Timespec{}, func(rt *Runtime, meta *TaskMetadata, result Result) error {
		ticks++
		return nil
	})
	require.NoError(t, err)
	_, err = rt.QueueTimer(Timespec{}, func(rt *Runtime, meta *TaskMetadata, result Result) error {
		ticks++
		rt.Stop()
		return nil
	})
	require.NoError(t, err)

	// Simulate the backend's own permanent wake job firing: a ResultWake
	// completion is not tied to any particular waiting task, so resume
	// must skip it entirely rather than looking up Task in the scheduler.
	aio.jobs = append([]fakeJob{{task: 999, result: Result{Kind: ResultWake}}}, aio.jobs...)

	require.NoError(t, rt.Run())
	assert.Equal(t, 2, ticks)
}

func TestRuntime_TaskPanicIsIsolated(t *testing.T) {
	aio := &fakeAIO{}
	rt := newTestRuntime(t, aio)

	ranAfter := false
	_, err := rt.Spawn(func(rt *Runtime, meta *TaskMetadata, result Result) error {
		panic("boom")
	})
	require.NoError(t, err)
	_, err = rt.Spawn(func(rt *Runtime, meta *TaskMetadata, result Result) error {
		ranAfter = true
		rt.Stop()
		return nil
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		require.NoError(t, rt.Run())
	})
	assert.True(t, ranAfter, "a panicking task must not prevent other runnable tasks from dispatching")
}

func TestRuntime_TaskErrorIsSwallowed(t *testing.T) {
	aio := &fakeAIO{}
	rt := newTestRuntime(t, aio)

	_, err := rt.Spawn(func(rt *Runtime, meta *TaskMetadata, result Result) error {
		rt.Stop()
		return errors.New("task failed")
	})
	require.NoError(t, err)

	assert.NoError(t, rt.Run())
}

func TestRuntime_ResumePanicsOnCompletionForNonWaitingTask(t *testing.T) {
	aio := &fakeAIO{}
	rt := newTestRuntime(t, aio)

	idx, err := rt.Spawn(noopEntry)
	require.NoError(t, err)

	rt.completions = make([]Completion, 1)
	rt.completions[0] = Completion{Task: idx, Result: Result{}}
	assert.Panics(t, func() { rt.resume(1) })
}

func TestRuntime_CloseDelegatesToBackend(t *testing.T) {
	aio := &fakeAIO{}
	rt := newTestRuntime(t, aio)
	require.NoError(t, rt.Close())
	assert.True(t, aio.closed)
}

func TestRuntime_WakeDelegatesToBackend(t *testing.T) {
	aio := &fakeAIO{}
	rt := newTestRuntime(t, aio)
	rt.Wake()
	assert.True(t, aio.woken)
}
