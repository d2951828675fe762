//go:build linux

package epoll

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/Torbatti/tardy"
)

// Completion and Result are local aliases for the tardy types this
// backend produces, kept to avoid a tardy. prefix on every line of the
// reap path below.
type Completion = tardy.Completion
type Result = tardy.Result

var _ tardy.AsyncIO = (*Backend)(nil)

// wakeJobIndex is the fixed slot for the backend's permanent wake job,
// installed once at New and never released.
const wakeJobIndex = 0

// Backend is the epoll-based reference implementation of tardy.AsyncIO. A
// Backend owns an epoll instance and an eventfd used for cross-thread
// wakeups, plus a fixed-capacity pool of in-flight Jobs, slab-allocated the
// same way the Runtime pools its own Tasks.
type Backend struct {
	epfd   int
	wakeFD int

	jobs     *tardy.Pool[job]
	blocking []tardy.JobIndex // FIFO of jobs awaiting a blocking syscall attempt

	logger tardy.Logger
}

// Option configures a Backend at construction.
type Option func(*Backend)

// WithLogger attaches a tardy.Logger for backend diagnostics. Defaults to a
// no-op logger.
func WithLogger(l tardy.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Backend with room for jobCapacity simultaneous in-flight
// operations (size_aio_jobs_max), plus the one permanently-reserved wake
// job. New installs the epoll instance and wake eventfd immediately; Close
// must be called to release them.
func New(jobCapacity int, opts ...Option) (*Backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll: create: %w", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll: eventfd: %w", err)
	}

	b := &Backend{
		epfd:   epfd,
		wakeFD: wakeFD,
		jobs:   tardy.NewPool[job](jobCapacity + 1),
		logger: tardy.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}

	wj := b.jobs.BorrowAssumeUnset(wakeJobIndex)
	*wj = job{kind: kindWake, fd: wakeFD}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: epollin,
		Fd:     int32(wakeJobIndex),
	}); err != nil {
		_ = unix.Close(wakeFD)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll: register wake fd: %w", err)
	}

	return b, nil
}

// Outstanding reports the number of in-flight jobs, excluding the
// permanent wake job.
func (b *Backend) Outstanding() int { return b.jobs.Len() - 1 }

// Wake is safe to call from any goroutine; it causes a blocked Reap to
// return promptly with a ResultWake completion.
func (b *Backend) Wake() {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(b.wakeFD, buf[:])
}

// Submit is a no-op: epoll's readiness model has no separate submission
// phase distinct from registration, which Queue* already performs.
func (b *Backend) Submit() error { return nil }

// Close releases the epoll fd, the wake eventfd, and every fd still owned
// by an in-flight job.
func (b *Backend) Close() error {
	b.jobs.Deinit(func(i int, j *job) {
		if i == wakeJobIndex {
			return
		}
		if j.timerFD != 0 {
			_ = unix.Close(j.timerFD)
		}
	})
	var err error
	if e := unix.Close(b.wakeFD); e != nil {
		err = e
	}
	if e := unix.Close(b.epfd); e != nil && err == nil {
		err = e
	}
	if err != nil {
		b.logger.Warn("epoll: close failed", tardy.Err(err))
	}
	return err
}

// register performs an add-or-modify epoll registration for fd, keyed to
// job index idx: EPOLL_CTL_ADD is tried first, falling back to
// EPOLL_CTL_MOD on EEXIST to handle a second operation queued against an
// fd that's already registered for a different readiness direction.
func (b *Backend) register(fd int, idx tardy.JobIndex, events uint32) error {
	ev := &unix.EpollEvent{Events: events, Fd: int32(idx)}
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, ev)
	if err == unix.EEXIST {
		b.logger.Debug("epoll: fd already registered, modifying instead", tardy.Int("fd", fd))
		err = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, ev)
	}
	return err
}

func (b *Backend) unregister(fd int) {
	_ = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (b *Backend) borrow(task tardy.TaskIndex, k kind) (tardy.JobIndex, *job, error) {
	i, j, err := b.jobs.BorrowHint(int(task))
	if err != nil {
		return 0, nil, err
	}
	j.task = task
	j.kind = k
	return tardy.JobIndex(i), j, nil
}

// QueueTimer arms a dedicated timerfd for d and registers it for epoll
// readiness; the fire is delivered as a ResultNone completion.
func (b *Backend) QueueTimer(task tardy.TaskIndex, d tardy.Timespec) (tardy.JobIndex, error) {
	idx, j, err := b.borrow(task, kindTimer)
	if err != nil {
		return 0, err
	}
	tfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.O_CLOEXEC|unix.O_NONBLOCK)
	if err != nil {
		b.jobs.Release(int(idx))
		return 0, fmt.Errorf("epoll: timerfd_create: %w", err)
	}
	spec := &unix.ItimerSpec{
		Value: unix.Timespec{Sec: int64(d.Seconds), Nsec: int64(d.Nanos)},
	}
	if err := unix.TimerfdSettime(tfd, 0, spec, nil); err != nil {
		_ = unix.Close(tfd)
		b.jobs.Release(int(idx))
		return 0, fmt.Errorf("epoll: timerfd_settime: %w", err)
	}
	j.timerFD = tfd
	j.fd = tfd
	if err := b.register(tfd, idx, epollin); err != nil {
		_ = unix.Close(tfd)
		b.jobs.Release(int(idx))
		return 0, fmt.Errorf("epoll: register timer: %w", err)
	}
	j.registered = true
	return idx, nil
}

// QueueOpen enqueues an open(2) for path onto the blocking-drain FIFO;
// open has no readiness notion epoll can observe.
func (b *Backend) QueueOpen(task tardy.TaskIndex, path string) (tardy.JobIndex, error) {
	idx, j, err := b.borrow(task, kindOpen)
	if err != nil {
		return 0, err
	}
	j.path = path
	b.blocking = append(b.blocking, idx)
	return idx, nil
}

// QueueStat enqueues an fstat(2) of fd onto the blocking-drain FIFO.
func (b *Backend) QueueStat(task tardy.TaskIndex, fd int) (tardy.JobIndex, error) {
	idx, j, err := b.borrow(task, kindStat)
	if err != nil {
		return 0, err
	}
	j.fd = fd
	b.blocking = append(b.blocking, idx)
	return idx, nil
}

// QueueRead enqueues a read from fd onto the blocking-drain FIFO. off < 0
// reads from the fd's current stream position via read(2); off >= 0 uses
// pread(2) at that explicit offset.
func (b *Backend) QueueRead(task tardy.TaskIndex, fd int, buf []byte, off int64) (tardy.JobIndex, error) {
	idx, j, err := b.borrow(task, kindRead)
	if err != nil {
		return 0, err
	}
	j.fd, j.buf, j.off = fd, buf, off
	b.blocking = append(b.blocking, idx)
	return idx, nil
}

// QueueWrite enqueues a write to fd onto the blocking-drain FIFO. off < 0
// writes at the fd's current stream position via write(2); off >= 0 uses
// pwrite(2) at that explicit offset.
func (b *Backend) QueueWrite(task tardy.TaskIndex, fd int, buf []byte, off int64) (tardy.JobIndex, error) {
	idx, j, err := b.borrow(task, kindWrite)
	if err != nil {
		return 0, err
	}
	j.fd, j.buf, j.off = fd, buf, off
	b.blocking = append(b.blocking, idx)
	return idx, nil
}

// QueueClose enqueues a close(2) of fd onto the blocking-drain FIFO.
func (b *Backend) QueueClose(task tardy.TaskIndex, fd int) (tardy.JobIndex, error) {
	idx, j, err := b.borrow(task, kindClose)
	if err != nil {
		return 0, err
	}
	j.fd = fd
	b.blocking = append(b.blocking, idx)
	return idx, nil
}

// QueueAccept registers sock for EPOLLIN readiness; accept4 is attempted
// each time sock becomes readable until it yields a connection or a hard
// error.
func (b *Backend) QueueAccept(task tardy.TaskIndex, sock int) (tardy.JobIndex, error) {
	idx, j, err := b.borrow(task, kindAccept)
	if err != nil {
		return 0, err
	}
	j.fd = sock
	if err := b.register(sock, idx, j.kind.epollEvents()); err != nil {
		b.jobs.Release(int(idx))
		return 0, fmt.Errorf("epoll: register accept: %w", err)
	}
	j.registered = true
	return idx, nil
}

// QueueConnect initiates connect(2) on sock immediately, tolerating an
// EINPROGRESS result for the common non-blocking case, then unconditionally
// registers sock for EPOLLOUT readiness: even a connect that fails
// synchronously is resolved by the EPOLLOUT dispatch path's own connect(2)
// retry, which recovers EISCONN for a completed connection or the real
// errno otherwise.
func (b *Backend) QueueConnect(task tardy.TaskIndex, sock int, host string, port uint16) (tardy.JobIndex, error) {
	idx, j, err := b.borrow(task, kindConnect)
	if err != nil {
		return 0, err
	}
	sa, err := sockaddr(host, int(port))
	if err != nil {
		b.jobs.Release(int(idx))
		return 0, err
	}
	j.fd, j.host, j.port, j.sa = sock, host, port, sa
	_ = unix.Connect(sock, sa)
	if err := b.register(sock, idx, j.kind.epollEvents()); err != nil {
		b.jobs.Release(int(idx))
		return 0, fmt.Errorf("epoll: register connect: %w", err)
	}
	j.registered = true
	return idx, nil
}

// QueueRecv registers sock for EPOLLIN readiness.
func (b *Backend) QueueRecv(task tardy.TaskIndex, sock int, buf []byte) (tardy.JobIndex, error) {
	idx, j, err := b.borrow(task, kindRecv)
	if err != nil {
		return 0, err
	}
	j.fd, j.buf = sock, buf
	if err := b.register(sock, idx, j.kind.epollEvents()); err != nil {
		b.jobs.Release(int(idx))
		return 0, fmt.Errorf("epoll: register recv: %w", err)
	}
	j.registered = true
	return idx, nil
}

// QueueSend registers sock for EPOLLOUT readiness.
func (b *Backend) QueueSend(task tardy.TaskIndex, sock int, buf []byte) (tardy.JobIndex, error) {
	idx, j, err := b.borrow(task, kindSend)
	if err != nil {
		return 0, err
	}
	j.fd, j.buf = sock, buf
	if err := b.register(sock, idx, j.kind.epollEvents()); err != nil {
		b.jobs.Release(int(idx))
		return 0, fmt.Errorf("epoll: register send: %w", err)
	}
	j.registered = true
	return idx, nil
}
