//go:build linux

package epoll

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/Torbatti/tardy"
)

// Reap drains the blocking FIFO as far as the output buffer and a
// non-blocking retry of each job allow, then polls epoll for readiness
// events, looping until wait is satisfied or out is full.
func (b *Backend) Reap(wait bool, out []Completion) (int, error) {
	reaped := b.drainBlocking(out)

	var evbuf [64]unix.EpollEvent
	for reaped < len(out) {
		timeout := -1
		if !wait || reaped > 0 || len(b.blocking) > 0 {
			timeout = 0
		}
		n, err := unix.EpollWait(b.epfd, evbuf[:], timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return reaped, err
		}
		for i := 0; i < n && reaped < len(out); i++ {
			if c, ok := b.dispatchEvent(evbuf[i]); ok {
				out[reaped] = c
				reaped++
			}
		}
		if !wait || reaped > 0 || n == 0 {
			break
		}
	}
	return reaped, nil
}

// drainBlocking services jobs in the blocking FIFO in order, one
// non-blocking syscall attempt each, until either the queue empties, out
// fills, or a job reports WouldBlock. A WouldBlock job is left at the
// front of the queue for the next Reap call rather than popped: checking
// buffer space before popping means a full output buffer never silently
// drops a job.
func (b *Backend) drainBlocking(out []Completion) int {
	reaped := 0
	for reaped < len(out) && len(b.blocking) > 0 {
		idx := b.blocking[0]
		j := b.jobs.At(int(idx))
		result, wouldBlock := b.drainOne(j)
		if wouldBlock {
			break
		}
		b.blocking = b.blocking[1:]
		out[reaped] = Completion{Task: j.task, Result: result}
		reaped++
		b.release(idx, j)
	}
	return reaped
}

func (b *Backend) release(idx tardy.JobIndex, j *job) {
	if j.registered {
		b.unregister(j.fd)
	}
	b.jobs.Release(int(idx))
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// drainOne attempts one blocking-FIFO job's syscall. The second return
// value reports WouldBlock, signaling the job should stay queued rather
// than produce a completion.
func (b *Backend) drainOne(j *job) (Result, bool) {
	switch j.kind {
	case kindOpen:
		fd, err := unix.Openat(unix.AT_FDCWD, j.path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CREAT, 0644)
		if isWouldBlock(err) {
			return Result{}, true
		}
		if err != nil {
			return Result{Kind: tardy.ResultFD, FD: -1}, false
		}
		return Result{Kind: tardy.ResultFD, FD: int32(fd)}, false

	case kindStat:
		var st unix.Stat_t
		if err := unix.Fstat(j.fd, &st); err != nil {
			return Result{Kind: tardy.ResultStat}, false
		}
		return Result{Kind: tardy.ResultStat, Stat: tardy.Stat{
			Size:     uint64(st.Size),
			Mode:     st.Mode,
			Accessed: timespecToTime(st.Atim),
			Modified: timespecToTime(st.Mtim),
			Changed:  timespecToTime(st.Ctim),
		}}, false

	case kindRead:
		var n int
		var err error
		if j.off >= 0 {
			n, err = unix.Pread(j.fd, j.buf, j.off)
		} else {
			n, err = unix.Read(j.fd, j.buf)
		}
		if isWouldBlock(err) {
			return Result{}, true
		}
		if err != nil {
			return Result{Kind: tardy.ResultValue, Value: -1}, false
		}
		return Result{Kind: tardy.ResultValue, Value: int64(n)}, false

	case kindWrite:
		var n int
		var err error
		if j.off >= 0 {
			n, err = unix.Pwrite(j.fd, j.buf, j.off)
		} else {
			n, err = unix.Write(j.fd, j.buf)
		}
		if isWouldBlock(err) {
			return Result{}, true
		}
		if err != nil {
			return Result{Kind: tardy.ResultValue, Value: -1}, false
		}
		return Result{Kind: tardy.ResultValue, Value: int64(n)}, false

	case kindClose:
		_ = unix.Close(j.fd)
		return Result{Kind: tardy.ResultNone}, false
	}
	return Result{}, false
}

// dispatchEvent resolves one epoll event to at most one completion. A
// stale Fd (the job slot it names is no longer occupied) is ignored
// rather than treated as a protocol error: epoll can still report an fd
// registered by a job that has since been released and its slot reused.
func (b *Backend) dispatchEvent(ev unix.EpollEvent) (Completion, bool) {
	idx := tardy.JobIndex(ev.Fd)
	if !b.jobs.Dirty(int(idx)) {
		return Completion{}, false
	}
	j := b.jobs.At(int(idx))

	switch j.kind {
	case kindWake:
		var buf [8]byte
		for {
			if _, err := unix.Read(b.wakeFD, buf[:]); err != nil {
				break
			}
		}
		return Completion{Result: Result{Kind: tardy.ResultWake}}, true

	case kindTimer:
		var buf [8]byte
		_, _ = unix.Read(j.fd, buf[:])
		c := Completion{Task: j.task, Result: Result{Kind: tardy.ResultNone}}
		_ = unix.Close(j.timerFD)
		b.release(idx, j)
		return c, true

	case kindAccept:
		nfd, _, err := unix.Accept4(j.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if isWouldBlock(err) {
			return Completion{}, false
		}
		c := Completion{Task: j.task}
		if err != nil {
			c.Result = Result{Kind: tardy.ResultSocket, Socket: -1}
		} else {
			c.Result = Result{Kind: tardy.ResultSocket, Socket: int32(nfd)}
		}
		b.release(idx, j)
		return c, true

	case kindConnect:
		err := unix.Connect(j.fd, j.sa)
		c := Completion{Task: j.task}
		if err == nil || err == unix.EISCONN {
			c.Result = Result{Kind: tardy.ResultValue, Value: 1}
		} else {
			c.Result = Result{Kind: tardy.ResultValue, Value: -1}
		}
		b.release(idx, j)
		return c, true

	case kindRecv:
		n, _, err := unix.Recvfrom(j.fd, j.buf, 0)
		if isWouldBlock(err) {
			return Completion{}, false
		}
		c := Completion{Task: j.task, Result: Result{Kind: tardy.ResultValue, Value: transferValue(n, err)}}
		b.release(idx, j)
		return c, true

	case kindSend:
		n, err := unix.SendmsgN(j.fd, j.buf, nil, nil, 0)
		if isWouldBlock(err) {
			return Completion{}, false
		}
		c := Completion{Task: j.task, Result: Result{Kind: tardy.ResultValue, Value: transferValue(n, err)}}
		b.release(idx, j)
		return c, true
	}
	return Completion{}, false
}

func timespecToTime(ts unix.Timespec) time.Time {
	return time.Unix(ts.Sec, ts.Nsec)
}

// transferValue maps a recv/send outcome to the wire convention for
// ResultValue: a peer reset reports 0, any other error reports -1, success
// reports the number of bytes transferred.
func transferValue(n int, err error) int64 {
	switch {
	case err == nil:
		return int64(n)
	case err == unix.ECONNRESET:
		return 0
	default:
		return -1
	}
}
