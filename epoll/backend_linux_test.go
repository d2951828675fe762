//go:build linux

package epoll

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Torbatti/tardy"
)

// reapUntil polls b.Reap until at least want completions have been
// collected or deadline elapses, returning everything gathered so far.
func reapUntil(t *testing.T, b *Backend, want int, deadline time.Duration) []Completion {
	t.Helper()
	var got []Completion
	end := time.Now().Add(deadline)
	buf := make([]Completion, 8)
	for len(got) < want && time.Now().Before(end) {
		n, err := b.Reap(true, buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.GreaterOrEqualf(t, len(got), want, "timed out waiting for %d completions, got %d", want, len(got))
	return got
}

func TestBackend_TimerFires(t *testing.T) {
	b, err := New(8)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.QueueTimer(tardy.TaskIndex(1), tardy.Timespec{Nanos: 1_000_000})
	require.NoError(t, err)

	got := reapUntil(t, b, 1, 2*time.Second)
	assert.Equal(t, tardy.TaskIndex(1), got[0].Task)
	assert.Equal(t, tardy.ResultNone, got[0].Result.Kind)
	assert.Equal(t, 0, b.Outstanding())
}

func TestBackend_OpenStatReadClose(t *testing.T) {
	b, err := New(8)
	require.NoError(t, err)
	defer b.Close()

	f, err := os.CreateTemp(t.TempDir(), "tardy-epoll-*")
	require.NoError(t, err)
	path := f.Name()
	_, err = f.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = b.QueueOpen(tardy.TaskIndex(1), path)
	require.NoError(t, err)
	got := reapUntil(t, b, 1, time.Second)
	require.Equal(t, tardy.ResultFD, got[0].Result.Kind)
	fd := got[0].Result.FD
	require.GreaterOrEqual(t, fd, int32(0))
	defer unix.Close(int(fd))

	_, err = b.QueueStat(tardy.TaskIndex(2), int(fd))
	require.NoError(t, err)
	got = reapUntil(t, b, 1, time.Second)
	assert.Equal(t, tardy.ResultStat, got[0].Result.Kind)
	assert.Equal(t, uint64(5), got[0].Result.Stat.Size)

	buf := make([]byte, 16)
	_, err = b.QueueRead(tardy.TaskIndex(3), int(fd), buf, 0)
	require.NoError(t, err)
	got = reapUntil(t, b, 1, time.Second)
	require.Equal(t, tardy.ResultValue, got[0].Result.Kind)
	n := got[0].Result.Value
	assert.Equal(t, "hello", string(buf[:n]))

	_, err = b.QueueClose(tardy.TaskIndex(4), int(fd))
	require.NoError(t, err)
	got = reapUntil(t, b, 1, time.Second)
	assert.Equal(t, tardy.ResultNone, got[0].Result.Kind)
}

func TestBackend_SendRecvOverSocketpair(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	b, err := New(8)
	require.NoError(t, err)
	defer b.Close()

	payload := []byte("ping")
	_, err = b.QueueSend(tardy.TaskIndex(1), fds[0], payload)
	require.NoError(t, err)
	recvBuf := make([]byte, 16)
	_, err = b.QueueRecv(tardy.TaskIndex(2), fds[1], recvBuf)
	require.NoError(t, err)

	got := reapUntil(t, b, 2, 2*time.Second)
	byTask := map[tardy.TaskIndex]tardy.Result{}
	for _, c := range got {
		byTask[c.Task] = c.Result
	}
	require.Equal(t, int64(len(payload)), byTask[tardy.TaskIndex(1)].Value)
	n := byTask[tardy.TaskIndex(2)].Value
	assert.Equal(t, payload, recvBuf[:n])
}

func TestBackend_AcceptConnect(t *testing.T) {
	lfd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(lfd)
	require.NoError(t, unix.Bind(lfd, &unix.SockaddrInet4{Port: 0, Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, unix.Listen(lfd, 16))
	sa, err := unix.Getsockname(lfd)
	require.NoError(t, err)
	port := sa.(*unix.SockaddrInet4).Port

	cfd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(cfd)

	b, err := New(8)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.QueueAccept(tardy.TaskIndex(1), lfd)
	require.NoError(t, err)
	_, err = b.QueueConnect(tardy.TaskIndex(2), cfd, "127.0.0.1", uint16(port))
	require.NoError(t, err)

	got := reapUntil(t, b, 2, 2*time.Second)
	byTask := map[tardy.TaskIndex]tardy.Result{}
	for _, c := range got {
		byTask[c.Task] = c.Result
	}
	assert.Equal(t, int64(1), byTask[tardy.TaskIndex(2)].Value, "connect must report success as value 1")
	acceptedFD := byTask[tardy.TaskIndex(1)].Socket
	assert.GreaterOrEqual(t, acceptedFD, int32(0))
	if acceptedFD >= 0 {
		unix.Close(int(acceptedFD))
	}
}

func TestBackend_WakeUnblocksReap(t *testing.T) {
	b, err := New(8)
	require.NoError(t, err)
	defer b.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Wake()
	}()

	buf := make([]Completion, 4)
	start := time.Now()
	n, err := b.Reap(true, buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, tardy.ResultWake, buf[0].Result.Kind)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBackend_OutstandingTracksInFlightJobs(t *testing.T) {
	b, err := New(8)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, 0, b.Outstanding())
	_, err = b.QueueTimer(tardy.TaskIndex(1), tardy.Timespec{Seconds: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Outstanding())
}
