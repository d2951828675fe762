//go:build linux

// Package epoll is the reference AsyncIO backend for Linux, built on
// golang.org/x/sys/unix's epoll, eventfd, and timerfd bindings. It
// implements the tardy.AsyncIO contract by driving readiness-based
// dispatch for sockets and a non-blocking FIFO drain for the syscalls
// the kernel only ever exposes as blocking.
package epoll

import (
	"golang.org/x/sys/unix"

	"github.com/Torbatti/tardy"
)

// kind discriminates the operation a Job represents.
type kind uint8

const (
	kindWake kind = iota
	kindTimer
	kindOpen
	kindStat
	kindRead
	kindWrite
	kindClose
	kindAccept
	kindConnect
	kindRecv
	kindSend
)

// job is the backend's private bookkeeping record for a single in-flight
// operation. One job is created per Queue* call and released once its
// completion has been reaped, except job 0, which is the permanent wake
// job and is never released. Whether a job sits in the blocking-drain FIFO
// or is registered against the epoll instance is already determined by
// which of those two structures currently holds its index, so the job
// record itself carries no separate state tag for that.
type job struct {
	task tardy.TaskIndex
	kind kind

	// fd is the real OS file descriptor this job operates on: the eventfd
	// for the wake job, the timerfd for a timer, the target fd or socket
	// otherwise. An open job has none until its completion.
	fd int

	// path holds the target of a QueueOpen, captured at queue time since
	// the backend issues the open syscall itself rather than the caller.
	path string

	// buf is the caller-owned buffer for read/write/recv/send.
	buf []byte
	// off is the explicit offset for a positioned read/write, or -1 to use
	// the fd's current stream position via Read/Write instead of Pread/Pwrite.
	off int64

	// host/port are QueueConnect's target; sa is its resolved unix.Sockaddr,
	// kept around so the EPOLLOUT dispatch path can call connect(2) again
	// without re-parsing the address.
	host string
	port uint16
	sa   unix.Sockaddr

	// timerFD is the dedicated timerfd backing a kindTimer job; timers are
	// serviced via their own armed timerfd registered on the epoll
	// instance, rather than the blocking queue or a readiness
	// registration on an existing fd.
	timerFD int

	// registered reports whether this job currently holds an
	// EPOLL_CTL_ADD/MOD registration on fd, so Reap's cleanup path knows
	// whether an EPOLL_CTL_DEL is owed.
	registered bool
}

func (k kind) epollEvents() uint32 {
	switch k {
	case kindAccept, kindRecv:
		return epollin
	case kindConnect, kindSend:
		return epollout
	default:
		return 0
	}
}
