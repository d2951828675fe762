//go:build !linux

package epoll

import (
	"errors"

	"github.com/Torbatti/tardy"
)

// ErrUnsupported is returned by New on platforms other than Linux; epoll
// is a Linux-specific kernel facility with no portable equivalent here.
var ErrUnsupported = errors.New("epoll: unsupported on this platform")

// Backend is an unusable placeholder on non-Linux platforms, present only
// so the package imports cleanly from platform-independent code.
type Backend struct{}

// Option is unused on non-Linux platforms.
type Option func(*Backend)

// WithLogger is unused on non-Linux platforms.
func WithLogger(tardy.Logger) Option { return func(*Backend) {} }

// New always fails on non-Linux platforms.
func New(jobCapacity int, opts ...Option) (*Backend, error) {
	return nil, ErrUnsupported
}

func (b *Backend) Outstanding() int                                           { return 0 }
func (b *Backend) Wake()                                                      {}
func (b *Backend) Submit() error                                              { return ErrUnsupported }
func (b *Backend) Close() error                                               { return nil }
func (b *Backend) QueueTimer(tardy.TaskIndex, tardy.Timespec) (tardy.JobIndex, error) {
	return 0, ErrUnsupported
}
func (b *Backend) QueueOpen(tardy.TaskIndex, string) (tardy.JobIndex, error) {
	return 0, ErrUnsupported
}
func (b *Backend) QueueStat(tardy.TaskIndex, int) (tardy.JobIndex, error) {
	return 0, ErrUnsupported
}
func (b *Backend) QueueRead(tardy.TaskIndex, int, []byte, int64) (tardy.JobIndex, error) {
	return 0, ErrUnsupported
}
func (b *Backend) QueueWrite(tardy.TaskIndex, int, []byte, int64) (tardy.JobIndex, error) {
	return 0, ErrUnsupported
}
func (b *Backend) QueueClose(tardy.TaskIndex, int) (tardy.JobIndex, error) {
	return 0, ErrUnsupported
}
func (b *Backend) QueueAccept(tardy.TaskIndex, int) (tardy.JobIndex, error) {
	return 0, ErrUnsupported
}
func (b *Backend) QueueConnect(tardy.TaskIndex, int, string, uint16) (tardy.JobIndex, error) {
	return 0, ErrUnsupported
}
func (b *Backend) QueueRecv(tardy.TaskIndex, int, []byte) (tardy.JobIndex, error) {
	return 0, ErrUnsupported
}
func (b *Backend) QueueSend(tardy.TaskIndex, int, []byte) (tardy.JobIndex, error) {
	return 0, ErrUnsupported
}
func (b *Backend) Reap(wait bool, out []tardy.Completion) (int, error) {
	return 0, ErrUnsupported
}

var _ tardy.AsyncIO = (*Backend)(nil)
