//go:build linux

package epoll

import "golang.org/x/sys/unix"

const (
	epollin  = unix.EPOLLIN
	epollout = unix.EPOLLOUT
	epollerr = unix.EPOLLERR
	epollhup = unix.EPOLLHUP
)
