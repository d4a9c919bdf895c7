//go:build linux

// Package reactor provides the readiness-based I/O multiplexer shared by the
// master, worker, and client-embedded reactors (spec §5 "Cooperative
// per-process reactors"). The teacher's RPC server is a goroutine-per-connection
// blocking design; pyproxy instead needs one OS thread per reactor that owns a
// single poller and drives every registered file descriptor through
// nonblocking reads/writes, exactly as the originating mio-based design did.
//
// This is Linux-only: it wraps epoll directly via golang.org/x/sys/unix,
// promoted from an indirect (etcd-transitive) dependency in the teacher's
// go.mod to the mechanism this package is built on.
package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Interest describes which readiness events a file descriptor is registered for.
type Interest struct {
	Readable bool
	Writable bool
}

// ReadOnly is the interest every freshly-accepted socket starts with.
var ReadOnly = Interest{Readable: true}

// ReadWrite is the interest a socket is bumped to once it has pending
// outbound bytes (spec §4.2–§4.4 "Writability management").
var ReadWrite = Interest{Readable: true, Writable: true}

func (i Interest) events() uint32 {
	var ev uint32
	if i.Readable {
		ev |= unix.EPOLLIN
	}
	if i.Writable {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Event reports the readiness observed for one registered fd after Wait.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Error    bool
	Hup      bool
}

// Poller is a thin epoll wrapper keyed by raw file descriptor — each
// registered fd is its own token, mirroring the teacher's per-connection
// token maps but collapsed onto the fd itself since Go programs operating
// at this layer already use the fd as the natural map key.
type Poller struct {
	epfd int
}

// New creates a poller backed by a fresh epoll instance.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &Poller{epfd: epfd}, nil
}

// Add registers fd for the given interest. Must be called exactly once per fd.
func (p *Poller) Add(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: interest.events(), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl(ADD, %d): %w", fd, err)
	}
	return nil
}

// Modify changes the registered interest for fd (e.g. toggling writable
// on/off as an outbound buffer fills and drains).
func (p *Poller) Modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: interest.events(), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl(MOD, %d): %w", fd, err)
	}
	return nil
}

// Remove deregisters fd. It is not an error to remove an fd that has
// already been closed (the kernel drops it from the epoll set automatically
// on close, so ENOENT/EBADF here are tolerated).
func (p *Poller) Remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("reactor: epoll_ctl(DEL, %d): %w", fd, err)
	}
	return nil
}

// Wait blocks until at least one registered fd is ready, a signal
// interrupts the call, or timeoutMs elapses (-1 blocks indefinitely, as the
// master and worker reactors do; the client reactor passes a 100ms cap).
// It appends ready events to dst[:0] and returns the resulting slice.
func (p *Poller) Wait(timeoutMs int, dst []Event) ([]Event, error) {
	var raw [256]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return dst[:0], nil
		}
		return dst[:0], fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	dst = dst[:0]
	for i := 0; i < n; i++ {
		e := raw[i]
		dst = append(dst, Event{
			Fd:       int(e.Fd),
			Readable: e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Error:    e.Events&unix.EPOLLERR != 0,
			Hup:      e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		})
	}
	return dst, nil
}

// Close releases the underlying epoll fd.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
