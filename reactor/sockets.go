//go:build linux

package reactor

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by Read/Write when the nonblocking operation has
// no data/space available right now; callers should return to the poller
// and retry on the next readiness event rather than treating it as failure.
var ErrWouldBlock = unix.EAGAIN

// ListenTCP creates a nonblocking, epoll-friendly TCP listener bound to addr.
func ListenTCP(addr string) (fd int, bound net.Addr, err error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, nil, fmt.Errorf("reactor: resolve %q: %w", addr, err)
	}
	domain := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, nil, fmt.Errorf("reactor: socket: %w", err)
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("reactor: setsockopt SO_REUSEADDR: %w", err)
	}
	sa, err := toSockaddrTCP(tcpAddr, domain)
	if err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	if err = unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("reactor: bind %q: %w", addr, err)
	}
	if err = unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("reactor: listen %q: %w", addr, err)
	}
	local, _ := unix.Getsockname(fd)
	return fd, sockaddrToTCPAddr(local), nil
}

func toSockaddrTCP(a *net.TCPAddr, domain int) (unix.Sockaddr, error) {
	if domain == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: a.Port}
		if a.IP != nil {
			copy(sa.Addr[:], a.IP.To16())
		}
		return sa, nil
	}
	sa := &unix.SockaddrInet4{Port: a.Port}
	if a.IP != nil {
		ip4 := a.IP.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("reactor: %v is not an IPv4 address", a.IP)
		}
		copy(sa.Addr[:], ip4)
	}
	return sa, nil
}

func sockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, s.Addr[:])
		return &net.TCPAddr{IP: ip, Port: s.Port}
	default:
		return nil
	}
}

// ListenUnix creates a nonblocking UNIX-domain stream listener at path,
// removing any stale socket file first (the control socket's rundir is
// per-master-PID, so collisions are rare, but a crashed master can leave one
// behind).
func ListenUnix(path string) (fd int, err error) {
	_ = os.Remove(path)
	fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("reactor: unix socket: %w", err)
	}
	sa := &unix.SockaddrUnix{Name: path}
	if err = unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: unix bind %q: %w", path, err)
	}
	if err = unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: unix listen %q: %w", path, err)
	}
	return fd, nil
}

// DialUnix connects to a UNIX-domain stream socket at path, returning a
// nonblocking fd once the (blocking, since this is a local dial at process
// startup) connect completes.
func DialUnix(path string) (fd int, err error) {
	fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("reactor: unix socket: %w", err)
	}
	sa := &unix.SockaddrUnix{Name: path}
	if err = unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: unix connect %q: %w", path, err)
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: set nonblocking: %w", err)
	}
	return fd, nil
}

// DialTCP connects to a TCP address, returning a nonblocking fd once the
// (blocking, client-Connect-time) connect completes.
func DialTCP(addr string) (fd int, err error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, fmt.Errorf("reactor: resolve %q: %w", addr, err)
	}
	domain := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("reactor: socket: %w", err)
	}
	sa, err := toSockaddrTCP(tcpAddr, domain)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err = unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: connect %q: %w", addr, err)
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: set nonblocking: %w", err)
	}
	return fd, nil
}

// Accept4 accepts a pending connection on a nonblocking listener fd,
// returning the new connection's fd already set nonblocking. Returns
// ErrWouldBlock if nothing is pending.
func Accept4(listenFd int) (int, error) {
	nfd, _, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	return nfd, nil
}

// Read reads into buf from a nonblocking fd. A zero-byte read (EOF) is
// reported as n==0 with a nil error, for the caller to check; EAGAIN and
// EINTR are both returned as ErrWouldBlock so callers can treat them as
// "no more data right now, keep waiting".
func Read(fd int, buf []byte) (n int, err error) {
	n, err = unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		if err == unix.EINTR {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// Write writes buf to a nonblocking fd, returning the number of bytes
// actually accepted (which may be less than len(buf)) or ErrWouldBlock if
// the socket buffer is currently full.
func Write(fd int, buf []byte) (n int, err error) {
	n, err = unix.Write(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		if err == unix.EINTR {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// Close closes a raw fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// SetNonblock toggles O_NONBLOCK on fd, used after adopting a descriptor
// received over the control socket (spec §4.4 "adopt the descriptor as a
// nonblocking TCP socket").
func SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// FileFromFd wraps a raw fd in an *os.File for interop with APIs (like
// exec.Cmd.Stdout) that want one. The returned File owns the fd.
func FileFromFd(fd int, name string) *os.File {
	return os.NewFile(uintptr(fd), name)
}

// DupFd duplicates fd, used when handing an *os.File-backed fd (e.g. a
// worker child's stdout pipe) over to raw syscall management without a
// double-close race between the os.File finalizer and our own Close.
func DupFd(fd int) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("reactor: dup: %w", err)
	}
	return nfd, nil
}

// IsWouldBlock reports whether err is, or wraps, the nonblocking-would-block
// errno, so errors wrapped with %w (as fdpass does) and errors from the
// standard net/os packages match too.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}
