// Package fdpass implements SCM_RIGHTS file-descriptor passing over the
// UNIX control socket that connects the master to each worker (spec §4.3
// "Master to worker: the control socket", §4.4 "Descriptor delivery"). The
// master owns newly-accepted client TCP sockets only long enough to hand
// them to a worker; once a descriptor crosses this boundary the worker owns
// it exclusively (spec §4 invariant i).
package fdpass

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrQueueFull is returned by Queue.Enqueue when the outbound descriptor
// queue is full, mirroring the teacher-adjacent Rust original's
// fd_queue::QueueFullError (original_source/server/runmaster/workerstream.rs).
// A full queue means the worker isn't draining fast enough; the caller
// should back off rather than silently leaking the fd.
var ErrQueueFull = errors.New("fdpass: outbound descriptor queue is full")

// maxQueuedFds bounds how many descriptors can be queued for a single
// Sendmsg call's ancillary data; the kernel also enforces SCM_MAX_FD (253
// on Linux), but pyproxy never needs to batch more than one fd per dispatch.
const maxQueuedFds = 16

// Queue buffers raw file descriptors awaiting delivery alongside the next
// byte write on a UNIX stream socket. It exists because SCM_RIGHTS
// ancillary data rides along with a regular Sendmsg call: the descriptor and
// some header bytes must be sent together, but the reactor's write loop may
// need several passes to drain a larger outbuffer. Queueing lets dispatch
// and the byte-level write loop stay decoupled, the same separation the
// Rust WorkerStream.dispatch()/write() pair makes.
type Queue struct {
	fds []int
}

// Enqueue stages fd for delivery on the next SendWithFDs call.
func (q *Queue) Enqueue(fd int) error {
	if len(q.fds) >= maxQueuedFds {
		return ErrQueueFull
	}
	q.fds = append(q.fds, fd)
	return nil
}

// Pending reports how many descriptors are staged.
func (q *Queue) Pending() int {
	return len(q.fds)
}

// Drain removes and returns all staged descriptors.
func (q *Queue) Drain() []int {
	fds := q.fds
	q.fds = nil
	return fds
}

// SendWithFDs writes p to sockFd as the regular message bytes of a
// sendmsg(2) call, attaching fds as SCM_RIGHTS ancillary data. Passing a
// zero-length p is legal: some frameworks require at least one regular byte
// alongside ancillary data, so callers should keep at least one byte of
// payload (pyproxy always has a pending request-header byte to send
// alongside a descriptor, so this is never exercised with empty p in
// practice).
func SendWithFDs(sockFd int, p []byte, fds []int) (n int, err error) {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	if len(p) == 0 && len(oob) > 0 {
		p = []byte{0}
	}
	n, _, err = unix.Sendmsg(sockFd, p, oob, nil, 0)
	if err != nil {
		return n, fmt.Errorf("fdpass: sendmsg: %w", err)
	}
	return n, nil
}

// RecvResult is one message received over the control socket: the regular
// payload bytes plus any descriptors that rode along as ancillary data.
type RecvResult struct {
	Data []byte
	Fds  []int
}

// maxOOBSize is sized for a handful of SCM_RIGHTS-carried descriptors; the
// control socket never passes more than one fd per dispatched request.
var maxOOBSize = unix.CmsgSpace(maxQueuedFds * 4)

// RecvWithFDs reads up to len(buf) regular bytes from sockFd plus any
// SCM_RIGHTS descriptors attached to that datagram/stream segment. On a
// stream socket (which the control socket is) a single read may span
// multiple logical messages or none of one; callers are expected to treat
// the returned data as an opaque byte stream to be reframed by their own
// message parser, exactly as the regular control-stream bytes are.
func RecvWithFDs(sockFd int, buf []byte) (RecvResult, error) {
	oob := make([]byte, maxOOBSize)
	n, oobn, _, _, err := unix.Recvmsg(sockFd, buf, oob, 0)
	if err != nil {
		return RecvResult{}, fmt.Errorf("fdpass: recvmsg: %w", err)
	}
	result := RecvResult{Data: buf[:n]}
	if oobn == 0 {
		return result, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return result, fmt.Errorf("fdpass: parse control message: %w", err)
	}
	for _, m := range msgs {
		fds, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		result.Fds = append(result.Fds, fds...)
	}
	return result, nil
}
