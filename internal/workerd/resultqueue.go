//go:build linux

package workerd

import (
	"sync"

	"golang.org/x/sys/unix"

	"pyproxy/atom"
)

// resultQueue bridges the interpreter thread's Results() channel (consumed
// by a dedicated goroutine) to the single-threaded reactor loop. It mirrors
// the spec's own prescription for the worker logger's shared buffer
// (§5 "Shared-resource policy... guarded by a mutex that is held only long
// enough to append a framed record"): the mutex is held only long enough to
// append, and a self-pipe wakes the reactor's poller since an interpreter
// result is not itself associated with any registered socket becoming
// ready.
type resultQueue struct {
	mu      sync.Mutex
	pending []atom.Result

	wakeReadFd  int
	wakeWriteFd int
}

func newResultQueue() (*resultQueue, error) {
	fds, err := unixPipe()
	if err != nil {
		return nil, err
	}
	return &resultQueue{wakeReadFd: fds[0], wakeWriteFd: fds[1]}, nil
}

func unixPipe() ([2]int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return fds, err
	}
	return fds, nil
}

// push appends a settled result and wakes the reactor's poller.
func (q *resultQueue) push(res atom.Result) {
	q.mu.Lock()
	q.pending = append(q.pending, res)
	q.mu.Unlock()
	_, _ = unix.Write(q.wakeWriteFd, []byte{0})
}

// drain removes and returns every queued result, draining the wake pipe too.
func (q *resultQueue) drain() []atom.Result {
	var scratch [64]byte
	for {
		_, err := unix.Read(q.wakeReadFd, scratch[:])
		if err != nil {
			break
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

func (q *resultQueue) close() {
	unix.Close(q.wakeReadFd)
	unix.Close(q.wakeWriteFd)
}
