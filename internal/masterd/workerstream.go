package masterd

import (
	"pyproxy/control"
	"pyproxy/fdpass"
	"pyproxy/reactor"
)

// WorkerStream is the master's side of one worker's UNIX control
// connection: it carries outbound descriptor-passing dispatch chunks and
// inbound length-prefixed control records (log entries, session binds),
// adapted from the Rust original's WorkerStream/WorkerStreams
// (original_source/server/runmaster/workerstream.rs).
type WorkerStream struct {
	Fd       int
	Weight   int
	Interest reactor.Interest

	outbuf  []byte
	fdQueue fdpass.Queue

	inbox control.Decoder
}

// NewWorkerStream wraps a freshly accepted worker control connection.
func NewWorkerStream(fd int) *WorkerStream {
	return &WorkerStream{Fd: fd, Weight: 1, Interest: reactor.ReadOnly}
}

// Dispatch stages a client-hello header and its accompanying file
// descriptor for delivery on the next Flush, mirroring
// WorkerStream::dispatch in the Rust original.
func (w *WorkerStream) Dispatch(header []byte, fd int) error {
	if err := w.fdQueue.Enqueue(fd); err != nil {
		return err
	}
	w.outbuf = append(w.outbuf, header...)
	return nil
}

// HasPendingWrite reports whether there is buffered outbound data or a
// queued descriptor waiting to be sent.
func (w *WorkerStream) HasPendingWrite() bool {
	return len(w.outbuf) > 0 || w.fdQueue.Pending() > 0
}

// Flush sends as much of the outbound buffer (and any queued descriptors)
// as the socket accepts right now.
func (w *WorkerStream) Flush() error {
	if len(w.outbuf) == 0 {
		return nil
	}
	fds := w.fdQueue.Drain()
	n, err := fdpass.SendWithFDs(w.Fd, w.outbuf, fds)
	if err != nil {
		if reactor.IsWouldBlock(err) {
			// Nothing went out: put the descriptors back so Flush's next
			// attempt still carries them (the regular bytes stay put too,
			// since w.outbuf was never consumed on this path).
			for _, fd := range fds {
				_ = w.fdQueue.Enqueue(fd)
			}
			return nil
		}
		return err
	}
	// The worker now owns duplicates of fds via SCM_RIGHTS; the master's
	// own copies are closed immediately (spec §5 "duplicated descriptors on
	// the master side are closed immediately after the send").
	for _, fd := range fds {
		reactor.Close(fd)
	}
	w.outbuf = append(w.outbuf[:0], w.outbuf[n:]...)
	return nil
}

// FeedControl appends freshly read bytes to the inbound control-record
// decoder.
func (w *WorkerStream) FeedControl(p []byte) {
	w.inbox.Feed(p)
}

// NextControl decodes the next complete control record from this worker.
func (w *WorkerStream) NextControl() (control.Record, bool, error) {
	return w.inbox.Next()
}
