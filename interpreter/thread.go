package interpreter

import (
	"fmt"
	"io"
	"runtime"

	"pyproxy/atom"
	"pyproxy/wire"
)

// Thread is the worker's single interpreter consumer loop (spec §4.5):
// strictly FIFO, holding exclusive access to the interpreter's state, and
// responsible for bracketing every atom's execution with the
// NEW_REQUEST_START/NEW_REQUEST_END sentinel lines on the worker's own
// standard output.
type Thread struct {
	handler  HandlerFunc
	requests chan atom.Request
	results  chan atom.Result
	stdout   io.Writer
}

// NewThread builds a Thread around interp, wrapped in the given middleware
// chain (innermost call is interp.Execute).
func NewThread(interp Interpreter, stdout io.Writer, mw ...Middleware) *Thread {
	base := HandlerFunc(interp.Execute)
	if len(mw) > 0 {
		base = Chain(mw...)(base)
	}
	return &Thread{
		handler:  base,
		requests: make(chan atom.Request, 256),
		results:  make(chan atom.Result, 256),
		stdout:   stdout,
	}
}

// Submit enqueues a request for the interpreter thread. It never blocks the
// caller beyond the channel's buffer filling, matching spec §4.4's
// "forward each as (session identifier, request) to the interpreter
// thread's submission channel".
func (t *Thread) Submit(req atom.Request) {
	t.requests <- req
}

// Results is the channel the worker reactor drains responses from.
func (t *Thread) Results() <-chan atom.Result {
	return t.results
}

// Run is the interpreter thread's body. Callers should invoke it in its own
// goroutine; Run pins that goroutine to its OS thread with
// runtime.LockOSThread, mirroring the Rust original's dedicated pythread
// (beside the reactor thread — spec §5).
func (t *Thread) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for req := range t.requests {
		fmt.Fprintln(t.stdout, wire.NewRequestStart+req.SessionID)
		res := t.handler(req)
		fmt.Fprintln(t.stdout, wire.NewRequestEnd)
		res.SessionID = req.SessionID
		res.FutureID = req.FutureID
		t.results <- res
	}
	close(t.results)
}

// Close stops accepting new requests; Run's range loop drains whatever is
// already queued, then exits.
func (t *Thread) Close() {
	close(t.requests)
}
