//go:build linux

package workerd

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"pyproxy/atom"
	"pyproxy/control"
	"pyproxy/fdpass"
	"pyproxy/interpreter"
	"pyproxy/reactor"
	"pyproxy/wire"
)

// Run is the worker reactor's entire lifetime (spec §4.4). It dials the
// master's UNIX control socket, starts the interpreter thread, and loops
// forever dispatching fd-passed client sockets and their request/response
// traffic until the control socket closes or a fatal error occurs.
func Run(cfg Config, logger *zap.Logger) error {
	controlFd, err := reactor.DialUnix(cfg.ControlSocketPath)
	if err != nil {
		return fmt.Errorf("workerd: dial control socket: %w", err)
	}
	defer reactor.Close(controlFd)

	poller, err := reactor.New()
	if err != nil {
		return fmt.Errorf("workerd: create poller: %w", err)
	}
	defer poller.Close()

	results, err := newResultQueue()
	if err != nil {
		return fmt.Errorf("workerd: create result queue: %w", err)
	}
	defer results.close()

	var mw []interpreter.Middleware
	mw = append(mw, interpreter.LoggingMiddleware(logger))
	if cfg.RateLimitPerSecond > 0 {
		mw = append(mw, interpreter.RateLimitMiddleware(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}
	interp := interpreter.NewExecInterpreter(cfg.InterpreterCommand, cfg.InterpreterArgs...)
	thread := interpreter.NewThread(interp, os.Stdout, mw...)
	go thread.Run()
	go func() {
		for res := range thread.Results() {
			results.push(res)
		}
	}()

	w := &worker{
		cfg:        cfg,
		logger:     logger,
		poller:     poller,
		thread:     thread,
		results:    results,
		streams:    make(map[int]*ClientStream),
		controlFd:  controlFd,
		controlInt: reactor.ReadOnly,
	}
	if err := poller.Add(controlFd, reactor.ReadOnly); err != nil {
		return fmt.Errorf("workerd: register control socket: %w", err)
	}
	if err := poller.Add(results.wakeReadFd, reactor.ReadOnly); err != nil {
		return fmt.Errorf("workerd: register result wake pipe: %w", err)
	}

	logger.Info("worker started")
	return w.loop()
}

type worker struct {
	cfg    Config
	logger *zap.Logger
	poller *reactor.Poller
	thread *interpreter.Thread

	controlFd  int
	controlOut []byte
	controlInt reactor.Interest
	dispatch   wire.DispatchReader

	results *resultQueue
	streams map[int]*ClientStream
}

func (w *worker) loop() error {
	var events []reactor.Event
	for {
		var err error
		events, err = w.poller.Wait(-1, events)
		if err != nil {
			return fmt.Errorf("workerd: poll: %w", err)
		}
		for _, ev := range events {
			switch {
			case ev.Fd == w.controlFd:
				if err := w.handleControl(ev); err != nil {
					return err
				}
			case ev.Fd == w.results.wakeReadFd:
				w.handleResults()
			default:
				w.handleClientStream(ev)
			}
		}
		w.reconcileControlInterest()
	}
}

func (w *worker) handleControl(ev reactor.Event) error {
	if ev.Readable {
		buf := make([]byte, 4096)
		got, err := fdpass.RecvWithFDs(w.controlFd, buf)
		if err != nil {
			if !reactor.IsWouldBlock(err) {
				return fmt.Errorf("workerd: control socket recv: %w", err)
			}
		} else if len(got.Data) == 0 && len(got.Fds) == 0 {
			return fmt.Errorf("workerd: control socket closed by master")
		} else {
			w.dispatch.Feed(got.Data, got.Fds)
			for {
				header, fd, ok, derr := w.dispatch.Next()
				if derr != nil {
					w.logger.Error("malformed dispatch header from master", zap.Error(derr))
					break
				}
				if !ok {
					break
				}
				w.adopt(header, fd)
			}
		}
	}
	if ev.Writable && len(w.controlOut) > 0 {
		n, err := reactor.Write(w.controlFd, w.controlOut)
		if err != nil && !reactor.IsWouldBlock(err) {
			w.logger.Error("control socket write failed", zap.Error(err))
			return nil
		}
		w.controlOut = append(w.controlOut[:0], w.controlOut[n:]...)
	}
	return nil
}

func (w *worker) adopt(header wire.RequestHeader, fd int) {
	if err := reactor.SetNonblock(fd, true); err != nil {
		w.logger.Error("couldn't set adopted socket nonblocking", zap.Error(err))
		reactor.Close(fd)
		return
	}
	cs, err := NewClientStream(fd, header, w.cfg.OutputAddr)
	if err != nil {
		w.logger.Warn("dropping client with bad handshake", zap.Error(err))
		reactor.Close(fd)
		return
	}
	if err := w.poller.Add(fd, cs.Interest); err != nil {
		w.logger.Error("couldn't register client stream", zap.Error(err))
		reactor.Close(fd)
		return
	}
	w.streams[fd] = cs
	w.logger.Info("new client mainstream started", zap.String("session_id", cs.SessionIDHex))

	rec, err := control.EncodeSessionBind(control.SessionBind{
		SessionHex:     cs.SessionIDHex,
		StreamTokenHex: cs.StreamTokenHex,
	})
	if err != nil {
		w.logger.Error("couldn't encode session bind", zap.Error(err))
		return
	}
	w.controlOut = append(w.controlOut, rec...)
}

func (w *worker) handleResults() {
	for _, res := range w.results.drain() {
		w.routeResult(res)
	}
}

func (w *worker) routeResult(res atom.Result) {
	for _, cs := range w.streams {
		if cs.SessionIDHex == res.SessionID {
			cs.QueueResponse(res)
			return
		}
	}
	// Owning client is gone. Per spec §9's open question we choose to log
	// rather than silently drop, since a missing route likely indicates a
	// bug in session bookkeeping worth operator attention.
	w.logger.Warn("interpreter result for unknown or closed session",
		zap.String("session_id", res.SessionID), zap.String("future_id", res.FutureID))
}

func (w *worker) handleClientStream(ev reactor.Event) {
	cs, ok := w.streams[ev.Fd]
	if !ok {
		return
	}
	if ev.Hup || ev.Error {
		w.closeStream(cs)
		return
	}
	if ev.Readable {
		buf := make([]byte, 4096)
		n, err := reactor.Read(cs.Fd, buf)
		if err != nil {
			if !reactor.IsWouldBlock(err) {
				w.closeStream(cs)
				return
			}
		} else if n == 0 {
			w.closeStream(cs)
			return
		} else {
			cs.Feed(buf[:n])
			for {
				req, ok, err := cs.NextRequest()
				if err != nil {
					w.logger.Warn("protocol error on client stream, closing",
						zap.String("session_id", cs.SessionIDHex), zap.Error(err))
					w.closeStream(cs)
					return
				}
				if !ok {
					break
				}
				w.thread.Submit(req)
			}
		}
	}
	if ev.Writable {
		if err := cs.Flush(); err != nil {
			w.closeStream(cs)
			return
		}
	}
	w.reconcileStreamInterest(cs)
}

func (w *worker) reconcileStreamInterest(cs *ClientStream) {
	want := reactor.ReadOnly
	if cs.HasPendingWrite() {
		want = reactor.ReadWrite
	}
	if want != cs.Interest {
		if err := w.poller.Modify(cs.Fd, want); err == nil {
			cs.Interest = want
		}
	}
}

func (w *worker) reconcileControlInterest() {
	want := reactor.ReadOnly
	if len(w.controlOut) > 0 {
		want = reactor.ReadWrite
	}
	if want != w.controlInt {
		if err := w.poller.Modify(w.controlFd, want); err == nil {
			w.controlInt = want
		}
	}
}

func (w *worker) closeStream(cs *ClientStream) {
	w.poller.Remove(cs.Fd)
	reactor.Close(cs.Fd)
	delete(w.streams, cs.Fd)
}
