//go:build linux

package masterd

import (
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"pyproxy/control"
	"pyproxy/reactor"
	"pyproxy/wire"
)

// pendingClient is a freshly accepted main-listener socket whose 8-byte
// hello header is still being filled in (spec §4.3 "Client socket readable
// (pre-handshake)").
type pendingClient struct {
	fd  int
	buf []byte
}

// dispatchEntry is a complete client-hello ready to be handed to a worker.
type dispatchEntry struct {
	header []byte
	fd     int
}

// pipeSource identifies which of a worker's two captured pipes an event fd
// belongs to.
type pipeSource struct {
	worker *managedWorker
	stderr bool
}

// managedWorker is one spawned worker process: the master owns its stdout
// and stderr pipes for the lifetime of the process (spec §4.3 "for each
// worker process a pair of pipes"). Its control connection, once the worker
// dials back in, is tracked separately in Master.controlStreams — there is
// no protocol-level correlation between a spawned process and the control
// connection it opens, so none is modeled here either.
type managedWorker struct {
	cmd        *exec.Cmd
	stdoutFile *os.File
	stderrFile *os.File
	stdoutFd   int
	stderrFd   int
	stdout     *PipeFrame
	stderr     *PipeFrame
}

// Master is the top-level state of the master reactor (spec §4.3).
type Master struct {
	cfg       Config
	logger    *zap.Logger
	poller    *reactor.Poller
	balancer  WorkerBalancer
	admission *AdmissionController

	mainFd   int
	outputFd int
	unixFd   int

	pendingClients  map[int]*pendingClient
	pendingDispatch []dispatchEntry

	pipeOwner map[int]pipeSource

	controlStreams map[int]*WorkerStream
	// workerOrder is the stable arrival order of controlStreams' keys.
	// RoundRobinBalancer indexes into the slice drainPendingDispatch builds
	// with a monotonically increasing counter, so that slice must keep the
	// same worker at the same position across calls — iterating
	// controlStreams directly would reshuffle it on every call since Go
	// randomizes map iteration order (spec §8 "Round-robin fairness").
	workerOrder []int

	outputsByFd    map[int]*OutputStream
	outputsByToken map[string]*OutputStream

	// sessionToToken is the non-owning index from session identifier to
	// stream token described in DESIGN.md's resolution of spec §9's
	// "Output-channel token confusion": it only ever points into
	// outputsByToken, never owns a socket.
	sessionToToken map[string]string
}

// Run binds the three listeners, spawns the configured worker pool, and
// runs the master reactor loop until a fatal error occurs (spec §7:
// "Binding failures, registration failures, and poll failures are fatal").
func Run(cfg Config, logger *zap.Logger) error {
	mainFd, _, err := reactor.ListenTCP(cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("masterd: bind main listener: %w", err)
	}
	outputFd, _, err := reactor.ListenTCP(cfg.OutputAddr)
	if err != nil {
		return fmt.Errorf("masterd: bind output listener: %w", err)
	}
	if err := os.MkdirAll(cfg.ControlSocketDir, 0o700); err != nil {
		return fmt.Errorf("masterd: create control socket directory: %w", err)
	}
	unixFd, err := reactor.ListenUnix(cfg.ControlSocketPath())
	if err != nil {
		return fmt.Errorf("masterd: bind control socket: %w", err)
	}

	poller, err := reactor.New()
	if err != nil {
		return fmt.Errorf("masterd: create poller: %w", err)
	}
	for _, fd := range []int{mainFd, outputFd, unixFd} {
		if err := poller.Add(fd, reactor.ReadOnly); err != nil {
			return fmt.Errorf("masterd: register listener: %w", err)
		}
	}

	m := &Master{
		cfg:            cfg,
		logger:         logger,
		poller:         poller,
		balancer:       NewBalancer(cfg.DispatchStrategy),
		admission:      NewAdmissionController(cfg.AdmissionRatePerSecond, cfg.AdmissionBurst),
		mainFd:         mainFd,
		outputFd:       outputFd,
		unixFd:         unixFd,
		pendingClients: make(map[int]*pendingClient),
		pipeOwner:      make(map[int]pipeSource),
		controlStreams: make(map[int]*WorkerStream),
		outputsByFd:    make(map[int]*OutputStream),
		outputsByToken: make(map[string]*OutputStream),
		sessionToToken: make(map[string]string),
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		if err := m.spawnWorker(); err != nil {
			return fmt.Errorf("masterd: spawn worker %d: %w", i, err)
		}
	}

	logger.Info("master started",
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("output_addr", cfg.OutputAddr),
		zap.Int("num_workers", cfg.NumWorkers),
		zap.String("dispatch_strategy", m.balancer.Name()),
	)

	return m.loop()
}

// spawnWorker execs one worker binary with piped stdout/stderr, per spec §6
// "Process contract". Initial process spawning is in scope even though
// ongoing supervision (restarts) is not (spec §1 Non-goals).
func (m *Master) spawnWorker() error {
	cmd := exec.Command(m.cfg.WorkerBinaryPath, m.cfg.ControlSocketPath())
	cmd.Env = append(os.Environ(), "MYSTIC_OUTPUT_ADDR="+m.cfg.OutputAddr)

	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return fmt.Errorf("start worker process: %w", err)
	}
	outW.Close()
	errW.Close()

	stdoutFd := int(outR.Fd())
	stderrFd := int(errR.Fd())
	if err := reactor.SetNonblock(stdoutFd, true); err != nil {
		return fmt.Errorf("set stdout pipe nonblocking: %w", err)
	}
	if err := reactor.SetNonblock(stderrFd, true); err != nil {
		return fmt.Errorf("set stderr pipe nonblocking: %w", err)
	}

	w := &managedWorker{
		cmd:        cmd,
		stdoutFile: outR,
		stderrFile: errR,
		stdoutFd:   stdoutFd,
		stderrFd:   stderrFd,
		stdout:     NewPipeFrame(),
		stderr:     NewPipeFrame(),
	}
	m.pipeOwner[stdoutFd] = pipeSource{worker: w, stderr: false}
	m.pipeOwner[stderrFd] = pipeSource{worker: w, stderr: true}
	if err := m.poller.Add(stdoutFd, reactor.ReadOnly); err != nil {
		return fmt.Errorf("register stdout pipe: %w", err)
	}
	if err := m.poller.Add(stderrFd, reactor.ReadOnly); err != nil {
		return fmt.Errorf("register stderr pipe: %w", err)
	}
	return nil
}

// loop is the master's single-threaded reactor (spec §4.3, §5). Poll
// failures are fatal; everything else is handled locally per connection.
func (m *Master) loop() error {
	events := make([]reactor.Event, 0, 64)
	for {
		var err error
		events, err = m.poller.Wait(-1, events)
		if err != nil {
			return fmt.Errorf("masterd: poll failed: %w", err)
		}
		for _, ev := range events {
			m.handleEvent(ev)
		}
		m.drainPendingDispatch()
	}
}

func (m *Master) handleEvent(ev reactor.Event) {
	switch {
	case ev.Fd == m.mainFd:
		m.acceptMain()
	case ev.Fd == m.outputFd:
		m.acceptOutput()
	case ev.Fd == m.unixFd:
		m.acceptWorkerControl()
	default:
		if _, ok := m.pendingClients[ev.Fd]; ok {
			m.handlePendingClient(ev)
			return
		}
		if _, ok := m.outputsByFd[ev.Fd]; ok {
			m.handleOutputStream(ev)
			return
		}
		if _, ok := m.controlStreams[ev.Fd]; ok {
			m.handleWorkerControl(ev)
			return
		}
		if _, ok := m.pipeOwner[ev.Fd]; ok {
			m.handlePipe(ev)
			return
		}
	}
}

func (m *Master) acceptMain() {
	fd, err := reactor.Accept4(m.mainFd)
	if err != nil {
		if !reactor.IsWouldBlock(err) {
			m.logger.Warn("accept main listener", zap.Error(err))
		}
		return
	}
	if m.admission != nil && !m.admission.Allow() {
		reactor.Close(fd)
		return
	}
	if err := m.poller.Add(fd, reactor.ReadOnly); err != nil {
		m.logger.Warn("register client socket", zap.Error(err))
		reactor.Close(fd)
		return
	}
	m.pendingClients[fd] = &pendingClient{fd: fd}
}

func (m *Master) handlePendingClient(ev reactor.Event) {
	pc := m.pendingClients[ev.Fd]
	if ev.Error || ev.Hup {
		m.dropPendingClient(pc)
		return
	}
	buf := make([]byte, 64)
	n, err := reactor.Read(pc.fd, buf)
	if err != nil {
		if reactor.IsWouldBlock(err) {
			return
		}
		m.dropPendingClient(pc)
		return
	}
	if n == 0 {
		m.dropPendingClient(pc)
		return
	}
	pc.buf = append(pc.buf, buf[:n]...)
	if len(pc.buf) < wire.RequestHeaderSize {
		return
	}
	header := pc.buf[:wire.RequestHeaderSize]
	if _, err := wire.DecodeRequestHeader(header); err != nil {
		m.logger.Warn("rejecting malformed client hello", zap.Error(err))
		m.dropPendingClient(pc)
		return
	}

	headerCopy := make([]byte, wire.RequestHeaderSize)
	copy(headerCopy, header)
	if err := m.poller.Remove(pc.fd); err != nil {
		m.logger.Warn("deregister pending client", zap.Error(err))
	}
	delete(m.pendingClients, pc.fd)
	m.pendingDispatch = append(m.pendingDispatch, dispatchEntry{header: headerCopy, fd: pc.fd})
}

func (m *Master) dropPendingClient(pc *pendingClient) {
	m.poller.Remove(pc.fd)
	reactor.Close(pc.fd)
	delete(m.pendingClients, pc.fd)
}

// drainPendingDispatch advances the round-robin (or configured) dispatch
// strategy over every client socket whose hello header has been fully read
// this pass (spec §4.3 "Pending dispatch non-empty after event handling").
func (m *Master) drainPendingDispatch() {
	if len(m.pendingDispatch) == 0 {
		return
	}
	workers := make([]*WorkerStream, 0, len(m.workerOrder))
	for _, fd := range m.workerOrder {
		workers = append(workers, m.controlStreams[fd])
	}
	for _, entry := range m.pendingDispatch {
		if len(workers) == 0 {
			m.logger.Warn("no registered workers, dropping client dispatch")
			reactor.Close(entry.fd)
			continue
		}
		ws, err := m.balancer.Pick(workers)
		if err != nil {
			m.logger.Warn("dispatch pick failed", zap.Error(err))
			reactor.Close(entry.fd)
			continue
		}
		if err := ws.Dispatch(entry.header, entry.fd); err != nil {
			m.logger.Warn("dispatch enqueue failed", zap.Error(err))
			reactor.Close(entry.fd)
			continue
		}
		m.reconcileWorkerStreamInterest(ws)
	}
	m.pendingDispatch = m.pendingDispatch[:0]
}

func (m *Master) acceptOutput() {
	fd, err := reactor.Accept4(m.outputFd)
	if err != nil {
		if !reactor.IsWouldBlock(err) {
			m.logger.Warn("accept output listener", zap.Error(err))
		}
		return
	}
	if err := m.poller.Add(fd, reactor.ReadOnly); err != nil {
		m.logger.Warn("register output socket", zap.Error(err))
		reactor.Close(fd)
		return
	}
	m.outputsByFd[fd] = NewOutputStream(fd)
}

func (m *Master) handleOutputStream(ev reactor.Event) {
	out := m.outputsByFd[ev.Fd]
	if ev.Error || ev.Hup {
		m.closeOutputStream(out)
		return
	}
	if ev.Readable && out.StreamToken == "" {
		buf := make([]byte, 256)
		n, err := reactor.Read(out.Fd, buf)
		if err != nil {
			if !reactor.IsWouldBlock(err) {
				m.closeOutputStream(out)
			}
			return
		}
		if n == 0 {
			m.closeOutputStream(out)
			return
		}
		resolved, err := out.FeedHello(buf[:n])
		if err != nil {
			m.logger.Warn("rejecting malformed output-channel hello", zap.Error(err))
			m.closeOutputStream(out)
			return
		}
		if resolved {
			m.outputsByToken[out.StreamToken] = out
		}
	}
	if ev.Writable {
		if err := out.Flush(); err != nil {
			m.closeOutputStream(out)
			return
		}
	}
	m.reconcileOutputStreamInterest(out)
}

func (m *Master) closeOutputStream(out *OutputStream) {
	m.poller.Remove(out.Fd)
	reactor.Close(out.Fd)
	delete(m.outputsByFd, out.Fd)
	if out.StreamToken != "" {
		delete(m.outputsByToken, out.StreamToken)
	}
}

func (m *Master) acceptWorkerControl() {
	fd, err := reactor.Accept4(m.unixFd)
	if err != nil {
		if !reactor.IsWouldBlock(err) {
			m.logger.Warn("accept worker control connection", zap.Error(err))
		}
		return
	}
	if err := m.poller.Add(fd, reactor.ReadOnly); err != nil {
		m.logger.Warn("register worker control stream", zap.Error(err))
		reactor.Close(fd)
		return
	}
	m.controlStreams[fd] = NewWorkerStream(fd)
	m.workerOrder = append(m.workerOrder, fd)
}

func (m *Master) handleWorkerControl(ev reactor.Event) {
	ws := m.controlStreams[ev.Fd]
	if ev.Error || ev.Hup {
		m.closeWorkerControl(ws)
		return
	}
	if ev.Readable {
		buf := make([]byte, 4096)
		n, err := reactor.Read(ws.Fd, buf)
		if err != nil {
			if !reactor.IsWouldBlock(err) {
				m.closeWorkerControl(ws)
				return
			}
		} else if n == 0 {
			m.closeWorkerControl(ws)
			return
		} else {
			ws.FeedControl(buf[:n])
			for {
				rec, ok, err := ws.NextControl()
				if err != nil {
					m.logger.Warn("worker control decode failed", zap.Error(err))
					m.closeWorkerControl(ws)
					return
				}
				if !ok {
					break
				}
				m.handleControlRecord(rec)
			}
		}
	}
	if ev.Writable {
		if err := ws.Flush(); err != nil {
			m.closeWorkerControl(ws)
			return
		}
	}
	m.reconcileWorkerStreamInterest(ws)
}

func (m *Master) handleControlRecord(rec control.Record) {
	switch rec.Kind {
	case control.KindSessionBind:
		bind, err := control.DecodeSessionBind(rec.Body)
		if err != nil {
			m.logger.Warn("decode session bind", zap.Error(err))
			return
		}
		m.sessionToToken[bind.SessionHex] = bind.StreamTokenHex
	case control.KindLogMessage:
		lr, err := control.DecodeLogMessage(rec.Body)
		if err != nil {
			m.logger.Warn("decode worker log record", zap.Error(err))
			return
		}
		m.logger.Info("worker log", zap.String("level", lr.Level), zap.String("msg", lr.Msg))
	case control.KindPrintMessage:
		// Delivered indirectly via the worker's stdout pipe sentinels
		// (spec §4.3 "Print markers are used only indirectly"); nothing to
		// do with a control-socket PrintMessage record itself.
	}
}

func (m *Master) closeWorkerControl(ws *WorkerStream) {
	m.poller.Remove(ws.Fd)
	reactor.Close(ws.Fd)
	delete(m.controlStreams, ws.Fd)
	for i, fd := range m.workerOrder {
		if fd == ws.Fd {
			m.workerOrder = append(m.workerOrder[:i], m.workerOrder[i+1:]...)
			break
		}
	}
}

func (m *Master) handlePipe(ev reactor.Event) {
	src := m.pipeOwner[ev.Fd]
	buf := make([]byte, 4096)
	n, err := reactor.Read(ev.Fd, buf)
	if err != nil {
		if !reactor.IsWouldBlock(err) {
			m.poller.Remove(ev.Fd)
			delete(m.pipeOwner, ev.Fd)
		}
		return
	}
	if n == 0 {
		m.poller.Remove(ev.Fd)
		delete(m.pipeOwner, ev.Fd)
		return
	}

	frame := src.worker.stdout
	verbatimOut := os.Stdout
	outputKind := wire.OutputStdout
	if src.stderr {
		frame = src.worker.stderr
		verbatimOut = os.Stderr
		outputKind = wire.OutputStderr
	}

	attributed, verbatim := frame.Feed(buf[:n])
	for _, v := range verbatim {
		verbatimOut.Write(v)
		verbatimOut.Write([]byte("\n"))
	}
	for _, line := range attributed {
		m.routeOutputLine(line.SessionID, outputKind, line.Line)
	}
}

// routeOutputLine resolves a session-attributed output line to its output
// channel via the session-id -> stream-token index, per the Design Note 9
// resolution (see outputstream.go and DESIGN.md).
func (m *Master) routeOutputLine(sessionID string, kind wire.OutputKind, line []byte) {
	token, ok := m.sessionToToken[sessionID]
	if !ok {
		return
	}
	out, ok := m.outputsByToken[token]
	if !ok {
		return
	}
	payload := append(append([]byte{}, line...), '\n')
	if kind == wire.OutputStderr {
		out.PushStderr(payload)
	} else {
		out.PushStdout(payload)
	}
	m.reconcileOutputStreamInterest(out)
}

func (m *Master) reconcileWorkerStreamInterest(ws *WorkerStream) {
	want := reactor.ReadOnly
	if ws.HasPendingWrite() {
		want = reactor.ReadWrite
	}
	if want != ws.Interest {
		if err := m.poller.Modify(ws.Fd, want); err == nil {
			ws.Interest = want
		}
	}
}

func (m *Master) reconcileOutputStreamInterest(out *OutputStream) {
	want := reactor.ReadOnly
	if out.HasPendingWrite() {
		want = reactor.ReadWrite
	}
	if want != out.Interest {
		if err := m.poller.Modify(out.Fd, want); err == nil {
			out.Interest = want
		}
	}
}
