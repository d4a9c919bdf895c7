package client

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"pyproxy/atom"
	"pyproxy/reactor"
	"pyproxy/wire"
)

// pollCapMs bounds the client reactor's poll wait so queued submissions and
// close requests are acted on promptly even when the network is idle (spec
// §5 "Host-embedded client reactor polls with a 100ms cap").
const pollCapMs = 100

// Session is a connected, running client reactor (spec §4.2). One Session
// embeds in a host process per logical remote-execution session.
type Session struct {
	SessionID   string
	StreamToken string
	OutputAddr  string

	mainFile   *os.File
	outputFile *os.File

	submitCh chan submission
	closeCh  chan struct{}
	closeOne sync.Once

	outMu  sync.Mutex
	outbox []OutputFrame

	deadMu sync.Mutex
	dead   error
}

type submission struct {
	req  atom.Request
	resp chan outcome
}

// Connect opens a TCP connection to the master, performs the client hello
// synchronously, then opens the output channel and starts the session's
// reactor goroutine (spec §4.2 "Connect").
func Connect(mainAddr string) (*Session, error) {
	conn, err := net.Dial("tcp", mainAddr)
	if err != nil {
		return nil, fmt.Errorf("client: dial main address: %w", err)
	}

	helloBody := wire.EncodeHelloRequest(wire.HelloRequest{})
	if _, err := conn.Write(wire.EncodeRequest(wire.KindHello, 0, helloBody)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: write hello request: %w", err)
	}

	var headerBuf [wire.ResponseHeaderSize]byte
	if _, err := io.ReadFull(conn, headerBuf[:]); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: read hello response header: %w", err)
	}
	header, err := wire.DecodeResponseHeader(headerBuf[:])
	if err != nil {
		conn.Close()
		return nil, err
	}
	if header.Kind != wire.KindHello {
		conn.Close()
		return nil, ErrServerDidNotSendHello
	}
	body := make([]byte, header.Length)
	if _, err := io.ReadFull(conn, body); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: read hello response body: %w", err)
	}
	hello, err := wire.DecodeHelloResponse(body)
	if err != nil {
		conn.Close()
		return nil, err
	}

	mainFile, err := takeFileAndClose(conn)
	if err != nil {
		return nil, fmt.Errorf("client: detach main stream fd: %w", err)
	}
	if err := reactor.SetNonblock(int(mainFile.Fd()), true); err != nil {
		mainFile.Close()
		return nil, fmt.Errorf("client: set main stream nonblocking: %w", err)
	}

	outConn, err := net.Dial("tcp", hello.OutputAddr)
	if err != nil {
		mainFile.Close()
		return nil, fmt.Errorf("client: dial output address: %w", err)
	}
	outHelloBody := wire.EncodeOutputHello(wire.OutputHello{StreamToken: hello.StreamTokenHex})
	if _, err := outConn.Write(wire.EncodeRequest(wire.KindHello, 0, outHelloBody)); err != nil {
		outConn.Close()
		mainFile.Close()
		return nil, fmt.Errorf("client: write output hello: %w", err)
	}
	outputFile, err := takeFileAndClose(outConn)
	if err != nil {
		mainFile.Close()
		return nil, fmt.Errorf("client: detach output stream fd: %w", err)
	}
	if err := reactor.SetNonblock(int(outputFile.Fd()), true); err != nil {
		mainFile.Close()
		outputFile.Close()
		return nil, fmt.Errorf("client: set output stream nonblocking: %w", err)
	}

	s := &Session{
		SessionID:   hello.SessionHex,
		StreamToken: hello.StreamTokenHex,
		OutputAddr:  hello.OutputAddr,
		mainFile:    mainFile,
		outputFile:  outputFile,
		submitCh:    make(chan submission, 256),
		closeCh:     make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// takeFileAndClose duplicates conn's underlying fd into an independent
// *os.File (so the reactor owns it directly, matching the worker/master
// reactors' raw-fd style) and closes the now-redundant net.Conn handle.
func takeFileAndClose(conn net.Conn) (*os.File, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("client: connection is not a TCP connection")
	}
	file, err := tcpConn.File()
	conn.Close()
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Submit enqueues an atom and returns a Future settled by the reactor
// goroutine (spec §4.2 "Submit"). Submission is lock-free from the host's
// perspective: it hands off over a channel rather than touching the
// reactor's own state directly.
func (s *Session) Submit(futureID string, kind atom.Kind, code, locals, globals []byte) (*Future, error) {
	if err := s.deadErr(); err != nil {
		return nil, err
	}
	resp := make(chan outcome, 1)
	sub := submission{
		req: atom.Request{
			FutureID: futureID,
			Kind:     kind,
			Code:     code,
			Locals:   locals,
			Globals:  globals,
		},
		resp: resp,
	}
	select {
	case s.submitCh <- sub:
		return &Future{recv: resp}, nil
	case <-s.closeCh:
		return nil, ErrSessionClosed
	}
}

// TakeOutput is a nonblocking probe returning the next buffered output
// frame, or ok=false if none is available yet (spec §4.2 "Take-output").
func (s *Session) TakeOutput() (frame OutputFrame, ok bool) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if len(s.outbox) == 0 {
		return OutputFrame{}, false
	}
	frame = s.outbox[0]
	s.outbox = s.outbox[1:]
	return frame, true
}

func (s *Session) pushOutput(frame OutputFrame) {
	s.outMu.Lock()
	s.outbox = append(s.outbox, frame)
	s.outMu.Unlock()
}

// Close requests the reactor goroutine to exit, settling every still-
// pending future with ErrSessionClosed.
func (s *Session) Close() {
	s.closeOne.Do(func() { close(s.closeCh) })
}

func (s *Session) deadErr() error {
	s.deadMu.Lock()
	defer s.deadMu.Unlock()
	return s.dead
}

func (s *Session) setDead(err error) {
	s.deadMu.Lock()
	s.dead = err
	s.deadMu.Unlock()
}

// run is the client reactor loop (spec §4.2 "Reactor loop"), one goroutine
// per Session pinned to its own poller.
func (s *Session) run() {
	defer s.mainFile.Close()
	defer s.outputFile.Close()

	poller, err := reactor.New()
	if err != nil {
		s.terminate(fmt.Errorf("client: create poller: %w", err))
		return
	}
	defer poller.Close()

	mainFd := int(s.mainFile.Fd())
	outputFd := int(s.outputFile.Fd())
	main := newMainStream(mainFd)
	out := newOutputStream(outputFd)

	if err := poller.Add(mainFd, reactor.ReadOnly); err != nil {
		s.terminate(fmt.Errorf("client: register main stream: %w", err))
		return
	}
	if err := poller.Add(outputFd, reactor.ReadOnly); err != nil {
		s.terminate(fmt.Errorf("client: register output stream: %w", err))
		return
	}

	pending := make(map[string]chan outcome)
	events := make([]reactor.Event, 0, 8)
	readBuf := make([]byte, 4096)

	for {
		select {
		case <-s.closeCh:
			s.settleAll(pending, ErrSessionClosed)
			s.setDead(ErrSessionClosed)
			return
		default:
		}

	drain:
		for {
			select {
			case sub := <-s.submitCh:
				pending[sub.req.FutureID] = sub.resp
				main.queueRequest(sub.req)
			default:
				break drain
			}
		}

		wantMain := reactor.ReadOnly
		if main.hasOutData() {
			wantMain = reactor.ReadWrite
		}
		if wantMain != main.interest {
			if err := poller.Modify(mainFd, wantMain); err != nil {
				s.settleAll(pending, err)
				s.setDead(err)
				return
			}
			main.interest = wantMain
		}

		events, err = poller.Wait(pollCapMs, events)
		if err != nil {
			s.settleAll(pending, err)
			s.setDead(err)
			return
		}

		for _, ev := range events {
			switch ev.Fd {
			case mainFd:
				if ev.Error || ev.Hup {
					s.settleAll(pending, ErrMainStreamClosed)
					s.setDead(ErrMainStreamClosed)
					return
				}
				if ev.Writable {
					if err := main.write(); err != nil {
						s.settleAll(pending, ErrMainStreamClosed)
						s.setDead(ErrMainStreamClosed)
						return
					}
				}
				if ev.Readable {
					n, rerr := reactor.Read(mainFd, readBuf)
					if rerr != nil {
						if !reactor.IsWouldBlock(rerr) {
							s.settleAll(pending, ErrMainStreamClosed)
							s.setDead(ErrMainStreamClosed)
							return
						}
						continue
					}
					if n == 0 {
						s.settleAll(pending, ErrMainStreamClosed)
						s.setDead(ErrMainStreamClosed)
						return
					}
					main.feed(readBuf[:n])
					if err := s.drainResponses(main, pending); err != nil {
						s.settleAll(pending, ErrMainStreamClosed)
						s.setDead(ErrMainStreamClosed)
						return
					}
				}
			case outputFd:
				if ev.Error || ev.Hup {
					s.settleAll(pending, ErrOutputStreamClosed)
					s.setDead(ErrOutputStreamClosed)
					return
				}
				if ev.Readable {
					n, rerr := reactor.Read(outputFd, readBuf)
					if rerr != nil {
						if !reactor.IsWouldBlock(rerr) {
							s.settleAll(pending, ErrOutputStreamClosed)
							s.setDead(ErrOutputStreamClosed)
							return
						}
						continue
					}
					if n == 0 {
						s.settleAll(pending, ErrOutputStreamClosed)
						s.setDead(ErrOutputStreamClosed)
						return
					}
					out.feed(readBuf[:n])
					if err := s.drainOutput(out); err != nil {
						s.settleAll(pending, ErrOutputStreamClosed)
						s.setDead(ErrOutputStreamClosed)
						return
					}
				}
			}
		}
	}
}

func (s *Session) drainResponses(main *mainStream, pending map[string]chan outcome) error {
	for {
		frame, ok, err := main.nextResponse()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		resp, err := wire.DecodeCodeResponse(frame.Body)
		if err != nil {
			continue
		}
		if ch, ok := pending[resp.FutureID]; ok {
			ch <- outcome{payload: resp.Payload, isError: resp.IsError}
			close(ch)
			delete(pending, resp.FutureID)
		}
	}
}

func (s *Session) drainOutput(out *outputStream) error {
	for {
		frame, ok, err := out.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		s.pushOutput(OutputFrame{Stderr: frame.Header.Kind == wire.OutputStderr, Payload: frame.Payload})
	}
}

func (s *Session) settleAll(pending map[string]chan outcome, err error) {
queued:
	for {
		select {
		case sub := <-s.submitCh:
			pending[sub.req.FutureID] = sub.resp
		default:
			break queued
		}
	}
	for id, ch := range pending {
		ch <- outcome{err: err}
		close(ch)
		delete(pending, id)
	}
}

func (s *Session) terminate(err error) {
	s.setDead(err)
}
