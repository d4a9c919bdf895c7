package masterd

import (
	"bytes"

	"pyproxy/wire"
)

// AttributedLine is one line of worker stdout/stderr attributed to a
// session via the sentinel-bracketing scheme (spec §4.1, §6, §9).
type AttributedLine struct {
	SessionID string
	Line      []byte
}

// PipeFrame is the line-buffered sentinel splitter that watches a worker's
// stdout or stderr pipe, ported closely from the Rust original's
// PipeFrame (original_source/server/runmaster/pipeframe.rs).
type PipeFrame struct {
	buf            []byte
	currentSession string
	lastNewline    int
}

// NewPipeFrame returns a splitter ready to receive bytes.
func NewPipeFrame() *PipeFrame {
	return &PipeFrame{lastNewline: -1}
}

// Feed appends freshly read bytes and splits out complete lines. Lines
// bracketed by NEW_REQUEST_START/NEW_REQUEST_END sentinels are returned as
// Attributed; everything else is returned as Verbatim, meant to be written
// to the master's own stdout/stderr unchanged (worker logging not tied to
// a session).
func (p *PipeFrame) Feed(data []byte) (attributed []AttributedLine, verbatim [][]byte) {
	p.buf = append(p.buf, data...)
	p.lastNewline = -1

	startReqLen := len(wire.NewRequestStart)
	expectedStartLen := startReqLen + wire.SessionIDLength*2

	start := 0
	for n, c := range p.buf {
		if c != '\n' {
			continue
		}
		line := p.buf[start:n]
		p.lastNewline = n
		start = n + 1

		if len(line) == expectedStartLen && bytes.HasPrefix(line, []byte(wire.NewRequestStart)) {
			p.currentSession = string(line[startReqLen:])
			continue
		}
		if string(line) == wire.NewRequestEnd {
			p.currentSession = ""
			continue
		}

		cp := make([]byte, len(line))
		copy(cp, line)
		if p.currentSession != "" {
			attributed = append(attributed, AttributedLine{SessionID: p.currentSession, Line: cp})
		} else {
			verbatim = append(verbatim, cp)
		}
	}

	p.clear()
	return attributed, verbatim
}

// clear drops bytes already consumed through the last complete line,
// keeping any trailing partial line in the buffer.
func (p *PipeFrame) clear() {
	if p.lastNewline >= 0 {
		p.buf = append(p.buf[:0], p.buf[p.lastNewline+1:]...)
	}
	p.lastNewline = -1
}
