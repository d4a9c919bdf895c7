// Package control implements the worker-to-master control-message framing
// carried over the UNIX control socket alongside descriptor-passing chunks
// (spec §6 "UNIX control socket": "length-prefixed typed records from
// worker to master of kinds {LOG_MESSAGE=1, PRINT_MESSAGE=2}"). Each record
// is a 5-byte header `{kind:1, length:4-big-endian}` followed by length
// bytes of body, the same shape as the output channel's framing but a
// distinct kind space.
//
// A third kind, SessionBind, is this implementation's resolution of the
// spec's own flagged "Output-channel token confusion" (§9): the worker
// announces the (session identifier, stream token) pair it minted at
// handshake time so the master can maintain its stream-token-keyed
// output-channel registry and a session-identifier index into it, per the
// design note's own suggested fix.
package control

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

var errControlDecoderDead = errors.New("control: decoder already failed, connection must be closed")

// Kind discriminates a control record.
type Kind byte

const (
	KindLogMessage   Kind = 1
	KindPrintMessage Kind = 2
	KindSessionBind  Kind = 3
)

func (k Kind) valid() bool {
	return k == KindLogMessage || k == KindPrintMessage || k == KindSessionBind
}

const HeaderSize = 5

// LogRecord mirrors the Rust original's LogMessage{level, msg, ts, tags}
// (server/messages.rs), carried as JSON to match the teacher's
// codec.JSONCodec pattern for a control-plane message that is read by
// humans (operator logs) as often as by code.
type LogRecord struct {
	Level string            `json:"level"`
	Msg   string            `json:"msg"`
	Ts    string            `json:"ts"`
	Tags  map[string]string `json:"tags"`
}

// SessionBind announces a freshly completed handshake's credentials.
type SessionBind struct {
	SessionHex     string `json:"session_id"`
	StreamTokenHex string `json:"stream_token"`
}

// EncodeLogMessage frames a LogRecord as a complete control record.
func EncodeLogMessage(r LogRecord) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("control: marshal log record: %w", err)
	}
	return frame(KindLogMessage, body), nil
}

// EncodeSessionBind frames a SessionBind as a complete control record.
func EncodeSessionBind(b SessionBind) ([]byte, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("control: marshal session bind: %w", err)
	}
	return frame(KindSessionBind, body), nil
}

func frame(kind Kind, body []byte) []byte {
	out := make([]byte, HeaderSize+len(body))
	out[0] = byte(kind)
	binary.BigEndian.PutUint32(out[1:5], uint32(len(body)))
	copy(out[5:], body)
	return out
}

// Record is one decoded control message.
type Record struct {
	Kind Kind
	Body []byte
}

// Decoder incrementally parses a stream of framed control records, the same
// shape as wire's frame decoders: feed it bytes as they arrive, call Next
// until it reports no complete record is buffered yet.
type Decoder struct {
	buf    []byte
	failed bool
}

func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete record, or ok=false if more bytes are
// needed. A malformed kind byte is terminal for the decoder, matching the
// main wire protocol's "failure is terminal for the connection" rule.
func (d *Decoder) Next() (Record, bool, error) {
	if d.failed {
		return Record{}, false, errControlDecoderDead
	}
	if len(d.buf) < HeaderSize {
		return Record{}, false, nil
	}
	kind := Kind(d.buf[0])
	if !kind.valid() {
		d.failed = true
		return Record{}, false, fmt.Errorf("control: unrecognized kind byte %d", d.buf[0])
	}
	length := binary.BigEndian.Uint32(d.buf[1:5])
	total := HeaderSize + int(length)
	if len(d.buf) < total {
		return Record{}, false, nil
	}
	body := make([]byte, length)
	copy(body, d.buf[HeaderSize:total])
	d.buf = append(d.buf[:0], d.buf[total:]...)
	return Record{Kind: kind, Body: body}, true, nil
}

// DecodeLogMessage unmarshals a record's body as a LogRecord.
func DecodeLogMessage(body []byte) (LogRecord, error) {
	var r LogRecord
	if err := json.Unmarshal(body, &r); err != nil {
		return LogRecord{}, fmt.Errorf("control: unmarshal log record: %w", err)
	}
	return r, nil
}

// DecodeSessionBind unmarshals a record's body as a SessionBind.
func DecodeSessionBind(body []byte) (SessionBind, error) {
	var b SessionBind
	if err := json.Unmarshal(body, &b); err != nil {
		return SessionBind{}, fmt.Errorf("control: unmarshal session bind: %w", err)
	}
	return b, nil
}
