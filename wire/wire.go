// Package wire implements the mini-rpc-derived binary frame protocol for
// pyproxy's client↔worker request channel and master↔client output channel.
//
// Two framings coexist, both solving the same sticky-packet problem the
// teacher's protocol package solves with its 14-byte header: a fixed-size
// header carries a length prefix, the receiver reads the header first and
// then reads exactly that many body bytes.
//
// Main framing (client↔worker), 8-byte request header:
//
//	0  1  2  3  4          8
//	┌──┬──┬──┬──┬──────────┬───────────────┐
//	│00│ve│ki│su│ bodyLen  │   body ...    │
//	│  │00│  │  │ uint32BE │  bodyLen bytes│
//	└──┴──┴──┴──┴──────────┴───────────────┘
//
// and a 12-byte response header that adds a 4-byte big-endian sequence
// number after bodyLen.
//
// Output framing (master→client output channel), 5-byte header:
//
//	┌──┬──────────┬───────────────┐
//	│ki│ bodyLen  │   body ...    │
//	└──┴──────────┴───────────────┘
//
// Bodies are encoded with a compact little-endian binary encoder (see
// encoding.go) — deliberately the opposite endianness of the frame headers,
// matching the asymmetry in the originating protocol.
package wire

import "fmt"

// Version is the only value the Version header byte may hold.
const Version byte = 0

// Kind identifies the body discriminator carried by a request/response frame.
type Kind byte

const (
	KindHello      Kind = 0
	KindCodeString Kind = 1
	KindCodePickle Kind = 2
)

func (k Kind) valid() bool {
	return k == KindHello || k == KindCodeString || k == KindCodePickle
}

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindCodeString:
		return "code-string"
	case KindCodePickle:
		return "code-pickle"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// OutputKind identifies stdout/stderr on the output channel framing.
type OutputKind byte

const (
	OutputStdout OutputKind = 1
	OutputStderr OutputKind = 2
)

func (k OutputKind) valid() bool {
	return k == OutputStdout || k == OutputStderr
}

const (
	// RequestHeaderSize is the fixed size, in bytes, of a main-framing request header.
	RequestHeaderSize = 8
	// ResponseHeaderSize is the fixed size, in bytes, of a main-framing response header.
	ResponseHeaderSize = 12
	// OutputHeaderSize is the fixed size, in bytes, of an output-framing header.
	OutputHeaderSize = 5

	// SessionIDLength is the byte length of a session identifier (32 hex chars).
	SessionIDLength = 16
	// StreamTokenLength is the byte length of a stream token (64 hex chars).
	StreamTokenLength = 32
)
