package wire

import "encoding/binary"

// RequestHeader is the 8-byte header prefixing every client→worker request
// frame: {reserved:1, version:1, kind:1, sub:1, length:4-big-endian}.
type RequestHeader struct {
	Kind   Kind
	Sub    byte
	Length uint32
}

// Encode writes the 8-byte big-endian header into buf, which must be at
// least RequestHeaderSize long.
func (h RequestHeader) Encode(buf []byte) {
	buf[0] = 0
	buf[1] = Version
	buf[2] = byte(h.Kind)
	buf[3] = h.Sub
	binary.BigEndian.PutUint32(buf[4:8], h.Length)
}

// DecodeRequestHeader parses an 8-byte header, validating version and kind.
func DecodeRequestHeader(buf []byte) (RequestHeader, error) {
	if buf[1] != Version {
		return RequestHeader{}, &WrongVersionError{Got: buf[1]}
	}
	k := Kind(buf[2])
	if !k.valid() {
		return RequestHeader{}, &UnrecognizedKindError{Got: buf[2]}
	}
	return RequestHeader{
		Kind:   k,
		Sub:    buf[3],
		Length: binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}

// ResponseHeader is the 12-byte header prefixing every worker→client
// response frame: adds a 4-byte big-endian sequence number after length.
type ResponseHeader struct {
	Kind     Kind
	Sub      byte
	Length   uint32
	Sequence uint32
}

func (h ResponseHeader) Encode(buf []byte) {
	buf[0] = 0
	buf[1] = Version
	buf[2] = byte(h.Kind)
	buf[3] = h.Sub
	binary.BigEndian.PutUint32(buf[4:8], h.Length)
	binary.BigEndian.PutUint32(buf[8:12], h.Sequence)
}

func DecodeResponseHeader(buf []byte) (ResponseHeader, error) {
	if buf[1] != Version {
		return ResponseHeader{}, &WrongVersionError{Got: buf[1]}
	}
	k := Kind(buf[2])
	if !k.valid() {
		return ResponseHeader{}, &UnrecognizedKindError{Got: buf[2]}
	}
	return ResponseHeader{
		Kind:     k,
		Sub:      buf[3],
		Length:   binary.BigEndian.Uint32(buf[4:8]),
		Sequence: binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}

// OutputHeader is the 5-byte header prefixing every output-channel frame:
// {kind:1, length:4-big-endian}. There is no version byte — the channel is
// opened only after the main handshake has already negotiated version.
type OutputHeader struct {
	Kind   OutputKind
	Length uint32
}

func (h OutputHeader) Encode(buf []byte) {
	buf[0] = byte(h.Kind)
	binary.BigEndian.PutUint32(buf[1:5], h.Length)
}

func DecodeOutputHeader(buf []byte) (OutputHeader, error) {
	k := OutputKind(buf[0])
	if !k.valid() {
		return OutputHeader{}, &UnrecognizedKindError{Got: buf[0]}
	}
	return OutputHeader{
		Kind:   k,
		Length: binary.BigEndian.Uint32(buf[1:5]),
	}, nil
}
