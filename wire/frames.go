package wire

// RequestFrame is one fully-decoded main-framing request: header plus raw
// (still wire-encoded) body bytes. Callers decode the body with the
// Decode*Request function matching Header.Kind.
type RequestFrame struct {
	Header RequestHeader
	Body   []byte
}

// ResponseFrame is one fully-decoded main-framing response.
type ResponseFrame struct {
	Header ResponseHeader
	Body   []byte
}

// OutputFrame is one fully-decoded output-channel frame.
type OutputFrame struct {
	Header  OutputHeader
	Payload []byte
}

// RequestDecoder incrementally parses main-framing request frames out of an
// arbitrarily chunked byte stream. Feed can be called with any sized slab of
// bytes; Next drains as many complete frames as are currently buffered.
// A decode failure is terminal — once Next returns an error, the decoder
// must not be fed further and the owning connection must be closed (spec §4.1).
type RequestDecoder struct {
	buf    []byte
	failed bool
}

func (d *RequestDecoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame, or ok=false if more bytes are needed.
func (d *RequestDecoder) Next() (frame RequestFrame, ok bool, err error) {
	if d.failed {
		return RequestFrame{}, false, errDecoderDead
	}
	if len(d.buf) < RequestHeaderSize {
		return RequestFrame{}, false, nil
	}
	h, err := DecodeRequestHeader(d.buf[:RequestHeaderSize])
	if err != nil {
		d.failed = true
		return RequestFrame{}, false, err
	}
	total := RequestHeaderSize + int(h.Length)
	if len(d.buf) < total {
		return RequestFrame{}, false, nil
	}
	body := make([]byte, h.Length)
	copy(body, d.buf[RequestHeaderSize:total])
	d.buf = append(d.buf[:0], d.buf[total:]...)
	return RequestFrame{Header: h, Body: body}, true, nil
}

// RequireHello checks an already decoded request frame and fails with
// UnexpectedKindError unless it is a hello — used at handshake time on both the main and output
// channels (spec §4.1 "Handshake discipline").
func RequireHello(f RequestFrame) error {
	if f.Header.Kind != KindHello {
		return &UnexpectedKindError{Kind: f.Header.Kind}
	}
	return nil
}

// ResponseDecoder incrementally parses main-framing response frames.
type ResponseDecoder struct {
	buf    []byte
	failed bool
}

func (d *ResponseDecoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

func (d *ResponseDecoder) Next() (frame ResponseFrame, ok bool, err error) {
	if d.failed {
		return ResponseFrame{}, false, errDecoderDead
	}
	if len(d.buf) < ResponseHeaderSize {
		return ResponseFrame{}, false, nil
	}
	h, err := DecodeResponseHeader(d.buf[:ResponseHeaderSize])
	if err != nil {
		d.failed = true
		return ResponseFrame{}, false, err
	}
	total := ResponseHeaderSize + int(h.Length)
	if len(d.buf) < total {
		return ResponseFrame{}, false, nil
	}
	body := make([]byte, h.Length)
	copy(body, d.buf[ResponseHeaderSize:total])
	d.buf = append(d.buf[:0], d.buf[total:]...)
	return ResponseFrame{Header: h, Body: body}, true, nil
}

// OutputDecoder incrementally parses output-channel frames.
type OutputDecoder struct {
	buf    []byte
	failed bool
}

func (d *OutputDecoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

func (d *OutputDecoder) Next() (frame OutputFrame, ok bool, err error) {
	if d.failed {
		return OutputFrame{}, false, errDecoderDead
	}
	if len(d.buf) < OutputHeaderSize {
		return OutputFrame{}, false, nil
	}
	h, err := DecodeOutputHeader(d.buf[:OutputHeaderSize])
	if err != nil {
		d.failed = true
		return OutputFrame{}, false, err
	}
	total := OutputHeaderSize + int(h.Length)
	if len(d.buf) < total {
		return OutputFrame{}, false, nil
	}
	payload := make([]byte, h.Length)
	copy(payload, d.buf[OutputHeaderSize:total])
	d.buf = append(d.buf[:0], d.buf[total:]...)
	return OutputFrame{Header: h, Payload: payload}, true, nil
}

// EncodeRequest assembles a complete request frame (header + body) ready to
// write to a socket.
func EncodeRequest(kind Kind, sub byte, body []byte) []byte {
	buf := make([]byte, RequestHeaderSize+len(body))
	RequestHeader{Kind: kind, Sub: sub, Length: uint32(len(body))}.Encode(buf)
	copy(buf[RequestHeaderSize:], body)
	return buf
}

// EncodeResponse assembles a complete response frame ready to write to a socket.
func EncodeResponse(kind Kind, sub byte, seq uint32, body []byte) []byte {
	buf := make([]byte, ResponseHeaderSize+len(body))
	ResponseHeader{Kind: kind, Sub: sub, Length: uint32(len(body)), Sequence: seq}.Encode(buf)
	copy(buf[ResponseHeaderSize:], body)
	return buf
}

// EncodeOutput assembles a complete output-channel frame ready to write to a socket.
func EncodeOutput(kind OutputKind, payload []byte) []byte {
	buf := make([]byte, OutputHeaderSize+len(payload))
	OutputHeader{Kind: kind, Length: uint32(len(payload))}.Encode(buf)
	copy(buf[OutputHeaderSize:], payload)
	return buf
}
