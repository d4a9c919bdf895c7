package wire

// HelloRequest is the empty body of a client-hello request.
type HelloRequest struct{}

func EncodeHelloRequest(HelloRequest) []byte { return nil }

func DecodeHelloRequest(body []byte) (HelloRequest, error) {
	if len(body) != 0 {
		return HelloRequest{}, &DeserializationFailedError{Err: errNonEmptyHello}
	}
	return HelloRequest{}, nil
}

// HelloResponse is the three-string body of a client-hello response:
// session identifier (hex), stream token (hex), output-channel address.
type HelloResponse struct {
	SessionHex     string
	StreamTokenHex string
	OutputAddr     string
}

func EncodeHelloResponse(h HelloResponse) []byte {
	e := newEncoder(16 + len(h.SessionHex) + len(h.StreamTokenHex) + len(h.OutputAddr))
	e.putString(h.SessionHex)
	e.putString(h.StreamTokenHex)
	e.putString(h.OutputAddr)
	return e.bytes()
}

func DecodeHelloResponse(body []byte) (HelloResponse, error) {
	d := newDecoder(body)
	var h HelloResponse
	var err error
	if h.SessionHex, err = d.stringField(); err != nil {
		return h, &DeserializationFailedError{Err: err}
	}
	if h.StreamTokenHex, err = d.stringField(); err != nil {
		return h, &DeserializationFailedError{Err: err}
	}
	if h.OutputAddr, err = d.stringField(); err != nil {
		return h, &DeserializationFailedError{Err: err}
	}
	return h, nil
}

// OutputHello is the body sent on a fresh output-channel connection,
// carrying the stream token that proves the connection's right to read a
// session's captured output.
type OutputHello struct {
	StreamToken string
}

func EncodeOutputHello(h OutputHello) []byte {
	e := newEncoder(8 + len(h.StreamToken))
	e.putString(h.StreamToken)
	return e.bytes()
}

func DecodeOutputHello(body []byte) (OutputHello, error) {
	d := newDecoder(body)
	tok, err := d.stringField()
	if err != nil {
		return OutputHello{}, &DeserializationFailedError{Err: err}
	}
	return OutputHello{StreamToken: tok}, nil
}

// CodeRequest is the body of a code-string or code-pickle request: a future
// identifier, the code payload (source text or a serialized callable,
// according to the frame's Kind), and two opaque binding blobs.
type CodeRequest struct {
	FutureID string
	Code     []byte
	Locals   []byte
	Globals  []byte
}

func EncodeCodeRequest(r CodeRequest) []byte {
	e := newEncoder(16 + len(r.FutureID) + len(r.Code) + len(r.Locals) + len(r.Globals))
	e.putString(r.FutureID)
	e.putBytes(r.Code)
	e.putBytes(r.Locals)
	e.putBytes(r.Globals)
	return e.bytes()
}

func DecodeCodeRequest(body []byte) (CodeRequest, error) {
	d := newDecoder(body)
	var r CodeRequest
	var err error
	if r.FutureID, err = d.stringField(); err != nil {
		return r, &DeserializationFailedError{Err: err}
	}
	if r.Code, err = d.bytesField(); err != nil {
		return r, &DeserializationFailedError{Err: err}
	}
	if r.Locals, err = d.bytesField(); err != nil {
		return r, &DeserializationFailedError{Err: err}
	}
	if r.Globals, err = d.bytesField(); err != nil {
		return r, &DeserializationFailedError{Err: err}
	}
	return r, nil
}

// CodeResponse is the body of a code-string or code-pickle response: the
// future identifier echoed from the request, and a tagged union of
// return(bytes) | error(bytes).
type CodeResponse struct {
	FutureID string
	IsError  bool
	Payload  []byte
}

func EncodeCodeResponse(r CodeResponse) []byte {
	e := newEncoder(16 + len(r.FutureID) + len(r.Payload))
	e.putString(r.FutureID)
	if r.IsError {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	e.putBytes(r.Payload)
	return e.bytes()
}

func DecodeCodeResponse(body []byte) (CodeResponse, error) {
	d := newDecoder(body)
	var r CodeResponse
	var err error
	if r.FutureID, err = d.stringField(); err != nil {
		return r, &DeserializationFailedError{Err: err}
	}
	if len(d.buf)-d.pos < 1 {
		return r, &DeserializationFailedError{Err: errTruncatedTag}
	}
	r.IsError = d.buf[d.pos] == 1
	d.pos++
	if r.Payload, err = d.bytesField(); err != nil {
		return r, &DeserializationFailedError{Err: err}
	}
	return r, nil
}
