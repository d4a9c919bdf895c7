package client

import "pyproxy/wire"

// OutputFrame is one captured stdout/stderr line delivered to the host via
// Session.TakeOutput (spec §3 "Output frame").
type OutputFrame struct {
	Stderr  bool
	Payload []byte
}

// outputStream is the client's side of the output socket, adapted from the
// original Rust client's OutputStream (original_source/client/client/
// outputstream.rs): a read-only decoder of framed stdout/stderr pushes.
type outputStream struct {
	fd      int
	decoder wire.OutputDecoder
}

func newOutputStream(fd int) *outputStream {
	return &outputStream{fd: fd}
}

func (o *outputStream) feed(p []byte) {
	o.decoder.Feed(p)
}

func (o *outputStream) next() (wire.OutputFrame, bool, error) {
	return o.decoder.Next()
}
