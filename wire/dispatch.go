package wire

// DispatchReader pairs raw request-header bytes arriving over the UNIX
// control socket with the file descriptors that rode alongside them as
// SCM_RIGHTS ancillary data (spec §6 "descriptor-passing chunks whose
// payload is the client-hello 8-byte header"). The protocol this repo
// implements always sends exactly one header and one descriptor together
// in a single sendmsg call (see fdpass.SendWithFDs), so headers and
// descriptors are paired strictly in arrival order.
type DispatchReader struct {
	headerBuf []byte
	fds       []int
}

// Feed appends newly received header bytes and descriptors.
func (d *DispatchReader) Feed(data []byte, fds []int) {
	d.headerBuf = append(d.headerBuf, data...)
	d.fds = append(d.fds, fds...)
}

// Next returns the next complete (header, fd) pair, or ok=false if either a
// full 8-byte header or its paired descriptor has not arrived yet.
func (d *DispatchReader) Next() (header RequestHeader, fd int, ok bool, err error) {
	if len(d.headerBuf) < RequestHeaderSize || len(d.fds) == 0 {
		return RequestHeader{}, -1, false, nil
	}
	header, err = DecodeRequestHeader(d.headerBuf[:RequestHeaderSize])
	if err != nil {
		return RequestHeader{}, -1, false, err
	}
	d.headerBuf = append(d.headerBuf[:0], d.headerBuf[RequestHeaderSize:]...)
	fd = d.fds[0]
	d.fds = append(d.fds[:0], d.fds[1:]...)
	return header, fd, true, nil
}
