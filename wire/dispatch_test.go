package wire

import "testing"

func TestDispatchReaderPairsHeaderAndFd(t *testing.T) {
	var d DispatchReader

	header := RequestHeader{Kind: KindHello, Sub: 0, Length: 0}
	buf := make([]byte, RequestHeaderSize)
	header.Encode(buf)

	d.Feed(buf, []int{42})

	got, fd, ok, err := d.Next()
	if err != nil {
		t.Fatalf("Next: unexpected error %v", err)
	}
	if !ok {
		t.Fatalf("Next: expected a complete pair")
	}
	if got.Kind != KindHello || fd != 42 {
		t.Fatalf("Next: got header=%+v fd=%d, want kind=hello fd=42", got, fd)
	}

	if _, _, ok, _ := d.Next(); ok {
		t.Fatalf("Next: expected no more pairs after draining the only one")
	}
}

func TestDispatchReaderWaitsForFd(t *testing.T) {
	var d DispatchReader

	header := RequestHeader{Kind: KindCodeString, Sub: 1, Length: 7}
	buf := make([]byte, RequestHeaderSize)
	header.Encode(buf)

	d.Feed(buf, nil)
	if _, _, ok, _ := d.Next(); ok {
		t.Fatalf("Next: should not produce a pair before the descriptor arrives")
	}

	d.Feed(nil, []int{9})
	got, fd, ok, err := d.Next()
	if err != nil {
		t.Fatalf("Next: unexpected error %v", err)
	}
	if !ok || fd != 9 || got.Length != 7 {
		t.Fatalf("Next: got header=%+v fd=%d ok=%v, want length=7 fd=9 ok=true", got, fd, ok)
	}
}

func TestDispatchReaderWaitsForPartialHeader(t *testing.T) {
	var d DispatchReader

	header := RequestHeader{Kind: KindHello, Sub: 0, Length: 0}
	buf := make([]byte, RequestHeaderSize)
	header.Encode(buf)

	d.Feed(buf[:4], []int{1})
	if _, _, ok, _ := d.Next(); ok {
		t.Fatalf("Next: should not produce a pair from a partial header")
	}

	d.Feed(buf[4:], nil)
	if _, _, ok, _ := d.Next(); !ok {
		t.Fatalf("Next: expected a complete pair once the header is whole")
	}
}

func TestDispatchReaderRejectsBadVersion(t *testing.T) {
	var d DispatchReader

	buf := make([]byte, RequestHeaderSize)
	buf[1] = Version + 1 // corrupt the version byte

	d.Feed(buf, []int{1})
	if _, _, _, err := d.Next(); err == nil {
		t.Fatalf("Next: expected a version error, got nil")
	}
}

func TestDispatchReaderPairsInArrivalOrder(t *testing.T) {
	var d DispatchReader

	h1 := RequestHeader{Kind: KindHello, Length: 0}
	h2 := RequestHeader{Kind: KindCodePickle, Length: 3}
	buf := make([]byte, 2*RequestHeaderSize)
	h1.Encode(buf[:RequestHeaderSize])
	h2.Encode(buf[RequestHeaderSize:])

	d.Feed(buf, []int{11, 22})

	got1, fd1, ok, _ := d.Next()
	if !ok || fd1 != 11 || got1.Kind != KindHello {
		t.Fatalf("first pair: got header=%+v fd=%d", got1, fd1)
	}
	got2, fd2, ok, _ := d.Next()
	if !ok || fd2 != 22 || got2.Kind != KindCodePickle {
		t.Fatalf("second pair: got header=%+v fd=%d", got2, fd2)
	}
}
