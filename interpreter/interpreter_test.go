package interpreter

import (
	"bytes"
	"strings"
	"testing"

	"pyproxy/atom"
	"pyproxy/wire"
)

// fakeInterpreter settles every request with a fixed result, used to
// isolate Thread's sentinel-bracketing behavior from any real subprocess.
type fakeInterpreter struct {
	isError bool
	payload []byte
}

func (f *fakeInterpreter) Execute(req atom.Request) atom.Result {
	return atom.Result{IsError: f.isError, Payload: f.payload}
}

func TestThreadBracketsWithSentinels(t *testing.T) {
	var out bytes.Buffer
	th := NewThread(&fakeInterpreter{payload: []byte("ok")}, &out)
	go th.Run()

	th.Submit(atom.Request{SessionID: "abc123", FutureID: "f1", Code: []byte("x=1")})
	res := <-th.Results()
	th.Close()

	if res.FutureID != "f1" || res.SessionID != "abc123" {
		t.Fatalf("unexpected result tagging: %+v", res)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected exactly 2 sentinel lines, got %d: %q", len(lines), out.String())
	}
	if lines[0] != wire.NewRequestStart+"abc123" {
		t.Fatalf("start sentinel = %q", lines[0])
	}
	if lines[1] != wire.NewRequestEnd {
		t.Fatalf("end sentinel = %q", lines[1])
	}
}

func TestThreadProcessesFIFO(t *testing.T) {
	var out bytes.Buffer
	th := NewThread(&fakeInterpreter{}, &out)
	go th.Run()

	th.Submit(atom.Request{SessionID: "s", FutureID: "f1"})
	th.Submit(atom.Request{SessionID: "s", FutureID: "f2"})
	th.Submit(atom.Request{SessionID: "s", FutureID: "f3"})
	th.Close()

	var got []string
	for r := range th.Results() {
		got = append(got, r.FutureID)
	}
	want := []string{"f1", "f2", "f3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got order %v, want %v", got, want)
		}
	}
}

func TestRateLimitMiddlewareRejectsOverBurst(t *testing.T) {
	calls := 0
	base := HandlerFunc(func(req atom.Request) atom.Result {
		calls++
		return atom.Result{}
	})
	wrapped := RateLimitMiddleware(0, 1)(base)

	first := wrapped(atom.Request{FutureID: "f1"})
	if first.IsError {
		t.Fatalf("first call within burst should succeed, got error %q", first.Payload)
	}
	second := wrapped(atom.Request{FutureID: "f2"})
	if !second.IsError {
		t.Fatalf("second call should be rate limited")
	}
	if calls != 1 {
		t.Fatalf("base handler should run exactly once, ran %d times", calls)
	}
}
