package client

import "time"

// outcome is what settles a Future exactly once: a serialized return value,
// a serialized error payload, or a terminal client-side error.
type outcome struct {
	payload []byte
	isError bool
	err     error
}

// Future is the client-side handle correlating one submitted atom to its
// eventual result (spec §3 "Future"). Settled exactly once; ported from the
// original Rust client's Future (original_source/client/client/future.rs),
// which blocks on an mpsc::Receiver the same way this blocks on a channel.
type Future struct {
	recv chan outcome
}

// Wait blocks for the future to settle. A non-positive timeoutSeconds
// blocks indefinitely; a positive value bounds the wait to that many whole
// seconds (spec §9 "Wait timeout granularity": whole-second precision
// only). Timing out does not cancel execution on the server.
func (f *Future) Wait(timeoutSeconds int) ([]byte, error) {
	if timeoutSeconds <= 0 {
		o, ok := <-f.recv
		if !ok {
			return nil, ErrThreadDead
		}
		return resolve(o)
	}
	timer := time.NewTimer(time.Duration(timeoutSeconds) * time.Second)
	defer timer.Stop()
	select {
	case o, ok := <-f.recv:
		if !ok {
			return nil, ErrThreadDead
		}
		return resolve(o)
	case <-timer.C:
		return nil, ErrFutureTimeout
	}
}

func resolve(o outcome) ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	if o.isError {
		return nil, &RemoteError{Payload: o.payload}
	}
	return o.payload, nil
}
