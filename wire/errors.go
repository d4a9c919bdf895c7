package wire

import (
	"errors"
	"fmt"
)

var (
	errNonEmptyHello = errors.New("wire: hello body must be empty")
	errTruncatedTag  = errors.New("wire: truncated return/error tag byte")
	errDecoderDead   = errors.New("wire: decoder already failed, connection must be closed")
)

// WrongVersionError is returned when a header's version byte is not Version.
// It is always terminal for the connection it was read from.
type WrongVersionError struct {
	Got byte
}

func (e *WrongVersionError) Error() string {
	return fmt.Sprintf("wire: wrong version byte %d", e.Got)
}

// UnrecognizedKindError is returned when a header's kind byte is not one of
// the defined Kind/OutputKind values.
type UnrecognizedKindError struct {
	Got byte
}

func (e *UnrecognizedKindError) Error() string {
	return fmt.Sprintf("wire: unrecognized kind byte %d", e.Got)
}

// UnexpectedKindError is returned when a frame of a structurally valid but
// contextually forbidden kind is decoded — e.g. anything other than hello
// as the first message on a fresh client socket.
type UnexpectedKindError struct {
	Kind Kind
}

func (e *UnexpectedKindError) Error() string {
	return fmt.Sprintf("wire: unexpected kind %s in this position", e.Kind)
}

// DeserializationFailedError wraps an error from the body decoder.
type DeserializationFailedError struct {
	Err error
}

func (e *DeserializationFailedError) Error() string {
	return fmt.Sprintf("wire: failed to deserialize body: %v", e.Err)
}

func (e *DeserializationFailedError) Unwrap() error {
	return e.Err
}
