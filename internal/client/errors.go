package client

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when sending to a client after Close.
var ErrClosed = errors.New("client closed")

// TransportError is a failure of the underlying stream. It is fatal: the
// client returns it from every later read.
type TransportError struct {
	Op     string
	Err    error
	Record string
}

func (e *TransportError) Error() string {
	if e.Record == "" {
		return fmt.Sprintf("%v: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%v: %v\n%v", e.Op, e.Err, e.Record)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
