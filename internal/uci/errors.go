package uci

import (
	"errors"
	"fmt"
)

var (
	ErrNotACommand  = errors.New("not a uci command")
	ErrNotAResponse = errors.New("not a uci response")
)

// ParseError reports a line that could not be decoded. Err is
// ErrNotACommand or ErrNotAResponse when the leading token is unknown.
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("couldn't parse %q: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("couldn't parse %q: %v", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErrorf(line string, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
