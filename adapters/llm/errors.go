package llm

import (
	"errors"
	"fmt"
)

// ErrUnexpectedRole is returned by strict decoding when the backend replies
// with a role outside user/assistant/system.
var ErrUnexpectedRole = errors.New("unexpected reply role")

// StatusError reports a non-2xx answer from the completion backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion backend returned status %d: %s", e.StatusCode, e.Body)
}

// DecodeError reports a reply whose shape could not be turned into a turn.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode reply: %s: %v", e.Reason, e.Err)
	}
	return "decode reply: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }
