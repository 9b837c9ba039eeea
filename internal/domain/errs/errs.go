// Package errs defines the error taxonomy of the analysis pipeline. Every
// failure surfaced to a caller carries one of three kinds: decode errors for
// bad input media (not retried), inference errors for model failures
// (retried once at reduced resolution), and aggregation errors for internal
// invariant violations (fatal).
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindDecode      Kind = "decode_error"
	KindInference   Kind = "inference_error"
	KindAggregation Kind = "aggregation_error"
)

// Error is a pipeline failure tagged with its taxonomy kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the human-readable part of the error, without the kind prefix.
func (e *Error) Message() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func Decode(msg string, cause error) *Error {
	return &Error{Kind: KindDecode, Msg: msg, Err: cause}
}

func Inference(msg string, cause error) *Error {
	return &Error{Kind: KindInference, Msg: msg, Err: cause}
}

func Aggregation(msg string, cause error) *Error {
	return &Error{Kind: KindAggregation, Msg: msg, Err: cause}
}

// KindOf extracts the taxonomy kind from an error chain. ok is false for
// errors originating outside the pipeline.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is lets errors.Is match any error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}
