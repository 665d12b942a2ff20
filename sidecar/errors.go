package sidecar

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel errors for common error conditions.
var (
	ErrSessionClosed = errors.New("session is closed")
	ErrNoTurn        = errors.New("stream ended with no turn")
	ErrStreamClosed  = errors.New("stream handle closed")
	ErrUnknownStream = errors.New("unknown input stream")
	ErrNilEvent      = errors.New("input event is nil")
)

// TransportError wraps a failure of the underlying session stream.
type TransportError struct {
	Cause error
	Op    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// CallbackKind names the three server-initiated callback shapes.
type CallbackKind string

const (
	CallbackTool       CallbackKind = "tool"
	CallbackHook       CallbackKind = "hook"
	CallbackPermission CallbackKind = "permission"
)

// HandlerError records an application handler failure. It is never returned
// to callers of the session; it is logged and converted into the default
// response for the callback kind.
type HandlerError struct {
	Cause        error
	Kind         CallbackKind
	InvocationID string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler failed for invocation %s: %v", e.Kind, e.InvocationID, e.Cause)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// PanicError is the Cause of a HandlerError when the handler panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// IsRecoverable returns true if the session can keep being used after err.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}

	if errors.Is(err, ErrSessionClosed) || errors.Is(err, io.EOF) {
		return false
	}

	// A failed transport terminates the session; there is no resume.
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return false
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.Canceled, codes.Unauthenticated, codes.PermissionDenied:
			return false
		}
	}

	return true
}
