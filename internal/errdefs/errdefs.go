// Package errdefs defines the error kinds surfaced to callers of browserctl.
package errdefs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConnection      Kind = "ConnectionError"
	KindLaunchTimeout   Kind = "LaunchTimeoutError"
	KindNotFound        Kind = "NotFoundError"
	KindModalState      Kind = "ModalStateError"
	KindCapture         Kind = "CaptureError"
	KindDaemonLifecycle Kind = "DaemonLifecycleError"
	KindInvalidArgument Kind = "InvalidArgumentError"
)

// Error is a classified error. Two *Error values match under errors.Is when
// the target carries no message and the kinds are equal.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrConnection      = &Error{Kind: KindConnection}
	ErrLaunchTimeout   = &Error{Kind: KindLaunchTimeout}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrModalState      = &Error{Kind: KindModalState}
	ErrCapture         = &Error{Kind: KindCapture}
	ErrDaemonLifecycle = &Error{Kind: KindDaemonLifecycle}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
)

func newf(kind Kind, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func Connection(cause error, format string, args ...any) error {
	return newf(KindConnection, cause, format, args...)
}

func LaunchTimeout(format string, args ...any) error {
	return newf(KindLaunchTimeout, nil, format, args...)
}

func NotFound(format string, args ...any) error {
	return newf(KindNotFound, nil, format, args...)
}

func ModalState(format string, args ...any) error {
	return newf(KindModalState, nil, format, args...)
}

func Capture(cause error, format string, args ...any) error {
	return newf(KindCapture, cause, format, args...)
}

func DaemonLifecycle(format string, args ...any) error {
	return newf(KindDaemonLifecycle, nil, format, args...)
}

func InvalidArgument(format string, args ...any) error {
	return newf(KindInvalidArgument, nil, format, args...)
}

// KindOf returns the kind of the first classified error in err's chain, or
// the empty kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
