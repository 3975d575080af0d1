package media

import (
	"errors"
	"fmt"
)

// ErrorKind classifies controller-level failures.
type ErrorKind int

const (
	NoPlayableSource ErrorKind = iota + 1
	StreamUnrecoverable
	DownloadUnsupported
	QualitySwitchFailed
)

func (k ErrorKind) String() string {
	switch k {
	case NoPlayableSource:
		return "NoPlayableSource"
	case StreamUnrecoverable:
		return "StreamUnrecoverable"
	case DownloadUnsupported:
		return "DownloadUnsupported"
	case QualitySwitchFailed:
		return "QualitySwitchFailed"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is matching against *Error values.
var (
	ErrNoPlayableSource    = &Error{Kind: NoPlayableSource}
	ErrStreamUnrecoverable = &Error{Kind: StreamUnrecoverable}
	ErrDownloadUnsupported = &Error{Kind: DownloadUnsupported}
	ErrQualitySwitchFailed = &Error{Kind: QualitySwitchFailed}
)

// Error is a classified controller error carried in State.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError builds an Error of the given kind around a cause.
func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}
