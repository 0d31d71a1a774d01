package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindUser       ErrorKind = "user"
	KindIO         ErrorKind = "io"
	KindTransport  ErrorKind = "transport"
	KindProtocol   ErrorKind = "protocol"
	KindUnexpected ErrorKind = "unexpected"
)

// Error classifies a pipeline failure. Only KindUser is meant for display;
// every other kind is shown as FailurePlaceholder.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	if e.Kind == KindUser {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf reports the kind of err, defaulting to KindUnexpected for errors
// that were never classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

var ErrMissingFiles = NewError(KindUser, errors.New(MissingFilesMessage))
