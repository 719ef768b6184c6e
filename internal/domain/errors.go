package domain

import (
	"errors"
	"strings"
)

type Kind string

const (
	KindMissingClientSecret    Kind = "missing_client_secret"
	KindConsentFailed          Kind = "consent_failed"
	KindRefreshFailed          Kind = "refresh_failed"
	KindSchemaGenerationFailed Kind = "schema_generation_failed"
	KindRegistrationFailed     Kind = "registration_failed"
	KindNotRegistered          Kind = "not_registered"
	KindNotReady               Kind = "not_ready"
	KindInvalidCommand         Kind = "invalid_command"
	KindNoAudioResponse        Kind = "no_audio_response"
	KindTransport              Kind = "transport"
	KindRemote                 Kind = "remote"
	KindIO                     Kind = "io"
)

// Recoverable reports whether the operation may be retried without user action
// on the local files.
func (k Kind) Recoverable() bool {
	switch k {
	case KindMissingClientSecret, KindIO:
		return false
	default:
		return true
	}
}

// Error is the typed failure returned across every lifecycle and protocol
// boundary. Err may be nil for purely informational outcomes.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

var (
	ErrMissingClientSecret    = &Error{Kind: KindMissingClientSecret}
	ErrConsentFailed          = &Error{Kind: KindConsentFailed}
	ErrRefreshFailed          = &Error{Kind: KindRefreshFailed}
	ErrSchemaGenerationFailed = &Error{Kind: KindSchemaGenerationFailed}
	ErrRegistrationFailed     = &Error{Kind: KindRegistrationFailed}
	ErrNotRegistered          = &Error{Kind: KindNotRegistered}
	ErrNotReady               = &Error{Kind: KindNotReady}
	ErrInvalidCommand         = &Error{Kind: KindInvalidCommand}
	ErrNoAudioResponse        = &Error{Kind: KindNoAudioResponse}
	ErrTransport              = &Error{Kind: KindTransport}
	ErrRemote                 = &Error{Kind: KindRemote}
	ErrIO                     = &Error{Kind: KindIO}
)

func NewError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// IOError keeps the offending path in the message.
func IOError(path string, err error) *Error {
	return &Error{Kind: KindIO, Detail: path, Err: err}
}

func (e *Error) Error() string {
	parts := []string{string(e.Kind)}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches bare sentinels of the same kind, so errors.Is(err, ErrRemote)
// holds for any remote failure regardless of its detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Detail == "" && t.Err == nil
}

// KindOf returns the kind of the outermost domain error in the chain, or ""
// for errors that carry none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
