// Package errors provides the sentinel error taxonomy used throughout the
// peer pool, mirroring the kind+message+cause shape used across the
// surrounding services rather than bare fmt.Errorf.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an error the way §7's error taxonomy table does.
type Kind int

const (
	ERR_UNKNOWN Kind = iota
	ERR_PARSE
	ERR_PROTOCOL
	ERR_VERIFY
	ERR_SOCKET
	ERR_RESOURCE
	ERR_BIND
	ERR_SELF_CONNECT
	ERR_INVALID_ARGUMENT
	ERR_PROCESSING
	ERR_CONFIGURATION
	ERR_SERVICE_ERROR
)

func (k Kind) String() string {
	switch k {
	case ERR_PARSE:
		return "PARSE"
	case ERR_PROTOCOL:
		return "PROTOCOL"
	case ERR_VERIFY:
		return "VERIFY"
	case ERR_SOCKET:
		return "SOCKET"
	case ERR_RESOURCE:
		return "RESOURCE"
	case ERR_BIND:
		return "BIND"
	case ERR_SELF_CONNECT:
		return "SELF_CONNECT"
	case ERR_INVALID_ARGUMENT:
		return "INVALID_ARGUMENT"
	case ERR_PROCESSING:
		return "PROCESSING"
	case ERR_CONFIGURATION:
		return "CONFIGURATION"
	case ERR_SERVICE_ERROR:
		return "SERVICE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type carried across the core; it keeps the
// taxonomy Kind alongside a wrapped cause so callers can type-switch on
// Kind without losing the original error for logging.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

// New builds an Error of the given kind, optionally wrapping cause.
func New(kind Kind, msg string, cause ...error) *Error {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &Error{kind: kind, msg: msg, cause: c}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func NewParseError(format string, args ...interface{}) *Error {
	return Newf(ERR_PARSE, format, args...)
}

func NewProtocolError(format string, args ...interface{}) *Error {
	return Newf(ERR_PROTOCOL, format, args...)
}

func NewVerifyError(format string, args ...interface{}) *Error {
	return Newf(ERR_VERIFY, format, args...)
}

func NewProcessingError(format string, args ...interface{}) *Error {
	return Newf(ERR_PROCESSING, format, args...)
}

func NewConfigurationError(format string, args ...interface{}) *Error {
	return Newf(ERR_CONFIGURATION, format, args...)
}

func NewServiceError(msg string, cause error) *Error {
	return New(ERR_SERVICE_ERROR, msg, cause)
}

// Wrap attaches a stack trace the way the rest of the pack's error
// handling does at service boundaries.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		err = pkgerrors.Unwrap(err)
	}
	return e != nil && e.kind == kind
}
