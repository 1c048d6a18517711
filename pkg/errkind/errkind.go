package errkind

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

type Kind string

const (
	InvalidArgument Kind = "invalid_argument"
	NotFound        Kind = "not_found"
	Conflict        Kind = "conflict"
	Timeout         Kind = "timeout"
	Transient       Kind = "transient"
	Fatal           Kind = "fatal"
)

var statusCodes = map[Kind]int{
	InvalidArgument: http.StatusBadRequest,
	NotFound:        http.StatusNotFound,
	Conflict:        http.StatusConflict,
	Timeout:         http.StatusGatewayTimeout,
	Transient:       http.StatusServiceUnavailable,
	Fatal:           http.StatusInternalServerError,
}

func (k Kind) StatusCode() int {
	if code, ok := statusCodes[k]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Error is a classified failure. It keeps the cause for errors.Is / errors.As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	meta    map[string]any
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err stays nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) AddMetaValue(key string, value any) *Error {
	if e.meta == nil {
		e.meta = map[string]any{}
	}
	e.meta[key] = value
	return e
}

// ToHTTPError renders the error for the ops server error handler.
func (e *Error) ToHTTPError() *httperror.HTTPError {
	herr := httperror.NewHTTPError(e.Kind.StatusCode(), e.Error()).AddMetaValue("kind", string(e.Kind))
	for k, v := range e.meta {
		herr = herr.AddMetaValue(k, v)
	}
	return herr
}

// Of recovers the kind of err. Context expiry and cancellation count as Timeout; anything
// unclassified is Fatal.
func Of(err error) Kind {
	if err == nil {
		return ""
	}

	var kerr *Error
	if errors.As(err, &kerr) {
		// a deadline inside a classified error still reads as a timeout
		if kerr.Kind == Transient && isContextErr(kerr.Err) {
			return Timeout
		}
		return kerr.Kind
	}

	if isContextErr(err) {
		return Timeout
	}

	if httperror.IsHTTPError(err) {
		return fromStatusCode(httperror.GetStatusCode(err))
	}

	return Fatal
}

func Is(err error, kind Kind) bool {
	return err != nil && Of(err) == kind
}

// IsRetryable reports whether a failed item may succeed on another attempt.
func IsRetryable(err error) bool {
	switch Of(err) {
	case Timeout, Transient:
		return true
	}
	return false
}

// ToHTTPError converts any error for an HTTP response.
func ToHTTPError(err error) *httperror.HTTPError {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.ToHTTPError()
	}
	if httperror.IsHTTPError(err) {
		return httperror.ToHTTPError(err)
	}
	kind := Of(err)
	return httperror.NewHTTPError(kind.StatusCode(), err.Error()).AddMetaValue("kind", string(kind))
}

// ExitCode maps a kind to a CLI exit status: 2 for caller mistakes, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Of(err) {
	case InvalidArgument, NotFound, Conflict:
		return 2
	}
	return 1
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func fromStatusCode(code int) Kind {
	for kind, status := range statusCodes {
		if status == code {
			return kind
		}
	}
	if code >= 400 && code < 500 {
		return InvalidArgument
	}
	return Fatal
}
