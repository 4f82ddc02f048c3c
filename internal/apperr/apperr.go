// File: internal/apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so that callers can tell validation problems,
// state conflicts, and store outages apart without string matching.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindSanitization
	KindNotFound
	KindConflict
	KindUnavailable
	KindExecution
	KindUnauthenticated
	KindForbidden
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:        "internal",
	KindValidation:      "validation",
	KindSanitization:    "sanitization",
	KindNotFound:        "not_found",
	KindConflict:        "conflict",
	KindUnavailable:     "unavailable",
	KindExecution:       "execution",
	KindUnauthenticated: "unauthenticated",
	KindForbidden:       "forbidden",
	KindRateLimited:     "rate_limited",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Status returns the HTTP status code conventionally associated with the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindSanitization:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the classified error carried across package boundaries.
// Message is safe to show to callers; Detail is optional extra context.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind when the target is a bare *Error{Kind: k}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinel errors for the specific conditions callers branch on.
var (
	ErrNoOpChange         = &Error{Kind: KindValidation, Message: "no properties to update"}
	ErrAlreadyReviewed    = &Error{Kind: KindConflict, Message: "proposal has already been reviewed"}
	ErrInvalidTransition  = &Error{Kind: KindConflict, Message: "invalid proposal state transition"}
	ErrNoMatchingEntries  = &Error{Kind: KindConflict, Message: "no audit entries match the squash scope"}
	ErrUnsupported        = &Error{Kind: KindInternal, Message: "operation not supported by this store"}
	ErrStoreNotConfigured = &Error{Kind: KindUnavailable, Message: "graph store is not configured"}
)

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a malformed request: bad shape, missing field, oversize batch.
func Validation(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

// Sanitization reports an identifier that failed the allowed grammar.
func Sanitization(op, format string, args ...any) *Error {
	return newf(KindSanitization, op, format, args...)
}

func NotFound(op, format string, args ...any) *Error {
	return newf(KindNotFound, op, format, args...)
}

func Conflict(op, format string, args ...any) *Error {
	return newf(KindConflict, op, format, args...)
}

func Forbidden(op, format string, args ...any) *Error {
	return newf(KindForbidden, op, format, args...)
}

func Unauthenticated(op, format string, args ...any) *Error {
	return newf(KindUnauthenticated, op, format, args...)
}

// Unavailable wraps a connectivity failure against a backing store.
func Unavailable(op string, err error) *Error {
	return &Error{Kind: KindUnavailable, Op: op, Message: "store unavailable", Err: err}
}

// Execution wraps a failure raised by a reachable store while running a statement.
func Execution(op string, err error) *Error {
	return &Error{Kind: KindExecution, Op: op, Message: "statement execution failed", Err: err}
}

// Wrap attaches an operation name and kind to an arbitrary error.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to a status code.
func HTTPStatus(err error) int {
	return KindOf(err).Status()
}

// Public splits err into the caller-facing message and optional detail.
func Public(err error) (message, detail string) {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error", ""
	}
	message = e.Message
	if message == "" {
		message = e.Kind.String()
	}
	detail = e.Detail
	if detail == "" && e.Err != nil && e.Kind != KindInternal {
		detail = e.Err.Error()
	}
	return message, detail
}
