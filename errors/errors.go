package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which layer operation produced the error
type Phase string

const (
	PhaseSocket  Phase = "socket"  // descriptor creation
	PhaseResolve Phase = "resolve" // host/port resolution
	PhaseBind    Phase = "bind"    // bind to a local address
	PhaseListen  Phase = "listen"  // mark passive
	PhaseAccept  Phase = "accept"  // accept a connection
	PhaseConnect Phase = "connect" // connect to a remote address
	PhaseOption  Phase = "option"  // blocking mode, socket options
	PhasePeer    Phase = "peer"    // peer introspection
	PhaseIO      Phase = "io"      // read/write
	PhaseClose   Phase = "close"   // descriptor release
	PhaseMap     Phase = "mmap"    // memory mapping
	PhaseUnmap   Phase = "munmap"  // mapping release
	PhaseFile    Phase = "file"    // file and directory calls
	PhaseThread  Phase = "thread"  // thread lifecycle
	PhaseClock   Phase = "clock"   // monotonic clock
	PhaseHost    Phase = "host"    // guest ABI marshaling
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindResourceExhausted Kind = "resource_exhausted"
	KindNotFound          Kind = "not_found"
	KindUnreachable       Kind = "unreachable"
	KindClosed            Kind = "closed"
	KindWouldBlock        Kind = "would_block"
	KindRefused           Kind = "refused"
	KindAddressInUse      Kind = "address_in_use"
	KindPermission        Kind = "permission"
	KindIO                Kind = "io"
)

// Error is the structured error type returned by every fallible operation
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	// Code is the OS-level number reported through result slots: an errno
	// (positive) or a getaddrinfo-style code (negative). Zero when the
	// failure was detected by the layer itself.
	Code int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Code sets the OS error code
func (b *Builder) Code(code int) *Builder {
	b.err.Code = code
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is matching by kind regardless of phase.
var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrClosed            = &Error{Kind: KindClosed}
	ErrWouldBlock        = &Error{Kind: KindWouldBlock}
)

// InvalidArgument creates an invalid argument error
func InvalidArgument(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindInvalidArgument).Detail(detail, args...).Build()
}

// InvalidEnum creates an error for an unrecognized enumeration value
func InvalidEnum(phase Phase, enumType string, value any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Detail: fmt.Sprintf("invalid %s value %v", enumType, value),
	}
}

// Closed creates an error for use of a released handle
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " already released",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what string, id any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %v not found", what, id),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// CodeOf returns the OS error code carried by err, or fallback when err
// carries none.
func CodeOf(err error, fallback int) int {
	var e *Error
	if As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return fallback
}

// KindOf returns the kind of err, or KindIO for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindIO
}
