package errors

import (
	stderrors "errors"
	"net"
	"syscall"
)

// getaddrinfo-style resolver codes (glibc numbering). They are negative so
// they never collide with an errno in a result slot.
const (
	EAINoName  = -2
	EAIAgain   = -3
	EAIFail    = -4
	EAIFamily  = -6
	EAIService = -8
)

// Is, As and Join forward to the standard library so callers need only
// this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// FromErrno converts an OS errno into a structured error for phase.
func FromErrno(phase Phase, err error) *Error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if !stderrors.As(err, &errno) {
		return &Error{Phase: phase, Kind: KindIO, Cause: err}
	}
	return &Error{
		Phase: phase,
		Kind:  kindOfErrno(errno),
		Code:  int(errno),
		Cause: errno,
	}
}

// kindOfErrno is the single errno -> Kind table of the layer.
func kindOfErrno(errno syscall.Errno) Kind {
	switch errno {
	case syscall.EINVAL, syscall.EAFNOSUPPORT, syscall.EPROTONOSUPPORT,
		syscall.EPROTOTYPE, syscall.ESOCKTNOSUPPORT, syscall.EOPNOTSUPP,
		syscall.EBADF, syscall.ENOTSOCK, syscall.EDESTADDRREQ,
		syscall.ENOTCONN, syscall.EISCONN, syscall.EFAULT, syscall.ENODEV,
		syscall.EOVERFLOW:
		return KindInvalidArgument
	case syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM:
		return KindResourceExhausted
	case syscall.EAGAIN, syscall.EINPROGRESS, syscall.EALREADY:
		return KindWouldBlock
	case syscall.EACCES, syscall.EPERM:
		return KindPermission
	case syscall.EADDRINUSE, syscall.EADDRNOTAVAIL:
		return KindAddressInUse
	case syscall.ECONNREFUSED:
		return KindRefused
	case syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.ENETDOWN,
		syscall.ETIMEDOUT:
		return KindUnreachable
	case syscall.EPIPE, syscall.ECONNRESET, syscall.ECONNABORTED,
		syscall.ESHUTDOWN:
		return KindClosed
	case syscall.ENOENT, syscall.ENOTDIR:
		return KindNotFound
	default:
		return KindIO
	}
}

// FromResolve converts a resolver failure into a structured error carrying
// a getaddrinfo-style code.
func FromResolve(err error) *Error {
	if err == nil {
		return nil
	}
	e := &Error{Phase: PhaseResolve, Cause: err}

	var dnsErr *net.DNSError
	var addrErr *net.AddrError
	switch {
	case stderrors.As(err, &dnsErr):
		switch {
		case dnsErr.IsNotFound:
			e.Kind, e.Code = KindNotFound, EAINoName
		case dnsErr.IsTemporary || dnsErr.IsTimeout:
			e.Kind, e.Code = KindUnreachable, EAIAgain
		default:
			e.Kind, e.Code = KindUnreachable, EAIFail
		}
	case stderrors.As(err, &addrErr):
		e.Kind, e.Code = KindInvalidArgument, EAIService
	default:
		e.Kind, e.Code = KindNotFound, EAINoName
	}
	return e
}
