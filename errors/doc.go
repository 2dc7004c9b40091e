// Package errors provides the structured error type of the host layer.
//
// Every fallible operation returns an *Error categorized by Phase (which
// operation failed) and Kind (the error category callers branch on). Errors
// that originate in the OS also carry Code, the errno or getaddrinfo-style
// number written into result slots for guests.
//
// Build errors with the Builder:
//
//	err := errors.New(errors.PhaseBind, errors.KindAddressInUse).
//		Code(int(unix.EADDRINUSE)).
//		Detail("127.0.0.1:8080").
//		Build()
//
// or translate an OS failure directly:
//
//	if err := unix.Listen(fd, backlog); err != nil {
//		return errors.FromErrno(errors.PhaseListen, err)
//	}
//
// Kinds match across phases through the sentinels:
//
//	if errors.Is(err, errors.ErrWouldBlock) { ... }
package errors
