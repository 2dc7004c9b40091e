package sockets

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/wippyai/hostlayer/errors"
)

func closeFD(fd int) error {
	// close is not retried on EINTR: the descriptor is gone either way.
	if err := unix.Close(fd); err != nil {
		return errors.FromErrno(errors.PhaseClose, err)
	}
	return nil
}

func readFD(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return 0, errors.FromErrno(errors.PhaseIO, err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// writeFD sends all of p. It returns KindWouldBlock only when nothing was
// written; after partial progress it waits for writability until drained.
func writeFD(fd int, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.SendmsgN(fd, p[written:], nil, nil, msgNoSignal)
		switch {
		case err == nil:
			written += n
		case err == unix.EINTR:
		case err == unix.EAGAIN:
			if written == 0 {
				return 0, errors.FromErrno(errors.PhaseIO, err)
			}
			if err := waitFD(fd, unix.POLLOUT); err != nil {
				return written, err
			}
		default:
			return written, errors.FromErrno(errors.PhaseIO, err)
		}
	}
	return written, nil
}

// waitFD blocks until fd reports one of events, an error or hangup.
func waitFD(fd int, events int16) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.FromErrno(errors.PhaseIO, err)
		}
		return nil
	}
}
