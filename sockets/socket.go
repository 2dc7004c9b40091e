package sockets

import (
	"io"
	"sync"

	"github.com/wippyai/hostlayer/errors"
)

// Descriptor is an OS socket descriptor.
type Descriptor int

// Invalid is the descriptor of a closed or released socket.
const Invalid Descriptor = -1

// Socket owns one OS descriptor. The zero value is not usable; sockets come
// from Manager operations or Adopt.
//
// Close releases the descriptor exactly once. Concurrent Read and Write on
// one Socket are allowed; Close concurrent with I/O is the caller's race.
type Socket struct {
	mu sync.Mutex
	fd int
}

var _ io.ReadWriteCloser = (*Socket)(nil)

func newSocket(fd int) *Socket {
	return &Socket{fd: fd}
}

// Adopt takes ownership of an already open descriptor.
func Adopt(fd Descriptor) *Socket {
	return newSocket(int(fd))
}

// Descriptor returns the OS descriptor, or Invalid once closed or released.
func (s *Socket) Descriptor() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Descriptor(s.fd)
}

// Release transfers the descriptor out of s. Afterwards s is empty and the
// caller is responsible for closing the descriptor.
func (s *Socket) Release() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd := s.fd
	s.fd = -1
	return Descriptor(fd)
}

// Close releases the descriptor. A second Close returns KindClosed.
func (s *Socket) Close() error {
	s.mu.Lock()
	fd := s.fd
	s.fd = -1
	s.mu.Unlock()

	if fd < 0 {
		return errors.Closed(errors.PhaseClose, "socket")
	}
	return closeFD(fd)
}

// Read implements io.Reader. End of stream is (0, io.EOF).
func (s *Socket) Read(p []byte) (int, error) {
	fd, err := s.live(errors.PhaseIO)
	if err != nil {
		return 0, err
	}
	return readFD(fd, p)
}

// Write writes all of p. See Manager.Write for the non-blocking contract.
func (s *Socket) Write(p []byte) (int, error) {
	fd, err := s.live(errors.PhaseIO)
	if err != nil {
		return 0, err
	}
	return writeFD(fd, p)
}

func (s *Socket) live(phase errors.Phase) (int, error) {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()
	if fd < 0 {
		return -1, errors.Closed(phase, "socket")
	}
	return fd, nil
}
