package sockets

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/hostlayer/addr"
	"github.com/wippyai/hostlayer/errors"
)

// Mode selects blocking behavior for SetBlocking.
type Mode int32

const (
	ModeBlocking    Mode = 0
	ModeNonBlocking Mode = 1
)

// Manager performs socket operations. It holds only configuration; all
// state lives in the returned Sockets, so one Manager may be shared by any
// number of goroutines.
type Manager struct {
	resolver  *addr.Resolver
	reuseAddr bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithResolver sets the resolver used by Bind and Connect.
func WithResolver(r *addr.Resolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithReuseAddr controls SO_REUSEADDR on bound inet stream sockets.
// Enabled by default.
func WithReuseAddr(enabled bool) Option {
	return func(m *Manager) {
		m.reuseAddr = enabled
	}
}

// NewManager creates a socket manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		resolver:  addr.DefaultResolver(),
		reuseAddr: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create opens an unbound, blocking, close-on-exec socket.
func (m *Manager) Create(family addr.Family, typ addr.SocketType, proto addr.Protocol) (*Socket, error) {
	f, t, p, err := addr.Triple(family, typ, proto)
	if err != nil {
		return nil, err
	}
	fd, err := socket(f, t, p)
	if err != nil {
		return nil, errors.FromErrno(errors.PhaseSocket, err)
	}
	return newSocket(fd), nil
}

// Bind resolves spec passively and binds a new socket to the first
// candidate that accepts it.
func (m *Manager) Bind(ctx context.Context, spec addr.Spec) (*Socket, error) {
	cands, err := m.resolver.Resolve(ctx, spec, true)
	if err != nil {
		return nil, err
	}

	return m.bindFirst(cands, spec)
}

// bindFirst binds a new socket to the first of cands that accepts it.
func (m *Manager) bindFirst(cands *addr.Candidates, spec addr.Spec) (*Socket, error) {
	reuse := m.reuseAddr && spec.Type == addr.SocketStream && spec.Family != addr.FamilyUnix

	return m.firstOf(cands, spec, errors.PhaseBind, func(fd int, sa unix.Sockaddr) error {
		if reuse {
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				return errors.FromErrno(errors.PhaseOption, err)
			}
		}
		if err := ignoringEINTR(func() error { return unix.Bind(fd, sa) }); err != nil {
			return errors.FromErrno(errors.PhaseBind, err)
		}
		return nil
	})
}

// Connect resolves spec and connects a new socket to the first candidate
// that answers.
func (m *Manager) Connect(ctx context.Context, spec addr.Spec) (*Socket, error) {
	cands, err := m.resolver.Resolve(ctx, spec, false)
	if err != nil {
		return nil, err
	}
	return m.firstOf(cands, spec, errors.PhaseConnect, connect)
}

// firstOf creates a socket per candidate and applies fn until one succeeds.
// Sockets of failed candidates are closed before the next attempt.
func (m *Manager) firstOf(cands *addr.Candidates, spec addr.Spec, phase errors.Phase, fn func(int, unix.Sockaddr) error) (*Socket, error) {
	var lastErr error = errors.New(phase, errors.KindNotFound).
		Code(errors.EAINoName).
		Detail("no address for %s", spec).
		Build()

	for {
		sa, ok := cands.Next()
		if !ok {
			return nil, lastErr
		}

		s, err := m.Create(spec.Family, spec.Type, spec.Protocol)
		if err != nil {
			return nil, err
		}

		if err := fn(int(s.Descriptor()), sa); err != nil {
			Logger().Debug("candidate failed",
				zap.String("phase", string(phase)),
				zap.String("address", addr.Format(sa)),
				zap.Error(err))
			s.Close()
			lastErr = err
			continue
		}

		Logger().Debug("socket ready",
			zap.String("phase", string(phase)),
			zap.String("address", addr.Format(sa)),
			zap.Int("fd", int(s.Descriptor())))
		return s, nil
	}
}

// connect connects fd to sa. An interrupted connect keeps going in the
// kernel, so wait for it and collect the outcome from SO_ERROR.
func connect(fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == unix.EINTR {
		err = waitConnect(fd)
	}
	if err != nil {
		return errors.FromErrno(errors.PhaseConnect, err)
	}
	return nil
}

func waitConnect(fd int) error {
	if err := waitFD(fd, unix.POLLOUT); err != nil {
		return err
	}
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soErr != 0 {
		return unix.Errno(soErr)
	}
	return nil
}

// Listen marks s passive. backlog is passed to the OS unchanged.
func (m *Manager) Listen(s *Socket, backlog int) error {
	fd, err := s.live(errors.PhaseListen)
	if err != nil {
		return err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return errors.FromErrno(errors.PhaseListen, err)
	}
	return nil
}

// Accept takes one pending connection. It blocks iff s is blocking; a
// non-blocking s with nothing pending yields KindWouldBlock.
func (m *Manager) Accept(s *Socket) (*Socket, error) {
	fd, err := s.live(errors.PhaseAccept)
	if err != nil {
		return nil, err
	}
	for {
		nfd, _, err := accept(fd)
		if err == unix.EINTR || err == unix.ECONNABORTED {
			continue
		}
		if err != nil {
			return nil, errors.FromErrno(errors.PhaseAccept, err)
		}
		return newSocket(nfd), nil
	}
}

// SetBlocking switches s between blocking and non-blocking mode.
func (m *Manager) SetBlocking(s *Socket, mode Mode) error {
	if mode != ModeBlocking && mode != ModeNonBlocking {
		return errors.InvalidEnum(errors.PhaseOption, "blocking mode", int32(mode))
	}
	fd, err := s.live(errors.PhaseOption)
	if err != nil {
		return err
	}
	if err := unix.SetNonblock(fd, mode == ModeNonBlocking); err != nil {
		return errors.FromErrno(errors.PhaseOption, err)
	}
	return nil
}

// PeerAddress writes the peer's raw address into buf: 4 bytes for IPv4,
// 16 for IPv6. Non-IP peers and short buffers return -1.
func (m *Manager) PeerAddress(s *Socket, buf []byte) (int, error) {
	fd, err := s.live(errors.PhasePeer)
	if err != nil {
		return -1, err
	}
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return -1, errors.FromErrno(errors.PhasePeer, err)
	}

	var raw []byte
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		raw = a.Addr[:]
	case *unix.SockaddrInet6:
		raw = a.Addr[:]
	default:
		return -1, errors.InvalidArgument(errors.PhasePeer, "peer %s is not an IP address", addr.Format(sa))
	}

	if len(buf) < len(raw) {
		return -1, errors.InvalidArgument(errors.PhasePeer, "buffer holds %d bytes, need %d", len(buf), len(raw))
	}
	return copy(buf, raw), nil
}

// PeerPort returns the peer's port, or 0 for non-IP peers.
func (m *Manager) PeerPort(s *Socket) (uint16, error) {
	fd, err := s.live(errors.PhasePeer)
	if err != nil {
		return 0, err
	}
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return 0, errors.FromErrno(errors.PhasePeer, err)
	}
	return portOf(sa), nil
}

// LocalPort returns the port s is bound to, or 0 for non-IP sockets.
func (m *Manager) LocalPort(s *Socket) (uint16, error) {
	fd, err := s.live(errors.PhasePeer)
	if err != nil {
		return 0, err
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, errors.FromErrno(errors.PhasePeer, err)
	}
	return portOf(sa), nil
}

func portOf(sa unix.Sockaddr) uint16 {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return uint16(a.Port)
	case *unix.SockaddrInet6:
		return uint16(a.Port)
	}
	return 0
}

// Read reads up to len(buf) bytes. End of stream is (0, io.EOF); a
// non-blocking socket with no data yields KindWouldBlock. Datagrams larger
// than buf are truncated.
func (m *Manager) Read(s *Socket, buf []byte) (int, error) {
	return s.Read(buf)
}

// Write sends all of buf, looping over short writes. On a non-blocking
// socket KindWouldBlock means nothing was sent and the whole buffer may be
// retried; once any byte is sent the call waits until the rest is out.
func (m *Manager) Write(s *Socket, buf []byte) error {
	_, err := s.Write(buf)
	return err
}

// Close releases s. A second Close returns KindClosed.
func (m *Manager) Close(s *Socket) error {
	return s.Close()
}

func ignoringEINTR(fn func() error) error {
	for {
		if err := fn(); err != unix.EINTR {
			return err
		}
	}
}
