package addr

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/wippyai/hostlayer/errors"
)

// Family is the caller-side address family number.
type Family int32

const (
	FamilyUnix  Family = 1
	FamilyInet  Family = 2
	FamilyInet6 Family = 10
)

// SocketType is the caller-side socket type number.
type SocketType int32

const (
	SocketStream   SocketType = 1
	SocketDatagram SocketType = 2
	SocketRaw      SocketType = 3
)

// Protocol is the caller-side protocol number.
type Protocol int32

const (
	ProtocolIP   Protocol = 0 // let the OS pick
	ProtocolTCP  Protocol = 6
	ProtocolUDP  Protocol = 17
	ProtocolIPv6 Protocol = 41
)

// Native returns the OS address family.
func (f Family) Native() (int, error) {
	switch f {
	case FamilyUnix:
		return unix.AF_UNIX, nil
	case FamilyInet:
		return unix.AF_INET, nil
	case FamilyInet6:
		return unix.AF_INET6, nil
	}
	return -1, errors.InvalidEnum(errors.PhaseSocket, "family", int32(f))
}

// MustNative is Native for callers that treat a bad value as a programming error.
func (f Family) MustNative() int {
	n, err := f.Native()
	if err != nil {
		panic(err)
	}
	return n
}

func (f Family) String() string {
	switch f {
	case FamilyUnix:
		return "unix"
	case FamilyInet:
		return "inet"
	case FamilyInet6:
		return "inet6"
	}
	return fmt.Sprintf("family(%d)", int32(f))
}

// Native returns the OS socket type.
func (t SocketType) Native() (int, error) {
	switch t {
	case SocketStream:
		return unix.SOCK_STREAM, nil
	case SocketDatagram:
		return unix.SOCK_DGRAM, nil
	case SocketRaw:
		return unix.SOCK_RAW, nil
	}
	return -1, errors.InvalidEnum(errors.PhaseSocket, "socket type", int32(t))
}

func (t SocketType) MustNative() int {
	n, err := t.Native()
	if err != nil {
		panic(err)
	}
	return n
}

func (t SocketType) String() string {
	switch t {
	case SocketStream:
		return "stream"
	case SocketDatagram:
		return "datagram"
	case SocketRaw:
		return "raw"
	}
	return fmt.Sprintf("socktype(%d)", int32(t))
}

// Native returns the OS protocol number.
func (p Protocol) Native() (int, error) {
	switch p {
	case ProtocolIP:
		return unix.IPPROTO_IP, nil
	case ProtocolTCP:
		return unix.IPPROTO_TCP, nil
	case ProtocolUDP:
		return unix.IPPROTO_UDP, nil
	case ProtocolIPv6:
		return unix.IPPROTO_IPV6, nil
	}
	return -1, errors.InvalidEnum(errors.PhaseSocket, "protocol", int32(p))
}

func (p Protocol) MustNative() int {
	n, err := p.Native()
	if err != nil {
		panic(err)
	}
	return n
}

func (p Protocol) String() string {
	switch p {
	case ProtocolIP:
		return "ip"
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolIPv6:
		return "ipv6"
	}
	return fmt.Sprintf("protocol(%d)", int32(p))
}

// Triple translates all three enumerations at once.
func Triple(f Family, t SocketType, p Protocol) (family, socktype, proto int, err error) {
	if family, err = f.Native(); err != nil {
		return -1, -1, -1, err
	}
	if socktype, err = t.Native(); err != nil {
		return -1, -1, -1, err
	}
	if proto, err = p.Native(); err != nil {
		return -1, -1, -1, err
	}
	return family, socktype, proto, nil
}
