package addr

import (
	"net"

	"github.com/wippyai/hostlayer/errors"
)

// Spec is one bind/connect request: the enumerations plus textual host and
// port. Host and port may be numeric or symbolic; for FamilyUnix the host is
// the socket path and the port is ignored.
type Spec struct {
	Host     string
	Port     string
	Family   Family
	Type     SocketType
	Protocol Protocol
}

// Validate checks that every enumeration translates.
func (s Spec) Validate() error {
	_, _, _, err := Triple(s.Family, s.Type, s.Protocol)
	return err
}

func (s Spec) String() string {
	if s.Family == FamilyUnix {
		return "unix:" + s.Host
	}
	return net.JoinHostPort(s.Host, s.Port)
}

// serviceNetwork is the network name used to look up a symbolic port.
func (s Spec) serviceNetwork() string {
	if s.Type == SocketDatagram || s.Protocol == ProtocolUDP {
		return "udp"
	}
	return "tcp"
}

// ipNetwork is the network name used to look up host addresses.
func (s Spec) ipNetwork() (string, error) {
	switch s.Family {
	case FamilyInet:
		return "ip4", nil
	case FamilyInet6:
		return "ip6", nil
	}
	return "", errors.New(errors.PhaseResolve, errors.KindInvalidArgument).
		Code(errors.EAIFamily).
		Detail("family %s has no IP addresses", s.Family).
		Build()
}
