package addr

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/wippyai/hostlayer/errors"
)

// Resolver turns a Spec into candidate socket addresses.
type Resolver struct {
	net    *net.Resolver
	locker sync.Locker
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithNetResolver replaces the lookup backend (net.DefaultResolver by default).
func WithNetResolver(r *net.Resolver) ResolverOption {
	return func(res *Resolver) {
		res.net = r
	}
}

// WithLocker serializes every lookup under l. Pass the process-wide lock
// when the platform resolver is not thread-safe. The locker is not
// reentrant-safe: callers must not resolve while already holding it.
func WithLocker(l sync.Locker) ResolverOption {
	return func(res *Resolver) {
		res.locker = l
	}
}

// NewResolver creates a resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{net: net.DefaultResolver}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultResolver = NewResolver()

// DefaultResolver returns the shared resolver with no serialization.
func DefaultResolver() *Resolver {
	return defaultResolver
}

// Resolve returns the candidates for spec in resolver order. passive selects
// wildcard addresses for an empty host, as for a bind; otherwise an empty
// host means loopback.
func (r *Resolver) Resolve(ctx context.Context, spec Spec, passive bool) (*Candidates, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if r.locker != nil {
		r.locker.Lock()
		defer r.locker.Unlock()
	}

	c := NewCandidates()

	if spec.Family == FamilyUnix {
		if spec.Host == "" {
			return nil, errors.New(errors.PhaseResolve, errors.KindInvalidArgument).
				Code(errors.EAINoName).
				Detail("unix socket path is empty").
				Build()
		}
		c.push(&unix.SockaddrUnix{Name: spec.Host})
		return c, nil
	}

	port, err := r.port(ctx, spec)
	if err != nil {
		return nil, err
	}

	ips, err := r.hosts(ctx, spec, passive)
	if err != nil {
		return nil, err
	}

	for _, ip := range ips {
		sa, err := sockaddr(spec.Family, ip, port)
		if err != nil {
			return nil, err
		}
		c.push(sa)
	}
	return c, nil
}

func (r *Resolver) port(ctx context.Context, spec Spec) (int, error) {
	if spec.Port == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(spec.Port, 10, 16); err == nil {
		return int(n), nil
	} else if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
		return 0, errors.New(errors.PhaseResolve, errors.KindInvalidArgument).
			Code(errors.EAIService).
			Detail("port %q out of range", spec.Port).
			Build()
	}

	n, err := r.net.LookupPort(ctx, spec.serviceNetwork(), spec.Port)
	if err != nil {
		return 0, errors.FromResolve(err)
	}
	return n, nil
}

func (r *Resolver) hosts(ctx context.Context, spec Spec, passive bool) ([]netip.Addr, error) {
	network, err := spec.ipNetwork()
	if err != nil {
		return nil, err
	}

	if spec.Host == "" {
		switch {
		case spec.Family == FamilyInet && passive:
			return []netip.Addr{netip.IPv4Unspecified()}, nil
		case spec.Family == FamilyInet:
			return []netip.Addr{netip.AddrFrom4([4]byte{127, 0, 0, 1})}, nil
		case passive:
			return []netip.Addr{netip.IPv6Unspecified()}, nil
		default:
			return []netip.Addr{netip.IPv6Loopback()}, nil
		}
	}

	if ip, err := netip.ParseAddr(spec.Host); err == nil {
		if !familyMatches(spec.Family, ip) {
			return nil, errors.New(errors.PhaseResolve, errors.KindInvalidArgument).
				Code(errors.EAIFamily).
				Detail("address %s is not %s", spec.Host, spec.Family).
				Build()
		}
		return []netip.Addr{ip}, nil
	}

	ips, err := r.net.LookupNetIP(ctx, network, spec.Host)
	if err != nil {
		return nil, errors.FromResolve(err)
	}
	if len(ips) == 0 {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Code(errors.EAINoName).
			Detail("no %s address for %q", spec.Family, spec.Host).
			Build()
	}
	return ips, nil
}

func familyMatches(f Family, ip netip.Addr) bool {
	if f == FamilyInet {
		return ip.Is4() || ip.Is4In6()
	}
	return ip.Is6()
}

func sockaddr(f Family, ip netip.Addr, port int) (unix.Sockaddr, error) {
	if f == FamilyInet {
		return &unix.SockaddrInet4{Port: port, Addr: ip.Unmap().As4()}, nil
	}
	sa := &unix.SockaddrInet6{Port: port, Addr: ip.As16()}
	if zone := ip.Zone(); zone != "" {
		id, err := zoneIndex(zone)
		if err != nil {
			return nil, errors.New(errors.PhaseResolve, errors.KindInvalidArgument).
				Code(errors.EAINoName).
				Cause(err).
				Detail("unknown zone %q", zone).
				Build()
		}
		sa.ZoneId = id
	}
	return sa, nil
}

func zoneIndex(zone string) (uint32, error) {
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n), nil
	}
	ifi, err := net.InterfaceByName(zone)
	if err != nil {
		return 0, err
	}
	return uint32(ifi.Index), nil
}
