package addr

import (
	"net/netip"
	"strconv"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// Candidates holds resolved socket addresses in resolver order. Bind and
// connect consume them front to back until one succeeds.
type Candidates struct {
	q *queue.Queue
}

// NewCandidates returns a queue holding sas in the given order.
func NewCandidates(sas ...unix.Sockaddr) *Candidates {
	c := &Candidates{q: queue.New()}
	for _, sa := range sas {
		c.push(sa)
	}
	return c
}

func (c *Candidates) push(sa unix.Sockaddr) {
	c.q.Add(sa)
}

// Len returns the number of candidates not yet taken.
func (c *Candidates) Len() int {
	return c.q.Length()
}

// Next removes and returns the front candidate.
func (c *Candidates) Next() (unix.Sockaddr, bool) {
	if c.q.Length() == 0 {
		return nil, false
	}
	return c.q.Remove().(unix.Sockaddr), true
}

// Peek returns the remaining candidates without consuming them.
func (c *Candidates) Peek() []unix.Sockaddr {
	out := make([]unix.Sockaddr, c.q.Length())
	for i := range out {
		out[i] = c.q.Get(i).(unix.Sockaddr)
	}
	return out
}

// Format renders a socket address for logs and the console.
func Format(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrInet6:
		ip := netip.AddrFrom16(a.Addr)
		if a.ZoneId != 0 {
			ip = ip.WithZone(strconv.FormatUint(uint64(a.ZoneId), 10))
		}
		return netip.AddrPortFrom(ip, uint16(a.Port)).String()
	case *unix.SockaddrUnix:
		return "unix:" + a.Name
	case nil:
		return "<nil>"
	}
	return "<unknown>"
}
