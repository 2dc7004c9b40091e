package addr

import (
	"context"
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/wippyai/hostlayer/errors"
)

func TestNative(t *testing.T) {
	families := map[Family]int{
		FamilyUnix:  unix.AF_UNIX,
		FamilyInet:  unix.AF_INET,
		FamilyInet6: unix.AF_INET6,
	}
	for f, want := range families {
		got, err := f.Native()
		if err != nil || got != want {
			t.Errorf("%s.Native() = %d, %v; want %d", f, got, err, want)
		}
	}

	types := map[SocketType]int{
		SocketStream:   unix.SOCK_STREAM,
		SocketDatagram: unix.SOCK_DGRAM,
		SocketRaw:      unix.SOCK_RAW,
	}
	for st, want := range types {
		got, err := st.Native()
		if err != nil || got != want {
			t.Errorf("%s.Native() = %d, %v; want %d", st, got, err, want)
		}
	}

	protos := map[Protocol]int{
		ProtocolIP:   unix.IPPROTO_IP,
		ProtocolTCP:  unix.IPPROTO_TCP,
		ProtocolUDP:  unix.IPPROTO_UDP,
		ProtocolIPv6: unix.IPPROTO_IPV6,
	}
	for p, want := range protos {
		got, err := p.Native()
		if err != nil || got != want {
			t.Errorf("%s.Native() = %d, %v; want %d", p, got, err, want)
		}
	}
}

func TestNative_Unknown(t *testing.T) {
	if n, err := Family(3).Native(); err == nil || n != -1 {
		t.Errorf("Family(3).Native() = %d, %v", n, err)
	}
	if _, err := SocketType(9).Native(); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("SocketType(9): %v", err)
	}
	if _, err := Protocol(99).Native(); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Protocol(99): %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustNative should panic on unknown value")
		}
	}()
	Family(42).MustNative()
}

func TestResolve_Numeric(t *testing.T) {
	ctx := context.Background()
	r := NewResolver()

	c, err := r.Resolve(ctx, Spec{Family: FamilyInet, Type: SocketStream, Protocol: ProtocolTCP, Host: "127.0.0.1", Port: "8080"}, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d", c.Len())
	}
	sa, ok := c.Next()
	if !ok {
		t.Fatal("Next returned nothing")
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok || in4.Port != 8080 || in4.Addr != [4]byte{127, 0, 0, 1} {
		t.Errorf("candidate = %s", Format(sa))
	}
	if _, ok := c.Next(); ok {
		t.Error("expected candidates to be exhausted")
	}
}

func TestResolve_IPv6Literal(t *testing.T) {
	c, err := NewResolver().Resolve(context.Background(), Spec{Family: FamilyInet6, Type: SocketDatagram, Host: "::1", Port: "53"}, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	sa, _ := c.Next()
	if got := Format(sa); got != "[::1]:53" {
		t.Errorf("Format = %q", got)
	}
}

func TestResolve_EmptyHost(t *testing.T) {
	ctx := context.Background()
	r := NewResolver()

	tests := []struct {
		name    string
		family  Family
		passive bool
		want    string
	}{
		{"inet passive", FamilyInet, true, "0.0.0.0:0"},
		{"inet active", FamilyInet, false, "127.0.0.1:0"},
		{"inet6 passive", FamilyInet6, true, "[::]:0"},
		{"inet6 active", FamilyInet6, false, "[::1]:0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := r.Resolve(ctx, Spec{Family: tt.family, Type: SocketStream}, tt.passive)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			sa, _ := c.Next()
			if got := Format(sa); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolve_ServiceName(t *testing.T) {
	c, err := NewResolver().Resolve(context.Background(), Spec{Family: FamilyInet, Type: SocketStream, Host: "127.0.0.1", Port: "http"}, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	sa, _ := c.Next()
	if sa.(*unix.SockaddrInet4).Port != 80 {
		t.Errorf("http resolved to %s", Format(sa))
	}
}

func TestResolve_Errors(t *testing.T) {
	ctx := context.Background()
	r := NewResolver()

	tests := []struct {
		name string
		spec Spec
		code int
	}{
		{"port out of range", Spec{Family: FamilyInet, Type: SocketStream, Host: "127.0.0.1", Port: "70000"}, errors.EAIService},
		{"family mismatch", Spec{Family: FamilyInet6, Type: SocketStream, Host: "127.0.0.1", Port: "1"}, errors.EAIFamily},
		{"empty unix path", Spec{Family: FamilyUnix, Type: SocketStream}, errors.EAINoName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.spec, false)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.CodeOf(err, 0); got != tt.code {
				t.Errorf("code = %d, want %d (%v)", got, tt.code, err)
			}
		})
	}

	_, err := r.Resolve(ctx, Spec{Family: 5, Type: SocketStream}, false)
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("bad family: %v", err)
	}
}

func TestResolve_Unix(t *testing.T) {
	c, err := NewResolver().Resolve(context.Background(), Spec{Family: FamilyUnix, Type: SocketStream, Host: "/tmp/x.sock"}, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := Format(c.Peek()[0]); got != "unix:/tmp/x.sock" {
		t.Errorf("Format = %q", got)
	}
	if c.Len() != 1 {
		t.Error("Peek must not consume")
	}
}

type countingLocker struct {
	sync.Mutex
	n int
}

func (l *countingLocker) Lock() {
	l.Mutex.Lock()
	l.n++
}

func TestResolve_Locker(t *testing.T) {
	l := &countingLocker{}
	r := NewResolver(WithLocker(l))

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background(), Spec{Family: FamilyInet, Type: SocketStream, Host: "127.0.0.1"}, false); err != nil {
			t.Fatal(err)
		}
	}
	if l.n != 3 {
		t.Errorf("locker acquired %d times, want 3", l.n)
	}
	if !l.TryLock() {
		t.Error("locker still held after Resolve")
	}
}

func TestCandidates_Order(t *testing.T) {
	a := &unix.SockaddrInet4{Addr: [4]byte{192, 0, 2, 1}, Port: 1}
	b := &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}, Port: 2}
	c := NewCandidates(a, b)

	if c.Len() != 2 || len(c.Peek()) != 2 {
		t.Fatalf("Len = %d", c.Len())
	}
	for i, want := range []unix.Sockaddr{a, b} {
		got, ok := c.Next()
		if !ok || got != want {
			t.Fatalf("Next #%d = %v, %v", i, got, ok)
		}
	}
	if _, ok := c.Next(); ok {
		t.Error("Next on empty queue")
	}
}
