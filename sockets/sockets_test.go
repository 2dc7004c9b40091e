package sockets

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wippyai/hostlayer/addr"
	"github.com/wippyai/hostlayer/errors"
	"github.com/wippyai/hostlayer/thread"
)

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("descriptor counting needs /proc/self/fd")
	}
	return len(entries)
}

func tcp4(host, port string) addr.Spec {
	return addr.Spec{Family: addr.FamilyInet, Type: addr.SocketStream, Protocol: addr.ProtocolTCP, Host: host, Port: port}
}

// listener binds 127.0.0.1 on an ephemeral port and listens.
func listener(t *testing.T, m *Manager) (*Socket, uint16) {
	t.Helper()
	ln, err := m.Bind(context.Background(), tcp4("127.0.0.1", "0"))
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	if err := m.Listen(ln, 16); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port, err := m.LocalPort(ln)
	if err != nil || port == 0 {
		t.Fatalf("LocalPort = %d, %v", port, err)
	}
	return ln, port
}

// pair returns a connected client and the accepted server side.
func pair(t *testing.T, m *Manager) (client, server *Socket) {
	t.Helper()
	ln, port := listener(t, m)
	client, err := m.Connect(context.Background(), tcp4("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	server, err = m.Accept(ln)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return client, server
}

func TestCreate(t *testing.T) {
	m := NewManager()

	tests := []struct {
		name   string
		family addr.Family
		typ    addr.SocketType
		proto  addr.Protocol
		kind   errors.Kind
	}{
		{"inet stream tcp", addr.FamilyInet, addr.SocketStream, addr.ProtocolTCP, ""},
		{"inet datagram udp", addr.FamilyInet, addr.SocketDatagram, addr.ProtocolUDP, ""},
		{"inet stream default", addr.FamilyInet, addr.SocketStream, addr.ProtocolIP, ""},
		{"unix stream", addr.FamilyUnix, addr.SocketStream, addr.ProtocolIP, ""},
		{"unix datagram", addr.FamilyUnix, addr.SocketDatagram, addr.ProtocolIP, ""},
		{"bad family", addr.Family(7), addr.SocketStream, addr.ProtocolIP, errors.KindInvalidArgument},
		{"bad type", addr.FamilyInet, addr.SocketType(0), addr.ProtocolIP, errors.KindInvalidArgument},
		{"bad protocol", addr.FamilyInet, addr.SocketStream, addr.Protocol(5), errors.KindInvalidArgument},
		{"stream over udp", addr.FamilyInet, addr.SocketStream, addr.ProtocolUDP, errors.KindInvalidArgument},
	}

	before := openFDs(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := m.Create(tt.family, tt.typ, tt.proto)
			if tt.kind != "" {
				if errors.KindOf(err) != tt.kind {
					t.Fatalf("expected %s, got %v", tt.kind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if s.Descriptor() < 0 {
				t.Fatal("invalid descriptor")
			}
			flags, err := unix.FcntlInt(uintptr(s.Descriptor()), unix.F_GETFD, 0)
			if err != nil || flags&unix.FD_CLOEXEC == 0 {
				t.Errorf("descriptor not close-on-exec: %d, %v", flags, err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	}
	if after := openFDs(t); after != before {
		t.Errorf("descriptor leak: %d before, %d after", before, after)
	}
}

func TestBindListenClose_NoLeak(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()

	specs := []addr.Spec{
		tcp4("127.0.0.1", "0"),
		tcp4("", "0"),
		{Family: addr.FamilyInet, Type: addr.SocketDatagram, Protocol: addr.ProtocolUDP, Host: "127.0.0.1", Port: "0"},
		{Family: addr.FamilyUnix, Type: addr.SocketStream, Host: filepath.Join(dir, "s.sock")},
	}

	before := openFDs(t)
	for _, spec := range specs {
		s, err := m.Bind(context.Background(), spec)
		if err != nil {
			t.Fatalf("Bind(%s): %v", spec, err)
		}
		if spec.Type == addr.SocketStream {
			if err := m.Listen(s, 0); err != nil {
				t.Fatalf("Listen(%s): %v", spec, err)
			}
		}
		if err := m.Close(s); err != nil {
			t.Fatalf("Close(%s): %v", spec, err)
		}
	}
	if after := openFDs(t); after != before {
		t.Errorf("descriptor leak: %d before, %d after", before, after)
	}
}

func TestBind_FailureClosesCandidate(t *testing.T) {
	m := NewManager()
	_, port := listener(t, m)

	before := openFDs(t)
	_, err := m.Bind(context.Background(), tcp4("127.0.0.1", strconv.Itoa(int(port))))
	if !errors.Is(err, &errors.Error{Kind: errors.KindAddressInUse}) {
		t.Fatalf("expected address in use, got %v", err)
	}
	if errors.CodeOf(err, 0) != int(unix.EADDRINUSE) {
		t.Errorf("code = %d", errors.CodeOf(err, 0))
	}
	if after := openFDs(t); after != before {
		t.Errorf("failed bind leaked: %d before, %d after", before, after)
	}
}

func TestBind_FallsThroughCandidates(t *testing.T) {
	m := NewManager()
	spec := tcp4("", "0")

	unassigned := &unix.SockaddrInet4{Addr: [4]byte{192, 0, 2, 1}}
	loopback := &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}
	cands := addr.NewCandidates(unassigned, loopback)

	before := openFDs(t)
	s, err := m.bindFirst(cands, spec)
	if err != nil {
		t.Fatalf("bindFirst: %v", err)
	}
	if cands.Len() != 0 {
		t.Errorf("%d candidates left", cands.Len())
	}
	if after := openFDs(t); after != before+1 {
		t.Errorf("descriptors: %d before, %d after (want exactly the winner)", before, after)
	}

	sa, err := unix.Getsockname(int(s.Descriptor()))
	if err != nil {
		t.Fatal(err)
	}
	if in4, ok := sa.(*unix.SockaddrInet4); !ok || in4.Addr != loopback.Addr || in4.Port == 0 {
		t.Errorf("bound to %s", addr.Format(sa))
	}

	if err := m.Close(s); err != nil {
		t.Fatal(err)
	}
	if after := openFDs(t); after != before {
		t.Errorf("leak after close: %d before, %d after", before, after)
	}
}

func TestBind_AllCandidatesFail(t *testing.T) {
	m := NewManager()
	_, port := listener(t, m)

	cands := addr.NewCandidates(
		&unix.SockaddrInet4{Addr: [4]byte{192, 0, 2, 1}},
		&unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}, Port: int(port)},
	)
	before := openFDs(t)
	_, err := m.bindFirst(cands, tcp4("", "0"))
	if errors.CodeOf(err, 0) != int(unix.EADDRINUSE) {
		t.Fatalf("want the last candidate's error, got %v", err)
	}
	if after := openFDs(t); after != before {
		t.Errorf("failed candidates leaked: %d before, %d after", before, after)
	}
}

func TestConnect_FallsThroughCandidates(t *testing.T) {
	m := NewManager()
	ln, port := listener(t, m)

	gone, err := m.Bind(context.Background(), tcp4("127.0.0.1", "0"))
	if err != nil {
		t.Fatal(err)
	}
	closedPort, err := m.LocalPort(gone)
	if err != nil {
		t.Fatal(err)
	}
	m.Close(gone)

	cands := addr.NewCandidates(
		&unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}, Port: int(closedPort)},
		&unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}, Port: int(port)},
	)
	before := openFDs(t)
	client, err := m.firstOf(cands, tcp4("127.0.0.1", ""), errors.PhaseConnect, connect)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Close(client)

	if got, _ := m.PeerPort(client); got != port {
		t.Errorf("peer port = %d, want %d", got, port)
	}
	if after := openFDs(t); after != before+1 {
		t.Errorf("descriptors: %d before, %d after", before, after)
	}

	conn, err := m.Accept(ln)
	if err != nil {
		t.Fatal(err)
	}
	m.Close(conn)
}

func TestBind_ResolveFailure(t *testing.T) {
	m := NewManager()
	_, err := m.Bind(context.Background(), tcp4("127.0.0.1", "99999"))
	if !errors.Is(err, errors.ErrInvalidArgument) || errors.CodeOf(err, 0) != errors.EAIService {
		t.Fatalf("got %v", err)
	}
}

func TestConnect_PeerPort(t *testing.T) {
	m := NewManager()
	ln, port := listener(t, m)

	client, err := m.Connect(context.Background(), tcp4("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	got, err := m.PeerPort(client)
	if err != nil || got != port {
		t.Fatalf("PeerPort = %d, %v; want %d", got, err, port)
	}

	server, err := m.Accept(ln)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer server.Close()

	buf := make([]byte, 16)
	n, err := m.PeerAddress(server, buf)
	if err != nil || n != 4 {
		t.Fatalf("PeerAddress = %d, %v", n, err)
	}
	if !bytes.Equal(buf[:4], []byte{127, 0, 0, 1}) {
		t.Errorf("peer address = %v", buf[:4])
	}

	if n, err := m.PeerAddress(server, buf[:2]); n != -1 || !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("short buffer = %d, %v", n, err)
	}
}

func TestConnect_Refused(t *testing.T) {
	m := NewManager()
	s, err := m.Bind(context.Background(), tcp4("127.0.0.1", "0"))
	if err != nil {
		t.Fatal(err)
	}
	port, _ := m.LocalPort(s)
	s.Close()

	before := openFDs(t)
	_, err = m.Connect(context.Background(), tcp4("127.0.0.1", strconv.Itoa(int(port))))
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseConnect, Kind: errors.KindRefused}) {
		t.Fatalf("expected refused, got %v", err)
	}
	if after := openFDs(t); after != before {
		t.Errorf("failed connect leaked: %d before, %d after", before, after)
	}
}

func TestRead_EOF(t *testing.T) {
	m := NewManager()
	client, server := pair(t, m)

	if err := m.Write(server, []byte("bye")); err != nil {
		t.Fatal(err)
	}
	server.Close()

	data, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "bye" {
		t.Errorf("got %q", data)
	}

	n, err := m.Read(client, make([]byte, 8))
	if n != 0 || err != io.EOF {
		t.Errorf("Read after EOF = %d, %v", n, err)
	}
}

func TestWrite_SmallBuffer(t *testing.T) {
	m := NewManager()
	client, server := pair(t, m)

	unix.SetsockoptInt(int(client.Descriptor()), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096)
	unix.SetsockoptInt(int(server.Descriptor()), unix.SOL_SOCKET, unix.SO_RCVBUF, 4096)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 1<<16)

	var got bytes.Buffer
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1000)
		for got.Len() < len(payload) {
			n, err := m.Read(server, buf)
			if err != nil {
				done <- err
				return
			}
			got.Write(buf[:n])
		}
		done <- nil
	}()

	if err := m.Write(client, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("reader: %v", err)
	}
	if !bytes.Equal(got.Bytes(), payload) {
		t.Fatalf("received %d bytes, want %d", got.Len(), len(payload))
	}
}

func TestWrite_NonBlocking(t *testing.T) {
	m := NewManager()
	client, server := pair(t, m)

	unix.SetsockoptInt(int(client.Descriptor()), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096)
	if err := m.SetBlocking(client, ModeNonBlocking); err != nil {
		t.Fatal(err)
	}

	payload := bytes.Repeat([]byte{0xAB}, 1<<20)
	total := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for total < len(payload) {
			n, err := m.Read(server, buf)
			if err != nil {
				return
			}
			total += n
			time.Sleep(time.Microsecond)
		}
	}()

	chunk := payload
	for len(chunk) > 0 {
		part := chunk[:min(len(chunk), 64<<10)]
		err := m.Write(client, part)
		if errors.Is(err, errors.ErrWouldBlock) {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		chunk = chunk[len(part):]
	}
	<-done
	if total != len(payload) {
		t.Errorf("received %d bytes, want %d", total, len(payload))
	}
}

func TestAccept_NonBlocking(t *testing.T) {
	m := NewManager()
	ln, _ := listener(t, m)

	if err := m.SetBlocking(ln, ModeNonBlocking); err != nil {
		t.Fatal(err)
	}
	// idempotent
	if err := m.SetBlocking(ln, ModeNonBlocking); err != nil {
		t.Fatal(err)
	}

	_, err := m.Accept(ln)
	if !errors.Is(err, errors.ErrWouldBlock) {
		t.Fatalf("expected would block, got %v", err)
	}
	if ln.Descriptor() < 0 {
		t.Error("listener must survive a would-block accept")
	}
}

func TestRead_NonBlocking(t *testing.T) {
	m := NewManager()
	client, _ := pair(t, m)

	if err := m.SetBlocking(client, ModeNonBlocking); err != nil {
		t.Fatal(err)
	}
	_, err := m.Read(client, make([]byte, 8))
	if !errors.Is(err, errors.ErrWouldBlock) {
		t.Fatalf("expected would block, got %v", err)
	}
	if err := m.SetBlocking(client, ModeBlocking); err != nil {
		t.Fatal(err)
	}
}

func TestSetBlocking_InvalidMode(t *testing.T) {
	m := NewManager()
	s, err := m.Create(addr.FamilyInet, addr.SocketStream, addr.ProtocolTCP)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := m.SetBlocking(s, Mode(2)); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("mode 2 = %v", err)
	}
}

func TestClose_Twice(t *testing.T) {
	m := NewManager()
	s, err := m.Create(addr.FamilyInet, addr.SocketStream, addr.ProtocolTCP)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(s); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(s); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("second Close = %v", err)
	}
	if s.Descriptor() != Invalid {
		t.Error("closed socket still reports a descriptor")
	}
	if _, err := m.Read(s, make([]byte, 1)); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("Read on closed socket = %v", err)
	}
}

func TestRelease(t *testing.T) {
	m := NewManager()
	s, err := m.Create(addr.FamilyInet, addr.SocketDatagram, addr.ProtocolUDP)
	if err != nil {
		t.Fatal(err)
	}

	fd := s.Release()
	if fd < 0 {
		t.Fatal("Release returned invalid descriptor")
	}
	if err := s.Close(); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("Close after Release = %v", err)
	}

	adopted := Adopt(fd)
	if err := adopted.Close(); err != nil {
		t.Errorf("Close adopted: %v", err)
	}
}

func TestDatagram(t *testing.T) {
	m := NewManager()
	srv, err := m.Bind(context.Background(), addr.Spec{Family: addr.FamilyInet, Type: addr.SocketDatagram, Protocol: addr.ProtocolUDP, Host: "127.0.0.1", Port: "0"})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	port, _ := m.LocalPort(srv)

	cli, err := m.Connect(context.Background(), addr.Spec{Family: addr.FamilyInet, Type: addr.SocketDatagram, Protocol: addr.ProtocolUDP, Host: "127.0.0.1", Port: strconv.Itoa(int(port))})
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	if err := m.Write(cli, []byte("ping-pong")); err != nil {
		t.Fatal(err)
	}

	// truncated silently
	buf := make([]byte, 4)
	n, err := m.Read(srv, buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Errorf("Read = %q, %v", buf[:n], err)
	}
}

func TestUnixPeer(t *testing.T) {
	m := NewManager()
	path := filepath.Join(t.TempDir(), "peer.sock")
	spec := addr.Spec{Family: addr.FamilyUnix, Type: addr.SocketStream, Host: path}

	ln, err := m.Bind(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	if err := m.Listen(ln, 1); err != nil {
		t.Fatal(err)
	}

	c, err := m.Connect(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if port, err := m.PeerPort(c); port != 0 || err != nil {
		t.Errorf("PeerPort on unix = %d, %v", port, err)
	}
	if n, err := m.PeerAddress(c, make([]byte, 16)); n != -1 || !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("PeerAddress on unix = %d, %v", n, err)
	}
}

func TestConcurrentBindClose_NoLeak(t *testing.T) {
	m := NewManager()
	before := openFDs(t)

	workers, rounds := 4, 1000
	if testing.Short() {
		rounds = 100
	}

	handles := make([]thread.Handle, workers)
	for w := range handles {
		handles[w] = thread.Create(func(any) {
			for i := 0; i < rounds; i++ {
				s, err := m.Bind(context.Background(), tcp4("127.0.0.1", "0"))
				if err != nil {
					t.Error(err)
					return
				}
				if err := s.Close(); err != nil {
					t.Error(err)
					return
				}
			}
		}, nil)
	}
	for _, h := range handles {
		if err := thread.Join(h); err != nil {
			t.Fatal(err)
		}
	}

	if after := openFDs(t); after != before {
		t.Errorf("descriptor leak: %d before, %d after", before, after)
	}
}
