package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/wippyai/hostlayer/addr"
	"github.com/wippyai/hostlayer/clock"
	"github.com/wippyai/hostlayer/errors"
	"github.com/wippyai/hostlayer/mmap"
	"github.com/wippyai/hostlayer/osfs"
	"github.com/wippyai/hostlayer/resource"
	"github.com/wippyai/hostlayer/sockets"
)

type paramInfo struct {
	name    string
	typeStr string
}

type command struct {
	run    func(ctx context.Context, args []string) (string, error)
	name   string
	help   string
	params []paramInfo
}

// session holds everything the console has opened.
type session struct {
	mgr     *sockets.Manager
	socks   map[int]*sockets.Socket
	regions *resource.Table[*mmap.Region]
	root    string
}

func newSession(mgr *sockets.Manager, root string) *session {
	return &session{
		mgr:     mgr,
		socks:   make(map[int]*sockets.Socket),
		regions: resource.NewTable[*mmap.Region]("region", resource.WithPhase(errors.PhaseMap)),
		root:    root,
	}
}

func (s *session) close() {
	for fd, sock := range s.socks {
		_ = s.mgr.Close(sock)
		delete(s.socks, fd)
	}
	_ = s.regions.Close()
}

func (s *session) commands() []command {
	cmds := []command{
		{
			name: "bind", help: "resolve and bind a socket",
			params: []paramInfo{{"family", "inet|inet6|unix"}, {"type", "stream|datagram"}, {"host", "string"}, {"port", "string"}},
			run:    s.open(s.mgr.Bind),
		},
		{
			name: "connect", help: "resolve and connect a socket",
			params: []paramInfo{{"family", "inet|inet6|unix"}, {"type", "stream|datagram"}, {"host", "string"}, {"port", "string"}},
			run:    s.open(s.mgr.Connect),
		},
		{
			name: "listen", help: "mark a bound socket passive",
			params: []paramInfo{{"fd", "int"}, {"backlog", "int"}},
			run: func(_ context.Context, args []string) (string, error) {
				sock, err := s.sock(args[0])
				if err != nil {
					return "", err
				}
				backlog, err := parseInt(args[1], 128)
				if err != nil {
					return "", err
				}
				if err := s.mgr.Listen(sock, backlog); err != nil {
					return "", err
				}
				return "listening", nil
			},
		},
		{
			name: "accept", help: "accept one connection",
			params: []paramInfo{{"fd", "int"}},
			run: func(_ context.Context, args []string) (string, error) {
				sock, err := s.sock(args[0])
				if err != nil {
					return "", err
				}
				conn, err := s.mgr.Accept(sock)
				if err != nil {
					return "", err
				}
				fd := int(conn.Descriptor())
				s.socks[fd] = conn
				port, _ := s.mgr.PeerPort(conn)
				return fmt.Sprintf("fd %d (peer port %d)", fd, port), nil
			},
		},
		{
			name: "blocking", help: "set the blocking mode (0 blocking, 1 non-blocking)",
			params: []paramInfo{{"fd", "int"}, {"mode", "0|1"}},
			run: func(_ context.Context, args []string) (string, error) {
				sock, err := s.sock(args[0])
				if err != nil {
					return "", err
				}
				mode, err := parseInt(args[1], 0)
				if err != nil {
					return "", err
				}
				if err := s.mgr.SetBlocking(sock, sockets.Mode(mode)); err != nil {
					return "", err
				}
				return "ok", nil
			},
		},
		{
			name: "peer", help: "show the peer address and port",
			params: []paramInfo{{"fd", "int"}},
			run: func(_ context.Context, args []string) (string, error) {
				sock, err := s.sock(args[0])
				if err != nil {
					return "", err
				}
				port, err := s.mgr.PeerPort(sock)
				if err != nil {
					return "", err
				}
				buf := make([]byte, 16)
				n, err := s.mgr.PeerAddress(sock, buf)
				if err != nil {
					return fmt.Sprintf("non-IP peer, port %d", port), nil
				}
				return fmt.Sprintf("% x port %d", buf[:n], port), nil
			},
		},
		{
			name: "read", help: "read up to count bytes",
			params: []paramInfo{{"fd", "int"}, {"count", "int"}},
			run: func(_ context.Context, args []string) (string, error) {
				sock, err := s.sock(args[0])
				if err != nil {
					return "", err
				}
				count, err := parseCount(args[1], 512)
				if err != nil {
					return "", err
				}
				buf := make([]byte, count)
				n, err := s.mgr.Read(sock, buf)
				if err != nil {
					return "", err
				}
				return strconv.Quote(string(buf[:n])), nil
			},
		},
		{
			name: "write", help: "write all of data",
			params: []paramInfo{{"fd", "int"}, {"data", "string"}},
			run: func(_ context.Context, args []string) (string, error) {
				sock, err := s.sock(args[0])
				if err != nil {
					return "", err
				}
				if err := s.mgr.Write(sock, []byte(args[1])); err != nil {
					return "", err
				}
				return fmt.Sprintf("%d bytes", len(args[1])), nil
			},
		},
		{
			name: "close", help: "close a socket",
			params: []paramInfo{{"fd", "int"}},
			run: func(_ context.Context, args []string) (string, error) {
				sock, err := s.sock(args[0])
				if err != nil {
					return "", err
				}
				delete(s.socks, int(sock.Descriptor()))
				if err := s.mgr.Close(sock); err != nil {
					return "", err
				}
				return "closed", nil
			},
		},
		{
			name: "mmap", help: "map a file read-only",
			params: []paramInfo{{"path", "string"}, {"offset", "int"}, {"size", "int"}},
			run:    s.mapFile,
		},
		{
			name: "peek", help: "show bytes of a mapped region",
			params: []paramInfo{{"region", "int"}, {"offset", "int"}, {"count", "int"}},
			run: func(_ context.Context, args []string) (string, error) {
				h, err := parseInt(args[0], 0)
				if err != nil {
					return "", err
				}
				r, err := s.regions.Lookup(resource.Handle(h))
				if err != nil {
					return "", err
				}
				off, err := parseInt(args[1], 0)
				if err != nil {
					return "", err
				}
				count, err := parseCount(args[2], 64)
				if err != nil {
					return "", err
				}
				if rest := r.Len() - int64(off); rest >= 0 && int64(count) > rest {
					count = int(rest)
				}
				buf := make([]byte, count)
				n, err := r.ReadAt(buf, int64(off))
				if err != nil {
					return "", err
				}
				return strconv.Quote(string(buf[:n])), nil
			},
		},
		{
			name: "munmap", help: "release a mapped region",
			params: []paramInfo{{"region", "int"}},
			run: func(_ context.Context, args []string) (string, error) {
				h, err := parseInt(args[0], 0)
				if err != nil {
					return "", err
				}
				if !s.regions.Drop(resource.Handle(h)) {
					return "", errors.NotFound(errors.PhaseUnmap, "region", h)
				}
				return "unmapped", nil
			},
		},
		{
			name: "stat", help: "show file metadata",
			params: []paramInfo{{"path", "string"}},
			run: func(_ context.Context, args []string) (string, error) {
				m, err := osfs.Stat(s.path(args[0]))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("size=%d mtime=%d regular=%t dir=%t", m.Size, m.ModTime, m.Regular, m.Dir), nil
			},
		},
		{
			name: "ls", help: "list a directory",
			params: []paramInfo{{"path", "string"}},
			run: func(_ context.Context, args []string) (string, error) {
				d, err := osfs.OpenDir(s.path(args[0]))
				if err != nil {
					return "", err
				}
				defer d.Close()
				var names []string
				for d.HasNext() {
					names = append(names, d.Next())
				}
				sort.Strings(names)
				return strings.Join(names, "\n"), nil
			},
		},
		{
			name: "mkdir", help: "create a directory",
			params: []paramInfo{{"path", "string"}},
			run: func(_ context.Context, args []string) (string, error) {
				if err := osfs.Mkdir(s.path(args[0])); err != nil {
					return "", err
				}
				return "created", nil
			},
		},
		{
			name: "rm", help: "remove a file or empty directory",
			params: []paramInfo{{"path", "string"}},
			run: func(_ context.Context, args []string) (string, error) {
				if err := osfs.Remove(s.path(args[0])); err != nil {
					return "", err
				}
				return "removed", nil
			},
		},
		{
			name: "now", help: "read the monotonic clock",
			run: func(context.Context, []string) (string, error) {
				return fmt.Sprintf("%d ns", clock.Now()), nil
			},
		},
		{
			name: "sleep", help: "sleep for ns nanoseconds",
			params: []paramInfo{{"ns", "int"}},
			run: func(_ context.Context, args []string) (string, error) {
				ns, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return "", errors.InvalidArgument(errors.PhaseClock, "bad duration %q", args[0])
				}
				t0 := clock.Now()
				clock.Sleep(ns)
				return fmt.Sprintf("slept %d ns", clock.Now()-t0), nil
			},
		},
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].name < cmds[j].name })
	return cmds
}

func (s *session) open(fn func(context.Context, addr.Spec) (*sockets.Socket, error)) func(context.Context, []string) (string, error) {
	return func(ctx context.Context, args []string) (string, error) {
		family, err := parseFamily(args[0])
		if err != nil {
			return "", err
		}
		typ, err := parseType(args[1])
		if err != nil {
			return "", err
		}
		sock, err := fn(ctx, addr.Spec{Family: family, Type: typ, Host: args[2], Port: args[3]})
		if err != nil {
			return "", err
		}
		fd := int(sock.Descriptor())
		s.socks[fd] = sock
		if port, err := s.mgr.LocalPort(sock); err == nil && port != 0 {
			return fmt.Sprintf("fd %d (local port %d)", fd, port), nil
		}
		return fmt.Sprintf("fd %d", fd), nil
	}
}

func (s *session) mapFile(_ context.Context, args []string) (string, error) {
	off, err := parseInt(args[1], 0)
	if err != nil {
		return "", err
	}
	f, err := os.Open(s.path(args[0]))
	if err != nil {
		return "", errors.FromErrno(errors.PhaseFile, err)
	}
	defer f.Close()

	size := int64(0)
	if args[2] != "" {
		n, err := parseInt(args[2], 0)
		if err != nil {
			return "", err
		}
		size = int64(n)
	} else if size, err = mmap.FileSize(f); err != nil {
		return "", err
	}

	r, err := mmap.Map(f, int64(off), size)
	if err != nil {
		return "", err
	}
	h, err := s.regions.Insert(r)
	if err != nil {
		r.Drop()
		return "", err
	}
	return fmt.Sprintf("region %d (%d bytes)", h, r.Len()), nil
}

func (s *session) sock(arg string) (*sockets.Socket, error) {
	fd, err := parseInt(arg, -1)
	if err != nil {
		return nil, err
	}
	sock, ok := s.socks[fd]
	if !ok {
		return nil, errors.NotFound(errors.PhaseSocket, "socket", fd)
	}
	return sock, nil
}

func (s *session) path(p string) string {
	if s.root == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return s.root + "/" + p
}

// exec runs one console line: a command name followed by its arguments.
// The last argument takes the rest of the line.
func (s *session) exec(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	for _, c := range s.commands() {
		if c.name != fields[0] {
			continue
		}
		args := make([]string, len(c.params))
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		for i := range args {
			if i == len(args)-1 {
				args[i] = rest
				break
			}
			head, tail, _ := strings.Cut(rest, " ")
			args[i] = head
			rest = strings.TrimSpace(tail)
		}
		return c.run(ctx, args)
	}
	return "", errors.NotFound(errors.PhaseHost, "command", fields[0])
}

func parseInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.InvalidArgument(errors.PhaseHost, "not a number: %q", s)
	}
	return n, nil
}

// parseCount parses a buffer length, which must not be negative.
func parseCount(s string, def int) (int, error) {
	n, err := parseInt(s, def)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.InvalidArgument(errors.PhaseHost, "negative count %d", n)
	}
	return n, nil
}

func parseFamily(s string) (addr.Family, error) {
	switch s {
	case "", "inet":
		return addr.FamilyInet, nil
	case "inet6":
		return addr.FamilyInet6, nil
	case "unix":
		return addr.FamilyUnix, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.InvalidEnum(errors.PhaseSocket, "family", s)
	}
	return addr.Family(n), nil
}

func parseType(s string) (addr.SocketType, error) {
	switch s {
	case "", "stream":
		return addr.SocketStream, nil
	case "datagram":
		return addr.SocketDatagram, nil
	case "raw":
		return addr.SocketRaw, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.InvalidEnum(errors.PhaseSocket, "socket type", s)
	}
	return addr.SocketType(n), nil
}
