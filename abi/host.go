package abi

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	hostlayer "github.com/wippyai/hostlayer"
	"github.com/wippyai/hostlayer/errors"
	"github.com/wippyai/hostlayer/mmap"
	"github.com/wippyai/hostlayer/resource"
	"github.com/wippyai/hostlayer/result"
	"github.com/wippyai/hostlayer/sockets"
)

// Host exposes the layer to WebAssembly guests. One Host serves any number
// of guest instances; Close releases everything they left open.
type Host struct {
	cfg     Config
	sockets *sockets.Manager

	socks   map[int32]*sockets.Socket
	socksMu sync.Mutex

	files   *resource.Table[*guestFile]
	regions *resource.Table[*mmap.Region]

	lastErr atomic.Int32
}

// guestFile is a file opened by a guest; dropping it from the table closes it.
type guestFile struct {
	*os.File
}

func (f *guestFile) Drop() {
	if err := f.Close(); err != nil {
		Logger().Debug("close guest file", zap.String("name", f.Name()), zap.Error(err))
	}
}

// New creates a host. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Host {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := cfg.withDefaults()

	h := &Host{
		cfg:     c,
		sockets: c.Sockets,
		socks:   make(map[int32]*sockets.Socket),
		files:   resource.NewTable[*guestFile]("file", resource.WithPhase(errors.PhaseFile)),
		regions: resource.NewTable[*mmap.Region]("region", resource.WithPhase(errors.PhaseMap)),
	}

	trace := resource.ObserverFunc(func(e resource.Event) {
		Logger().Debug("handle",
			zap.String("table", e.Table),
			zap.Uint32("handle", uint32(e.Handle)),
			zap.Stringer("event", e.Type))
	})
	h.files.Subscribe(trace)
	h.regions.Subscribe(trace)
	return h
}

// ModuleName returns the name guests import from.
func (h *Host) ModuleName() string {
	return h.cfg.ModuleName
}

// Instantiate registers the host module in r.
func (h *Host) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(h.cfg.ModuleName)
	for _, f := range h.functions() {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(f.call, f.params, f.results).
			WithParameterNames(f.names...).
			Export(f.name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindIO, err, "instantiate "+h.cfg.ModuleName)
	}
	Logger().Debug("host module ready", zap.String("module", h.cfg.ModuleName))
	return mod, nil
}

// Close releases every socket, file and mapping still held for guests.
func (h *Host) Close() error {
	h.socksMu.Lock()
	open := h.socks
	h.socks = make(map[int32]*sockets.Socket)
	h.socksMu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	Logger().Debug("host closed",
		zap.Int("sockets", len(open)),
		zap.Int("regions", h.regions.Len()),
		zap.Int("files", h.files.Len()))

	h.regions.Close()
	h.files.Close()
	return errors.Join(errs...)
}

// LastError returns the code recorded by the most recent failing call.
func (h *Host) LastError() int32 {
	return h.lastErr.Load()
}

// fail records err for net_error and returns its boundary code.
func (h *Host) fail(err error) int32 {
	code := int32(result.Code(err))
	h.lastErr.Store(code)
	Logger().Debug("call failed", zap.Error(err))
	return code
}

func (h *Host) track(s *sockets.Socket) int32 {
	fd := int32(s.Descriptor())
	h.socksMu.Lock()
	h.socks[fd] = s
	h.socksMu.Unlock()
	return fd
}

func (h *Host) socket(fd int32) (*sockets.Socket, error) {
	h.socksMu.Lock()
	defer h.socksMu.Unlock()
	s, ok := h.socks[fd]
	if !ok {
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidArgument).
			Code(int(unix.EBADF)).
			Detail("descriptor %d is not a guest socket", fd).
			Build()
	}
	return s, nil
}

func (h *Host) untrack(fd int32) (*sockets.Socket, error) {
	h.socksMu.Lock()
	defer h.socksMu.Unlock()
	s, ok := h.socks[fd]
	if !ok {
		return nil, errors.New(errors.PhaseClose, errors.KindClosed).
			Code(int(unix.EBADF)).
			Detail("descriptor %d is not a guest socket", fd).
			Build()
	}
	delete(h.socks, fd)
	return s, nil
}

// Sockets returns the number of guest sockets currently open.
func (h *Host) Sockets() int {
	h.socksMu.Lock()
	defer h.socksMu.Unlock()
	return len(h.socks)
}

func errMemory(ptr, n uint32) error {
	return errors.New(errors.PhaseHost, errors.KindInvalidArgument).
		Code(int(unix.EFAULT)).
		Detail("guest range [%#x,+%d) out of bounds", ptr, n).
		Build()
}

func readString(mem hostlayer.Memory, ptr, n uint32) (string, error) {
	if mem == nil {
		return "", errMemory(ptr, n)
	}
	b, ok := mem.Read(ptr, n)
	if !ok {
		return "", errMemory(ptr, n)
	}
	return string(b), nil
}

// path reads a guest path and applies the file-system policy.
func (h *Host) path(mem hostlayer.Memory, ptr, n uint32) (string, error) {
	if !h.cfg.EnableFS {
		return "", errors.New(errors.PhaseFile, errors.KindPermission).
			Code(int(unix.EACCES)).
			Detail("file system access disabled").
			Build()
	}
	p, err := readString(mem, ptr, n)
	if err != nil {
		return "", err
	}
	if h.cfg.AllowedRoot == "" {
		return p, nil
	}

	root := filepath.Clean(h.cfg.AllowedRoot)
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, full)
	}
	full = filepath.Clean(full)
	if !within(root, full) {
		return "", outsideRoot(p, root)
	}

	// Symlinks inside the root may point anywhere; compare resolved paths.
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", errors.FromErrno(errors.PhaseFile, err)
	}
	resolved, err := resolveExisting(full)
	if err != nil {
		return "", errors.FromErrno(errors.PhaseFile, err)
	}
	if !within(resolvedRoot, resolved) {
		return "", outsideRoot(p, root)
	}
	return full, nil
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

func outsideRoot(p, root string) error {
	return errors.New(errors.PhaseFile, errors.KindPermission).
		Code(int(unix.EACCES)).
		Detail("%s is outside %s", p, root).
		Build()
}

// resolveExisting evaluates symlinks in the longest existing prefix of p and
// appends the components that do not exist yet.
func resolveExisting(p string) (string, error) {
	var rest []string
	for {
		if _, err := os.Lstat(p); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		rest = append(rest, filepath.Base(p))
		p = parent
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", err
	}
	for i := len(rest) - 1; i >= 0; i-- {
		resolved = filepath.Join(resolved, rest[i])
	}
	return resolved, nil
}

func (h *Host) envAllowed() error {
	if h.cfg.EnableFS {
		return nil
	}
	return errors.New(errors.PhaseFile, errors.KindPermission).
		Code(int(unix.EACCES)).
		Detail("environment access disabled").
		Build()
}
