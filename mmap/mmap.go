// Package mmap maps regular files into memory with shared, file-backed
// semantics. A Region remembers its own length, so releasing it never
// depends on the caller repeating the size.
package mmap

import (
	"math"
	"os"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/hostlayer/errors"
)

// Granularity returns the alignment required of mapping offsets.
func Granularity() int {
	return unix.Getpagesize()
}

// FileSize returns the size of f in bytes.
func FileSize(f *os.File) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return -1, errors.FromErrno(errors.PhaseFile, err)
	}
	return st.Size, nil
}

// Map maps size bytes of f starting at offset. The mapping is shared with
// the file and writable iff f was opened read-write.
func Map(f *os.File, offset, size int64) (*Region, error) {
	gran := int64(Granularity())
	switch {
	case offset < 0 || offset%gran != 0:
		return nil, errors.InvalidArgument(errors.PhaseMap, "offset %d is not a multiple of %d", offset, gran)
	case size <= 0 || size > math.MaxInt:
		return nil, errors.InvalidArgument(errors.PhaseMap, "invalid size %d", size)
	}

	fd := int(f.Fd())

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, errors.FromErrno(errors.PhaseMap, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return nil, errors.InvalidArgument(errors.PhaseMap, "unsupported file type")
	}
	if st.Size < offset || st.Size-offset < size {
		return nil, errors.InvalidArgument(errors.PhaseMap, "offset out of range: file has %d bytes, need %d", st.Size, offset+size)
	}

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return nil, errors.FromErrno(errors.PhaseMap, err)
	}
	writable := flags&unix.O_ACCMODE == unix.O_RDWR

	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(fd, offset, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.FromErrno(errors.PhaseMap, err)
	}

	Logger().Debug("mapped",
		zap.String("file", f.Name()),
		zap.Int64("offset", offset),
		zap.Int64("size", size),
		zap.Bool("writable", writable))

	return &Region{
		data:     data,
		offset:   offset,
		length:   size,
		writable: writable,
	}, nil
}

// Region is a mapped window of a file. It is owned from Map until Unmap.
type Region struct {
	mu       sync.RWMutex
	data     []byte
	offset   int64
	length   int64
	writable bool
}

// Bytes returns the mapped memory, or nil after Unmap. The slice must not
// be used once the region is unmapped.
func (r *Region) Bytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

// Len returns the mapped length.
func (r *Region) Len() int64 { return r.length }

// Offset returns the file offset of the first mapped byte.
func (r *Region) Offset() int64 { return r.offset }

// Writable reports whether the mapping accepts writes.
func (r *Region) Writable() bool { return r.writable }

// Addr returns the base address, or 0 after Unmap.
func (r *Region) Addr() uintptr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.data == nil {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.data[0]))
}

// ReadAt copies mapped bytes at off into p.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(off, len(p)); err != nil {
		return 0, err
	}
	return copy(p, r.data[off:]), nil
}

// WriteAt copies p into the mapping at off.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(off, len(p)); err != nil {
		return 0, err
	}
	if !r.writable {
		return 0, errors.New(errors.PhaseMap, errors.KindPermission).
			Code(int(unix.EACCES)).
			Detail("region is read-only").
			Build()
	}
	return copy(r.data[off:], p), nil
}

func (r *Region) check(off int64, n int) error {
	if r.data == nil {
		return errors.Closed(errors.PhaseMap, "region")
	}
	if off < 0 || off > r.length || int64(n) > r.length-off {
		return errors.InvalidArgument(errors.PhaseMap, "range [%d,+%d) outside region of %d bytes", off, n, r.length)
	}
	return nil
}

// Sync flushes dirty pages to the file.
func (r *Region) Sync() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.data == nil {
		return errors.Closed(errors.PhaseMap, "region")
	}
	if err := unix.Msync(r.data, unix.MS_SYNC); err != nil {
		return errors.FromErrno(errors.PhaseMap, err)
	}
	return nil
}

// Unmap releases the mapping. A second call returns KindClosed and touches
// no memory.
func (r *Region) Unmap() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unmapLocked()
}

// UnmapSized releases the mapping after checking that size matches the
// mapped length.
func (r *Region) UnmapSized(size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data != nil && size != r.length {
		return errors.InvalidArgument(errors.PhaseUnmap, "size %d does not match mapped length %d", size, r.length)
	}
	return r.unmapLocked()
}

func (r *Region) unmapLocked() error {
	if r.data == nil {
		return errors.Closed(errors.PhaseUnmap, "region")
	}
	data := r.data
	r.data = nil
	if err := unix.Munmap(data); err != nil {
		return errors.FromErrno(errors.PhaseUnmap, err)
	}
	Logger().Debug("unmapped", zap.Int64("offset", r.offset), zap.Int64("size", r.length))
	return nil
}

// Drop unmaps the region when its owning handle table discards it.
func (r *Region) Drop() {
	_ = r.Unmap()
}
