package abi

import (
	"context"
	"io"
	"math"
	"os"

	hostlayer "github.com/wippyai/hostlayer"
	"github.com/wippyai/hostlayer/addr"
	"github.com/wippyai/hostlayer/clock"
	"github.com/wippyai/hostlayer/errors"
	"github.com/wippyai/hostlayer/mmap"
	"github.com/wippyai/hostlayer/osfs"
	"github.com/wippyai/hostlayer/resource"
	"github.com/wippyai/hostlayer/result"
	"github.com/wippyai/hostlayer/sockets"
	"github.com/wippyai/hostlayer/thread"
)

// File open modes accepted by file_open.
const (
	FileRead      int32 = 0
	FileReadWrite int32 = 1
	FileCreate    int32 = 2
)

const peerAddressMax = 16

func (h *Host) socketCall(family, typ, proto int32) int32 {
	s, err := h.sockets.Create(addr.Family(family), addr.SocketType(typ), addr.Protocol(proto))
	if err != nil {
		h.fail(err)
		return -1
	}
	return h.track(s)
}

// spec reads the (host, port) strings of a bind/connect call.
func spec(mem hostlayer.Memory, family, typ, proto int32, hostPtr, hostLen, portPtr, portLen uint32) (addr.Spec, error) {
	host, err := readString(mem, hostPtr, hostLen)
	if err != nil {
		return addr.Spec{}, err
	}
	port, err := readString(mem, portPtr, portLen)
	if err != nil {
		return addr.Spec{}, err
	}
	return addr.Spec{
		Family:   addr.Family(family),
		Type:     addr.SocketType(typ),
		Protocol: addr.Protocol(proto),
		Host:     host,
		Port:     port,
	}, nil
}

type openFunc func(context.Context, addr.Spec) (*sockets.Socket, error)

// resolveCall runs a bind or connect and writes its Result Slot.
func (h *Host) resolveCall(ctx context.Context, mem hostlayer.Memory, open openFunc, family, typ, proto int32, hostPtr, hostLen, portPtr, portLen, resultPtr uint32) int32 {
	if mem == nil {
		h.fail(errMemory(resultPtr, result.Size))
		return -1
	}
	if _, ok := mem.Read(resultPtr, result.Size); !ok {
		h.fail(errMemory(resultPtr, result.Size))
		return -1
	}

	var slot result.Slot
	sp, err := spec(mem, family, typ, proto, hostPtr, hostLen, portPtr, portLen)
	if err == nil {
		var s *sockets.Socket
		if s, err = open(ctx, sp); err == nil {
			slot = result.OK(int64(h.track(s)))
		}
	}
	if err != nil {
		h.fail(err)
		slot = result.From(0, err)
	}

	mem.Write(resultPtr, slot.Bytes())
	return int32(slot.Status())
}

func (h *Host) listenCall(fd, backlog int32) int32 {
	s, err := h.socket(fd)
	if err == nil {
		err = h.sockets.Listen(s, int(backlog))
	}
	if err != nil {
		return h.fail(err)
	}
	return 0
}

func (h *Host) acceptCall(fd int32) int32 {
	s, err := h.socket(fd)
	if err != nil {
		h.fail(err)
		return -1
	}
	conn, err := h.sockets.Accept(s)
	if err != nil {
		h.fail(err)
		return -1
	}
	return h.track(conn)
}

func (h *Host) setBlockingCall(fd, mode int32) int32 {
	s, err := h.socket(fd)
	if err == nil {
		err = h.sockets.SetBlocking(s, sockets.Mode(mode))
	}
	if err != nil {
		h.fail(err)
		return -1
	}
	return 0
}

func (h *Host) peerAddressCall(mem hostlayer.Memory, fd int32, bufPtr uint32) int32 {
	s, err := h.socket(fd)
	if err != nil {
		h.fail(err)
		return -1
	}
	var buf [peerAddressMax]byte
	n, err := h.sockets.PeerAddress(s, buf[:])
	if err != nil {
		h.fail(err)
		return -1
	}
	if mem == nil || !mem.Write(bufPtr, buf[:n]) {
		h.fail(errMemory(bufPtr, uint32(n)))
		return -1
	}
	return int32(n)
}

func (h *Host) peerPortCall(fd int32) int32 {
	s, err := h.socket(fd)
	if err != nil {
		h.fail(err)
		return 0
	}
	port, err := h.sockets.PeerPort(s)
	if err != nil {
		h.fail(err)
		return 0
	}
	return int32(port)
}

// readCall returns the byte count, 0 at end of stream, -1 on error.
func (h *Host) readCall(mem hostlayer.Memory, fd int32, bufPtr, count uint32) int32 {
	s, err := h.socket(fd)
	if err != nil {
		h.fail(err)
		return -1
	}
	if count > math.MaxInt32 {
		count = math.MaxInt32
	}
	if mem == nil {
		h.fail(errMemory(bufPtr, count))
		return -1
	}
	buf, ok := mem.Read(bufPtr, count)
	if !ok {
		h.fail(errMemory(bufPtr, count))
		return -1
	}
	n, err := h.sockets.Read(s, buf)
	if err == io.EOF {
		return 0
	}
	if err != nil {
		h.fail(err)
		return -1
	}
	return int32(n)
}

func (h *Host) writeCall(mem hostlayer.Memory, fd int32, bufPtr, count uint32) int32 {
	s, err := h.socket(fd)
	if err != nil {
		return h.fail(err)
	}
	if mem == nil {
		return h.fail(errMemory(bufPtr, count))
	}
	buf, ok := mem.Read(bufPtr, count)
	if !ok {
		return h.fail(errMemory(bufPtr, count))
	}
	if err := h.sockets.Write(s, buf); err != nil {
		return h.fail(err)
	}
	return 0
}

func (h *Host) closeCall(fd int32) int32 {
	s, err := h.untrack(fd)
	if err == nil {
		err = s.Close()
	}
	if err != nil {
		return h.fail(err)
	}
	return 0
}

func (h *Host) fileOpenCall(mem hostlayer.Memory, pathPtr, pathLen uint32, mode int32) int32 {
	path, err := h.path(mem, pathPtr, pathLen)
	if err != nil {
		h.fail(err)
		return -1
	}

	var flag int
	switch mode {
	case FileRead:
		flag = os.O_RDONLY
	case FileReadWrite:
		flag = os.O_RDWR
	case FileCreate:
		flag = os.O_RDWR | os.O_CREATE
	default:
		h.fail(errors.InvalidEnum(errors.PhaseFile, "file mode", mode))
		return -1
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		h.fail(errors.FromErrno(errors.PhaseFile, err))
		return -1
	}
	handle, err := h.files.Insert(&guestFile{f})
	if err != nil {
		f.Close()
		h.fail(err)
		return -1
	}
	return int32(handle)
}

func (h *Host) fileCloseCall(handle int32) int32 {
	f, ok := h.files.Remove(resource.Handle(handle))
	if !ok {
		h.fail(errors.Closed(errors.PhaseFile, "file"))
		return -1
	}
	if err := f.Close(); err != nil {
		h.fail(errors.FromErrno(errors.PhaseFile, err))
		return -1
	}
	return 0
}

func (h *Host) fileSizeCall(handle int32) int64 {
	f, err := h.files.Lookup(resource.Handle(handle))
	if err != nil {
		h.fail(err)
		return -1
	}
	n, err := mmap.FileSize(f.File)
	if err != nil {
		h.fail(err)
		return -1
	}
	return n
}

// mmapCall maps a file and returns a region handle, or 0 on failure. The
// status (0 or -1) is also stored as an i32 at resultPtr.
func (h *Host) mmapCall(mem hostlayer.Memory, file int32, offset, size int64, resultPtr uint32) int32 {
	status := int32(-1)
	handle := resource.Handle(0)

	f, err := h.files.Lookup(resource.Handle(file))
	if err == nil {
		var r *mmap.Region
		if r, err = mmap.Map(f.File, offset, size); err == nil {
			if handle, err = h.regions.Insert(r); err != nil {
				r.Unmap()
			} else {
				status = 0
			}
		}
	}
	if err != nil {
		h.fail(err)
	}

	if mem == nil || !mem.WriteUint32Le(resultPtr, uint32(status)) {
		if handle != 0 {
			h.regions.Drop(handle)
		}
		h.fail(errMemory(resultPtr, 4))
		return 0
	}
	return int32(handle)
}

func (h *Host) regionCopy(mem hostlayer.Memory, region int32, offset int64, ptr, n uint32, toGuest bool) int32 {
	r, err := h.regions.Lookup(resource.Handle(region))
	if err != nil {
		h.fail(err)
		return -1
	}
	if mem == nil {
		h.fail(errMemory(ptr, n))
		return -1
	}
	buf, ok := mem.Read(ptr, n)
	if !ok {
		h.fail(errMemory(ptr, n))
		return -1
	}
	if toGuest {
		_, err = r.ReadAt(buf, offset)
	} else {
		_, err = r.WriteAt(buf, offset)
	}
	if err != nil {
		h.fail(err)
		return -1
	}
	return 0
}

func (h *Host) munmapCall(region int32, size int64) int32 {
	r, err := h.regions.Lookup(resource.Handle(region))
	if err != nil {
		h.fail(err)
		return -1
	}
	if err := r.UnmapSized(size); err != nil {
		h.fail(err)
		return -1
	}
	h.regions.Remove(resource.Handle(region))
	return 0
}

func (h *Host) nanotimeCall() int64 {
	return int64(clock.Now())
}

func (h *Host) nanosleepCall(n int64) {
	if n > 0 {
		clock.Sleep(uint64(n))
	}
}

func (h *Host) lockCall()   { thread.GlobalLock().Lock() }
func (h *Host) unlockCall() { thread.GlobalLock().Unlock() }

func (h *Host) mkdirCall(mem hostlayer.Memory, ptr, n uint32) int32 {
	path, err := h.path(mem, ptr, n)
	if err == nil {
		err = osfs.Mkdir(path)
	}
	if err != nil {
		h.fail(err)
		return -1
	}
	return 0
}

func (h *Host) setenvCall(mem hostlayer.Memory, namePtr, nameLen, valuePtr, valueLen uint32, overwrite int32) int32 {
	err := h.envAllowed()
	var name, value string
	if err == nil {
		name, err = readString(mem, namePtr, nameLen)
	}
	if err == nil {
		value, err = readString(mem, valuePtr, valueLen)
	}
	if err == nil {
		err = osfs.Setenv(name, value, overwrite != 0)
	}
	if err != nil {
		h.fail(err)
		return -1
	}
	return 0
}

func (h *Host) unsetenvCall(mem hostlayer.Memory, ptr, n uint32) int32 {
	err := h.envAllowed()
	var name string
	if err == nil {
		name, err = readString(mem, ptr, n)
	}
	if err == nil {
		err = osfs.Unsetenv(name)
	}
	if err != nil {
		h.fail(err)
		return -1
	}
	return 0
}

func (h *Host) rmCall(mem hostlayer.Memory, ptr, n uint32) int32 {
	path, err := h.path(mem, ptr, n)
	if err == nil {
		err = osfs.Remove(path)
	}
	if err != nil {
		h.fail(err)
		return -1
	}
	return 0
}

// statCall writes size, mtime, is-regular and is-directory as four i64 at
// resultPtr; on failure the errno goes first and the rest are zero.
func (h *Host) statCall(mem hostlayer.Memory, ptr, n, resultPtr uint32, follow bool) int32 {
	var slots [4]int64
	path, err := h.path(mem, ptr, n)
	if err == nil {
		var m osfs.Metadata
		if follow {
			m, err = osfs.Stat(path)
		} else {
			m, err = osfs.Lstat(path)
		}
		slots = m.Slots()
	}
	status := int32(0)
	if err != nil {
		h.fail(err)
		slots = osfs.FailedSlots(err)
		status = -1
	}

	if mem == nil {
		h.fail(errMemory(resultPtr, 32))
		return -1
	}
	for i, v := range slots {
		if !mem.WriteUint64Le(resultPtr+uint32(i*8), uint64(v)) {
			h.fail(errMemory(resultPtr, 32))
			return -1
		}
	}
	return status
}
