package osfs

import (
	"golang.org/x/sys/unix"

	"github.com/wippyai/hostlayer/errors"
)

// Metadata is the subset of file status a runtime consumes.
type Metadata struct {
	Size    int64
	ModTime int64 // unix seconds
	Regular bool
	Dir     bool
}

// Slots packs m as size, mtime, is-regular, is-directory.
func (m Metadata) Slots() [4]int64 {
	return [4]int64{m.Size, m.ModTime, b2i(m.Regular), b2i(m.Dir)}
}

// FailedSlots packs a failed status call: the errno first, zeros after.
func FailedSlots(err error) [4]int64 {
	return [4]int64{int64(errors.CodeOf(err, int(unix.EIO))), 0, 0, 0}
}

// Stat returns metadata for path, following symbolic links.
func Stat(path string) (Metadata, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Metadata{}, errors.FromErrno(errors.PhaseFile, err)
	}
	return fromStat(&st), nil
}

// Lstat returns metadata for path without following a final symbolic link.
func Lstat(path string) (Metadata, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Metadata{}, errors.FromErrno(errors.PhaseFile, err)
	}
	return fromStat(&st), nil
}

func fromStat(st *unix.Stat_t) Metadata {
	mode := uint32(st.Mode) & unix.S_IFMT
	sec, _ := st.Mtim.Unix()
	return Metadata{
		Size:    st.Size,
		ModTime: sec,
		Regular: mode == unix.S_IFREG,
		Dir:     mode == unix.S_IFDIR,
	}
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
