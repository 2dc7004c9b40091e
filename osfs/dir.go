package osfs

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/wippyai/hostlayer/errors"
)

// Dir iterates the entry names of one directory. "." and ".." are never
// returned.
type Dir struct {
	f    *os.File
	read func(n int) ([]string, error)
	err  error
	next []string
	done bool
}

const dirBatch = 64

// OpenDir opens path for iteration.
func OpenDir(path string) (*Dir, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FromErrno(errors.PhaseFile, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.FromErrno(errors.PhaseFile, err)
	}
	if !fi.IsDir() {
		f.Close()
		return nil, errors.New(errors.PhaseFile, errors.KindInvalidArgument).
			Code(int(unix.ENOTDIR)).
			Detail("%s is not a directory", path).
			Build()
	}
	return &Dir{f: f, read: f.Readdirnames}, nil
}

// HasNext reports whether Next has an entry to return.
func (d *Dir) HasNext() bool {
	if len(d.next) > 0 {
		return true
	}
	if d.done || d.f == nil || d.read == nil {
		return false
	}
	names, err := d.read(dirBatch)
	if err != nil {
		// Names read before the error are still handed out.
		d.done = true
		if err != io.EOF {
			d.err = errors.FromErrno(errors.PhaseFile, err)
		}
	}
	if len(names) == 0 {
		d.done = true
		return false
	}
	d.next = names
	return true
}

// Err returns the error that ended iteration early, if any.
func (d *Dir) Err() error {
	return d.err
}

// Next returns the next entry name, or "" when none is left.
func (d *Dir) Next() string {
	if !d.HasNext() {
		return ""
	}
	name := d.next[0]
	d.next = d.next[1:]
	return name
}

// Close releases the directory. A second Close returns KindClosed.
func (d *Dir) Close() error {
	if d.f == nil {
		return errors.Closed(errors.PhaseFile, "directory")
	}
	err := d.f.Close()
	d.f = nil
	d.next = nil
	if err != nil {
		return errors.FromErrno(errors.PhaseFile, err)
	}
	return nil
}
