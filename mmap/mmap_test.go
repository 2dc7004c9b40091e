package mmap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/hostlayer/errors"
)

func tempFile(t *testing.T, data []byte, flag int) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.dat")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestMap_ReproducesFile(t *testing.T) {
	data := []byte("hello world test data for mmap")
	f := tempFile(t, data, os.O_RDONLY)

	size, err := FileSize(f)
	if err != nil || size != int64(len(data)) {
		t.Fatalf("FileSize = %d, %v", size, err)
	}

	r, err := Map(f, 0, size)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if !bytes.Equal(r.Bytes(), data) {
		t.Errorf("mapped data = %q", r.Bytes())
	}
	if r.Len() != size || r.Offset() != 0 || r.Writable() || r.Addr() == 0 {
		t.Errorf("region = len %d off %d writable %v addr %x", r.Len(), r.Offset(), r.Writable(), r.Addr())
	}

	if err := r.Unmap(); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if err := r.Unmap(); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("second Unmap = %v", err)
	}
	if r.Bytes() != nil || r.Addr() != 0 {
		t.Error("unmapped region still exposes memory")
	}
	if _, err := r.ReadAt(make([]byte, 1), 0); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("ReadAt after Unmap = %v", err)
	}
}

func TestMap_Offset(t *testing.T) {
	page := Granularity()
	data := bytes.Repeat([]byte{'a'}, page)
	data = append(data, bytes.Repeat([]byte{'b'}, page)...)
	f := tempFile(t, data, os.O_RDONLY)

	r, err := Map(f, int64(page), int64(page))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	defer r.Unmap()

	if !bytes.Equal(r.Bytes(), data[page:]) {
		t.Error("offset mapping does not match second page")
	}
}

func TestMap_Invalid(t *testing.T) {
	page := int64(Granularity())
	f := tempFile(t, make([]byte, page), os.O_RDONLY)

	dir, err := os.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	tests := []struct {
		name   string
		file   *os.File
		offset int64
		size   int64
	}{
		{"unaligned offset", f, 1, 1},
		{"negative offset", f, -page, 1},
		{"zero size", f, 0, 0},
		{"negative size", f, 0, -1},
		{"past end", f, 0, page + 1},
		{"offset past end", f, page, 1},
		{"directory", dir, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Map(tt.file, tt.offset, tt.size)
			if err == nil {
				r.Unmap()
				t.Fatal("expected error")
			}
			if !errors.Is(err, errors.ErrInvalidArgument) {
				t.Errorf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestRegion_WriteThrough(t *testing.T) {
	f := tempFile(t, []byte("........"), os.O_RDWR)

	r, err := Map(f, 0, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Writable() {
		t.Fatal("O_RDWR file should map writable")
	}
	if _, err := r.WriteAt([]byte("hi"), 3); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if _, err := r.WriteAt([]byte("xyz"), 6); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("WriteAt past end = %v", err)
	}
	if err := r.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := r.UnmapSized(8); err != nil {
		t.Fatalf("UnmapSized: %v", err)
	}

	got, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "...hi..." {
		t.Errorf("file = %q", got)
	}
}

func TestRegion_ReadOnly(t *testing.T) {
	f := tempFile(t, []byte("readonly"), os.O_RDONLY)
	r, err := Map(f, 0, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Unmap()

	_, err = r.WriteAt([]byte("x"), 0)
	if !errors.Is(err, &errors.Error{Kind: errors.KindPermission}) {
		t.Errorf("WriteAt on read-only = %v", err)
	}

	buf := make([]byte, 4)
	if _, err := r.ReadAt(buf, 4); err != nil || string(buf) != "only" {
		t.Errorf("ReadAt = %q, %v", buf, err)
	}
}

func TestRegion_UnmapSizedMismatch(t *testing.T) {
	f := tempFile(t, []byte("0123456789"), os.O_RDONLY)
	r, err := Map(f, 0, 10)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.UnmapSized(4); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("mismatched size = %v", err)
	}
	if r.Bytes() == nil {
		t.Fatal("rejected UnmapSized must leave the region mapped")
	}
	if err := r.UnmapSized(10); err != nil {
		t.Fatal(err)
	}
	if err := r.UnmapSized(10); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("second UnmapSized = %v", err)
	}
}

func TestRegion_Drop(t *testing.T) {
	f := tempFile(t, []byte("drop"), os.O_RDONLY)
	r, err := Map(f, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	r.Drop()
	r.Drop()
	if r.Bytes() != nil {
		t.Error("Drop did not unmap")
	}
}

func TestFileSize_Closed(t *testing.T) {
	f := tempFile(t, []byte("x"), os.O_RDONLY)
	f.Close()
	if n, err := FileSize(f); n != -1 || err == nil {
		t.Errorf("FileSize on closed file = %d, %v", n, err)
	}
}
