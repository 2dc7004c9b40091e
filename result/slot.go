// Package result implements the Result Slot convention: a fixed pair of
// signed 64-bit slots carrying a discriminated outcome across a boundary
// that cannot propagate Go errors.
//
//	success: [0] = 0,  [1] = value (a descriptor for bind/connect)
//	failure: [0] = -1, [1] = error code (errno or getaddrinfo-style)
//
// Callers branch on slot 0 alone. The binary form is 16 bytes, little-endian,
// slot 0 first.
package result

import (
	"encoding/binary"

	"github.com/wippyai/hostlayer/errors"
)

const (
	StatusOK     int64 = 0
	StatusFailed int64 = -1

	// Size is the encoded size of a Slot in bytes.
	Size = 16
)

// Slot is the two-slot discriminated outcome.
type Slot [2]int64

// OK returns a success slot holding value.
func OK(value int64) Slot {
	return Slot{StatusOK, value}
}

// Fail returns a failure slot holding code.
func Fail(code int64) Slot {
	return Slot{StatusFailed, code}
}

// From builds a slot from a Go (value, error) pair. A failure carries the
// error's OS code, or -1 when the error has none.
func From(value int64, err error) Slot {
	if err != nil {
		return Fail(int64(Code(err)))
	}
	return OK(value)
}

// Code returns the number a boundary caller sees for err.
func Code(err error) int {
	return errors.CodeOf(err, -1)
}

func (s Slot) Status() int64 { return s[0] }

func (s Slot) Value() int64 { return s[1] }

func (s Slot) Failed() bool { return s[0] == StatusFailed }

// Encode writes the slot into dst, which must hold at least Size bytes.
func (s Slot) Encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(s[0]))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(s[1]))
}

// Bytes returns the encoded slot.
func (s Slot) Bytes() []byte {
	b := make([]byte, Size)
	s.Encode(b)
	return b
}

// Decode reads a slot from src. It reports false when src is too short.
func Decode(src []byte) (Slot, bool) {
	if len(src) < Size {
		return Slot{}, false
	}
	return Slot{
		int64(binary.LittleEndian.Uint64(src[0:8])),
		int64(binary.LittleEndian.Uint64(src[8:16])),
	}, true
}
