package hostlayer

// Memory is the view of a guest's linear memory used by the guest ABI.
// wazero's api.Memory satisfies it. Offsets are guest addresses; every
// method reports false when the range is out of bounds.
type Memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	WriteUint32Le(offset, v uint32) bool
	WriteUint64Le(offset uint32, v uint64) bool
}

// ByteMemory is a Memory over a plain byte slice. The console and tests use
// it to drive the guest ABI without a wasm instance.
type ByteMemory []byte

func (m ByteMemory) Size() uint32 { return uint32(len(m)) }

func (m ByteMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.inRange(offset, uint64(byteCount)) {
		return nil, false
	}
	return m[offset : offset+byteCount : offset+byteCount], true
}

func (m ByteMemory) Write(offset uint32, v []byte) bool {
	if !m.inRange(offset, uint64(len(v))) {
		return false
	}
	copy(m[offset:], v)
	return true
}

func (m ByteMemory) WriteUint32Le(offset, v uint32) bool {
	return m.Write(offset, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func (m ByteMemory) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.WriteUint32Le(offset, uint32(v)) {
		return false
	}
	return m.WriteUint32Le(offset+4, uint32(v>>32))
}

func (m ByteMemory) inRange(offset uint32, n uint64) bool {
	return uint64(offset)+n <= uint64(len(m))
}
