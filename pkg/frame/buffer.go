package frame

// Buffer holds the flat count array of a frame. It either owns its memory
// or borrows a slice supplied by the caller (for example the receive buffer
// of a transport), which it only references and never releases or reuses.
type Buffer struct {
	data     []uint32
	borrowed bool
}

// Owned allocates a zeroed buffer of n counts.
func Owned(n int) Buffer {
	return Buffer{data: make([]uint32, n)}
}

// Borrowed wraps caller memory. The caller keeps it alive while the buffer
// is in use.
func Borrowed(data []uint32) Buffer {
	return Buffer{data: data, borrowed: true}
}

// Data returns the underlying counts.
func (b Buffer) Data() []uint32 { return b.data }

// Len returns the number of counts.
func (b Buffer) Len() int { return len(b.data) }

// IsBorrowed reports whether the memory belongs to the caller.
func (b Buffer) IsBorrowed() bool { return b.borrowed }

// Clear zeroes owned memory; borrowed memory is left alone.
func (b Buffer) Clear() {
	if b.borrowed {
		return
	}
	for i := range b.data {
		b.data[i] = 0
	}
}

// Release drops the reference to the counts.
func (b *Buffer) Release() {
	b.data = nil
	b.borrowed = false
}

// SwapEndian converts a 32-bit word between big and little endian.
func SwapEndian(v uint32) uint32 {
	return v>>24 | (v>>8)&0xff00 | (v<<8)&0xff0000 | v<<24
}

// SwapBuffer converts every word of data in place.
func SwapBuffer(data []uint32) {
	for i, v := range data {
		data[i] = SwapEndian(v)
	}
}
