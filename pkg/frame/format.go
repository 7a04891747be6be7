package frame

import (
	"encoding/binary"
	"fmt"

	"cascade/pkg/geometry"
)

// Binary frame files start with a fixed header, followed by the flat count
// array in buffer order:
//
//	magic        [4]byte  "CTOF" or "CPAD"
//	order mark   uint32   0x01020304 in the byte order of the file
//	width        uint32
//	height       uint32
//	-- TOF only --
//	foils        uint32
//	timechannels uint32
//	image count  uint32
//	flags        uint32   bit 0: pseudo compression
//	foil begin   [foils]uint32
//
// Files are written little endian. Files whose order mark reads byte
// swapped are converted word by word on load.
const (
	byteOrderMark = 0x01020304

	flagPseudoCompression = 1 << 0

	padHeaderSize = 16
	tofHeaderSize = 32
)

var (
	magicTof = [4]byte{'C', 'T', 'O', 'F'}
	magicPad = [4]byte{'C', 'P', 'A', 'D'}
)

func headerSize(kind geometry.Kind, g geometry.Geometry) int {
	if kind == geometry.PAD {
		return padHeaderSize
	}
	return tofHeaderSize + geometry.BytesPerCount*g.Foils
}

// encodeFrame serializes geometry and counts into the binary file layout.
func encodeFrame(kind geometry.Kind, g geometry.Geometry, counts []uint32) []byte {
	hdr := headerSize(kind, g)
	out := make([]byte, hdr+geometry.BytesPerCount*len(counts))
	le := binary.LittleEndian

	if kind == geometry.PAD {
		copy(out[0:4], magicPad[:])
	} else {
		copy(out[0:4], magicTof[:])
	}
	le.PutUint32(out[4:], byteOrderMark)
	le.PutUint32(out[8:], uint32(g.Width))
	le.PutUint32(out[12:], uint32(g.Height))

	if kind == geometry.TOF {
		le.PutUint32(out[16:], uint32(g.Foils))
		le.PutUint32(out[20:], uint32(g.Timechannels))
		le.PutUint32(out[24:], uint32(g.ImageCount))
		var flags uint32
		if g.PseudoCompression {
			flags |= flagPseudoCompression
		}
		le.PutUint32(out[28:], flags)
		for f := 0; f < g.Foils; f++ {
			begin := f * g.Timechannels
			if f < len(g.FoilBegin) {
				begin = g.FoilBegin[f]
			}
			le.PutUint32(out[tofHeaderSize+4*f:], uint32(begin))
		}
	}

	putCounts(out[hdr:], counts, le)
	return out
}

// decodeFrame parses a binary frame file. The returned counts are a fresh
// allocation.
func decodeFrame(b []byte) (geometry.Kind, geometry.Geometry, []uint32, error) {
	var g geometry.Geometry
	if len(b) < padHeaderSize {
		return 0, g, nil, fmt.Errorf("header truncated (%d bytes)", len(b))
	}

	var kind geometry.Kind
	switch {
	case [4]byte(b[0:4]) == magicTof:
		kind = geometry.TOF
	case [4]byte(b[0:4]) == magicPad:
		kind = geometry.PAD
	default:
		return 0, g, nil, fmt.Errorf("unknown magic %q", b[0:4])
	}

	var order binary.ByteOrder = binary.LittleEndian
	swapped := false
	switch binary.LittleEndian.Uint32(b[4:]) {
	case byteOrderMark:
	case SwapEndian(byteOrderMark):
		order = binary.BigEndian
		swapped = true
	default:
		return 0, g, nil, fmt.Errorf("invalid byte order mark 0x%08x", binary.LittleEndian.Uint32(b[4:]))
	}

	g.Width = int(order.Uint32(b[8:]))
	g.Height = int(order.Uint32(b[12:]))
	g.Foils, g.Timechannels, g.ImageCount = 1, 1, 1
	g.FoilBegin = []int{0}

	if kind == geometry.TOF {
		if len(b) < tofHeaderSize {
			return 0, g, nil, fmt.Errorf("tof header truncated (%d bytes)", len(b))
		}
		g.Foils = int(order.Uint32(b[16:]))
		g.Timechannels = int(order.Uint32(b[20:]))
		g.ImageCount = int(order.Uint32(b[24:]))
		g.PseudoCompression = order.Uint32(b[28:])&flagPseudoCompression != 0

		if g.Foils < 1 || g.Foils > 1<<16 {
			return 0, g, nil, fmt.Errorf("invalid foil count %d", g.Foils)
		}
		if len(b) < headerSize(kind, g) {
			return 0, g, nil, fmt.Errorf("foil table truncated (%d bytes)", len(b))
		}
		g.FoilBegin = make([]int, g.Foils)
		for f := range g.FoilBegin {
			g.FoilBegin[f] = int(order.Uint32(b[tofHeaderSize+4*f:]))
		}
	}

	if err := g.Validate(); err != nil {
		return 0, g, nil, err
	}

	// Validate bounds the dimensions, so the buffer length cannot overflow.
	hdr := headerSize(kind, g)
	n := len(b) - hdr
	words := n / geometry.BytesPerCount
	ppi := g.PixelsPerImage()
	images := g.BufferLen(kind) / ppi
	if n%geometry.BytesPerCount != 0 || words%ppi != 0 || words/ppi != images {
		return 0, g, nil, fmt.Errorf("payload has %d bytes, geometry %v needs %d",
			n, g, g.ExpectedByteCount(kind))
	}

	counts := decodeCounts(b[hdr:], binary.LittleEndian)
	if swapped {
		SwapBuffer(counts)
	}
	return kind, g, counts, nil
}

func decodeCounts(b []byte, order binary.ByteOrder) []uint32 {
	counts := make([]uint32, len(b)/geometry.BytesPerCount)
	for i := range counts {
		counts[i] = order.Uint32(b[4*i:])
	}
	return counts
}

func putCounts(dst []byte, counts []uint32, order binary.ByteOrder) {
	for i, c := range counts {
		order.PutUint32(dst[4*i:], c)
	}
}
