// Package geometry describes the dimensions of detector frames and negotiates
// them against the payload sizes a data server actually sends.
package geometry

import (
	"fmt"
)

// BytesPerCount is the size of one detector count on disk and on the wire.
const BytesPerCount = 4

// Upper bounds for dimensions read from files and server messages. They keep
// every buffer length far below the range of int.
const (
	MaxImageSide = 1 << 16
	MaxImages    = 1 << 16
)

// Kind distinguishes the two acquisition modes of the detector.
type Kind int

const (
	// PAD is a single position-sensitive image.
	PAD Kind = iota
	// TOF is a stack of images indexed by foil and time channel.
	TOF
)

// String returns the short name used in logs and file headers
func (k Kind) String() string {
	switch k {
	case PAD:
		return "pad"
	case TOF:
		return "tof"
	default:
		return "unknown"
	}
}

// Geometry holds the dimensions of a TOF stack (a PAD image uses only
// Width and Height).
//
// With pseudo compression the stack stores exactly Foils*Timechannels images,
// foil after foil. Without it the server sends ImageCount images and foil f
// starts at image FoilBegin[f]; how ImageCount relates to Foils*Timechannels is
// a property of the encoding and comes from configuration.
type Geometry struct {
	Width        int
	Height       int
	Foils        int
	Timechannels int

	// ImageCount is the number of images in the non-pseudo-compressed encoding.
	ImageCount int

	// FoilBegin is the first image index of each foil in the
	// non-pseudo-compressed encoding.
	FoilBegin []int

	PseudoCompression bool
}

// New creates a geometry whose non-compressed layout packs the foils
// back to back, so that both encodings address images the same way.
func New(width, height, foils, timechannels int) Geometry {
	g := Geometry{
		Width:        width,
		Height:       height,
		Foils:        foils,
		Timechannels: timechannels,
		ImageCount:   foils * timechannels,
	}
	g.FoilBegin = uniformLayout(foils, timechannels)
	return g
}

func uniformLayout(foils, timechannels int) []int {
	if foils < 0 {
		foils = 0
	}
	begin := make([]int, foils)
	for f := range begin {
		begin[f] = f * timechannels
	}
	return begin
}

// Validate checks that all dimensions are positive and that every foil
// fits into the stored image stack.
func (g Geometry) Validate() error {
	if g.Width < 1 || g.Height < 1 {
		return fmt.Errorf("invalid image size %dx%d", g.Width, g.Height)
	}
	if g.Foils < 1 || g.Timechannels < 1 {
		return fmt.Errorf("invalid stack size: %d foils, %d time channels", g.Foils, g.Timechannels)
	}
	if g.Width > MaxImageSide || g.Height > MaxImageSide {
		return fmt.Errorf("image size %dx%d exceeds %d", g.Width, g.Height, MaxImageSide)
	}
	if g.Foils > MaxImages || g.Timechannels > MaxImages || g.Foils*g.Timechannels > MaxImages {
		return fmt.Errorf("stack of %d foils x %d time channels exceeds %d images", g.Foils, g.Timechannels, MaxImages)
	}
	if g.PseudoCompression {
		return nil
	}
	if g.ImageCount < 1 || g.ImageCount > MaxImages {
		return fmt.Errorf("invalid image count %d", g.ImageCount)
	}
	if len(g.FoilBegin) != g.Foils {
		return fmt.Errorf("foil layout has %d entries, expected %d", len(g.FoilBegin), g.Foils)
	}
	for f, begin := range g.FoilBegin {
		if begin < 0 || begin+g.Timechannels > g.ImageCount {
			return fmt.Errorf("foil %d (images %d..%d) exceeds image count %d",
				f, begin, begin+g.Timechannels-1, g.ImageCount)
		}
	}
	return nil
}

// Clone returns a copy that shares no memory with g.
func (g Geometry) Clone() Geometry {
	c := g
	c.FoilBegin = append([]int(nil), g.FoilBegin...)
	return c
}

// Equal reports whether two geometries describe the same memory layout.
func (g Geometry) Equal(o Geometry) bool {
	if g.Width != o.Width || g.Height != o.Height || g.Foils != o.Foils ||
		g.Timechannels != o.Timechannels || g.PseudoCompression != o.PseudoCompression {
		return false
	}
	if g.PseudoCompression {
		return true
	}
	if g.ImageCount != o.ImageCount || len(g.FoilBegin) != len(o.FoilBegin) {
		return false
	}
	for i := range g.FoilBegin {
		if g.FoilBegin[i] != o.FoilBegin[i] {
			return false
		}
	}
	return true
}

// PixelsPerImage returns Width*Height.
func (g Geometry) PixelsPerImage() int {
	return g.Width * g.Height
}

// StoredImages returns the number of images held in a TOF buffer.
func (g Geometry) StoredImages() int {
	if g.PseudoCompression {
		return g.Foils * g.Timechannels
	}
	return g.ImageCount
}

// ImageIndex maps a (foil, time channel) pair to its position in the
// stored image stack.
func (g Geometry) ImageIndex(foil, timechannel int) int {
	if g.PseudoCompression || len(g.FoilBegin) <= foil {
		return foil*g.Timechannels + timechannel
	}
	return g.FoilBegin[foil] + timechannel
}

// Index returns the linear buffer offset of count (foil, timechannel, x, y).
// Callers are responsible for range checks (see InRange).
func (g Geometry) Index(foil, timechannel, x, y int) int {
	return (g.ImageIndex(foil, timechannel)*g.Height+y)*g.Width + x
}

// InRange reports whether (foil, timechannel, x, y) addresses a count of the stack.
func (g Geometry) InRange(foil, timechannel, x, y int) bool {
	return foil >= 0 && foil < g.Foils &&
		timechannel >= 0 && timechannel < g.Timechannels &&
		x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// BufferLen returns the number of counts of a buffer of the given kind.
func (g Geometry) BufferLen(kind Kind) int {
	if kind == PAD {
		return g.PixelsPerImage()
	}
	return g.StoredImages() * g.PixelsPerImage()
}

// ExpectedByteCount returns the payload size the server sends for a frame
// of the given kind.
func (g Geometry) ExpectedByteCount(kind Kind) int {
	return BytesPerCount * g.BufferLen(kind)
}

// WithImageCount returns a copy of g using n images in the non-compressed
// encoding. If the current foil layout does not fit into n images, the foils
// are re-laid back to back with n/Foils time channels each.
func (g Geometry) WithImageCount(n int) Geometry {
	c := g.Clone()
	c.ImageCount = n
	if c.Validate() == nil {
		return c
	}
	if c.Foils > 0 && n/c.Foils > 0 {
		c.Timechannels = n / c.Foils
		c.FoilBegin = uniformLayout(c.Foils, c.Timechannels)
	}
	return c
}

// WithImageSize returns a copy of g with a different image resolution.
func (g Geometry) WithImageSize(width, height int) Geometry {
	c := g.Clone()
	c.Width = width
	c.Height = height
	return c
}

// String formats the geometry for log output
func (g Geometry) String() string {
	mode := "uncompressed"
	if g.PseudoCompression {
		mode = "pseudo-compressed"
	}
	return fmt.Sprintf("%dx%d, %d foils x %d tc, %d images (%s)",
		g.Width, g.Height, g.Foils, g.Timechannels, g.StoredImages(), mode)
}
