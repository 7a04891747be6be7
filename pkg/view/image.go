// Package view derives images and graphs from raw frames: overviews, foil
// sums, phase and contrast maps, radial profiles and the beam centre.
//
// Every reduction allocates a fresh view and leaves its source frame
// untouched.
package view

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrShapeMismatch is returned when two views of different size are combined.
var ErrShapeMismatch = errors.New("view shape mismatch")

// Pixels is the pixel buffer of an image. It is either Counts or Values.
type Pixels interface {
	Len() int
	At(i int) float64
	isPixels()
}

// Counts holds integer pixel data (sums, overviews).
type Counts []uint32

// Values holds floating point pixel data (phases, contrasts, logarithms).
type Values []float64

func (c Counts) Len() int { return len(c) }
func (c Counts) At(i int) float64 { return float64(c[i]) }
func (Counts) isPixels() {}
func (v Values) Len() int { return len(v) }
func (v Values) At(i int) float64 { return v[i] }
func (Values) isPixels() {}

// Image is a 2D view. The zero value is an empty image without pixels.
type Image struct {
	width, height int
	pix           Pixels

	ranged     bool
	min, max   float64
	maxX, maxY int
}

// NewCountImage wraps counts as a width x height image.
func NewCountImage(width, height int, counts []uint32) (*Image, error) {
	if width*height != len(counts) {
		return nil, fmt.Errorf("%w: %d counts for %dx%d", ErrShapeMismatch, len(counts), width, height)
	}
	return &Image{width: width, height: height, pix: Counts(counts)}, nil
}

// NewValueImage wraps values as a width x height image.
func NewValueImage(width, height int, values []float64) (*Image, error) {
	if width*height != len(values) {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrShapeMismatch, len(values), width, height)
	}
	return &Image{width: width, height: height, pix: Values(values)}, nil
}

func (img *Image) Width() int  { return img.width }
func (img *Image) Height() int { return img.height }

// Empty reports whether the image has no pixels.
func (img *Image) Empty() bool {
	return img == nil || img.pix == nil || img.pix.Len() == 0
}

// Pixels returns the pixel buffer, nil for an empty image.
func (img *Image) Pixels() Pixels { return img.pix }

// IsCounts reports whether the image holds integer counts.
func (img *Image) IsCounts() bool {
	_, ok := img.pix.(Counts)
	return ok
}

// Counts returns the integer pixels, or nil for a value image.
func (img *Image) Counts() []uint32 {
	c, _ := img.pix.(Counts)
	return c
}

// Values returns the floating point pixels, or nil for a count image.
func (img *Image) Values() []float64 {
	v, _ := img.pix.(Values)
	return v
}

// At returns pixel (x, y) as a float.
func (img *Image) At(x, y int) float64 {
	return img.pix.At(y*img.width + x)
}

// CountAt returns pixel (x, y) as an integer, rounding value images.
func (img *Image) CountAt(x, y int) uint32 {
	switch p := img.pix.(type) {
	case Counts:
		return p[y*img.width+x]
	case Values:
		return toCount(p[y*img.width+x])
	}
	return 0
}

// Set writes pixel (x, y). Count images round and clamp v.
func (img *Image) Set(x, y int, v float64) {
	i := y*img.width + x
	switch p := img.pix.(type) {
	case Counts:
		p[i] = toCount(v)
	case Values:
		p[i] = v
	}
	img.ranged = false
}

func toCount(v float64) uint32 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(math.Round(v))
}

// UpdateRange recomputes the cached minimum, maximum and position of the
// maximum.
func (img *Image) UpdateRange() {
	img.ranged = false
	if img.Empty() {
		return
	}
	img.min, img.max = math.Inf(1), math.Inf(-1)
	for i := 0; i < img.pix.Len(); i++ {
		v := img.pix.At(i)
		if math.IsNaN(v) {
			continue
		}
		if v < img.min {
			img.min = v
		}
		if v > img.max {
			img.max = v
			img.maxX, img.maxY = i%img.width, i/img.width
		}
	}
	img.ranged = true
}

// Range returns the cached bounds. ok is false until UpdateRange has run
// after the last change.
func (img *Image) Range() (min, max float64, ok bool) {
	return img.min, img.max, img.ranged
}

// MaxPos returns the cached position of the maximum.
func (img *Image) MaxPos() (x, y int, ok bool) {
	return img.maxX, img.maxY, img.ranged
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	c := *img
	switch p := img.pix.(type) {
	case Counts:
		c.pix = append(Counts(nil), p...)
	case Values:
		c.pix = append(Values(nil), p...)
	}
	return &c
}

// Add adds other pixel by pixel. Two count images stay counts; any other
// combination yields values. An empty receiver takes a copy of other.
func (img *Image) Add(other *Image) error {
	if other.Empty() {
		return nil
	}
	if img.Empty() {
		*img = *other.Clone()
		img.ranged = false
		return nil
	}
	if img.width != other.width || img.height != other.height {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, img.width, img.height, other.width, other.height)
	}

	a, aok := img.pix.(Counts)
	b, bok := other.pix.(Counts)
	if aok && bok {
		for i := range a {
			a[i] += b[i]
		}
	} else {
		sum := make(Values, img.pix.Len())
		for i := range sum {
			sum[i] = img.pix.At(i) + other.pix.At(i)
		}
		img.pix = sum
	}
	img.ranged = false
	return nil
}

// LogFloor is the value Log10 assigns to pixels without counts.
const LogFloor = -1.0

// Log10 returns a value image of log10 of every pixel. Pixels <= 0 map to
// LogFloor.
func (img *Image) Log10() *Image {
	out := &Image{width: img.width, height: img.height}
	if img.Empty() {
		return out
	}
	vals := make(Values, img.pix.Len())
	for i := range vals {
		vals[i] = safeLog10(img.pix.At(i))
	}
	out.pix = vals
	return out
}

func safeLog10(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return LogFloor
	}
	return math.Log10(v)
}

// ToDegrees returns a value image with every pixel converted from radians.
func (img *Image) ToDegrees() *Image {
	out := &Image{width: img.width, height: img.height}
	if img.Empty() {
		return out
	}
	vals := make(Values, img.pix.Len())
	for i := range vals {
		vals[i] = img.pix.At(i) * 180 / math.Pi
	}
	out.pix = vals
	return out
}

// SubImage copies the pixels inside r (clipped to the image).
func (img *Image) SubImage(r image.Rectangle) *Image {
	r = r.Intersect(image.Rect(0, 0, img.width, img.height))
	out := &Image{width: r.Dx(), height: r.Dy()}
	if img.Empty() || r.Empty() {
		return out
	}
	switch p := img.pix.(type) {
	case Counts:
		c := make(Counts, 0, r.Dx()*r.Dy())
		for y := r.Min.Y; y < r.Max.Y; y++ {
			c = append(c, p[y*img.width+r.Min.X:y*img.width+r.Max.X]...)
		}
		out.pix = c
	case Values:
		v := make(Values, 0, r.Dx()*r.Dy())
		for y := r.Min.Y; y < r.Max.Y; y++ {
			v = append(v, p[y*img.width+r.Min.X:y*img.width+r.Max.X]...)
		}
		out.pix = v
	}
	return out
}

// floats returns the pixels as a fresh float slice.
func (img *Image) floats() []float64 {
	out := make([]float64, img.pix.Len())
	for i := range out {
		out[i] = img.pix.At(i)
	}
	return out
}
