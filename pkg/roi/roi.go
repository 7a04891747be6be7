// Package roi implements regions of interest: ordered lists of geometric
// shapes used to mask which detector pixels take part in an aggregation.
//
// A point belongs to a region if any enabled shape contains it. All queries
// are read-only, so a Roi may be shared between goroutines as long as
// nobody edits it at the same time.
package roi

import (
	"fmt"
	"math"
)

// Element is one shape of a region together with its enabled flag.
type Element struct {
	Shape   Shape
	Enabled bool
}

// Roi is an ordered sequence of shape elements.
type Roi struct {
	elements []Element
}

// New creates a region from the given shapes, all enabled. Nil shapes are
// skipped.
func New(shapes ...Shape) *Roi {
	r := &Roi{}
	for _, s := range shapes {
		_, _ = r.Add(s)
	}
	return r
}

// Add appends an enabled shape and returns its index.
func (r *Roi) Add(s Shape) (int, error) {
	if s == nil {
		return -1, fmt.Errorf("roi element must not be nil")
	}
	r.elements = append(r.elements, Element{Shape: s, Enabled: true})
	return len(r.elements) - 1, nil
}

// Len returns the number of elements, enabled or not.
func (r *Roi) Len() int {
	if r == nil {
		return 0
	}
	return len(r.elements)
}

// Element returns element i.
func (r *Roi) Element(i int) (Element, error) {
	if i < 0 || i >= r.Len() {
		return Element{}, fmt.Errorf("roi element %d out of range (have %d)", i, r.Len())
	}
	return r.elements[i], nil
}

// SetEnabled switches element i on or off.
func (r *Roi) SetEnabled(i int, enabled bool) error {
	if i < 0 || i >= r.Len() {
		return fmt.Errorf("roi element %d out of range (have %d)", i, r.Len())
	}
	r.elements[i].Enabled = enabled
	return nil
}

// Remove deletes element i, keeping the order of the others.
func (r *Roi) Remove(i int) error {
	if i < 0 || i >= r.Len() {
		return fmt.Errorf("roi element %d out of range (have %d)", i, r.Len())
	}
	r.elements = append(r.elements[:i], r.elements[i+1:]...)
	return nil
}

// Clear removes all elements.
func (r *Roi) Clear() {
	r.elements = nil
}

// Clone returns a deep copy.
func (r *Roi) Clone() *Roi {
	if r == nil {
		return nil
	}
	c := &Roi{elements: make([]Element, len(r.elements))}
	for i, e := range r.elements {
		if p, ok := e.Shape.(Polygon); ok {
			p.Vertices = append([]Point(nil), p.Vertices...)
			e.Shape = p
		}
		c.elements[i] = e
	}
	return c
}

// Enabled returns the number of enabled elements.
func (r *Roi) Enabled() int {
	n := 0
	if r == nil {
		return n
	}
	for _, e := range r.elements {
		if e.Enabled {
			n++
		}
	}
	return n
}

// Contains reports whether any enabled element contains (x, y).
// An empty region contains nothing.
func (r *Roi) Contains(x, y float64) bool {
	if r == nil {
		return false
	}
	for _, e := range r.elements {
		if e.Enabled && e.Shape != nil && e.Shape.Contains(x, y) {
			return true
		}
	}
	return false
}

// ContainsPixel tests the centre of pixel (x, y).
func (r *Roi) ContainsPixel(x, y int) bool {
	return r.Contains(float64(x)+0.5, float64(y)+0.5)
}

// BoundingBox returns the box enclosing all enabled elements. ok is false
// when no element is enabled.
func (r *Roi) BoundingBox() (lo, hi Point, ok bool) {
	lo = Point{X: math.Inf(1), Y: math.Inf(1)}
	hi = Point{X: math.Inf(-1), Y: math.Inf(-1)}
	if r == nil {
		return Point{}, Point{}, false
	}
	for _, e := range r.elements {
		if !e.Enabled || e.Shape == nil {
			continue
		}
		l, h := e.Shape.Bounds()
		lo.X, lo.Y = math.Min(lo.X, l.X), math.Min(lo.Y, l.Y)
		hi.X, hi.Y = math.Max(hi.X, h.X), math.Max(hi.Y, h.Y)
		ok = true
	}
	if !ok {
		return Point{}, Point{}, false
	}
	return lo, hi, true
}

// Mask evaluates the region on a width x height pixel grid (row-major).
// Only pixels inside the bounding box are tested.
func (r *Roi) Mask(width, height int) []bool {
	mask := make([]bool, width*height)
	lo, hi, ok := r.BoundingBox()
	if !ok {
		return mask
	}

	x0 := clamp(int(math.Floor(lo.X))-1, 0, width)
	x1 := clamp(int(math.Ceil(hi.X))+1, 0, width)
	y0 := clamp(int(math.Floor(lo.Y))-1, 0, height)
	y1 := clamp(int(math.Ceil(hi.Y))+1, 0, height)

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			mask[y*width+x] = r.ContainsPixel(x, y)
		}
	}
	return mask
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
