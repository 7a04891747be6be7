// Package frame holds raw detector counts: TOF stacks addressed by foil,
// time channel and pixel, and single PAD images.
//
// Both stores guard their buffer with a read/write lock. Loads and
// reinitialisation take the write lock and swap in a fully staged buffer,
// so readers never observe a half-written frame. A failed load keeps the
// previous buffer but marks the store invalid; every read then fails with
// ErrLoad until a load succeeds again.
package frame

import (
	"encoding/binary"
	"fmt"
	"image"
	"os"
	"sync"

	"cascade/pkg/geometry"
	"cascade/pkg/roi"
)

// store is the state shared by Tof and Pad.
type store struct {
	mu sync.RWMutex

	kind   geometry.Kind
	geom   geometry.Geometry
	buf    Buffer
	roi    *roi.Roi
	mask   []bool
	useRoi bool
	ok     bool
	meta   map[string]string
}

func newStore(kind geometry.Kind, g geometry.Geometry, buf Buffer) *store {
	s := &store{
		kind: kind,
		buf:  buf,
		ok:   true,
		meta: make(map[string]string),
	}
	s.geom = s.normalize(g)
	s.updateMask()
	return s
}

// Geometry returns a copy of the current geometry.
func (s *store) Geometry() geometry.Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geom.Clone()
}

// Ok reports whether the last load succeeded.
func (s *store) Ok() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ok
}

// IsExternal reports whether the counts live in caller memory.
func (s *store) IsExternal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.IsBorrowed()
}

// SetRoi installs a copy of r as the masking region. A nil region clears it.
func (s *store) SetRoi(r *roi.Roi) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roi = r.Clone()
	s.updateMask()
}

// Roi returns a copy of the masking region, or nil.
func (s *store) Roi() *roi.Roi {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roi.Clone()
}

// UseRoi switches masking on or off.
func (s *store) UseRoi(use bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useRoi = use
}

// UsesRoi reports whether masking is on.
func (s *store) UsesRoi() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.useRoi
}

// Metadata returns a copy of the local key/value metadata.
func (s *store) Metadata() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(map[string]string, len(s.meta))
	for k, v := range s.meta {
		m[k] = v
	}
	return m
}

// SetMetadata sets one metadata entry.
func (s *store) SetMetadata(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		s.meta = make(map[string]string)
	}
	s.meta[key] = value
}

// Clear zeroes the counts. Borrowed memory is not touched.
func (s *store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Clear()
}

// Close drops the buffer. Caller memory of an external store stays valid.
func (s *store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Release()
	s.ok = false
}

// Reinit drops the current buffer and allocates a zeroed one for g. The
// region and masking flag survive; the mask is rebuilt for the new size.
func (s *store) Reinit(g geometry.Geometry) error {
	g = s.normalize(g)
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Release()
	s.geom = g
	s.buf = Owned(g.BufferLen(s.kind))
	s.ok = true
	s.updateMask()
	return nil
}

// SetExternal makes the store reference caller memory laid out for g.
func (s *store) SetExternal(g geometry.Geometry, data []uint32) error {
	g = s.normalize(g)
	if err := g.Validate(); err != nil {
		return err
	}
	if want := g.BufferLen(s.kind); len(data) != want {
		return &LoadError{Reason: fmt.Sprintf("external buffer has %d counts, expected %d", len(data), want)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Release()
	s.geom = g
	s.buf = Borrowed(data)
	s.ok = true
	s.updateMask()
	return nil
}

// Load reads a binary frame file and its metadata sidecar, if any.
func (s *store) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		s.fail()
		return &LoadError{Path: path, Reason: err.Error()}
	}
	meta, err := readSidecar(path)
	if err != nil {
		s.fail()
		return &LoadError{Path: path, Reason: err.Error()}
	}
	if err := s.load(path, b); err != nil {
		return err
	}
	if meta != nil {
		s.mu.Lock()
		s.meta = meta
		s.mu.Unlock()
	}
	return nil
}

// LoadBytes reads an in-memory binary frame including its header.
func (s *store) LoadBytes(b []byte) error {
	return s.load("", b)
}

func (s *store) load(path string, b []byte) error {
	kind, g, counts, err := decodeFrame(b)
	if err == nil && kind != s.kind {
		err = fmt.Errorf("file holds a %s frame, expected %s", kind, s.kind)
	}
	if err != nil {
		s.fail()
		return &LoadError{Path: path, Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Release()
	s.geom = s.normalize(g)
	s.buf = Buffer{data: counts}
	s.ok = true
	s.updateMask()
	return nil
}

// LoadRaw fills the store from a headerless little-endian payload laid out
// for the current geometry, as delivered by the data server.
func (s *store) LoadRaw(b []byte) error {
	s.mu.RLock()
	want := s.geom.ExpectedByteCount(s.kind)
	s.mu.RUnlock()

	if len(b) != want {
		s.fail()
		return &LoadError{Reason: fmt.Sprintf("payload has %d bytes, expected %d", len(b), want)}
	}
	counts := decodeCounts(b, binary.LittleEndian)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Release()
	s.buf = Buffer{data: counts}
	s.ok = true
	return nil
}

func (s *store) fail() {
	s.mu.Lock()
	s.ok = false
	s.mu.Unlock()
}

// normalize collapses the stack dimensions of a PAD geometry.
func (s *store) normalize(g geometry.Geometry) geometry.Geometry {
	if s.kind == geometry.PAD {
		return geometry.New(g.Width, g.Height, 1, 1)
	}
	return g.Clone()
}

// updateMask rebuilds the pixel mask. Callers hold the write lock.
func (s *store) updateMask() {
	if s.roi == nil {
		s.mask = make([]bool, s.geom.PixelsPerImage())
		return
	}
	s.mask = s.roi.Mask(s.geom.Width, s.geom.Height)
}

// counted reports whether pixel p takes part in ROI-honouring sums.
// Callers hold a lock.
func (s *store) counted(p int) bool {
	return !s.useRoi || s.mask[p]
}

// sumImage adds up one stored image. Callers hold a lock.
func (s *store) sumImage(img int) uint64 {
	ppi := s.geom.PixelsPerImage()
	data := s.buf.data[img*ppi : (img+1)*ppi]
	var sum uint64
	for p, v := range data {
		if s.counted(p) {
			sum += uint64(v)
		}
	}
	return sum
}

// sumRect adds up the pixels of one stored image inside r, ignoring the
// mask. Callers hold a lock.
func (s *store) sumRect(img int, r image.Rectangle) uint64 {
	ppi := s.geom.PixelsPerImage()
	base := img * ppi
	r = r.Intersect(image.Rect(0, 0, s.geom.Width, s.geom.Height))
	var sum uint64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := base + y*s.geom.Width
		for x := r.Min.X; x < r.Max.X; x++ {
			sum += uint64(s.buf.data[row+x])
		}
	}
	return sum
}

// snapshot copies the counts under the read lock.
func (s *store) snapshot() (geometry.Geometry, []uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ok {
		return geometry.Geometry{}, nil, ErrLoad
	}
	return s.geom.Clone(), append([]uint32(nil), s.buf.data...), nil
}

// subtract removes round(scale*other) from every count, clamping at zero.
func (s *store) subtract(other *store, scale float64) error {
	og, od, err := other.snapshot()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return ErrLoad
	}
	if !s.geom.Equal(og) || len(od) != len(s.buf.data) {
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, s.geom, og)
	}
	for i, a := range s.buf.data {
		b := roundScaled(od[i], scale)
		if b >= uint64(a) {
			s.buf.data[i] = 0
		} else {
			s.buf.data[i] = a - uint32(b)
		}
	}
	return nil
}

func roundScaled(v uint32, scale float64) uint64 {
	f := float64(v)*scale + 0.5
	if f <= 0 {
		return 0
	}
	return uint64(f)
}

// clone copies the whole state into a store with owned memory.
func (s *store) clone() *store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := &store{
		kind:   s.kind,
		geom:   s.geom.Clone(),
		buf:    Buffer{data: append([]uint32(nil), s.buf.data...)},
		roi:    s.roi.Clone(),
		mask:   append([]bool(nil), s.mask...),
		useRoi: s.useRoi,
		ok:     s.ok,
		meta:   make(map[string]string, len(s.meta)),
	}
	for k, v := range s.meta {
		c.meta[k] = v
	}
	return c
}

// Read runs fn with a consistent view of the counts under the read lock.
// fn must not keep references to the slices after it returns.
func (s *store) Read(fn func(Data) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ok {
		return ErrLoad
	}
	d := Data{Geometry: s.geom, Counts: s.buf.data}
	if s.useRoi {
		d.Mask = s.mask
	}
	return fn(d)
}

// Data is a read-only view of a store handed to Read callbacks.
type Data struct {
	Geometry geometry.Geometry
	Counts   []uint32

	// Mask is nil when ROI masking is off.
	Mask []bool
}

// Image returns the pixels of (foil, timechannel).
func (d Data) Image(foil, timechannel int) []uint32 {
	ppi := d.Geometry.PixelsPerImage()
	base := d.Geometry.ImageIndex(foil, timechannel) * ppi
	return d.Counts[base : base+ppi]
}

// At returns count (foil, timechannel, x, y) without range checks.
func (d Data) At(foil, timechannel, x, y int) uint32 {
	return d.Counts[d.Geometry.Index(foil, timechannel, x, y)]
}

// Inside reports whether pixel p passes the mask.
func (d Data) Inside(p int) bool {
	return d.Mask == nil || d.Mask[p]
}
