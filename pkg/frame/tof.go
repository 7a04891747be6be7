package frame

import (
	"fmt"
	"image"
	"os"

	"cascade/pkg/geometry"
)

// Tof is a stack of images indexed by foil and time channel.
type Tof struct {
	*store
}

// NewTof creates a zeroed stack for g.
func NewTof(g geometry.Geometry) (*Tof, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Tof{newStore(geometry.TOF, g, Owned(g.BufferLen(geometry.TOF)))}, nil
}

// NewTofExternal creates a stack over caller memory. The store never
// releases or reallocates data; the caller keeps it alive.
func NewTofExternal(g geometry.Geometry, data []uint32) (*Tof, error) {
	t := &Tof{newStore(geometry.TOF, g, Buffer{})}
	if err := t.SetExternal(g, data); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTofFile reads a binary TOF file.
func LoadTofFile(path string) (*Tof, error) {
	t := &Tof{newStore(geometry.TOF, geometry.New(1, 1, 1, 1), Buffer{})}
	if err := t.Load(path); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTofBytes reads a binary TOF frame from memory.
func LoadTofBytes(b []byte) (*Tof, error) {
	t := &Tof{newStore(geometry.TOF, geometry.New(1, 1, 1, 1), Buffer{})}
	if err := t.LoadBytes(b); err != nil {
		return nil, err
	}
	return t, nil
}

// NewTofRandom creates a stack filled with simulated counts.
func NewTofRandom(g geometry.Geometry, seed uint64) (*Tof, error) {
	t, err := NewTof(g)
	if err != nil {
		return nil, err
	}
	GenerateRandom(g, geometry.TOF, t.buf.data, seed)
	return t, nil
}

// Get returns count (foil, timechannel, x, y).
func (t *Tof) Get(foil, timechannel, x, y int) (uint32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, err := t.index(foil, timechannel, x, y)
	if err != nil {
		return 0, err
	}
	return t.buf.data[i], nil
}

// Set writes count (foil, timechannel, x, y).
func (t *Tof) Set(foil, timechannel, x, y int, v uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, err := t.index(foil, timechannel, x, y)
	if err != nil {
		return err
	}
	t.buf.data[i] = v
	return nil
}

// GetInsideRoi returns the count, or 0 for pixels outside an active region.
func (t *Tof) GetInsideRoi(foil, timechannel, x, y int) (uint32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, err := t.index(foil, timechannel, x, y)
	if err != nil {
		return 0, err
	}
	if !t.counted(y*t.geom.Width + x) {
		return 0, nil
	}
	return t.buf.data[i], nil
}

// GetImage returns pixel (x, y) of stored image img, addressing the raw
// image stack rather than (foil, time channel).
func (t *Tof) GetImage(img, x, y int) (uint32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, err := t.imageIndex(img, x, y)
	if err != nil {
		return 0, err
	}
	return t.buf.data[i], nil
}

// SetImage writes pixel (x, y) of stored image img.
func (t *Tof) SetImage(img, x, y int, v uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, err := t.imageIndex(img, x, y)
	if err != nil {
		return err
	}
	t.buf.data[i] = v
	return nil
}

func (t *Tof) index(foil, timechannel, x, y int) (int, error) {
	if !t.ok {
		return 0, ErrLoad
	}
	if !t.geom.InRange(foil, timechannel, x, y) {
		return 0, &IndexError{Foil: foil, Timechannel: timechannel, X: x, Y: y}
	}
	return t.geom.Index(foil, timechannel, x, y), nil
}

func (t *Tof) imageIndex(img, x, y int) (int, error) {
	if !t.ok {
		return 0, ErrLoad
	}
	if img < 0 || img >= t.geom.StoredImages() || x < 0 || x >= t.geom.Width || y < 0 || y >= t.geom.Height {
		return 0, &IndexError{Foil: -1, Timechannel: img, X: x, Y: y}
	}
	return (img*t.geom.Height+y)*t.geom.Width + x, nil
}

// TotalCounts sums every stored image, including images between the foils
// of the non-compressed layout, honouring the region when masking is on.
func (t *Tof) TotalCounts() (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ok {
		return 0, ErrLoad
	}
	var sum uint64
	for img := 0; img < t.geom.StoredImages(); img++ {
		sum += t.sumImage(img)
	}
	return sum, nil
}

// FoilCounts sums the time channels of one foil, honouring the region when
// masking is on.
func (t *Tof) FoilCounts(foil int) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ok {
		return 0, ErrLoad
	}
	if foil < 0 || foil >= t.geom.Foils {
		return 0, &IndexError{Foil: foil}
	}
	return t.foilCounts(foil), nil
}

func (t *Tof) foilCounts(foil int) uint64 {
	var sum uint64
	for tc := 0; tc < t.geom.Timechannels; tc++ {
		sum += t.sumImage(t.geom.ImageIndex(foil, tc))
	}
	return sum
}

// RegionCounts sums the pixels inside r over all foils and time channels.
// The masking region is ignored.
func (t *Tof) RegionCounts(r image.Rectangle) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ok {
		return 0, ErrLoad
	}
	var sum uint64
	for f := 0; f < t.geom.Foils; f++ {
		for tc := 0; tc < t.geom.Timechannels; tc++ {
			sum += t.sumRect(t.geom.ImageIndex(f, tc), r)
		}
	}
	return sum, nil
}

// Subtract removes round(scale*other) from every count, clamping at zero.
// Both stacks must have the same geometry.
func (t *Tof) Subtract(other *Tof, scale float64) error {
	return t.subtract(other.store, scale)
}

// Clone returns an independent copy with owned memory.
func (t *Tof) Clone() *Tof {
	return &Tof{t.clone()}
}

// MarshalBinary encodes the stack in the binary file layout.
func (t *Tof) MarshalBinary() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ok {
		return nil, ErrLoad
	}
	return encodeFrame(geometry.TOF, t.geom, t.buf.data), nil
}

// SaveFile writes the binary file and its metadata sidecar.
func (t *Tof) SaveFile(path string) error {
	b, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("error saving tof: %w", err)
	}
	return writeSidecar(path, t.Metadata())
}
