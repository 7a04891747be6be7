package frame

import (
	"fmt"
	"image"
	"os"

	"cascade/pkg/geometry"
)

// Pad is a single position-sensitive image.
type Pad struct {
	*store
}

// NewPad creates a zeroed width x height image.
func NewPad(width, height int) (*Pad, error) {
	g := geometry.New(width, height, 1, 1)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Pad{newStore(geometry.PAD, g, Owned(g.BufferLen(geometry.PAD)))}, nil
}

// NewPadExternal creates an image over caller memory.
func NewPadExternal(width, height int, data []uint32) (*Pad, error) {
	p := &Pad{newStore(geometry.PAD, geometry.New(1, 1, 1, 1), Buffer{})}
	if err := p.SetExternal(geometry.New(width, height, 1, 1), data); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPadFile reads a binary PAD file.
func LoadPadFile(path string) (*Pad, error) {
	p := &Pad{newStore(geometry.PAD, geometry.New(1, 1, 1, 1), Buffer{})}
	if err := p.Load(path); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPadBytes reads a binary PAD frame from memory.
func LoadPadBytes(b []byte) (*Pad, error) {
	p := &Pad{newStore(geometry.PAD, geometry.New(1, 1, 1, 1), Buffer{})}
	if err := p.LoadBytes(b); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPadRandom creates an image filled with simulated counts.
func NewPadRandom(width, height int, seed uint64) (*Pad, error) {
	p, err := NewPad(width, height)
	if err != nil {
		return nil, err
	}
	GenerateRandom(p.geom, geometry.PAD, p.buf.data, seed)
	return p, nil
}

// Width returns the image width.
func (p *Pad) Width() int { return p.Geometry().Width }

// Height returns the image height.
func (p *Pad) Height() int { return p.Geometry().Height }

// Get returns the count of pixel (x, y).
func (p *Pad) Get(x, y int) (uint32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, err := p.index(x, y)
	if err != nil {
		return 0, err
	}
	return p.buf.data[i], nil
}

// Set writes the count of pixel (x, y).
func (p *Pad) Set(x, y int, v uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, err := p.index(x, y)
	if err != nil {
		return err
	}
	p.buf.data[i] = v
	return nil
}

// GetInsideRoi returns the count, or 0 for pixels outside an active region.
func (p *Pad) GetInsideRoi(x, y int) (uint32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, err := p.index(x, y)
	if err != nil {
		return 0, err
	}
	if !p.counted(i) {
		return 0, nil
	}
	return p.buf.data[i], nil
}

func (p *Pad) index(x, y int) (int, error) {
	if !p.ok {
		return 0, ErrLoad
	}
	if !p.geom.InRange(0, 0, x, y) {
		return 0, &IndexError{X: x, Y: y}
	}
	return y*p.geom.Width + x, nil
}

// TotalCounts sums the image, honouring the region when masking is on.
func (p *Pad) TotalCounts() (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ok {
		return 0, ErrLoad
	}
	return p.sumImage(0), nil
}

// RegionCounts sums the pixels inside r, ignoring the masking region.
func (p *Pad) RegionCounts(r image.Rectangle) (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ok {
		return 0, ErrLoad
	}
	return p.sumRect(0, r), nil
}

// Subtract removes round(scale*other) from every count, clamping at zero.
func (p *Pad) Subtract(other *Pad, scale float64) error {
	return p.subtract(other.store, scale)
}

// Clone returns an independent copy with owned memory.
func (p *Pad) Clone() *Pad {
	return &Pad{p.clone()}
}

// MarshalBinary encodes the image in the binary file layout.
func (p *Pad) MarshalBinary() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ok {
		return nil, ErrLoad
	}
	return encodeFrame(geometry.PAD, p.geom, p.buf.data), nil
}

// SaveFile writes the binary file and its metadata sidecar.
func (p *Pad) SaveFile(path string) error {
	b, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("error saving pad: %w", err)
	}
	return writeSidecar(path, p.Metadata())
}
