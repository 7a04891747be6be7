package view

import (
	"fmt"
	"image"

	"cascade/pkg/frame"
)

// Overview sums all foils and time channels of tof. With onlyInRoi, pixels
// outside the active region of tof stay zero.
func Overview(tof *frame.Tof, onlyInRoi bool) (*Image, error) {
	var out *Image
	err := tof.Read(func(d frame.Data) error {
		g := d.Geometry
		sum := make(Counts, g.PixelsPerImage())
		for f := 0; f < g.Foils; f++ {
			for t := 0; t < g.Timechannels; t++ {
				addCounts(sum, d.Image(f, t))
			}
		}
		if onlyInRoi {
			applyMask(sum, d)
		}
		out = &Image{width: g.Width, height: g.Height, pix: sum}
		return nil
	})
	if err != nil {
		return &Image{}, err
	}
	return out, nil
}

// Foil sums the time channels of one foil.
func Foil(tof *frame.Tof, foil int, onlyInRoi bool) (*Image, error) {
	var out *Image
	err := tof.Read(func(d frame.Data) error {
		g := d.Geometry
		if foil < 0 || foil >= g.Foils {
			return &frame.IndexError{Foil: foil}
		}
		sum := make(Counts, g.PixelsPerImage())
		for t := 0; t < g.Timechannels; t++ {
			addCounts(sum, d.Image(foil, t))
		}
		if onlyInRoi {
			applyMask(sum, d)
		}
		out = &Image{width: g.Width, height: g.Height, pix: sum}
		return nil
	})
	if err != nil {
		return &Image{}, err
	}
	return out, nil
}

// Timechannel copies the single image (foil, timechannel).
func Timechannel(tof *frame.Tof, foil, timechannel int) (*Image, error) {
	var out *Image
	err := tof.Read(func(d frame.Data) error {
		g := d.Geometry
		if !g.InRange(foil, timechannel, 0, 0) {
			return &frame.IndexError{Foil: foil, Timechannel: timechannel}
		}
		out = &Image{width: g.Width, height: g.Height, pix: append(Counts(nil), d.Image(foil, timechannel)...)}
		return nil
	})
	if err != nil {
		return &Image{}, err
	}
	return out, nil
}

// Region copies the part of image (foil, timechannel) inside r.
func Region(tof *frame.Tof, r image.Rectangle, foil, timechannel int) (*Image, error) {
	img, err := Timechannel(tof, foil, timechannel)
	if err != nil {
		return img, err
	}
	return img.SubImage(r), nil
}

// FromPad copies a PAD image.
func FromPad(pad *frame.Pad) (*Image, error) {
	var out *Image
	err := pad.Read(func(d frame.Data) error {
		out = &Image{width: d.Geometry.Width, height: d.Geometry.Height, pix: append(Counts(nil), d.Counts...)}
		return nil
	})
	if err != nil {
		return &Image{}, err
	}
	return out, nil
}

// GraphOf sums the pixels inside r for every time channel of foil. Pixels
// outside the active region are skipped unless ignoreRoi is set.
func GraphOf(tof *frame.Tof, r image.Rectangle, foil int, ignoreRoi bool) (*Graph, error) {
	var out *Graph
	err := tof.Read(func(d frame.Data) error {
		g, err := graphOf(d, r, foil, ignoreRoi)
		out = g
		return err
	})
	if err != nil {
		return &Graph{}, err
	}
	return out, nil
}

// FoilGraph sums the whole image for every time channel of foil.
func FoilGraph(tof *frame.Tof, foil int) (*Graph, error) {
	g := tof.Geometry()
	return GraphOf(tof, image.Rect(0, 0, g.Width, g.Height), foil, false)
}

func graphOf(d frame.Data, r image.Rectangle, foil int, ignoreRoi bool) (*Graph, error) {
	g := d.Geometry
	if foil < 0 || foil >= g.Foils {
		return nil, &frame.IndexError{Foil: foil}
	}
	r = r.Intersect(image.Rect(0, 0, g.Width, g.Height))
	data := make([]uint32, g.Timechannels)
	for t := range data {
		img := d.Image(foil, t)
		var sum uint32
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				p := y*g.Width + x
				if ignoreRoi || d.Inside(p) {
					sum += img[p]
				}
			}
		}
		data[t] = sum
	}
	return &Graph{data: data}, nil
}

// SumFoils adds the images whose entry in channels is set. channels holds
// one flag per (foil, time channel) pair, indexed foil*T + timechannel.
func SumFoils(tof *frame.Tof, channels []bool) (*Image, error) {
	var out *Image
	err := tof.Read(func(d frame.Data) error {
		g := d.Geometry
		if len(channels) != g.Foils*g.Timechannels {
			return fmt.Errorf("%w: %d channel flags for %d foils x %d time channels",
				ErrShapeMismatch, len(channels), g.Foils, g.Timechannels)
		}
		sum := make(Counts, g.PixelsPerImage())
		for f := 0; f < g.Foils; f++ {
			for t := 0; t < g.Timechannels; t++ {
				if channels[f*g.Timechannels+t] {
					addCounts(sum, d.Image(f, t))
				}
			}
		}
		out = &Image{width: g.Width, height: g.Height, pix: sum}
		return nil
	})
	if err != nil {
		return &Image{}, err
	}
	return out, nil
}

func addCounts(dst Counts, src []uint32) {
	for p, v := range src {
		dst[p] += v
	}
}

func applyMask(c Counts, d frame.Data) {
	for p := range c {
		if !d.Inside(p) {
			c[p] = 0
		}
	}
}
