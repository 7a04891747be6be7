package view

import (
	"fmt"
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"cascade/pkg/fit"
	"cascade/pkg/frame"
)

// FitOptions control the per-pixel fits of phase and contrast images.
type FitOptions struct {
	Sinusoid fit.SinusoidOptions

	// Degrees reports phases in degrees instead of radians.
	Degrees bool

	// Workers bounds the number of parallel fits; 0 uses all CPUs.
	Workers int

	// MinCounts skips pixels whose time channels hold fewer counts.
	MinCounts uint64
}

func (o FitOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// Phase fits every pixel of foil over its time channels and returns the
// phases. Pixels that fail to fit, fall outside the active region or hold
// fewer than MinCounts counts are 0.
func Phase(tof *frame.Tof, foil int, opts FitOptions) (*Image, error) {
	img, err := pixelFits(tof, foil, opts, 0, func(r fit.SinusoidResult) float64 {
		return r.Phase
	})
	if err != nil {
		return img, err
	}
	if opts.Degrees {
		return img.ToDegrees(), nil
	}
	return img, nil
}

// Contrast fits every pixel of foil and returns amplitude/offset.
func Contrast(tof *frame.Tof, foil int, opts FitOptions) (*Image, error) {
	return pixelFits(tof, foil, opts, 0, func(r fit.SinusoidResult) float64 {
		c, err := fit.CalcContrast(r.Amplitude, r.Offset, 0, 0)
		if err != nil {
			return 0
		}
		return c.Contrast
	})
}

// SumPhases adds the phase images of the foils flagged in foils.
func SumPhases(tof *frame.Tof, foils []bool, opts FitOptions) (*Image, error) {
	return sumFoilImages(tof, foils, opts, Phase)
}

// SumContrasts adds the contrast images of the foils flagged in foils.
func SumContrasts(tof *frame.Tof, foils []bool, opts FitOptions) (*Image, error) {
	return sumFoilImages(tof, foils, opts, Contrast)
}

func sumFoilImages(tof *frame.Tof, foils []bool, opts FitOptions,
	reduce func(*frame.Tof, int, FitOptions) (*Image, error)) (*Image, error) {
	g := tof.Geometry()
	if len(foils) != g.Foils {
		return &Image{}, fmt.Errorf("%w: %d foil flags for %d foils", ErrShapeMismatch, len(foils), g.Foils)
	}
	sum := &Image{width: g.Width, height: g.Height, pix: make(Values, g.PixelsPerImage())}
	for f, on := range foils {
		if !on {
			continue
		}
		img, err := reduce(tof, f, opts)
		if err != nil {
			return &Image{}, err
		}
		if err := sum.Add(img); err != nil {
			return &Image{}, err
		}
	}
	return sum, nil
}

// pixelFits snapshots the time channel series of every pixel of foil and
// fits them in parallel. Pixels without a fit are set to fill.
func pixelFits(tof *frame.Tof, foil int, opts FitOptions, fill float64, value func(fit.SinusoidResult) float64) (*Image, error) {
	var (
		width, height, tcs int
		series             []float64
		inside             []bool
	)
	err := tof.Read(func(d frame.Data) error {
		g := d.Geometry
		if foil < 0 || foil >= g.Foils {
			return &frame.IndexError{Foil: foil}
		}
		width, height, tcs = g.Width, g.Height, g.Timechannels
		ppi := g.PixelsPerImage()
		series = make([]float64, ppi*tcs)
		inside = make([]bool, ppi)
		for t := 0; t < tcs; t++ {
			for p, v := range d.Image(foil, t) {
				series[p*tcs+t] = float64(v)
			}
		}
		for p := range inside {
			inside[p] = d.Inside(p)
		}
		return nil
	})
	if err != nil {
		return &Image{}, err
	}

	out := make(Values, width*height)
	if fill != 0 {
		for p := range out {
			out[p] = fill
		}
	}
	var eg errgroup.Group
	eg.SetLimit(opts.workers())
	for y := 0; y < height; y++ {
		y := y
		eg.Go(func() error {
			for x := 0; x < width; x++ {
				p := y*width + x
				if !inside[p] {
					continue
				}
				s := series[p*tcs : (p+1)*tcs]
				if opts.MinCounts > 0 && sumFloats(s) < float64(opts.MinCounts) {
					continue
				}
				r, err := fit.Sinusoid(s, opts.Sinusoid)
				if err != nil {
					continue
				}
				out[p] = value(r)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return &Image{}, err
	}
	return &Image{width: width, height: height, pix: out}, nil
}

// AreaPhaseCorrect returns a copy of tof in which the time channel series of
// every pixel is rotated onto the phase of its foil, so that sums over an
// area keep the full oscillation. The foil phase is fitted to the foil
// graph; a foil whose fit fails is aligned to phase 0. Pixels that are
// skipped or fail to fit keep their series.
func AreaPhaseCorrect(tof *frame.Tof, opts FitOptions) (*frame.Tof, error) {
	g := tof.Geometry()
	out := tof.Clone()
	series := make([]uint32, g.Timechannels)
	for f := 0; f < g.Foils; f++ {
		fg, err := FoilGraph(tof, f)
		if err != nil {
			return nil, err
		}
		ref := 0.0
		if res, err := fg.FitSinusoid(opts.Sinusoid); err == nil {
			ref = res.Phase
		}

		phases, err := pixelFits(tof, f, opts, math.NaN(), func(r fit.SinusoidResult) float64 {
			return r.Phase
		})
		if err != nil {
			return nil, err
		}
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				phase := phases.At(x, y)
				if math.IsNaN(phase) {
					continue
				}
				s := phaseShift(phase-ref, g.Timechannels)
				if s%g.Timechannels == 0 {
					continue
				}
				for tc := range series {
					if series[tc], err = tof.Get(f, tc, x, y); err != nil {
						return nil, err
					}
				}
				for tc, v := range NewGraph(series).shift(s) {
					if err := out.Set(f, tc, x, y, v); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return out, nil
}

func sumFloats(s []float64) float64 {
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum
}

// TotalGraph adds the graphs of all foils over r after shifting each by its
// phase, so that the oscillations of the foils line up. phases holds one
// phase per foil in radians; with nil phases each foil graph is fitted to
// find it. A foil whose fit fails is added unshifted.
func TotalGraph(tof *frame.Tof, r image.Rectangle, phases []float64, opts fit.SinusoidOptions) (*Graph, error) {
	var foilGraphs []*Graph
	err := tof.Read(func(d frame.Data) error {
		g := d.Geometry
		if phases != nil && len(phases) != g.Foils {
			return fmt.Errorf("%w: %d phases for %d foils", ErrShapeMismatch, len(phases), g.Foils)
		}
		for f := 0; f < g.Foils; f++ {
			fg, err := graphOf(d, r, f, false)
			if err != nil {
				return err
			}
			foilGraphs = append(foilGraphs, fg)
		}
		return nil
	})
	if err != nil {
		return &Graph{}, err
	}

	var total []uint32
	for f, fg := range foilGraphs {
		phase := 0.0
		if phases != nil {
			phase = phases[f]
		} else if res, err := fg.FitSinusoid(opts); err == nil {
			phase = res.Phase
		}
		aligned := fg.shift(phaseShift(phase, fg.Width()))
		if total == nil {
			total = make([]uint32, len(aligned))
		}
		for i, v := range aligned {
			total[i] += v
		}
	}
	return &Graph{data: total}, nil
}

// TotalGraphAll is TotalGraph over the whole image.
func TotalGraphAll(tof *frame.Tof, phases []float64, opts fit.SinusoidOptions) (*Graph, error) {
	g := tof.Geometry()
	return TotalGraph(tof, image.Rect(0, 0, g.Width, g.Height), phases, opts)
}

// BeamCenter fits a 2D Gaussian to img. Pixel (x, y) sits at (x+0.5, y+0.5).
func BeamCenter(img *Image, s fit.Settings) (fit.GaussianResult, error) {
	if img.Empty() {
		return fit.GaussianResult{}, fit.ErrDegenerate
	}
	return fit.Gaussian2D(img.floats(), img.width, img.height, s)
}
