package frame

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"cascade/pkg/geometry"
)

// Simulated beam used for test data.
const (
	randomPeak       = 200.0
	randomBackground = 2.0
	randomContrast   = 0.6
)

// GenerateRandom fills counts with Poisson noise around a Gaussian beam spot
// in the image centre. For TOF data each foil oscillates over its time
// channels with a phase shifted by 2π/F from its neighbour.
func GenerateRandom(g geometry.Geometry, kind geometry.Kind, counts []uint32, seed uint64) {
	src := rand.NewSource(seed)
	cx, cy := float64(g.Width)/2, float64(g.Height)/2
	sigma := math.Max(1, math.Min(float64(g.Width), float64(g.Height))/6)

	spot := make([]float64, g.PixelsPerImage())
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			spot[y*g.Width+x] = randomPeak * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
		}
	}

	fill := func(img []uint32, modulation float64) {
		for p := range img {
			lambda := randomBackground + spot[p]*modulation
			img[p] = uint32(distuv.Poisson{Lambda: lambda, Src: src}.Rand())
		}
	}

	ppi := g.PixelsPerImage()
	if kind == geometry.PAD {
		fill(counts[:ppi], 1)
		return
	}
	for f := 0; f < g.Foils; f++ {
		phase := 2 * math.Pi * float64(f) / float64(g.Foils)
		for t := 0; t < g.Timechannels; t++ {
			m := 1 + randomContrast*math.Sin(2*math.Pi*float64(t)/float64(g.Timechannels)+phase)
			base := g.ImageIndex(f, t) * ppi
			fill(counts[base:base+ppi], m)
		}
	}
}
