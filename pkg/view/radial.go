package view

import (
	"errors"
	"math"

	"cascade/pkg/roi"
)

// Axis selects the abscissa of a radial integration.
type Axis int

const (
	// ByRadius bins pixels by their distance from the centre.
	ByRadius Axis = iota
	// ByAngle bins pixels by their polar angle around the centre.
	ByAngle
)

// RadialOptions describe a radial integration.
type RadialOptions struct {
	Center     roi.Point
	AngleStep  float64 // radians
	RadiusStep float64

	// MaxRadius limits the integration; 0 uses the largest circle around
	// Center that fits into the image.
	MaxRadius float64

	Axis Axis

	// Mean divides every bin by its number of pixels.
	Mean bool
}

// RadialIntegration bins every pixel within MaxRadius of the centre into
// (angle, radius) cells and reduces them along the other axis. Angles lie
// in (0, 2π] and wrap at 2π; pixels on a bin boundary go to the lower bin.
// Pixel (x, y) sits at (x+0.5, y+0.5).
func RadialIntegration(img *Image, o RadialOptions) (*Graph, error) {
	if img.Empty() {
		return &Graph{}, errors.New("radial integration of empty image")
	}
	if o.AngleStep <= 0 || o.RadiusStep <= 0 {
		return &Graph{}, errors.New("radial integration needs positive steps")
	}

	maxRadius := o.MaxRadius
	if maxRadius <= 0 {
		maxRadius = math.Min(
			math.Min(o.Center.X, float64(img.width)-o.Center.X),
			math.Min(o.Center.Y, float64(img.height)-o.Center.Y))
	}
	if maxRadius <= 0 {
		return &Graph{}, errors.New("radial integration centre outside image")
	}

	angleBins := binCount(2*math.Pi, o.AngleStep)
	radiusBins := binCount(maxRadius, o.RadiusStep)

	bins := radiusBins
	if o.Axis == ByAngle {
		bins = angleBins
	}
	sums := make([]float64, bins)
	pixels := make([]int, bins)

	for y := 0; y < img.height; y++ {
		for x := 0; x < img.width; x++ {
			dx := float64(x) + 0.5 - o.Center.X
			dy := float64(y) + 0.5 - o.Center.Y
			r := math.Hypot(dx, dy)
			if r > maxRadius {
				continue
			}

			var b int
			if o.Axis == ByAngle {
				a := math.Atan2(dy, dx)
				if a <= 0 {
					a += 2 * math.Pi
				}
				b = lowerBin(a, o.AngleStep, angleBins)
			} else {
				b = lowerBin(r, o.RadiusStep, radiusBins)
			}
			sums[b] += img.At(x, y)
			pixels[b]++
		}
	}

	data := make([]uint32, bins)
	for i, s := range sums {
		if o.Mean && pixels[i] > 0 {
			s /= float64(pixels[i])
		}
		data[i] = toCount(s)
	}
	return &Graph{data: data}, nil
}

// binCount returns the number of bins of width step covering (0, span].
func binCount(span, step float64) int {
	n := int(math.Ceil(span/step - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}

// lowerBin maps v to bin ceil(v/step)-1, clamped to [0, n).
func lowerBin(v, step float64, n int) int {
	b := int(math.Ceil(v/step)) - 1
	if b < 0 {
		return 0
	}
	if b >= n {
		return n - 1
	}
	return b
}
