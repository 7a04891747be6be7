package fit

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// GaussianResult holds A·exp(-((x-cx)²/2sx² + (y-cy)²/2sy²)).
type GaussianResult struct {
	Amplitude float64
	CenterX   float64
	CenterY   float64
	SpreadX   float64
	SpreadY   float64
	OK        bool
}

// Eval returns the fitted surface at (x, y).
func (r GaussianResult) Eval(x, y float64) float64 {
	dx, dy := x-r.CenterX, y-r.CenterY
	return r.Amplitude * math.Exp(-(dx*dx/(2*r.SpreadX*r.SpreadX) + dy*dy/(2*r.SpreadY*r.SpreadY)))
}

const gaussianParams = 5

// Gaussian2D fits a 2D Gaussian to a width x height row-major image.
// Pixel (x, y) sits at coordinate (x+0.5, y+0.5).
func Gaussian2D(data []float64, width, height int, s Settings) (GaussianResult, error) {
	n := width * height
	if width < 1 || height < 1 || len(data) != n || n < gaussianParams {
		return GaussianResult{}, ErrDegenerate
	}
	if floats.Max(absAll(data)) == 0 {
		return GaussianResult{}, ErrDegenerate
	}

	p0, ok := gaussianMoments(data, width, height)
	if !ok {
		return GaussianResult{}, ErrDegenerate
	}

	eval := func(p []float64, res []float64, jac *mat.Dense) {
		a, cx, cy, sx, sy := p[0], p[1], p[2], p[3], p[4]
		for i, v := range data {
			dx := float64(i%width) + 0.5 - cx
			dy := float64(i/width) + 0.5 - cy
			e := math.Exp(-(dx*dx/(2*sx*sx) + dy*dy/(2*sy*sy)))
			res[i] = a*e - v
			jac.Set(i, 0, e)
			jac.Set(i, 1, a*e*dx/(sx*sx))
			jac.Set(i, 2, a*e*dy/(sy*sy))
			jac.Set(i, 3, a*e*dx*dx/(sx*sx*sx))
			jac.Set(i, 4, a*e*dy*dy/(sy*sy*sy))
		}
	}

	lm, err := levenbergMarquardt(p0, n, eval, s)
	if err != nil {
		return GaussianResult{}, err
	}
	r := GaussianResult{
		Amplitude: lm.params[0],
		CenterX:   lm.params[1],
		CenterY:   lm.params[2],
		SpreadX:   math.Abs(lm.params[3]),
		SpreadY:   math.Abs(lm.params[4]),
		OK:        true,
	}
	if r.SpreadX == 0 || r.SpreadY == 0 {
		return GaussianResult{}, ErrNotConverged
	}
	return r, nil
}

// gaussianMoments estimates start values from the count-weighted mean and
// variance along each axis.
func gaussianMoments(data []float64, width, height int) ([]float64, bool) {
	xs := make([]float64, len(data))
	ys := make([]float64, len(data))
	ws := make([]float64, len(data))
	for i, v := range data {
		xs[i] = float64(i%width) + 0.5
		ys[i] = float64(i/width) + 0.5
		ws[i] = math.Max(v, 0)
	}
	if floats.Sum(ws) == 0 {
		return nil, false
	}

	cx, vx := stat.MeanVariance(xs, ws)
	cy, vy := stat.MeanVariance(ys, ws)
	return []float64{floats.Max(data), cx, cy, spread(vx), spread(vy)}, true
}

// spread turns a weighted variance into a start width of at least half a
// pixel. Variances of tiny weight sums come out NaN or negative.
func spread(variance float64) float64 {
	if math.IsNaN(variance) || variance < 0.25 {
		return 0.5
	}
	return math.Sqrt(variance)
}
