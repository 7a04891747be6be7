package fit

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SinusoidOptions control a sinusoid fit.
type SinusoidOptions struct {
	Settings

	// Frequency in oscillations per sample. Zero means one oscillation
	// over the whole series (1/T).
	Frequency float64

	// FreeFrequency lets the fit adjust the frequency as well.
	FreeFrequency bool

	// Errors requests standard errors of the fitted parameters.
	Errors bool
}

// SinusoidResult holds offset + amplitude*sin(2π·frequency·t + phase).
type SinusoidResult struct {
	Frequency float64
	Phase     float64
	Amplitude float64
	Offset    float64

	PhaseErr     float64
	AmplitudeErr float64
	OffsetErr    float64

	OK bool
}

// Eval returns the fitted curve at t.
func (r SinusoidResult) Eval(t float64) float64 {
	return r.Offset + r.Amplitude*math.Sin(2*math.Pi*r.Frequency*t+r.Phase)
}

// Sinusoid fits offset + amplitude*sin(2π f t + phase) to series, with
// t = 0..len(series)-1. The amplitude of the result is never negative and
// the phase lies in [0, 2π).
func Sinusoid(series []float64, opts SinusoidOptions) (SinusoidResult, error) {
	n := len(series)
	np := 3
	if opts.FreeFrequency {
		np = 4
	}
	if n < np || floats.Max(absAll(series)) == 0 {
		return SinusoidResult{}, ErrDegenerate
	}

	freq := opts.Frequency
	if freq <= 0 {
		freq = 1 / float64(n)
	}

	phase, amp, offs := harmonicEstimate(series, freq)
	p0 := []float64{phase, amp, offs}
	if opts.FreeFrequency {
		p0 = append(p0, freq)
	}

	eval := func(p []float64, res []float64, jac *mat.Dense) {
		f := freq
		if opts.FreeFrequency {
			f = p[3]
		}
		for t := range series {
			arg := 2*math.Pi*f*float64(t) + p[0]
			s, c := math.Sincos(arg)
			res[t] = p[2] + p[1]*s - series[t]
			jac.Set(t, 0, p[1]*c)
			jac.Set(t, 1, s)
			jac.Set(t, 2, 1)
			if opts.FreeFrequency {
				jac.Set(t, 3, p[1]*c*2*math.Pi*float64(t))
			}
		}
	}

	lm, err := levenbergMarquardt(p0, n, eval, opts.Settings)
	if err != nil {
		return SinusoidResult{}, err
	}

	r := SinusoidResult{
		Frequency: freq,
		Phase:     lm.params[0],
		Amplitude: lm.params[1],
		Offset:    lm.params[2],
		OK:        true,
	}
	if opts.FreeFrequency {
		r.Frequency = lm.params[3]
	}
	if r.Amplitude < 0 {
		r.Amplitude = -r.Amplitude
		r.Phase += math.Pi
	}
	r.Phase = normalizePhase(r.Phase)

	if opts.Errors {
		r.PhaseErr = lm.stderr[0]
		r.AmplitudeErr = lm.stderr[1]
		r.OffsetErr = lm.stderr[2]
	}
	return r, nil
}

// harmonicEstimate reads start values from the Fourier coefficient closest
// to freq. For y = o + a sin(2πkt/N + φ) the k-th coefficient is
// (aN/2)·exp(i(φ-π/2)).
func harmonicEstimate(series []float64, freq float64) (phase, amp, offs float64) {
	n := len(series)
	offs = floats.Sum(series) / float64(n)
	if n < 2 {
		return 0, 0, offs
	}

	coeffs := fourier.NewFFT(n).Coefficients(nil, series)
	k := int(math.Round(freq * float64(n)))
	if k < 1 || k >= len(coeffs) {
		k = 1
	}
	c := coeffs[k]
	amp = 2 * cmplx.Abs(c) / float64(n)
	phase = normalizePhase(cmplx.Phase(c) + math.Pi/2)
	return phase, amp, offs
}

func normalizePhase(p float64) float64 {
	p = math.Mod(p, 2*math.Pi)
	if p < 0 {
		p += 2 * math.Pi
	}
	return p
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}
