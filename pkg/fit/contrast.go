package fit

import "math"

const zeroOffset = 1e-9

// ContrastResult describes the modulation of an oscillation.
type ContrastResult struct {
	Contrast    float64
	Phase       float64
	ContrastErr float64
	PhaseErr    float64
	OK          bool
}

// CalcContrast returns amp/offs and its first-order error
// sqrt((ampErr/offs)² + (amp·offsErr/offs²)²).
func CalcContrast(amp, offs, ampErr, offsErr float64) (ContrastResult, error) {
	if offs == 0 {
		return ContrastResult{}, ErrUndefinedContrast
	}
	a := ampErr / offs
	b := amp * offsErr / (offs * offs)
	return ContrastResult{
		Contrast:    amp / offs,
		ContrastErr: math.Sqrt(a*a + b*b),
		OK:          true,
	}, nil
}

// Contrast fits series and returns its contrast and phase. When underground
// is given, its fitted offset times mult is subtracted from the offset of
// series first, with the errors added in quadrature.
func Contrast(series, underground []float64, mult float64, opts SinusoidOptions) (ContrastResult, error) {
	opts.Errors = true
	sin, err := Sinusoid(series, opts)
	if err != nil {
		return ContrastResult{}, err
	}

	offs, offsErr := sin.Offset, sin.OffsetErr
	if len(underground) > 0 && mult != 0 {
		ug, err := Sinusoid(underground, opts)
		if err != nil {
			return ContrastResult{}, err
		}
		offs -= mult * ug.Offset
		offsErr = math.Hypot(offsErr, mult*ug.OffsetErr)
	}

	// Offsets at rounding level come from series without a constant part.
	if math.Abs(offs) <= zeroOffset*math.Max(1, sin.Amplitude) {
		offs = 0
	}
	c, err := CalcContrast(sin.Amplitude, offs, sin.AmplitudeErr, offsErr)
	if err != nil {
		return ContrastResult{}, err
	}
	c.Phase = sin.Phase
	c.PhaseErr = sin.PhaseErr
	return c, nil
}
