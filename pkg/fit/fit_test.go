package fit

import (
	"errors"
	"math"
	"testing"
)

func sineSeries(n int, offs, amp, phase float64) []float64 {
	s := make([]float64, n)
	for t := range s {
		s[t] = offs + amp*math.Sin(2*math.Pi*float64(t)/float64(n)+phase)
	}
	return s
}

func phaseDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	return math.Min(d, 2*math.Pi-d)
}

func TestSinusoidNoiseless(t *testing.T) {
	tests := []struct {
		name             string
		n                int
		offs, amp, phase float64
	}{
		{"sixteen channels", 16, 200, 50, 1.3},
		{"negative phase", 16, 1000, 120, -2.0},
		{"odd length", 9, 40, 3, 5.9},
		{"large phase", 32, 10, 9.5, 4 * math.Pi / 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Sinusoid(sineSeries(tc.n, tc.offs, tc.amp, tc.phase), SinusoidOptions{Errors: true})
			if err != nil {
				t.Fatalf("Sinusoid failed: %v", err)
			}
			if !r.OK {
				t.Fatal("Expected OK result")
			}
			if math.Abs(r.Amplitude-tc.amp) > 1e-6 {
				t.Errorf("Expected amplitude %v, got %v", tc.amp, r.Amplitude)
			}
			if math.Abs(r.Offset-tc.offs) > 1e-6 {
				t.Errorf("Expected offset %v, got %v", tc.offs, r.Offset)
			}
			if phaseDistance(r.Phase, tc.phase) > 1e-6 {
				t.Errorf("Expected phase %v (mod 2π), got %v", tc.phase, r.Phase)
			}
			if r.Phase < 0 || r.Phase >= 2*math.Pi {
				t.Errorf("Expected phase in [0, 2π), got %v", r.Phase)
			}
			if math.Abs(r.Frequency-1/float64(tc.n)) > 1e-12 {
				t.Errorf("Expected frequency 1/%d, got %v", tc.n, r.Frequency)
			}
			for name, e := range map[string]float64{"phase": r.PhaseErr, "amplitude": r.AmplitudeErr, "offset": r.OffsetErr} {
				if e > 1e-6 {
					t.Errorf("Expected %s error close to 0, got %v", name, e)
				}
			}
		})
	}
}

func TestSinusoidFreeFrequency(t *testing.T) {
	n := 40
	series := make([]float64, n)
	for i := range series {
		series[i] = 100 + 30*math.Sin(2*math.Pi*0.051*float64(i)+0.4)
	}

	r, err := Sinusoid(series, SinusoidOptions{Frequency: 0.05, FreeFrequency: true})
	if err != nil {
		t.Fatalf("Sinusoid failed: %v", err)
	}
	if math.Abs(r.Frequency-0.051) > 1e-6 {
		t.Errorf("Expected frequency 0.051, got %v", r.Frequency)
	}
	if math.Abs(r.Amplitude-30) > 1e-4 {
		t.Errorf("Expected amplitude 30, got %v", r.Amplitude)
	}
}

func TestSinusoidDegenerate(t *testing.T) {
	if _, err := Sinusoid([]float64{1, 2}, SinusoidOptions{}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("Expected ErrDegenerate for two points, got %v", err)
	}
	r, err := Sinusoid(make([]float64, 16), SinusoidOptions{})
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("Expected ErrDegenerate for zeros, got %v", err)
	}
	if r.OK {
		t.Error("Expected failed result")
	}
}

func TestSinusoidFlatSeries(t *testing.T) {
	flat := make([]float64, 16)
	for i := range flat {
		flat[i] = 25
	}
	r, err := Sinusoid(flat, SinusoidOptions{})
	if err != nil {
		t.Fatalf("Sinusoid failed: %v", err)
	}
	if math.Abs(r.Offset-25) > 1e-9 || math.Abs(r.Amplitude) > 1e-9 {
		t.Errorf("Expected offset 25 and no amplitude, got %v and %v", r.Offset, r.Amplitude)
	}
}

func TestCalcContrast(t *testing.T) {
	c, err := CalcContrast(50, 200, 2, 4)
	if err != nil {
		t.Fatalf("CalcContrast failed: %v", err)
	}
	if math.Abs(c.Contrast-0.25) > 1e-12 {
		t.Errorf("Expected contrast 0.25, got %v", c.Contrast)
	}
	want := math.Sqrt(math.Pow(2.0/200, 2) + math.Pow(50*4.0/(200*200), 2))
	if math.Abs(c.ContrastErr-want) > 1e-12 {
		t.Errorf("Expected contrast error %v, got %v", want, c.ContrastErr)
	}

	c, err = CalcContrast(50, 0, 1, 1)
	if !errors.Is(err, ErrUndefinedContrast) {
		t.Errorf("Expected ErrUndefinedContrast, got %v", err)
	}
	if c.OK || math.IsNaN(c.Contrast) || math.IsInf(c.Contrast, 0) {
		t.Errorf("Expected a failed result without NaN, got %+v", c)
	}
}

func TestContrastZeroOffset(t *testing.T) {
	_, err := Contrast(sineSeries(16, 0, 10, 0.5), nil, 0, SinusoidOptions{})
	if !errors.Is(err, ErrUndefinedContrast) {
		t.Errorf("Expected ErrUndefinedContrast, got %v", err)
	}
}

func TestContrastWithUnderground(t *testing.T) {
	series := sineSeries(16, 200, 50, 1)
	underground := sineSeries(16, 50, 0, 0)

	c, err := Contrast(series, nil, 0, SinusoidOptions{})
	if err != nil {
		t.Fatalf("Contrast failed: %v", err)
	}
	if math.Abs(c.Contrast-0.25) > 1e-6 || phaseDistance(c.Phase, 1) > 1e-6 {
		t.Errorf("Expected contrast 0.25 at phase 1, got %v at %v", c.Contrast, c.Phase)
	}

	c, err = Contrast(series, underground, 2, SinusoidOptions{})
	if err != nil {
		t.Fatalf("Contrast with underground failed: %v", err)
	}
	if math.Abs(c.Contrast-0.5) > 1e-6 {
		t.Errorf("Expected contrast 0.5 after subtracting underground, got %v", c.Contrast)
	}
}

func gaussianImage(w, h int, g GaussianResult) []float64 {
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = g.Eval(float64(x)+0.5, float64(y)+0.5)
		}
	}
	return data
}

func TestGaussian2D(t *testing.T) {
	want := GaussianResult{Amplitude: 1000, CenterX: 15.3, CenterY: 17.8, SpreadX: 3, SpreadY: 4.5}
	r, err := Gaussian2D(gaussianImage(32, 40, want), 32, 40, Settings{})
	if err != nil {
		t.Fatalf("Gaussian2D failed: %v", err)
	}
	if !r.OK {
		t.Fatal("Expected OK result")
	}

	checks := []struct {
		name      string
		got, want float64
	}{
		{"amplitude", r.Amplitude, want.Amplitude},
		{"center x", r.CenterX, want.CenterX},
		{"center y", r.CenterY, want.CenterY},
		{"spread x", r.SpreadX, want.SpreadX},
		{"spread y", r.SpreadY, want.SpreadY},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-4*math.Max(1, c.want) {
			t.Errorf("Expected %s %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestGaussian2DDegenerate(t *testing.T) {
	if _, err := Gaussian2D(make([]float64, 64), 8, 8, Settings{}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("Expected ErrDegenerate for all-zero image, got %v", err)
	}
	if _, err := Gaussian2D([]float64{1, 2, 3, 4}, 2, 2, Settings{}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("Expected ErrDegenerate for fewer points than parameters, got %v", err)
	}
	if _, err := Gaussian2D([]float64{1, 2, 3}, 2, 2, Settings{}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("Expected ErrDegenerate for size mismatch, got %v", err)
	}
}

func TestNotConvergedWithinIterationLimit(t *testing.T) {
	want := GaussianResult{Amplitude: 500, CenterX: 4, CenterY: 20, SpreadX: 1.5, SpreadY: 6}
	data := gaussianImage(24, 24, want)
	data[0] = 3000

	_, err := Gaussian2D(data, 24, 24, Settings{MaxIterations: 1, Tolerance: 1e-15})
	if !errors.Is(err, ErrNotConverged) {
		t.Errorf("Expected ErrNotConverged after one iteration, got %v", err)
	}
}
