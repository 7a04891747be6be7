// Package fit implements the nonlinear least-squares fits used for beam
// calibration and contrast analysis.
//
// All fits are pure functions over plain slices. They never panic on bad
// input; instead they return a result whose OK flag is false together with
// one of the package errors.
package fit

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotConverged is returned when a fit does not reach the tolerance
	// within the iteration limit or ends up with non-finite parameters.
	ErrNotConverged = errors.New("fit did not converge")

	// ErrDegenerate is returned for input that cannot determine the model,
	// e.g. all zeros or fewer points than parameters.
	ErrDegenerate = errors.New("degenerate fit input")

	// ErrUndefinedContrast is returned when the oscillation offset is zero.
	ErrUndefinedContrast = errors.New("contrast undefined for zero offset")
)

// Settings bound the Levenberg-Marquardt iteration.
type Settings struct {
	MaxIterations int     `yaml:"maxIterations" mapstructure:"maxIterations"`
	Tolerance     float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// DefaultSettings returns the limits used when none are configured.
func DefaultSettings() Settings {
	return Settings{MaxIterations: 200, Tolerance: 1e-10}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = d.Tolerance
	}
	return s
}

// evalFunc fills the residuals model-data and the model Jacobian for
// parameters p.
type evalFunc func(p []float64, res []float64, jac *mat.Dense)

type lmResult struct {
	params []float64
	cost   float64

	// stderr holds the standard error of each parameter, +Inf where the
	// covariance matrix is singular.
	stderr []float64
}

const (
	lambdaStart = 1e-3
	lambdaMax   = 1e16
	diagFloor   = 1e-12
)

// levenbergMarquardt minimises the sum of squared residuals of n points
// starting at p0.
func levenbergMarquardt(p0 []float64, n int, eval evalFunc, s Settings) (lmResult, error) {
	s = s.withDefaults()
	np := len(p0)
	if n < np {
		return lmResult{}, ErrDegenerate
	}

	p := append([]float64(nil), p0...)
	res := make([]float64, n)
	jac := mat.NewDense(n, np, nil)
	eval(p, res, jac)
	cost := floats.Dot(res, res)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return lmResult{}, ErrNotConverged
	}

	trial := make([]float64, np)
	trialRes := make([]float64, n)
	trialJac := mat.NewDense(n, np, nil)

	var (
		jtj  mat.SymDense
		a    = mat.NewSymDense(np, nil)
		grad mat.VecDense
		step mat.VecDense
		chol mat.Cholesky
	)

	lambda := lambdaStart
	converged := cost == 0
	for iter := 0; iter < s.MaxIterations && !converged; iter++ {
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(n, res))

		for {
			a.CopySym(&jtj)
			for i := 0; i < np; i++ {
				d := jtj.At(i, i)
				a.SetSym(i, i, d+lambda*math.Max(d, diagFloor))
			}
			if ok := chol.Factorize(a); !ok {
				lambda *= 10
				if lambda > lambdaMax {
					return lmResult{}, ErrNotConverged
				}
				continue
			}
			if err := chol.SolveVecTo(&step, &grad); err != nil {
				lambda *= 10
				if lambda > lambdaMax {
					return lmResult{}, ErrNotConverged
				}
				continue
			}
			break
		}

		for i := range trial {
			trial[i] = p[i] - step.AtVec(i)
		}
		eval(trial, trialRes, trialJac)
		trialCost := floats.Dot(trialRes, trialRes)

		small := floats.Norm(step.RawVector().Data, 2) <= s.Tolerance*(floats.Norm(p, 2)+s.Tolerance)
		if trialCost < cost {
			reduction := cost - trialCost
			copy(p, trial)
			copy(res, trialRes)
			jac.Copy(trialJac)
			cost = trialCost
			lambda = math.Max(lambda/10, 1e-12)
			converged = small || reduction <= s.Tolerance*cost || cost == 0
			continue
		}

		// No improvement: we are at the minimum if even the step is negligible.
		if small {
			converged = true
			break
		}
		lambda *= 10
		if lambda > lambdaMax {
			break
		}
	}

	if !converged {
		return lmResult{}, ErrNotConverged
	}
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return lmResult{}, ErrNotConverged
		}
	}

	return lmResult{params: p, cost: cost, stderr: standardErrors(jac, cost, n)}, nil
}

// standardErrors derives parameter errors from the covariance s²(JᵀJ)⁻¹
// with s² = SSR/(N-p). Parameters the model does not depend on at the
// solution get an infinite error and are left out of the inversion.
func standardErrors(jac *mat.Dense, cost float64, n int) []float64 {
	_, np := jac.Dims()
	errs := make([]float64, np)
	for i := range errs {
		errs[i] = math.Inf(1)
	}

	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())

	var active []int
	for i := 0; i < np; i++ {
		if jtj.At(i, i) > 0 {
			active = append(active, i)
		}
	}
	if len(active) == 0 {
		return errs
	}
	reduced := mat.NewSymDense(len(active), nil)
	for i, pi := range active {
		for j := i; j < len(active); j++ {
			reduced.SetSym(i, j, jtj.At(pi, active[j]))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(reduced); !ok {
		return errs
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return errs
	}

	s2 := 0.0
	if n > np {
		s2 = cost / float64(n-np)
	}
	for i, pi := range active {
		errs[pi] = math.Sqrt(math.Max(0, s2*cov.At(i, i)))
	}
	return errs
}
