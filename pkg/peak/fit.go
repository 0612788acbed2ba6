package peak

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNoConvergence is returned when the curve fit fails: budget exhausted,
// degenerate Jacobian, or non-finite residuals
var ErrNoConvergence = errors.New("curve fit did not converge")

// Params are the parameters of A·exp(-(x-μ)²/(2σ²))
type Params struct {
	Amplitude float64
	Mean      float64
	Sigma     float64
}

// Gaussian evaluates the model at x
func Gaussian(x float64, p Params) float64 {
	d := x - p.Mean
	return p.Amplitude * math.Exp(-d*d/(2*p.Sigma*p.Sigma))
}

// Curve evaluates the model at every x
func Curve(x []float64, p Params) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = Gaussian(v, p)
	}
	return out
}

func (p Params) vec() [3]float64 { return [3]float64{p.Amplitude, p.Mean, p.Sigma} }

func fromVec(v [3]float64) Params { return Params{Amplitude: v[0], Mean: v[1], Sigma: v[2]} }

// FitOptions configures FitGaussian
type FitOptions struct {
	Initial Params
	Lower   Params
	Upper   Params

	// MaxEvaluations caps the number of model evaluations
	MaxEvaluations int
}

// DefaultFitOptions returns the search bounds of the aerated-lung peak
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Initial:        Params{Amplitude: 0.001, Mean: -800, Sigma: 120},
		Lower:          Params{Amplitude: 1e-5, Mean: -1000, Sigma: 5},
		Upper:          Params{Amplitude: 1, Mean: -600, Sigma: 350},
		MaxEvaluations: 10000,
	}
}

// FitResult is the outcome of a converged fit
type FitResult struct {
	Params
	Cost        float64
	Iterations  int
	Evaluations int
}

// Convergence tolerances, relative to the current cost and parameters
const (
	costTol   = 1e-10
	stepTol   = 1e-10
	gradTol   = 1e-12
	maxLambda = 1e16
)

// FitGaussian fits the Gaussian model to (x, y) by Levenberg–Marquardt least
// squares with Marquardt diagonal scaling. Each trial point is projected onto
// the box [Lower, Upper]. The fit is deterministic for a given input.
func FitGaussian(x, y []float64, opts FitOptions) (FitResult, error) {
	if len(x) != len(y) {
		return FitResult{}, fmt.Errorf("fit: %d x values, %d y values", len(x), len(y))
	}
	if len(x) < 3 {
		return FitResult{}, fmt.Errorf("%w: %d points for 3 parameters", ErrNoConvergence, len(x))
	}
	if opts.MaxEvaluations <= 0 {
		opts.MaxEvaluations = DefaultFitOptions().MaxEvaluations
	}
	lo, hi := opts.Lower.vec(), opts.Upper.vec()

	n := len(x)
	p := project(opts.Initial.vec(), lo, hi)
	r := residuals(x, y, p)
	cost := mat.Dot(r, r)
	res := FitResult{Evaluations: 1}
	// fail keeps the last iterate so callers can inspect where the search stopped
	fail := func(format string, args ...interface{}) (FitResult, error) {
		res.Params, res.Cost = fromVec(p), cost
		return res, fmt.Errorf("%w: "+format, append([]interface{}{ErrNoConvergence}, args...)...)
	}
	if !finite(cost) {
		return fail("non-finite initial cost")
	}

	jac := mat.NewDense(n, 3, nil)
	lambda := 1e-3

	for {
		res.Iterations++
		jacobian(jac, x, p)

		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())
		var g mat.VecDense
		g.MulVec(jac.T(), r)

		if cost == 0 {
			break
		}
		degenerate := true
		converged := true
		for i := 0; i < 3; i++ {
			h := jtj.At(i, i)
			if h > 0 {
				degenerate = false
				if math.Abs(g.AtVec(i))/math.Sqrt(h*cost) > gradTol {
					converged = false
				}
			}
		}
		if degenerate {
			return fail("degenerate Jacobian at %+v", fromVec(p))
		}
		if converged {
			break
		}

		accepted := false
		for !accepted {
			damped := mat.NewSymDense(3, nil)
			damped.CopySym(&jtj)
			for i := 0; i < 3; i++ {
				d := jtj.At(i, i)
				if d <= 0 {
					d = 1e-300
				}
				damped.SetSym(i, i, jtj.At(i, i)+lambda*d)
			}

			var chol mat.Cholesky
			if ok := chol.Factorize(damped); !ok {
				lambda *= 10
				if lambda > maxLambda {
					return fail("singular normal equations")
				}
				continue
			}
			var delta mat.VecDense
			// mat.Condition only warns about ill-conditioning, delta is still valid
			if err := chol.SolveVecTo(&delta, &g); err != nil && !errors.As(err, new(mat.Condition)) {
				lambda *= 10
				if lambda > maxLambda {
					return fail("%v", err)
				}
				continue
			}

			var trial [3]float64
			for i := 0; i < 3; i++ {
				trial[i] = p[i] + delta.AtVec(i)
			}
			trial = project(trial, lo, hi)
			small := smallStep(p, trial)

			rt := residuals(x, y, trial)
			res.Evaluations++
			costT := mat.Dot(rt, rt)

			if finite(costT) && costT < cost {
				done := small || cost-costT <= costTol*cost
				p, r, cost = trial, rt, costT
				lambda = math.Max(lambda/10, 1e-15)
				accepted = true
				if done {
					res.Params, res.Cost = fromVec(p), cost
					return res, nil
				}
			} else {
				if small {
					// no descent left inside the box
					res.Params, res.Cost = fromVec(p), cost
					return res, nil
				}
				lambda *= 10
				if lambda > maxLambda {
					res.Params, res.Cost = fromVec(p), cost
					return res, nil
				}
			}

			if res.Evaluations >= opts.MaxEvaluations {
				return fail("%d evaluations", res.Evaluations)
			}
		}
	}

	res.Params, res.Cost = fromVec(p), cost
	return res, nil
}

// residuals returns y - f(x; p)
func residuals(x, y []float64, p [3]float64) *mat.VecDense {
	params := fromVec(p)
	r := mat.NewVecDense(len(x), nil)
	for i := range x {
		r.SetVec(i, y[i]-Gaussian(x[i], params))
	}
	return r
}

// jacobian fills jac with ∂f/∂(A, μ, σ)
func jacobian(jac *mat.Dense, x []float64, p [3]float64) {
	a, mu, sigma := p[0], p[1], p[2]
	s2 := sigma * sigma
	for i, v := range x {
		d := v - mu
		e := math.Exp(-d * d / (2 * s2))
		jac.Set(i, 0, e)
		jac.Set(i, 1, a*e*d/s2)
		jac.Set(i, 2, a*e*d*d/(s2*sigma))
	}
}

func project(v, lo, hi [3]float64) [3]float64 {
	for i := range v {
		v[i] = math.Min(math.Max(v[i], lo[i]), hi[i])
	}
	return v
}

func smallStep(p, trial [3]float64) bool {
	for i := range p {
		if math.Abs(trial[i]-p[i]) > stepTol*(math.Abs(p[i])+stepTol) {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
