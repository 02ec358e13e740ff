package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// statsFunc returns the log-likelihood gradient and Hessian for every
// slice whose converged flag is still false, evaluated at the current
// coefficients. Entries for converged slices are nil.
type statsFunc func(coef [][]float64, converged []bool) ([][]float64, []*mat.SymDense, error)

// newtonSolve runs batched Newton-Raphson over all slices at once,
// updating coef in place. A single stats call serves one iteration for
// every slice that hasn't converged yet. A slice converges when its
// largest coefficient step drops below tol. Exhausting maxIter is not
// an error; the returned flags tell the caller which slices made it.
func newtonSolve(coef [][]float64, stats statsFunc, tol float64, maxIter int) ([]bool, error) {
	converged := make([]bool, len(coef))

	for iter := 0; iter < maxIter; iter++ {
		remaining := 0
		for _, done := range converged {
			if !done {
				remaining++
			}
		}
		if remaining == 0 {
			break
		}

		grads, hessians, err := stats(coef, converged)
		if err != nil {
			return nil, fmt.Errorf("newton iteration %d: %w", iter, err)
		}

		for s := range coef {
			if converged[s] {
				continue
			}
			step, err := newtonStep(hessians[s], grads[s])
			if err != nil {
				return nil, fmt.Errorf("newton iteration %d: %w", iter, err)
			}
			maxStep := 0.0
			for i := range coef[s] {
				coef[s][i] -= step[i]
				if a := math.Abs(step[i]); a > maxStep {
					maxStep = a
				}
			}
			if maxStep < tol {
				converged[s] = true
			}
		}
	}
	return converged, nil
}

// newtonStep solves hess * step = grad for one slice.
func newtonStep(hess *mat.SymDense, grad []float64) ([]float64, error) {
	var step mat.VecDense
	if err := step.SolveVec(hess, mat.NewVecDense(len(grad), grad)); err != nil {
		return nil, fmt.Errorf("singular hessian: %w", err)
	}
	out := make([]float64, len(grad))
	for i := range out {
		out[i] = step.AtVec(i)
	}
	return out, nil
}
