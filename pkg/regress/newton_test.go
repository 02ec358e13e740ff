package regress

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// Quadratic objectives converge in one Newton step, which makes the
// batching behavior easy to observe.
func quadStats(targets []float64) statsFunc {
	return func(coef [][]float64, converged []bool) ([][]float64, []*mat.SymDense, error) {
		grads := make([][]float64, len(coef))
		hessians := make([]*mat.SymDense, len(coef))
		for s := range coef {
			if converged[s] {
				continue
			}
			grads[s] = []float64{coef[s][0] - targets[s]}
			hessians[s] = mat.NewSymDense(1, []float64{1})
		}
		return grads, hessians, nil
	}
}

func Test_NewtonSolveConverges(t *testing.T) {
	coef := [][]float64{{0}, {0}}
	converged, err := newtonSolve(coef, quadStats([]float64{5, -3}), 1e-8, 25)
	if err != nil {
		t.Fatalf("failed to solve: %v", err)
	}
	for s, done := range converged {
		if !done {
			t.Errorf("slice %d did not converge", s)
		}
	}
	if math.Abs(coef[0][0]-5) > 1e-8 || math.Abs(coef[1][0]+3) > 1e-8 {
		t.Errorf("unexpected solutions: %v", coef)
	}
}

func Test_NewtonSolveSkipsConvergedSlices(t *testing.T) {
	calls := 0
	slow := func(coef [][]float64, converged []bool) ([][]float64, []*mat.SymDense, error) {
		calls++
		grads := make([][]float64, len(coef))
		hessians := make([]*mat.SymDense, len(coef))
		for s := range coef {
			if converged[s] {
				t.Errorf("call %d requested statistics for a converged slice", calls)
				continue
			}
			if s == 0 {
				// Converges on the first step.
				grads[s] = []float64{coef[s][0] - 1}
				hessians[s] = mat.NewSymDense(1, []float64{1})
			} else {
				// Halves the distance each step.
				grads[s] = []float64{(coef[s][0] - 1) / 2}
				hessians[s] = mat.NewSymDense(1, []float64{1})
			}
		}
		return grads, hessians, nil
	}

	coef := [][]float64{{0}, {0}}
	converged, err := newtonSolve(coef, slow, 1e-6, 100)
	if err != nil {
		t.Fatalf("failed to solve: %v", err)
	}
	if !converged[0] || !converged[1] {
		t.Errorf("expected both slices to converge: %v", converged)
	}
	if calls < 3 {
		t.Errorf("expected the halving slice to need more iterations, saw %d calls", calls)
	}
}

func Test_NewtonSolveExhaustsIterations(t *testing.T) {
	never := func(coef [][]float64, converged []bool) ([][]float64, []*mat.SymDense, error) {
		grads := [][]float64{{1}}
		hessians := []*mat.SymDense{mat.NewSymDense(1, []float64{1})}
		return grads, hessians, nil
	}
	coef := [][]float64{{0}}
	converged, err := newtonSolve(coef, never, 1e-8, 5)
	if err != nil {
		t.Fatalf("non-convergence must not be an error: %v", err)
	}
	if converged[0] {
		t.Error("expected the slice to stay unconverged")
	}
}

func Test_NewtonSolvePropagatesStatsError(t *testing.T) {
	cause := errors.New("engine exploded")
	failing := func(coef [][]float64, converged []bool) ([][]float64, []*mat.SymDense, error) {
		return nil, nil, cause
	}
	_, err := newtonSolve([][]float64{{0}}, failing, 1e-8, 5)
	if !errors.Is(err, cause) {
		t.Errorf("expected the statistics error to surface, got %v", err)
	}
}

// The batched solver and the in-memory fitter walk the same likelihood,
// so on the same data they must land on the same optimum.
func Test_NewtonSolveMatchesLocalLogistic(t *testing.T) {
	// Single binary feature plus intercept pseudo-feature, appended
	// last.
	n := 200.0
	rows := make([][2]float64, 200)
	y := make([]float64, 200)
	for i := 0; i < 100; i++ {
		rows[i] = [2]float64{0, 1}
		if i < 30 {
			y[i] = 1
		}
	}
	for i := 100; i < 200; i++ {
		rows[i] = [2]float64{1, 1}
		if i < 170 {
			y[i] = 1
		}
	}

	stats := func(coef [][]float64, converged []bool) ([][]float64, []*mat.SymDense, error) {
		if converged[0] {
			return [][]float64{nil}, []*mat.SymDense{nil}, nil
		}
		c := coef[0]
		grad := make([]float64, 2)
		hess := mat.NewSymDense(2, nil)
		for i, r := range rows {
			z := c[0]*r[0] + c[1]*r[1]
			s := sigmoid(z)
			g := s - y[i]
			w := s * (1 - s)
			for a := 0; a < 2; a++ {
				grad[a] += r[a] * g / n
				for b := a; b < 2; b++ {
					hess.SetSym(a, b, hess.At(a, b)+r[a]*r[b]*w/n)
				}
			}
		}
		return [][]float64{grad}, []*mat.SymDense{hess}, nil
	}

	coef := [][]float64{{0, 0}}
	converged, err := newtonSolve(coef, stats, 1e-10, 100)
	if err != nil {
		t.Fatalf("failed to solve: %v", err)
	}
	if !converged[0] {
		t.Fatal("expected convergence")
	}

	wantIntercept := math.Log(0.3 / 0.7)
	wantSlope := math.Log(0.7/0.3) - wantIntercept
	if math.Abs(coef[0][1]-wantIntercept) > 1e-6 {
		t.Errorf("expected intercept %v, got %v", wantIntercept, coef[0][1])
	}
	if math.Abs(coef[0][0]-wantSlope) > 1e-6 {
		t.Errorf("expected slope %v, got %v", wantSlope, coef[0][0])
	}
}
