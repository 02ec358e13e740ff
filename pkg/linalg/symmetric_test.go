package linalg

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/peter-kozarec/slicefit/pkg/table"
)

func Test_SymmetrizeTriangular(t *testing.T) {
	sym, err := SymmetrizeTriangular([]float64{1, 2, 3})
	if err != nil {
		t.Fatalf("failed to symmetrize: %v", err)
	}
	want := [][]float64{{1, 2}, {2, 3}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if got := sym.At(i, j); got != want[i][j] {
				t.Errorf("at (%d,%d): expected %v, got %v", i, j, want[i][j], got)
			}
		}
	}
}

func Test_SymmetrizeTriangularBadLength(t *testing.T) {
	_, err := SymmetrizeTriangular([]float64{1, 2})
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Errorf("expected ShapeError, got %v", err)
	}
}

func Test_NormalEquations(t *testing.T) {
	// Moments of x in {1, 2, 3} with y = 2 + 3x.
	stats := table.New("x0", "x0x0", "y", "x0y", "n_obs")
	_ = stats.AppendRow(2.0, 14.0/3, 8.0, 18.0, 3)

	xtx, xty, err := NormalEquations(stats, 1, true)
	if err != nil {
		t.Fatalf("failed to build normal equations: %v", err)
	}
	coef, err := Solve(xtx, xty)
	if err != nil {
		t.Fatalf("failed to solve: %v", err)
	}
	if math.Abs(coef[0]-2) > 1e-9 || math.Abs(coef[1]-3) > 1e-9 {
		t.Errorf("expected [2 3], got %v", coef)
	}
}

func Test_NormalEquationsMultiRow(t *testing.T) {
	stats := table.New("x0x0", "x0y")
	_ = stats.AppendRow(1.0, 1.0)
	_ = stats.AppendRow(1.0, 1.0)

	_, _, err := NormalEquations(stats, 1, false)
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Errorf("expected ShapeError for a multi-row table, got %v", err)
	}
}

func Test_NormalEquationsMissingColumn(t *testing.T) {
	stats := table.New("x0x0")
	_ = stats.AppendRow(1.0)

	_, _, err := NormalEquations(stats, 1, false)
	var ce *table.ColumnError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ColumnError, got %v", err)
	}
	if ce.Name != "x0y" {
		t.Errorf("expected missing column x0y, got %q", ce.Name)
	}
}

func Test_CondIdentity(t *testing.T) {
	if c := Cond(mat.NewSymDense(2, []float64{1, 0, 0, 1})); math.Abs(c-1) > 1e-12 {
		t.Errorf("expected condition number 1, got %v", c)
	}
}
