// Package linalg turns packed aggregate statistics into the dense
// linear-algebra objects the solvers consume.
package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/peter-kozarec/slicefit/pkg/table"
)

// CondWarnThreshold is the condition number above which a solve is
// reported as potentially inaccurate. The solve still proceeds.
const CondWarnThreshold = 20

// ShapeError reports input whose dimensions cannot form the requested
// object.
type ShapeError struct {
	Msg string
}

func (e *ShapeError) Error() string { return "linalg: " + e.Msg }

func shapeErrorf(format string, args ...any) *ShapeError {
	return &ShapeError{Msg: fmt.Sprintf(format, args...)}
}

// SymmetrizeTriangular expands the upper-triangular entries of a
// symmetric matrix, given in row-major order, into the full matrix.
// For example [1, 2, 3] becomes [[1, 2], [2, 3]]. The length must be a
// triangular number.
func SymmetrizeTriangular(packed []float64) (*mat.SymDense, error) {
	n := int(math.Floor(math.Sqrt(2 * float64(len(packed)))))
	if n*(n+1)/2 != len(packed) {
		return nil, shapeErrorf("%d elements cannot form a symmetric matrix", len(packed))
	}
	sym := mat.NewSymDense(n, nil)
	k := 0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, packed[k])
			k++
		}
	}
	return sym, nil
}

// NormalEquations reconstructs X'X and X'y (both divided by the row
// count, since the statistics are averages) from a single-row
// sufficient-statistics table. Column naming follows the extractor:
// x{i} feature means, x{i}x{j} pairwise-product means for i <= j, y,
// and x{i}y. With an intercept the system gains a leading constant row
// and column.
func NormalEquations(stats *table.Table, k int, fitIntercept bool) (*mat.SymDense, *mat.VecDense, error) {
	if stats.NumRows() != 1 {
		return nil, nil, shapeErrorf("sufficient statistics must be a single row, got %d", stats.NumRows())
	}

	var packed []float64
	if fitIntercept {
		packed = append(packed, 1)
		for i := 0; i < k; i++ {
			v, err := stats.Float(0, fmt.Sprintf("x%d", i))
			if err != nil {
				return nil, nil, err
			}
			packed = append(packed, v)
		}
	}
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			v, err := stats.Float(0, fmt.Sprintf("x%dx%d", i, j))
			if err != nil {
				return nil, nil, err
			}
			packed = append(packed, v)
		}
	}
	xtx, err := SymmetrizeTriangular(packed)
	if err != nil {
		return nil, nil, err
	}

	var rhs []float64
	if fitIntercept {
		v, err := stats.Float(0, "y")
		if err != nil {
			return nil, nil, err
		}
		rhs = append(rhs, v)
	}
	for i := 0; i < k; i++ {
		v, err := stats.Float(0, fmt.Sprintf("x%dy", i))
		if err != nil {
			return nil, nil, err
		}
		rhs = append(rhs, v)
	}
	return xtx, mat.NewVecDense(len(rhs), rhs), nil
}

// Cond is the 2-norm condition number of a.
func Cond(a mat.Matrix) float64 {
	return mat.Cond(a, 2)
}

// Solve solves a*x = b through a general factorization, never an
// explicit inverse.
func Solve(a mat.Matrix, b *mat.VecDense) ([]float64, error) {
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("solving linear system: %w", err)
	}
	out := make([]float64, x.Len())
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}
