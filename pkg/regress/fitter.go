package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Fittable is the local fitting algorithm a model delegates to when the
// data has been materialized in memory. One implementation exists per
// model family.
type Fittable interface {
	Fit(x *mat.Dense, y []float64) (coef []float64, intercept float64, err error)
}

// center subtracts per-column means in place and returns them.
func center(x *mat.Dense) []float64 {
	rows, cols := x.Dims()
	means := make([]float64, cols)
	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, x)
		means[j] = floats.Sum(col) / float64(rows)
		for i := 0; i < rows; i++ {
			x.Set(i, j, x.At(i, j)-means[j])
		}
	}
	return means
}

func meanOf(y []float64) float64 {
	return floats.Sum(y) / float64(len(y))
}

type olsFitter struct {
	fitIntercept bool
}

func (f olsFitter) Fit(x *mat.Dense, y []float64) ([]float64, float64, error) {
	rows, cols := x.Dims()
	xc := mat.DenseCopyOf(x)
	yc := append([]float64(nil), y...)

	var xMeans []float64
	var yMean float64
	if f.fitIntercept {
		xMeans = center(xc)
		yMean = meanOf(yc)
		for i := range yc {
			yc[i] -= yMean
		}
	}

	var beta mat.Dense
	if err := beta.Solve(xc, mat.NewDense(rows, 1, yc)); err != nil {
		return nil, 0, fmt.Errorf("least squares: %w", err)
	}
	coef := make([]float64, cols)
	for j := range coef {
		coef[j] = beta.At(j, 0)
	}

	var intercept float64
	if f.fitIntercept {
		intercept = yMean - floats.Dot(xMeans, coef)
	}
	return coef, intercept, nil
}

type ridgeFitter struct {
	alpha        float64
	fitIntercept bool
}

func (f ridgeFitter) Fit(x *mat.Dense, y []float64) ([]float64, float64, error) {
	_, cols := x.Dims()
	xc := mat.DenseCopyOf(x)
	yc := append([]float64(nil), y...)

	var xMeans []float64
	var yMean float64
	if f.fitIntercept {
		xMeans = center(xc)
		yMean = meanOf(yc)
		for i := range yc {
			yc[i] -= yMean
		}
	}

	// X'X + alpha*I on sums; the intercept is handled by centering and
	// is never penalized.
	var xtx mat.Dense
	xtx.Mul(xc.T(), xc)
	for j := 0; j < cols; j++ {
		xtx.Set(j, j, xtx.At(j, j)+f.alpha)
	}
	xty := make([]float64, cols)
	for j := 0; j < cols; j++ {
		xty[j] = floats.Dot(mat.Col(nil, j, xc), yc)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(&xtx, mat.NewVecDense(cols, xty)); err != nil {
		return nil, 0, fmt.Errorf("ridge solve: %w", err)
	}
	coef := make([]float64, cols)
	for j := range coef {
		coef[j] = sol.AtVec(j)
	}

	var intercept float64
	if f.fitIntercept {
		intercept = yMean - floats.Dot(xMeans, coef)
	}
	return coef, intercept, nil
}

// elasticNetFitter minimizes 1/(2n)*RSS + alpha*l1Ratio*|w|_1 +
// alpha*(1-l1Ratio)/2*|w|_2^2 by cyclic coordinate descent with
// soft-thresholding. l1Ratio 1 is the lasso.
type elasticNetFitter struct {
	alpha        float64
	l1Ratio      float64
	fitIntercept bool
	maxIter      int
	tol          float64
}

func (f elasticNetFitter) Fit(x *mat.Dense, y []float64) ([]float64, float64, error) {
	rows, cols := x.Dims()
	n := float64(rows)
	xc := mat.DenseCopyOf(x)
	yc := append([]float64(nil), y...)

	var xMeans []float64
	var yMean float64
	if f.fitIntercept {
		xMeans = center(xc)
		yMean = meanOf(yc)
		for i := range yc {
			yc[i] -= yMean
		}
	}

	l1 := f.alpha * f.l1Ratio
	l2 := f.alpha * (1 - f.l1Ratio)

	colData := make([][]float64, cols)
	colSq := make([]float64, cols)
	for j := 0; j < cols; j++ {
		colData[j] = mat.Col(nil, j, xc)
		colSq[j] = floats.Dot(colData[j], colData[j]) / n
	}

	coef := make([]float64, cols)
	resid := append([]float64(nil), yc...)
	maxIter := f.maxIter
	if maxIter <= 0 {
		maxIter = 1000
	}
	for iter := 0; iter < maxIter; iter++ {
		maxDelta := 0.0
		for j := 0; j < cols; j++ {
			if colSq[j] == 0 {
				continue
			}
			old := coef[j]
			// rho is the partial correlation with feature j added back.
			rho := floats.Dot(colData[j], resid)/n + colSq[j]*old
			next := softThreshold(rho, l1) / (colSq[j] + l2)
			if next != old {
				d := old - next
				floats.AddScaled(resid, d, colData[j])
				coef[j] = next
			}
			if d := math.Abs(coef[j] - old); d > maxDelta {
				maxDelta = d
			}
		}
		if maxDelta < f.tol {
			break
		}
	}

	var intercept float64
	if f.fitIntercept {
		intercept = yMean - floats.Dot(xMeans, coef)
	}
	return coef, intercept, nil
}

func softThreshold(z, g float64) float64 {
	switch {
	case z > g:
		return z - g
	case z < -g:
		return z + g
	}
	return 0
}

// logisticFitter runs Newton iterations on the binary log-likelihood,
// the in-memory twin of the pushdown solver.
type logisticFitter struct {
	penalty      string
	c            float64
	l1Ratio      float64
	fitIntercept bool
	maxIter      int
	tol          float64
}

func (f logisticFitter) Fit(x *mat.Dense, y []float64) ([]float64, float64, error) {
	rows, cols := x.Dims()
	n := float64(rows)
	k := cols
	if f.fitIntercept {
		k++
	}

	// Design matrix with the intercept column appended last.
	design := mat.NewDense(rows, k, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			design.Set(i, j, x.At(i, j))
		}
		if f.fitIntercept {
			design.Set(i, cols, 1)
		}
	}

	coef := make([]float64, k)
	grad := make([]float64, k)
	hess := mat.NewDense(k, k, nil)
	row := make([]float64, k)

	maxIter := f.maxIter
	if maxIter <= 0 {
		maxIter = 100
	}
	converged := false
	for iter := 0; iter < maxIter && !converged; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		hess.Zero()
		for i := 0; i < rows; i++ {
			mat.Row(row, i, design)
			z := floats.Dot(coef, row)
			s := sigmoid(z)
			g := s - y[i]
			w := s * (1 - s)
			for a := 0; a < k; a++ {
				grad[a] += row[a] * g / n
				for b := a; b < k; b++ {
					hess.Set(a, b, hess.At(a, b)+row[a]*row[b]*w/n)
				}
			}
		}
		for a := 0; a < k; a++ {
			for b := a + 1; b < k; b++ {
				hess.Set(b, a, hess.At(a, b))
			}
		}
		applyPenalty(grad, hess, coef, cols, n, f.penalty, f.c, f.l1Ratio)

		var delta mat.VecDense
		if err := delta.SolveVec(hess, mat.NewVecDense(k, grad)); err != nil {
			return nil, 0, fmt.Errorf("logistic newton step: %w", err)
		}
		maxDelta := 0.0
		for j := 0; j < k; j++ {
			d := delta.AtVec(j)
			coef[j] -= d
			if a := math.Abs(d); a > maxDelta {
				maxDelta = a
			}
		}
		converged = maxDelta < f.tol
	}

	var intercept float64
	if f.fitIntercept {
		intercept = coef[cols]
		coef = coef[:cols]
	}
	return coef, intercept, nil
}

// applyPenalty adds the penalty contribution to the gradient and
// Hessian of the averaged log-likelihood. Only the first nFeat entries
// are penalized so the intercept stays free. The L1 term is a
// subgradient approximation that does not induce exact sparsity.
func applyPenalty(grad []float64, hess *mat.Dense, coef []float64, nFeat int, n float64, penalty string, c, l1Ratio float64) {
	switch penalty {
	case "l2":
		for j := 0; j < nFeat; j++ {
			grad[j] += coef[j] / (n * c)
			hess.Set(j, j, hess.At(j, j)+1/(n*c))
		}
	case "l1":
		for j := 0; j < nFeat; j++ {
			grad[j] += sign(coef[j]) / n / c
		}
	case "elasticnet":
		l1 := l1Ratio / c
		l2 := (1 - l1Ratio) / c
		for j := 0; j < nFeat; j++ {
			grad[j] += (l1*sign(coef[j]) + l2*coef[j]) / n
			hess.Set(j, j, hess.At(j, j)+l2/n)
		}
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// sigmoid evaluates 1/(1+exp(-z)) without overflowing exp for large
// negative z.
func sigmoid(z float64) float64 {
	if z < 0 {
		e := math.Exp(z)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(-z))
}
