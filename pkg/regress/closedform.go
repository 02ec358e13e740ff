package regress

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/peter-kozarec/slicefit/pkg/exec"
	"github.com/peter-kozarec/slicefit/pkg/linalg"
	"github.com/peter-kozarec/slicefit/pkg/table"
)

// solveClosedForm is the pushdown path for OLS and Ridge: one
// sufficient-statistics query, then a per-slice linear solve. OLS is
// ridge with a zero penalty.
func (m *Model) solveClosedForm(ctx context.Context, from string, splitBy []string, ex exec.Executor) (*table.Table, error) {
	// Normalization is handled algebraically from the raw moments, so
	// the statistics are always extracted unnormalized.
	_, stats, err := m.sufficientStats(ctx, from, splitBy, ex, m.fitIntercept, false, true)
	if err != nil {
		return nil, err
	}

	var out *table.Table
	for r := 0; r < stats.NumRows(); r++ {
		coef, cols, err := m.coefsFromStats(rowView(stats, r))
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = table.New(append(append([]string(nil), splitBy...), cols...)...)
		}
		row := make([]any, 0, len(splitBy)+len(coef))
		for _, c := range splitBy {
			v, err := stats.Value(r, c)
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		for _, v := range coef {
			row = append(row, v)
		}
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	if out == nil {
		return nil, configErrorf("no rows to fit %s on", m.name)
	}
	if len(splitBy) > 0 {
		if err := out.SortBy(splitBy); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// coefsFromStats solves one slice. The normalized branch reconstructs
// the centered cross-moments algebraically from the raw aggregates,
// avoiding a second scan.
func (m *Model) coefsFromStats(stats *table.Table) ([]float64, []string, error) {
	if m.fitIntercept && m.normalize {
		return m.normalizedCoefs(stats)
	}

	xtx, xty, err := linalg.NormalEquations(stats, m.k, m.fitIntercept)
	if err != nil {
		return nil, nil, err
	}
	if m.isRidge {
		nObs, err := stats.Float(0, "n_obs")
		if err != nil {
			return nil, nil, err
		}
		// The moments are averages, not sums, so the penalty is
		// rescaled by the observation count. The intercept entry stays
		// unpenalized.
		start := 0
		if m.fitIntercept {
			start = 1
		}
		dim, _ := xtx.Dims()
		for i := start; i < dim; i++ {
			xtx.SetSym(i, i, xtx.At(i, i)+m.ridgeAlpha/nObs)
		}
	}
	m.warnIfIllConditioned(xtx)

	coef, err := linalg.Solve(xtx, xty)
	if err != nil {
		return nil, nil, err
	}
	cols := m.FeatureNames()
	if m.fitIntercept {
		cols = append([]string{"intercept"}, cols...)
	}
	return coef, cols, nil
}

// normalizedCoefs derives the centered second moments as
// avg(xi*xj) - avg(xi)*avg(xj), which recovers what a fit on the
// normalized design would produce, and then rebuilds the true
// intercept from the raw means.
func (m *Model) normalizedCoefs(stats *table.Table) ([]float64, []string, error) {
	xMeans := make([]float64, m.k)
	for i := range xMeans {
		v, err := stats.Float(0, fmt.Sprintf("x%d", i))
		if err != nil {
			return nil, nil, err
		}
		xMeans[i] = v
	}
	yMean, err := stats.Float(0, "y")
	if err != nil {
		return nil, nil, err
	}

	var packed []float64
	xty := make([]float64, m.k)
	for i := 0; i < m.k; i++ {
		xiy, err := stats.Float(0, fmt.Sprintf("x%dy", i))
		if err != nil {
			return nil, nil, err
		}
		xty[i] = xiy - xMeans[i]*yMean
		for j := i; j < m.k; j++ {
			xixj, err := stats.Float(0, fmt.Sprintf("x%dx%d", i, j))
			if err != nil {
				return nil, nil, err
			}
			packed = append(packed, xixj-xMeans[i]*xMeans[j])
		}
	}
	xtx, err := linalg.SymmetrizeTriangular(packed)
	if err != nil {
		return nil, nil, err
	}
	if m.isRidge {
		// Per-feature scaling: the penalty rides on the diagonal of the
		// centered moments themselves.
		for i := 0; i < m.k; i++ {
			xtx.SetSym(i, i, xtx.At(i, i)*(1+m.ridgeAlpha))
		}
	}
	m.warnIfIllConditioned(xtx)

	coef, err := linalg.Solve(xtx, mat.NewVecDense(m.k, xty))
	if err != nil {
		return nil, nil, err
	}

	intercept := yMean
	for i := range coef {
		intercept -= coef[i] * xMeans[i]
	}
	cols := append([]string{"intercept"}, m.FeatureNames()...)
	return append([]float64{intercept}, coef...), cols, nil
}

func (m *Model) warnIfIllConditioned(xtx mat.Matrix) {
	if cond := linalg.Cond(xtx); cond > linalg.CondWarnThreshold {
		m.logger.Warn("the condition number of X'X might be too large; coefficients might be inaccurate",
			zap.String("model", m.name),
			zap.Float64("condition_number", cond))
	}
}
