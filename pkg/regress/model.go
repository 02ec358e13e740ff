// Package regress fits regression models over metric-tree outputs,
// either locally on a materialized table or through SQL pushdown that
// reconstructs coefficients from aggregate statistics without ever
// transferring raw rows.
package regress

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/peter-kozarec/slicefit/pkg/exec"
	"github.com/peter-kozarec/slicefit/pkg/metric"
	"github.com/peter-kozarec/slicefit/pkg/table"
)

type magicFunc func(ctx context.Context, from string, splitBy []string, ex exec.Executor) (*table.Table, error)

// Model is the shared core of every model family. It is immutable after
// construction and safe to reuse across calls.
type Model struct {
	name         string
	y            metric.Metric
	x            metric.List
	groupBy      []string
	k            int
	fitIntercept bool
	normalize    bool
	fitter       Fittable
	logger       *zap.Logger

	// magic is the pushdown entry point, nil for families that have
	// none.
	magic magicFunc
	// ridgeAlpha is consulted by the closed-form solver; zero means no
	// penalty.
	ridgeAlpha float64
	isRidge    bool
}

func newModel(family string, y, x metric.Metric, fitter Fittable, o *options) (*Model, error) {
	if y == nil || x == nil {
		return nil, configErrorf("y and x must be Metrics")
	}
	if w := y.Width(); w != 1 {
		return nil, configErrorf("y must be a 1D metric but is %dD", w)
	}
	xl, ok := x.(metric.List)
	if !ok {
		xl = metric.List{x}
	}
	m := &Model{
		y:            y,
		x:            xl,
		groupBy:      o.groupBy,
		k:            xl.Width(),
		fitIntercept: o.fitIntercept,
		normalize:    o.normalize,
		fitter:       fitter,
		logger:       o.logger,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.name = o.name
	if m.name == "" {
		m.name = fmt.Sprintf("%s(%s ~ %s)", family, y.Name(), xl.Name())
	}
	return m, nil
}

func (m *Model) Name() string { return m.name }

// FeatureNames are the display names of the explanatory columns.
func (m *Model) FeatureNames() []string { return m.x.Columns() }

func (m *Model) allSQLComputable() bool {
	return m.y.SQLComputable() && m.x.SQLComputable()
}

// Compute fits the model locally on a materialized table. The last k+1
// columns must be the response followed by the explanatory columns;
// splitBy columns partition the rows into independently fitted slices
// and may be nil.
func (m *Model) Compute(df *table.Table, splitBy []string) (*table.Table, error) {
	cols := df.Columns()
	if len(cols) < m.k+1 {
		return nil, configErrorf("fit table has %d columns, need at least %d", len(cols), m.k+1)
	}
	xsNames := cols[len(cols)-m.k:]
	yName := cols[len(cols)-m.k-1]

	groups, err := groupsOf(df, splitBy)
	if err != nil {
		return nil, err
	}

	outCols := append([]string(nil), splitBy...)
	if m.fitIntercept {
		outCols = append(outCols, "intercept")
	}
	outCols = append(outCols, xsNames...)
	out := table.New(outCols...)

	for _, g := range groups {
		coef, intercept, err := m.fitRows(df, g.Rows, yName, xsNames)
		if err != nil {
			return nil, err
		}
		row := append([]any(nil), g.Key...)
		if m.fitIntercept {
			row = append(row, intercept)
		}
		for _, c := range coef {
			row = append(row, c)
		}
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	if len(splitBy) > 0 {
		if err := out.SortBy(splitBy); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func groupsOf(df *table.Table, splitBy []string) ([]table.Group, error) {
	if len(splitBy) == 0 {
		all := make([]int, df.NumRows())
		for i := range all {
			all[i] = i
		}
		return []table.Group{{Rows: all}}, nil
	}
	return df.GroupBy(splitBy)
}

// fitRows materializes one slice and runs the injected algorithm,
// applying the same centering/normalization and intercept
// reconstruction as the pushdown path so the two stay numerically
// equivalent.
func (m *Model) fitRows(df *table.Table, rows []int, yName string, xsNames []string) ([]float64, float64, error) {
	n := len(rows)
	if n == 0 {
		return nil, 0, configErrorf("cannot fit on an empty slice")
	}
	y := make([]float64, n)
	x := mat.NewDense(n, m.k, nil)
	for i, r := range rows {
		v, err := df.Float(r, yName)
		if err != nil {
			return nil, 0, err
		}
		y[i] = v
		for j, name := range xsNames {
			v, err := df.Float(r, name)
			if err != nil {
				return nil, 0, err
			}
			x.Set(i, j, v)
		}
	}

	if !(m.normalize && m.fitIntercept) {
		return m.fitter.Fit(x, y)
	}

	scaled := mat.DenseCopyOf(x)
	xMeans := center(scaled)
	norms := make([]float64, m.k)
	for j := 0; j < m.k; j++ {
		col := mat.Col(nil, j, scaled)
		norms[j] = floats.Norm(col, 2)
		if norms[j] == 0 {
			norms[j] = 1
		}
		for i := 0; i < n; i++ {
			scaled.Set(i, j, scaled.At(i, j)/norms[j])
		}
	}
	coef, _, err := m.fitter.Fit(scaled, y)
	if err != nil {
		return nil, 0, err
	}
	for j := range coef {
		coef[j] /= norms[j]
	}
	intercept := meanOf(y) - floats.Dot(xMeans, coef)
	return coef, intercept, nil
}

// ComputeThroughSQL evaluates the model against a table reachable
// through the executor, dispatching on mode: magic runs the full
// pushdown, mixed and the default try pushdown first and fall back to a
// local fit on SQL-aggregated children, sql always fails since no model
// is computable as a single query.
func (m *Model) ComputeThroughSQL(ctx context.Context, from string, splitBy []string, ex exec.Executor, mode Mode) (*table.Table, error) {
	if !validMode(mode) {
		return nil, configErrorf("mode %q is not supported", mode)
	}
	if mode == ModeSQL {
		return nil, configErrorf("%s is not computable in pure SQL", m.name)
	}

	if mode == ModeMagic {
		if !m.allSQLComputable() {
			return nil, configErrorf("the magic mode of %s requires all descendants to be computable in SQL", m.name)
		}
		res, err := m.attemptPushdown(ctx, from, splitBy, ex)
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	// mixed / default
	var fallback *ModeFallbackError
	if m.magic != nil && m.allSQLComputable() {
		res, err := m.attemptPushdown(ctx, from, splitBy, ex)
		if err == nil {
			return res, nil
		}
		var ce *ConfigError
		if errors.As(err, &ce) {
			return nil, err
		}
		errors.As(err, &fallback)
	}

	df, err := m.materialize(ctx, from, splitBy, ex)
	if err == nil {
		var res *table.Table
		if res, err = m.Compute(df, splitBy); err == nil {
			// The local fallback honors the same column contract as the
			// pushdown path.
			m.applyNameTemplate(res, splitBy)
			return res, nil
		}
	}
	if fallback != nil {
		// The pushdown failure stays the authoritative signal when the
		// fallback fails too.
		return nil, fallback
	}
	return nil, err
}

// attemptPushdown runs the magic path. Configuration problems surface
// as fatal ConfigErrors; anything else becomes the distinguished
// fallback signal suggesting mixed mode.
func (m *Model) attemptPushdown(ctx context.Context, from string, splitBy []string, ex exec.Executor) (*table.Table, error) {
	if m.magic == nil {
		return nil, &ModeFallbackError{Suggest: ModeMixed, Cause: configErrorf("%s has no pushdown solver", m.name)}
	}
	res, err := m.magic(ctx, from, splitBy, ex)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &ModeFallbackError{Suggest: ModeMixed, Cause: err}
	}
	m.applyNameTemplate(res, splitBy)
	return res, nil
}

// materialize evaluates the child metrics through SQL and returns the
// (typically pre-aggregated) table the local path fits on, with display
// names restored.
func (m *Model) materialize(ctx context.Context, from string, splitBy []string, ex exec.Executor) (*table.Table, error) {
	a, err := m.assemble(ctx, from, splitBy, ex, false)
	if err != nil {
		return nil, err
	}
	q := a.selectAll()
	df, err := ex.Execute(ctx, a.wb.Render(q))
	if err != nil {
		return nil, err
	}
	names := append([]string(nil), a.groupCols...)
	names = append(names, m.y.Name())
	names = append(names, m.FeatureNames()...)
	if err := df.Rename(names); err != nil {
		return nil, err
	}
	return df, nil
}

// applyNameTemplate renames the value columns of a result the standard
// way, leaving split columns untouched.
func (m *Model) applyNameTemplate(res *table.Table, splitBy []string) {
	split := make(map[string]bool, len(splitBy))
	for _, c := range splitBy {
		split[c] = true
	}
	cols := res.Columns()
	for i, c := range cols {
		if !split[c] {
			cols[i] = fmt.Sprintf("%s Coefficient: %s", m.name, c)
		}
	}
	// Renaming to the same arity cannot fail.
	_ = res.Rename(cols)
}
