package regress

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/peter-kozarec/slicefit/pkg/exec"
	"github.com/peter-kozarec/slicefit/pkg/linalg"
	"github.com/peter-kozarec/slicefit/pkg/sqlgen"
	"github.com/peter-kozarec/slicefit/pkg/table"
)

// solvePushdown fits binary logistic regression without materializing a
// single raw row: every Newton-Raphson iteration issues one aggregate
// query computing the gradient and Hessian of the log-likelihood for
// all not-yet-converged slices at once.
func (l *Logistic) solvePushdown(ctx context.Context, from string, splitBy []string, ex exec.Executor) (*table.Table, error) {
	if err := l.checkPushdownSupported(); err != nil {
		return nil, err
	}

	distinct, err := l.countDistinctY(ctx, from, ex)
	if err != nil {
		return nil, err
	}
	if distinct != 2 {
		return nil, configErrorf("magic mode only supports two classes but got %d distinct y values", distinct)
	}

	a, err := l.assemble(ctx, from, splitBy, ex, false)
	if err != nil {
		return nil, err
	}
	// The intercept is carried as a constant pseudo-feature, last in
	// the coefficient layout until the final reordering.
	xs := append([]string(nil), a.xs...)
	if l.fitIntercept {
		xs = append(xs, "1")
	}

	var conds []sqlgen.Expr
	var keys [][]any
	if len(splitBy) > 0 {
		slices, err := ex.Execute(ctx, a.wb.Render(&sqlgen.Query{
			Select:   identItems(splitBy),
			From:     a.rel,
			Distinct: true,
		}))
		if err != nil {
			return nil, fmt.Errorf("enumerating slices: %w", err)
		}
		for r := 0; r < slices.NumRows(); r++ {
			eqs := make([]sqlgen.Expr, len(splitBy))
			key := make([]any, len(splitBy))
			for i, c := range splitBy {
				v, err := slices.Value(r, c)
				if err != nil {
					return nil, err
				}
				key[i] = v
				eqs[i] = sqlgen.Eq(sqlgen.Ident(c), sqlgen.Lit(v))
			}
			conds = append(conds, sqlgen.And(eqs...))
			keys = append(keys, key)
		}
	}

	nSlices := len(conds)
	if nSlices == 0 {
		nSlices = 1
		conds = []sqlgen.Expr{nil}
		keys = [][]any{nil}
	}
	coef := make([][]float64, nSlices)
	for s := range coef {
		coef[s] = make([]float64, len(xs))
	}

	stats := func(cur [][]float64, converged []bool) ([][]float64, []*mat.SymDense, error) {
		return l.queryGradsAndHessians(ctx, ex, a, xs, cur, converged, conds)
	}
	converged, err := newtonSolve(coef, stats, l.tol, l.maxIter)
	if err != nil {
		return nil, err
	}
	l.warnUnconverged(converged, splitBy, keys)

	return l.coefTable(splitBy, keys, coef)
}

func (l *Logistic) checkPushdownSupported() error {
	if l.classWeight != "" {
		return configErrorf("magic mode doesn't support class_weight")
	}
	if l.multiClass == "multinomial" {
		return configErrorf("magic mode doesn't support multi_class")
	}
	if l.penalty == "elasticnet" && (l.l1Ratio < 0 || l.l1Ratio > 1) {
		return configErrorf("l1_ratio must be between 0 and 1; got %v", l.l1Ratio)
	}
	if l.interceptScaling != 1 {
		return configErrorf("intercept_scaling is not supported in magic mode")
	}
	switch l.penalty {
	case "l1", "l2", "elasticnet", "none":
	default:
		return configErrorf("logistic regression supports only penalties in [l1, l2, elasticnet, none], got %q", l.penalty)
	}
	if l.penalty == "l1" || l.penalty == "elasticnet" {
		l.logger.Warn("the l1 and elasticnet solutions don't quite achieve sparsity; interpret the results with care",
			zap.String("model", l.name))
	}
	return nil
}

// countDistinctY counts the distinct response values over the whole
// ungrouped population.
func (l *Logistic) countDistinctY(ctx context.Context, from string, ex exec.Executor) (int, error) {
	yExprs, err := l.y.SelectExprs()
	if err != nil {
		return 0, err
	}
	wb := sqlgen.NewWithBlock()
	inner := &sqlgen.Query{
		Select: []sqlgen.SelectItem{{Expr: yExprs[0], Alias: "y"}},
		From:   from,
	}
	if l.y.Aggregate() {
		inner.Select = append(identItems(l.groupBy), inner.Select...)
		inner.GroupBy = l.groupBy
	}
	rel := wb.Add("ResponseValues", inner)
	res, err := ex.Execute(ctx, wb.Render(&sqlgen.Query{
		Select: []sqlgen.SelectItem{{Expr: sqlgen.CountDistinct(sqlgen.Ident("y")), Alias: "n"}},
		From:   rel,
	}))
	if err != nil {
		return 0, fmt.Errorf("counting response classes: %w", err)
	}
	if res.NumRows() == 0 {
		return 0, fmt.Errorf("counting response classes: the query returned no rows")
	}
	v, err := res.Float(0, "n")
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// queryGradsAndHessians batches the gradient and Hessian columns of
// every unconverged slice into one un-grouped query, executes it, and
// slices the flat result back apart. Returning both from the single
// round trip keeps the Newton step free of hidden state.
func (l *Logistic) queryGradsAndHessians(ctx context.Context, ex exec.Executor, a *assembled, xs []string, coef [][]float64, converged []bool, conds []sqlgen.Expr) ([][]float64, []*mat.SymDense, error) {
	k := len(xs)
	packedLen := k * (k + 1) / 2

	var gradCols, hessCols []sqlgen.SelectItem
	for s := range coef {
		if converged[s] {
			continue
		}
		g, h := l.gradHessExprs(xs, coef[s], conds[s])
		for _, e := range g {
			gradCols = append(gradCols, sqlgen.SelectItem{Expr: e, Alias: fmt.Sprintf("grads_%d", len(gradCols))})
		}
		for _, e := range h {
			hessCols = append(hessCols, sqlgen.SelectItem{Expr: e, Alias: fmt.Sprintf("hess_%d", len(hessCols))})
		}
	}

	res, err := ex.Execute(ctx, a.wb.Render(&sqlgen.Query{
		Select: append(gradCols, hessCols...),
		From:   a.rel,
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("newton iteration query: %w", err)
	}
	if res.NumRows() != 1 {
		return nil, nil, fmt.Errorf("newton iteration query returned %d rows, want 1", res.NumRows())
	}

	flatGrads := make([]float64, len(gradCols))
	for i := range flatGrads {
		if flatGrads[i], err = res.Float(0, fmt.Sprintf("grads_%d", i)); err != nil {
			return nil, nil, err
		}
	}
	flatHess := make([]float64, len(hessCols))
	for i := range flatHess {
		if flatHess[i], err = res.Float(0, fmt.Sprintf("hess_%d", i)); err != nil {
			return nil, nil, err
		}
	}

	grads := make([][]float64, len(coef))
	hessians := make([]*mat.SymDense, len(coef))
	gi, hi := 0, 0
	for s := range coef {
		if converged[s] {
			continue
		}
		grads[s] = flatGrads[gi : gi+k]
		gi += k
		sym, err := linalg.SymmetrizeTriangular(flatHess[hi : hi+packedLen])
		if err != nil {
			return nil, nil, err
		}
		hi += packedLen
		hessians[s] = sym
	}
	return grads, hessians, nil
}

// gradHessExprs builds the aggregate expressions of one slice for the
// current coefficients, which are embedded as exact float literals.
// Hessian entries cover the upper triangle only.
func (l *Logistic) gradHessExprs(xs []string, coef []float64, cond sqlgen.Expr) ([]sqlgen.Expr, []sqlgen.Expr) {
	z := linearPredictor(xs, coef)

	grads := make([]sqlgen.Expr, len(xs))
	for i, x := range xs {
		grads[i] = sqlgen.Expr(sqlgen.Avg(
			sqlgen.Mul(sqlgen.Ident(x), sigMinusB(z, sqlgen.Ident("y")))).Filter(cond))
	}

	// w = -sigmoid(z) * (sigmoid(z) - 1), the negated IRLS weight.
	sigZ := stableSigmoid(z)
	w := sqlgen.Neg(sqlgen.Mul(sigZ, sigMinusB(z, sqlgen.Int(1))))
	var hess []sqlgen.Expr
	for i := range xs {
		for j := i; j < len(xs); j++ {
			hess = append(hess, sqlgen.Expr(sqlgen.Avg(
				sqlgen.Mul(sqlgen.Mul(sqlgen.Ident(xs[i]), sqlgen.Ident(xs[j])), w)).Filter(cond)))
		}
	}

	l.addPenaltyExprs(grads, hess, xs, coef, cond)
	return grads, hess
}

// addPenaltyExprs adjusts gradient and Hessian columns for the chosen
// penalty before transmission. Only the first k real features are
// penalized, never the intercept pseudo-feature. The L1 term is a
// subgradient approximation and does not induce exact sparsity.
func (l *Logistic) addPenaltyExprs(grads, hess []sqlgen.Expr, xs []string, coef []float64, cond sqlgen.Expr) {
	n := sqlgen.Expr(sqlgen.CountStar().Filter(cond))
	switch l.penalty {
	case "l1":
		for i := 0; i < l.k; i++ {
			term := sqlgen.Div(sqlgen.Div(sqlgen.Call("SIGN", sqlgen.Float(coef[i])), n), sqlgen.Float(l.c))
			grads[i] = sqlgen.Add(grads[i], term)
		}
	case "l2":
		for i := 0; i < l.k; i++ {
			term := sqlgen.Div(sqlgen.Div(sqlgen.Float(coef[i]), n), sqlgen.Float(l.c))
			grads[i] = sqlgen.Add(grads[i], term)
			d := packedDiagIndex(len(xs), i)
			hess[d] = sqlgen.Add(hess[d], sqlgen.Div(sqlgen.Int(1), sqlgen.Mul(n, sqlgen.Float(l.c))))
		}
	case "elasticnet":
		l1 := l.l1Ratio / l.c
		l2 := (1 - l.l1Ratio) / l.c
		for i := 0; i < l.k; i++ {
			term := sqlgen.Div(
				sqlgen.Add(
					sqlgen.Mul(sqlgen.Float(l1), sqlgen.Call("SIGN", sqlgen.Float(coef[i]))),
					sqlgen.Mul(sqlgen.Float(l2), sqlgen.Float(coef[i]))),
				n)
			grads[i] = sqlgen.Add(grads[i], term)
			d := packedDiagIndex(len(xs), i)
			hess[d] = sqlgen.Add(hess[d], sqlgen.Div(sqlgen.Float(l2), n))
		}
	}
}

// packedDiagIndex is the position of entry (i, i) in the row-major
// upper-triangular packing of a k-by-k symmetric matrix.
func packedDiagIndex(k, i int) int {
	return i*k - i*(i-1)/2
}

func linearPredictor(xs []string, coef []float64) sqlgen.Expr {
	z := sqlgen.Expr(sqlgen.Mul(sqlgen.Float(coef[0]), sqlgen.Ident(xs[0])))
	for i := 1; i < len(xs); i++ {
		z = sqlgen.Add(z, sqlgen.Mul(sqlgen.Float(coef[i]), sqlgen.Ident(xs[i])))
	}
	return z
}

// stableSigmoid renders sigmoid(z) split on the sign of z so EXP never
// overflows for large |z|.
func stableSigmoid(z sqlgen.Expr) sqlgen.Expr {
	one := sqlgen.Int(1)
	expZ := sqlgen.Call("EXP", z)
	expNZ := sqlgen.Call("EXP", sqlgen.Neg(z))
	return sqlgen.Case(sqlgen.Lt(z, sqlgen.Int(0)),
		sqlgen.Div(expZ, sqlgen.Add(one, expZ)),
		sqlgen.Div(one, sqlgen.Add(one, expNZ)))
}

// sigMinusB renders sigmoid(z) - b in the numerically stable split
// form.
func sigMinusB(z, b sqlgen.Expr) sqlgen.Expr {
	one := sqlgen.Int(1)
	expZ := sqlgen.Call("EXP", z)
	expNZ := sqlgen.Call("EXP", sqlgen.Neg(z))
	neg := sqlgen.Div(
		sqlgen.Sub(sqlgen.Mul(sqlgen.Sub(one, b), expZ), b),
		sqlgen.Add(one, expZ))
	pos := sqlgen.Div(
		sqlgen.Sub(sqlgen.Sub(one, b), sqlgen.Mul(b, expNZ)),
		sqlgen.Add(one, expNZ))
	return sqlgen.Case(sqlgen.Lt(z, sqlgen.Int(0)), neg, pos)
}

func (l *Logistic) warnUnconverged(converged []bool, splitBy []string, keys [][]any) {
	var stuck []string
	for s, done := range converged {
		if !done {
			if keys[s] == nil {
				stuck = append(stuck, "(all)")
			} else {
				stuck = append(stuck, fmt.Sprint(keys[s]))
			}
		}
	}
	if len(stuck) > 0 {
		l.logger.Warn("optimization didn't converge",
			zap.String("model", l.name),
			zap.Strings("slices", stuck),
			zap.Int("max_iter", l.maxIter))
	}
}

// coefTable reorders each slice's coefficients intercept-first and
// assembles the result table.
func (l *Logistic) coefTable(splitBy []string, keys [][]any, coef [][]float64) (*table.Table, error) {
	cols := append([]string(nil), splitBy...)
	if l.fitIntercept {
		cols = append(cols, "intercept")
	}
	cols = append(cols, l.FeatureNames()...)
	out := table.New(cols...)

	for s, c := range coef {
		row := append([]any(nil), keys[s]...)
		if l.fitIntercept {
			row = append(row, c[len(c)-1])
			c = c[:len(c)-1]
		}
		for _, v := range c {
			row = append(row, v)
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
