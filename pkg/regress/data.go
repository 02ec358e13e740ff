package regress

import (
	"context"
	"fmt"

	"github.com/peter-kozarec/slicefit/pkg/exec"
	"github.com/peter-kozarec/slicefit/pkg/sqlgen"
	"github.com/peter-kozarec/slicefit/pkg/table"
)

// assembled is the grouped source relation the solvers query: the child
// metric outputs as columns y, x_0..x_{k-1} alongside the grouping
// columns, registered in a shared WITH block.
type assembled struct {
	rel       string
	wb        *sqlgen.WithBlock
	groupCols []string
	y         string
	xs        []string
	means     *table.Table
	norms     *table.Table
}

func (a *assembled) selectAll() *sqlgen.Query {
	var items []sqlgen.SelectItem
	for _, c := range a.groupCols {
		items = append(items, sqlgen.SelectItem{Expr: sqlgen.Ident(c)})
	}
	items = append(items, sqlgen.SelectItem{Expr: sqlgen.Ident(a.y)})
	for _, x := range a.xs {
		items = append(items, sqlgen.SelectItem{Expr: sqlgen.Ident(x)})
	}
	return &sqlgen.Query{Select: items, From: a.rel}
}

// assemble builds the source relation for a fit. With normalize set it
// takes three passes: per-slice means, a centered relation whose norms
// can then be measured, and the final normalized relation. The means
// and norms tables ride along for intercept reconstruction.
func (m *Model) assemble(ctx context.Context, from string, splitBy []string, ex exec.Executor, normalize bool) (*assembled, error) {
	yExprs, err := m.y.SelectExprs()
	if err != nil {
		return nil, err
	}
	xExprs, err := m.x.SelectExprs()
	if err != nil {
		return nil, err
	}
	aggregate := m.y.Aggregate() || m.x.Aggregate()
	if aggregate && (!m.y.Aggregate() || !m.x.Aggregate()) {
		return nil, configErrorf("cannot mix aggregate and raw metrics in one model")
	}

	groupCols := append(append([]string(nil), splitBy...), m.groupBy...)
	yAlias := "y"
	xs := make([]string, m.k)
	items := identItems(groupCols)
	items = append(items, sqlgen.SelectItem{Expr: yExprs[0], Alias: yAlias})
	for i, e := range xExprs {
		xs[i] = fmt.Sprintf("x_%d", i)
		items = append(items, sqlgen.SelectItem{Expr: e, Alias: xs[i]})
	}
	q := &sqlgen.Query{Select: items, From: from}
	if aggregate {
		q.GroupBy = groupCols
	}
	wb := sqlgen.NewWithBlock()
	a := &assembled{
		rel:       wb.Add("DataToFit", q),
		wb:        wb,
		groupCols: groupCols,
		y:         yAlias,
		xs:        xs,
	}
	if !normalize {
		return a, nil
	}

	// Pass 1: per-slice means of every x and of y.
	avgItems := identItems(splitBy)
	for _, x := range xs {
		avgItems = append(avgItems, sqlgen.SelectItem{Expr: sqlgen.Avg(sqlgen.Ident(x)), Alias: x})
	}
	avgItems = append(avgItems, sqlgen.SelectItem{Expr: sqlgen.Avg(sqlgen.Ident(yAlias)), Alias: yAlias})
	means, err := ex.Execute(ctx, wb.Render(&sqlgen.Query{
		Select:  avgItems,
		From:    a.rel,
		GroupBy: splitBy,
	}))
	if err != nil {
		return nil, fmt.Errorf("computing feature means: %w", err)
	}
	a.means = means

	// Pass 2: subtract the per-slice mean from every x, leaving y
	// untouched.
	centered := identItems(splitBy)
	centered = append(centered, sqlgen.SelectItem{Expr: sqlgen.Ident(yAlias), Alias: yAlias})
	for _, x := range xs {
		e := sqlgen.Sub(sqlgen.Ident(x), sqlgen.Window("AVG", sqlgen.Ident(x), splitBy...))
		centered = append(centered, sqlgen.SelectItem{Expr: e, Alias: x})
	}
	relCentered := wb.Add("DataCentered", &sqlgen.Query{Select: centered, From: a.rel})

	// Pass 3: l2-norms of the centered columns. They cannot be computed
	// before centering, hence the extra relation.
	normItems := identItems(splitBy)
	for _, x := range xs {
		e := sqlgen.Call("SQRT", sqlgen.Sum(sqlgen.Call("POWER", sqlgen.Ident(x), sqlgen.Int(2))))
		normItems = append(normItems, sqlgen.SelectItem{Expr: e, Alias: x})
	}
	norms, err := ex.Execute(ctx, wb.Render(&sqlgen.Query{
		Select:  normItems,
		From:    relCentered,
		GroupBy: splitBy,
	}))
	if err != nil {
		return nil, fmt.Errorf("computing feature norms: %w", err)
	}
	a.norms = norms

	normalized := identItems(splitBy)
	normalized = append(normalized, sqlgen.SelectItem{Expr: sqlgen.Ident(yAlias), Alias: yAlias})
	for _, x := range xs {
		norm := sqlgen.Call("SQRT",
			sqlgen.Window("SUM", sqlgen.Call("POWER", sqlgen.Ident(x), sqlgen.Int(2)), splitBy...))
		normalized = append(normalized, sqlgen.SelectItem{Expr: sqlgen.Div(sqlgen.Ident(x), norm), Alias: x})
	}
	a.rel = wb.Add("DataNormalized", &sqlgen.Query{Select: normalized, From: relCentered})
	return a, nil
}

func identItems(cols []string) []sqlgen.SelectItem {
	items := make([]sqlgen.SelectItem, 0, len(cols))
	for _, c := range cols {
		items = append(items, sqlgen.SelectItem{Expr: sqlgen.Ident(c)})
	}
	return items
}
