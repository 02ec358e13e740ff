package regress

import (
	"context"
	"fmt"

	"github.com/peter-kozarec/slicefit/pkg/exec"
	"github.com/peter-kozarec/slicefit/pkg/sqlgen"
	"github.com/peter-kozarec/slicefit/pkg/table"
)

// sufficientStats issues the single grouped aggregate query from which
// the normal equations can be reconstructed: per slice, the means of
// every feature (when an intercept is wanted), the unique pairwise
// product means, the response mean, the feature-response product means
// and optionally the row count. The transferred result is O(k^2) per
// slice no matter how many rows the source has.
//
// When normalize is set the feature means are not queried: normalized
// features are zero-mean by construction, so the columns are zero-filled
// after the fact instead.
func (m *Model) sufficientStats(ctx context.Context, from string, splitBy []string, ex exec.Executor, fitIntercept, normalize, includeNObs bool) (*assembled, *table.Table, error) {
	a, err := m.assemble(ctx, from, splitBy, ex, normalize)
	if err != nil {
		return nil, nil, err
	}

	items := identItems(splitBy)
	if fitIntercept && !normalize {
		for i, x := range a.xs {
			items = append(items, sqlgen.SelectItem{
				Expr:  sqlgen.Avg(sqlgen.Ident(x)),
				Alias: fmt.Sprintf("x%d", i),
			})
		}
	}
	for i := 0; i < len(a.xs); i++ {
		for j := i; j < len(a.xs); j++ {
			items = append(items, sqlgen.SelectItem{
				Expr:  sqlgen.Avg(sqlgen.Mul(sqlgen.Ident(a.xs[i]), sqlgen.Ident(a.xs[j]))),
				Alias: fmt.Sprintf("x%dx%d", i, j),
			})
		}
	}
	if fitIntercept {
		items = append(items, sqlgen.SelectItem{
			Expr:  sqlgen.Avg(sqlgen.Ident(a.y)),
			Alias: "y",
		})
	}
	for i, x := range a.xs {
		items = append(items, sqlgen.SelectItem{
			Expr:  sqlgen.Avg(sqlgen.Mul(sqlgen.Ident(x), sqlgen.Ident(a.y))),
			Alias: fmt.Sprintf("x%dy", i),
		})
	}
	if includeNObs {
		items = append(items, sqlgen.SelectItem{Expr: sqlgen.CountStar(), Alias: "n_obs"})
	}

	stats, err := ex.Execute(ctx, a.wb.Render(&sqlgen.Query{
		Select:  items,
		From:    a.rel,
		GroupBy: splitBy,
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("extracting sufficient statistics: %w", err)
	}

	if normalize {
		for i := range a.xs {
			stats.AddColumn(fmt.Sprintf("x%d", i), 0.0)
		}
	}
	return a, stats, nil
}

// rowView wraps a single row of t as its own table so the per-slice
// solvers always see exactly one row.
func rowView(t *table.Table, r int) *table.Table {
	out := table.New(t.Columns()...)
	row := t.Row(r)
	_ = out.AppendRow(append([]any(nil), row...)...)
	return out
}
