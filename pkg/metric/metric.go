// Package metric defines the capability the fitting code needs from the
// surrounding metric-computation framework: evaluate a metric tree as
// aggregate select expressions, and know how many value columns a tree
// produces.
package metric

import (
	"fmt"

	"github.com/peter-kozarec/slicefit/pkg/sqlgen"
)

// Metric is a node of the metric tree. Width is the number of value
// columns the node contributes; SelectExprs returns one aggregate
// expression per column for a grouped query over the source relation.
type Metric interface {
	Name() string
	Width() int
	// Aggregate reports whether the node's expressions are SQL
	// aggregates. Raw passthrough columns are not.
	Aggregate() bool
	// SQLComputable reports whether the node can be evaluated purely
	// inside the query engine.
	SQLComputable() bool
	SelectExprs() ([]sqlgen.Expr, error)
	// Columns are the display names of the produced columns, one per
	// Width.
	Columns() []string
}

// Raw selects a source column untouched, for fitting on raw rows.
type Raw struct {
	Col string
}

func (m Raw) Name() string        { return m.Col }
func (m Raw) Width() int          { return 1 }
func (m Raw) Aggregate() bool     { return false }
func (m Raw) SQLComputable() bool { return true }
func (m Raw) Columns() []string   { return []string{m.Col} }

func (m Raw) SelectExprs() ([]sqlgen.Expr, error) {
	return []sqlgen.Expr{sqlgen.Ident(m.Col)}, nil
}

// Sum aggregates a source column with SUM.
type Sum struct {
	Col string
}

func (m Sum) Name() string        { return fmt.Sprintf("sum(%s)", m.Col) }
func (m Sum) Width() int          { return 1 }
func (m Sum) Aggregate() bool     { return true }
func (m Sum) SQLComputable() bool { return true }
func (m Sum) Columns() []string   { return []string{m.Name()} }

func (m Sum) SelectExprs() ([]sqlgen.Expr, error) {
	return []sqlgen.Expr{sqlgen.Sum(sqlgen.Ident(m.Col))}, nil
}

// Mean aggregates a source column with AVG.
type Mean struct {
	Col string
}

func (m Mean) Name() string        { return fmt.Sprintf("mean(%s)", m.Col) }
func (m Mean) Width() int          { return 1 }
func (m Mean) Aggregate() bool     { return true }
func (m Mean) SQLComputable() bool { return true }
func (m Mean) Columns() []string   { return []string{m.Name()} }

func (m Mean) SelectExprs() ([]sqlgen.Expr, error) {
	return []sqlgen.Expr{sqlgen.Avg(sqlgen.Ident(m.Col))}, nil
}

// Count counts rows per group.
type Count struct{}

func (m Count) Name() string        { return "count(*)" }
func (m Count) Width() int          { return 1 }
func (m Count) Aggregate() bool     { return true }
func (m Count) SQLComputable() bool { return true }
func (m Count) Columns() []string   { return []string{m.Name()} }

func (m Count) SelectExprs() ([]sqlgen.Expr, error) {
	return []sqlgen.Expr{sqlgen.CountStar()}, nil
}

// Ratio is SUM(numerator) / SUM(denominator), the usual rate metric.
type Ratio struct {
	Numerator   string
	Denominator string
}

func (m Ratio) Name() string        { return fmt.Sprintf("%s / %s", m.Numerator, m.Denominator) }
func (m Ratio) Width() int          { return 1 }
func (m Ratio) Aggregate() bool     { return true }
func (m Ratio) SQLComputable() bool { return true }
func (m Ratio) Columns() []string   { return []string{m.Name()} }

func (m Ratio) SelectExprs() ([]sqlgen.Expr, error) {
	num := sqlgen.Sum(sqlgen.Ident(m.Numerator))
	den := sqlgen.Sum(sqlgen.Ident(m.Denominator))
	return []sqlgen.Expr{sqlgen.Div(num, den)}, nil
}

// List concatenates children; its width is the sum of theirs.
type List []Metric

func (m List) Name() string {
	if len(m) == 0 {
		return "[]"
	}
	name := m[0].Name()
	for _, c := range m[1:] {
		name += " + " + c.Name()
	}
	return name
}

func (m List) Width() int {
	w := 0
	for _, c := range m {
		w += c.Width()
	}
	return w
}

func (m List) Aggregate() bool {
	for _, c := range m {
		if !c.Aggregate() {
			return false
		}
	}
	return true
}

func (m List) SQLComputable() bool {
	for _, c := range m {
		if !c.SQLComputable() {
			return false
		}
	}
	return true
}

func (m List) Columns() []string {
	var cols []string
	for _, c := range m {
		cols = append(cols, c.Columns()...)
	}
	return cols
}

func (m List) SelectExprs() ([]sqlgen.Expr, error) {
	var exprs []sqlgen.Expr
	for _, c := range m {
		es, err := c.SelectExprs()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, es...)
	}
	return exprs, nil
}

// CI wraps a child with uncertainty columns: value plus half-width, or
// value plus explicit bounds when Confidence is set. It is never
// SQL-computable here, which is what trips the pushdown preconditions.
type CI struct {
	Child      Metric
	Confidence bool
}

func (m CI) Name() string    { return fmt.Sprintf("ci(%s)", m.Child.Name()) }
func (m CI) Aggregate() bool { return m.Child.Aggregate() }

func (m CI) Width() int {
	if m.Confidence {
		return m.Child.Width() * 3
	}
	return m.Child.Width() * 2
}

func (m CI) SQLComputable() bool { return false }

func (m CI) Columns() []string {
	var cols []string
	for _, c := range m.Child.Columns() {
		if m.Confidence {
			cols = append(cols, c, c+" ci-lower", c+" ci-upper")
		} else {
			cols = append(cols, c, c+" sd")
		}
	}
	return cols
}

func (m CI) SelectExprs() ([]sqlgen.Expr, error) {
	return nil, fmt.Errorf("metric: %s cannot be computed in SQL", m.Name())
}

// Quantile reports one column per requested quantile, or a single
// column when exactly one is requested.
type Quantile struct {
	Col string
	Qs  []float64
}

func (m Quantile) Name() string    { return fmt.Sprintf("quantile(%s)", m.Col) }
func (m Quantile) Aggregate() bool { return true }

func (m Quantile) Width() int {
	if len(m.Qs) <= 1 {
		return 1
	}
	return len(m.Qs)
}

// Quantile syntax differs across engines, so it is left to the local
// path.
func (m Quantile) SQLComputable() bool { return false }

func (m Quantile) Columns() []string {
	if len(m.Qs) <= 1 {
		return []string{m.Name()}
	}
	cols := make([]string, len(m.Qs))
	for i, q := range m.Qs {
		cols[i] = fmt.Sprintf("%s p%g", m.Col, q*100)
	}
	return cols
}

func (m Quantile) SelectExprs() ([]sqlgen.Expr, error) {
	return nil, fmt.Errorf("metric: %s cannot be computed in SQL", m.Name())
}

// Derived is a generic single-child operation; it contributes its
// child's width.
type Derived struct {
	Label string
	Child Metric
	// Wrap rewrites each child expression, e.g. scaling.
	Wrap func(sqlgen.Expr) sqlgen.Expr
}

func (m Derived) Name() string        { return m.Label }
func (m Derived) Width() int          { return m.Child.Width() }
func (m Derived) Aggregate() bool     { return m.Child.Aggregate() }
func (m Derived) SQLComputable() bool { return m.Child.SQLComputable() }
func (m Derived) Columns() []string   { return m.Child.Columns() }

func (m Derived) SelectExprs() ([]sqlgen.Expr, error) {
	es, err := m.Child.SelectExprs()
	if err != nil {
		return nil, err
	}
	if m.Wrap == nil {
		return es, nil
	}
	out := make([]sqlgen.Expr, len(es))
	for i, e := range es {
		out[i] = m.Wrap(e)
	}
	return out, nil
}
