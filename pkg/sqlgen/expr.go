// Package sqlgen builds the aggregate queries the fitting code pushes
// down to the query engine. Expressions are small operator trees
// rendered to text by a single serializer, so arithmetic over columns
// and coefficient literals never touches quoting concerns.
package sqlgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expr is a renderable SQL scalar expression.
type Expr interface {
	render(sb *strings.Builder)
}

// Render serializes an expression to SQL text.
func Render(e Expr) string {
	var sb strings.Builder
	e.render(&sb)
	return sb.String()
}

// Ident is a bare column reference or other identifier fragment that is
// rendered verbatim.
type Ident string

func (i Ident) render(sb *strings.Builder) { sb.WriteString(string(i)) }

type floatLit float64

func (f floatLit) render(sb *strings.Builder) {
	sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 64))
}

type intLit int64

func (i intLit) render(sb *strings.Builder) {
	sb.WriteString(strconv.FormatInt(int64(i), 10))
}

type strLit string

func (s strLit) render(sb *strings.Builder) {
	sb.WriteByte('\'')
	sb.WriteString(strings.ReplaceAll(string(s), "'", "''"))
	sb.WriteByte('\'')
}

// Float renders an exact round-trip float literal. Newton iterations
// embed the current coefficients through this.
func Float(v float64) Expr { return floatLit(v) }

func Int(v int64) Expr { return intLit(v) }

func Str(v string) Expr { return strLit(v) }

// Lit converts a Go value scanned from a result set back into a literal,
// for equality filters over grouping columns.
func Lit(v any) Expr {
	switch x := v.(type) {
	case string:
		return strLit(x)
	case []byte:
		return strLit(string(x))
	case float64:
		return floatLit(x)
	case float32:
		return floatLit(float64(x))
	case int:
		return intLit(int64(x))
	case int32:
		return intLit(int64(x))
	case int64:
		return intLit(x)
	case bool:
		if x {
			return Ident("TRUE")
		}
		return Ident("FALSE")
	default:
		return strLit(fmt.Sprint(v))
	}
}

type binary struct {
	op   string
	l, r Expr
}

func (b binary) render(sb *strings.Builder) {
	sb.WriteByte('(')
	b.l.render(sb)
	sb.WriteByte(' ')
	sb.WriteString(b.op)
	sb.WriteByte(' ')
	b.r.render(sb)
	sb.WriteByte(')')
}

func Add(l, r Expr) Expr { return binary{"+", l, r} }
func Sub(l, r Expr) Expr { return binary{"-", l, r} }
func Mul(l, r Expr) Expr { return binary{"*", l, r} }
func Div(l, r Expr) Expr { return binary{"/", l, r} }
func Eq(l, r Expr) Expr  { return binary{"=", l, r} }
func Lt(l, r Expr) Expr  { return binary{"<", l, r} }

// And folds conditions into a conjunction. It panics on zero arguments.
func And(conds ...Expr) Expr {
	e := conds[0]
	for _, c := range conds[1:] {
		e = binary{"AND", e, c}
	}
	return e
}

type unary struct {
	op string
	e  Expr
}

func (u unary) render(sb *strings.Builder) {
	sb.WriteString(u.op)
	sb.WriteByte('(')
	u.e.render(sb)
	sb.WriteByte(')')
}

func Neg(e Expr) Expr { return unary{"-", e} }

type call struct {
	name string
	args []Expr
}

func (c call) render(sb *strings.Builder) {
	sb.WriteString(c.name)
	sb.WriteByte('(')
	for i, a := range c.args {
		if i > 0 {
			sb.WriteString(", ")
		}
		a.render(sb)
	}
	sb.WriteByte(')')
}

// Call renders a function invocation, e.g. Call("EXP", z).
func Call(name string, args ...Expr) Expr { return call{name, args} }

type caseExpr struct {
	when, then, els Expr
}

func (c caseExpr) render(sb *strings.Builder) {
	sb.WriteString("CASE WHEN ")
	c.when.render(sb)
	sb.WriteString(" THEN ")
	c.then.render(sb)
	sb.WriteString(" ELSE ")
	c.els.render(sb)
	sb.WriteString(" END")
}

// Case renders CASE WHEN cond THEN a ELSE b END.
func Case(cond, then, els Expr) Expr { return caseExpr{cond, then, els} }

// Agg is an aggregate invocation with an optional FILTER clause. The
// batched Newton query attaches a per-slice filter to every column so a
// single un-grouped SELECT serves all slices.
type Agg struct {
	fn     string
	arg    Expr
	filter Expr
	star   bool
}

func (a Agg) render(sb *strings.Builder) {
	sb.WriteString(a.fn)
	sb.WriteByte('(')
	if a.star {
		sb.WriteByte('*')
	} else {
		a.arg.render(sb)
	}
	sb.WriteByte(')')
	if a.filter != nil {
		sb.WriteString(" FILTER (WHERE ")
		a.filter.render(sb)
		sb.WriteByte(')')
	}
}

type distinct struct{ e Expr }

func (d distinct) render(sb *strings.Builder) {
	sb.WriteString("DISTINCT ")
	d.e.render(sb)
}

func Avg(arg Expr) Agg           { return Agg{fn: "AVG", arg: arg} }
func Sum(arg Expr) Agg           { return Agg{fn: "SUM", arg: arg} }
func CountStar() Agg             { return Agg{fn: "COUNT", star: true} }
func CountDistinct(arg Expr) Agg { return Agg{fn: "COUNT", arg: distinct{arg}} }

// Filter returns a copy with the FILTER (WHERE cond) clause set. A nil
// cond leaves the aggregate unfiltered.
func (a Agg) Filter(cond Expr) Agg {
	a.filter = cond
	return a
}

// Over is a windowed aggregate partitioned by the given columns,
// e.g. AVG(x) OVER (PARTITION BY g) for per-slice centering.
type Over struct {
	fn        string
	arg       Expr
	partition []string
}

func Window(fn string, arg Expr, partition ...string) Over {
	return Over{fn: fn, arg: arg, partition: partition}
}

func (o Over) render(sb *strings.Builder) {
	sb.WriteString(o.fn)
	sb.WriteByte('(')
	o.arg.render(sb)
	sb.WriteString(") OVER (")
	if len(o.partition) > 0 {
		sb.WriteString("PARTITION BY ")
		sb.WriteString(strings.Join(o.partition, ", "))
	}
	sb.WriteByte(')')
}

var aliasUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// EscapeAlias rewrites a display name into a safe SQL alias.
func EscapeAlias(name string) string {
	return aliasUnsafe.ReplaceAllString(name, "_")
}
