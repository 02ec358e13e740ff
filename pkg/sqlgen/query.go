package sqlgen

import (
	"fmt"
	"strings"
)

// SelectItem is one projection of a query.
type SelectItem struct {
	Expr  Expr
	Alias string
}

// Query is a single SELECT statement. From names either a base table or
// a subquery registered in a WithBlock.
type Query struct {
	Select   []SelectItem
	From     string
	Where    Expr
	GroupBy  []string
	Distinct bool
}

func (q *Query) String() string {
	var sb strings.Builder
	q.writeTo(&sb)
	return sb.String()
}

func (q *Query) writeTo(sb *strings.Builder) {
	sb.WriteString("SELECT ")
	if q.Distinct {
		sb.WriteString("DISTINCT ")
	}
	for i, s := range q.Select {
		if i > 0 {
			sb.WriteString(", ")
		}
		s.Expr.render(sb)
		if s.Alias != "" {
			sb.WriteString(" AS ")
			sb.WriteString(s.Alias)
		}
	}
	sb.WriteString(" FROM ")
	sb.WriteString(q.From)
	if q.Where != nil {
		sb.WriteString(" WHERE ")
		q.Where.render(sb)
	}
	if len(q.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(q.GroupBy, ", "))
	}
}

// WithBlock manages the shared WITH clause. Subqueries registered under
// the same text are deduplicated; name collisions over different text
// get a numeric suffix.
type WithBlock struct {
	names   []string
	queries map[string]string // name -> sql text
	byText  map[string]string // sql text -> name
}

func NewWithBlock() *WithBlock {
	return &WithBlock{
		queries: make(map[string]string),
		byText:  make(map[string]string),
	}
}

// Add registers q under the suggested name and returns the alias the
// caller must select from.
func (w *WithBlock) Add(name string, q *Query) string {
	text := q.String()
	if existing, ok := w.byText[text]; ok {
		return existing
	}
	alias := name
	for i := 2; ; i++ {
		if _, taken := w.queries[alias]; !taken {
			break
		}
		alias = fmt.Sprintf("%s%d", name, i)
	}
	w.names = append(w.names, alias)
	w.queries[alias] = text
	w.byText[text] = alias
	return alias
}

// Render produces the full statement: the WITH clause (if any entries
// exist) followed by q.
func (w *WithBlock) Render(q *Query) string {
	var sb strings.Builder
	if len(w.names) > 0 {
		sb.WriteString("WITH ")
		for i, n := range w.names {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(n)
			sb.WriteString(" AS (")
			sb.WriteString(w.queries[n])
			sb.WriteByte(')')
		}
		sb.WriteByte(' ')
	}
	q.writeTo(&sb)
	return sb.String()
}
