package table

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ColumnError reports a lookup of a column that the table does not have.
type ColumnError struct {
	Name string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("table: no column %q", e.Name)
}

// Table is an ordered set of named columns with untyped rows. It is the
// result shape returned by query executors and the input/output shape of
// the fitting code.
type Table struct {
	cols []string
	idx  map[string]int
	rows [][]any
}

func New(cols ...string) *Table {
	t := &Table{cols: append([]string(nil), cols...)}
	t.reindex()
	return t
}

// FromRows drains rows into a Table. The caller keeps ownership of rows
// and is responsible for closing them.
func FromRows(rows *sql.Rows) (*Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}
	t := New(cols...)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		t.rows = append(t.rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return t, nil
}

func (t *Table) reindex() {
	t.idx = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.idx[c] = i
	}
}

func (t *Table) Columns() []string { return append([]string(nil), t.cols...) }
func (t *Table) NumRows() int      { return len(t.rows) }
func (t *Table) NumCols() int      { return len(t.cols) }

func (t *Table) HasColumn(name string) bool {
	_, ok := t.idx[name]
	return ok
}

func (t *Table) AppendRow(vals ...any) error {
	if len(vals) != len(t.cols) {
		return fmt.Errorf("table: row has %d values, want %d", len(vals), len(t.cols))
	}
	t.rows = append(t.rows, vals)
	return nil
}

// Row returns the backing slice of row r. Callers must not mutate it.
func (t *Table) Row(r int) []any { return t.rows[r] }

func (t *Table) Value(r int, col string) (any, error) {
	i, ok := t.idx[col]
	if !ok {
		return nil, &ColumnError{Name: col}
	}
	return t.rows[r][i], nil
}

// Float reads cell (r, col) as a float64, coercing the numeric types
// drivers commonly hand back.
func (t *Table) Float(r int, col string) (float64, error) {
	v, err := t.Value(r, col)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("table: column %q row %d holds %T, not a number", col, r, v)
	}
	return f, nil
}

// Floats reads a whole column as float64s.
func (t *Table) Floats(col string) ([]float64, error) {
	out := make([]float64, len(t.rows))
	for r := range t.rows {
		f, err := t.Float(r, col)
		if err != nil {
			return nil, err
		}
		out[r] = f
	}
	return out, nil
}

// Rename replaces the column names in order. The count must match.
func (t *Table) Rename(cols []string) error {
	if len(cols) != len(t.cols) {
		return fmt.Errorf("table: renaming %d columns to %d names", len(t.cols), len(cols))
	}
	t.cols = append([]string(nil), cols...)
	t.reindex()
	return nil
}

// AddColumn appends a column filled with a constant value.
func (t *Table) AddColumn(name string, fill any) {
	t.cols = append(t.cols, name)
	t.idx[name] = len(t.cols) - 1
	for r := range t.rows {
		t.rows[r] = append(t.rows[r], fill)
	}
}

// SortBy orders rows by the given columns, numerically where both cells
// coerce to numbers, lexically otherwise.
func (t *Table) SortBy(cols []string) error {
	idxs := make([]int, len(cols))
	for i, c := range cols {
		j, ok := t.idx[c]
		if !ok {
			return &ColumnError{Name: c}
		}
		idxs[i] = j
	}
	sort.SliceStable(t.rows, func(a, b int) bool {
		for _, j := range idxs {
			if c := compareCells(t.rows[a][j], t.rows[b][j]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return nil
}

func compareCells(a, b any) int {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	if oka && okb {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Group is one distinct combination of grouping values together with the
// indices of the rows that carry it, in first-seen order.
type Group struct {
	Key  []any
	Rows []int
}

// GroupBy partitions the rows on the given columns, preserving the order
// in which each distinct key first appears.
func (t *Table) GroupBy(cols []string) ([]Group, error) {
	idxs := make([]int, len(cols))
	for i, c := range cols {
		j, ok := t.idx[c]
		if !ok {
			return nil, &ColumnError{Name: c}
		}
		idxs[i] = j
	}
	var groups []Group
	seen := make(map[string]int)
	for r, row := range t.rows {
		var sb strings.Builder
		key := make([]any, len(idxs))
		for i, j := range idxs {
			key[i] = row[j]
			fmt.Fprintf(&sb, "%v\x00", row[j])
		}
		k := sb.String()
		g, ok := seen[k]
		if !ok {
			g = len(groups)
			seen[k] = g
			groups = append(groups, Group{Key: key})
		}
		groups[g].Rows = append(groups[g].Rows, r)
	}
	return groups, nil
}

// String renders the table for logs and CLI output.
func (t *Table) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(t.cols, "\t"))
	for _, row := range t.rows {
		sb.WriteByte('\n')
		for i, v := range row {
			if i > 0 {
				sb.WriteByte('\t')
			}
			if f, ok := toFloat(v); ok {
				sb.WriteString(strconv.FormatFloat(f, 'g', 6, 64))
			} else {
				fmt.Fprintf(&sb, "%v", v)
			}
		}
	}
	return sb.String()
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case []byte:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	case sql.NullFloat64:
		return x.Float64, x.Valid
	case sql.NullInt64:
		return float64(x.Int64), x.Valid
	default:
		return 0, false
	}
}
