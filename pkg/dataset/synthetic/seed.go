package synthetic

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/peter-kozarec/slicefit/pkg/table"
)

// Seed creates name in db and bulk-inserts every row of t. Column
// types are inferred from the first row; an empty table cannot be
// seeded.
func Seed(ctx context.Context, db *sql.DB, name string, t *table.Table) error {
	if t.NumRows() == 0 {
		return fmt.Errorf("seeding %s: empty table", name)
	}

	cols := t.Columns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		v, err := t.Value(0, c)
		if err != nil {
			return err
		}
		defs[i] = c + " " + sqlType(v)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("seeding %s: %w", name, err)
	}

	holes := make([]string, len(cols))
	for i := range holes {
		holes[i] = "?"
	}
	stmt, err := db.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)",
		name, strings.Join(holes, ", ")))
	if err != nil {
		return fmt.Errorf("seeding %s: %w", name, err)
	}
	defer func() { _ = stmt.Close() }()

	for r := 0; r < t.NumRows(); r++ {
		if _, err := stmt.ExecContext(ctx, t.Row(r)...); err != nil {
			return fmt.Errorf("seeding %s row %d: %w", name, r, err)
		}
	}
	return nil
}

func sqlType(v any) string {
	switch v.(type) {
	case float64, float32:
		return "DOUBLE"
	case int, int32, int64:
		return "BIGINT"
	case bool:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}
