package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/peter-kozarec/slicefit/pkg/table"
)

// Executor runs queries against a DuckDB database. An empty data source
// name opens an in-memory database.
type Executor struct {
	dataSourceName string
	db             *sql.DB
}

func NewExecutor(dataSourceName string) *Executor {
	return &Executor{
		dataSourceName: dataSourceName,
	}
}

func (e *Executor) Connect() error {
	db, err := sql.Open("duckdb", e.dataSourceName)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	e.db = db
	return nil
}

func (e *Executor) Close() {
	_ = e.db.Close()
}

// DB exposes the underlying handle for seeding and DDL.
func (e *Executor) DB() *sql.DB {
	return e.db
}

func (e *Executor) Execute(ctx context.Context, query string) (*table.Table, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	res, err := table.FromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("error reading result: %w", err)
	}
	return res, nil
}
