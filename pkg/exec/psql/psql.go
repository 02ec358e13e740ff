package psql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/peter-kozarec/slicefit/pkg/table"
)

// Connect opens and pings a Postgres database.
func Connect(ctx context.Context, host, port, user, pass, db string) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, pass, db)
	dbConn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := dbConn.PingContext(ctx); err != nil {
		return nil, err
	}

	return dbConn, nil
}

// Executor runs queries against an already-connected Postgres handle.
type Executor struct {
	db *sql.DB
}

func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
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
