// Package exec defines the query-execution capability the fitting code
// depends on: a blocking round trip to an external engine returning a
// tabular result.
package exec

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peter-kozarec/slicefit/pkg/table"
)

// Executor runs one SQL statement and returns its result. Row order is
// unspecified; engine-side failures must surface as errors.
type Executor interface {
	Execute(ctx context.Context, query string) (*table.Table, error)
}

// Func adapts a function to the Executor interface, mostly for tests.
type Func func(ctx context.Context, query string) (*table.Table, error)

func (f Func) Execute(ctx context.Context, query string) (*table.Table, error) {
	return f(ctx, query)
}

type tracing struct {
	logger *zap.Logger
	inner  Executor
}

// Tracing wraps an executor with per-query logging. Each query gets a
// uuid so the sequence of Newton iterations can be followed in the logs.
// Errors pass through unchanged.
func Tracing(logger *zap.Logger, inner Executor) Executor {
	return &tracing{logger: logger, inner: inner}
}

func (t *tracing) Execute(ctx context.Context, query string) (*table.Table, error) {
	id := uuid.Must(uuid.NewV7())
	start := time.Now()
	res, err := t.inner.Execute(ctx, query)
	if err != nil {
		t.logger.Error("query failed",
			zap.Stringer("query_id", id),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	t.logger.Debug("query executed",
		zap.Stringer("query_id", id),
		zap.Duration("duration", time.Since(start)),
		zap.Int("rows", res.NumRows()),
		zap.String("query", query))
	return res, nil
}
