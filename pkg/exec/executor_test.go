package exec

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/peter-kozarec/slicefit/pkg/table"
)

func Test_FuncAdapter(t *testing.T) {
	var seen string
	ex := Func(func(ctx context.Context, query string) (*table.Table, error) {
		seen = query
		return table.New("a"), nil
	})

	if _, err := ex.Execute(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "SELECT 1" {
		t.Errorf("expected query to reach the function, got %q", seen)
	}
}

func Test_TracingPassesResultThrough(t *testing.T) {
	want := table.New("a")
	_ = want.AppendRow(1)
	ex := Tracing(zaptest.NewLogger(t), Func(func(ctx context.Context, query string) (*table.Table, error) {
		return want, nil
	}))

	got, err := ex.Execute(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("tracing must return the inner result untouched")
	}
}

func Test_TracingPassesErrorThrough(t *testing.T) {
	cause := errors.New("engine exploded")
	ex := Tracing(zaptest.NewLogger(t), Func(func(ctx context.Context, query string) (*table.Table, error) {
		return nil, cause
	}))

	_, err := ex.Execute(context.Background(), "SELECT 1")
	if !errors.Is(err, cause) {
		t.Errorf("expected the original error, got %v", err)
	}
}
