package duckdb_test

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/peter-kozarec/slicefit/pkg/dataset/synthetic"
	"github.com/peter-kozarec/slicefit/pkg/exec/duckdb"
	"github.com/peter-kozarec/slicefit/pkg/metric"
	"github.com/peter-kozarec/slicefit/pkg/regress"
)

func openTestDB(t *testing.T) *duckdb.Executor {
	t.Helper()
	db := duckdb.NewExecutor("")
	if err := db.Connect(); err != nil {
		t.Skipf("duckdb unavailable: %v", err)
	}
	if err := db.DB().PingContext(context.Background()); err != nil {
		db.Close()
		t.Skipf("duckdb unavailable: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func Test_PushdownOLSAgainstDuckDB(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	gen := synthetic.NewGenerator(rand.New(rand.NewSource(11)))
	data := gen.Linear(400, 2, []float64{3}, 0, []string{"a", "b"})
	if err := synthetic.Seed(ctx, db.DB(), "obs", data); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	ols, err := regress.NewOLS(metric.Raw{Col: "y"}, metric.Raw{Col: "x0"})
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	res, err := ols.ComputeThroughSQL(ctx, "obs", []string{"grp"}, db, regress.ModeMagic)
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	if res.NumRows() != 2 {
		t.Fatalf("expected one row per slice, got %d", res.NumRows())
	}

	cols := res.Columns()
	for r := 0; r < res.NumRows(); r++ {
		intercept, err := res.Float(r, cols[1])
		if err != nil {
			t.Fatalf("row %d: %v", r, err)
		}
		slope, err := res.Float(r, cols[2])
		if err != nil {
			t.Fatalf("row %d: %v", r, err)
		}
		if math.Abs(intercept-2) > 1e-6 || math.Abs(slope-3) > 1e-6 {
			t.Errorf("row %d: expected [2 3], got [%v %v]", r, intercept, slope)
		}
	}
}

func Test_PushdownRidgeMatchesMixedAgainstDuckDB(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	gen := synthetic.NewGenerator(rand.New(rand.NewSource(12)))
	data := gen.Linear(400, 1, []float64{2, -1}, 0.1, nil)
	if err := synthetic.Seed(ctx, db.DB(), "obs_ridge", data); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	xs := metric.List{metric.Raw{Col: "x0"}, metric.Raw{Col: "x1"}}
	magic, err := regress.NewRidge(metric.Raw{Col: "y"}, xs, 1.0)
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	local, err := regress.NewRidge(metric.Raw{Col: "y"}, xs, 1.0)
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}

	a, err := magic.ComputeThroughSQL(ctx, "obs_ridge", nil, db, regress.ModeMagic)
	if err != nil {
		t.Fatalf("failed to compute pushdown: %v", err)
	}

	df, err := db.Execute(ctx, "SELECT y, x0, x1 FROM obs_ridge")
	if err != nil {
		t.Fatalf("failed to read rows back: %v", err)
	}
	b, err := local.Compute(df, nil)
	if err != nil {
		t.Fatalf("failed to compute locally: %v", err)
	}

	aCols, bCols := a.Columns(), b.Columns()
	for i := range aCols {
		va, _ := a.Float(0, aCols[i])
		vb, _ := b.Float(0, bCols[i])
		if math.Abs(va-vb) > 1e-6 {
			t.Errorf("column %d: pushdown %v vs local %v", i, va, vb)
		}
	}
}

func Test_PushdownLogisticMatchesLocalAgainstDuckDB(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	gen := synthetic.NewGenerator(rand.New(rand.NewSource(13)))
	data := gen.Binary(2000, -0.5, []float64{2}, nil)
	if err := synthetic.Seed(ctx, db.DB(), "obs_binary", data); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	logit, err := regress.NewLogistic(metric.Raw{Col: "y"}, metric.Raw{Col: "x0"})
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	pushed, err := logit.ComputeThroughSQL(ctx, "obs_binary", nil, db, regress.ModeMagic)
	if err != nil {
		t.Fatalf("failed to compute pushdown: %v", err)
	}

	df, err := db.Execute(ctx, "SELECT y, x0 FROM obs_binary")
	if err != nil {
		t.Fatalf("failed to read rows back: %v", err)
	}
	localFit, err := regress.NewLogistic(metric.Raw{Col: "y"}, metric.Raw{Col: "x0"})
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	local, err := localFit.Compute(df, nil)
	if err != nil {
		t.Fatalf("failed to compute locally: %v", err)
	}

	pCols, lCols := pushed.Columns(), local.Columns()
	for i := range pCols {
		vp, _ := pushed.Float(0, pCols[i])
		vl, _ := local.Float(0, lCols[i])
		if math.Abs(vp-vl) > 1e-3 {
			t.Errorf("column %d: pushdown %v vs local %v", i, vp, vl)
		}
	}
}
