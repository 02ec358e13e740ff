package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/peter-kozarec/slicefit/internal/dbg"
	"github.com/peter-kozarec/slicefit/pkg/dataset/synthetic"
	"github.com/peter-kozarec/slicefit/pkg/exec"
	"github.com/peter-kozarec/slicefit/pkg/exec/duckdb"
	"github.com/peter-kozarec/slicefit/pkg/metric"
	"github.com/peter-kozarec/slicefit/pkg/regress"
)

func main() {
	logger := dbg.NewDevLogger()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	defer logger.Info("done")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db := duckdb.NewExecutor("")
	if err := db.Connect(); err != nil {
		logger.Fatal("error opening duckdb", zap.Error(err))
	}
	defer db.Close()

	rng := rand.New(rand.NewSource(DemoSeed))
	gen := synthetic.NewGenerator(rng)

	linear := gen.Linear(DemoRows, DemoIntercept, DemoCoef, DemoNoise, DemoGroups)
	if err := synthetic.Seed(ctx, db.DB(), DemoTableName, linear); err != nil {
		logger.Fatal("error seeding data", zap.Error(err))
	}

	binary := gen.Binary(DemoRows, LogisticIntercept, LogisticCoef, DemoGroups)
	if err := synthetic.Seed(ctx, db.DB(), DemoTableName+"_binary", binary); err != nil {
		logger.Fatal("error seeding data", zap.Error(err))
	}

	ex := exec.Tracing(logger, db)

	y := metric.Raw{Col: "y"}
	xs := metric.List{metric.Raw{Col: "x0"}, metric.Raw{Col: "x1"}}

	ols, err := regress.NewOLS(y, xs, regress.WithLogger(logger))
	if err != nil {
		logger.Fatal("error building model", zap.Error(err))
	}
	res, err := ols.ComputeThroughSQL(ctx, DemoTableName, []string{"grp"}, ex, regress.ModeMagic)
	if err != nil {
		logger.Fatal("error fitting ols", zap.Error(err))
	}
	logger.Info("ols coefficients", zap.String("result", res.String()))

	ridge, err := regress.NewRidge(y, xs, 1.0, regress.WithLogger(logger))
	if err != nil {
		logger.Fatal("error building model", zap.Error(err))
	}
	res, err = ridge.ComputeThroughSQL(ctx, DemoTableName, []string{"grp"}, ex, regress.ModeMagic)
	if err != nil {
		logger.Fatal("error fitting ridge", zap.Error(err))
	}
	logger.Info("ridge coefficients", zap.String("result", res.String()))

	logit, err := regress.NewLogistic(y, xs, regress.WithLogger(logger))
	if err != nil {
		logger.Fatal("error building model", zap.Error(err))
	}
	res, err = logit.ComputeThroughSQL(ctx, DemoTableName+"_binary", []string{"grp"}, ex, regress.ModeMagic)
	if err != nil {
		logger.Fatal("error fitting logistic", zap.Error(err))
	}
	logger.Info("logistic coefficients", zap.String("result", res.String()))

	// Lasso has no pushdown; mixed mode materializes the rows and fits
	// locally.
	lasso, err := regress.NewLasso(y, xs, 0.01, regress.WithLogger(logger))
	if err != nil {
		logger.Fatal("error building model", zap.Error(err))
	}
	res, err = lasso.ComputeThroughSQL(ctx, DemoTableName, []string{"grp"}, ex, regress.ModeMixed)
	if err != nil {
		logger.Fatal("error fitting lasso", zap.Error(err))
	}
	logger.Info("lasso coefficients", zap.String("result", res.String()))
}
