package regress

import (
	"context"

	"go.uber.org/zap"

	"github.com/peter-kozarec/slicefit/pkg/exec"
	"github.com/peter-kozarec/slicefit/pkg/metric"
	"github.com/peter-kozarec/slicefit/pkg/table"
)

type options struct {
	groupBy      []string
	name         string
	fitIntercept bool
	normalize    bool
	logger       *zap.Logger

	// logistic hyperparameters, ignored by the closed-form families
	penalty          string
	c                float64
	l1Ratio          float64
	tol              float64
	maxIter          int
	classWeight      string
	multiClass       string
	interceptScaling float64
}

func defaultOptions() *options {
	return &options{
		fitIntercept:     true,
		penalty:          "l2",
		c:                1.0,
		l1Ratio:          0.5,
		tol:              1e-4,
		maxIter:          100,
		multiClass:       "auto",
		interceptScaling: 1,
	}
}

// Option configures a model at construction time.
type Option func(*options)

// WithGroupBy sets the columns the child metrics aggregate over before
// the fit.
func WithGroupBy(cols ...string) Option {
	return func(o *options) { o.groupBy = cols }
}

func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func WithIntercept(on bool) Option {
	return func(o *options) { o.fitIntercept = on }
}

// WithNormalize centers the explanatory columns and divides them by
// their l2-norm before fitting. Ignored when the intercept is disabled.
func WithNormalize(on bool) Option {
	return func(o *options) { o.normalize = on }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPenalty selects the logistic regularization: l1, l2, elasticnet
// or none.
func WithPenalty(penalty string) Option {
	return func(o *options) { o.penalty = penalty }
}

// WithC sets the inverse regularization strength.
func WithC(c float64) Option {
	return func(o *options) { o.c = c }
}

func WithL1Ratio(r float64) Option {
	return func(o *options) { o.l1Ratio = r }
}

func WithTol(tol float64) Option {
	return func(o *options) { o.tol = tol }
}

func WithMaxIter(n int) Option {
	return func(o *options) { o.maxIter = n }
}

func WithClassWeight(w string) Option {
	return func(o *options) { o.classWeight = w }
}

func WithMultiClass(mc string) Option {
	return func(o *options) { o.multiClass = mc }
}

func WithInterceptScaling(s float64) Option {
	return func(o *options) { o.interceptScaling = s }
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OLS is ordinary least squares. Its pushdown path is ridge with a zero
// penalty.
type OLS struct {
	*Model
}

func NewOLS(y, x metric.Metric, opts ...Option) (*OLS, error) {
	o := applyOptions(opts)
	m, err := newModel("OLS", y, x, olsFitter{fitIntercept: o.fitIntercept}, o)
	if err != nil {
		return nil, err
	}
	m.magic = m.solveClosedForm
	return &OLS{Model: m}, nil
}

// Ridge is l2-penalized least squares with penalty weight alpha.
type Ridge struct {
	*Model
}

func NewRidge(y, x metric.Metric, alpha float64, opts ...Option) (*Ridge, error) {
	o := applyOptions(opts)
	m, err := newModel("Ridge", y, x, ridgeFitter{alpha: alpha, fitIntercept: o.fitIntercept}, o)
	if err != nil {
		return nil, err
	}
	m.isRidge = true
	m.ridgeAlpha = alpha
	m.magic = m.solveClosedForm
	return &Ridge{Model: m}, nil
}

// Lasso is l1-penalized least squares. It fits locally only; there is
// no closed form to push down.
type Lasso struct {
	*Model
}

func NewLasso(y, x metric.Metric, alpha float64, opts ...Option) (*Lasso, error) {
	o := applyOptions(opts)
	fitter := elasticNetFitter{
		alpha:        alpha,
		l1Ratio:      1,
		fitIntercept: o.fitIntercept,
		maxIter:      o.maxIter,
		tol:          o.tol,
	}
	m, err := newModel("Lasso", y, x, fitter, o)
	if err != nil {
		return nil, err
	}
	return &Lasso{Model: m}, nil
}

// ElasticNet blends l1 and l2 penalties with weight l1Ratio. Local fit
// only, like Lasso.
type ElasticNet struct {
	*Model
}

func NewElasticNet(y, x metric.Metric, alpha, l1Ratio float64, opts ...Option) (*ElasticNet, error) {
	o := applyOptions(opts)
	fitter := elasticNetFitter{
		alpha:        alpha,
		l1Ratio:      l1Ratio,
		fitIntercept: o.fitIntercept,
		maxIter:      o.maxIter,
		tol:          o.tol,
	}
	m, err := newModel("ElasticNet", y, x, fitter, o)
	if err != nil {
		return nil, err
	}
	return &ElasticNet{Model: m}, nil
}

// Logistic is binary logistic regression. Its pushdown path is a
// batched Newton-Raphson driven entirely through aggregate queries.
type Logistic struct {
	*Model
	penalty          string
	c                float64
	l1Ratio          float64
	tol              float64
	maxIter          int
	classWeight      string
	multiClass       string
	interceptScaling float64
}

func NewLogistic(y, x metric.Metric, opts ...Option) (*Logistic, error) {
	o := applyOptions(opts)
	o.normalize = false
	fitter := logisticFitter{
		penalty:      o.penalty,
		c:            o.c,
		l1Ratio:      o.l1Ratio,
		fitIntercept: o.fitIntercept,
		maxIter:      o.maxIter,
		tol:          o.tol,
	}
	m, err := newModel("LogisticRegression", y, x, fitter, o)
	if err != nil {
		return nil, err
	}
	l := &Logistic{
		Model:            m,
		penalty:          o.penalty,
		c:                o.c,
		l1Ratio:          o.l1Ratio,
		tol:              o.tol,
		maxIter:          o.maxIter,
		classWeight:      o.classWeight,
		multiClass:       o.multiClass,
		interceptScaling: o.interceptScaling,
	}
	m.magic = func(ctx context.Context, from string, splitBy []string, ex exec.Executor) (*table.Table, error) {
		return l.solvePushdown(ctx, from, splitBy, ex)
	}
	return l, nil
}
