package regress

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/peter-kozarec/slicefit/pkg/exec"
	"github.com/peter-kozarec/slicefit/pkg/metric"
	"github.com/peter-kozarec/slicefit/pkg/sqlgen"
	"github.com/peter-kozarec/slicefit/pkg/table"
)

func Test_PackedDiagIndex(t *testing.T) {
	// Upper-triangular packing of a 3x3 matrix: (0,0)=0, (1,1)=3,
	// (2,2)=5.
	want := []int{0, 3, 5}
	for i, w := range want {
		if got := packedDiagIndex(3, i); got != w {
			t.Errorf("packedDiagIndex(3, %d): expected %d, got %d", i, w, got)
		}
	}
}

func Test_PushdownPreconditions(t *testing.T) {
	cases := []struct {
		name string
		opts []Option
	}{
		{"class weight", []Option{WithClassWeight("balanced")}},
		{"multinomial", []Option{WithMultiClass("multinomial")}},
		{"intercept scaling", []Option{WithInterceptScaling(2)}},
		{"bad penalty", []Option{WithPenalty("l7")}},
		{"bad l1 ratio", []Option{WithPenalty("elasticnet"), WithL1Ratio(1.5)}},
	}
	for _, c := range cases {
		logit, err := NewLogistic(metric.Raw{Col: "y"}, metric.Raw{Col: "x"}, c.opts...)
		if err != nil {
			t.Fatalf("%s: failed to build model: %v", c.name, err)
		}
		err = logit.checkPushdownSupported()
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("%s: expected ConfigError, got %v", c.name, err)
		}
	}
}

func Test_PushdownRejectsNonBinaryResponse(t *testing.T) {
	ex := exec.Func(func(ctx context.Context, query string) (*table.Table, error) {
		res := table.New("n")
		_ = res.AppendRow(int64(3))
		return res, nil
	})
	logit, err := NewLogistic(metric.Raw{Col: "y"}, metric.Raw{Col: "x"})
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	_, err = logit.solvePushdown(context.Background(), "t", nil, ex)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("expected ConfigError for three classes, got %v", err)
	}
}

func Test_PushdownErrorsOnEmptyClassCount(t *testing.T) {
	ex := exec.Func(func(ctx context.Context, query string) (*table.Table, error) {
		return table.New("n"), nil
	})
	logit, err := NewLogistic(metric.Raw{Col: "y"}, metric.Raw{Col: "x"})
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	_, err = logit.solvePushdown(context.Background(), "t", nil, ex)
	if err == nil {
		t.Fatal("expected an error for an empty class count")
	}
	if !strings.Contains(err.Error(), "no rows") {
		t.Errorf("expected a no-rows error, got %v", err)
	}
}

func Test_GradHessExprRendering(t *testing.T) {
	logit, err := NewLogistic(metric.Raw{Col: "y"}, metric.Raw{Col: "x"}, WithPenalty("none"))
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}

	cond := sqlgen.Eq(sqlgen.Ident("grp"), sqlgen.Str("a"))
	grads, hess := logit.gradHessExprs([]string{"x_0", "1"}, []float64{0.5, -0.25}, cond)
	if len(grads) != 2 {
		t.Fatalf("expected 2 gradient columns, got %d", len(grads))
	}
	if len(hess) != 3 {
		t.Fatalf("expected 3 hessian columns, got %d", len(hess))
	}

	g0 := sqlgen.Render(grads[0])
	if !strings.Contains(g0, "FILTER (WHERE (grp = 'a'))") {
		t.Errorf("expected the slice filter in %q", g0)
	}
	if !strings.Contains(g0, "CASE WHEN") {
		t.Errorf("expected the stable sigmoid split in %q", g0)
	}
	// The current coefficients ride along as exact literals.
	if !strings.Contains(g0, "0.5") || !strings.Contains(g0, "0.25") {
		t.Errorf("expected coefficient literals in %q", g0)
	}
}

func Test_GradHessExprL2Penalty(t *testing.T) {
	free, err := NewLogistic(metric.Raw{Col: "y"}, metric.Raw{Col: "x"}, WithPenalty("none"))
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	l2, err := NewLogistic(metric.Raw{Col: "y"}, metric.Raw{Col: "x"}, WithPenalty("l2"))
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}

	xs := []string{"x_0", "1"}
	coef := []float64{0.5, -0.25}
	fg, fh := free.gradHessExprs(xs, coef, nil)
	pg, ph := l2.gradHessExprs(xs, coef, nil)

	// Only the real feature is penalized, never the intercept column.
	if sqlgen.Render(fg[0]) == sqlgen.Render(pg[0]) {
		t.Error("expected the penalty to alter the feature gradient")
	}
	if sqlgen.Render(fg[1]) != sqlgen.Render(pg[1]) {
		t.Error("the intercept gradient must stay unpenalized")
	}
	if sqlgen.Render(fh[0]) == sqlgen.Render(ph[0]) {
		t.Error("expected the penalty on the feature diagonal")
	}
	if sqlgen.Render(fh[2]) != sqlgen.Render(ph[2]) {
		t.Error("the intercept diagonal must stay unpenalized")
	}
}

func Test_CoefTableInterceptFirst(t *testing.T) {
	logit, err := NewLogistic(metric.Raw{Col: "y"}, metric.Raw{Col: "x"})
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}

	// Internally the intercept is the trailing pseudo-feature.
	res, err := logit.coefTable([]string{"grp"}, [][]any{{"a"}}, [][]float64{{3.0, 0.5}})
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}
	cols := res.Columns()
	if len(cols) != 3 || cols[0] != "grp" || cols[1] != "intercept" || cols[2] != "x" {
		t.Fatalf("unexpected columns: %v", cols)
	}
	intercept, _ := res.Float(0, "intercept")
	slope, _ := res.Float(0, "x")
	if intercept != 0.5 || slope != 3.0 {
		t.Errorf("expected intercept 0.5 and slope 3, got %v and %v", intercept, slope)
	}
}

func Test_StableSigmoidRendering(t *testing.T) {
	got := sqlgen.Render(stableSigmoid(sqlgen.Ident("z")))
	want := "CASE WHEN (z < 0) THEN (EXP(z) / (1 + EXP(z))) ELSE (1 / (1 + EXP(-(z)))) END"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
