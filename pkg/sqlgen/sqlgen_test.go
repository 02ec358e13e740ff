package sqlgen

import "testing"

func Test_RenderArithmetic(t *testing.T) {
	e := Add(Mul(Float(2.5), Ident("x")), Int(1))
	want := "((2.5 * x) + 1)"
	if got := Render(e); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func Test_RenderFloatRoundTrip(t *testing.T) {
	// Coefficient literals must round-trip exactly through the query
	// text, including values with no short decimal form.
	v := 0.1 + 0.2
	if got := Render(Float(v)); got != "0.30000000000000004" {
		t.Errorf("unexpected literal: %q", got)
	}
}

func Test_RenderStringEscaping(t *testing.T) {
	if got := Render(Str("it's")); got != "'it''s'" {
		t.Errorf("unexpected literal: %q", got)
	}
}

func Test_RenderCase(t *testing.T) {
	e := Case(Lt(Ident("z"), Int(0)), Ident("a"), Ident("b"))
	want := "CASE WHEN (z < 0) THEN a ELSE b END"
	if got := Render(e); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func Test_RenderAggFilter(t *testing.T) {
	e := Avg(Ident("x")).Filter(Eq(Ident("grp"), Str("a")))
	want := "AVG(x) FILTER (WHERE (grp = 'a'))"
	if got := Render(e); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got := Render(CountStar().Filter(nil)); got != "COUNT(*)" {
		t.Errorf("nil filter should be a no-op, got %q", got)
	}
}

func Test_RenderCountDistinct(t *testing.T) {
	if got := Render(CountDistinct(Ident("y"))); got != "COUNT(DISTINCT y)" {
		t.Errorf("unexpected render: %q", got)
	}
}

func Test_RenderWindow(t *testing.T) {
	e := Window("AVG", Ident("x"), "grp")
	want := "AVG(x) OVER (PARTITION BY grp)"
	if got := Render(e); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func Test_QueryRender(t *testing.T) {
	q := &Query{
		Select: []SelectItem{
			{Expr: Ident("grp")},
			{Expr: Avg(Ident("x")), Alias: "x0"},
		},
		From:    "t",
		GroupBy: []string{"grp"},
	}
	want := "SELECT grp, AVG(x) AS x0 FROM t GROUP BY grp"
	if got := q.String(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func Test_WithBlockDeduplicates(t *testing.T) {
	wb := NewWithBlock()
	q := &Query{Select: []SelectItem{{Expr: Ident("x")}}, From: "t"}

	a := wb.Add("Data", q)
	b := wb.Add("Other", &Query{Select: []SelectItem{{Expr: Ident("x")}}, From: "t"})
	if a != b {
		t.Errorf("identical subqueries should share an alias: %q vs %q", a, b)
	}
}

func Test_WithBlockNameCollision(t *testing.T) {
	wb := NewWithBlock()
	a := wb.Add("Data", &Query{Select: []SelectItem{{Expr: Ident("x")}}, From: "t"})
	b := wb.Add("Data", &Query{Select: []SelectItem{{Expr: Ident("y")}}, From: "t"})
	if a == b {
		t.Errorf("different subqueries must not share alias %q", a)
	}
	if b != "Data2" {
		t.Errorf("expected suffixed alias Data2, got %q", b)
	}

	got := wb.Render(&Query{Select: []SelectItem{{Expr: Ident("x")}}, From: b})
	want := "WITH Data AS (SELECT x FROM t), Data2 AS (SELECT y FROM t) SELECT x FROM Data2"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func Test_EscapeAlias(t *testing.T) {
	if got := EscapeAlias("mean(x) / n"); got != "mean_x____n" {
		t.Errorf("unexpected alias: %q", got)
	}
}
