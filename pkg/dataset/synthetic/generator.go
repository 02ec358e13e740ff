package synthetic

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/peter-kozarec/slicefit/pkg/table"
)

// Generator produces synthetic regression datasets with a known ground
// truth, mainly for demos and integration checks against a live
// database.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Linear draws n rows of (grp, y, x_0..x_{k-1}) where
// y = intercept + coef . x + N(0, noise) and grp cycles through the
// given slice labels.
func (g *Generator) Linear(n int, intercept float64, coef []float64, noise float64, groups []string) *table.Table {
	cols := []string{"grp", "y"}
	for i := range coef {
		cols = append(cols, featureName(i))
	}
	out := table.New(cols...)

	for r := 0; r < n; r++ {
		x := g.drawFeatures(len(coef))
		y := intercept + floats.Dot(coef, x) + g.rng.NormFloat64()*noise
		row := []any{g.groupLabel(r, groups), y}
		for _, v := range x {
			row = append(row, v)
		}
		// Arity is fixed by construction.
		_ = out.AppendRow(row...)
	}
	return out
}

// Binary draws n rows with a Bernoulli response whose log-odds are
// intercept + coef . x.
func (g *Generator) Binary(n int, intercept float64, coef []float64, groups []string) *table.Table {
	cols := []string{"grp", "y"}
	for i := range coef {
		cols = append(cols, featureName(i))
	}
	out := table.New(cols...)

	for r := 0; r < n; r++ {
		x := g.drawFeatures(len(coef))
		p := 1 / (1 + math.Exp(-(intercept + floats.Dot(coef, x))))
		y := int64(0)
		if g.rng.Float64() < p {
			y = 1
		}
		row := []any{g.groupLabel(r, groups), y}
		for _, v := range x {
			row = append(row, v)
		}
		_ = out.AppendRow(row...)
	}
	return out
}

func (g *Generator) drawFeatures(k int) []float64 {
	x := make([]float64, k)
	for i := range x {
		x[i] = g.rng.NormFloat64()
	}
	return x
}

func (g *Generator) groupLabel(r int, groups []string) string {
	if len(groups) == 0 {
		return "all"
	}
	return groups[r%len(groups)]
}

func featureName(i int) string {
	return fmt.Sprintf("x%d", i)
}
