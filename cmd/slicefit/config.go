package main

var DemoGroups = []string{"control", "treatment"}

const (
	DemoRows      = 20000
	DemoSeed      = 42
	DemoNoise     = 0.5
	DemoTableName = "observations"

	DemoIntercept = 1.2

	LogisticIntercept = -0.5
)

var (
	DemoCoef     = []float64{3.0, -1.5}
	LogisticCoef = []float64{2.0, -1.0}
)
