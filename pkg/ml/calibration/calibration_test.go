package calibration

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/riskscore/pkg/ml/linear"
)

func TestPlattApply(t *testing.T) {
	p := Platt{A: -2, B: 0}
	assert.InDelta(t, 0.5, p.Apply(0), 1e-12)
	assert.Greater(t, p.Apply(3), 0.99)
	assert.Less(t, p.Apply(-3), 0.01)
	assert.InDelta(t, 1.0, Platt{A: -1000}.Apply(5), 1e-12)
}

func TestFitPlattIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var decisions []float64
	var labels []int
	for i := 0; i < 400; i++ {
		f := rng.NormFloat64() * 2
		y := 0
		if rng.Float64() < 1/(1+math.Exp(-f)) {
			y = 1
		}
		decisions = append(decisions, f)
		labels = append(labels, y)
	}
	p, err := FitPlatt(decisions, labels)
	require.NoError(t, err)
	assert.Less(t, p.A, 0.0)
	assert.Less(t, p.Apply(-2), p.Apply(2))
}

func TestFitPlattSingleClass(t *testing.T) {
	_, err := FitPlatt([]float64{1, 2}, []int{1, 1})
	assert.ErrorIs(t, err, ErrTooFewSamples)
}

func TestFitSigmoidCV(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var rows []linear.Row
	var labels []int
	for i := 0; i < 600; i++ {
		x := rng.Float64() * 10
		y := 0
		if x+rng.NormFloat64() > 7 {
			y = 1
		}
		cat := "female"
		if i%2 == 0 {
			cat = "male"
		}
		rows = append(rows, linear.Row{Numeric: []float64{x}, Category: cat})
		labels = append(labels, y)
	}

	cal, err := FitSigmoidCV(context.Background(), []string{"x"}, "gender", rows, labels, linear.Options{C: 1, Balanced: true}, 5, 42)
	require.NoError(t, err)
	assert.Len(t, cal.Members, 5)
	assert.Equal(t, "sigmoid-cv5", cal.Label())

	low := cal.PredictProba(linear.Row{Numeric: []float64{1}, Category: "male"})
	high := cal.PredictProba(linear.Row{Numeric: []float64{9.5}, Category: "male"})
	assert.Less(t, low, high)
	assert.Greater(t, low, 0.0)
	assert.Less(t, high, 1.0)
}

func TestFitSigmoidCVCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rows := []linear.Row{{Numeric: []float64{1}}, {Numeric: []float64{2}}}
	_, err := FitSigmoidCV(ctx, []string{"x"}, "", rows, []int{0, 1}, linear.Options{}, 2, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLabelNone(t *testing.T) {
	var c *Calibrator
	assert.Equal(t, "none", c.Label())
}
