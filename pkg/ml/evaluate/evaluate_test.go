package evaluate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestROCAUC(t *testing.T) {
	auc, err := ROCAUC([]int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, auc, 1e-9)

	auc, err = ROCAUC([]int{0, 1}, []float64{0.2, 0.9})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, auc, 1e-9)

	_, err = ROCAUC([]int{1, 1}, []float64{0.2, 0.9})
	assert.ErrorIs(t, err, ErrSingleClass)
}

func TestAveragePrecision(t *testing.T) {
	ap, err := AveragePrecision([]int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8})
	require.NoError(t, err)
	// thresholds 0.8 (P=1, R=.5), 0.4 (P=.5), 0.35 (P=2/3, R=1)
	assert.InDelta(t, 0.5*1+0.5*(2.0/3), ap, 1e-9)

	ap, err = AveragePrecision([]int{1, 0, 1}, []float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, ap, 1e-9)
}

func TestBrierAndComposite(t *testing.T) {
	assert.InDelta(t, 0.125, Brier([]int{0, 1}, []float64{0.5, 1}), 1e-12)
	r := Report{ROCAUC: 0.8, AveragePrecision: 0.5, Brier: 0.1}
	assert.InDelta(t, 0.35+0.24-0.005, r.Composite(), 1e-12)
}

func TestQuantile(t *testing.T) {
	values := []float64{0.5, 0.1, 0.3, 0.2, 0.4}
	q := Quantile(0.5, values)
	assert.GreaterOrEqual(t, q, 0.2)
	assert.LessOrEqual(t, q, 0.4)
	assert.InDelta(t, 0.5, Quantile(1, values), 1e-12)
	assert.Equal(t, []float64{0.5, 0.1, 0.3, 0.2, 0.4}, values)
}
