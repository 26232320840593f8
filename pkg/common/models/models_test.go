package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskBandForPartitions(t *testing.T) {
	cases := []struct {
		p    float64
		want string
	}{
		{0, BandLow},
		{0.1499, BandLow},
		{0.15, BandMedium},
		{0.3499, BandMedium},
		{0.35, BandHigh},
		{1, BandHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RiskBandFor(tc.p), "p=%v", tc.p)
	}
}

func TestRiskBandForMonotonic(t *testing.T) {
	rank := map[string]int{BandLow: 0, BandMedium: 1, BandHigh: 2}
	prev := 0
	for i := 0; i <= 1000; i++ {
		r := rank[RiskBandFor(float64(i)/1000)]
		require.GreaterOrEqual(t, r, prev)
		prev = r
	}
}

func TestFeatureVectorColumns(t *testing.T) {
	v := FeatureVector{AgeYears: 70, SeriousConditionScore: 12, Gender: GenderFemale}
	require.Len(t, v.Numeric(), len(NumericFeatureColumns))

	age, ok := v.Value(FeatureAgeYears)
	require.True(t, ok)
	assert.Equal(t, 70.0, age)

	score, ok := v.Value(FeatureSeriousConditionScore)
	require.True(t, ok)
	assert.Equal(t, 12.0, score)

	_, ok = v.Value(FeatureGender)
	assert.False(t, ok)

	assert.Equal(t, append(append([]string{}, NumericFeatureColumns...), FeatureGender), FeatureColumnOrder())
}

func TestFeatureVectorValidate(t *testing.T) {
	assert.NoError(t, FeatureVector{}.Validate())
	assert.Error(t, FeatureVector{MedicationCount: -1}.Validate())
	assert.Error(t, FeatureVector{AgeYears: math.NaN()}.Validate())
	assert.Error(t, FeatureVector{HistoryCount: math.Inf(1)}.Validate())
}
