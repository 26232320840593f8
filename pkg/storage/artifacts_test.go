package storage

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/ml/calibration"
	"github.com/synaptica-ai/riskscore/pkg/ml/linear"
)

func testArtifact(version string) *Artifact {
	return &Artifact{
		ModelVersion:   version,
		FeatureColumns: models.FeatureColumnOrder(),
		Estimator: linear.Pipeline{
			NumericColumns:    []string{models.FeatureAgeYears, models.FeatureMedicationCount},
			CategoricalColumn: models.FeatureGender,
			Categories:        []string{"female", "male"},
			Scaler:            linear.Scaler{Means: []float64{50, 3}, Scales: []float64{10, 2}},
			Weights:           linear.Weights{Bias: -1, Coefficients: []float64{0.8, 0.3, 0.1, -0.1}},
			C:                 1,
		},
		CalibratorLabel: "none",
		Thresholds:      Thresholds{Medium: 0.12, High: 0.3},
		Metrics:         map[string]float64{"roc_auc": 0.8},
	}
}

func TestNewVersion(t *testing.T) {
	v := NewVersion(time.Date(2026, 10, 17, 9, 5, 3, 0, time.UTC))
	assert.Equal(t, "risk-v3-20261017090503", v)
}

func TestSaveAndLatest(t *testing.T) {
	store := NewArtifactStore(t.TempDir())

	_, err := store.Latest()
	assert.ErrorIs(t, err, ErrNoArtifact)

	_, err = store.Save(testArtifact("risk-v3-20260101000000"))
	require.NoError(t, err)
	path, err := store.Save(testArtifact("risk-v3-20260201000000"))
	require.NoError(t, err)
	assert.Equal(t, "risk_model_risk-v3-20260201000000.json", filepath.Base(path))

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "risk-v3-20260201000000", latest.ModelVersion)
	assert.Equal(t, SchemaVersion, latest.SchemaVersion)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSaveCollisionAddsSuffix(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	for i := 0; i < 11; i++ {
		_, err := store.Save(testArtifact("risk-v3-20260101000000"))
		require.NoError(t, err)
	}
	versions, err := store.List()
	require.NoError(t, err)
	require.Len(t, versions, 11)
	assert.Equal(t, "risk-v3-20260101000000", versions[0])
	assert.Equal(t, "risk-v3-20260101000000-10", versions[10])

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "risk-v3-20260101000000-10", latest.ModelVersion)
}

func TestLatestCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewArtifactStore(dir)
	_, err := store.Save(testArtifact("risk-v3-20260101000000"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.PathFor("risk-v3-20260301000000"), []byte("{not json"), 0o644))

	_, err = store.Latest()
	var loadErr *ArtifactLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Contains(t, loadErr.Path, "risk-v3-20260301000000")
}

func TestLoadRejectsIncompatible(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	a := testArtifact("risk-v3-20260101000000")
	a.Estimator.Weights.Coefficients = []float64{1}
	_, err := store.Save(a)
	require.NoError(t, err)

	_, err = store.Latest()
	var loadErr *ArtifactLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestArtifactScoringDeterministic(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	_, err := store.Save(testArtifact("risk-v3-20260101000000"))
	require.NoError(t, err)
	a, err := store.Latest()
	require.NoError(t, err)

	v := models.FeatureVector{AgeYears: 70, MedicationCount: 6, Gender: "male"}
	row := a.Row(v)
	assert.Equal(t, []float64{70, 6}, row.Numeric)
	p1, err := a.Probability(row)
	require.NoError(t, err)
	p2, err := a.Probability(a.Row(v))
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Greater(t, p1, 0.0)
	assert.Less(t, p1, 1.0)
}

func TestLoadRejectsMalformedParameters(t *testing.T) {
	cases := map[string]func(a *Artifact){
		"short scales": func(a *Artifact) { a.Estimator.Scaler.Scales = []float64{10} },
		"short means":  func(a *Artifact) { a.Estimator.Scaler.Means = nil },
		"zero scale":   func(a *Artifact) { a.Estimator.Scaler.Scales = []float64{0, 2} },
		"nan weight":   func(a *Artifact) { a.Estimator.Weights.Coefficients[1] = math.NaN() },
		"inf bias":     func(a *Artifact) { a.Estimator.Weights.Bias = math.Inf(1) },
		"calibrator member scales": func(a *Artifact) {
			member := a.Estimator
			member.Scaler = linear.Scaler{Means: []float64{0, 0}, Scales: []float64{1}}
			a.Calibrator = &calibration.Calibrator{Method: calibration.MethodSigmoid, Folds: 1,
				Members: []calibration.Member{{Estimator: member, Platt: calibration.Platt{A: -1}}}}
		},
		"calibrator platt": func(a *Artifact) {
			a.Calibrator = &calibration.Calibrator{Method: calibration.MethodSigmoid, Folds: 1,
				Members: []calibration.Member{{Estimator: a.Estimator, Platt: calibration.Platt{A: math.NaN()}}}}
		},
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			store := NewArtifactStore(t.TempDir())
			a := testArtifact("risk-v3-20260101000000")
			corrupt(a)
			_, err := store.Save(a)
			require.NoError(t, err)

			_, err = store.Latest()
			var loadErr *ArtifactLoadError
			assert.True(t, errors.As(err, &loadErr), "got %v", err)
		})
	}
}

func TestProbabilityNonFinite(t *testing.T) {
	a := testArtifact("risk-v3-20260101000000")
	a.Estimator.Scaler.Scales = []float64{0, 0}

	_, err := a.Probability(a.Row(models.FeatureVector{AgeYears: 50, MedicationCount: 3}))
	assert.ErrorIs(t, err, ErrNonFiniteScore)
}
