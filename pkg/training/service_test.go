package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/common/timeutil"
	"github.com/synaptica-ai/riskscore/pkg/ml/linear"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
	"github.com/synaptica-ai/riskscore/pkg/storage"
)

var trainNow = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

type fakeSource struct {
	patients []features.Record
	events   []models.OutcomeEvent
}

func (f *fakeSource) ListPatients(context.Context) ([]features.Record, error) {
	return f.patients, nil
}

func (f *fakeSource) ListOutcomeEvents(context.Context) ([]models.OutcomeEvent, error) {
	return f.events, nil
}

// cohort builds n patients admitted long enough ago that every window has
// elapsed; the first `positives` of them deteriorate inside their window.
func cohort(n, positives int) *fakeSource {
	src := &fakeSource{}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p-%03d", i)
		meds := 1 + i%4
		if i < positives {
			meds += 4
		}
		medications := make([]string, meds)
		for m := range medications {
			medications[m] = fmt.Sprintf("med-%d", m)
		}
		gender := "female"
		if i%2 == 0 {
			gender = "male"
		}
		src.patients = append(src.patients, features.Payload{
			ID:          id,
			BirthDate:   fmt.Sprintf("%d-03-15", 1940+i%40),
			Gender:      gender,
			Status:      models.StatusActive,
			Admitted:    "2026-01-10",
			Medications: medications,
		})
		if i < positives {
			src.events = append(src.events, models.OutcomeEvent{
				PatientID: id,
				Type:      models.OutcomeDeterioration,
				Time:      time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
			})
		}
	}
	return src
}

func newTestService(t *testing.T, src PatientSource) (*Service, *storage.ArtifactStore) {
	t.Helper()
	store := storage.NewArtifactStore(t.TempDir())
	return NewService(store, src, nil, timeutil.NewMockClock(trainNow)), store
}

func requireNoArtifacts(t *testing.T, store *storage.ArtifactStore) {
	t.Helper()
	versions, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestTrainRejectsTooFewRows(t *testing.T) {
	svc, store := newTestService(t, cohort(10, 5))
	_, err := svc.Train(context.Background(), Request{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Message, "rows=10")
	requireNoArtifacts(t, store)
}

func TestTrainRejectsNoPositives(t *testing.T) {
	svc, store := newTestService(t, cohort(30, 0))
	_, err := svc.Train(context.Background(), Request{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Message, "positive")
	requireNoArtifacts(t, store)
}

func TestTrainRejectsAllPositives(t *testing.T) {
	svc, store := newTestService(t, cohort(30, 30))
	_, err := svc.Train(context.Background(), Request{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Message, "negative")
	requireNoArtifacts(t, store)
}

func TestTrainLowPositives(t *testing.T) {
	svc, store := newTestService(t, cohort(30, 2))
	_, err := svc.Train(context.Background(), Request{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Message, "positives=2")
	requireNoArtifacts(t, store)

	result, err := svc.Train(context.Background(), Request{AllowLowPositives: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Positives)
}

func TestTrainSmallCohortDegradedMode(t *testing.T) {
	svc, store := newTestService(t, cohort(30, 6))
	result, err := svc.Train(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, "risk-v3-20260601093000", result.ModelVersion)
	assert.Equal(t, 30, result.Rows)
	assert.Equal(t, 6, result.Positives)
	assert.Equal(t, "none", result.CalibratorLabel)
	assert.Equal(t, 8.0, result.Metrics["validation_instances"])
	assert.Contains(t, result.Metrics, "train_roc_auc")
	assert.NotContains(t, result.Metrics, "selected_c")

	artifact, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, result.ModelVersion, artifact.ModelVersion)
	assert.Nil(t, artifact.Calibrator)
	assert.Equal(t, 0.2, artifact.BaseRate)
	assert.Equal(t, storage.Thresholds{Medium: 0.2, High: 0.35}, artifact.Thresholds)
	assert.Equal(t, models.FeatureColumnOrder(), artifact.FeatureColumns)
	assert.Equal(t, SourceInternalOutcomes, artifact.DataSource)
	assert.Nil(t, artifact.Dataset)
	assert.LessOrEqual(t, len(artifact.TopFeatures), 12)
	assert.Equal(t, 1.0, artifact.Estimator.C)
	assert.Equal(t, []string{"female", "male"}, artifact.Estimator.Categories)
}

func writeEncounters(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("encounter_id,age,gender,time_in_hospital,num_medications,number_diagnoses,number_inpatient,number_outpatient,number_emergency,readmitted\n")
	for i := 0; i < n; i++ {
		positive := i%5 == 0
		meds := 6 + i%11
		inpatient := i % 2
		readmitted := "NO"
		if positive {
			meds += 5
			inpatient += 1
			readmitted = "<30"
		} else if i%3 == 0 {
			readmitted = ">30"
		}
		gender := "Female"
		if i%2 == 0 {
			gender = "Male"
		}
		fmt.Fprintf(&b, "%d,[%d-%d),%s,%d,%d,%d,%d,%d,%d,%s\n",
			i, 10*(i%9), 10*(i%9)+10, gender, 1+i%13, meds, 3+i%7, inpatient, i%3, i%2, readmitted)
	}
	path := filepath.Join(t.TempDir(), "diabetic_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestTrainExternalDatasetWithSelectionAndCalibration(t *testing.T) {
	svc, store := newTestService(t, nil)
	svc.WithReliabilityPlot(true)
	path := writeEncounters(t, 600)

	result, err := svc.Train(context.Background(), Request{
		DataSource:          SourceExternalDataset,
		ExternalDatasetPath: path,
	})
	require.NoError(t, err)
	assert.Equal(t, 600, result.Rows)
	assert.Equal(t, 120, result.Positives)
	assert.Equal(t, "sigmoid-cv5", result.CalibratorLabel)
	assert.Contains(t, CandidateC, result.Metrics["selected_c"])
	for _, key := range []string{"roc_auc", "avg_precision", "brier"} {
		v, ok := result.Metrics[key]
		require.True(t, ok, key)
		assert.False(t, math.IsNaN(v), key)
	}
	assert.Greater(t, result.Metrics["roc_auc"], 0.6)

	artifact, err := store.Latest()
	require.NoError(t, err)
	require.NotNil(t, artifact.Calibrator)
	assert.Len(t, artifact.Calibrator.Members, 5)
	require.NotNil(t, artifact.Dataset)
	assert.Equal(t, "10.24432/C5230J", artifact.Dataset.DOI)
	assert.Equal(t, SourceExternalDataset, artifact.DataSource)
	assert.GreaterOrEqual(t, artifact.Thresholds.Medium, 0.07)
	assert.LessOrEqual(t, artifact.Thresholds.Medium, 0.22)
	assert.GreaterOrEqual(t, artifact.Thresholds.High, artifact.Thresholds.Medium+0.06-1e-9)

	_, err = os.Stat(strings.TrimSuffix(result.ArtifactPath, ".json") + "_reliability.png")
	assert.NoError(t, err)

	for _, ex := range []models.FeatureVector{{}, {AgeYears: 90, MedicationCount: 20, Gender: "other"}} {
		p, err := artifact.Probability(artifact.Row(ex))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestTrainExternalDatasetMissingFile(t *testing.T) {
	svc, store := newTestService(t, nil)
	_, err := svc.Train(context.Background(), Request{
		DataSource:          SourceExternalDataset,
		ExternalDatasetPath: filepath.Join(t.TempDir(), "missing.csv"),
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	requireNoArtifacts(t, store)
}

func TestTrainUnknownSource(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Train(context.Background(), Request{DataSource: "spreadsheet"})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestTrainSelfCheckFailureWritesNothing(t *testing.T) {
	svc, store := newTestService(t, cohort(30, 6))
	svc.score = func(*storage.Artifact, linear.Row) float64 { return math.NaN() }
	_, err := svc.Train(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrSelfCheck)
	requireNoArtifacts(t, store)

	svc.score = func(*storage.Artifact, linear.Row) float64 { return 1.5 }
	_, err = svc.Train(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrSelfCheck)
	requireNoArtifacts(t, store)
}

func TestTrainCancelled(t *testing.T) {
	svc, store := newTestService(t, cohort(30, 6))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Train(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	requireNoArtifacts(t, store)
}

type fakeRecorder struct {
	started   int
	completed []Result
	failed    []error
}

func (f *fakeRecorder) Start(context.Context, Request) (uuid.UUID, error) {
	f.started++
	return uuid.New(), nil
}

func (f *fakeRecorder) Complete(_ context.Context, _ uuid.UUID, r Result) error {
	f.completed = append(f.completed, r)
	return nil
}

func (f *fakeRecorder) Fail(_ context.Context, _ uuid.UUID, err error) error {
	f.failed = append(f.failed, err)
	return nil
}

type fakeNotifier struct {
	events []string
	data   []map[string]interface{}
}

func (f *fakeNotifier) PublishEvent(_ context.Context, eventType, _ string, data map[string]interface{}) error {
	f.events = append(f.events, eventType)
	f.data = append(f.data, data)
	return nil
}

func TestTrainRecordsRunsAndAnnounces(t *testing.T) {
	rec := &fakeRecorder{}
	notifier := &fakeNotifier{}
	svc, _ := newTestService(t, cohort(30, 6))
	svc.WithRecorder(rec).WithNotifier(notifier)

	result, err := svc.Train(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, rec.completed, 1)
	assert.Equal(t, result.ModelVersion, rec.completed[0].ModelVersion)
	assert.Equal(t, []string{models.EventTypeModelTrained}, notifier.events)
	assert.Equal(t, result.ModelVersion, notifier.data[0]["model_version"])

	_, err = svc.Train(context.Background(), Request{MinRows: 100})
	require.Error(t, err)
	assert.Equal(t, 2, rec.started)
	assert.Len(t, rec.failed, 1)
	assert.Len(t, notifier.events, 1)
}

func TestTrainVersionCollision(t *testing.T) {
	svc, store := newTestService(t, cohort(30, 6))
	first, err := svc.Train(context.Background(), Request{})
	require.NoError(t, err)
	second, err := svc.Train(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, first.ModelVersion+"-1", second.ModelVersion)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, second.ModelVersion, latest.ModelVersion)
}
