package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
)

func setupFeatureStore(t *testing.T) (*miniredis.Miniredis, *FeatureStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewFeatureStore(client, "risk:features", time.Minute)
}

func TestFeatureStoreRoundTrip(t *testing.T) {
	mr, store := setupFeatureStore(t)
	ctx := context.Background()

	snap := Snapshot{
		PatientID: "p-1",
		Features:  models.FeatureVector{AgeYears: 80, Gender: "female"},
		Prediction: &models.RiskPrediction{
			Probability: 0.42, Band: models.BandHigh, ScoringMode: models.ScoringModeHeuristic,
		},
		ComputedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Materialize(ctx, snap))
	assert.True(t, mr.Exists("risk:features:p-1"))
	assert.Equal(t, time.Minute, mr.TTL("risk:features:p-1"))

	got, err := store.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Features, got.Features)
	assert.Equal(t, 0.42, got.Prediction.Probability)
	assert.True(t, snap.ComputedAt.Equal(got.ComputedAt))

	require.NoError(t, store.Delete(ctx, "p-1"))
	_, err = store.Get(ctx, "p-1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestFeatureStoreExpiry(t *testing.T) {
	mr, store := setupFeatureStore(t)
	ctx := context.Background()
	require.NoError(t, store.Materialize(ctx, Snapshot{PatientID: "p-2"}))
	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "p-2")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestFeatureStoreRejectsMissingID(t *testing.T) {
	_, store := setupFeatureStore(t)
	assert.Error(t, store.Materialize(context.Background(), Snapshot{}))
}
