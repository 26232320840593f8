package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
)

// ErrSnapshotNotFound is returned when no hot snapshot exists for a patient.
var ErrSnapshotNotFound = errors.New("feature snapshot not found")

// Snapshot is a patient's latest feature vector and prediction as cached for
// the dashboard.
type Snapshot struct {
	PatientID  string                 `json:"patient_id"`
	Features   models.FeatureVector   `json:"features"`
	Prediction *models.RiskPrediction `json:"prediction,omitempty"`
	ComputedAt time.Time              `json:"computed_at"`
}

// FeatureStore keeps hot feature snapshots in Redis under <prefix>:<patient>.
type FeatureStore struct {
	client   redis.Cmdable
	prefix   string
	cacheTTL time.Duration
}

func NewFeatureStore(client redis.Cmdable, prefix string, ttl time.Duration) *FeatureStore {
	if prefix == "" {
		prefix = "risk:features"
	}
	return &FeatureStore{client: client, prefix: prefix, cacheTTL: ttl}
}

func (f *FeatureStore) key(patientID string) string {
	return fmt.Sprintf("%s:%s", f.prefix, patientID)
}

// Materialize writes the snapshot with the configured TTL.
func (f *FeatureStore) Materialize(ctx context.Context, snap Snapshot) error {
	if snap.PatientID == "" {
		return errors.New("snapshot has no patient id")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	key := f.key(snap.PatientID)
	logger.Get().WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Materializing feature snapshot")
	return f.client.Set(ctx, key, data, f.cacheTTL).Err()
}

func (f *FeatureStore) Get(ctx context.Context, patientID string) (Snapshot, error) {
	data, err := f.client.Get(ctx, f.key(patientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (f *FeatureStore) Delete(ctx context.Context, patientID string) error {
	return f.client.Del(ctx, f.key(patientID)).Err()
}
