package serving

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
)

// PredictionLog is the persistence model for served risk scores.
type PredictionLog struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	PatientID    string         `gorm:"column:patient_id;index" json:"patient_id"`
	ModelVersion string         `gorm:"column:model_version" json:"model_version"`
	ScoringMode  string         `gorm:"column:scoring_mode" json:"scoring_mode"`
	Probability  float64        `gorm:"column:probability" json:"probability"`
	Band         string         `gorm:"column:band" json:"band"`
	Features     datatypes.JSON `gorm:"column:features" json:"features"`
	TopFactors   datatypes.JSON `gorm:"column:top_factors" json:"top_factors"`
	LatencyMs    float64        `gorm:"column:latency_ms" json:"latency_ms"`
	CreatedAt    time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (PredictionLog) TableName() string {
	return "risk_prediction_logs"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PredictionLog{})
}

// NewPredictionLog builds the row recorded for one prediction.
func NewPredictionLog(patientID string, v models.FeatureVector, p models.RiskPrediction, latency time.Duration) (PredictionLog, error) {
	featureJSON, err := json.Marshal(v)
	if err != nil {
		return PredictionLog{}, err
	}
	factorJSON, err := json.Marshal(p.TopFactors)
	if err != nil {
		return PredictionLog{}, err
	}
	return PredictionLog{
		ID:           uuid.New(),
		PatientID:    patientID,
		ModelVersion: p.ModelVersion,
		ScoringMode:  p.ScoringMode,
		Probability:  p.Probability,
		Band:         p.Band,
		Features:     datatypes.JSON(featureJSON),
		TopFactors:   datatypes.JSON(factorJSON),
		LatencyMs:    float64(latency.Microseconds()) / 1000.0,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (r *Repository) RecordPrediction(ctx context.Context, log PredictionLog) error {
	return r.db.WithContext(ctx).Create(&log).Error
}

// Recent returns the most recent prediction logs for a patient up to limit.
func (r *Repository) Recent(ctx context.Context, patientID string, limit int) ([]PredictionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []PredictionLog
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
