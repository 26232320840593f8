package training

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("training run not found")

// Repository is the gorm-backed RunRecorder.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RunModel{})
}

func (r *Repository) Start(ctx context.Context, req Request) (uuid.UUID, error) {
	now := time.Now().UTC()
	run := &RunModel{
		ID:         uuid.New(),
		DataSource: req.DataSource,
		Request: datatypes.JSONMap{
			"min_rows":            req.MinRows,
			"min_positives":       req.MinPositives,
			"allow_low_positives": req.AllowLowPositives,
			"max_rows":            req.MaxRows,
			"seed":                req.Seed,
		},
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: &now,
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return uuid.Nil, err
	}
	return run.ID, nil
}

func (r *Repository) Complete(ctx context.Context, id uuid.UUID, result Result) error {
	now := time.Now().UTC()
	metrics := datatypes.JSONMap{}
	for k, v := range result.Metrics {
		metrics[k] = v
	}
	return r.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           StatusCompleted,
		"model_version":    result.ModelVersion,
		"rows":             result.Rows,
		"positives":        result.Positives,
		"calibrator_label": result.CalibratorLabel,
		"metrics":          metrics,
		"artifact_path":    result.ArtifactPath,
		"updated_at":       now,
		"completed_at":     now,
	}).Error
}

func (r *Repository) Fail(ctx context.Context, id uuid.UUID, cause error) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        StatusFailed,
		"error_message": cause.Error(),
		"updated_at":    now,
		"completed_at":  now,
	}).Error
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*RunModel, error) {
	var run RunModel
	result := r.db.WithContext(ctx).First(&run, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	return &run, result.Error
}

func (r *Repository) List(ctx context.Context, limit int) ([]RunModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []RunModel
	result := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&runs)
	return runs, result.Error
}
