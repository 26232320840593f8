package training

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	SourceInternalOutcomes = "internal-outcomes"
	SourceExternalDataset  = "external-dataset"
)

// Request parameterises one training run. Zero values take the defaults
// applied by withDefaults.
type Request struct {
	MinRows             int    `json:"min_rows"`
	MinPositives        int    `json:"min_positives"`
	AllowLowPositives   bool   `json:"allow_low_positives"`
	DataSource          string `json:"data_source"`
	ExternalDatasetPath string `json:"external_dataset_path,omitempty"`
	MaxRows             int    `json:"max_rows"`
	Seed                int64  `json:"seed"`
}

func (r Request) withDefaults() Request {
	if r.MinRows <= 0 {
		r.MinRows = 25
	}
	if r.MinPositives <= 0 {
		r.MinPositives = 5
	}
	if r.DataSource == "" {
		r.DataSource = SourceInternalOutcomes
	}
	if r.MaxRows <= 0 {
		r.MaxRows = 50000
	}
	if r.Seed == 0 {
		r.Seed = 42
	}
	return r
}

type Result struct {
	ModelVersion    string             `json:"model_version"`
	Rows            int                `json:"rows"`
	Positives       int                `json:"positives"`
	CalibratorLabel string             `json:"calibrator_label"`
	Metrics         map[string]float64 `json:"metrics"`
	ArtifactPath    string             `json:"artifact_path"`
}

// PatientSource supplies records and outcome history for outcome labelling.
type PatientSource interface {
	ListPatients(ctx context.Context) ([]features.Record, error)
	ListOutcomeEvents(ctx context.Context) ([]models.OutcomeEvent, error)
}

// RunRecorder keeps an audit trail of training runs.
type RunRecorder interface {
	Start(ctx context.Context, req Request) (uuid.UUID, error)
	Complete(ctx context.Context, id uuid.UUID, result Result) error
	Fail(ctx context.Context, id uuid.UUID, err error) error
}

// Notifier announces a newly trained model.
type Notifier interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

type RunModel struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	DataSource      string            `gorm:"column:data_source"`
	Request         datatypes.JSONMap `gorm:"column:request"`
	Status          string            `gorm:"column:status"`
	ModelVersion    string            `gorm:"column:model_version"`
	Rows            int               `gorm:"column:rows"`
	Positives       int               `gorm:"column:positives"`
	CalibratorLabel string            `gorm:"column:calibrator_label"`
	Metrics         datatypes.JSONMap `gorm:"column:metrics"`
	ArtifactPath    string            `gorm:"column:artifact_path"`
	ErrorMessage    string            `gorm:"column:error_message"`
	CreatedAt       time.Time         `gorm:"column:created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at"`
	StartedAt       *time.Time        `gorm:"column:started_at"`
	CompletedAt     *time.Time        `gorm:"column:completed_at"`
}

func (RunModel) TableName() string {
	return "risk_training_runs"
}
