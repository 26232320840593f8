package patients

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
)

var ErrPatientNotFound = errors.New("patient not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Patient{}, &OutcomeEvent{})
}

func (r *Repository) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	result := r.db.WithContext(ctx).First(&p, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrPatientNotFound
	}
	return &p, result.Error
}

// ListPatients returns every patient as an extractor record.
func (r *Repository) ListPatients(ctx context.Context) ([]features.Record, error) {
	var rows []Patient
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]features.Record, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// ListOutcomeEvents returns tracked events, oldest first, with normalised
// types.
func (r *Repository) ListOutcomeEvents(ctx context.Context) ([]models.OutcomeEvent, error) {
	var rows []OutcomeEvent
	err := r.db.WithContext(ctx).
		Where("event_type IN ?", storedEventTypes()).
		Order("event_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.OutcomeEvent, 0, len(rows))
	for _, row := range rows {
		ev := row.toDomain()
		t, err := NormalizeEventType(ev.Type)
		if err != nil {
			continue
		}
		ev.Type = t
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// RecordOutcomeEvent validates and stores one event.
func (r *Repository) RecordOutcomeEvent(ctx context.Context, ev models.OutcomeEvent) error {
	ev, err := normalizeEvent(ev)
	if err != nil {
		return err
	}
	row := OutcomeEvent{
		PatientID: ev.PatientID,
		EventType: ev.Type,
		EventTime: ev.Time,
		Source:    ev.Source,
		Note:      ev.Note,
		CreatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}
