package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/observability/metrics"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
)

// OutcomeWriter persists outcome events.
type OutcomeWriter interface {
	RecordOutcomeEvent(ctx context.Context, ev models.OutcomeEvent) error
}

// Ingestor consumes outcome_event messages from the event bus.
type Ingestor struct {
	store OutcomeWriter
}

func NewIngestor(store OutcomeWriter) *Ingestor {
	return &Ingestor{store: store}
}

// Handle stores one bus event. Malformed or untracked events are dropped
// and logged so the consumer commits past them; storage failures are
// returned so the message is retried.
func (i *Ingestor) Handle(ctx context.Context, event models.Event) error {
	if event.Type != models.EventTypeOutcome {
		return nil
	}
	log := logger.Get().WithFields(logrus.Fields{"event_id": event.ID, "source": event.Source})

	ev, err := DecodeOutcomeEvent(event)
	if err == nil {
		ev, err = normalizeEvent(ev)
	}
	if err != nil {
		metrics.ObserveOutcomeEvent(false)
		log.WithError(err).Warn("Dropping outcome event")
		return nil
	}
	if err := i.store.RecordOutcomeEvent(ctx, ev); err != nil {
		if errors.Is(err, ErrInvalidEvent) || errors.Is(err, ErrUntrackedEvent) {
			metrics.ObserveOutcomeEvent(false)
			log.WithError(err).Warn("Dropping outcome event")
			return nil
		}
		return fmt.Errorf("record outcome event: %w", err)
	}
	metrics.ObserveOutcomeEvent(true)
	log.WithFields(logrus.Fields{
		"patient_id": ev.PatientID,
		"event_type": ev.Type,
	}).Info("Recorded outcome event")
	return nil
}

// DecodeOutcomeEvent reads an OutcomeEvent from a bus event's data map.
func DecodeOutcomeEvent(event models.Event) (models.OutcomeEvent, error) {
	data := event.Data
	ev := models.OutcomeEvent{
		PatientID: stringField(data, "patient_id"),
		Type:      stringField(data, "event_type"),
		Source:    stringField(data, "source"),
		Note:      stringField(data, "note"),
	}
	if ev.Source == "" {
		ev.Source = event.Source
	}
	raw := stringField(data, "event_time")
	if raw == "" {
		if event.Timestamp.IsZero() {
			return ev, fmt.Errorf("%w: missing event_time", ErrInvalidEvent)
		}
		ev.Time = event.Timestamp
		return ev, nil
	}
	t, err := features.ParseDate("event_time", raw)
	if err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	ev.Time = t
	return ev, nil
}

func stringField(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
