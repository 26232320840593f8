package patients

import (
	"errors"
	"fmt"
	"strings"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
)

var (
	ErrUntrackedEvent = errors.New("untracked outcome event type")
	ErrInvalidEvent   = errors.New("invalid outcome event")
)

var eventAliases = map[string]string{
	"critical_deterioration": models.OutcomeDeterioration,
	"deterioration":          models.OutcomeDeterioration,
	"death":                  models.OutcomeDeath,
}

// NormalizeEventType maps stored and incoming event type names onto the
// tracked outcome types.
func NormalizeEventType(raw string) (string, error) {
	if t, ok := eventAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUntrackedEvent, raw)
}

// storedEventTypes lists every raw value that normalises to a tracked type.
func storedEventTypes() []string {
	out := make([]string, 0, len(eventAliases))
	for k := range eventAliases {
		out = append(out, k)
	}
	return out
}

// normalizeEvent validates ev and fills defaults.
func normalizeEvent(ev models.OutcomeEvent) (models.OutcomeEvent, error) {
	if strings.TrimSpace(ev.PatientID) == "" {
		return ev, fmt.Errorf("%w: missing patient_id", ErrInvalidEvent)
	}
	if ev.Time.IsZero() {
		return ev, fmt.Errorf("%w: missing event_time", ErrInvalidEvent)
	}
	t, err := NormalizeEventType(ev.Type)
	if err != nil {
		return ev, err
	}
	ev.PatientID = strings.TrimSpace(ev.PatientID)
	ev.Type = t
	ev.Time = ev.Time.UTC()
	if strings.TrimSpace(ev.Source) == "" {
		ev.Source = DefaultEventSource
	}
	return ev, nil
}
