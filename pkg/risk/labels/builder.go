// Package labels turns outcome-event history into supervised training
// examples without manufacturing negatives from open windows.
package labels

import (
	"sort"
	"time"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/common/timeutil"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
)

// WindowDays is the outcome horizon measured from the admission date.
const WindowDays = 30

// TrackedOutcomes are the event types that resolve a window positively.
var TrackedOutcomes = map[string]bool{
	models.OutcomeDeterioration: true,
	models.OutcomeDeath:         true,
}

type Stats struct {
	Patients       int `json:"patients"`
	Positives      int `json:"positives"`
	Negatives      int `json:"negatives"`
	Censored       int `json:"censored"`
	NoAdmission    int `json:"no_admission"`
	IgnoredEvents  int `json:"ignored_events"`
	EventsInWindow int `json:"events_in_window"`
}

type Builder struct {
	extractor *features.Extractor
	clock     timeutil.Clock
}

func NewBuilder(extractor *features.Extractor, clock timeutil.Clock) *Builder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Builder{extractor: extractor, clock: clock}
}

// Build labels each record with a parsable admission date. The window
// [admission, admission+30d] is inclusive at day granularity. A record is
// positive if a tracked event falls in the window, with features taken as of
// the first such event; negative only once today is at or past the window
// end, with features taken at the window end; otherwise it is censored.
func (b *Builder) Build(records []features.Record, events []models.OutcomeEvent) ([]models.TrainingExample, Stats) {
	byPatient := make(map[string][]time.Time)
	var stats Stats
	for _, ev := range events {
		if !TrackedOutcomes[ev.Type] || ev.PatientID == "" || ev.Time.IsZero() {
			stats.IgnoredEvents++
			continue
		}
		byPatient[ev.PatientID] = append(byPatient[ev.PatientID], ev.Time.UTC())
	}
	for _, times := range byPatient {
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	}

	today := timeutil.Date(b.clock.Now().UTC())
	examples := make([]models.TrainingExample, 0, len(records))
	for _, record := range records {
		stats.Patients++
		admitted, err := features.ParseDate("admission_date", record.AdmissionDate())
		if err != nil {
			stats.NoAdmission++
			continue
		}
		start := timeutil.Date(admitted)
		end := start.AddDate(0, 0, WindowDays)

		if first, ok := firstInWindow(byPatient[record.PatientID()], start, end); ok {
			stats.Positives++
			stats.EventsInWindow++
			examples = append(examples, models.TrainingExample{
				Features: b.extractor.Extract(record, first),
				Label:    1,
			})
			continue
		}
		if !today.Before(end) {
			stats.Negatives++
			examples = append(examples, models.TrainingExample{
				Features: b.extractor.Extract(record, end),
				Label:    0,
			})
			continue
		}
		stats.Censored++
	}

	logger.Get().WithFields(map[string]interface{}{
		"patients":     stats.Patients,
		"positives":    stats.Positives,
		"negatives":    stats.Negatives,
		"censored":     stats.Censored,
		"no_admission": stats.NoAdmission,
	}).Info("Built outcome labels")
	return examples, stats
}

func firstInWindow(sorted []time.Time, start, end time.Time) (time.Time, bool) {
	for _, t := range sorted {
		day := timeutil.Date(t)
		if day.Before(start) {
			continue
		}
		if day.After(end) {
			break
		}
		return t, true
	}
	return time.Time{}, false
}
