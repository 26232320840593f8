package models

import (
	"fmt"
	"math"
	"time"
)

// Event bus envelope
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // outcome_event, risk_model.trained
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventTypeOutcome      = "outcome_event"
	EventTypeModelTrained = "risk_model.trained"
)

// Patient status
const (
	StatusActive     = "active"
	StatusCritical   = "critical"
	StatusDischarged = "discharged"
)

// Outcome event types tracked for labelling
const (
	OutcomeDeterioration = "deterioration"
	OutcomeDeath         = "death"
)

const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderUnknown = "unknown"
)

// Risk bands and scoring modes
const (
	BandLow    = "low"
	BandMedium = "medium"
	BandHigh   = "high"

	ScoringModeHeuristic  = "heuristic"
	ScoringModeSupervised = "supervised"

	HeuristicModelVersion = "heuristic-v1"

	DirectionUp   = "up"
	DirectionDown = "down"
)

// Serving-time band cut points. Artifacts carry their own thresholds for
// audit, but these are the ones applied to every prediction.
const (
	MediumRiskThreshold = 0.15
	HighRiskThreshold   = 0.35
)

// RiskBandFor maps a probability onto low < 0.15 <= medium < 0.35 <= high.
func RiskBandFor(probability float64) string {
	switch {
	case probability >= HighRiskThreshold:
		return BandHigh
	case probability >= MediumRiskThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// OutcomeEvent is a recorded deterioration or death for a patient.
type OutcomeEvent struct {
	PatientID string    `json:"patient_id"`
	Type      string    `json:"event_type"`
	Time      time.Time `json:"event_time"`
	Source    string    `json:"source"`
	Note      string    `json:"note,omitempty"`
}

// Feature column names, in model order.
const (
	FeatureAgeYears                  = "age_years"
	FeatureDaysSinceAdmission        = "days_since_admission"
	FeatureMedicationCount           = "medication_count"
	FeatureCurrentPrescriptionCount  = "current_prescription_count"
	FeatureAllergyCount              = "allergy_count"
	FeatureHighRiskAllergyCount      = "high_risk_allergy_count"
	FeatureHistoryCount              = "history_count"
	FeatureHighRiskHistoryCount      = "high_risk_history_count"
	FeaturePastHistoryCount          = "past_history_count"
	FeatureHighRiskPrescriptionCount = "high_risk_prescription_count"
	FeatureSeriousConditionScore     = "serious_condition_score"
	FeatureGender                    = "gender"
)

// NumericFeatureColumns is the fixed numeric column order of the schema.
var NumericFeatureColumns = []string{
	FeatureAgeYears,
	FeatureDaysSinceAdmission,
	FeatureMedicationCount,
	FeatureCurrentPrescriptionCount,
	FeatureAllergyCount,
	FeatureHighRiskAllergyCount,
	FeatureHistoryCount,
	FeatureHighRiskHistoryCount,
	FeaturePastHistoryCount,
	FeatureHighRiskPrescriptionCount,
	FeatureSeriousConditionScore,
}

// CategoricalFeatureColumns holds the single categorical column.
var CategoricalFeatureColumns = []string{FeatureGender}

// FeatureColumnOrder returns numeric columns followed by categorical columns.
func FeatureColumnOrder() []string {
	out := make([]string, 0, len(NumericFeatureColumns)+len(CategoricalFeatureColumns))
	out = append(out, NumericFeatureColumns...)
	return append(out, CategoricalFeatureColumns...)
}

// FeatureVector is the fixed-schema model input for one patient at one date.
// Status and StayDays are not model columns; the heuristic scorer reads them.
type FeatureVector struct {
	AgeYears                  float64 `json:"age_years"`
	DaysSinceAdmission        float64 `json:"days_since_admission"`
	MedicationCount           float64 `json:"medication_count"`
	CurrentPrescriptionCount  float64 `json:"current_prescription_count"`
	AllergyCount              float64 `json:"allergy_count"`
	HighRiskAllergyCount      float64 `json:"high_risk_allergy_count"`
	HistoryCount              float64 `json:"history_count"`
	HighRiskHistoryCount      float64 `json:"high_risk_history_count"`
	PastHistoryCount          float64 `json:"past_history_count"`
	HighRiskPrescriptionCount float64 `json:"high_risk_prescription_count"`
	SeriousConditionScore     float64 `json:"serious_condition_score"`
	Gender                    string  `json:"gender"`

	Status   string  `json:"status,omitempty"`
	StayDays float64 `json:"stay_days"`
}

// Numeric returns the numeric columns in NumericFeatureColumns order.
func (v FeatureVector) Numeric() []float64 {
	return []float64{
		v.AgeYears,
		v.DaysSinceAdmission,
		v.MedicationCount,
		v.CurrentPrescriptionCount,
		v.AllergyCount,
		v.HighRiskAllergyCount,
		v.HistoryCount,
		v.HighRiskHistoryCount,
		v.PastHistoryCount,
		v.HighRiskPrescriptionCount,
		v.SeriousConditionScore,
	}
}

// Value looks up a numeric column by name.
func (v FeatureVector) Value(name string) (float64, bool) {
	for i, col := range NumericFeatureColumns {
		if col == name {
			return v.Numeric()[i], true
		}
	}
	return 0, false
}

// Validate checks that every numeric column is finite and non-negative.
func (v FeatureVector) Validate() error {
	for i, value := range v.Numeric() {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("feature %s is not finite", NumericFeatureColumns[i])
		}
		if value < 0 {
			return fmt.Errorf("feature %s is negative: %v", NumericFeatureColumns[i], value)
		}
	}
	return nil
}

// TrainingExample pairs a feature snapshot with its binary outcome label.
type TrainingExample struct {
	Features FeatureVector `json:"features"`
	Label    int           `json:"label"`
}

// RiskFactor is one entry of a prediction's explanation.
type RiskFactor struct {
	Feature      string  `json:"feature"`
	Direction    string  `json:"direction"`
	Contribution float64 `json:"contribution"`
}

// RiskPrediction is the value object handed to the dashboard.
type RiskPrediction struct {
	Probability  float64      `json:"risk_probability"`
	Band         string       `json:"risk_band"`
	ModelVersion string       `json:"model_version"`
	TopFactors   []RiskFactor `json:"top_factors"`
	ScoringMode  string       `json:"scoring_mode"`
}

// Round4 rounds to four decimal places, the precision reported to clients.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// DatasetProvenance records where an external training dataset came from and
// how its columns were mapped onto the feature schema.
type DatasetProvenance struct {
	Name      string            `json:"name"`
	Publisher string            `json:"publisher"`
	DOI       string            `json:"doi"`
	URL       string            `json:"url"`
	Target    string            `json:"target"`
	Mapping   map[string]string `json:"feature_mapping"`
}
