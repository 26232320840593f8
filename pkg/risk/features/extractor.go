package features

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/common/timeutil"
)

const (
	maxAgeYears           = 120
	maxDaysSinceAdmission = 30
	maxHistoryKeywordSum  = 35
	maxSeriousScore       = 40
	allergyScoreWeight    = 4
	prescriptionWeight    = 5
)

type Extractor struct {
	tables KeywordTables
	clock  timeutil.Clock
}

func NewExtractor(tables KeywordTables, clock timeutil.Clock) *Extractor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Extractor{tables: tables.normalized(), clock: clock}
}

// Tables returns the keyword tables the extractor matches against.
func (e *Extractor) Tables() KeywordTables {
	return e.tables
}

// ExtractNow extracts features using the clock's current date.
func (e *Extractor) ExtractNow(record Record) models.FeatureVector {
	return e.Extract(record, e.clock.Now())
}

// Extract maps a record onto the feature schema as of the reference date.
// Unparsable fields fall back to zero values; the result always validates.
func (e *Extractor) Extract(record Record, reference time.Time) models.FeatureVector {
	reference = reference.UTC()
	var vec models.FeatureVector

	if dob, err := ParseDate("date_of_birth", record.DateOfBirth()); err == nil {
		age := math.Floor(float64(timeutil.DaysBetween(dob, reference)) / 365)
		vec.AgeYears = clamp(age, 0, maxAgeYears)
	} else {
		e.logDataError(record, err)
	}

	if admitted, err := ParseDate("admission_date", record.AdmissionDate()); err == nil {
		days := math.Max(0, float64(timeutil.DaysBetween(admitted, reference)))
		vec.StayDays = days
		vec.DaysSinceAdmission = math.Min(days, maxDaysSinceAdmission)
	} else {
		e.logDataError(record, err)
	}

	allergies := AsList(record.AllergyList())
	medications := AsList(record.MedicationList())
	prescriptions := AsList(record.CurrentPrescriptionList())
	history := AsList(record.MedicalHistoryList())
	pastHistory := AsList(record.PastMedicalHistoryList())
	primary := strings.TrimSpace(record.PrimaryDiagnosis())

	combined := make([]string, 0, len(history)+len(pastHistory)+1)
	combined = append(combined, history...)
	combined = append(combined, pastHistory...)
	if primary != "" {
		combined = append(combined, primary)
	}

	vec.AllergyCount = float64(len(allergies))
	vec.MedicationCount = float64(len(medications) + len(prescriptions))
	vec.CurrentPrescriptionCount = float64(len(prescriptions))
	vec.HistoryCount = float64(len(history))
	if primary != "" {
		vec.HistoryCount++
	}
	vec.PastHistoryCount = float64(len(pastHistory))

	vec.HighRiskAllergyCount = float64(countMatching(allergies, e.tables.HighRiskAllergies))
	vec.HighRiskPrescriptionCount = float64(countMatching(prescriptions, e.tables.HighRiskPrescriptions))
	vec.HighRiskHistoryCount = float64(countMatching(combined, e.tables.HighRiskHistory))

	keywordScore := math.Min(maxHistoryKeywordSum, weightedMatch(strings.Join(combined, " "), e.tables.SeriousConditions))
	serious := keywordScore +
		allergyScoreWeight*vec.HighRiskAllergyCount +
		prescriptionWeight*vec.HighRiskPrescriptionCount
	vec.SeriousConditionScore = math.Min(maxSeriousScore, serious)

	vec.Gender = normalizeGender(record.PatientGender())
	vec.Status = strings.ToLower(strings.TrimSpace(record.PatientStatus()))
	return vec
}

func (e *Extractor) logDataError(record Record, err error) {
	var dataErr *DataError
	if !errors.As(err, &dataErr) {
		return
	}
	logger.Get().WithFields(logrus.Fields{
		"patient_id": record.PatientID(),
		"field":      dataErr.Field,
	}).Debug("defaulting unparsable field")
}

// normalizeGender trims and lower-cases; live records keep whatever value
// they carry, only empty input maps to "unknown".
func normalizeGender(raw string) string {
	g := strings.ToLower(strings.TrimSpace(raw))
	if g == "" {
		return models.GenderUnknown
	}
	return g
}

// BucketGender restricts a gender value to male, female or unknown.
func BucketGender(raw string) string {
	switch g := strings.ToLower(strings.TrimSpace(raw)); g {
	case models.GenderMale, models.GenderFemale:
		return g
	default:
		return models.GenderUnknown
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
