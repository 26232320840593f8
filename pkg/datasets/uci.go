// Package datasets maps external historical encounter datasets onto the
// risk feature schema for bootstrap training.
package datasets

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
)

const (
	DefaultURL      = "https://archive.ics.uci.edu/static/public/296/diabetes+130-us+hospitals+for+years+1999-2008.zip"
	CSVName         = "diabetic_data.csv"
	readmittedLabel = "<30"
	defaultAgeYears = 45
)

// RequiredColumns must all be present in the header row.
var RequiredColumns = []string{
	"age", "time_in_hospital", "num_medications", "number_diagnoses",
	"number_inpatient", "number_outpatient", "number_emergency", "gender", "readmitted",
}

var ageBracket = regexp.MustCompile(`^\[(\d+)-(\d+)\)$`)

// UCIProvenance describes the Diabetes 130-US hospitals dataset and how each
// of its columns stands in for a feature.
func UCIProvenance() *models.DatasetProvenance {
	return &models.DatasetProvenance{
		Name:      "Diabetes 130-US hospitals for years 1999-2008",
		Publisher: "UCI Machine Learning Repository",
		DOI:       "10.24432/C5230J",
		URL:       "https://archive.ics.uci.edu/dataset/296/diabetes-130-us-hospitals-for-years-1999-2008",
		Target:    "readmitted == '<30' (30-day readmission positive class)",
		Mapping: map[string]string{
			models.FeatureAgeYears:                  "age bracket midpoint -> patient age",
			models.FeatureDaysSinceAdmission:        "time_in_hospital clamped to [0,30] -> days_since_admission",
			models.FeatureMedicationCount:           "num_medications -> medication_count",
			models.FeatureCurrentPrescriptionCount:  "num_medications/2 -> current prescription count proxy",
			models.FeatureAllergyCount:              "number_emergency capped at 4 -> allergy burden proxy",
			models.FeatureHighRiskAllergyCount:      "number_emergency>=2 -> high-risk allergy proxy",
			models.FeatureHistoryCount:              "number_diagnoses -> medical history count proxy",
			models.FeatureHighRiskHistoryCount:      "number_inpatient+number_emergency>=2 -> high-risk history proxy",
			models.FeaturePastHistoryCount:          "number_inpatient+number_outpatient+number_emergency -> past history burden proxy",
			models.FeatureHighRiskPrescriptionCount: "num_medications>=12 -> high-risk prescription proxy",
			models.FeatureSeriousConditionScore:     "not available -> 0",
			models.FeatureGender:                    "gender bucketed to male/female/unknown",
		},
	}
}

// AgeBracketYears maps "[40-50)" to 45. Anything else maps to 45.
func AgeBracketYears(raw string) float64 {
	m := ageBracket.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return defaultAgeYears
	}
	lo, _ := strconv.Atoi(m[1])
	hi, _ := strconv.Atoi(m[2])
	return float64((lo + hi) / 2)
}

// MapEncounter converts one dataset row, keyed by column name, into a
// training example.
func MapEncounter(row map[string]string) models.TrainingExample {
	timeInHospital := intField(row, "time_in_hospital")
	medications := max(0, intField(row, "num_medications"))
	diagnoses := intField(row, "number_diagnoses")
	inpatient := intField(row, "number_inpatient")
	outpatient := intField(row, "number_outpatient")
	emergency := intField(row, "number_emergency")

	v := models.FeatureVector{
		AgeYears:                 AgeBracketYears(row["age"]),
		DaysSinceAdmission:       float64(min(30, max(0, timeInHospital))),
		MedicationCount:          float64(medications),
		CurrentPrescriptionCount: float64(medications / 2),
		AllergyCount:             float64(max(0, min(4, emergency))),
		HistoryCount:             float64(max(0, diagnoses)),
		PastHistoryCount:         float64(max(0, inpatient+outpatient+emergency)),
		Gender:                   features.BucketGender(row["gender"]),
		StayDays:                 float64(max(0, timeInHospital)),
	}
	if emergency >= 2 {
		v.HighRiskAllergyCount = 1
	}
	if inpatient+emergency >= 2 {
		v.HighRiskHistoryCount = 1
	}
	if medications >= 12 {
		v.HighRiskPrescriptionCount = 1
	}

	label := 0
	if strings.TrimSpace(row["readmitted"]) == readmittedLabel {
		label = 1
	}
	return models.TrainingExample{Features: v, Label: label}
}

func intField(row map[string]string, name string) int {
	raw := strings.TrimSpace(row[name])
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f)
	}
	return 0
}
