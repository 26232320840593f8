package features

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WeightedKeyword scores a serious condition when its keyword appears in the
// combined history text.
type WeightedKeyword struct {
	Keyword string  `yaml:"keyword" json:"keyword"`
	Weight  float64 `yaml:"weight" json:"weight"`
}

// KeywordTables drives all keyword matching. Matching is a case-insensitive
// substring test.
type KeywordTables struct {
	HighRiskAllergies     []string          `yaml:"high_risk_allergies" json:"high_risk_allergies"`
	HighRiskPrescriptions []string          `yaml:"high_risk_prescriptions" json:"high_risk_prescriptions"`
	HighRiskHistory       []string          `yaml:"high_risk_history" json:"high_risk_history"`
	SeriousConditions     []WeightedKeyword `yaml:"serious_conditions" json:"serious_conditions"`
}

func LoadKeywordTables(path string) (KeywordTables, error) {
	if path == "" {
		return DefaultKeywordTables(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultKeywordTables(), err
	}

	var tables KeywordTables
	if err := yaml.Unmarshal(content, &tables); err != nil {
		return KeywordTables{}, err
	}
	if err := tables.Validate(); err != nil {
		return KeywordTables{}, err
	}
	return tables.normalized(), nil
}

func (t KeywordTables) Validate() error {
	if len(t.HighRiskAllergies) == 0 && len(t.HighRiskPrescriptions) == 0 &&
		len(t.HighRiskHistory) == 0 && len(t.SeriousConditions) == 0 {
		return errors.New("no keyword tables configured")
	}
	for _, wk := range t.SeriousConditions {
		if strings.TrimSpace(wk.Keyword) == "" {
			return errors.New("serious condition keyword is empty")
		}
		if wk.Weight < 0 {
			return fmt.Errorf("serious condition %q has negative weight", wk.Keyword)
		}
	}
	return nil
}

func (t KeywordTables) normalized() KeywordTables {
	out := KeywordTables{
		HighRiskAllergies:     lowerAll(t.HighRiskAllergies),
		HighRiskPrescriptions: lowerAll(t.HighRiskPrescriptions),
		HighRiskHistory:       lowerAll(t.HighRiskHistory),
	}
	for _, wk := range t.SeriousConditions {
		out.SeriousConditions = append(out.SeriousConditions, WeightedKeyword{
			Keyword: strings.ToLower(strings.TrimSpace(wk.Keyword)),
			Weight:  wk.Weight,
		})
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func DefaultKeywordTables() KeywordTables {
	return KeywordTables{
		HighRiskAllergies: []string{
			"penicillin", "amoxicillin", "cephalosporin", "sulfa", "latex",
			"peanut", "shellfish", "anaphyla", "contrast", "iodine",
			"aspirin", "nsaid", "codeine", "morphine", "bee sting",
		},
		HighRiskPrescriptions: []string{
			"warfarin", "heparin", "enoxaparin", "apixaban", "rivaroxaban",
			"insulin", "oxycodone", "morphine", "fentanyl", "hydromorphone",
			"digoxin", "amiodarone", "methotrexate", "chemotherapy", "lithium",
			"clozapine", "tacrolimus", "prednisone",
		},
		HighRiskHistory: []string{
			"heart failure", "copd", "chronic kidney", "ckd", "cancer",
			"stroke", "sepsis", "cirrhosis", "myocardial infarction", "dialysis",
			"pneumonia", "transplant", "diabetes", "atrial fibrillation",
		},
		SeriousConditions: []WeightedKeyword{
			{Keyword: "sepsis", Weight: 12},
			{Keyword: "respiratory failure", Weight: 12},
			{Keyword: "heart failure", Weight: 10},
			{Keyword: "metastatic", Weight: 10},
			{Keyword: "cancer", Weight: 8},
			{Keyword: "stroke", Weight: 9},
			{Keyword: "myocardial infarction", Weight: 9},
			{Keyword: "cirrhosis", Weight: 8},
			{Keyword: "dialysis", Weight: 8},
			{Keyword: "transplant", Weight: 8},
			{Keyword: "copd", Weight: 7},
			{Keyword: "chronic kidney", Weight: 7},
			{Keyword: "pneumonia", Weight: 6},
			{Keyword: "atrial fibrillation", Weight: 5},
			{Keyword: "diabetes", Weight: 4},
			{Keyword: "hypertension", Weight: 2},
		},
	}
}

// countMatching returns how many entries contain at least one keyword.
func countMatching(entries []string, keywords []string) int {
	count := 0
	for _, entry := range entries {
		if containsAny(strings.ToLower(entry), keywords) {
			count++
		}
	}
	return count
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// weightedMatch sums the weight of every serious-condition keyword present
// in text. Each keyword counts once.
func weightedMatch(text string, table []WeightedKeyword) float64 {
	text = strings.ToLower(text)
	var total float64
	for _, wk := range table {
		if wk.Keyword != "" && strings.Contains(text, wk.Keyword) {
			total += wk.Weight
		}
	}
	return total
}
