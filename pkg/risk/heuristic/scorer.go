// Package heuristic implements the rule-based fallback score used when no
// trained model is available.
package heuristic

import (
	"math"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
)

const (
	BaseRisk = 0.08
	MinRisk  = 0.01
	MaxRisk  = 0.95

	MaxFactors = 5

	maxSeriousContribution = 0.15
	seriousDivisor         = 250.0
)

// Rule is one additive adjustment. Contribution is fixed unless Amount is
// set, in which case the contribution depends on the vector.
type Rule struct {
	Name         string
	Contribution float64
	Applies      func(v models.FeatureVector) bool
	Amount       func(v models.FeatureVector) float64
}

func (r Rule) contribution(v models.FeatureVector) float64 {
	if r.Amount != nil {
		return r.Amount(v)
	}
	return r.Contribution
}

// DefaultRules is evaluated in order; triggered rules become the explanation
// in the same order.
var DefaultRules = []Rule{
	{Name: "status=critical", Contribution: 0.20, Applies: func(v models.FeatureVector) bool { return v.Status == models.StatusCritical }},
	{Name: "days_since_admission>=14", Contribution: 0.10, Applies: func(v models.FeatureVector) bool { return v.DaysSinceAdmission >= 14 }},
	{Name: "age>=75", Contribution: 0.08, Applies: func(v models.FeatureVector) bool { return v.AgeYears >= 75 }},
	{Name: "history_count>=4", Contribution: 0.06, Applies: func(v models.FeatureVector) bool { return v.HistoryCount >= 4 }},
	{Name: "past_history_count>=2", Contribution: 0.04, Applies: func(v models.FeatureVector) bool { return v.PastHistoryCount >= 2 }},
	{Name: "no_medications", Contribution: -0.04, Applies: func(v models.FeatureVector) bool { return v.MedicationCount == 0 }},
	{Name: "allergy_count>=2", Contribution: 0.03, Applies: func(v models.FeatureVector) bool { return v.AllergyCount >= 2 }},
	{Name: "high_risk_allergy", Contribution: 0.06, Applies: func(v models.FeatureVector) bool { return v.HighRiskAllergyCount >= 1 }},
	{Name: "current_prescription_count>=3", Contribution: 0.04, Applies: func(v models.FeatureVector) bool { return v.CurrentPrescriptionCount >= 3 }},
	{Name: "high_risk_prescription", Contribution: 0.06, Applies: func(v models.FeatureVector) bool { return v.HighRiskPrescriptionCount >= 1 }},
	{Name: "high_risk_history", Contribution: 0.08, Applies: func(v models.FeatureVector) bool { return v.HighRiskHistoryCount >= 1 }},
	{Name: "length_of_stay>=60", Contribution: 0.05, Applies: func(v models.FeatureVector) bool { return v.StayDays >= 60 }},
	{Name: "length_of_stay>=180", Contribution: 0.05, Applies: func(v models.FeatureVector) bool { return v.StayDays >= 180 }},
	{
		Name:    "serious_condition_score",
		Applies: func(v models.FeatureVector) bool { return v.SeriousConditionScore > 0 },
		Amount: func(v models.FeatureVector) float64 {
			return math.Min(maxSeriousContribution, v.SeriousConditionScore/seriousDivisor)
		},
	},
}

type Scorer struct {
	rules []Rule
}

func NewScorer() *Scorer {
	return &Scorer{rules: DefaultRules}
}

// NewScorerWithRules is used to evaluate alternative rule tables.
func NewScorerWithRules(rules []Rule) *Scorer {
	return &Scorer{rules: rules}
}

// Score returns the clamped probability.
func (s *Scorer) Score(v models.FeatureVector) float64 {
	p, _ := s.Explain(v)
	return p
}

// Explain returns the clamped probability and at most MaxFactors triggered
// rules. With no triggered rule the explanation is a single baseline factor.
func (s *Scorer) Explain(v models.FeatureVector) (float64, []models.RiskFactor) {
	score := BaseRisk
	var factors []models.RiskFactor
	for _, rule := range s.rules {
		if !rule.Applies(v) {
			continue
		}
		c := rule.contribution(v)
		score += c
		factors = append(factors, factor(rule.Name, c))
	}
	score = math.Max(MinRisk, math.Min(MaxRisk, score))

	if len(factors) == 0 {
		return score, []models.RiskFactor{factor("baseline_risk", models.Round4(score))}
	}
	if len(factors) > MaxFactors {
		factors = factors[:MaxFactors]
	}
	return score, factors
}

func factor(name string, contribution float64) models.RiskFactor {
	direction := models.DirectionUp
	if contribution < 0 {
		direction = models.DirectionDown
	}
	return models.RiskFactor{
		Feature:      name,
		Direction:    direction,
		Contribution: models.Round4(contribution),
	}
}
