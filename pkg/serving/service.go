package serving

import (
	"errors"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/observability/metrics"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
	"github.com/synaptica-ai/riskscore/pkg/risk/heuristic"
	"github.com/synaptica-ai/riskscore/pkg/serving/predictor"
	"github.com/synaptica-ai/riskscore/pkg/storage"
)

// ErrInvalidRecord is the only error Predict returns.
var ErrInvalidRecord = errors.New("a patient record is required")

const maxFactors = 5

// Service picks between supervised and heuristic scoring. Any problem with
// the artifact degrades to heuristic scoring instead of failing.
type Service struct {
	extractor *features.Extractor
	scorer    *heuristic.Scorer
	predictor *predictor.Predictor
}

func NewService(extractor *features.Extractor, scorer *heuristic.Scorer, p *predictor.Predictor) *Service {
	if scorer == nil {
		scorer = heuristic.NewScorer()
	}
	return &Service{extractor: extractor, scorer: scorer, predictor: p}
}

func (s *Service) Predictor() *predictor.Predictor { return s.predictor }

// Predict extracts features for record as of today and scores them.
func (s *Service) Predict(record features.Record) (models.RiskPrediction, error) {
	if record == nil {
		return models.RiskPrediction{}, ErrInvalidRecord
	}
	return s.Score(s.extractor.ExtractNow(record)), nil
}

// Features exposes the extraction step so callers can cache the vector
// they scored.
func (s *Service) Features(record features.Record) (models.FeatureVector, error) {
	if record == nil {
		return models.FeatureVector{}, ErrInvalidRecord
	}
	return s.extractor.ExtractNow(record), nil
}

// Score scores an already extracted feature vector.
func (s *Service) Score(v models.FeatureVector) models.RiskPrediction {
	if s.predictor != nil {
		probability, artifact, err := s.predictor.Predict(v)
		switch {
		case err == nil:
			metrics.ObservePrediction(models.ScoringModeSupervised)
			return supervised(probability, artifact)
		case errors.Is(err, storage.ErrNoArtifact):
		default:
			metrics.ObserveArtifactFallback()
			logger.Get().WithError(err).Warn("Risk model unavailable, using heuristic scoring")
		}
	}
	metrics.ObservePrediction(models.ScoringModeHeuristic)
	return s.heuristicPrediction(v)
}

func (s *Service) heuristicPrediction(v models.FeatureVector) models.RiskPrediction {
	probability, factors := s.scorer.Explain(v)
	return models.RiskPrediction{
		Probability:  models.Round4(probability),
		Band:         models.RiskBandFor(probability),
		ModelVersion: models.HeuristicModelVersion,
		TopFactors:   factors,
		ScoringMode:  models.ScoringModeHeuristic,
	}
}

// supervised reports the artifact's global top weights as factors; they are
// not per-patient attributions.
func supervised(probability float64, artifact *storage.Artifact) models.RiskPrediction {
	factors := make([]models.RiskFactor, 0, maxFactors)
	for _, w := range artifact.TopFeatures {
		if len(factors) == maxFactors {
			break
		}
		direction := models.DirectionUp
		if w.Weight < 0 {
			direction = models.DirectionDown
		}
		factors = append(factors, models.RiskFactor{
			Feature:      w.Name,
			Direction:    direction,
			Contribution: models.Round4(w.Weight),
		})
	}
	return models.RiskPrediction{
		Probability:  models.Round4(probability),
		Band:         models.RiskBandFor(probability),
		ModelVersion: artifact.ModelVersion,
		TopFactors:   factors,
		ScoringMode:  models.ScoringModeSupervised,
	}
}
