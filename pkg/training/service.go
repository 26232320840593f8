package training

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/common/timeutil"
	"github.com/synaptica-ai/riskscore/pkg/datasets"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
	"github.com/synaptica-ai/riskscore/pkg/risk/labels"
	"github.com/synaptica-ai/riskscore/pkg/storage"
)

const eventSource = "training-service"

// Service runs blocking, one-shot training jobs against an artifact
// directory. It must not run concurrently with another trainer on the same
// directory.
type Service struct {
	store           *storage.ArtifactStore
	source          PatientSource
	builder         *labels.Builder
	clock           timeutil.Clock
	recorder        RunRecorder
	notifier        Notifier
	fetcher         *datasets.Fetcher
	reliabilityPlot bool
	score           scoreFunc
}

func NewService(store *storage.ArtifactStore, source PatientSource, extractor *features.Extractor, clock timeutil.Clock) *Service {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if extractor == nil {
		extractor = features.NewExtractor(features.DefaultKeywordTables(), clock)
	}
	return &Service{
		store:   store,
		source:  source,
		builder: labels.NewBuilder(extractor, clock),
		clock:   clock,
		score:   servedProbability,
	}
}

func (s *Service) WithRecorder(r RunRecorder) *Service {
	s.recorder = r
	return s
}

func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithFetcher lets external-dataset runs download the dataset when the
// configured path does not exist.
func (s *Service) WithFetcher(f *datasets.Fetcher) *Service {
	s.fetcher = f
	return s
}

func (s *Service) WithReliabilityPlot(enabled bool) *Service {
	s.reliabilityPlot = enabled
	return s
}

// Train loads examples, validates them, fits and persists a new artifact.
// Nothing is written unless every stage succeeds.
func (s *Service) Train(ctx context.Context, req Request) (Result, error) {
	req = req.withDefaults()
	log := logger.Get().WithFields(logrus.Fields{
		"data_source": req.DataSource,
		"min_rows":    req.MinRows,
	})

	runID := s.startRun(ctx, req)
	result, err := s.train(ctx, req, log)
	if err != nil {
		log.WithError(err).WithField("dependency", isDependency(err)).Error("Training failed")
		s.failRun(ctx, runID, err)
		return Result{}, err
	}
	s.completeRun(ctx, runID, result)
	s.announce(ctx, result)
	log.WithFields(logrus.Fields{
		"model_version": result.ModelVersion,
		"rows":          result.Rows,
		"positives":     result.Positives,
		"calibrator":    result.CalibratorLabel,
	}).Info("Training completed")
	return result, nil
}

func (s *Service) train(ctx context.Context, req Request, log *logrus.Entry) (Result, error) {
	examples, provenance, err := s.loadExamples(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if err := validateExamples(examples, req); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	log.WithField("rows", len(examples)).Info("Fitting risk model")
	out, err := fit(ctx, examples, req.Seed, s.clock.Now(), s.score)
	if err != nil {
		return Result{}, err
	}
	artifact := out.artifact
	artifact.DataSource = req.DataSource
	artifact.Dataset = provenance

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	path, err := s.store.Save(artifact)
	if err != nil {
		return Result{}, fmt.Errorf("persist artifact: %w", err)
	}

	if s.reliabilityPlot && len(out.holdoutProbs) > 0 {
		plotPath := strings.TrimSuffix(path, ".json") + "_reliability.png"
		if err := WriteReliabilityPlot(plotPath, artifact.ModelVersion, out.holdoutProbs, out.holdoutLabels); err != nil {
			log.WithError(err).Warn("Failed to write reliability plot")
		}
	}

	return Result{
		ModelVersion:    artifact.ModelVersion,
		Rows:            artifact.Rows,
		Positives:       artifact.Positives,
		CalibratorLabel: artifact.CalibratorLabel,
		Metrics:         artifact.Metrics,
		ArtifactPath:    path,
	}, nil
}

func (s *Service) loadExamples(ctx context.Context, req Request) ([]models.TrainingExample, *models.DatasetProvenance, error) {
	switch req.DataSource {
	case SourceInternalOutcomes:
		if s.source == nil {
			return nil, nil, errors.New("no patient source configured")
		}
		patients, err := s.source.ListPatients(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list patients: %w", err)
		}
		events, err := s.source.ListOutcomeEvents(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list outcome events: %w", err)
		}
		examples, _ := s.builder.Build(patients, events)
		return examples, nil, nil

	case SourceExternalDataset:
		if req.ExternalDatasetPath == "" {
			return nil, nil, validationf("External dataset path is required for data source %q.", req.DataSource)
		}
		if s.fetcher != nil {
			if _, err := os.Stat(req.ExternalDatasetPath); errors.Is(err, os.ErrNotExist) {
				if err := s.fetcher.Ensure(ctx, req.ExternalDatasetPath); err != nil {
					return nil, nil, fmt.Errorf("fetch external dataset: %w", err)
				}
			}
		}
		ds, err := datasets.Load(req.ExternalDatasetPath, datasets.LoadOptions{MaxRows: req.MaxRows, Seed: req.Seed})
		if err != nil {
			return nil, nil, validationf("Training dataset unusable: %v", err)
		}
		return ds.Examples, ds.Provenance, nil

	default:
		return nil, nil, validationf("Unknown data source %q.", req.DataSource)
	}
}

func validateExamples(examples []models.TrainingExample, req Request) error {
	rows := len(examples)
	positives := 0
	for _, ex := range examples {
		positives += ex.Label
	}
	if rows < req.MinRows {
		return validationf("Not enough patients to train: rows=%d, required>=%d.", rows, req.MinRows)
	}
	if positives < 1 {
		return validationf("Need at least one positive label in training data.")
	}
	if positives < req.MinPositives && !req.AllowLowPositives {
		return validationf("Not enough positive labels: positives=%d, required>=%d. Use a larger data slice or lower min_positives.", positives, req.MinPositives)
	}
	if positives == rows {
		return validationf("Need at least one negative label in training data.")
	}
	for i, ex := range examples {
		if err := ex.Features.Validate(); err != nil {
			return validationf("Training example %d is malformed: %v", i, err)
		}
	}
	return nil
}

func (s *Service) startRun(ctx context.Context, req Request) uuid.UUID {
	if s.recorder == nil {
		return uuid.Nil
	}
	id, err := s.recorder.Start(ctx, req)
	if err != nil {
		logger.Get().WithError(err).Warn("Failed to record training run start")
		return uuid.Nil
	}
	return id
}

func (s *Service) completeRun(ctx context.Context, id uuid.UUID, result Result) {
	if s.recorder == nil || id == uuid.Nil {
		return
	}
	if err := s.recorder.Complete(context.WithoutCancel(ctx), id, result); err != nil {
		logger.Get().WithError(err).Warn("Failed to record training run completion")
	}
}

func (s *Service) failRun(ctx context.Context, id uuid.UUID, cause error) {
	if s.recorder == nil || id == uuid.Nil {
		return
	}
	if err := s.recorder.Fail(context.WithoutCancel(ctx), id, cause); err != nil {
		logger.Get().WithError(err).Warn("Failed to record training run failure")
	}
}

func (s *Service) announce(ctx context.Context, result Result) {
	if s.notifier == nil {
		return
	}
	data := map[string]interface{}{
		"model_version":    result.ModelVersion,
		"rows":             result.Rows,
		"positives":        result.Positives,
		"calibrator_label": result.CalibratorLabel,
		"metrics":          result.Metrics,
	}
	if err := s.notifier.PublishEvent(ctx, models.EventTypeModelTrained, eventSource, data); err != nil {
		logger.Get().WithError(err).Warn("Failed to publish model trained event")
	}
}
