package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/ml/calibration"
	"github.com/synaptica-ai/riskscore/pkg/ml/evaluate"
	"github.com/synaptica-ai/riskscore/pkg/ml/linear"
	"github.com/synaptica-ai/riskscore/pkg/ml/sampling"
	"github.com/synaptica-ai/riskscore/pkg/storage"
)

const (
	holdoutFraction    = 0.2
	calibrationFolds   = 5
	selfCheckRows      = 8
	topFeatureCount    = 12
	minValidationClass = 10
	minValidationRows  = 300
	minCalibrateClass  = 25
	minCalibrateRows   = 500
)

// CandidateC are the inverse regularisation strengths swept on the holdout.
var CandidateC = []float64{0.2, 0.5, 1.0, 2.0, 4.0}

// scoreFunc returns the probability the persisted artifact would serve for a
// row, before any clamping.
type scoreFunc func(a *storage.Artifact, row linear.Row) float64

func servedProbability(a *storage.Artifact, row linear.Row) float64 {
	if a.Calibrator != nil {
		return a.Calibrator.PredictProba(row)
	}
	return a.Estimator.PredictProba(row)
}

type fitOutput struct {
	artifact      *storage.Artifact
	holdoutProbs  []float64
	holdoutLabels []int
}

type dataset struct {
	rows      []linear.Row
	labels    []int
	positives int
}

func newDataset(examples []models.TrainingExample) dataset {
	d := dataset{
		rows:   make([]linear.Row, len(examples)),
		labels: make([]int, len(examples)),
	}
	for i, ex := range examples {
		d.rows[i] = linear.Row{Numeric: ex.Features.Numeric(), Category: ex.Features.Gender}
		d.labels[i] = ex.Label
		d.positives += ex.Label
	}
	return d
}

func (d dataset) subset(idx []int) ([]linear.Row, []float64, []int) {
	rows := make([]linear.Row, len(idx))
	y := make([]float64, len(idx))
	yi := make([]int, len(idx))
	for i, j := range idx {
		rows[i] = d.rows[j]
		y[i] = float64(d.labels[j])
		yi[i] = d.labels[j]
	}
	return rows, y, yi
}

func (d dataset) floatLabels() []float64 {
	y := make([]float64, len(d.labels))
	for i, v := range d.labels {
		y[i] = float64(v)
	}
	return y
}

// fit runs model selection, the final refit, optional calibration and the
// self-check, and assembles an unsaved artifact.
func fit(ctx context.Context, examples []models.TrainingExample, seed int64, now time.Time, score scoreFunc) (*fitOutput, error) {
	log := logger.Get().WithField("component", "training")
	d := newDataset(examples)
	n := len(d.rows)
	negatives := n - d.positives
	numeric := models.NumericFeatureColumns
	categorical := models.FeatureGender
	opts := linear.Options{C: 1.0, Balanced: true, MaxIterations: 2000}

	metrics := map[string]float64{}
	out := &fitOutput{}

	if d.positives >= minValidationClass && negatives >= minValidationClass && n >= minValidationRows {
		trainIdx, testIdx := sampling.StratifiedSplit(d.labels, holdoutFraction, seed)
		trainRows, trainY, _ := d.subset(trainIdx)
		testRows, _, testY := d.subset(testIdx)

		best := math.Inf(-1)
		for _, c := range CandidateC {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			candidateOpts := opts
			candidateOpts.C = c
			candidate, _, err := linear.TrainLogistic(numeric, categorical, trainRows, trainY, candidateOpts)
			if err != nil {
				return nil, &DependencyError{Stage: fmt.Sprintf("model selection (C=%g)", c), Err: err}
			}
			probs := make([]float64, len(testRows))
			for i, row := range testRows {
				probs[i] = candidate.PredictProba(row)
			}
			report, err := evaluate.Evaluate(testY, probs)
			if err != nil {
				return nil, fmt.Errorf("evaluate holdout: %w", err)
			}
			log.WithFields(map[string]interface{}{
				"c":             c,
				"roc_auc":       report.ROCAUC,
				"avg_precision": report.AveragePrecision,
				"brier":         report.Brier,
			}).Debug("Scored regularisation candidate")
			if composite := report.Composite(); composite > best {
				best = composite
				opts.C = c
				out.holdoutProbs = probs
				out.holdoutLabels = testY
				metrics["roc_auc"] = report.ROCAUC
				metrics["avg_precision"] = report.AveragePrecision
				metrics["brier"] = report.Brier
			}
		}
		metrics["selected_c"] = opts.C
		log.WithField("selected_c", opts.C).Info("Selected regularisation strength")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	estimator, _, err := linear.TrainLogistic(numeric, categorical, d.rows, d.floatLabels(), opts)
	if err != nil {
		return nil, &DependencyError{Stage: "final fit", Err: err}
	}

	if out.holdoutProbs == nil {
		probs := make([]float64, n)
		for i, row := range d.rows {
			probs[i] = estimator.PredictProba(row)
		}
		if report, err := evaluate.Evaluate(d.labels, probs); err == nil {
			metrics["train_roc_auc"] = report.ROCAUC
			metrics["train_avg_precision"] = report.AveragePrecision
			metrics["train_brier"] = report.Brier
		}
	}

	var calibrator *calibration.Calibrator
	if d.positives >= minCalibrateClass && negatives >= minCalibrateClass && n >= minCalibrateRows {
		calibrator, err = calibration.FitSigmoidCV(ctx, numeric, categorical, d.rows, d.labels, opts, calibrationFolds, seed)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.WithError(err).Warn("Calibration failed, continuing without calibrator")
			calibrator = nil
		}
	}

	baseRate := float64(d.positives) / float64(n)
	artifact := &storage.Artifact{
		ModelVersion:    storage.NewVersion(now),
		CreatedAt:       now.UTC(),
		FeatureColumns:  models.FeatureColumnOrder(),
		Estimator:       estimator,
		Calibrator:      calibrator,
		CalibratorLabel: calibrator.Label(),
		TopFeatures:     estimator.TopWeights(topFeatureCount),
		Metrics:         metrics,
		BaseRate:        models.Round4(baseRate),
		Rows:            n,
		Positives:       d.positives,
	}

	checked, err := selfCheck(artifact, d.rows, seed, score)
	if err != nil {
		return nil, err
	}
	metrics["validation_instances"] = float64(checked)

	artifact.Thresholds = bandThresholds(out.holdoutProbs, baseRate)
	out.artifact = artifact
	return out, nil
}

// selfCheck scores up to eight sampled rows with the estimator that will be
// served and fails if any probability is non-finite or outside [0,1].
func selfCheck(a *storage.Artifact, rows []linear.Row, seed int64, score scoreFunc) (int, error) {
	idx := sampling.Sample(len(rows), min(selfCheckRows, len(rows)), seed)
	if len(idx) == 0 {
		return 0, fmt.Errorf("%w: no rows to score", ErrSelfCheck)
	}
	for _, i := range idx {
		p := score(a, rows[i])
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return 0, fmt.Errorf("%w: non-finite probability", ErrSelfCheck)
		}
		if p < 0 || p > 1 {
			return 0, fmt.Errorf("%w: probability %v outside [0, 1]", ErrSelfCheck, p)
		}
	}
	return len(idx), nil
}

// bandThresholds derives audit thresholds from holdout quantiles when a
// holdout exists, otherwise from the base rate.
func bandThresholds(holdout []float64, baseRate float64) storage.Thresholds {
	var medium, high float64
	if len(holdout) > 0 {
		medium = clamp(evaluate.Quantile(0.78, holdout), 0.07, 0.22)
		high = math.Max(medium+0.06, math.Min(0.55, evaluate.Quantile(0.93, holdout)))
	} else {
		medium = clamp(baseRate, 0.08, 0.20)
		high = math.Max(medium+0.05, math.Min(0.35, 2*baseRate))
	}
	return storage.Thresholds{Medium: models.Round4(medium), High: models.Round4(high)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// isDependency reports whether err came from the numerical solver.
func isDependency(err error) bool {
	var dep *DependencyError
	return errors.As(err, &dep)
}
