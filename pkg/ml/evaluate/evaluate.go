// Package evaluate scores binary probability forecasts.
package evaluate

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrSingleClass is returned by ranking metrics when only one class is present.
var ErrSingleClass = errors.New("metric undefined for a single class")

type Report struct {
	ROCAUC           float64 `json:"roc_auc"`
	AveragePrecision float64 `json:"avg_precision"`
	Brier            float64 `json:"brier"`
}

// Composite is the model-selection objective: average precision dominates,
// discrimination contributes, calibration error is penalised.
func (r Report) Composite() float64 {
	return 0.70*r.AveragePrecision + 0.30*r.ROCAUC - 0.05*r.Brier
}

func Evaluate(labels []int, probs []float64) (Report, error) {
	auc, err := ROCAUC(labels, probs)
	if err != nil {
		return Report{}, err
	}
	ap, err := AveragePrecision(labels, probs)
	if err != nil {
		return Report{}, err
	}
	return Report{ROCAUC: auc, AveragePrecision: ap, Brier: Brier(labels, probs)}, nil
}

// ROCAUC integrates the ROC curve with the trapezoidal rule.
func ROCAUC(labels []int, probs []float64) (float64, error) {
	if !bothClasses(labels) {
		return 0, ErrSingleClass
	}
	y, classes := sortedScores(labels, probs)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// AveragePrecision is the step-wise area under the precision-recall curve:
// sum over thresholds of (R_n - R_{n-1}) * P_n, ties grouped together.
func AveragePrecision(labels []int, probs []float64) (float64, error) {
	if !bothClasses(labels) {
		return 0, ErrSingleClass
	}
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return probs[order[a]] > probs[order[b]] })

	var totalPos float64
	for _, y := range labels {
		if y == 1 {
			totalPos++
		}
	}

	var tp, fp, prevRecall, ap float64
	for i := 0; i < len(order); {
		threshold := probs[order[i]]
		for i < len(order) && probs[order[i]] == threshold {
			if labels[order[i]] == 1 {
				tp++
			} else {
				fp++
			}
			i++
		}
		recall := tp / totalPos
		precision := tp / (tp + fp)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
	}
	return ap, nil
}

// Brier is the mean squared difference between probability and outcome.
func Brier(labels []int, probs []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	var sum float64
	for i, y := range labels {
		d := probs[i] - float64(y)
		sum += d * d
	}
	return sum / float64(len(labels))
}

// Quantile returns the p-quantile of values by linear interpolation of the
// empirical distribution.
func Quantile(p float64, values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

func sortedScores(labels []int, probs []float64) ([]float64, []bool) {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })
	y := make([]float64, len(idx))
	classes := make([]bool, len(idx))
	for i, j := range idx {
		y[i] = probs[j]
		classes[i] = labels[j] == 1
	}
	return y, classes
}

func bothClasses(labels []int) bool {
	var pos, neg bool
	for _, y := range labels {
		if y == 1 {
			pos = true
		} else {
			neg = true
		}
	}
	return pos && neg
}
