// Package calibration maps linear decision scores to calibrated
// probabilities with Platt scaling fitted out of fold.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/synaptica-ai/riskscore/pkg/ml/linear"
	"github.com/synaptica-ai/riskscore/pkg/ml/sampling"
)

const MethodSigmoid = "sigmoid"

// ErrTooFewSamples is returned when a fold lacks one of the classes.
var ErrTooFewSamples = errors.New("calibration fold lacks both classes")

// Platt maps a decision score f to 1/(1+exp(A*f+B)).
type Platt struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func (p Platt) Apply(f float64) float64 {
	z := p.A*f + p.B
	if z >= 0 {
		e := math.Exp(-z)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(z))
}

func (p Platt) Validate() error {
	if math.IsNaN(p.A) || math.IsInf(p.A, 0) || math.IsNaN(p.B) || math.IsInf(p.B, 0) {
		return fmt.Errorf("platt parameters a=%v b=%v are not finite", p.A, p.B)
	}
	return nil
}

// Member is one fold's estimator together with the sigmoid fitted on the
// fold it did not see.
type Member struct {
	Estimator linear.Pipeline `json:"estimator"`
	Platt     Platt           `json:"platt"`
}

type Calibrator struct {
	Method  string   `json:"method"`
	Folds   int      `json:"folds"`
	Members []Member `json:"members"`
}

// Label identifies the calibrator in artifacts, e.g. "sigmoid-cv5".
func (c *Calibrator) Label() string {
	if c == nil || len(c.Members) == 0 {
		return "none"
	}
	return fmt.Sprintf("%s-cv%d", c.Method, c.Folds)
}

// PredictProba averages the calibrated probability of every member.
func (c *Calibrator) PredictProba(row linear.Row) float64 {
	var sum float64
	for _, m := range c.Members {
		sum += m.Platt.Apply(m.Estimator.Decision(row))
	}
	return sum / float64(len(c.Members))
}

// FitSigmoidCV trains one estimator per stratified fold on the remaining
// folds and fits a Platt sigmoid on the held-out decisions.
func FitSigmoidCV(ctx context.Context, numericColumns []string, categoricalColumn string, rows []linear.Row, labels []int, opts linear.Options, folds int, seed int64) (*Calibrator, error) {
	cal := &Calibrator{Method: MethodSigmoid, Folds: folds}
	for _, held := range sampling.StratifiedKFold(labels, folds, seed) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fit := sampling.Complement(len(rows), held)
		fitRows, fitLabels := subset(rows, labels, fit)
		estimator, _, err := linear.TrainLogistic(numericColumns, categoricalColumn, fitRows, fitLabels, opts)
		if err != nil {
			return nil, err
		}

		decisions := make([]float64, len(held))
		heldLabels := make([]int, len(held))
		for i, idx := range held {
			decisions[i] = estimator.Decision(rows[idx])
			heldLabels[i] = labels[idx]
		}
		platt, err := FitPlatt(decisions, heldLabels)
		if err != nil {
			return nil, err
		}
		cal.Members = append(cal.Members, Member{Estimator: estimator, Platt: platt})
	}
	return cal, nil
}

// FitPlatt fits A and B by maximum likelihood against smoothed targets
// (N+ + 1)/(N+ + 2) and 1/(N- + 2).
func FitPlatt(decisions []float64, labels []int) (Platt, error) {
	var pos, neg float64
	for _, y := range labels {
		if y == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return Platt{}, ErrTooFewSamples
	}
	hi := (pos + 1) / (pos + 2)
	lo := 1 / (neg + 2)
	targets := make([]float64, len(labels))
	for i, y := range labels {
		if y == 1 {
			targets[i] = hi
		} else {
			targets[i] = lo
		}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			var loss float64
			for i, f := range decisions {
				z := x[0]*f + x[1]
				loss += targets[i]*softplus(z) + (1-targets[i])*softplus(-z)
			}
			return loss
		},
		Grad: func(grad, x []float64) {
			grad[0], grad[1] = 0, 0
			for i, f := range decisions {
				z := x[0]*f + x[1]
				g := sigmoid(z) - (1 - targets[i])
				grad[0] += g * f
				grad[1] += g
			}
		},
	}
	init := []float64{0, math.Log((neg + 1) / (pos + 1))}
	result, err := optimize.Minimize(problem, init, &optimize.Settings{GradientThreshold: 1e-10, MajorIterations: 200}, &optimize.BFGS{})
	if result == nil || math.IsNaN(result.X[0]) || math.IsNaN(result.X[1]) {
		if err == nil {
			err = errors.New("no finite solution")
		}
		return Platt{}, fmt.Errorf("%w: platt: %v", linear.ErrSolver, err)
	}
	return Platt{A: result.X[0], B: result.X[1]}, nil
}

func subset(rows []linear.Row, labels []int, idx []int) ([]linear.Row, []float64) {
	outRows := make([]linear.Row, len(idx))
	outLabels := make([]float64, len(idx))
	for i, j := range idx {
		outRows[i] = rows[j]
		outLabels[i] = float64(labels[j])
	}
	return outRows, outLabels
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
