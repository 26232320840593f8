package linear

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// ErrSolver is returned when the optimiser cannot produce a usable solution.
var ErrSolver = errors.New("logistic solver failed")

type Options struct {
	// C is the inverse L2 regularisation strength.
	C             float64
	Balanced      bool
	MaxIterations int
}

type Weights struct {
	Bias         float64   `json:"bias"`
	Coefficients []float64 `json:"coefficients"`
}

type Metrics struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

// Row is one model input: numeric columns in schema order plus the value of
// the single categorical column.
type Row struct {
	Numeric  []float64
	Category string
}

// Pipeline standardises numeric columns, one-hot encodes the categorical
// column and applies a logistic regression.
type Pipeline struct {
	NumericColumns    []string `json:"numeric_columns"`
	CategoricalColumn string   `json:"categorical_column"`
	Categories        []string `json:"categories"`
	Scaler            Scaler   `json:"scaler"`
	Weights           Weights  `json:"weights"`
	C                 float64  `json:"c"`
}

type NamedWeight struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

func (o Options) withDefaults() Options {
	if o.C <= 0 {
		o.C = 1.0
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 1000
	}
	return o
}

// TrainLogistic fits a Pipeline on rows/labels. Labels are 0 or 1.
func TrainLogistic(numericColumns []string, categoricalColumn string, rows []Row, labels []float64, opts Options) (Pipeline, Metrics, error) {
	opts = opts.withDefaults()
	n := len(rows)
	if n == 0 {
		return Pipeline{}, Metrics{}, fmt.Errorf("%w: no samples", ErrSolver)
	}
	if len(labels) != n {
		return Pipeline{}, Metrics{}, fmt.Errorf("%w: %d rows but %d labels", ErrSolver, n, len(labels))
	}

	p := Pipeline{
		NumericColumns:    append([]string(nil), numericColumns...),
		CategoricalColumn: categoricalColumn,
		Categories:        categories(rows),
		Scaler:            FitScaler(rows, len(numericColumns)),
		C:                 opts.C,
	}

	samples := make([][]float64, n)
	for i, row := range rows {
		samples[i] = p.Encode(row)
	}
	sampleWeights := classWeights(labels, opts.Balanced)

	weights, err := minimize(samples, labels, sampleWeights, opts)
	if err != nil {
		return Pipeline{}, Metrics{}, err
	}
	p.Weights = weights

	loss, accuracy := evaluate(weights.Coefficients, weights.Bias, samples, labels)
	return p, Metrics{Loss: loss, Accuracy: accuracy}, nil
}

// Validate checks that a decoded pipeline can score rows: the scaler and
// coefficients match the columns and every parameter is finite, with no
// zero scale.
func (p Pipeline) Validate() error {
	columns := len(p.NumericColumns)
	if columns == 0 {
		return errors.New("pipeline has no numeric columns")
	}
	if len(p.Scaler.Means) != columns || len(p.Scaler.Scales) != columns {
		return fmt.Errorf("scaler has %d means and %d scales, want %d",
			len(p.Scaler.Means), len(p.Scaler.Scales), columns)
	}
	if got, want := len(p.Weights.Coefficients), columns+len(p.Categories); got != want {
		return fmt.Errorf("pipeline has %d coefficients, want %d", got, want)
	}
	if !allFinite(p.Scaler.Means) || !allFinite(p.Scaler.Scales) {
		return errors.New("scaler has non-finite values")
	}
	for j, scale := range p.Scaler.Scales {
		if scale == 0 {
			return fmt.Errorf("scaler column %q has zero scale", p.NumericColumns[j])
		}
	}
	if !allFinite(p.Weights.Coefficients) || !allFinite([]float64{p.Weights.Bias}) {
		return errors.New("pipeline has non-finite weights")
	}
	return nil
}

// Encode transforms a row into the design vector the weights apply to.
func (p Pipeline) Encode(row Row) []float64 {
	out := make([]float64, 0, len(p.NumericColumns)+len(p.Categories))
	out = append(out, p.Scaler.Transform(row.Numeric)...)
	for _, c := range p.Categories {
		if row.Category == c {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// Decision returns the linear score before the sigmoid.
func (p Pipeline) Decision(row Row) float64 {
	return dot(p.Weights.Coefficients, p.Encode(row)) + p.Weights.Bias
}

func (p Pipeline) PredictProba(row Row) float64 {
	return Predict(p.Weights, p.Encode(row))
}

// FeatureNames names each encoded column, categorical levels as column=value.
func (p Pipeline) FeatureNames() []string {
	names := append([]string(nil), p.NumericColumns...)
	for _, c := range p.Categories {
		names = append(names, p.CategoricalColumn+"="+c)
	}
	return names
}

// TopWeights returns up to n coefficients ordered by decreasing magnitude.
func (p Pipeline) TopWeights(n int) []NamedWeight {
	names := p.FeatureNames()
	out := make([]NamedWeight, 0, len(names))
	for i, name := range names {
		if i >= len(p.Weights.Coefficients) {
			break
		}
		out = append(out, NamedWeight{Name: name, Weight: p.Weights.Coefficients[i]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Weight) > math.Abs(out[j].Weight)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func Predict(weights Weights, sample []float64) float64 {
	return sigmoid(dot(weights.Coefficients, sample) + weights.Bias)
}

// minimize solves the weighted, L2-penalised log-loss with L-BFGS. The
// objective is divided by the total sample weight; the bias is not penalised.
func minimize(samples [][]float64, labels, sampleWeights []float64, opts Options) (Weights, error) {
	featureCount := len(samples[0])
	totalWeight := floats.Sum(sampleWeights)
	penalty := 1 / (2 * opts.C * totalWeight)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w, b := x[:featureCount], x[featureCount]
			var loss float64
			for i, sample := range samples {
				z := dot(w, sample) + b
				loss += sampleWeights[i] * (softplus(z) - labels[i]*z)
			}
			return loss/totalWeight + penalty*floats.Dot(w, w)
		},
		Grad: func(grad, x []float64) {
			w, b := x[:featureCount], x[featureCount]
			for j := range grad {
				grad[j] = 0
			}
			for i, sample := range samples {
				residual := sampleWeights[i] * (sigmoid(dot(w, sample)+b) - labels[i])
				floats.AddScaled(grad[:featureCount], residual, sample)
				grad[featureCount] += residual
			}
			floats.Scale(1/totalWeight, grad)
			floats.AddScaled(grad[:featureCount], 2*penalty, w)
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-8,
		MajorIterations:   opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 50,
		},
	}
	initX := make([]float64, featureCount+1)
	result, err := optimize.Minimize(problem, initX, settings, &optimize.LBFGS{})
	if result == nil || !allFinite(result.X) || math.IsNaN(result.F) {
		if err == nil {
			err = errors.New("no finite solution")
		}
		return Weights{}, fmt.Errorf("%w: %v", ErrSolver, err)
	}
	// Line-search stalls near the optimum still leave a usable location.
	x := result.X
	return Weights{
		Bias:         x[featureCount],
		Coefficients: append([]float64(nil), x[:featureCount]...),
	}, nil
}

func classWeights(labels []float64, balanced bool) []float64 {
	weights := make([]float64, len(labels))
	var positives float64
	for _, y := range labels {
		positives += y
	}
	negatives := float64(len(labels)) - positives
	n := float64(len(labels))
	posWeight, negWeight := 1.0, 1.0
	if balanced && positives > 0 && negatives > 0 {
		posWeight = n / (2 * positives)
		negWeight = n / (2 * negatives)
	}
	for i, y := range labels {
		if y >= 0.5 {
			weights[i] = posWeight
		} else {
			weights[i] = negWeight
		}
	}
	return weights
}

func categories(rows []Row) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		seen[row.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func dot(weights []float64, sample []float64) float64 {
	var sum float64
	for i := 0; i < len(weights) && i < len(sample); i++ {
		sum += weights[i] * sample[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// softplus computes log(1+exp(x)) without overflow.
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func evaluate(weights []float64, bias float64, samples [][]float64, labels []float64) (float64, float64) {
	var loss float64
	var correct int
	for i, sample := range samples {
		prediction := sigmoid(dot(weights, sample) + bias)
		loss += -labels[i]*math.Log(prediction+1e-9) - (1-labels[i])*math.Log(1-prediction+1e-9)
		if (prediction >= 0.5 && labels[i] == 1) || (prediction < 0.5 && labels[i] == 0) {
			correct++
		}
	}
	loss /= float64(len(samples))
	accuracy := float64(correct) / float64(len(samples))
	return loss, accuracy
}
