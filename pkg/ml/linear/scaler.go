package linear

import (
	"gonum.org/v1/gonum/stat"
)

// Scaler centres and scales numeric columns with the population standard
// deviation. Constant columns keep a scale of one.
type Scaler struct {
	Means  []float64 `json:"means"`
	Scales []float64 `json:"scales"`
}

func FitScaler(rows []Row, columns int) Scaler {
	s := Scaler{Means: make([]float64, columns), Scales: make([]float64, columns)}
	col := make([]float64, len(rows))
	for j := 0; j < columns; j++ {
		for i, row := range rows {
			if j < len(row.Numeric) {
				col[i] = row.Numeric[j]
			} else {
				col[i] = 0
			}
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Means[j] = mean
		if std > 1e-12 {
			s.Scales[j] = std
		} else {
			s.Scales[j] = 1
		}
	}
	return s
}

func (s Scaler) Transform(values []float64) []float64 {
	out := make([]float64, len(s.Means))
	for j := range s.Means {
		var v float64
		if j < len(values) {
			v = values[j]
		}
		out[j] = (v - s.Means[j]) / s.Scales[j]
	}
	return out
}
