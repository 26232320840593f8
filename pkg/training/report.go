package training

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const reliabilityBins = 10

// ReliabilityPoint is one bin of a reliability diagram.
type ReliabilityPoint struct {
	MeanPredicted float64
	Observed      float64
	Count         int
}

// ReliabilityCurve bins probabilities into equal-width buckets and returns
// the non-empty ones in ascending order.
func ReliabilityCurve(probs []float64, labels []int, bins int) []ReliabilityPoint {
	if bins <= 0 {
		bins = reliabilityBins
	}
	sumP := make([]float64, bins)
	sumY := make([]float64, bins)
	counts := make([]int, bins)
	for i, p := range probs {
		b := int(p * float64(bins))
		if b >= bins {
			b = bins - 1
		}
		if b < 0 {
			b = 0
		}
		sumP[b] += p
		sumY[b] += float64(labels[i])
		counts[b]++
	}
	var out []ReliabilityPoint
	for b := 0; b < bins; b++ {
		if counts[b] == 0 {
			continue
		}
		out = append(out, ReliabilityPoint{
			MeanPredicted: sumP[b] / float64(counts[b]),
			Observed:      sumY[b] / float64(counts[b]),
			Count:         counts[b],
		})
	}
	return out
}

// WriteReliabilityPlot renders the holdout reliability diagram as a PNG.
func WriteReliabilityPlot(path, version string, probs []float64, labels []int) error {
	curve := ReliabilityCurve(probs, labels, reliabilityBins)
	if len(curve) == 0 {
		return errors.New("no holdout probabilities to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Reliability - %s", version)
	p.X.Label.Text = "Mean predicted probability"
	p.Y.Label.Text = "Observed frequency"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	ideal, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return err
	}
	ideal.Color = color.Gray{Y: 160}
	ideal.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(ideal)

	pts := make(plotter.XYs, len(curve))
	for i, c := range curve {
		pts[i] = plotter.XY{X: c.MeanPredicted, Y: c.Observed}
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1.5)
	points.Color = line.Color
	p.Add(line, points)
	p.Legend.Add("model", line, points)
	p.Legend.Add("perfectly calibrated", ideal)

	return p.Save(5*vg.Inch, 5*vg.Inch, path)
}
