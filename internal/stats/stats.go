package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/trainviz/internal/model"
)

const sparkChars = " .:-=+*#%@"

// Summary describes a generated curve.
type Summary struct {
	Epochs        int
	FinalLoss     float64
	FinalAccuracy float64
	MinLoss       float64
	MinLossEpoch  int
	BestAccuracy  float64
	BestEpoch     int
	// PlateauEpoch is the first epoch after which smoothed accuracy gains
	// stay below the plateau threshold. Zero when the curve never settles.
	PlateauEpoch int
}

const (
	plateauWindow    = 5
	plateauThreshold = 0.1
)

// Summarize computes a Summary. An empty curve yields the zero value.
func Summarize(records []model.EpochRecord) Summary {
	if len(records) == 0 {
		return Summary{}
	}
	last := records[len(records)-1]
	s := Summary{
		Epochs:        len(records),
		FinalLoss:     last.Loss,
		FinalAccuracy: last.Accuracy,
		MinLoss:       records[0].Loss,
		MinLossEpoch:  records[0].Epoch,
		BestAccuracy:  records[0].Accuracy,
		BestEpoch:     records[0].Epoch,
	}
	for _, r := range records[1:] {
		if r.Loss < s.MinLoss {
			s.MinLoss = r.Loss
			s.MinLossEpoch = r.Epoch
		}
		if r.Accuracy > s.BestAccuracy {
			s.BestAccuracy = r.Accuracy
			s.BestEpoch = r.Epoch
		}
	}
	s.PlateauEpoch = plateauEpoch(records)
	return s
}

func plateauEpoch(records []model.EpochRecord) int {
	acc := MovingAverage(Accuracies(records), plateauWindow)
	for i := 1; i < len(acc); i++ {
		settled := true
		for j := i; j < len(acc); j++ {
			if acc[j]-acc[j-1] >= plateauThreshold {
				settled = false
				break
			}
		}
		if settled {
			return records[i].Epoch
		}
	}
	return 0
}

// Losses extracts the loss column.
func Losses(records []model.EpochRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Loss
	}
	return out
}

// Accuracies extracts the accuracy column.
func Accuracies(records []model.EpochRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Accuracy
	}
	return out
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		n := i + 1
		if i >= window {
			sum -= values[i-window]
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := minMax(values)
	if math.Abs(hi-lo) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	top := float64(len(sparkChars) - 1)
	for _, v := range values {
		idx := int(math.Round((v - lo) / (hi - lo) * top))
		b.WriteByte(sparkChars[min(max(idx, 0), len(sparkChars)-1)])
	}
	return b.String()
}

// RenderSummary prints the run parameters and curve summary.
func RenderSummary(w io.Writer, params model.TrainingParams, records []model.EpochRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No epochs generated.")
		return err
	}
	s := Summarize(records)
	lines := []string{
		"Summary",
		fmt.Sprintf("Params: %s", params),
		fmt.Sprintf("Epochs: %d", s.Epochs),
		fmt.Sprintf("Final loss: %.4f", s.FinalLoss),
		fmt.Sprintf("Final accuracy: %.2f%%", s.FinalAccuracy),
		fmt.Sprintf("Min loss: %.4f (epoch %d)", s.MinLoss, s.MinLossEpoch),
		fmt.Sprintf("Best accuracy: %.2f%% (epoch %d)", s.BestAccuracy, s.BestEpoch),
	}
	if s.PlateauEpoch > 0 {
		lines = append(lines, fmt.Sprintf("Plateau from epoch: %d", s.PlateauEpoch))
	}
	lines = append(lines, fmt.Sprintf("Loss: %s", Sparkline(Losses(records))), "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurves plots loss and accuracy, smoothed over window epochs.
func RenderCurves(w io.Writer, records []model.EpochRecord, window, totalWidth, height int, useColor bool) error {
	if len(records) == 0 {
		return nil
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotSeries(w, "Training Curves", CurveSeries(records, window), PlotOptions{
		Width:  width,
		Height: height,
		Color:  useColor,
	})
}

// CurveSeries returns the loss and accuracy series for plotting.
func CurveSeries(records []model.EpochRecord, window int) []Series {
	return []Series{
		{Name: "Loss", Values: MovingAverage(Losses(records), window), Format: "%.4f"},
		{Name: "Accuracy", Values: MovingAverage(Accuracies(records), window)},
	}
}
