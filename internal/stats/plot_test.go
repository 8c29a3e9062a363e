package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPlotSeries(t *testing.T) {
	var buf bytes.Buffer
	err := PlotSeries(&buf, "Test Plot", []Series{
		{Name: "A", Values: []float64{1, 2, 3, 2, 1}},
		{Name: "B", Values: []float64{1, 1, 2, 3, 4}, Format: "%.4f"},
	}, PlotOptions{Width: 10, Height: 4})
	if err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Test Plot") {
		t.Fatalf("expected title in output")
	}
	if !strings.Contains(out, "Scaled per series") {
		t.Fatalf("expected scale note in output")
	}
	if !strings.Contains(out, "B: min=1.0000 max=4.0000") {
		t.Fatalf("expected formatted min/max line, got:\n%s", out)
	}
	if !strings.Contains(out, "Legend:") {
		t.Fatalf("expected legend in output")
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no color when writing to a buffer")
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	expectedMin := 1 + 1 + 2 + 4 + 1
	if len(lines) < expectedMin {
		t.Fatalf("expected at least %d lines of output, got %d", expectedMin, len(lines))
	}
}

func TestRenderPlotRowWidth(t *testing.T) {
	out := RenderPlot("", []Series{{Name: "Loss", Values: []float64{0.9, 0.5, 0.2, 0.1}}}, PlotOptions{Width: 12, Height: 3, NoHeader: true})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 3 rows and a legend, got %d lines:\n%s", len(lines), out)
	}
	for _, line := range lines[:3] {
		if got := runewidth.StringWidth(line); got != 3+3+12 {
			t.Fatalf("expected row width %d, got %d: %q", 18, got, line)
		}
	}
	if !strings.HasPrefix(lines[0], "max") || !strings.HasPrefix(lines[2], "min") {
		t.Fatalf("expected axis labels, got %q / %q", lines[0], lines[2])
	}
}

func TestRenderPlotEmpty(t *testing.T) {
	if out := RenderPlot("x", []Series{{Name: "empty"}}, PlotOptions{}); out != "" {
		t.Fatalf("expected empty plot, got %q", out)
	}
}

func TestPlotWidthFor(t *testing.T) {
	axisWidth := runewidth.StringWidth(axisLabelTop) + runewidth.StringWidth(axisSeparator)
	if got := PlotWidthFor(80); got != 80-axisWidth {
		t.Fatalf("expected width %d, got %d", 80-axisWidth, got)
	}
	if got := PlotWidthFor(0); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
}

func TestResampleSeries(t *testing.T) {
	down := resampleSeries([]float64{1, 3, 5, 7}, 2)
	if down[0] != 2 || down[1] != 6 {
		t.Fatalf("unexpected downsample %v", down)
	}
	up := resampleSeries([]float64{0, 10}, 3)
	if up[0] != 0 || up[1] != 5 || up[2] != 10 {
		t.Fatalf("unexpected upsample %v", up)
	}
}
