// Package stats summarizes and renders training curves and request journals.
package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Series represents a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
	// Format prints the min/max line, e.g. "%.4f". Defaults to "%.2f".
	Format string
}

// PlotOptions sizes a plot. Zero values pick defaults.
type PlotOptions struct {
	Width  int
	Height int
	// Color forces ANSI color even when the writer is not a terminal.
	Color bool
	// NoHeader omits the scale note and min/max lines.
	NoHeader bool
}

type lineStyle struct {
	name   string
	period int
	on     int
}

const (
	defaultPlotHeight   = 10
	minPlotWidth        = 10
	axisLabelTop        = "max"
	axisLabelMid        = "mid"
	axisLabelBottom     = "min"
	axisSeparator       = " │ "
	scaleNote           = "Scaled per series; see min/max below."
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
)

var lineStyles = []lineStyle{
	{name: "solid", period: 1, on: 1},
	{name: "dashed", period: 6, on: 3},
	{name: "dotted", period: 4, on: 1},
}

// Loss is drawn warm and accuracy cool, matching the dashboard palette.
var colorPalette = []string{
	"\x1b[31m",
	"\x1b[36m",
	"\x1b[33m",
	"\x1b[32m",
}

// brailleDots maps a dot position inside a 2x4 cell to its bit.
var brailleDots = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

// PlotSeries writes a braille line plot of the series to w.
func PlotSeries(w io.Writer, title string, series []Series, opts PlotOptions) error {
	opts.Color = shouldUseColor(w, opts.Color)
	out := RenderPlot(title, series, opts)
	if out == "" {
		return nil
	}
	_, err := io.WriteString(w, out)
	return err
}

// RenderPlot returns the plot as a string. Color is used only when
// opts.Color is set.
func RenderPlot(title string, series []Series, opts PlotOptions) string {
	series = filterSeries(series)
	if len(series) == 0 {
		return ""
	}
	height := opts.Height
	if height <= 0 {
		height = defaultPlotHeight
	}
	width := opts.Width
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	if width < minPlotWidth {
		width = minPlotWidth
	}

	type scaledSeries struct {
		Series
		lo, hi float64
		cv     *canvas
	}
	scaled := make([]scaledSeries, 0, len(series))
	for i, s := range series {
		values := resampleSeries(s.Values, width)
		lo, hi := minMax(values)
		if math.Abs(hi-lo) < 1e-9 {
			lo--
			hi++
		}
		cv := newCanvas(width, height)
		cv.polyline(values, lo, hi, lineStyles[i%len(lineStyles)])
		scaled = append(scaled, scaledSeries{
			Series: Series{Name: s.Name, Values: values, Format: s.Format},
			lo:     lo,
			hi:     hi,
			cv:     cv,
		})
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteByte('\n')
	}
	if !opts.NoHeader {
		b.WriteString(scaleNote)
		b.WriteByte('\n')
		for _, s := range scaled {
			format := s.Format
			if format == "" {
				format = "%.2f"
			}
			fmt.Fprintf(&b, "%s: min="+format+" max="+format+"\n", s.Name, s.lo, s.hi)
		}
	}

	labels := axisLabels(height)
	labelWidth := runewidth.StringWidth(axisLabelTop)
	for y := 0; y < height; y++ {
		b.WriteString(runewidth.FillLeft(labels[y], labelWidth))
		b.WriteString(axisSeparator)
		for x := 0; x < width; x++ {
			var mask uint8
			owner := -1
			for i, s := range scaled {
				if m := s.cv.cells[y][x]; m != 0 {
					if owner < 0 {
						owner = i
					}
					mask |= m
				}
			}
			ch := rune(0x2800 + int(mask))
			if opts.Color && owner >= 0 {
				b.WriteString(colorPalette[owner%len(colorPalette)])
				b.WriteRune(ch)
				b.WriteString(colorReset)
				continue
			}
			b.WriteRune(ch)
		}
		b.WriteByte('\n')
	}

	legend := make([]string, 0, len(scaled))
	for i, s := range scaled {
		label := fmt.Sprintf("%c %s (%s)", rune(0x2801), s.Name, lineStyles[i%len(lineStyles)].name)
		if opts.Color {
			label = colorPalette[i%len(colorPalette)] + label + colorReset
		}
		legend = append(legend, label)
	}
	b.WriteString("Legend: ")
	b.WriteString(strings.Join(legend, "  "))
	b.WriteByte('\n')
	return b.String()
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	plotWidth := totalWidth - runewidth.StringWidth(axisLabelTop) - runewidth.StringWidth(axisSeparator)
	if plotWidth < minPlotWidth {
		plotWidth = minPlotWidth
	}
	return plotWidth
}

func filterSeries(series []Series) []Series {
	out := make([]Series, 0, len(series))
	for _, s := range series {
		if len(s.Values) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func axisLabels(height int) []string {
	labels := make([]string, height)
	if height <= 0 {
		return labels
	}
	labels[0] = axisLabelTop
	if height > 2 {
		labels[height/2] = axisLabelMid
	}
	if height > 1 {
		labels[height-1] = axisLabelBottom
	}
	return labels
}

// canvas is a grid of braille cells, each holding 2x4 dots.
type canvas struct {
	cells [][]uint8
	dotsY int
}

func newCanvas(width, height int) *canvas {
	cells := make([][]uint8, height)
	for y := range cells {
		cells[y] = make([]uint8, width)
	}
	return &canvas{cells: cells, dotsY: height * 4}
}

func (c *canvas) set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	cy, cx := y/4, x/2
	if cy >= len(c.cells) || cx >= len(c.cells[cy]) {
		return
	}
	c.cells[cy][cx] |= brailleDots[x%2][y%4]
}

// polyline plots one sample per cell column and joins neighbours.
func (c *canvas) polyline(values []float64, lo, hi float64, style lineStyle) {
	prevX, prevY := -1, -1
	for i, v := range values {
		x, y := i*2, c.row(v, lo, hi)
		if prevX < 0 {
			if style.draws(x) {
				c.set(x, y)
			}
		} else {
			drawLine(prevX, prevY, x, y, func(dx, dy int) {
				if style.draws(dx) {
					c.set(dx, dy)
				}
			})
		}
		prevX, prevY = x, y
	}
}

func (c *canvas) row(v, lo, hi float64) int {
	if c.dotsY <= 1 {
		return 0
	}
	pos := (v - lo) / (hi - lo)
	row := int(math.Round((1 - pos) * float64(c.dotsY-1)))
	if row < 0 {
		return 0
	}
	if row >= c.dotsY {
		return c.dotsY - 1
	}
	return row
}

func (ls lineStyle) draws(x int) bool {
	if ls.period <= 1 {
		return true
	}
	if x < 0 {
		x = -x
	}
	return x%ls.period < ls.on
}

// resampleSeries averages down or linearly interpolates up to width points.
func resampleSeries(values []float64, width int) []float64 {
	if len(values) == 0 || width <= 0 {
		return nil
	}
	out := make([]float64, width)
	switch {
	case len(values) == width:
		copy(out, values)
	case len(values) > width:
		for i := range out {
			start := i * len(values) / width
			end := (i + 1) * len(values) / width
			if end <= start {
				end = start + 1
			}
			var sum float64
			for _, v := range values[start:end] {
				sum += v
			}
			out[i] = sum / float64(end-start)
		}
	case len(values) == 1 || width == 1:
		for i := range out {
			out[i] = values[0]
		}
	default:
		last := len(values) - 1
		for i := range out {
			pos := float64(i) * float64(last) / float64(width-1)
			idx := int(pos)
			if idx >= last {
				out[i] = values[last]
				continue
			}
			frac := pos - float64(idx)
			out[i] = values[idx]*(1-frac) + values[idx+1]*frac
		}
	}
	return out
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// drawLine walks Bresenham's line from (x0, y0) to (x1, y1).
func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
