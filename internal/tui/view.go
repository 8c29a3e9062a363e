package tui

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/trainviz/internal/model"
	"github.com/verte-zerg/trainviz/internal/playback"
	"github.com/verte-zerg/trainviz/internal/stats"
)

const (
	plotHeight    = 10
	curveWindow   = 1
	networkHeight = 6
)

var (
	accentColor    = lipgloss.Color("#C89A3A")
	accentStyle    = lipgloss.NewStyle().Foreground(accentColor)
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(accentColor)
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	goodStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E"))
	badStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#E76F51"))
	barFilledStyle  = lipgloss.NewStyle().Foreground(accentColor)
	barEmptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A4A4A"))
)

type statusInfo struct {
	label       string
	description string
	color       lipgloss.Color
}

func statusFor(st playback.State) statusInfo {
	epoch, total := st.CurrentEpoch(), st.Epochs()
	switch st.Status {
	case model.StatusLoading:
		return statusInfo{"Loading", "Fetching training data from server...", "#F59E0B"}
	case model.StatusTraining:
		return statusInfo{"Training", fmt.Sprintf("Processing epoch %d of %d", epoch, total), "#22C55E"}
	case model.StatusPaused:
		return statusInfo{"Paused", fmt.Sprintf("Paused at epoch %d. Press space to resume.", epoch), "#F59E0B"}
	case model.StatusComplete:
		return statusInfo{"Complete", fmt.Sprintf("Training finished: %d epochs completed", total), "#14B8A6"}
	case model.StatusError:
		return statusInfo{"Error", "An error occurred. Press r to retry.", "#E76F51"}
	}
	return statusInfo{"Ready", "Configure parameters and start training", "#94A3B8"}
}

func speedLabel(d time.Duration) string {
	switch {
	case d <= 50*time.Millisecond:
		return "Turbo"
	case d <= 150*time.Millisecond:
		return "Fast"
	case d <= 300*time.Millisecond:
		return "Normal"
	}
	return "Slow"
}

// formatETA renders the time left, rounded up to whole seconds.
func formatETA(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 60 {
		return fmt.Sprintf("~%ds remaining", secs)
	}
	return fmt.Sprintf("~%dm %ds remaining", secs/60, secs%60)
}

func progressBar(pct float64, width int) string {
	width = max(width, 1)
	pct = min(max(pct, 0), 100)
	filled := int(math.Round(pct / 100 * float64(width)))
	return barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func renderProgress(st playback.State, width int) string {
	info := statusFor(st)
	pct := fmt.Sprintf(" %3.0f%%", st.Progress())
	bar := progressBar(st.Progress(), max(width-lipgloss.Width(pct), 1))
	line := info.description
	if eta, ok := st.Remaining(); ok {
		line += "  " + formatETA(eta)
	}
	if st.Status == model.StatusError && st.Err != "" {
		line += "\n" + errorStyle.Render(wrapWords(st.Err, width))
	}
	return bar + pct + "\n" + headerStyle.Render(wrapWords(line, width))
}

func renderStatCards(st playback.State, width int) string {
	epochValue := fmt.Sprintf("%d / %d", st.CurrentEpoch(), st.Epochs())
	lossValue, accValue, bestValue := "—", "—", "—"
	if cur, ok := st.Current(); ok {
		lossValue = fmt.Sprintf("%.4f", cur.Loss)
		accValue = fmt.Sprintf("%.2f%%", cur.Accuracy)
	}
	if trend, ok := st.Trend(); ok {
		// Falling loss is good, rising accuracy is good.
		lossValue += " " + trendArrow(trend.Loss, trend.Loss <= 0)
		accValue += " " + trendArrow(trend.Accuracy, trend.Accuracy >= 0)
	}
	if st.BestAccuracy > 0 {
		bestValue = fmt.Sprintf("%.1f%%", st.BestAccuracy)
	}
	cards := []string{
		metricCard("Current Epoch", epochValue),
		metricCard("Current Loss", lossValue),
		metricCard("Accuracy", accValue),
		metricCard("Best Accuracy", bestValue),
	}
	if width < 80 {
		row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1])
		row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[2], cards[3])
		return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func trendArrow(delta float64, good bool) string {
	arrow := "↑"
	if delta < 0 {
		arrow = "↓"
	}
	text := fmt.Sprintf("%s %.2f", arrow, math.Abs(delta))
	if good {
		return goodStyle.Render(text)
	}
	return badStyle.Render(text)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func renderCharts(st playback.State, width int) string {
	if len(st.Revealed) == 0 {
		return "No epochs yet. Press s to start training."
	}
	var buf bytes.Buffer
	if err := stats.RenderCurves(&buf, st.Revealed, curveWindow, width, plotHeight, true); err != nil {
		return fmt.Sprintf("Failed to render curves: %v", err)
	}
	spark := "Accuracy " + stats.Sparkline(stats.Accuracies(st.Revealed))
	return strings.TrimRight(buf.String(), "\n") + "\n" + headerStyle.Render(truncateLine(spark, width))
}

type layer struct {
	name  string
	nodes int
}

var networkLayers = []layer{
	{name: "Input", nodes: 4},
	{name: "Hidden 1", nodes: 6},
	{name: "Hidden 2", nodes: 5},
	{name: "Output", nodes: 2},
}

// nodeColor blends from red to green as loss falls. Before any epoch is
// revealed the network is drawn in the idle color.
func nodeColor(st playback.State) lipgloss.Color {
	cur, ok := st.Current()
	if !ok {
		return "#14B8A6"
	}
	t := min(max(1-cur.Loss, 0), 1)
	blend := func(from, to float64) int {
		return int(math.Round(from*(1-t) + to*t))
	}
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", blend(231, 34), blend(111, 197), blend(81, 94)))
}

func renderNetwork(st playback.State) string {
	const colWidth = 10
	node := lipgloss.NewStyle().Foreground(nodeColor(st)).Render("●")
	link := headerStyle.Render(strings.Repeat("─", colWidth-1))
	if st.Status != model.StatusTraining {
		link = headerStyle.Render(strings.Repeat("·", colWidth-1))
	}

	var b strings.Builder
	for row := 0; row < networkHeight; row++ {
		for i, l := range networkLayers {
			offset := (networkHeight - l.nodes) / 2
			has := row >= offset && row < offset+l.nodes
			cell := " "
			if has {
				cell = node
			}
			b.WriteString(cell)
			if i < len(networkLayers)-1 {
				if has {
					b.WriteString(link)
				} else {
					b.WriteString(strings.Repeat(" ", colWidth-1))
				}
			}
		}
		b.WriteByte('\n')
	}
	names := make([]string, len(networkLayers))
	for i, l := range networkLayers {
		names[i] = padLine(l.name, colWidth)
	}
	b.WriteString(headerStyle.Render(strings.TrimRight(strings.Join(names, ""), " ")))
	b.WriteByte('\n')
	loss := "Loss: —"
	if cur, ok := st.Current(); ok {
		loss = fmt.Sprintf("Loss: %.4f", cur.Loss)
	}
	b.WriteString(loss)
	return b.String()
}

func epochColumns() []table.Column {
	return []table.Column{
		{Title: "Epoch", Width: 6},
		{Title: "Loss", Width: 8},
		{Title: "Accuracy", Width: 9},
		{Title: "ΔLoss", Width: 8},
		{Title: "ΔAcc", Width: 7},
	}
}

func epochRows(records []model.EpochRecord) []table.Row {
	rows := make([]table.Row, 0, len(records))
	for i, r := range records {
		dLoss, dAcc := "", ""
		if i > 0 {
			dLoss = fmt.Sprintf("%+.4f", r.Loss-records[i-1].Loss)
			dAcc = fmt.Sprintf("%+.2f", r.Accuracy-records[i-1].Accuracy)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", r.Epoch),
			fmt.Sprintf("%.4f", r.Loss),
			fmt.Sprintf("%.2f%%", r.Accuracy),
			dLoss,
			dAcc,
		})
	}
	return rows
}

func epochTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}
