package stats

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/trainviz/internal/model"
)

const journalTimeLayout = "2006-01-02 15:04:05"

// RenderEpochTable prints one row per epoch.
func RenderEpochTable(w io.Writer, records []model.EpochRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No epochs generated.")
		return err
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.Epoch),
			fmt.Sprintf("%.4f", r.Loss),
			fmt.Sprintf("%.2f%%", r.Accuracy),
		})
	}
	return writeLines(w, formatTable([]string{"Epoch", "Loss", "Accuracy"}, rows, map[int]bool{0: true, 1: true, 2: true}))
}

// RenderRequestTable prints journal entries, oldest first.
func RenderRequestTable(w io.Writer, entries []model.RequestEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No requests found.")
		return err
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.ReceivedAt.Local().Format(journalTimeLayout),
			shortID(e.RequestID),
			fmt.Sprintf("%d", e.Status),
			fmt.Sprintf("%d", e.Epochs),
			fmt.Sprintf("%g", e.LearningRate),
			fmt.Sprintf("%d", e.BatchSize),
			formatDuration(time.Duration(e.DurationMs) * time.Millisecond),
			e.Error,
		})
	}
	headers := []string{"Received", "ID", "Status", "Epochs", "LR", "Batch", "Duration", "Error"}
	rightAlign := map[int]bool{2: true, 3: true, 4: true, 5: true, 6: true}
	return writeLines(w, formatTable(headers, rows, rightAlign))
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatTable aligns headers and rows into columns. Cells in rightAlign
// columns are padded on the left.
func FormatTable(headers []string, rows [][]string, rightAlign map[int]bool) []string {
	return formatTable(headers, rows, rightAlign)
}

func formatTable(headers []string, rows [][]string, rightAlignCols map[int]bool) []string {
	colCount := len(headers)
	for _, row := range rows {
		colCount = max(colCount, len(row))
	}
	if colCount == 0 {
		return nil
	}

	widths := make([]int, colCount)
	measure := func(row []string) {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	measure(headers)
	for _, row := range rows {
		measure(row)
	}

	lines := make([]string, 0, len(rows)+1)
	if len(headers) > 0 {
		lines = append(lines, formatRow(headers, widths, rightAlignCols))
	}
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths, rightAlignCols))
	}
	return lines
}

func formatRow(row []string, widths []int, rightAlignCols map[int]bool) string {
	cells := make([]string, len(widths))
	for i, width := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if rightAlignCols[i] {
			cells[i] = runewidth.FillLeft(cell, width)
		} else {
			cells[i] = runewidth.FillRight(cell, width)
		}
	}
	return strings.TrimRight(strings.Join(cells, " "), " ")
}
