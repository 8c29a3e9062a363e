package stats

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/verte-zerg/trainviz/internal/model"
)

// RequestSource reads the request journal.
type RequestSource interface {
	ListRequests(ctx context.Context, filter model.RequestFilter) ([]model.RequestEntry, error)
	CountByStatus(ctx context.Context) (map[int]int, error)
}

// Report contains precomputed data for journal rendering.
type Report struct {
	Entries []model.RequestEntry
	Counts  map[int]int
	Slowest []model.RequestEntry
}

// BuildReport loads journal entries matching filter plus overall status
// counts. slowest limits the slowest-request list; zero skips it.
func BuildReport(ctx context.Context, src RequestSource, filter model.RequestFilter, slowest int) (Report, error) {
	entries, err := src.ListRequests(ctx, filter)
	if err != nil {
		return Report{}, err
	}
	counts, err := src.CountByStatus(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Entries: entries,
		Counts:  counts,
		Slowest: SlowestRequests(entries, slowest),
	}, nil
}

// Render prints the entries table, the slowest list and the counts.
func (r Report) Render(w io.Writer) error {
	if err := RenderRequestTable(w, r.Entries); err != nil {
		return err
	}
	if len(r.Slowest) > 0 {
		if _, err := fmt.Fprintln(w, "Slowest"); err != nil {
			return err
		}
		if err := RenderRequestTable(w, r.Slowest); err != nil {
			return err
		}
	}
	return RenderStatusCounts(w, r.Counts)
}

// RenderStatusCounts prints request totals per HTTP status.
func RenderStatusCounts(w io.Writer, counts map[int]int) error {
	if len(counts) == 0 {
		return nil
	}
	codes := make([]int, 0, len(counts))
	total := 0
	for code, n := range counts {
		codes = append(codes, code)
		total += n
	}
	sort.Ints(codes)
	rows := make([][]string, 0, len(codes))
	for _, code := range codes {
		share := float64(counts[code]) / float64(total) * 100
		rows = append(rows, []string{
			fmt.Sprintf("%d", code),
			fmt.Sprintf("%d", counts[code]),
			fmt.Sprintf("%.1f%%", share),
		})
	}
	if _, err := fmt.Fprintf(w, "Requests: %d\n", total); err != nil {
		return err
	}
	return writeLines(w, formatTable([]string{"Status", "Count", "Share"}, rows, map[int]bool{1: true, 2: true}))
}
