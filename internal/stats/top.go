package stats

import (
	"sort"

	"github.com/verte-zerg/trainviz/internal/model"
)

// SlowestRequests returns the n entries with the longest duration, slowest
// first. Ties keep journal order.
func SlowestRequests(entries []model.RequestEntry, n int) []model.RequestEntry {
	if n <= 0 || len(entries) == 0 {
		return nil
	}
	sorted := make([]model.RequestEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DurationMs > sorted[j].DurationMs
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}
