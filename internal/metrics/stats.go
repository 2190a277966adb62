package metrics

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNoData means no target recorded anything; there is nothing to summarize.
	ErrNoData = errors.New("no samples recorded")
	// ErrEmptyColumn means one target recorded nothing while others did.
	ErrEmptyColumn = errors.New("target recorded no samples")
)

// ColumnSummary holds the statistics of one target's column, in whole milliseconds.
type ColumnSummary struct {
	Count int
	Avg   int64
	P95   int64
	P99   int64
}

// Summarize computes per-column average (truncated), 95th and 99th
// percentiles. Columns are not modified.
func Summarize(columns [][]int64) ([]ColumnSummary, error) {
	total := 0
	for _, col := range columns {
		total += len(col)
	}
	if total == 0 {
		return nil, ErrNoData
	}

	out := make([]ColumnSummary, len(columns))
	for i, col := range columns {
		if len(col) == 0 {
			return nil, fmt.Errorf("column %d: %w", i, ErrEmptyColumn)
		}
		sorted := append([]int64(nil), col...)
		sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })

		var sum int64
		for _, v := range sorted {
			sum += v
		}
		out[i] = ColumnSummary{
			Count: len(sorted),
			Avg:   sum / int64(len(sorted)),
			P95:   percentile(sorted, 95),
			P99:   percentile(sorted, 99),
		}
	}
	return out, nil
}

// percentile returns sorted[floor(pct/100 * n)], computed in integers.
func percentile(sorted []int64, pct int) int64 {
	idx := len(sorted) * pct / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
