// Package lookup provides the as-of cursor over ordered per-symbol history.
// Any aggregate computed through the cursor sees only rows strictly before
// the cursor instant, which makes the no-lookahead invariant structural
// rather than convention-based.
package lookup

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"event-forecast-lab/internal/domain"
)

// ErrUnordered is returned when history rows are not strictly ascending by as_of.
var ErrUnordered = errors.New("history rows not strictly ascending by as_of")

// History is an immutable, ordered sequence of realized-return rows for one
// (symbol, horizon).
type History struct {
	rows []*domain.RealizedReturn
}

// NewHistory validates and wraps rows. Rows may arrive unsorted; they are
// copied and sorted once. Duplicate as_of values are rejected since the
// store's composite key makes them impossible.
func NewHistory(rows []*domain.RealizedReturn) (*History, error) {
	sorted := make([]*domain.RealizedReturn, len(rows))
	copy(sorted, rows)

	for _, r := range sorted {
		if err := domain.ValidateInstant(r.AsOf); err != nil {
			return nil, fmt.Errorf("history row: %w", err)
		}
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AsOf.Before(sorted[j].AsOf)
	})
	for i := 1; i < len(sorted); i++ {
		if !sorted[i-1].AsOf.Before(sorted[i].AsOf) {
			return nil, ErrUnordered
		}
	}

	return &History{rows: sorted}, nil
}

// Len returns the number of rows.
func (h *History) Len() int {
	return len(h.rows)
}

// Before returns all rows with as_of strictly before cursor.
func (h *History) Before(cursor time.Time) []*domain.RealizedReturn {
	// First index with as_of >= cursor.
	i := sort.Search(len(h.rows), func(i int) bool {
		return !h.rows[i].AsOf.Before(cursor)
	})
	return h.rows[:i]
}

// Window returns rows with as_of in [cursor - span, cursor), preserving the
// strict upper bound.
func (h *History) Window(cursor time.Time, span time.Duration) []*domain.RealizedReturn {
	before := h.Before(cursor)
	lo := cursor.Add(-span)
	i := sort.Search(len(before), func(i int) bool {
		return !before[i].AsOf.Before(lo)
	})
	return before[i:]
}

// CumulativeReturn compounds the returns of rows in [cursor - span, cursor).
// Returns 0 when the window is empty.
func (h *History) CumulativeReturn(cursor time.Time, span time.Duration) float64 {
	growth := 1.0
	for _, r := range h.Window(cursor, span) {
		growth *= 1 + r.RealizedReturn
	}
	return growth - 1
}

// Volatility returns the population standard deviation of returns in
// [cursor - span, cursor). Returns 0 for fewer than two rows.
func (h *History) Volatility(cursor time.Time, span time.Duration) float64 {
	window := h.Window(cursor, span)
	n := len(window)
	if n < 2 {
		return 0
	}

	var sum float64
	for _, r := range window {
		sum += r.RealizedReturn
	}
	mean := sum / float64(n)

	var sumSq float64
	for _, r := range window {
		d := r.RealizedReturn - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}
