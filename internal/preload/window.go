package preload

import "github.com/cairnmed/lucent/internal/pixel"

// plan decides which snapshot indexes to load and in what order. A series
// whose total estimated decoded size fits the budget (total memory /
// budgetDivisor) is loaded whole, starting at the cursor and wrapping.
// Otherwise a centered window is derived from free memory: strictly
// smaller than the series, clamped at its boundaries rather than
// shifted, with the cursor always included.
func (s *Scheduler) plan(snap Snapshot) []int {
	n := len(snap.Instances)
	if n == 0 {
		return nil
	}
	cursor := snap.Cursor
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= n {
		cursor = n - 1
	}

	var total int64
	for _, info := range snap.Instances {
		total += pixel.EstimateSize(info)
	}

	s.mu.Lock()
	divisor := s.budgetDivisor
	shrink := s.shrink
	s.mu.Unlock()

	if total <= int64(s.gauge.TotalBytes())/divisor {
		// Whole series: cursor first, then wrap around.
		order := make([]int, 0, n)
		for i := cursor; i < n; i++ {
			order = append(order, i)
		}
		for i := 0; i < cursor; i++ {
			order = append(order, i)
		}
		return order
	}

	scale := float64(s.gauge.FreeBytes()) * shrink / float64(total)
	if scale > 1 {
		scale = 1
	}
	if scale < 0 {
		scale = 0
	}
	half := int(float64(n)*scale) / 2
	if max := (n - 1) / 2; half > max {
		half = max
	}
	lo, hi := cursor-half, cursor+half
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	// The window must stay strictly smaller than the series.
	for n > 1 && hi-lo+1 >= n {
		if hi > cursor {
			hi--
		} else {
			lo++
		}
	}

	order := make([]int, 0, hi-lo+1)
	for i := cursor; i <= hi; i++ {
		order = append(order, i)
	}
	for i := lo; i < cursor; i++ {
		order = append(order, i)
	}
	return order
}
