package buffer

import "sort"

// WindowBounds returns the inclusive index range [lo, hi] that should be
// resident for active in a feed of the given length. The range is empty
// (hi < lo) when active is -1 or the feed is empty.
func WindowBounds(active, behind, ahead, length int) (lo, hi int) {
	if active < 0 || length <= 0 {
		return 0, -1
	}
	lo = max(0, active-behind)
	hi = min(length-1, active+ahead)
	return lo, hi
}

// Evictions returns, ascending, the resident indices outside [lo, hi].
func Evictions(resident []int, lo, hi int) []int {
	var out []int
	for _, i := range resident {
		if i < lo || i > hi {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// FillOrder lists the indices in [lo, hi] that are not resident, in load
// priority order: active first, then ahead nearest first, then behind
// nearest first.
func FillOrder(active, lo, hi int, resident []int) []int {
	have := make(map[int]bool, len(resident))
	for _, i := range resident {
		have[i] = true
	}
	var out []int
	add := func(i int) {
		if i >= lo && i <= hi && !have[i] {
			out = append(out, i)
		}
	}
	add(active)
	for i := active + 1; i <= hi; i++ {
		add(i)
	}
	for i := active - 1; i >= lo; i-- {
		add(i)
	}
	return out
}
