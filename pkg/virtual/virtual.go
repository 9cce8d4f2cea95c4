// Package virtual computes which rows of a long list need to be materialized
// for a scrollable viewport, so render cost stays proportional to the visible
// rows rather than the total list size.
//
// All functions are pure: they hold no state besides the scroll position they
// are handed, and they know nothing about mutation or loading state. Row
// height is fixed; variable-height rows are not supported.
package virtual

// Range is the inclusive slice of row indexes to materialize.
type Range struct {
	Start int
	End   int
}

// Len returns the number of rows in the range, 0 for an empty range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// VisibleRange computes the minimal contiguous slice of rows covering the
// viewport, padded by overscan rows on each side. Indexes are clamped to
// [0, totalCount-1]. An empty list or non-positive item height yields an
// empty range (End < Start).
func VisibleRange(scrollTop, containerHeight, itemHeight, totalCount, overscan int) Range {
	if totalCount <= 0 || itemHeight <= 0 {
		return Range{Start: 0, End: -1}
	}
	if scrollTop < 0 {
		scrollTop = 0
	}

	start := scrollTop/itemHeight - overscan
	if start < 0 {
		start = 0
	}

	// ceil((scrollTop+containerHeight)/itemHeight) + overscan
	end := (scrollTop+containerHeight+itemHeight-1)/itemHeight + overscan
	if end > totalCount-1 {
		end = totalCount - 1
	}
	if start > end {
		start = end
	}
	return Range{Start: start, End: end}
}

// RowOffset returns the vertical pixel offset of the row at index.
func RowOffset(index, itemHeight int) int {
	return index * itemHeight
}

// TotalHeight returns the full scrollable height of the list.
func TotalHeight(totalCount, itemHeight int) int {
	if totalCount < 0 {
		return 0
	}
	return totalCount * itemHeight
}

// Row pairs a materialized item with its layout offset.
type Row[T any] struct {
	Index  int `json:"index"`
	Offset int `json:"offset"`
	Item   T   `json:"item"`
}

// Window is the complete layout answer for one render pass.
type Window[T any] struct {
	Rows        []Row[T] `json:"rows"`
	TotalHeight int      `json:"total_height"`
	Range       Range    `json:"-"`
}

// Slice materializes the visible window over items.
// It re-runs whenever the item count or scroll position changes; the caller
// owns that trigger.
func Slice[T any](items []T, scrollTop, containerHeight, itemHeight, overscan int) Window[T] {
	rng := VisibleRange(scrollTop, containerHeight, itemHeight, len(items), overscan)
	w := Window[T]{
		TotalHeight: TotalHeight(len(items), itemHeight),
		Range:       rng,
	}
	if rng.Len() == 0 {
		return w
	}
	w.Rows = make([]Row[T], 0, rng.Len())
	for i := rng.Start; i <= rng.End; i++ {
		w.Rows = append(w.Rows, Row[T]{
			Index:  i,
			Offset: RowOffset(i, itemHeight),
			Item:   items[i],
		})
	}
	return w
}
