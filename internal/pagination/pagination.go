// Package pagination slices an in-memory result set into fixed-size pages.
package pagination

// View is everything a renderer needs to paint one page.
type View[T any] struct {
	Items        []T  `json:"data"`
	Page         int  `json:"page"`
	PageSize     int  `json:"page_size"`
	Total        int  `json:"total"`
	TotalPages   int  `json:"total_pages"`
	PrevDisabled bool `json:"prev_disabled"`
	NextDisabled bool `json:"next_disabled"`
	Placeholder  bool `json:"placeholder"`
}

// TotalPages returns ceil(total/pageSize), or 0 when there is nothing to page.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Bounds returns the half-open range [start, end) of page n, clamped to total.
// ok is false when the page lies outside the result set.
func Bounds(n, pageSize, total int) (start, end int, ok bool) {
	if n < 1 || pageSize <= 0 {
		return 0, 0, false
	}
	start = (n - 1) * pageSize
	if start >= total {
		return 0, 0, false
	}
	end = min(start+pageSize, total)
	return start, end, true
}

// Slice returns items[(n-1)*pageSize : n*pageSize], or nil past the last page.
// The returned slice aliases items.
func Slice[T any](items []T, n, pageSize int) []T {
	start, end, ok := Bounds(n, pageSize, len(items))
	if !ok {
		return nil
	}
	return items[start:end:end]
}

// PageOf returns the 1-indexed page holding the item at index i.
func PageOf(i, pageSize int) int {
	if i < 0 || pageSize <= 0 {
		return 1
	}
	return i/pageSize + 1
}

// Clamp pulls n into [1, totalPages]. With no pages it returns 1.
func Clamp(n, totalPages int) int {
	if totalPages < 1 || n < 1 {
		return 1
	}
	return min(n, totalPages)
}

// DisplayPage computes page n of items. An empty page is flagged for a
// placeholder row instead of an empty table body.
func DisplayPage[T any](items []T, n, pageSize int) View[T] {
	totalPages := TotalPages(len(items), pageSize)
	page := Slice(items, n, pageSize)

	return View[T]{
		Items:        page,
		Page:         n,
		PageSize:     pageSize,
		Total:        len(items),
		TotalPages:   totalPages,
		PrevDisabled: n <= 1,
		NextDisabled: totalPages == 0 || n >= totalPages,
		Placeholder:  len(page) == 0,
	}
}

func (v View[T]) PrevPage() int {
	return max(v.Page-1, 1)
}

func (v View[T]) NextPage() int {
	if v.TotalPages == 0 {
		return 1
	}
	return min(v.Page+1, v.TotalPages)
}
