package pipeline

// Paginate returns the 1-based page of items of the given size, whether
// more items follow it, and the total page count.
func Paginate[T any](items []T, page, limit int) ([]T, bool, int) {
	n := len(items)
	if limit < 1 {
		limit = n
		if limit == 0 {
			return []T{}, false, 0
		}
	}
	if page < 1 {
		page = 1
	}

	totalPages := (n + limit - 1) / limit
	start := (page - 1) * limit
	end := start + limit
	if start >= n {
		return []T{}, false, totalPages
	}
	hasMore := end < n
	if end > n {
		end = n
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out, hasMore, totalPages
}
