// Package types contains generic types shared across layers.
package types

// Page is one page of an ordered result set.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// Offset returns the index of the first item of page (1-based) with size.
func Offset(page, size int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * size
}

// Paginate slices an already ordered list. Pages past the end are empty.
func Paginate[T any](all []T, page, size int) Page[T] {
	p := Page[T]{Page: page, PageSize: size, Total: len(all), Items: []T{}}
	if size <= 0 {
		return p
	}
	p.TotalPages = (len(all) + size - 1) / size
	start := Offset(page, size)
	if start >= len(all) {
		return p
	}
	end := min(start+size, len(all))
	p.Items = append(p.Items, all[start:end]...)
	p.HasMore = end < len(all)
	return p
}

// NewPage wraps items already cut by a backend that reported total.
func NewPage[T any](items []T, page, size, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	p := Page[T]{Items: items, Page: page, PageSize: size, Total: total}
	if size > 0 {
		p.TotalPages = (total + size - 1) / size
		p.HasMore = Offset(page, size)+len(items) < total
	}
	return p
}

// BatchReceipt describes how many records of a batch were queued. On
// backpressure the records after the last accepted one were not queued.
type BatchReceipt struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	JobIDs   []string `json:"jobIds"`
}
