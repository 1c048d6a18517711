package models

import "math"

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewPage[T any](items []T, page, limit, total int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: TotalPages(total, limit),
	}
}

// TotalPages is ceil(total/limit), never below one.
func TotalPages(total, limit int) int {
	if limit <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(float64(total)/float64(limit))))
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// PageBounds defaults a missing page to 1 and clamps limit to [1, MaxPageSize].
func PageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	return page, min(limit, MaxPageSize)
}
