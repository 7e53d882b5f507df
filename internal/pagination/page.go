package pagination

import "errors"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidPage = errors.New("invalid page parameters")

// Params describes one page of a filtered listing. EqConditions holds
// column/value equality filters; repositories validate the keys against
// their own allow-list before building SQL.
type Params struct {
	Page         int               `json:"page"`
	PageSize     int               `json:"page_size"`
	OrderBy      string            `json:"order_by,omitempty"`
	Descending   bool              `json:"descending,omitempty"`
	EqConditions map[string]string `json:"eq_conditions,omitempty"`
}

// Normalize fills defaults and rejects out-of-range values.
func (p *Params) Normalize() error {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return ErrInvalidPage
	}
	return nil
}

// Offset returns the row offset for the requested page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PageResult represents one page of items with the total match count.
type PageResult[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}
