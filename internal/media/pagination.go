package media

import (
	"fmt"
	"slices"
)

// PageSizes are the selectable page sizes.
var PageSizes = []int{10, 20, 50, 100}

func ValidPageSize(n int) bool {
	return slices.Contains(PageSizes, n)
}

// Pagination is recomputed from every fetched page.
type Pagination struct {
	Page        int
	PageSize    int
	StorageType string
	Total       int
}

func (p Pagination) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

func (p Pagination) HasPrev() bool {
	return p.Page > 1
}

func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages()
}

// Hidden reports whether the controls are omitted: a single page holding
// at most ten items.
func (p Pagination) Hidden() bool {
	return p.TotalPages() <= 1 && p.Total <= 10
}

func (p Pagination) String() string {
	return fmt.Sprintf("page %d / %d (%d items)", p.Page, p.TotalPages(), p.Total)
}
