package accesskeys

import (
	"fmt"
	"strings"

	"gemini-console/internal/models"
)

// Filter is the status filter of the access key table. It cycles
// All → Active → Inactive → All.
type Filter int

const (
	FilterAll Filter = iota
	FilterActive
	FilterInactive
)

func (f Filter) Next() Filter {
	return (f + 1) % 3
}

func (f Filter) Match(k models.AccessKey) bool {
	switch f {
	case FilterActive:
		return k.IsActive
	case FilterInactive:
		return !k.IsActive
	}
	return true
}

// Header is the status column header shown for the filter.
func (f Filter) Header() string {
	switch f {
	case FilterActive:
		return "STATUS (active)"
	case FilterInactive:
		return "STATUS (inactive)"
	}
	return "STATUS"
}

func (f Filter) String() string {
	switch f {
	case FilterActive:
		return "active"
	case FilterInactive:
		return "inactive"
	}
	return "all"
}

func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "active":
		return FilterActive, nil
	case "inactive":
		return FilterInactive, nil
	}
	return FilterAll, fmt.Errorf("unknown status filter %q (want all, active or inactive)", s)
}
