package filtering

import (
	"fmt"
	"slices"
)

// GroupFilter handles group-based filtering using exact string matching
type GroupFilter interface {
	// ShouldInclude determines if a screen in group should be included
	// Returns (shouldInclude bool, reason string)
	ShouldInclude(group string, include, exclude []string) (bool, string)
}

// DefaultGroupFilter implements group filtering using exact string matching
type DefaultGroupFilter struct{}

// NewDefaultGroupFilter creates a new DefaultGroupFilter
func NewDefaultGroupFilter() *DefaultGroupFilter {
	return &DefaultGroupFilter{}
}

// ShouldInclude determines if a screen in group should be included
func (*DefaultGroupFilter) ShouldInclude(group string, include, exclude []string) (bool, string) {
	if slices.Contains(exclude, group) {
		return false, fmt.Sprintf("excluded by group '%s'", group)
	}
	if len(include) > 0 {
		if slices.Contains(include, group) {
			return true, fmt.Sprintf("included by group '%s'", group)
		}
		return false, fmt.Sprintf("group '%s' not in include list %v", group, include)
	}
	if len(exclude) > 0 {
		return true, fmt.Sprintf("group '%s' not in exclude list %v", group, exclude)
	}
	return true, "no group filters specified"
}
