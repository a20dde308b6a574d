package filtering

import "log/slog"

// GroupRules restricts screens by group
type GroupRules struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Rules selects the visible screens
type Rules struct {
	Include []string   `yaml:"include,omitempty"`
	Exclude []string   `yaml:"exclude,omitempty"`
	Groups  GroupRules `yaml:"groups,omitempty"`
}

// IsZero reports whether no rule is set
func (r Rules) IsZero() bool {
	return len(r.Include) == 0 && len(r.Exclude) == 0 &&
		len(r.Groups.Include) == 0 && len(r.Groups.Exclude) == 0
}

// Validate checks every glob pattern
func (r Rules) Validate() error {
	for _, p := range append(append([]string{}, r.Include...), r.Exclude...) {
		if err := ValidatePattern(p); err != nil {
			return err
		}
	}
	return nil
}

// Selector applies Rules with the given filter implementations
type Selector struct {
	names  NameFilter
	groups GroupFilter
}

// NewSelector creates a Selector with the default filters
func NewSelector() *Selector {
	return &Selector{names: NewDefaultNameFilter(), groups: NewDefaultGroupFilter()}
}

// NewSelectorWith creates a Selector with custom filter implementations
func NewSelectorWith(names NameFilter, groups GroupFilter) *Selector {
	return &Selector{names: names, groups: groups}
}

// Include reports whether the screen name in group passes rules
func (s *Selector) Include(name, group string, rules Rules) bool {
	ok, reason := s.names.ShouldInclude(name, rules.Include, rules.Exclude)
	if !ok {
		slog.Debug("Screen hidden", "screen", name, "reason", reason)
		return false
	}
	ok, reason = s.groups.ShouldInclude(group, rules.Groups.Include, rules.Groups.Exclude)
	if !ok {
		slog.Debug("Screen hidden", "screen", name, "reason", reason)
		return false
	}
	return true
}

// Select returns the items of screens that pass rules, preserving order
func Select[T any](screens []T, rules Rules, nameOf, groupOf func(T) string) []T {
	if rules.IsZero() {
		return screens
	}
	s := NewSelector()
	out := make([]T, 0, len(screens))
	for _, screen := range screens {
		if s.Include(nameOf(screen), groupOf(screen), rules) {
			out = append(out, screen)
		}
	}
	return out
}
