package filtering

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gobwas/glob"
)

// NameFilter decides whether a screen is shown from its resource name.
// The reason is logged by the Selector when a screen is dropped.
type NameFilter interface {
	ShouldInclude(name string, include, exclude []string) (bool, string)
}

// globNameFilter matches names against glob patterns. "*" also crosses "/",
// so "hr*" selects "hr/employees".
type globNameFilter struct {
	cache sync.Map // pattern -> glob.Glob
}

var _ NameFilter = (*globNameFilter)(nil)

// NewDefaultNameFilter returns the glob based NameFilter
func NewDefaultNameFilter() NameFilter {
	return &globNameFilter{}
}

// ValidatePattern reports whether pattern is a usable glob. Patterns must also be valid for
// filepath.Match so config files stay portable to shell-style tooling.
func ValidatePattern(pattern string) error {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	if _, err := glob.Compile(pattern); err != nil {
		return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return nil
}

func (f *globNameFilter) compile(pattern string) (glob.Glob, error) {
	if g, ok := f.cache.Load(pattern); ok {
		return g.(glob.Glob), nil
	}
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	g := glob.MustCompile(pattern)
	f.cache.Store(pattern, g)
	return g, nil
}

// firstMatch returns the first pattern matching name, or "" when none does
func (f *globNameFilter) firstMatch(name string, patterns []string) (string, error) {
	for _, p := range patterns {
		g, err := f.compile(p)
		if err != nil {
			return "", err
		}
		if g.Match(name) {
			return p, nil
		}
	}
	return "", nil
}

// ShouldInclude applies exclude patterns first; a non-empty include list then acts as an allow list
func (f *globNameFilter) ShouldInclude(name string, include, exclude []string) (bool, string) {
	hit, err := f.firstMatch(name, exclude)
	switch {
	case err != nil:
		return false, fmt.Sprintf("exclude rules: %v", err)
	case hit != "":
		return false, fmt.Sprintf("excluded by %q", hit)
	}

	if len(include) == 0 {
		return true, "not excluded"
	}
	hit, err = f.firstMatch(name, include)
	switch {
	case err != nil:
		return false, fmt.Sprintf("include rules: %v", err)
	case hit != "":
		return true, fmt.Sprintf("included by %q", hit)
	default:
		return false, fmt.Sprintf("matches none of %v", include)
	}
}
