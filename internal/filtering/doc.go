// Package filtering selects which console screens are shown.
//
// Screens are filtered by name with glob patterns and by group with exact
// matching. Both follow the same precedence rules:
//
//  1. If exclude patterns/groups are specified and match -> exclude (precedence)
//  2. If include patterns/groups are specified and match -> include
//  3. If include patterns/groups are specified but no match -> exclude
//  4. If only exclude patterns/groups specified and no match -> include
//  5. If no filters specified -> include (default behavior)
//
// A screen is shown only when it passes BOTH name and group filtering.
//
// # Usage Example
//
//	rules := filtering.Rules{
//		Include: []string{"menu*", "product*"},
//		Exclude: []string{"*-legacy"},
//		Groups:  filtering.GroupRules{Exclude: []string{"hr"}},
//	}
//	visible := filtering.Select(screens, rules, nameOf, groupOf)
package filtering
