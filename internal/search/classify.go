package search

import "strings"

// CategoryRule routes queries matching any of its keywords to a set of
// sources. Rules are evaluated in order; the first match wins.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Sources  []string `yaml:"sources"`
}

// ClassifyQuery returns the source ids a query should be routed to, or
// nil when no rule matches (retrieve from all sources). Matching is
// case-insensitive substring containment.
func ClassifyQuery(queryText string, rules []CategoryRule) []string {
	if len(rules) == 0 {
		return nil
	}
	lowered := strings.ToLower(queryText)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(kw)) {
				return rule.Sources
			}
		}
	}
	return nil
}
