package rules

import (
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// Filter drops rules whose id matches any disabled pattern ("FILE_*",
// "*_LOOP"). Patterns are compared case-insensitively; catalog order is
// preserved.
func Filter(rules []Rule, disabled []string) (kept []Rule, dropped []string) {
	if len(disabled) == 0 {
		return rules, nil
	}
	patterns := make([]string, 0, len(disabled))
	for _, p := range disabled {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, strings.ToUpper(p))
		}
	}
	kept = make([]Rule, 0, len(rules))
	for _, r := range rules {
		if isDisabled(patterns, r.ID) {
			dropped = append(dropped, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}

func isDisabled(patterns []string, id string) bool {
	id = strings.ToUpper(id)
	for _, p := range patterns {
		if wildcard.Match(p, id) {
			return true
		}
	}
	return false
}
