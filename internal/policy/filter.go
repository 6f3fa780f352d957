// Package policy holds the item-level adult content gate.
//
// Matching is a plain case-insensitive substring test against a keyword list.
// It is a heuristic: there is no precision or recall target beyond that.
package policy

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultKeywords is used when no keyword list is configured.
var DefaultKeywords = []string{"成人", "情色", "三级", "限制级", "R级", "18+", "成人版", "伦理"}

type Filter struct {
	keywords []string
}

// NewFilter folds and deduplicates keywords. A nil or empty list selects
// DefaultKeywords.
func NewFilter(keywords []string) *Filter {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	folder := cases.Fold()
	seen := make(map[string]struct{}, len(keywords))
	folded := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		value := folder.String(strings.TrimSpace(keyword))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		folded = append(folded, value)
	}
	return &Filter{keywords: folded}
}

// ParseKeywords splits a comma separated ADULT_KEYWORDS value.
func ParseKeywords(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func (f *Filter) Keywords() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.keywords))
	copy(out, f.keywords)
	return out
}

// IsAdult reports whether any field contains a keyword.
func (f *Filter) IsAdult(fields ...string) bool {
	if f == nil || len(f.keywords) == 0 {
		return false
	}
	// A Caser carries state and must not be shared between goroutines.
	folder := cases.Fold()
	for _, field := range fields {
		if field == "" {
			continue
		}
		value := folder.String(field)
		for _, keyword := range f.keywords {
			if strings.Contains(value, keyword) {
				return true
			}
		}
	}
	return false
}

// Allowed is the item gate: everything passes when adult items are included,
// otherwise items matching a keyword in title, description or type name are dropped.
func (f *Filter) Allowed(title, desc, typeName string, includeAdultItems bool) bool {
	if includeAdultItems {
		return true
	}
	return !f.IsAdult(title, desc, typeName)
}
