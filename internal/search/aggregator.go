package search

import (
	"sort"
	"strings"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

const (
	GroupTypeMovie = "movie"
	GroupTypeTV    = "tv"
)

// Flatten concatenates per-source lists. Nothing is deduplicated.
func Flatten(lists [][]domain.SearchResult) []domain.SearchResult {
	total := 0
	for _, list := range lists {
		total += len(list)
	}
	out := make([]domain.SearchResult, 0, total)
	for _, list := range lists {
		out = append(out, list...)
	}
	return out
}

// GroupKey buckets results that are most likely the same title: same
// space-stripped title, same year, same movie/tv shape.
func GroupKey(result domain.SearchResult) string {
	return strings.ReplaceAll(result.Title, " ", "") + "-" + result.Year + "-" + groupType(result)
}

func groupType(result domain.SearchResult) string {
	if len(result.Episodes) == 1 {
		return GroupTypeMovie
	}
	return GroupTypeTV
}

// Group buckets results by GroupKey. Groups whose title contains the query come
// first, then newer years, unknown years last, then key order. Items keep their
// input order inside a group.
func Group(query string, results []domain.SearchResult) []domain.AggregateGroup {
	index := make(map[string]int, len(results))
	groups := make([]domain.AggregateGroup, 0)
	for _, result := range results {
		key := GroupKey(result)
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, domain.AggregateGroup{
				Key:   key,
				Title: result.Title,
				Year:  result.Year,
				Type:  groupType(result),
			})
		}
		groups[pos].Items = append(groups[pos].Items, result)
	}

	needle := strings.ReplaceAll(strings.TrimSpace(query), " ", "")
	matches := func(group domain.AggregateGroup) bool {
		return needle != "" && strings.Contains(strings.ReplaceAll(group.Title, " ", ""), needle)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		left, right := groups[i], groups[j]
		if lm, rm := matches(left), matches(right); lm != rm {
			return lm
		}
		if left.Year != right.Year {
			return yearBefore(left.Year, right.Year)
		}
		return left.Key < right.Key
	})
	return groups
}

// yearBefore orders known years descending with UnknownYear after all of them.
func yearBefore(left, right string) bool {
	leftUnknown := left == domain.UnknownYear || left == ""
	rightUnknown := right == domain.UnknownYear || right == ""
	switch {
	case leftUnknown && rightUnknown:
		return false
	case leftUnknown:
		return false
	case rightUnknown:
		return true
	default:
		return left > right
	}
}
