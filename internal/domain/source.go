package domain

import (
	"strings"
	"time"
)

type SourceOrigin string

const (
	SourceOriginConfig SourceOrigin = "config"
	SourceOriginCustom SourceOrigin = "custom"
)

// Source is one upstream video API configured in the registry.
type Source struct {
	ID        int64        `json:"id"`
	Key       string       `json:"key"`
	Name      string       `json:"name"`
	API       string       `json:"api"`
	Detail    string       `json:"detail,omitempty"`
	From      SourceOrigin `json:"from"`
	Disabled  bool         `json:"disabled"`
	IsAdult   bool         `json:"is_adult"`
	SortOrder int          `json:"sort_order"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
}

// HTMLDetail reports whether detail lookups go through the scraped detail page.
func (s Source) HTMLDetail() bool {
	return strings.TrimSpace(s.Detail) != ""
}

// SourceInput is the admin-supplied shape of a new source.
type SourceInput struct {
	Key     string `json:"key" toml:"key"`
	Name    string `json:"name" toml:"name"`
	API     string `json:"api" toml:"api"`
	Detail  string `json:"detail,omitempty" toml:"detail"`
	IsAdult bool   `json:"is_adult,omitempty" toml:"is_adult"`
}

func (in SourceInput) Normalize() SourceInput {
	return SourceInput{
		Key:     strings.TrimSpace(in.Key),
		Name:    strings.TrimSpace(in.Name),
		API:     strings.TrimSpace(in.API),
		Detail:  strings.TrimRight(strings.TrimSpace(in.Detail), "/"),
		IsAdult: in.IsAdult,
	}
}

type SourceActionResult struct {
	Key     string `json:"key"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type SourceBatchResult struct {
	OK           bool                 `json:"ok"`
	Results      []SourceActionResult `json:"results"`
	Total        int                  `json:"total"`
	SuccessCount int                  `json:"success_count"`
	FailedCount  int                  `json:"failed_count"`
}

// NewSourceBatchResult fills the counters from per-key results.
func NewSourceBatchResult(results []SourceActionResult) SourceBatchResult {
	out := SourceBatchResult{
		OK:      true,
		Results: results,
		Total:   len(results),
	}
	if out.Results == nil {
		out.Results = []SourceActionResult{}
	}
	for _, result := range results {
		if result.Success {
			out.SuccessCount++
		} else {
			out.FailedCount++
		}
	}
	return out
}
