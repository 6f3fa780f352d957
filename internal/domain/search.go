package domain

import "time"

// UnknownYear is the year value used when an upstream item carries no usable year.
const UnknownYear = "unknown"

// SearchResult is one title returned by one source.
type SearchResult struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Poster     string   `json:"poster,omitempty"`
	Episodes   []string `json:"episodes"`
	Source     string   `json:"source"`
	SourceName string   `json:"source_name"`
	Class      string   `json:"class,omitempty"`
	Year       string   `json:"year"`
	Desc       string   `json:"desc,omitempty"`
	TypeName   string   `json:"type_name,omitempty"`
	DoubanID   string   `json:"douban_id,omitempty"`
}

// Clone returns a copy that shares no slices with the receiver.
func (r SearchResult) Clone() SearchResult {
	cloned := r
	if r.Episodes != nil {
		cloned.Episodes = append([]string(nil), r.Episodes...)
	}
	return cloned
}

func CloneResults(items []SearchResult) []SearchResult {
	if items == nil {
		return nil
	}
	out := make([]SearchResult, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

type SearchRequest struct {
	Query  string
	Caller string
	// IncludeAdult overrides the caller's stored preference when set.
	IncludeAdult *bool
	NoCache      bool
}

type SearchResponse struct {
	RegularResults []SearchResult `json:"regular_results"`
	AdultResults   []SearchResult `json:"adult_results"`
	Cached         bool           `json:"cached"`
	SearchTime     int64          `json:"search_time"`
	Degraded       bool           `json:"degraded,omitempty"`
}

// EmptySearchResponse is the degenerate answer for empty queries and empty registries.
func EmptySearchResponse() SearchResponse {
	return SearchResponse{
		RegularResults: []SearchResult{},
		AdultResults:   []SearchResult{},
	}
}

// AggregateGroup is a display bucket of results judged to be the same title.
type AggregateGroup struct {
	Key   string         `json:"key"`
	Title string         `json:"title"`
	Year  string         `json:"year"`
	Type  string         `json:"type"`
	Items []SearchResult `json:"items"`
}

type AggregateResponse struct {
	Query      string           `json:"query"`
	Groups     []AggregateGroup `json:"groups"`
	Cached     bool             `json:"cached"`
	SearchTime int64            `json:"search_time"`
	Degraded   bool             `json:"degraded,omitempty"`
}

// SearchStreamUpdate is emitted once per finished source by the streaming search.
type SearchStreamUpdate struct {
	Query      string         `json:"query"`
	Source     string         `json:"source,omitempty"`
	SourceName string         `json:"source_name,omitempty"`
	Results    []SearchResult `json:"results"`
	Completed  int            `json:"completed"`
	Total      int            `json:"total"`
	Cached     bool           `json:"cached,omitempty"`
	Final      bool           `json:"final"`
	Error      string         `json:"error,omitempty"`
}

type SourceDiagnostics struct {
	Key                 string     `json:"key"`
	Name                string     `json:"name"`
	Disabled            bool       `json:"disabled"`
	IsAdult             bool       `json:"is_adult"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	LastResultCount     int        `json:"lastResultCount,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

// StreamQuality is the result of probing an HLS playlist.
type StreamQuality struct {
	Quality       string `json:"quality"`
	LoadSpeed     string `json:"loadSpeed"`
	PingTime      int64  `json:"pingTime"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	BandwidthKbps int64  `json:"bandwidthKbps,omitempty"`
}
