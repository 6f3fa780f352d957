package vodapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/providers/common"
)

func newTestClient(retries int) *Client {
	return NewClient(Config{
		Timeout:       500 * time.Millisecond,
		DetailTimeout: 500 * time.Millisecond,
		Retries:       retries,
		RetryDelay:    time.Millisecond,
	})
}

func listPayload(pageCount int, names ...string) string {
	items := make([]string, 0, len(names))
	for i, name := range names {
		items = append(items, fmt.Sprintf(
			`{"vod_id":"%d","vod_name":%q,"vod_year":"2020","vod_play_url":"1$https://cdn.example/%d.m3u8"}`,
			i+1, name, i+1,
		))
	}
	return fmt.Sprintf(`{"code":1,"pagecount":%d,"list":[%s]}`, pageCount, strings.Join(items, ","))
}

// pagedUpstream serves pageCount pages and records which pages were requested.
type pagedUpstream struct {
	pageCount int
	mu        sync.Mutex
	pages     []string
}

func (u *pagedUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page := r.URL.Query().Get("pg")
	if page == "" {
		page = "1"
	}
	u.mu.Lock()
	u.pages = append(u.pages, page)
	u.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprint(w, listPayload(u.pageCount, "Item page "+page))
}

func (u *pagedUpstream) requested() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.pages...)
}

// ---------------------------------------------------------------------------
// Pagination
// ---------------------------------------------------------------------------

func TestSearchPageLimitShortQuery(t *testing.T) {
	upstream := &pagedUpstream{pageCount: 3}
	server := httptest.NewServer(upstream)
	defer server.Close()

	source := domain.Source{Key: "alpha", Name: "Alpha", API: server.URL}
	results, err := newTestClient(0).Search(context.Background(), source, "test", false, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := upstream.requested(); len(got) != 2 {
		t.Fatalf("expected exactly 2 page fetches, got %v", got)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Item page 1" || results[1].Title != "Item page 2" {
		t.Fatalf("pages should be concatenated in page order: %+v", results)
	}
}

func TestSearchPageLimitByQueryLength(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  int
	}{
		{name: "short query", query: "流浪地球", want: 3},
		{name: "long query", query: "一二三四五六七八九十十一", want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			upstream := &pagedUpstream{pageCount: 9}
			server := httptest.NewServer(upstream)
			defer server.Close()

			source := domain.Source{Key: "alpha", API: server.URL}
			if _, err := newTestClient(0).Search(context.Background(), source, tc.query, false, 5); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := len(upstream.requested()); got != tc.want {
				t.Fatalf("expected %d page fetches, got %d", tc.want, got)
			}
		})
	}
}

func TestSearchSinglePageWhenPageCountMissing(t *testing.T) {
	upstream := &pagedUpstream{pageCount: 0}
	server := httptest.NewServer(upstream)
	defer server.Close()

	source := domain.Source{Key: "alpha", API: server.URL}
	if _, err := newTestClient(0).Search(context.Background(), source, "test", false, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(upstream.requested()); got != 1 {
		t.Fatalf("expected 1 page fetch, got %d", got)
	}
}

func TestPagesFor(t *testing.T) {
	cases := []struct {
		query string
		max   int
		want  int
	}{
		{query: "abc", max: 5, want: 3},
		{query: "abc", max: 1, want: 1},
		{query: "abcdefghijk", max: 5, want: 2},
		{query: "abcdefghij", max: 5, want: 3},
		{query: "abc", max: 0, want: 3},
	}
	for _, tc := range cases {
		if got := PagesFor(tc.query, tc.max); got != tc.want {
			t.Errorf("PagesFor(%q, %d) = %d, want %d", tc.query, tc.max, got, tc.want)
		}
	}
}

func TestSearchFailedExtraPageKeepsOthers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("pg") {
		case "2":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "3":
			_, _ = fmt.Fprint(w, listPayload(3, "Third"))
		default:
			_, _ = fmt.Fprint(w, listPayload(3, "First"))
		}
	}))
	defer server.Close()

	source := domain.Source{Key: "alpha", API: server.URL}
	results, err := newTestClient(0).Search(context.Background(), source, "test", false, 3)
	if err != nil {
		t.Fatalf("a failed extra page must not fail the search: %v", err)
	}
	if len(results) != 2 || results[0].Title != "First" || results[1].Title != "Third" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

// ---------------------------------------------------------------------------
// Transport behavior
// ---------------------------------------------------------------------------

func TestSearchSendsBrowserHeaders(t *testing.T) {
	var userAgent, accept, query, action atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		accept.Store(r.Header.Get("Accept"))
		query.Store(r.URL.Query().Get("wd"))
		action.Store(r.URL.Query().Get("ac"))
		_, _ = fmt.Fprint(w, listPayload(1))
	}))
	defer server.Close()

	source := domain.Source{Key: "alpha", API: server.URL}
	if _, err := newTestClient(0).Search(context.Background(), source, "流浪 地球", false, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userAgent.Load() != common.BrowserUserAgent {
		t.Fatalf("unexpected user agent: %v", userAgent.Load())
	}
	if accept.Load() != "application/json" {
		t.Fatalf("unexpected accept header: %v", accept.Load())
	}
	if query.Load() != "流浪 地球" || action.Load() != "videolist" {
		t.Fatalf("unexpected query params: wd=%v ac=%v", query.Load(), action.Load())
	}
}

func TestSearchRetriesNon2xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, listPayload(1, "Recovered"))
	}))
	defer server.Close()

	source := domain.Source{Key: "alpha", API: server.URL}
	results, err := newTestClient(1).Search(context.Background(), source, "test", false, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if len(results) != 1 || results[0].Title != "Recovered" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearchStatusErrorAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	source := domain.Source{Key: "alpha", API: server.URL}
	results, err := newTestClient(1).Search(context.Background(), source, "test", false, 1)
	if !errors.Is(err, ErrUpstreamStatus) {
		t.Fatalf("expected ErrUpstreamStatus, got %v", err)
	}
	var statusErr *common.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Fatalf("expected wrapped status 502, got %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("failed search should return an empty slice, got %#v", results)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 1 retry, got %d calls", calls.Load())
	}
}

func TestSearchMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<html>maintenance</html>`)
	}))
	defer server.Close()

	source := domain.Source{Key: "alpha", API: server.URL}
	results, err := newTestClient(0).Search(context.Background(), source, "test", false, 1)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestSearchEmptyListIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"code":1,"pagecount":4}`)
	}))
	defer server.Close()

	source := domain.Source{Key: "alpha", API: server.URL}
	results, err := newTestClient(0).Search(context.Background(), source, "test", false, 5)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected empty results without error, got %d %v", len(results), err)
	}
}

func TestSearchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(Config{Timeout: 50 * time.Millisecond, Retries: 0})
	source := domain.Source{Key: "slow", API: server.URL}
	started := time.Now()
	_, err := client.Search(context.Background(), source, "test", false, 1)
	if err == nil || !common.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("timeout not honored, took %v", elapsed)
	}
}

func TestSearchFiltersAdultItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, listPayload(1, "test 正片", "test 成人"))
	}))
	defer server.Close()

	source := domain.Source{Key: "alpha", API: server.URL}
	client := newTestClient(0)

	filtered, err := client.Search(context.Background(), source, "test", false, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Title != "test 正片" {
		t.Fatalf("adult item should be filtered: %+v", filtered)
	}

	all, err := client.Search(context.Background(), source, "test", true, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both items when adult items are included, got %d", len(all))
	}
}

func TestSearchStopsWhenFilteredFirstPageIsEmpty(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = fmt.Fprint(w, listPayload(3, "test 成人"))
	}))
	defer server.Close()

	source := domain.Source{Key: "alpha", API: server.URL}
	results, err := newTestClient(0).Search(context.Background(), source, "test", false, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("adult item should be filtered: %+v", results)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected only page 1 to be fetched, got %d requests", got)
	}
}

func TestSearchEmptyQuerySkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	results, err := newTestClient(0).Search(context.Background(), domain.Source{API: server.URL}, "  ", false, 3)
	if err != nil || len(results) != 0 || calls.Load() != 0 {
		t.Fatalf("expected no network call, got results=%d err=%v calls=%d", len(results), err, calls.Load())
	}
}
