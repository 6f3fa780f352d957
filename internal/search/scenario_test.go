package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/preferences"
	"github.com/Eternity714/KatelyaTV/internal/providers/vodapi"
	"github.com/Eternity714/KatelyaTV/internal/registry"
	"github.com/Eternity714/KatelyaTV/internal/storage/memory"
)

// These tests drive the whole pipeline: memory-backed registry and preferences,
// the real upstream client and httptest upstreams.

func vodItem(id, name string) string {
	return fmt.Sprintf(`{"vod_id":%q,"vod_name":%q,"vod_year":"2010","type_name":"电影","vod_play_url":"正片$https://cdn.example/%s.m3u8"}`, id, name, id)
}

func vodList(pageCount int, items ...string) string {
	return fmt.Sprintf(`{"code":1,"page":1,"pagecount":%d,"list":[%s]}`, pageCount, strings.Join(items, ","))
}

func serveJSON(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, body)
	}))
}

type pipeline struct {
	store   *memory.Store
	service *Service
}

func newPipeline(t *testing.T, apis map[string]string, opts ...Option) *pipeline {
	t.Helper()
	store := memory.NewStore()
	for key, api := range apis {
		if _, err := store.InsertSource(context.Background(), domain.Source{Key: key, Name: "Source " + key, API: api, From: domain.SourceOriginCustom}); err != nil {
			t.Fatalf("insert source: %v", err)
		}
	}
	client := vodapi.NewClient(vodapi.Config{
		Timeout:    200 * time.Millisecond,
		Retries:    0,
		RetryDelay: time.Millisecond,
	})
	opts = append([]Option{WithPreferences(preferences.NewService(store, nil))}, opts...)
	return &pipeline{
		store:   store,
		service: NewService(registry.New(store), client, opts...),
	}
}

func TestScenarioIdenticalTitlesGroupTogether(t *testing.T) {
	first := serveJSON(vodList(1, vodItem("11", "Inception")))
	defer first.Close()
	second := serveJSON(vodList(1, vodItem("42", "Inception")))
	defer second.Close()

	p := newPipeline(t, map[string]string{"one": first.URL, "two": second.URL})
	response, err := p.service.Aggregate(context.Background(), domain.SearchRequest{Query: "Inception"})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(response.Groups) != 1 {
		t.Fatalf("expected exactly one group, got %+v", response.Groups)
	}
	group := response.Groups[0]
	if group.Key != "Inception-2010-movie" || len(group.Items) != 2 {
		t.Fatalf("unexpected group: %+v", group)
	}
}

func TestScenarioAdultKeywordFollowsPreference(t *testing.T) {
	upstream := serveJSON(vodList(1, vodItem("1", "test 成人版"), vodItem("2", "test movie")))
	defer upstream.Close()

	p := newPipeline(t, map[string]string{"src": upstream.URL}, WithCacheDisabled())
	ctx := context.Background()
	if err := p.store.SaveUserSettings(ctx, domain.UserSettings{Username: "open", FilterAdultContent: false}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if err := p.store.SaveUserSettings(ctx, domain.UserSettings{Username: "strict", FilterAdultContent: true}); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	strict, _ := p.service.Search(ctx, domain.SearchRequest{Query: "test", Caller: "strict"})
	if len(strict.RegularResults) != 1 || strict.RegularResults[0].ID != "2" {
		t.Fatalf("filtered caller should only see the clean item, got %+v", strict.RegularResults)
	}

	open, _ := p.service.Search(ctx, domain.SearchRequest{Query: "test", Caller: "open"})
	if len(open.RegularResults) != 2 {
		t.Fatalf("unfiltered caller should see both items, got %+v", open.RegularResults)
	}
}

func TestScenarioSlowSourceDoesNotFailSearch(t *testing.T) {
	items := func(prefix string, n int) []string {
		out := make([]string, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, vodItem(fmt.Sprintf("%s%d", prefix, i), fmt.Sprintf("%s title %d", prefix, i)))
		}
		return out
	}
	five := serveJSON(vodList(1, items("a", 5)...))
	defer five.Close()
	seven := serveJSON(vodList(1, items("b", 7)...))
	defer seven.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(3 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	p := newPipeline(t, map[string]string{"five": five.URL, "seven": seven.URL, "slow": slow.URL})
	started := time.Now()
	response, err := p.service.Search(context.Background(), domain.SearchRequest{Query: "title"})
	elapsed := time.Since(started)
	if err != nil {
		t.Fatalf("timeouts must not surface: %v", err)
	}
	if len(response.RegularResults) != 12 {
		t.Fatalf("expected 12 results, got %d", len(response.RegularResults))
	}
	if elapsed > 2*time.Second {
		t.Fatalf("search took %v, expected it to be bounded by the source timeout", elapsed)
	}
}

func TestScenarioPageBudgetFromSiteConfig(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("pg")
		if page == "" {
			page = "1"
		}
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()
		_, _ = fmt.Fprint(w, vodList(3, vodItem("p"+page, "test page "+page)))
	}))
	defer upstream.Close()

	p := newPipeline(t, map[string]string{"paged": upstream.URL}, WithSiteConfig(staticMaxPage(2)))
	response, _ := p.service.Search(context.Background(), domain.SearchRequest{Query: "test"})

	mu.Lock()
	defer mu.Unlock()
	if len(pages) != 2 {
		t.Fatalf("expected exactly 2 page fetches, got %v", pages)
	}
	if len(response.RegularResults) != 2 {
		t.Fatalf("expected one item per page, got %d", len(response.RegularResults))
	}
}
