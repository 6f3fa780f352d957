package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	seq     int64
	sources map[string]domain.Source
	listErr error
}

func newFakeStore(sources ...domain.Source) *fakeStore {
	store := &fakeStore{sources: make(map[string]domain.Source)}
	for _, source := range sources {
		store.seq++
		if source.ID == 0 {
			source.ID = store.seq
		}
		store.sources[source.Key] = source
	}
	return store
}

func (f *fakeStore) ListSources(context.Context) ([]domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Source, 0, len(f.sources))
	for _, source := range f.sources {
		out = append(out, source)
	}
	return out, nil
}

func (f *fakeStore) GetSource(_ context.Context, key string) (domain.Source, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.sources[key]
	return source, ok, nil
}

func (f *fakeStore) InsertSource(_ context.Context, source domain.Source) (domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sources[source.Key]; ok {
		return domain.Source{}, ErrSourceExists
	}
	f.seq++
	source.ID = f.seq
	f.sources[source.Key] = source
	return source, nil
}

func (f *fakeStore) UpdateSource(_ context.Context, source domain.Source) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sources[source.Key]; !ok {
		return false, nil
	}
	f.sources[source.Key] = source
	return true, nil
}

func (f *fakeStore) SetSourceDisabled(_ context.Context, key string, disabled bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.sources[key]
	if !ok {
		return false, nil
	}
	source.Disabled = disabled
	f.sources[key] = source
	return true, nil
}

func (f *fakeStore) DeleteSource(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sources[key]; !ok {
		return false, nil
	}
	delete(f.sources, key)
	return true, nil
}

func (f *fakeStore) ReorderSources(_ context.Context, order []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for index, key := range order {
		if source, ok := f.sources[key]; ok {
			source.SortOrder = index
			f.sources[key] = source
		}
	}
	return nil
}

func keys(sources []domain.Source) []string {
	out := make([]string, 0, len(sources))
	for _, source := range sources {
		out = append(out, source.Key)
	}
	return out
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestListEligibleSources(t *testing.T) {
	store := newFakeStore(
		domain.Source{Key: "c", ID: 3, SortOrder: 0},
		domain.Source{Key: "a", ID: 1, SortOrder: 1},
		domain.Source{Key: "b", ID: 2, SortOrder: 0},
		domain.Source{Key: "off", ID: 4, Disabled: true},
		domain.Source{Key: "adult", ID: 5, IsAdult: true, SortOrder: 2},
	)
	registry := New(store)

	filtered, err := registry.ListEligibleSources(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := keys(filtered); len(got) != 3 || got[0] != "b" || got[1] != "c" || got[2] != "a" {
		t.Fatalf("unexpected eligible order: %v", got)
	}

	withAdult, err := registry.ListEligibleSources(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := keys(withAdult); len(got) != 4 || got[3] != "adult" {
		t.Fatalf("adult source should be eligible when requested: %v", got)
	}
}

func TestListEligibleSourcesStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("db down")

	_, err := New(store).ListEligibleSources(context.Background(), false)
	if !errors.Is(err, ErrRegistryUnavailable) {
		t.Fatalf("expected ErrRegistryUnavailable, got %v", err)
	}
	if _, err := New(nil).ListEligibleSources(context.Background(), false); !errors.Is(err, ErrRegistryUnavailable) {
		t.Fatalf("nil store should be unavailable, got %v", err)
	}
}

func TestRegistrySource(t *testing.T) {
	registry := New(newFakeStore(domain.Source{Key: "a", Name: "A"}))
	source, err := registry.Source(context.Background(), " a ")
	if err != nil || source.Name != "A" {
		t.Fatalf("unexpected lookup: %+v %v", source, err)
	}
	if _, err := registry.Source(context.Background(), "zzz"); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

func TestAdminAddValidates(t *testing.T) {
	admin := NewAdmin(newFakeStore(), nil)
	ctx := context.Background()

	source, err := admin.Add(ctx, domain.SourceInput{Key: " new ", Name: "New", API: "https://new.example/api", Detail: "https://new.example/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.Key != "new" || source.From != domain.SourceOriginCustom || source.Detail != "https://new.example" {
		t.Fatalf("unexpected source: %+v", source)
	}

	invalid := []domain.SourceInput{
		{Name: "x", API: "https://x.example"},
		{Key: "x", API: "https://x.example"},
		{Key: "x", Name: "x", API: "ftp://x.example"},
		{Key: "x y", Name: "x", API: "https://x.example"},
		{Key: "x", Name: "x", API: "https://x.example", Detail: "not a url"},
	}
	for _, input := range invalid {
		if _, err := admin.Add(ctx, input); !errors.Is(err, ErrInvalidSource) {
			t.Errorf("expected ErrInvalidSource for %+v, got %v", input, err)
		}
	}
	if _, err := admin.Add(ctx, domain.SourceInput{Key: "new", Name: "New", API: "https://new.example/api"}); !errors.Is(err, ErrSourceExists) {
		t.Fatalf("expected ErrSourceExists, got %v", err)
	}
}

func TestAdminDeleteProtectsConfigSources(t *testing.T) {
	store := newFakeStore(
		domain.Source{Key: "cfg", From: domain.SourceOriginConfig},
		domain.Source{Key: "mine", From: domain.SourceOriginCustom},
	)
	admin := NewAdmin(store, nil)
	ctx := context.Background()

	if err := admin.Delete(ctx, "cfg"); !errors.Is(err, ErrSourceProtected) {
		t.Fatalf("expected ErrSourceProtected, got %v", err)
	}
	if err := admin.Delete(ctx, "mine"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := admin.Delete(ctx, "mine"); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestAdminEnableDisableAndSort(t *testing.T) {
	store := newFakeStore(domain.Source{Key: "a"}, domain.Source{Key: "b"}, domain.Source{Key: "c"})
	admin := NewAdmin(store, nil)
	ctx := context.Background()

	if err := admin.Disable(ctx, "b"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if source, _, _ := store.GetSource(ctx, "b"); !source.Disabled {
		t.Fatal("expected b disabled")
	}
	if err := admin.Enable(ctx, "b"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := admin.Enable(ctx, "zzz"); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}

	if err := admin.Sort(ctx, []string{"c", "a", "b"}); err != nil {
		t.Fatalf("sort: %v", err)
	}
	list, _ := New(store).List(ctx)
	if got := keys(list); got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("unexpected order: %v", got)
	}
	if err := admin.Sort(ctx, []string{"a", "a"}); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if err := admin.Sort(ctx, nil); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("expected empty order rejection, got %v", err)
	}
}

func TestAdminBatchContinuesPastFailures(t *testing.T) {
	store := newFakeStore(domain.Source{Key: "cfg", From: domain.SourceOriginConfig}, domain.Source{Key: "mine"})
	admin := NewAdmin(store, nil)
	ctx := context.Background()

	result := admin.BatchDelete(ctx, []string{"cfg", "mine", "ghost"})
	if !result.OK || result.Total != 3 || result.SuccessCount != 1 || result.FailedCount != 2 {
		t.Fatalf("unexpected batch result: %+v", result)
	}
	if !result.Results[1].Success || result.Results[0].Error == "" {
		t.Fatalf("unexpected per-key results: %+v", result.Results)
	}

	added := admin.BatchAdd(ctx, []domain.SourceInput{
		{Key: "x", Name: "X", API: "https://x.example"},
		{Key: "bad"},
	})
	if added.SuccessCount != 1 || added.FailedCount != 1 {
		t.Fatalf("unexpected batch add: %+v", added)
	}

	disabled := admin.BatchDisable(ctx, []string{"x", "cfg"})
	if disabled.SuccessCount != 2 {
		t.Fatalf("unexpected batch disable: %+v", disabled)
	}
	enabled := admin.BatchEnable(ctx, []string{"x"})
	if enabled.SuccessCount != 1 {
		t.Fatalf("unexpected batch enable: %+v", enabled)
	}
}

func TestSyncConfigSources(t *testing.T) {
	store := newFakeStore(
		domain.Source{Key: "old", Name: "Old", API: "https://old.example", From: domain.SourceOriginConfig, Disabled: true, SortOrder: 4},
		domain.Source{Key: "mine", Name: "Mine", API: "https://mine.example", From: domain.SourceOriginCustom},
	)
	admin := NewAdmin(store, nil)
	ctx := context.Background()

	inserted, updated, err := admin.SyncConfigSources(ctx, []domain.SourceInput{
		{Key: "old", Name: "Old v2", API: "https://old2.example"},
		{Key: "mine", Name: "Overwritten?", API: "https://x.example"},
		{Key: "fresh", Name: "Fresh", API: "https://fresh.example"},
		{Key: "broken"},
	})
	if err == nil {
		t.Fatal("expected the invalid entry to be reported")
	}
	if inserted != 1 || updated != 1 {
		t.Fatalf("expected 1 insert and 1 update, got %d %d", inserted, updated)
	}

	old, _, _ := store.GetSource(ctx, "old")
	if old.Name != "Old v2" || !old.Disabled || old.SortOrder != 4 {
		t.Fatalf("config source should be updated in place: %+v", old)
	}
	mine, _, _ := store.GetSource(ctx, "mine")
	if mine.Name != "Mine" {
		t.Fatalf("custom source must not be touched: %+v", mine)
	}
	fresh, _, _ := store.GetSource(ctx, "fresh")
	if fresh.From != domain.SourceOriginConfig {
		t.Fatalf("fresh source should be config-origin: %+v", fresh)
	}
}
