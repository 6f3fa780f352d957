package siteconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

type fakeStore struct {
	cfg     *domain.SiteConfig
	loads   int
	loadErr error
}

func (f *fakeStore) LoadSiteConfig(context.Context) (domain.SiteConfig, bool, error) {
	f.loads++
	if f.loadErr != nil {
		return domain.SiteConfig{}, false, f.loadErr
	}
	if f.cfg == nil {
		return domain.SiteConfig{}, false, nil
	}
	return *f.cfg, true, nil
}

func (f *fakeStore) SaveSiteConfig(_ context.Context, cfg domain.SiteConfig) error {
	f.cfg = &cfg
	return nil
}

func TestGetFallsBackToDefaults(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, domain.SiteConfig{SiteName: "Env Site", SearchDownstreamMaxPage: 4})

	cfg, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SiteName != "Env Site" || cfg.SearchDownstreamMaxPage != 4 || cfg.SiteInterfaceCacheTime != domain.DefaultSiteInterfaceCacheTime {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	_, _ = svc.Get(context.Background())
	if store.loads != 1 {
		t.Fatalf("expected a single store load, got %d", store.loads)
	}
}

func TestUpdateValidatesAndCaches(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, domain.DefaultSiteConfig())
	ctx := context.Background()

	bad := domain.DefaultSiteConfig()
	bad.SearchDownstreamMaxPage = 21
	if _, err := svc.Update(ctx, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	bad = domain.DefaultSiteConfig()
	bad.SiteInterfaceCacheTime = 0
	if _, err := svc.Update(ctx, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	good := domain.DefaultSiteConfig()
	good.SearchDownstreamMaxPage = 2
	good.Announcement = "  hi  "
	saved, err := svc.Update(ctx, good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Announcement != "hi" || store.cfg == nil {
		t.Fatalf("expected normalized config to be stored: %+v", saved)
	}
	if got := svc.SearchMaxPage(ctx); got != 2 {
		t.Fatalf("expected max page 2, got %d", got)
	}
}

func TestSearchMaxPageOnStoreError(t *testing.T) {
	svc := NewService(&fakeStore{loadErr: errors.New("down")}, domain.DefaultSiteConfig())
	if got := svc.SearchMaxPage(context.Background()); got != domain.DefaultSearchDownstreamMaxPage {
		t.Fatalf("expected default max page, got %d", got)
	}
}

func TestRedisFieldsRoundTrip(t *testing.T) {
	cfg := domain.DefaultSiteConfig()
	cfg.ImageProxy = "https://img.proxy/"
	encoded := encodeFields(cfg)

	items := make(map[string]string, len(encoded))
	for key, value := range encoded {
		items[key] = value.(string)
	}
	if got := decodeFields(items); got != cfg {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if NewRedisStore(nil, "") != nil {
		t.Fatal("nil client should yield a nil store")
	}
}
