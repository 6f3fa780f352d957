// Package siteconfig serves the admin-editable site configuration.
package siteconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

const MaxSearchDownstreamMaxPage = 20

var ErrInvalidConfig = errors.New("invalid site config")

type Store interface {
	LoadSiteConfig(ctx context.Context) (domain.SiteConfig, bool, error)
	SaveSiteConfig(ctx context.Context, cfg domain.SiteConfig) error
}

// Service caches the stored config in process. Defaults apply until an admin saves one.
type Service struct {
	store    Store
	defaults domain.SiteConfig

	mu     sync.RWMutex
	cached *domain.SiteConfig
}

func NewService(store Store, defaults domain.SiteConfig) *Service {
	return &Service{store: store, defaults: withDefaults(defaults)}
}

func (s *Service) Get(ctx context.Context) (domain.SiteConfig, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}
	if s.store == nil {
		return s.defaults, nil
	}

	cfg, ok, err := s.store.LoadSiteConfig(ctx)
	if err != nil {
		return s.defaults, fmt.Errorf("load site config: %w", err)
	}
	if !ok {
		cfg = s.defaults
	}
	cfg = withDefaults(cfg)

	s.mu.Lock()
	s.cached = &cfg
	s.mu.Unlock()
	return cfg, nil
}

func (s *Service) Update(ctx context.Context, cfg domain.SiteConfig) (domain.SiteConfig, error) {
	cfg = normalize(cfg)
	if err := Validate(cfg); err != nil {
		return domain.SiteConfig{}, err
	}
	if s.store != nil {
		if err := s.store.SaveSiteConfig(ctx, cfg); err != nil {
			return domain.SiteConfig{}, fmt.Errorf("save site config: %w", err)
		}
	}
	s.mu.Lock()
	s.cached = &cfg
	s.mu.Unlock()
	return cfg, nil
}

// SearchMaxPage is the per-source page cap for searches. Store failures fall back
// to the configured default.
func (s *Service) SearchMaxPage(ctx context.Context) int {
	cfg, _ := s.Get(ctx)
	if cfg.SearchDownstreamMaxPage <= 0 {
		return domain.DefaultSearchDownstreamMaxPage
	}
	return cfg.SearchDownstreamMaxPage
}

func Validate(cfg domain.SiteConfig) error {
	if strings.TrimSpace(cfg.SiteName) == "" {
		return fmt.Errorf("%w: SiteName is required", ErrInvalidConfig)
	}
	if cfg.SearchDownstreamMaxPage < 1 || cfg.SearchDownstreamMaxPage > MaxSearchDownstreamMaxPage {
		return fmt.Errorf("%w: SearchDownstreamMaxPage must be between 1 and %d", ErrInvalidConfig, MaxSearchDownstreamMaxPage)
	}
	if cfg.SiteInterfaceCacheTime <= 0 {
		return fmt.Errorf("%w: SiteInterfaceCacheTime must be positive", ErrInvalidConfig)
	}
	return nil
}

func normalize(cfg domain.SiteConfig) domain.SiteConfig {
	cfg.SiteName = strings.TrimSpace(cfg.SiteName)
	cfg.Announcement = strings.TrimSpace(cfg.Announcement)
	cfg.ImageProxy = strings.TrimSpace(cfg.ImageProxy)
	cfg.DoubanProxy = strings.TrimSpace(cfg.DoubanProxy)
	return cfg
}

func withDefaults(cfg domain.SiteConfig) domain.SiteConfig {
	fallback := domain.DefaultSiteConfig()
	cfg = normalize(cfg)
	if cfg.SiteName == "" {
		cfg.SiteName = fallback.SiteName
	}
	if cfg.SearchDownstreamMaxPage <= 0 {
		cfg.SearchDownstreamMaxPage = fallback.SearchDownstreamMaxPage
	}
	if cfg.SiteInterfaceCacheTime <= 0 {
		cfg.SiteInterfaceCacheTime = fallback.SiteInterfaceCacheTime
	}
	return cfg
}
