// Package memory is the in-process store used when no database is configured.
// Contents are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/registry"
)

type Store struct {
	mu       sync.RWMutex
	seq      int64
	sources  map[string]domain.Source
	settings map[string]domain.UserSettings
	site     *domain.SiteConfig
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sources:  make(map[string]domain.Source),
		settings: make(map[string]domain.UserSettings),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) ListSources(_ context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Source, 0, len(s.sources))
	for _, source := range s.sources {
		out = append(out, source)
	}
	registry.SortSources(out)
	return out, nil
}

func (s *Store) GetSource(_ context.Context, key string) (domain.Source, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	source, ok := s.sources[key]
	return source, ok, nil
}

func (s *Store) InsertSource(_ context.Context, source domain.Source) (domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sources[source.Key]; exists {
		return domain.Source{}, registry.ErrSourceExists
	}
	s.seq++
	now := s.now()
	source.ID = s.seq
	source.CreatedAt = now
	source.UpdatedAt = now
	s.sources[source.Key] = source
	return source, nil
}

func (s *Store) UpdateSource(_ context.Context, source domain.Source) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sources[source.Key]
	if !ok {
		return false, nil
	}
	current.Name = source.Name
	current.API = source.API
	current.Detail = source.Detail
	current.IsAdult = source.IsAdult
	current.UpdatedAt = s.now()
	s.sources[source.Key] = current
	return true, nil
}

func (s *Store) SetSourceDisabled(_ context.Context, key string, disabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sources[key]
	if !ok {
		return false, nil
	}
	current.Disabled = disabled
	current.UpdatedAt = s.now()
	s.sources[key] = current
	return true, nil
}

func (s *Store) DeleteSource(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[key]; !ok {
		return false, nil
	}
	delete(s.sources, key)
	return true, nil
}

func (s *Store) ReorderSources(_ context.Context, order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for index, key := range order {
		current, ok := s.sources[key]
		if !ok {
			continue
		}
		current.SortOrder = index
		current.UpdatedAt = now
		s.sources[key] = current
	}
	return nil
}

func (s *Store) GetUserSettings(_ context.Context, username string) (domain.UserSettings, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.settings[username]
	return settings, ok, nil
}

func (s *Store) SaveUserSettings(_ context.Context, settings domain.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.Username] = settings
	return nil
}

func (s *Store) LoadSiteConfig(_ context.Context) (domain.SiteConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.site == nil {
		return domain.SiteConfig{}, false, nil
	}
	return *s.site, true, nil
}

func (s *Store) SaveSiteConfig(_ context.Context, cfg domain.SiteConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.site = &cfg
	return nil
}
