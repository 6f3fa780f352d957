// Package registry owns the configured upstream sources: which are eligible for a
// search, in which order, and how operators change them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

var (
	ErrRegistryUnavailable = errors.New("source registry unavailable")
	ErrSourceNotFound      = errors.New("source not found")
	ErrSourceExists        = errors.New("source already exists")
	ErrSourceProtected     = errors.New("config sources cannot be deleted")
	ErrInvalidSource       = errors.New("invalid source")
)

// Store persists sources. Implementations must be safe for concurrent use.
type Store interface {
	ListSources(ctx context.Context) ([]domain.Source, error)
	GetSource(ctx context.Context, key string) (domain.Source, bool, error)
	// InsertSource assigns ID and timestamps. A duplicate key yields ErrSourceExists.
	InsertSource(ctx context.Context, source domain.Source) (domain.Source, error)
	// UpdateSource replaces name, api, detail and adult flag of an existing source.
	UpdateSource(ctx context.Context, source domain.Source) (bool, error)
	SetSourceDisabled(ctx context.Context, key string, disabled bool) (bool, error)
	DeleteSource(ctx context.Context, key string) (bool, error)
	// ReorderSources sets sort_order to the index of each key in order. Unknown keys are ignored.
	ReorderSources(ctx context.Context, order []string) error
}

type Registry struct {
	store Store
}

func New(store Store) *Registry {
	return &Registry{store: store}
}

// ListEligibleSources returns enabled sources in sortOrder, id order. Adult
// sources are dropped unless includeAdultSources is set.
func (r *Registry) ListEligibleSources(ctx context.Context, includeAdultSources bool) ([]domain.Source, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	eligible := make([]domain.Source, 0, len(all))
	for _, source := range all {
		if source.Disabled {
			continue
		}
		if source.IsAdult && !includeAdultSources {
			continue
		}
		eligible = append(eligible, source)
	}
	return eligible, nil
}

// List returns every source, disabled ones included, in display order.
func (r *Registry) List(ctx context.Context) ([]domain.Source, error) {
	if r == nil || r.store == nil {
		return nil, ErrRegistryUnavailable
	}
	sources, err := r.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	SortSources(sources)
	return sources, nil
}

func (r *Registry) Source(ctx context.Context, key string) (domain.Source, error) {
	if r == nil || r.store == nil {
		return domain.Source{}, ErrRegistryUnavailable
	}
	key = strings.TrimSpace(key)
	source, ok, err := r.store.GetSource(ctx, key)
	if err != nil {
		return domain.Source{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	if !ok {
		return domain.Source{}, fmt.Errorf("%w: %s", ErrSourceNotFound, key)
	}
	return source, nil
}

// SortSources orders sources by sortOrder ascending, then id ascending.
func SortSources(sources []domain.Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].SortOrder != sources[j].SortOrder {
			return sources[i].SortOrder < sources[j].SortOrder
		}
		return sources[i].ID < sources[j].ID
	})
}
