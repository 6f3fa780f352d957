package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/metrics"
	"github.com/Eternity714/KatelyaTV/internal/registry"
	"github.com/Eternity714/KatelyaTV/internal/telemetry"
)

var ErrInvalidQuery = errors.New("search query is required")

// SourceRegistry lists the sources a search may use.
type SourceRegistry interface {
	ListEligibleSources(ctx context.Context, includeAdultSources bool) ([]domain.Source, error)
	List(ctx context.Context) ([]domain.Source, error)
	Source(ctx context.Context, key string) (domain.Source, error)
}

// Fetcher queries one upstream source.
type Fetcher interface {
	Search(ctx context.Context, source domain.Source, query string, includeAdultItems bool, maxPages int) ([]domain.SearchResult, error)
	Detail(ctx context.Context, source domain.Source, id string) (domain.SearchResult, error)
}

// PreferenceReader answers whether a caller has adult content filtered.
type PreferenceReader interface {
	FilterAdult(ctx context.Context, caller string) bool
}

// MaxPageReader supplies the per-source page budget.
type MaxPageReader interface {
	SearchMaxPage(ctx context.Context) int
}

type Option func(*Service)

func WithCache(cache *Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithCacheDisabled() Option {
	return func(s *Service) {
		s.cache = nil
	}
}

func WithConcurrency(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.concurrency = limit
		}
	}
}

func WithPreferences(preferences PreferenceReader) Option {
	return func(s *Service) {
		s.preferences = preferences
	}
}

func WithSiteConfig(siteConfig MaxPageReader) Option {
	return func(s *Service) {
		s.siteConfig = siteConfig
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type Service struct {
	registry    SourceRegistry
	fetcher     Fetcher
	cache       *Cache
	preferences PreferenceReader
	siteConfig  MaxPageReader
	concurrency int
	health      *healthTracker
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(sources SourceRegistry, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		registry:    sources,
		fetcher:     fetcher,
		cache:       NewCache(CacheOptions{}),
		concurrency: DefaultConcurrency,
		health:      newHealthTracker(),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// searchPlan is the per-request view of who is asking and what they may see.
type searchPlan struct {
	query        string
	caller       string
	filterAdult  bool
	includeAdult bool
	cacheKey     string
	useCache     bool
}

func (s *Service) plan(ctx context.Context, request domain.SearchRequest) searchPlan {
	query := strings.Join(strings.Fields(request.Query), " ")
	caller := strings.TrimSpace(request.Caller)

	filterAdult := true
	if s.preferences != nil {
		filterAdult = s.preferences.FilterAdult(ctx, caller)
	}
	includeAdult := !filterAdult
	if request.IncludeAdult != nil {
		includeAdult = *request.IncludeAdult
	}
	return searchPlan{
		query:        query,
		caller:       caller,
		filterAdult:  filterAdult,
		includeAdult: includeAdult,
		cacheKey:     BuildCacheKey(query, caller, includeAdult),
		useCache:     s.cache != nil && !request.NoCache,
	}
}

// Search fans query out to every eligible source and returns the flat merged list.
// Source failures never fail the search; they only shrink the result.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	started := s.now()
	plan := s.plan(ctx, request)
	if plan.query == "" {
		return domain.EmptySearchResponse(), nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "search.Search", trace.WithAttributes(
		attribute.String("search.query", plan.query),
		attribute.Bool("search.include_adult", plan.includeAdult),
	))
	defer span.End()

	if plan.useCache {
		if cached, ok := s.cache.Get(ctx, plan.cacheKey, started); ok {
			span.SetAttributes(attribute.Bool("search.cached", true))
			response := domain.EmptySearchResponse()
			response.RegularResults = cached
			response.Cached = true
			response.SearchTime = s.since(started)
			return response, nil
		}
	}

	sources, err := s.registry.ListEligibleSources(ctx, !plan.filterAdult)
	if err != nil {
		s.logger.Warn("source registry unavailable", slog.String("error", err.Error()))
		span.SetStatus(codes.Error, err.Error())
		response := domain.EmptySearchResponse()
		response.Degraded = true
		response.SearchTime = s.since(started)
		return response, nil
	}

	results := s.fanOut(ctx, plan, sources, nil)
	metrics.SearchResults.Observe(float64(len(results)))
	span.SetAttributes(attribute.Int("search.sources", len(sources)), attribute.Int("search.results", len(results)))

	// A cancelled caller leaves some sources unsearched; that partial list must not be cached.
	if plan.useCache && ctx.Err() == nil {
		s.cache.Put(ctx, plan.cacheKey, results, s.now())
	}

	response := domain.EmptySearchResponse()
	response.RegularResults = results
	response.SearchTime = s.since(started)
	return response, nil
}

// Aggregate runs Search and buckets the flat results with Group.
func (s *Service) Aggregate(ctx context.Context, request domain.SearchRequest) (domain.AggregateResponse, error) {
	query := strings.Join(strings.Fields(request.Query), " ")
	if query == "" {
		return domain.AggregateResponse{Groups: []domain.AggregateGroup{}}, ErrInvalidQuery
	}
	response, err := s.Search(ctx, request)
	if err != nil {
		return domain.AggregateResponse{Query: query, Groups: []domain.AggregateGroup{}}, err
	}
	return domain.AggregateResponse{
		Query:      query,
		Groups:     Group(query, response.RegularResults),
		Cached:     response.Cached,
		SearchTime: response.SearchTime,
		Degraded:   response.Degraded,
	}, nil
}

// SearchStream is Search with one update per finished source followed by a final
// update that carries the merged list. The channel is closed after the final update.
func (s *Service) SearchStream(ctx context.Context, request domain.SearchRequest) (<-chan domain.SearchStreamUpdate, error) {
	started := s.now()
	plan := s.plan(ctx, request)
	if plan.query == "" {
		return nil, ErrInvalidQuery
	}

	if plan.useCache {
		if cached, ok := s.cache.Get(ctx, plan.cacheKey, started); ok {
			updates := make(chan domain.SearchStreamUpdate, 1)
			updates <- domain.SearchStreamUpdate{
				Query:   plan.query,
				Results: cached,
				Cached:  true,
				Final:   true,
			}
			close(updates)
			return updates, nil
		}
	}

	sources, err := s.registry.ListEligibleSources(ctx, !plan.filterAdult)
	if err != nil {
		s.logger.Warn("source registry unavailable", slog.String("error", err.Error()))
		updates := make(chan domain.SearchStreamUpdate, 1)
		updates <- domain.SearchStreamUpdate{
			Query:   plan.query,
			Results: []domain.SearchResult{},
			Final:   true,
			Error:   registry.ErrRegistryUnavailable.Error(),
		}
		close(updates)
		return updates, nil
	}

	// Room for every update, so the producer never blocks on a gone consumer.
	updates := make(chan domain.SearchStreamUpdate, len(sources)+1)
	go func() {
		defer close(updates)
		ctx, span := telemetry.Tracer().Start(ctx, "search.SearchStream", trace.WithAttributes(
			attribute.String("search.query", plan.query),
		))
		defer span.End()

		var (
			mu        sync.Mutex
			completed int
		)
		results := s.fanOut(ctx, plan, sources, func(source domain.Source, items []domain.SearchResult, err error) {
			mu.Lock()
			defer mu.Unlock()
			completed++
			update := domain.SearchStreamUpdate{
				Query:      plan.query,
				Source:     source.Key,
				SourceName: source.Name,
				Results:    items,
				Completed:  completed,
				Total:      len(sources),
			}
			if err != nil {
				update.Error = err.Error()
			}
			updates <- update
		})
		metrics.SearchResults.Observe(float64(len(results)))
		if plan.useCache && ctx.Err() == nil {
			s.cache.Put(ctx, plan.cacheKey, results, s.now())
		}
		updates <- domain.SearchStreamUpdate{
			Query:     plan.query,
			Results:   results,
			Completed: len(sources),
			Total:     len(sources),
			Final:     true,
		}
	}()
	return updates, nil
}

type sourceDone func(source domain.Source, items []domain.SearchResult, err error)

// fanOut searches every source through RunBounded and flattens what came back.
func (s *Service) fanOut(ctx context.Context, plan searchPlan, sources []domain.Source, onDone sourceDone) []domain.SearchResult {
	if len(sources) == 0 {
		return []domain.SearchResult{}
	}
	maxPages := 0
	if s.siteConfig != nil {
		maxPages = s.siteConfig.SearchMaxPage(ctx)
	}

	tasks := make([]func(context.Context) ([]domain.SearchResult, error), 0, len(sources))
	for _, source := range sources {
		tasks = append(tasks, func(ctx context.Context) ([]domain.SearchResult, error) {
			items, err := s.searchSource(ctx, source, plan, maxPages)
			if onDone != nil {
				onDone(source, items, err)
			}
			return items, err
		})
	}
	return Flatten(RunBounded(ctx, s.concurrency, tasks))
}

func (s *Service) searchSource(ctx context.Context, source domain.Source, plan searchPlan, maxPages int) ([]domain.SearchResult, error) {
	started := s.now()
	if blocked, until := s.health.blocked(source.Key, started); blocked {
		return []domain.SearchResult{}, fmt.Errorf("source %s blocked until %s", source.Key, until.Format(time.RFC3339))
	}

	ctx, span := telemetry.Tracer().Start(ctx, "search.source", trace.WithAttributes(
		attribute.String("search.source", source.Key),
	))
	defer span.End()

	items, err := s.fetcher.Search(ctx, source, plan.query, plan.includeAdult, maxPages)
	if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)) {
		// The caller went away; that says nothing about the source.
		span.SetStatus(codes.Error, err.Error())
		return []domain.SearchResult{}, err
	}
	s.health.record(source.Key, plan.query, len(items), err, s.now().Sub(started), s.now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("source search failed",
			slog.String("source", source.Key),
			slog.String("query", plan.query),
			slog.String("error", err.Error()),
		)
		return []domain.SearchResult{}, err
	}
	span.SetAttributes(attribute.Int("search.results", len(items)))
	if items == nil {
		items = []domain.SearchResult{}
	}
	return items, nil
}

// Detail looks up one title on one source.
func (s *Service) Detail(ctx context.Context, sourceKey, id string) (domain.SearchResult, error) {
	source, err := s.registry.Source(ctx, sourceKey)
	if err != nil {
		return domain.SearchResult{}, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "search.Detail", trace.WithAttributes(
		attribute.String("search.source", source.Key),
		attribute.String("search.id", id),
	))
	defer span.End()

	started := s.now()
	result, err := s.fetcher.Detail(ctx, source, id)
	metrics.DetailDuration.Observe(s.now().Sub(started).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.SearchResult{}, err
	}
	return result, nil
}

// SourceDiagnostics reports breaker state for every registered source, disabled ones included.
func (s *Service) SourceDiagnostics(ctx context.Context) ([]domain.SourceDiagnostics, error) {
	sources, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.health.diagnostics(sources), nil
}

func (s *Service) since(started time.Time) int64 {
	return s.now().Sub(started).Milliseconds()
}
