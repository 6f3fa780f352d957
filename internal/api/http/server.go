package apihttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Eternity714/KatelyaTV/internal/auth"
	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/jsonutil"
	"github.com/Eternity714/KatelyaTV/internal/preferences"
	"github.com/Eternity714/KatelyaTV/internal/providers/vodapi"
	"github.com/Eternity714/KatelyaTV/internal/registry"
	"github.com/Eternity714/KatelyaTV/internal/search"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	Aggregate(ctx context.Context, request domain.SearchRequest) (domain.AggregateResponse, error)
	SearchStream(ctx context.Context, request domain.SearchRequest) (<-chan domain.SearchStreamUpdate, error)
	Detail(ctx context.Context, sourceKey, id string) (domain.SearchResult, error)
	SourceDiagnostics(ctx context.Context) ([]domain.SourceDiagnostics, error)
}

type Authenticator interface {
	Identify(r *http.Request) (auth.Identity, error)
	Authorize(identity auth.Identity) error
}

type PreferenceService interface {
	Get(ctx context.Context, username string) (domain.UserSettings, error)
	Update(ctx context.Context, username string, patch preferences.Patch) (domain.UserSettings, error)
}

type StreamProber interface {
	Probe(ctx context.Context, rawURL string) (domain.StreamQuality, error)
}

type Server struct {
	search      SearchService
	auth        Authenticator
	sources     SourceLister
	admin       SourceAdmin
	siteConfig  SiteConfigService
	preferences PreferenceService
	prober      StreamProber
	posters     *posterFetcher
	checkTarget func(context.Context, *url.URL) error
	rateRPS     float64
	rateBurst   int
	logger      *slog.Logger
}

const (
	maxQueryLength = 500

	searchCacheControl = "public, max-age=300"
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithAuth(authenticator Authenticator) ServerOption {
	return func(s *Server) {
		s.auth = authenticator
	}
}

func WithSourceAdmin(sources SourceLister, admin SourceAdmin) ServerOption {
	return func(s *Server) {
		s.sources = sources
		s.admin = admin
	}
}

func WithSiteConfig(siteConfig SiteConfigService) ServerOption {
	return func(s *Server) {
		s.siteConfig = siteConfig
	}
}

func WithPreferences(preferences PreferenceService) ServerOption {
	return func(s *Server) {
		s.preferences = preferences
	}
}

func WithStreamProber(prober StreamProber) ServerOption {
	return func(s *Server) {
		s.prober = prober
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.rateRPS = rps
			s.rateBurst = burst
		}
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:      searchService,
		auth:        auth.NewVerifier("", ""),
		checkTarget: checkPublicURL,
		rateRPS:     50,
		rateBurst:   100,
		logger:      slog.Default(),
	}
	server.posters = newPosterFetcher(func(ctx context.Context, target *url.URL) error {
		return server.checkTarget(ctx, target)
	})
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/search/aggregate", s.handleAggregate)
	mux.HandleFunc("/api/search/stream", s.handleSearchStream)
	mux.HandleFunc("/api/search/sources/health", s.handleSourcesHealth)
	mux.HandleFunc("/api/detail", s.handleDetail)
	mux.HandleFunc("/api/image-proxy", s.handleImageProxy)
	mux.HandleFunc("/api/m3u8info", s.handleM3U8Info)
	mux.HandleFunc("/api/user/settings", s.handleUserSettings)
	mux.HandleFunc("/api/admin/source", s.handleAdminSource)
	mux.HandleFunc("/api/admin/site", s.handleAdminSite)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "katelyatv",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	limiter := newClientLimiter(s.rateRPS, s.rateBurst)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(limiter, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// searchRequest reads q, include_adult and nocache plus the caller identity.
// ok is false when a response has already been written.
func (s *Server) searchRequest(w http.ResponseWriter, r *http.Request) (domain.SearchRequest, bool) {
	identity, err := s.auth.Identify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return domain.SearchRequest{}, false
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return domain.SearchRequest{}, false
	}
	values := r.URL.Query()
	request := domain.SearchRequest{
		Query:   query,
		Caller:  identity.Username,
		NoCache: parseOptionalBool(values.Get("nocache")) || parseOptionalBool(values.Get("noCache")),
	}
	if raw := strings.TrimSpace(values.Get("include_adult")); raw != "" {
		includeAdult := parseOptionalBool(raw)
		request.IncludeAdult = &includeAdult
	}
	caller := request.Caller
	if caller == "" {
		caller = "anonymous"
	}
	noteRequest(r.Context(),
		slog.String("caller", caller),
		slog.String("query", truncate(query, 80)),
	)
	return request, true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	request, ok := s.searchRequest(w, r)
	if !ok {
		return
	}
	if request.Query == "" {
		writeJSON(w, http.StatusOK, domain.EmptySearchResponse())
		return
	}

	response, err := s.search.Search(r.Context(), request)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(request.Query, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}
	noteRequest(r.Context(),
		slog.Int("results", len(response.RegularResults)),
		slog.Int64("searchMs", response.SearchTime),
		slog.Bool("cached", response.Cached),
		slog.Bool("degraded", response.Degraded),
	)

	w.Header().Set("Cache-Control", searchCacheControl)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	request, ok := s.searchRequest(w, r)
	if !ok {
		return
	}

	response, err := s.search.Aggregate(r.Context(), request)
	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			writeJSON(w, http.StatusOK, domain.AggregateResponse{Groups: []domain.AggregateGroup{}})
			return
		}
		s.logger.Warn("aggregate request failed",
			slog.String("query", truncate(request.Query, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}
	noteRequest(r.Context(),
		slog.Int("groups", len(response.Groups)),
		slog.Int64("searchMs", response.SearchTime),
		slog.Bool("cached", response.Cached),
	)
	w.Header().Set("Cache-Control", searchCacheControl)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}
	request, ok := s.searchRequest(w, r)
	if !ok {
		return
	}
	if request.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	updates, err := s.search.SearchStream(r.Context(), request)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := writeSSEEvent(w, flusher, "bootstrap", map[string]any{
		"phase":  "bootstrap",
		"final":  false,
		"query":  request.Query,
		"status": "started",
	}); err != nil {
		return // Client disconnected
	}

	for update := range updates {
		select {
		case <-r.Context().Done():
			noteRequest(r.Context(), slog.Bool("aborted", true))
			return // Client disconnected
		default:
		}
		if update.Final {
			noteRequest(r.Context(),
				slog.Int("results", len(update.Results)),
				slog.Bool("cached", update.Cached),
			)
		}
		if err := writeSSEEvent(w, flusher, "update", update); err != nil {
			return // Client disconnected
		}
	}

	_ = writeSSEEvent(w, flusher, "done", map[string]any{"final": true})
}

func (s *Server) handleSourcesHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	items, err := s.search.SourceDiagnostics(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "source registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	sourceKey := strings.TrimSpace(r.URL.Query().Get("source"))
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if sourceKey == "" || id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "source and id are required")
		return
	}

	noteRequest(r.Context(), slog.String("source", sourceKey))
	result, err := s.search.Detail(r.Context(), sourceKey, id)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrSourceNotFound):
			writeError(w, http.StatusNotFound, "not_found", "unknown source")
		case errors.Is(err, vodapi.ErrInvalidID):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, vodapi.ErrDetailNotFound):
			writeError(w, http.StatusNotFound, "not_found", "detail not found")
		case errors.Is(err, registry.ErrRegistryUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "source registry unavailable")
		default:
			s.logger.Warn("detail request failed",
				slog.String("source", sourceKey),
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "upstream_error", "detail lookup failed")
		}
		return
	}
	w.Header().Set("Cache-Control", searchCacheControl)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleM3U8Info(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.prober == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "stream probe is not configured")
		return
	}
	target, err := parseRemoteURL(r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.checkTarget(r.Context(), target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	quality, err := s.prober.Probe(r.Context(), target.String())
	if err != nil {
		s.logger.Debug("stream probe failed", slog.String("host", target.Hostname()), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to probe stream")
		return
	}
	writeJSON(w, http.StatusOK, quality)
}

func (s *Server) handleUserSettings(w http.ResponseWriter, r *http.Request) {
	if s.preferences == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "user settings are not configured")
		return
	}
	identity, err := s.auth.Identify(r)
	if err != nil || identity.Anonymous() {
		writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.preferences.Get(r.Context(), identity.Username)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load settings")
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut, http.MethodPost:
		var patch preferences.Patch
		if err := decodeJSONBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		settings, err := s.preferences.Update(r.Context(), identity.Username, patch)
		if err != nil {
			if errors.Is(err, preferences.ErrInvalidSettings) {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to save settings")
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, settings)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := jsonutil.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonutil.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := jsonutil.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err // Client disconnected
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err // Client disconnected
	}
	flusher.Flush()
	return nil
}
