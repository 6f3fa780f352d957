package search

import (
	"strings"
	"sync"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/metrics"
	"github.com/Eternity714/KatelyaTV/internal/providers/common"
)

const (
	sourceFailureThreshold = 3
	sourceBlockBase        = 2 * time.Minute
	sourceBlockMax         = 15 * time.Minute
)

type sourceHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	lastResultCount     int
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// healthTracker is a per-source circuit breaker: sourceFailureThreshold consecutive
// failures block a source, for longer with every further failure.
type healthTracker struct {
	mu     sync.Mutex
	states map[string]*sourceHealth
}

func newHealthTracker() *healthTracker {
	return &healthTracker{states: make(map[string]*sourceHealth)}
}

func (h *healthTracker) blocked(key string, now time.Time) (bool, time.Time) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, time.Time{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.states[key]
	if state == nil || state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return false, time.Time{}
	}
	return true, state.blockedUntil
}

func (h *healthTracker) record(key, query string, resultCount int, err error, latency time.Duration, now time.Time) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.states[key]
	if state == nil {
		state = &sourceHealth{}
		h.states[key] = state
	}
	state.totalRequests++
	state.lastQuery = strings.TrimSpace(query)
	state.lastResultCount = resultCount
	if latency > 0 {
		state.lastLatency = latency
		metrics.SourceRequestDuration.WithLabelValues(key).Observe(latency.Seconds())
	}
	state.lastTimeout = common.IsTimeout(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.SourceRequestsTotal.WithLabelValues(key, "ok").Inc()
		metrics.SourceAvailable.WithLabelValues(key).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if state.lastTimeout {
		status = "timeout"
	}
	metrics.SourceRequestsTotal.WithLabelValues(key, status).Inc()

	if state.consecutiveFailures >= sourceFailureThreshold {
		state.blockedUntil = now.Add(exponentialBlockDuration(state.consecutiveFailures))
		metrics.SourceAvailable.WithLabelValues(key).Set(0)
	}
}

// exponentialBlockDuration is sourceBlockBase × 2^(failures - threshold), capped at sourceBlockMax.
func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - sourceFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := sourceBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > sourceBlockMax {
			return sourceBlockMax
		}
	}
	return d
}

// diagnostics reports one entry per source, in the order given.
func (h *healthTracker) diagnostics(sources []domain.Source) []domain.SourceDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()

	items := make([]domain.SourceDiagnostics, 0, len(sources))
	for _, source := range sources {
		item := domain.SourceDiagnostics{
			Key:      source.Key,
			Name:     source.Name,
			Disabled: source.Disabled,
			IsAdult:  source.IsAdult,
		}
		if state := h.states[source.Key]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				blockedUntil := state.blockedUntil
				item.BlockedUntil = &blockedUntil
			}
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.LastQuery = state.lastQuery
			item.LastResultCount = state.lastResultCount
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}
	return items
}
