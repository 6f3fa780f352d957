package apihttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Eternity714/KatelyaTV/internal/auth"
	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/registry"
	"github.com/Eternity714/KatelyaTV/internal/siteconfig"
)

type SourceLister interface {
	List(ctx context.Context) ([]domain.Source, error)
}

type SourceAdmin interface {
	Add(ctx context.Context, input domain.SourceInput) (domain.Source, error)
	Enable(ctx context.Context, key string) error
	Disable(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
	Sort(ctx context.Context, order []string) error
	BatchAdd(ctx context.Context, inputs []domain.SourceInput) domain.SourceBatchResult
	BatchDelete(ctx context.Context, keys []string) domain.SourceBatchResult
	BatchEnable(ctx context.Context, keys []string) domain.SourceBatchResult
	BatchDisable(ctx context.Context, keys []string) domain.SourceBatchResult
}

type SiteConfigService interface {
	Get(ctx context.Context) (domain.SiteConfig, error)
	Update(ctx context.Context, cfg domain.SiteConfig) (domain.SiteConfig, error)
}

type adminSourceRequest struct {
	Action  string               `json:"action"`
	Key     string               `json:"key,omitempty"`
	Name    string               `json:"name,omitempty"`
	API     string               `json:"api,omitempty"`
	Detail  string               `json:"detail,omitempty"`
	IsAdult bool                 `json:"is_adult,omitempty"`
	Keys    []string             `json:"keys,omitempty"`
	Order   []string             `json:"order,omitempty"`
	Sources []domain.SourceInput `json:"sources,omitempty"`
}

// requireAdmin writes the rejection itself and reports whether the caller may continue.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, err := s.auth.Identify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return auth.Identity{}, false
	}
	if err := s.auth.Authorize(identity); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			writeError(w, http.StatusForbidden, "forbidden", "insufficient permissions")
		} else {
			writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
		}
		return auth.Identity{}, false
	}
	return identity, true
}

func (s *Server) handleAdminSource(w http.ResponseWriter, r *http.Request) {
	if s.sources == nil || s.admin == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "source administration is not configured")
		return
	}
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "no-store")

	switch r.Method {
	case http.MethodGet:
		sources, err := s.sources.List(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "source registry unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
	case http.MethodPost:
		var body adminSourceRequest
		if err := decodeJSONBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.applySourceAction(w, r, identity, body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) applySourceAction(w http.ResponseWriter, r *http.Request, identity auth.Identity, body adminSourceRequest) {
	ctx := r.Context()
	action := strings.TrimSpace(body.Action)
	var err error

	switch action {
	case "add":
		var source domain.Source
		source, err = s.admin.Add(ctx, domain.SourceInput{
			Key:     body.Key,
			Name:    body.Name,
			API:     body.API,
			Detail:  body.Detail,
			IsAdult: body.IsAdult,
		})
		if err == nil {
			s.logAdminAction(identity, action, body.Key)
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "source": source})
			return
		}
	case "enable":
		err = s.admin.Enable(ctx, body.Key)
	case "disable":
		err = s.admin.Disable(ctx, body.Key)
	case "delete":
		err = s.admin.Delete(ctx, body.Key)
	case "sort":
		err = s.admin.Sort(ctx, body.Order)
	case "batch_add":
		if len(body.Sources) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "sources are required")
			return
		}
		s.logAdminAction(identity, action, "")
		writeJSON(w, http.StatusOK, s.admin.BatchAdd(ctx, body.Sources))
		return
	case "batch_delete", "batch_enable", "batch_disable":
		if len(body.Keys) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "keys are required")
			return
		}
		var result domain.SourceBatchResult
		switch action {
		case "batch_delete":
			result = s.admin.BatchDelete(ctx, body.Keys)
		case "batch_enable":
			result = s.admin.BatchEnable(ctx, body.Keys)
		default:
			result = s.admin.BatchDisable(ctx, body.Keys)
		}
		s.logAdminAction(identity, action, "")
		writeJSON(w, http.StatusOK, result)
		return
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown action")
		return
	}

	if err != nil {
		writeSourceError(w, err)
		return
	}
	s.logAdminAction(identity, action, body.Key)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) logAdminAction(identity auth.Identity, action, key string) {
	s.logger.Info("source admin action",
		slog.String("user", identity.Username),
		slog.String("action", action),
		slog.String("key", key),
	)
}

func writeSourceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrSourceNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, registry.ErrSourceExists):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, registry.ErrInvalidSource), errors.Is(err, registry.ErrSourceProtected):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, registry.ErrRegistryUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "source registry unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "source update failed")
	}
}

func (s *Server) handleAdminSite(w http.ResponseWriter, r *http.Request) {
	if s.siteConfig == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "site config is not configured")
		return
	}
	identity, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "no-store")

	switch r.Method {
	case http.MethodGet:
		cfg, err := s.siteConfig.Get(r.Context())
		if err != nil {
			s.logger.Warn("site config load failed", slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPost, http.MethodPut:
		var cfg domain.SiteConfig
		if err := decodeJSONBody(r, &cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		updated, err := s.siteConfig.Update(r.Context(), cfg)
		if err != nil {
			if errors.Is(err, siteconfig.ErrInvalidConfig) {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to save site config")
			return
		}
		s.logger.Info("site config updated", slog.String("user", identity.Username))
		writeJSON(w, http.StatusOK, updated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
