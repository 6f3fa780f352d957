package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

// Admin applies operator changes to the source list.
type Admin struct {
	store  Store
	logger *slog.Logger
}

func NewAdmin(store Store, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{store: store, logger: logger}
}

func (a *Admin) Add(ctx context.Context, input domain.SourceInput) (domain.Source, error) {
	return a.insert(ctx, input, domain.SourceOriginCustom)
}

func (a *Admin) insert(ctx context.Context, input domain.SourceInput, origin domain.SourceOrigin) (domain.Source, error) {
	input = input.Normalize()
	if err := ValidateSourceInput(input); err != nil {
		return domain.Source{}, err
	}
	source, err := a.store.InsertSource(ctx, domain.Source{
		Key:     input.Key,
		Name:    input.Name,
		API:     input.API,
		Detail:  input.Detail,
		From:    origin,
		IsAdult: input.IsAdult,
	})
	if err != nil {
		return domain.Source{}, err
	}
	a.logger.Info("source added", slog.String("source", source.Key), slog.String("from", string(origin)))
	return source, nil
}

func (a *Admin) Enable(ctx context.Context, key string) error {
	return a.setDisabled(ctx, key, false)
}

func (a *Admin) Disable(ctx context.Context, key string) error {
	return a.setDisabled(ctx, key, true)
}

func (a *Admin) setDisabled(ctx context.Context, key string, disabled bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidSource)
	}
	found, err := a.store.SetSourceDisabled(ctx, key, disabled)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, key)
	}
	a.logger.Info("source toggled", slog.String("source", key), slog.Bool("disabled", disabled))
	return nil
}

// Delete removes a custom source. Sources that come from the config file are protected.
func (a *Admin) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidSource)
	}
	source, found, err := a.store.GetSource(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, key)
	}
	if source.From == domain.SourceOriginConfig {
		return fmt.Errorf("%w: %s", ErrSourceProtected, key)
	}
	deleted, err := a.store.DeleteSource(ctx, key)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, key)
	}
	a.logger.Info("source deleted", slog.String("source", key))
	return nil
}

// Sort sets each listed source's sortOrder to its index in order.
func (a *Admin) Sort(ctx context.Context, order []string) error {
	keys := make([]string, 0, len(order))
	seen := make(map[string]struct{}, len(order))
	for _, key := range order {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate key %s in order", ErrInvalidSource, key)
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: order is required", ErrInvalidSource)
	}
	return a.store.ReorderSources(ctx, keys)
}

func (a *Admin) BatchAdd(ctx context.Context, inputs []domain.SourceInput) domain.SourceBatchResult {
	results := make([]domain.SourceActionResult, 0, len(inputs))
	for _, input := range inputs {
		_, err := a.Add(ctx, input)
		results = append(results, actionResult(strings.TrimSpace(input.Key), err))
	}
	return domain.NewSourceBatchResult(results)
}

func (a *Admin) BatchDelete(ctx context.Context, keys []string) domain.SourceBatchResult {
	return a.batch(ctx, keys, a.Delete)
}

func (a *Admin) BatchEnable(ctx context.Context, keys []string) domain.SourceBatchResult {
	return a.batch(ctx, keys, a.Enable)
}

func (a *Admin) BatchDisable(ctx context.Context, keys []string) domain.SourceBatchResult {
	return a.batch(ctx, keys, a.Disable)
}

func (a *Admin) batch(ctx context.Context, keys []string, op func(context.Context, string) error) domain.SourceBatchResult {
	results := make([]domain.SourceActionResult, 0, len(keys))
	for _, key := range keys {
		results = append(results, actionResult(strings.TrimSpace(key), op(ctx, key)))
	}
	return domain.NewSourceBatchResult(results)
}

func actionResult(key string, err error) domain.SourceActionResult {
	if err != nil {
		return domain.SourceActionResult{Key: key, Error: err.Error()}
	}
	return domain.SourceActionResult{Key: key, Success: true}
}

// SyncConfigSources makes the store reflect the sources file: missing entries are
// inserted with from=config, existing config entries get the file's fields while
// keeping their disabled flag and sort order. Custom sources are left alone.
func (a *Admin) SyncConfigSources(ctx context.Context, inputs []domain.SourceInput) (inserted, updated int, err error) {
	var errs []error
	for _, input := range inputs {
		input = input.Normalize()
		if vErr := ValidateSourceInput(input); vErr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", input.Key, vErr))
			continue
		}
		existing, found, gErr := a.store.GetSource(ctx, input.Key)
		if gErr != nil {
			return inserted, updated, gErr
		}
		if !found {
			if _, iErr := a.insert(ctx, input, domain.SourceOriginConfig); iErr != nil {
				errs = append(errs, fmt.Errorf("%s: %w", input.Key, iErr))
				continue
			}
			inserted++
			continue
		}
		if existing.From != domain.SourceOriginConfig {
			continue
		}
		if existing.Name == input.Name && existing.API == input.API && existing.Detail == input.Detail && existing.IsAdult == input.IsAdult {
			continue
		}
		existing.Name = input.Name
		existing.API = input.API
		existing.Detail = input.Detail
		existing.IsAdult = input.IsAdult
		if _, uErr := a.store.UpdateSource(ctx, existing); uErr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", input.Key, uErr))
			continue
		}
		updated++
	}
	return inserted, updated, errors.Join(errs...)
}

// ValidateSourceInput checks a normalized input.
func ValidateSourceInput(input domain.SourceInput) error {
	if input.Key == "" || input.Name == "" || input.API == "" {
		return fmt.Errorf("%w: key, name and api are required", ErrInvalidSource)
	}
	if strings.ContainsAny(input.Key, " \t/?#") {
		return fmt.Errorf("%w: key %q contains reserved characters", ErrInvalidSource, input.Key)
	}
	if !isHTTPURL(input.API) {
		return fmt.Errorf("%w: api must be an http(s) url", ErrInvalidSource)
	}
	if input.Detail != "" && !isHTTPURL(input.Detail) {
		return fmt.Errorf("%w: detail must be an http(s) url", ErrInvalidSource)
	}
	return nil
}

func isHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
