// Package preferences serves per-user settings and answers the search
// pipeline's content-filter question.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

var (
	ErrMissingUser     = errors.New("username is required")
	ErrInvalidSettings = errors.New("invalid user settings")
)

var (
	validThemes    = map[string]bool{"light": true, "dark": true, "auto": true}
	validQualities = map[string]bool{"auto": true, "2160p": true, "1080p": true, "720p": true, "480p": true, "360p": true}
)

type Store interface {
	GetUserSettings(ctx context.Context, username string) (domain.UserSettings, bool, error)
	SaveUserSettings(ctx context.Context, settings domain.UserSettings) error
}

// Patch is a partial settings update; nil fields keep their stored value.
type Patch struct {
	FilterAdultContent *bool   `json:"filter_adult_content,omitempty"`
	Theme              *string `json:"theme,omitempty"`
	Language           *string `json:"language,omitempty"`
	AutoPlay           *bool   `json:"auto_play,omitempty"`
	VideoQuality       *string `json:"video_quality,omitempty"`
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the stored settings of username, or the defaults when none exist.
func (s *Service) Get(ctx context.Context, username string) (domain.UserSettings, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.UserSettings{}, ErrMissingUser
	}
	settings, ok, err := s.store.GetUserSettings(ctx, username)
	if err != nil {
		return domain.UserSettings{}, fmt.Errorf("get user settings: %w", err)
	}
	if !ok {
		return domain.DefaultUserSettings(username), nil
	}
	return settings, nil
}

func (s *Service) Update(ctx context.Context, username string, patch Patch) (domain.UserSettings, error) {
	settings, err := s.Get(ctx, username)
	if err != nil {
		return domain.UserSettings{}, err
	}
	if patch.FilterAdultContent != nil {
		settings.FilterAdultContent = *patch.FilterAdultContent
	}
	if patch.Theme != nil {
		theme := strings.ToLower(strings.TrimSpace(*patch.Theme))
		if !validThemes[theme] {
			return domain.UserSettings{}, fmt.Errorf("%w: theme %q", ErrInvalidSettings, *patch.Theme)
		}
		settings.Theme = theme
	}
	if patch.Language != nil {
		language := strings.TrimSpace(*patch.Language)
		if language == "" {
			return domain.UserSettings{}, fmt.Errorf("%w: language is empty", ErrInvalidSettings)
		}
		settings.Language = language
	}
	if patch.AutoPlay != nil {
		settings.AutoPlay = *patch.AutoPlay
	}
	if patch.VideoQuality != nil {
		quality := strings.ToLower(strings.TrimSpace(*patch.VideoQuality))
		if !validQualities[quality] {
			return domain.UserSettings{}, fmt.Errorf("%w: video quality %q", ErrInvalidSettings, *patch.VideoQuality)
		}
		settings.VideoQuality = quality
	}
	settings.UpdatedAt = s.now()
	if err := s.store.SaveUserSettings(ctx, settings); err != nil {
		return domain.UserSettings{}, fmt.Errorf("save user settings: %w", err)
	}
	return settings, nil
}

// FilterAdult reports whether adult content is hidden from caller. Anonymous
// callers, callers without settings and lookup failures all filter.
func (s *Service) FilterAdult(ctx context.Context, caller string) bool {
	caller = strings.TrimSpace(caller)
	if caller == "" || s == nil || s.store == nil {
		return true
	}
	settings, ok, err := s.store.GetUserSettings(ctx, caller)
	if err != nil {
		s.logger.Warn("user settings lookup failed",
			slog.String("user", caller),
			slog.String("error", err.Error()),
		)
		return true
	}
	if !ok {
		return true
	}
	return settings.FilterAdultContent
}
