// Package sqlite persists sources, user settings and site config in a single
// SQLite file through modernc.org/sqlite (no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS source_configs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source_key  TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	api         TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	source_from TEXT NOT NULL DEFAULT 'custom',
	disabled    INTEGER NOT NULL DEFAULT 0,
	is_adult    INTEGER NOT NULL DEFAULT 0,
	sort_order  INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_source_configs_order ON source_configs (sort_order, id);
CREATE TABLE IF NOT EXISTS user_settings (
	username             TEXT PRIMARY KEY,
	filter_adult_content INTEGER NOT NULL DEFAULT 1,
	theme                TEXT NOT NULL DEFAULT 'auto',
	language             TEXT NOT NULL DEFAULT 'zh-CN',
	auto_play            INTEGER NOT NULL DEFAULT 1,
	video_quality        TEXT NOT NULL DEFAULT 'auto',
	updated_at           TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS site_config (
	id                         INTEGER PRIMARY KEY CHECK (id = 1),
	site_name                  TEXT NOT NULL,
	announcement               TEXT NOT NULL DEFAULT '',
	search_downstream_max_page INTEGER NOT NULL,
	site_interface_cache_time  INTEGER NOT NULL,
	image_proxy                TEXT NOT NULL DEFAULT '',
	douban_proxy               TEXT NOT NULL DEFAULT ''
);`

const sourceColumns = `id, source_key, name, api, detail, source_from, disabled, is_adult, sort_order, created_at, updated_at`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM source_configs ORDER BY sort_order ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list sources: %w", err)
	}
	return out, nil
}

func (s *Store) GetSource(ctx context.Context, key string) (domain.Source, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM source_configs WHERE source_key = ?`, key)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, false, nil
	}
	if err != nil {
		return domain.Source{}, false, err
	}
	return source, true, nil
}

func (s *Store) InsertSource(ctx context.Context, source domain.Source) (domain.Source, error) {
	now := s.now()
	if source.From == "" {
		source.From = domain.SourceOriginCustom
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO source_configs (source_key, name, api, detail, source_from, disabled, is_adult, sort_order, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		source.Key, source.Name, source.API, source.Detail, string(source.From),
		source.Disabled, source.IsAdult, source.SortOrder, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Source{}, registry.ErrSourceExists
		}
		return domain.Source{}, fmt.Errorf("sqlite: insert source: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.Source{}, fmt.Errorf("sqlite: insert source: %w", err)
	}
	source.ID = id
	source.CreatedAt = now
	source.UpdatedAt = now
	return source, nil
}

func (s *Store) UpdateSource(ctx context.Context, source domain.Source) (bool, error) {
	return s.execAffected(ctx, "update source",
		`UPDATE source_configs SET name = ?, api = ?, detail = ?, is_adult = ?, updated_at = ? WHERE source_key = ?`,
		source.Name, source.API, source.Detail, source.IsAdult, formatTime(s.now()), source.Key,
	)
}

func (s *Store) SetSourceDisabled(ctx context.Context, key string, disabled bool) (bool, error) {
	return s.execAffected(ctx, "toggle source",
		`UPDATE source_configs SET disabled = ?, updated_at = ? WHERE source_key = ?`,
		disabled, formatTime(s.now()), key,
	)
}

func (s *Store) DeleteSource(ctx context.Context, key string) (bool, error) {
	return s.execAffected(ctx, "delete source", `DELETE FROM source_configs WHERE source_key = ?`, key)
}

func (s *Store) ReorderSources(ctx context.Context, order []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: reorder: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE source_configs SET sort_order = ?, updated_at = ? WHERE source_key = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: reorder: %w", err)
	}
	defer stmt.Close()

	now := formatTime(s.now())
	for index, key := range order {
		if _, err := stmt.ExecContext(ctx, index, now, key); err != nil {
			return fmt.Errorf("sqlite: reorder %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: reorder: %w", err)
	}
	return nil
}

func (s *Store) execAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (domain.Source, error) {
	var (
		source            domain.Source
		from              string
		created, updated  string
		disabled, isAdult bool
	)
	err := row.Scan(&source.ID, &source.Key, &source.Name, &source.API, &source.Detail, &from,
		&disabled, &isAdult, &source.SortOrder, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Source{}, err
		}
		return domain.Source{}, fmt.Errorf("sqlite: scan source: %w", err)
	}
	source.From = domain.SourceOrigin(from)
	source.Disabled = disabled
	source.IsAdult = isAdult
	source.CreatedAt = parseTime(created)
	source.UpdatedAt = parseTime(updated)
	return source, nil
}

// ---------------------------------------------------------------------------
// User settings
// ---------------------------------------------------------------------------

func (s *Store) GetUserSettings(ctx context.Context, username string) (domain.UserSettings, bool, error) {
	var (
		settings domain.UserSettings
		updated  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT username, filter_adult_content, theme, language, auto_play, video_quality, updated_at
		 FROM user_settings WHERE username = ?`, username,
	).Scan(&settings.Username, &settings.FilterAdultContent, &settings.Theme, &settings.Language,
		&settings.AutoPlay, &settings.VideoQuality, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserSettings{}, false, nil
	}
	if err != nil {
		return domain.UserSettings{}, false, fmt.Errorf("sqlite: get user settings: %w", err)
	}
	settings.UpdatedAt = parseTime(updated)
	return settings, true, nil
}

func (s *Store) SaveUserSettings(ctx context.Context, settings domain.UserSettings) error {
	updated := settings.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (username, filter_adult_content, theme, language, auto_play, video_quality, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET
			filter_adult_content = excluded.filter_adult_content,
			theme = excluded.theme,
			language = excluded.language,
			auto_play = excluded.auto_play,
			video_quality = excluded.video_quality,
			updated_at = excluded.updated_at`,
		settings.Username, settings.FilterAdultContent, settings.Theme, settings.Language,
		settings.AutoPlay, settings.VideoQuality, formatTime(updated),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save user settings: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Site config
// ---------------------------------------------------------------------------

func (s *Store) LoadSiteConfig(ctx context.Context) (domain.SiteConfig, bool, error) {
	var cfg domain.SiteConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT site_name, announcement, search_downstream_max_page, site_interface_cache_time, image_proxy, douban_proxy
		 FROM site_config WHERE id = 1`,
	).Scan(&cfg.SiteName, &cfg.Announcement, &cfg.SearchDownstreamMaxPage, &cfg.SiteInterfaceCacheTime,
		&cfg.ImageProxy, &cfg.DoubanProxy)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SiteConfig{}, false, nil
	}
	if err != nil {
		return domain.SiteConfig{}, false, fmt.Errorf("sqlite: load site config: %w", err)
	}
	return cfg, true, nil
}

func (s *Store) SaveSiteConfig(ctx context.Context, cfg domain.SiteConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_config (id, site_name, announcement, search_downstream_max_page, site_interface_cache_time, image_proxy, douban_proxy)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			site_name = excluded.site_name,
			announcement = excluded.announcement,
			search_downstream_max_page = excluded.search_downstream_max_page,
			site_interface_cache_time = excluded.site_interface_cache_time,
			image_proxy = excluded.image_proxy,
			douban_proxy = excluded.douban_proxy`,
		cfg.SiteName, cfg.Announcement, cfg.SearchDownstreamMaxPage, cfg.SiteInterfaceCacheTime,
		cfg.ImageProxy, cfg.DoubanProxy,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save site config: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
