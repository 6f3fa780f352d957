package siteconfig

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

const defaultRedisKey = "katelyatv:site_config:v1"

// RedisStore keeps the site config in one Redis hash so replicas share it.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if client == nil {
		return nil
	}
	storeKey := strings.TrimSpace(key)
	if storeKey == "" {
		storeKey = defaultRedisKey
	}
	return &RedisStore{client: client, key: storeKey}
}

func (s *RedisStore) LoadSiteConfig(ctx context.Context) (domain.SiteConfig, bool, error) {
	items, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.SiteConfig{}, false, nil
		}
		return domain.SiteConfig{}, false, err
	}
	if len(items) == 0 {
		return domain.SiteConfig{}, false, nil
	}
	return decodeFields(items), true, nil
}

func (s *RedisStore) SaveSiteConfig(ctx context.Context, cfg domain.SiteConfig) error {
	return s.client.HSet(ctx, s.key, encodeFields(cfg)).Err()
}

func encodeFields(cfg domain.SiteConfig) map[string]any {
	return map[string]any{
		"SiteName":                cfg.SiteName,
		"Announcement":            cfg.Announcement,
		"SearchDownstreamMaxPage": strconv.Itoa(cfg.SearchDownstreamMaxPage),
		"SiteInterfaceCacheTime":  strconv.Itoa(cfg.SiteInterfaceCacheTime),
		"ImageProxy":              cfg.ImageProxy,
		"DoubanProxy":             cfg.DoubanProxy,
	}
}

func decodeFields(items map[string]string) domain.SiteConfig {
	atoi := func(raw string) int {
		value, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0
		}
		return value
	}
	return domain.SiteConfig{
		SiteName:                items["SiteName"],
		Announcement:            items["Announcement"],
		SearchDownstreamMaxPage: atoi(items["SearchDownstreamMaxPage"]),
		SiteInterfaceCacheTime:  atoi(items["SiteInterfaceCacheTime"]),
		ImageProxy:              items["ImageProxy"],
		DoubanProxy:             items["DoubanProxy"],
	}
}
