package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageMongo  = "mongo"
)

type Config struct {
	HTTPAddr      string
	LogLevel      string
	LogFormat     string
	UserAgent     string
	SearchTimeout time.Duration
	DetailTimeout time.Duration
	RetryAttempts int
	Concurrency   int

	CacheTTL        time.Duration
	CacheMaxEntries int
	CacheDisabled   bool
	RedisURL        string

	StorageType     string
	SQLitePath      string
	MongoURI        string
	MongoDB         string
	SourcesFile     string
	SiteConfigStore string

	UpstreamProxyURL string
	JWTSecret        string
	OwnerUsername    string
	AdultKeywords    string

	RateLimitRPS   float64
	RateLimitBurst int

	Site domain.SiteConfig
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":3000"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:     getEnv("SEARCH_USER_AGENT", ""),
		SearchTimeout: time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 6)) * time.Second,
		DetailTimeout: time.Duration(getEnvInt("DETAIL_TIMEOUT_SECONDS", 10)) * time.Second,
		RetryAttempts: getEnvNonNegativeInt("SEARCH_RETRY_ATTEMPTS", 1),
		Concurrency:   getEnvInt("SEARCH_CONCURRENCY", 3),

		CacheTTL:        time.Duration(getEnvInt("SEARCH_CACHE_TTL_SECONDS", 300)) * time.Second,
		CacheMaxEntries: getEnvInt("SEARCH_CACHE_MAX_ENTRIES", 1000),
		CacheDisabled:   getEnvBool("SEARCH_CACHE_DISABLED", false),
		RedisURL:        getEnv("REDIS_URL", ""),

		StorageType:     strings.ToLower(getEnv("STORAGE_TYPE", StorageMemory)),
		SQLitePath:      getEnv("SQLITE_PATH", "data/katelyatv.db"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getEnv("MONGO_DB", "katelyatv"),
		SourcesFile:     getEnv("SOURCES_FILE", ""),
		SiteConfigStore: strings.ToLower(getEnv("SITE_CONFIG_STORE", "storage")),

		UpstreamProxyURL: getEnv("UPSTREAM_PROXY_URL", ""),
		JWTSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		OwnerUsername:    getEnv("OWNER_USERNAME", ""),
		AdultKeywords:    getEnv("ADULT_KEYWORDS", ""),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 100),

		Site: domain.SiteConfig{
			SiteName:                getEnv("SITE_NAME", "KatelyaTV"),
			Announcement:            getEnv("ANNOUNCEMENT", ""),
			SearchDownstreamMaxPage: getEnvInt("SEARCH_MAX_PAGE", domain.DefaultSearchDownstreamMaxPage),
			SiteInterfaceCacheTime:  getEnvInt("CACHE_TIME", domain.DefaultSiteInterfaceCacheTime),
			ImageProxy:              getEnv("IMAGE_PROXY", ""),
			DoubanProxy:             getEnv("DOUBAN_PROXY", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvNonNegativeInt is getEnvInt that also accepts 0.
func getEnvNonNegativeInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
