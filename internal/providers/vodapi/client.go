// Package vodapi talks to Apple CMS style video APIs (`?ac=videolist`).
package vodapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/jsonutil"
	"github.com/Eternity714/KatelyaTV/internal/policy"
	"github.com/Eternity714/KatelyaTV/internal/providers/common"
)

const (
	DefaultTimeout       = 6 * time.Second
	DefaultDetailTimeout = 10 * time.Second
	DefaultRetries       = 1
	DefaultRetryDelay    = time.Second
	DefaultMaxPages      = 5

	// longQueryRunes separates short queries, which may page deeper, from long ones.
	longQueryRunes     = 10
	longQueryMaxPages  = 2
	shortQueryMaxPages = 3

	maxBodyBytes = 8 * 1024 * 1024
)

var (
	ErrUpstreamStatus   = errors.New("upstream returned non-2xx status")
	ErrMalformedPayload = errors.New("upstream payload is malformed")
	ErrDetailNotFound   = errors.New("detail not found")
	ErrInvalidID        = errors.New("id is required")
)

type Config struct {
	UserAgent     string
	Client        *http.Client
	Timeout       time.Duration
	DetailTimeout time.Duration
	Retries       int
	RetryDelay    time.Duration
	Filter        *policy.Filter
	Logger        *slog.Logger
}

type Client struct {
	client        *http.Client
	userAgent     string
	timeout       time.Duration
	detailTimeout time.Duration
	retry         common.RetryConfig
	filter        *policy.Filter
	logger        *slog.Logger
}

func NewClient(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = common.BrowserUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	detailTimeout := cfg.DetailTimeout
	if detailTimeout <= 0 {
		detailTimeout = DefaultDetailTimeout
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	filter := cfg.Filter
	if filter == nil {
		filter = policy.NewFilter(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:        client,
		userAgent:     userAgent,
		timeout:       timeout,
		detailTimeout: detailTimeout,
		retry:         common.LinearRetryConfig(cfg.Retries, retryDelay),
		filter:        filter,
		logger:        logger,
	}
}

// PagesFor caps how many pages a query may read from one source. Long queries are
// precise enough that deep pages rarely help.
func PagesFor(query string, configuredMax int) int {
	if configuredMax <= 0 {
		configuredMax = DefaultMaxPages
	}
	limit := shortQueryMaxPages
	if len([]rune(query)) > longQueryRunes {
		limit = longQueryMaxPages
	}
	return min(limit, configuredMax)
}

// Search reads page 1 of source and, when the upstream reports more pages, the
// next pages concurrently. The returned slice is always usable: on failure it is
// empty and the error says why. A failed extra page only loses that page.
func (c *Client) Search(ctx context.Context, source domain.Source, query string, includeAdultItems bool, maxPages int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}

	first, err := c.fetchList(ctx, searchURL(source.API, query, 1), c.timeout)
	if err != nil {
		return []domain.SearchResult{}, fmt.Errorf("search %s: %w", source.Key, err)
	}
	results := c.normalizeList(first.List, source, includeAdultItems)

	// Page 1 decides: when nothing on it survives filtering, deeper pages are skipped.
	limit := PagesFor(query, maxPages)
	if len(results) == 0 || limit <= 1 {
		return results, nil
	}
	pageCount := int(first.PageCount)
	if pageCount <= 0 {
		pageCount = 1
	}
	extra := min(pageCount-1, limit-1)
	if extra <= 0 {
		return results, nil
	}

	pages := make([][]domain.SearchResult, extra)
	var wg sync.WaitGroup
	for i := 0; i < extra; i++ {
		page := i + 2
		wg.Add(1)
		go func(slot, page int) {
			defer wg.Done()
			envelope, pageErr := c.fetchList(ctx, searchURL(source.API, query, page), c.timeout)
			if pageErr != nil {
				c.logger.Debug("source page failed",
					slog.String("source", source.Key),
					slog.Int("page", page),
					slog.String("error", pageErr.Error()),
				)
				return
			}
			pages[slot] = c.normalizeList(envelope.List, source, includeAdultItems)
		}(i, page)
	}
	wg.Wait()

	for _, page := range pages {
		results = append(results, page...)
	}
	return results, nil
}

func (c *Client) normalizeList(items []VodItem, source domain.Source, includeAdultItems bool) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(items))
	skipped := 0
	for _, item := range items {
		if !c.filter.Allowed(string(item.VodName), string(item.VodContent), string(item.TypeName), includeAdultItems) {
			continue
		}
		result, err := Normalize(item, source)
		if err != nil {
			skipped++
			continue
		}
		results = append(results, result)
	}
	if skipped > 0 {
		c.logger.Debug("skipped malformed items",
			slog.String("source", source.Key),
			slog.Int("count", skipped),
		)
	}
	return results
}

func (c *Client) fetchList(ctx context.Context, rawURL string, timeout time.Duration) (listEnvelope, error) {
	body, err := c.fetch(ctx, rawURL, "application/json", timeout)
	if err != nil {
		return listEnvelope{}, err
	}
	var envelope listEnvelope
	if err := jsonutil.Unmarshal(body, &envelope); err != nil {
		return listEnvelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return envelope, nil
}

// fetch GETs rawURL with the linear retry policy. Each attempt gets its own timeout.
func (c *Client) fetch(ctx context.Context, rawURL, accept string, timeout time.Duration) ([]byte, error) {
	var body []byte
	err := common.RetryWithBackoff(ctx, c.retry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		payload, err := c.get(attemptCtx, rawURL, accept)
		if err != nil {
			return err
		}
		body = payload
		return nil
	})
	return body, err
}

func (c *Client) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %w", ErrUpstreamStatus, &common.StatusError{
			Code: resp.StatusCode,
			Body: common.CollapseSpaces(string(snippet)),
		})
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func searchURL(api, query string, page int) string {
	base := api + "?ac=videolist&wd=" + url.QueryEscape(query)
	if page <= 1 {
		return base
	}
	return base + "&pg=" + strconv.Itoa(page)
}

func detailURL(api, id string) string {
	return api + "?ac=videolist&ids=" + url.QueryEscape(id)
}

func htmlDetailURL(detail, id string) string {
	return strings.TrimRight(detail, "/") + "/index.php/vod/detail/id/" + url.PathEscape(id) + ".html"
}
