package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/providers/common"
)

const (
	maxPosterBytes     = int64(10 * 1024 * 1024)
	posterCacheControl = "public, max-age=86400"
	maxPosterRedirects = 5
)

var (
	errPosterUpstream = errors.New("poster upstream failed")
	errPosterTooLarge = errors.New("poster too large")
	errNotAnImage     = errors.New("not an image")
)

// posterReferers lists hosts that refuse hotlinked posters unless the request
// looks like it came from their own site.
var posterReferers = []struct {
	suffix  string
	referer string
}{
	{suffix: "doubanio.com", referer: "https://movie.douban.com/"},
	{suffix: "douban.com", referer: "https://movie.douban.com/"},
	{suffix: "hdslb.com", referer: "https://www.bilibili.com/"},
	{suffix: "qpic.cn", referer: "https://v.qq.com/"},
}

// posterReferer picks the Referer a poster host expects; unknown hosts get their own origin.
func posterReferer(target *url.URL) string {
	host := strings.ToLower(target.Hostname())
	for _, entry := range posterReferers {
		if host == entry.suffix || strings.HasSuffix(host, "."+entry.suffix) {
			return entry.referer
		}
	}
	return target.Scheme + "://" + target.Host + "/"
}

// posterFetcher downloads source posters. Redirects are re-checked with the
// same guard as the original url.
type posterFetcher struct {
	client *http.Client
	check  func(context.Context, *url.URL) error
}

func newPosterFetcher(check func(context.Context, *url.URL) error) *posterFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = (&net.Dialer{Timeout: 8 * time.Second, KeepAlive: 30 * time.Second}).DialContext

	fetcher := &posterFetcher{check: check}
	fetcher.client = &http.Client{
		Timeout:   12 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxPosterRedirects {
				return fmt.Errorf("stopped after %d redirects", maxPosterRedirects)
			}
			return fetcher.check(req.Context(), req.URL)
		},
	}
	return fetcher
}

type poster struct {
	contentType string
	head        []byte
	body        io.ReadCloser
}

func (f *posterFetcher) fetch(ctx context.Context, target *url.URL) (*poster, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", common.BrowserUserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Referer", posterReferer(target))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errPosterUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP %d", errPosterUpstream, resp.StatusCode)
	}
	if resp.ContentLength > maxPosterBytes {
		resp.Body.Close()
		return nil, errPosterTooLarge
	}

	limited := io.LimitReader(resp.Body, maxPosterBytes)
	head := make([]byte, 512)
	n, err := io.ReadFull(limited, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %v", errPosterUpstream, err)
	}
	head = head[:n]

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(head)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		resp.Body.Close()
		return nil, errNotAnImage
	}
	return &poster{
		contentType: contentType,
		head:        head,
		body:        readCloser{Reader: limited, Closer: resp.Body},
	}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// handleImageProxy serves source posters. When the site config names an external
// image proxy the client is redirected there instead.
func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	target, err := parseRemoteURL(r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if prefix := s.externalImageProxy(r.Context()); prefix != "" {
		w.Header().Set("Cache-Control", posterCacheControl)
		http.Redirect(w, r, prefix+url.QueryEscape(target.String()), http.StatusFound)
		return
	}

	if err := s.checkTarget(r.Context(), target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	image, err := s.posters.fetch(r.Context(), target)
	if err != nil {
		switch {
		case errors.Is(err, errPosterTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "image too large")
		case errors.Is(err, errNotAnImage):
			writeError(w, http.StatusBadGateway, "upstream_error", "not an image")
		default:
			s.logger.Debug("poster fetch failed",
				slog.String("host", target.Hostname()),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch image")
		}
		return
	}
	defer image.body.Close()

	w.Header().Set("Content-Type", image.contentType)
	w.Header().Set("Cache-Control", posterCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image.head)
	_, _ = io.Copy(w, image.body)
}

func (s *Server) externalImageProxy(ctx context.Context) string {
	if s.siteConfig == nil {
		return ""
	}
	cfg, err := s.siteConfig.Get(ctx)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cfg.ImageProxy)
}

// parseRemoteURL accepts absolute http(s) urls only.
func parseRemoteURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("missing url")
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, errors.New("invalid url")
	}
	scheme := strings.ToLower(target.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, errors.New("unsupported url scheme")
	}
	if strings.TrimSpace(target.Hostname()) == "" {
		return nil, errors.New("invalid url host")
	}
	return target, nil
}

// internalHostNames are the compose service names next to the server.
var internalHostNames = map[string]bool{
	"localhost": true,
	"katelyatv": true,
	"redis":     true,
	"mongo":     true,
	"traefik":   true,
}

// checkPublicURL rejects targets that resolve to loopback, private or link-local
// addresses so the poster and stream endpoints cannot reach the internal network.
func checkPublicURL(ctx context.Context, target *url.URL) error {
	if target == nil {
		return errors.New("invalid url")
	}
	host := strings.ToLower(strings.TrimSpace(target.Hostname()))
	if internalHostNames[host] || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".localhost") {
		return errors.New("blocked url host")
	}
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return errors.New("blocked url host")
		}
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupIPAddr(lookupCtx, host)
	if err != nil || len(addrs) == 0 {
		return errors.New("failed to resolve url host")
	}
	for _, addr := range addrs {
		if isBlockedIP(addr.IP) {
			return errors.New("blocked url host")
		}
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	return ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified()
}
