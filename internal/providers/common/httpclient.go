package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/proxy"
)

// BrowserUserAgent is sent to upstream APIs, several of which reject non-browser agents.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// NewHTTPClient builds the traced upstream client. proxyRaw may be empty, an
// http(s):// proxy or a socks5:// proxy. Per-call deadlines come from the request
// context, so the client timeout is only a backstop.
func NewHTTPClient(timeout time.Duration, proxyRaw string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = true
	transport.MaxIdleConnsPerHost = 16
	// Avoid picking up unrelated container/host proxy environment variables unless explicitly configured.
	transport.Proxy = nil

	var err error
	proxyValue := strings.TrimSpace(proxyRaw)
	if proxyValue != "" {
		err = applyProxy(transport, proxyValue)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}, err
}

func applyProxy(transport *http.Transport, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		if err == nil {
			err = errors.New("missing scheme or host")
		}
		return fmt.Errorf("invalid proxy url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(parsed, proxy.Direct)
		if err != nil {
			return fmt.Errorf("socks5 proxy: %w", err)
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	default:
		return fmt.Errorf("invalid proxy url: unsupported scheme %q", parsed.Scheme)
	}
	return nil
}
