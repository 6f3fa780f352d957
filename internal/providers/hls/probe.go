// Package hls inspects HLS master playlists to estimate stream quality.
package hls

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/providers/common"
)

const (
	streamInfTag    = "#EXT-X-STREAM-INF"
	maxPlaylistSize = 2 * 1024 * 1024

	QualityUnknown = "unknown"
)

var (
	ErrPlaylistStatus = errors.New("playlist fetch failed")

	resolutionPattern = regexp.MustCompile(`RESOLUTION=(\d+)x(\d+)`)
	bandwidthPattern  = regexp.MustCompile(`BANDWIDTH=(\d+)`)
)

type Prober struct {
	client    *http.Client
	userAgent string
	now       func() time.Time
}

func NewProber(client *http.Client, userAgent string) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = common.BrowserUserAgent
	}
	return &Prober{client: client, userAgent: userAgent, now: time.Now}
}

// Probe fetches the playlist at rawURL and reports the best variant it lists.
// PingTime is the time to response headers in milliseconds.
func (p *Prober) Probe(ctx context.Context, rawURL string) (domain.StreamQuality, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.StreamQuality{}, fmt.Errorf("build playlist request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	started := p.now()
	resp, err := p.client.Do(req)
	if err != nil {
		return domain.StreamQuality{}, fmt.Errorf("fetch playlist: %w", err)
	}
	defer resp.Body.Close()
	pingTime := p.now().Sub(started).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.StreamQuality{}, fmt.Errorf("%w: status %d", ErrPlaylistStatus, resp.StatusCode)
	}

	width, height, bandwidth, err := bestVariant(io.LimitReader(resp.Body, maxPlaylistSize))
	if err != nil {
		return domain.StreamQuality{}, fmt.Errorf("read playlist: %w", err)
	}
	kbps := int64(math.Round(float64(bandwidth) / 1000))
	return domain.StreamQuality{
		Quality:       ClassifyWidth(width),
		LoadSpeed:     FormatLoadSpeed(kbps),
		PingTime:      pingTime,
		Width:         width,
		Height:        height,
		BandwidthKbps: kbps,
	}, nil
}

// bestVariant picks the widest variant. Variants without a resolution only win
// on bandwidth.
func bestVariant(r io.Reader) (width, height int, bandwidth int64, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, streamInfTag) {
			continue
		}
		var w, h int
		if match := resolutionPattern.FindStringSubmatch(line); match != nil {
			w, _ = strconv.Atoi(match[1])
			h, _ = strconv.Atoi(match[2])
		}
		var bw int64
		if match := bandwidthPattern.FindStringSubmatch(line); match != nil {
			bw, _ = strconv.ParseInt(match[1], 10, 64)
		}
		if w > width || (w == 0 && bw > bandwidth) {
			width, height, bandwidth = w, h, bw
		}
	}
	return width, height, bandwidth, scanner.Err()
}

func ClassifyWidth(width int) string {
	switch {
	case width >= 3840:
		return "4K"
	case width >= 2560:
		return "2K"
	case width >= 1920:
		return "1080p"
	case width >= 1280:
		return "720p"
	case width >= 854:
		return "480p"
	case width > 0:
		return "SD"
	default:
		return QualityUnknown
	}
}

// FormatLoadSpeed renders a bandwidth in KB/s, switching to MB/s from 1024 up.
func FormatLoadSpeed(kbps int64) string {
	if kbps >= 1024 {
		return fmt.Sprintf("%.1f MB/s", float64(kbps)/1024)
	}
	return fmt.Sprintf("%.1f KB/s", float64(max(1, kbps)))
}
