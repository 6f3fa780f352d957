package vodapi

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/providers/common"
)

// ffzySourceKey publishes playlists on detail pages under dated paths.
const ffzySourceKey = "ffzy"

var (
	detailPosterPattern = regexp.MustCompile(`https?://[^"'\s]+?\.jpg`)
	detailYearPattern   = regexp.MustCompile(`>(\d{4})<`)
)

// Detail resolves one item of source. Sources with a detail site are scraped from
// the HTML page; the rest are read from the JSON API by id.
func (c *Client) Detail(ctx context.Context, source domain.Source, id string) (domain.SearchResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.SearchResult{}, ErrInvalidID
	}
	if source.HTMLDetail() {
		return c.htmlDetail(ctx, source, id)
	}
	return c.jsonDetail(ctx, source, id)
}

func (c *Client) jsonDetail(ctx context.Context, source domain.Source, id string) (domain.SearchResult, error) {
	envelope, err := c.fetchList(ctx, detailURL(source.API, id), c.detailTimeout)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("detail %s/%s: %w", source.Key, id, err)
	}
	if len(envelope.List) == 0 {
		return domain.SearchResult{}, fmt.Errorf("detail %s/%s: %w", source.Key, id, ErrDetailNotFound)
	}

	item := envelope.List[0]
	result, err := Normalize(item, source)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("detail %s/%s: %w", source.Key, id, err)
	}
	episodes := ParsePlayList(string(item.VodPlayURL))
	if len(episodes) == 0 {
		episodes = matchM3U8Links(m3u8LinkPattern, string(item.VodContent))
	}
	result.Episodes = episodes
	return result, nil
}

func (c *Client) htmlDetail(ctx context.Context, source domain.Source, id string) (domain.SearchResult, error) {
	body, err := c.fetch(ctx, htmlDetailURL(source.Detail, id), "text/html,application/xhtml+xml", c.detailTimeout)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("detail %s/%s: %w", source.Key, id, err)
	}
	result, err := parseDetailHTML(string(body), source, id)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("detail %s/%s: %w", source.Key, id, err)
	}
	return result, nil
}

func parseDetailHTML(page string, source domain.Source, id string) (domain.SearchResult, error) {
	var episodes []string
	if source.Key == ffzySourceKey {
		episodes = matchM3U8Links(ffzyLinkPattern, page)
	}
	if len(episodes) == 0 {
		episodes = matchM3U8Links(m3u8LinkPattern, page)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	title := common.CollapseSpaces(doc.Find("h1").First().Text())
	if title == "" && len(episodes) == 0 {
		return domain.SearchResult{}, ErrDetailNotFound
	}

	year := domain.UnknownYear
	if match := detailYearPattern.FindStringSubmatch(page); len(match) == 2 {
		year = match[1]
	}
	return domain.SearchResult{
		ID:         id,
		Title:      title,
		Poster:     detailPosterPattern.FindString(page),
		Episodes:   episodes,
		Source:     source.Key,
		SourceName: source.Name,
		Year:       year,
		Desc:       common.CollapseSpaces(doc.Find("div.sketch").First().Text()),
	}, nil
}
