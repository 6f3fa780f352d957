package vodapi

import (
	"regexp"
	"strings"
)

// Upstream play strings look like
//
//	线路A$$$第1集$https://a/1.m3u8#第2集$https://a/2.m3u8$$$线路B...
//
// that is play-source variants joined by PlaySourceDelimiter, episodes joined by
// EpisodeDelimiter and a label and URL joined by LabelURLDelimiter.
const (
	PlaySourceDelimiter = "$$$"
	EpisodeDelimiter    = "#"
	LabelURLDelimiter   = "$"

	// episodeSuffixMarker starts trailing annotations some sources glue to URLs.
	episodeSuffixMarker = "("
)

var (
	// m3u8LinkPattern matches a `$`-prefixed HLS playlist URL.
	m3u8LinkPattern = regexp.MustCompile(`\$(https?://[^"'\s]+?\.m3u8)`)
	// ffzyLinkPattern matches ffzy's dated playlist paths on detail pages.
	ffzyLinkPattern = regexp.MustCompile(`\$(https?://[^"'\s]+?/\d{8}/\d+_[a-f0-9]+/index\.m3u8)`)
)

// ExtractEpisodes picks the play-source variant with the most m3u8 links (the
// first one on ties) and returns its links cleaned and deduplicated in order.
func ExtractEpisodes(playURL string) []string {
	if strings.TrimSpace(playURL) == "" {
		return []string{}
	}
	var best []string
	for _, segment := range strings.Split(playURL, PlaySourceDelimiter) {
		matches := m3u8LinkPattern.FindAllString(segment, -1)
		if len(matches) > len(best) {
			best = matches
		}
	}
	return cleanEpisodeLinks(best)
}

// ParsePlayList reads the first play-source variant as `label$url` pairs and keeps
// the http(s) URLs. Used by detail lookups, where the first variant is authoritative.
func ParsePlayList(playURL string) []string {
	if strings.TrimSpace(playURL) == "" {
		return []string{}
	}
	first := strings.Split(playURL, PlaySourceDelimiter)[0]
	links := make([]string, 0)
	for _, episode := range strings.Split(first, EpisodeDelimiter) {
		parts := strings.Split(episode, LabelURLDelimiter)
		if len(parts) < 2 {
			continue
		}
		link := strings.TrimSpace(parts[1])
		if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
			links = append(links, link)
		}
	}
	return dedupe(links)
}

// matchM3U8Links returns every cleaned playlist link of text for pattern.
func matchM3U8Links(pattern *regexp.Regexp, text string) []string {
	return cleanEpisodeLinks(pattern.FindAllString(text, -1))
}

func cleanEpisodeLinks(matches []string) []string {
	links := make([]string, 0, len(matches))
	for _, match := range matches {
		link := strings.TrimPrefix(match, LabelURLDelimiter)
		if idx := strings.Index(link, episodeSuffixMarker); idx > 0 {
			link = link[:idx]
		}
		links = append(links, link)
	}
	return dedupe(links)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
