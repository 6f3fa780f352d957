package common

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

var (
	tagPattern  = regexp.MustCompile(`<[^>]+>`)
	yearPattern = regexp.MustCompile(`\d{4}`)
)

// CollapseSpaces trims value and folds every whitespace run into one space.
func CollapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// StripHTML returns the visible text of an HTML fragment with whitespace collapsed.
// Block boundaries become spaces; script and style bodies are dropped.
func StripHTML(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return CollapseSpaces(raw)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return CollapseSpaces(html.UnescapeString(tagPattern.ReplaceAllString(raw, " ")))
	}
	doc.Find("script, style").Remove()

	var b strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		switch n.Type {
		case xhtml.TextNode:
			b.WriteString(n.Data)
		case xhtml.ElementNode:
			b.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == xhtml.ElementNode {
			b.WriteByte(' ')
		}
	}
	for _, node := range doc.Nodes {
		walk(node)
	}
	return CollapseSpaces(b.String())
}

// ExtractYear returns the first 4-digit run of raw, or domain.UnknownYear.
func ExtractYear(raw string) string {
	if match := yearPattern.FindString(raw); match != "" {
		return match
	}
	return domain.UnknownYear
}
