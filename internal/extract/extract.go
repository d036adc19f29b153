// Package extract implements crawl.LinkExtractor and
// crawl.MetadataExtractor over a parsed HTML document.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// HTML implements both crawl.LinkExtractor and crawl.MetadataExtractor.
type HTML struct{}

// New builds an HTML extractor.
func New() *HTML { return &HTML{} }

// ExtractLinks returns every absolute URL reachable from an <a href> on the
// page, resolved against baseURL. domain is accepted to match the
// crawl.LinkExtractor signature but filtering by domain is the frontier's
// job, not the extractor's.
func (HTML) ExtractLinks(html []byte, baseURL, domain string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links, nil
}

// ExtractMetadata pulls title, description, and content type hints from the
// document head, preferring OpenGraph tags over the plain HTML equivalents
// the way a page's social preview would.
func (HTML) ExtractMetadata(html []byte) (crawl.PageMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return crawl.PageMetadata{}, err
	}

	meta := crawl.PageMetadata{}
	meta.Title = firstNonEmpty(
		attrOrText(doc, "meta[property='og:title']", "content"),
		strings.TrimSpace(doc.Find("title").First().Text()),
		attrOrText(doc, "h1", ""),
	)
	meta.Description = firstNonEmpty(
		attrOrText(doc, "meta[property='og:description']", "content"),
		attrOrText(doc, "meta[name='description']", "content"),
	)
	meta.ContentType = attrOrText(doc, "meta[property='og:type']", "content")
	return meta, nil
}

func attrOrText(doc *goquery.Document, selector, attr string) string {
	sel := doc.Find(selector).First()
	if attr == "" {
		return strings.TrimSpace(sel.Text())
	}
	val, exists := sel.Attr(attr)
	if !exists {
		return ""
	}
	return strings.TrimSpace(val)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
