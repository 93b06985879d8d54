// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package crawler

import (
	"bytes"
	"context"
	"encoding/xml"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DiscoveryOptions bounds URL enumeration.
type DiscoveryOptions struct {
	// BaseURL is the site root, e.g. "https://example.com".
	BaseURL string

	// AllowPrefixes restricts discovered paths; empty means all paths.
	AllowPrefixes []string

	// ExcludeSections names first path segments that never hold content.
	ExcludeSections []string

	// MinPathDepth excludes listing pages near the root. Default 2.
	MinPathDepth int

	// MaxSitemapDepth bounds nested sitemap-index recursion. Default 3.
	MaxSitemapDepth int

	// PageBudget caps the number of leaf pages collected by the BFS
	// fallback. Default 500.
	PageBudget int

	// RequestBudget caps the total fetches the BFS fallback may issue.
	// Default 1000.
	RequestBudget int
}

func (o *DiscoveryOptions) setDefaults() error {
	if o.BaseURL == "" {
		return ErrBaseURLRequired
	}
	o.BaseURL = strings.TrimSuffix(o.BaseURL, "/")
	if o.MinPathDepth <= 0 {
		o.MinPathDepth = 2
	}
	if o.MaxSitemapDepth <= 0 {
		o.MaxSitemapDepth = 3
	}
	if o.PageBudget <= 0 {
		o.PageBudget = 500
	}
	if o.RequestBudget <= 0 {
		o.RequestBudget = 1000
	}
	return nil
}

type sitemapIndex struct {
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	URLs []sitemapRef `xml:"url"`
}

// DiscoverSitemap enumerates content URLs from the site's sitemap, following
// nested sitemap indexes up to the configured depth. The result is filtered
// by the allow-list and minimum path depth, deduplicated, and sorted.
func DiscoverSitemap(ctx context.Context, fetch FetchFunc, opts DiscoveryOptions) ([]string, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "discovery")

	seen := make(map[string]struct{})
	var walk func(sitemapURL string, depth int) error
	walk = func(sitemapURL string, depth int) error {
		if depth > opts.MaxSitemapDepth {
			logger.Warn("sitemap nesting too deep, stopping", "url", sitemapURL)
			return nil
		}

		body, err := fetch(ctx, sitemapURL)
		if err != nil {
			return err
		}

		var set urlSet
		if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
			for _, ref := range set.URLs {
				loc := strings.TrimSpace(ref.Loc)
				if allowedContentURL(loc, opts) {
					seen[loc] = struct{}{}
				}
			}
			return nil
		}

		var index sitemapIndex
		if err := xml.Unmarshal(body, &index); err != nil {
			return err
		}
		for _, ref := range index.Sitemaps {
			if err := walk(strings.TrimSpace(ref.Loc), depth+1); err != nil {
				// One broken nested sitemap should not hide the rest.
				logger.Warn("nested sitemap failed", "url", ref.Loc, "err", err)
			}
		}
		return nil
	}

	if err := walk(opts.BaseURL+"/sitemap.xml", 1); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	logger.Info("sitemap discovery complete", "urls", len(urls))
	return urls, nil
}

// DiscoverCrawl is the breadth-first fallback used when no usable sitemap
// exists. It walks from the allow-listed roots, bounded by a page budget and
// a global request budget, keeping leaf-content pages and descending into
// branch pages.
func DiscoverCrawl(ctx context.Context, fetch FetchFunc, opts DiscoveryOptions) ([]string, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "discovery")

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	queue := crawlRoots(opts)
	visited := make(map[string]struct{})
	leaves := make(map[string]struct{})
	requests := 0

	for len(queue) > 0 && len(leaves) < opts.PageBudget && requests < opts.RequestBudget {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		current := queue[0]
		queue = queue[1:]
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}

		requests++
		body, err := fetch(ctx, current)
		if err != nil {
			// Already skip-logged by the fetcher; move on.
			continue
		}

		for _, link := range extractLinks(body, base) {
			if _, ok := visited[link]; ok {
				continue
			}
			switch {
			case isLeafContentURL(link, opts):
				if len(leaves) < opts.PageBudget {
					leaves[link] = struct{}{}
				}
			case allowedBranchURL(link, opts):
				queue = append(queue, link)
			}
		}
	}

	if requests >= opts.RequestBudget {
		logger.Warn("request budget exhausted", "requests", requests)
	}

	urls := make([]string, 0, len(leaves))
	for u := range leaves {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	logger.Info("fallback discovery complete", "urls", len(urls), "requests", requests)
	return urls, nil
}

func crawlRoots(opts DiscoveryOptions) []string {
	if len(opts.AllowPrefixes) == 0 {
		return []string{opts.BaseURL + "/"}
	}
	roots := make([]string, len(opts.AllowPrefixes))
	for i, prefix := range opts.AllowPrefixes {
		roots[i] = opts.BaseURL + "/" + strings.Trim(prefix, "/") + "/"
	}
	return roots
}

// extractLinks pulls same-host absolute URLs out of the page.
func extractLinks(body []byte, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Host != base.Host {
			return
		}
		resolved.Fragment = ""
		resolved.RawQuery = ""
		links = append(links, strings.TrimSuffix(resolved.String(), "/"))
	})
	return links
}

// pathSegments splits a URL path into its non-empty segments.
func pathSegments(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var segments []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

func underAllowedPrefix(segments []string, opts DiscoveryOptions) bool {
	if len(opts.AllowPrefixes) == 0 {
		return true
	}
	if len(segments) == 0 {
		return false
	}
	for _, prefix := range opts.AllowPrefixes {
		if segments[0] == strings.Trim(prefix, "/") {
			return true
		}
	}
	return false
}

func underExcludedSection(segments []string, opts DiscoveryOptions) bool {
	if len(segments) == 0 {
		return false
	}
	for _, section := range opts.ExcludeSections {
		if segments[0] == strings.Trim(section, "/") {
			return true
		}
	}
	return false
}

// allowedContentURL is the sitemap filter: allow-listed prefix, deep enough
// to not be a listing page, not excluded.
func allowedContentURL(rawURL string, opts DiscoveryOptions) bool {
	if rawURL == "" {
		return false
	}
	segments := pathSegments(rawURL)
	return underAllowedPrefix(segments, opts) &&
		!underExcludedSection(segments, opts) &&
		len(segments) >= opts.MinPathDepth
}

// isLeafContentURL classifies a page as content worth keeping: its final
// slug is hyphenated and non-numeric, the usual shape of an article page as
// opposed to a listing or pagination URL.
func isLeafContentURL(rawURL string, opts DiscoveryOptions) bool {
	segments := pathSegments(rawURL)
	if !underAllowedPrefix(segments, opts) || underExcludedSection(segments, opts) {
		return false
	}
	if len(segments) < opts.MinPathDepth {
		return false
	}

	slug := segments[len(segments)-1]
	if !strings.Contains(slug, "-") {
		return false
	}
	return !isNumericSlug(slug)
}

// allowedBranchURL marks a page worth descending into even though it is not
// content itself.
func allowedBranchURL(rawURL string, opts DiscoveryOptions) bool {
	segments := pathSegments(rawURL)
	return underAllowedPrefix(segments, opts) && !underExcludedSection(segments, opts)
}

func isNumericSlug(slug string) bool {
	stripped := strings.ReplaceAll(slug, "-", "")
	if stripped == "" {
		return true
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
