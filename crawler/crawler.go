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
	"log/slog"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/termreg/core"
)

// Options configures a crawl run.
type Options struct {
	Discovery DiscoveryOptions

	// Workers is the fetch pool size. Default 4.
	Workers int

	// Scope stamped onto every produced document.
	MarketID string
	Language string
	Domain   string
}

// Crawler turns a website into a stream of scoped documents: discover URLs,
// fetch them across a bounded worker pool, extract text, checkpoint
// completions.
type Crawler struct {
	fetcher     *CachedFetcher
	checkpoints *CheckpointSet
	opts        Options
	logger      *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a crawler.
func New(fetcher *CachedFetcher, checkpoints *CheckpointSet, opts Options, cOpts ...Option) (*Crawler, error) {
	if err := opts.Discovery.setDefaults(); err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	c := &Crawler{
		fetcher:     fetcher,
		checkpoints: checkpoints,
		opts:        opts,
		logger:      slog.Default(),
	}
	for _, opt := range cOpts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "crawler")

	return c, nil
}

type fetchResult struct {
	url string
	doc *core.Document
	err error
}

// Run discovers, fetches, and extracts. URLs completed in earlier runs are
// skipped via the checkpoint set; per-URL failures are logged and skipped,
// never fatal. Returns the extracted documents.
func (c *Crawler) Run(ctx context.Context) ([]*core.Document, error) {
	urls, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	pending := make([]string, 0, len(urls))
	for _, u := range urls {
		if !c.checkpoints.Contains(u) {
			pending = append(pending, u)
		}
	}
	c.logger.Info("crawl starting",
		"discovered", len(urls),
		"pending", len(pending),
		"resumed", len(urls)-len(pending))

	pool, err := ants.NewPool(c.opts.Workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	// Buffered to the full batch: Submit blocks once every worker is busy,
	// and the receive loop below only starts after all submits, so workers
	// must never block sending their result.
	results := make(chan fetchResult, len(pending))
	var wg sync.WaitGroup
	for _, u := range pending {
		u := u
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			body, err := c.fetcher.Fetch(ctx, u)
			if err != nil {
				results <- fetchResult{url: u, err: err}
				return
			}
			results <- fetchResult{url: u, doc: c.extract(u, body)}
		})
		if submitErr != nil {
			wg.Done()
			c.logger.Error("failed to submit fetch task", "url", u, "err", submitErr)
		}
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Checkpoint writes happen here, on the orchestrating goroutine, as
	// each worker's result arrives.
	var docs []*core.Document
	fetched, failed, empty := 0, 0, 0
	for res := range results {
		if res.err != nil {
			failed++
			continue
		}
		if res.doc == nil {
			empty++
		} else {
			docs = append(docs, res.doc)
		}
		fetched++
		if err := c.checkpoints.MarkDone(res.url); err != nil {
			c.logger.Warn("checkpoint update failed", "url", res.url, "err", err)
		}
	}

	if err := c.checkpoints.Flush(); err != nil {
		c.logger.Warn("final checkpoint flush failed", "err", err)
	}

	c.logger.Info("crawl finished",
		"fetched", fetched,
		"failed", failed,
		"empty", empty,
		"documents", len(docs))
	return docs, nil
}

// discover prefers the sitemap and falls back to breadth-first traversal.
func (c *Crawler) discover(ctx context.Context) ([]string, error) {
	urls, err := DiscoverSitemap(ctx, c.fetcher.Fetch, c.opts.Discovery)
	if err == nil && len(urls) > 0 {
		return urls, nil
	}
	if err != nil {
		c.logger.Warn("sitemap discovery failed, falling back to crawl", "err", err)
	} else {
		c.logger.Info("sitemap empty, falling back to crawl")
	}
	return DiscoverCrawl(ctx, c.fetcher.Fetch, c.opts.Discovery)
}

// extract converts a fetched page into a document, or nil when the page has
// no usable text.
func (c *Crawler) extract(url string, body []byte) *core.Document {
	text := extractText(body)
	if text == "" {
		return nil
	}
	return &core.Document{
		Text: text,
		Meta: core.DocumentMeta{
			Source:   url,
			Type:     "qa",
			Domain:   c.opts.Domain,
			Language: c.opts.Language,
			MarketID: c.opts.MarketID,
		},
	}
}

// extractText strips boilerplate elements and collapses the page body to
// whitespace-normalized text.
func extractText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, header, footer, noscript").Remove()

	root := doc.Find("main")
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	return strings.Join(strings.Fields(root.Text()), " ")
}
