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


package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/poiesic/termreg/ai"
	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/dedup"
)

// TermWriter is the network boundary to the registry: the orchestrator never
// touches storage directly.
type TermWriter interface {
	Upsert(ctx context.Context, term *core.Term) (*core.Term, error)
}

// Summary reports one pipeline run.
type Summary struct {
	// Collected counts documents per source name.
	Collected map[string]int

	// Duplicates is the number of near-duplicate documents dropped.
	Duplicates int

	// Embedded is the number of documents that received vectors.
	Embedded int

	Upserted int
	Failed   int

	PromptTokens int
}

// Orchestrator wires the document sources to the registry.
type Orchestrator struct {
	sources    []DocumentSource
	embedder   ai.Embedder
	writer     TermWriter
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	progressTo io.Writer
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithBatchSize sets the orchestrator-level embedding batch size. This is
// intentionally larger than the embedder's internal chunk size. Default 128.
func WithBatchSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		o.batchSize = size
		return nil
	}
}

// WithRetryPolicy sets the per-batch retry count and the linear backoff
// unit: attempt n sleeps n*delay. Default 3 attempts, 2s.
func WithRetryPolicy(maxRetries int, delay time.Duration) Option {
	return func(o *Orchestrator) error {
		if maxRetries < 1 {
			maxRetries = 1
		}
		o.maxRetries = maxRetries
		o.retryDelay = delay
		return nil
	}
}

// WithProgress directs progress reporting to the writer, typically stderr.
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) error {
		o.progressTo = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates the ingestion pipeline over the given sources.
func NewOrchestrator(
	sources []DocumentSource,
	embedder ai.Embedder,
	writer TermWriter,
	opts ...Option,
) (*Orchestrator, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if writer == nil {
		return nil, ErrWriterRequired
	}

	o := &Orchestrator{
		sources:    sources,
		embedder:   embedder,
		writer:     writer,
		batchSize:  128,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
		progressTo: io.Discard,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "ingest")

	return o, nil
}

// Run executes one pipeline pass: collect, deduplicate, embed, upsert.
// A source failure or a single failed upsert is logged and skipped; an
// embedding batch that exhausts its retries aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{Collected: make(map[string]int)}

	var docs []*core.Document
	for _, source := range o.sources {
		collected, err := source.Collect(ctx)
		if err != nil {
			// A dead source must not starve the others.
			o.logger.Error("source failed, continuing without it", "source", source.Name(), "err", err)
			continue
		}
		kept := 0
		for _, doc := range collected {
			if strings.TrimSpace(doc.Text) == "" {
				continue
			}
			docs = append(docs, doc)
			kept++
		}
		summary.Collected[source.Name()] = kept
		o.logger.Info("source collected", "source", source.Name(), "documents", kept)
	}
	if len(docs) == 0 {
		o.logger.Warn("nothing to ingest")
		return summary, nil
	}

	filter := dedup.NewFilter()
	unique := docs[:0]
	for _, doc := range docs {
		if filter.Seen(doc) {
			summary.Duplicates++
			continue
		}
		unique = append(unique, doc)
	}
	o.logger.Info("deduplication complete",
		"input", len(docs),
		"unique", len(unique),
		"duplicates", summary.Duplicates)

	tracker := NewProgressTracker(o.progressTo, len(unique), 25)
	tracker.Start()
	defer tracker.Finish()

	for start := 0; start < len(unique); start += o.batchSize {
		end := min(start+o.batchSize, len(unique))
		batch := unique[start:end]

		result, err := o.embedBatch(ctx, batch)
		if err != nil {
			return summary, fmt.Errorf("embedding batch at offset %d: %w", start, err)
		}
		summary.Embedded += len(batch)
		summary.PromptTokens += result.PromptTokens

		for i, doc := range batch {
			term := termFromDocument(doc, result.Vectors[i])
			if _, err := o.writer.Upsert(ctx, term); err != nil {
				o.logger.Warn("upsert failed, continuing",
					"source", doc.Meta.Source,
					"base_term", term.BaseTerm,
					"err", err)
				summary.Failed++
			} else {
				summary.Upserted++
			}
			tracker.Increment(1)
		}
	}

	o.logger.Info("ingestion finished",
		"embedded", summary.Embedded,
		"upserted", summary.Upserted,
		"failed", summary.Failed,
		"duplicates", summary.Duplicates,
		"prompt_tokens", summary.PromptTokens)
	return summary, nil
}

// embedBatch embeds one orchestrator-level batch with bounded retry and
// linear backoff: attempt n sleeps n*delay before the next try.
func (o *Orchestrator) embedBatch(ctx context.Context, batch []*core.Document) (*ai.EmbedResult, error) {
	texts := make([]string, len(batch))
	for i, doc := range batch {
		texts[i] = doc.Text
	}

	var lastErr error
	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		result, err := o.embedder.EmbedTexts(ctx, texts)
		if err == nil {
			if len(result.Vectors) != len(batch) {
				return nil, fmt.Errorf("%w: got %d vectors for %d documents",
					ai.ErrVectorCountMismatch, len(result.Vectors), len(batch))
			}
			return result, nil
		}
		lastErr = err
		o.logger.Warn("embedding batch failed",
			"attempt", attempt, "maxRetries", o.maxRetries, "err", err)

		if attempt == o.maxRetries {
			break
		}
		timer := time.NewTimer(time.Duration(attempt) * o.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// termFromDocument maps a pipeline document onto an upsertable term. Crawled
// pages derive their base term from the URL slug; term and entity documents
// carry theirs in the metadata.
func termFromDocument(doc *core.Document, vector []float32) *core.Term {
	base := doc.Meta.BaseTerm
	localized := doc.Meta.LocalizedTerm
	routeTarget := ""

	if doc.Meta.Type == "qa" {
		routeTarget = doc.Meta.Source
		if base == "" {
			base = slugWords(doc.Meta.Source)
		}
		if localized == "" {
			localized = base
		}
	}
	if localized == "" {
		localized = base
	}

	return &core.Term{
		MarketID:      doc.Meta.MarketID,
		Domain:        doc.Meta.Domain,
		BaseTerm:      base,
		Language:      doc.Meta.Language,
		LocalizedTerm: localized,
		RouteTarget:   routeTarget,
		Metadata: map[string]string{
			"source": doc.Meta.Source,
			"type":   doc.Meta.Type,
		},
		Embedding: vector,
	}
}

// slugWords turns a URL's final path segment into words: "customs-office"
// becomes "customs office".
func slugWords(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	slug := segments[len(segments)-1]
	return strings.ToLower(strings.ReplaceAll(slug, "-", " "))
}
