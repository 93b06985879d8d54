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


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/poiesic/termreg/ai"
	"github.com/poiesic/termreg/ai/openai"
	"github.com/poiesic/termreg/cache"
	"github.com/poiesic/termreg/config"
	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/crawler"
	"github.com/poiesic/termreg/ingest"
	"github.com/poiesic/termreg/registry"
	"github.com/poiesic/termreg/server"
	"github.com/poiesic/termreg/storage"
	"github.com/poiesic/termreg/storage/badger"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "termreg",
		Usage: "Term registry and retrieval engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the search/upsert HTTP API",
				Action: serveCommand,
			},
			{
				Name:   "ingest",
				Usage:  "Run the ingestion pipeline once: crawl, dedup, embed, upsert",
				Action: ingestCommand,
			},
			{
				Name:   "seed",
				Usage:  "Load directory entities from a JSON file into the store",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the entity JSON file",
						Required: true,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute embeddings for all stored terms",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of terms to re-embed per batch",
						Value: 100,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	backend, err := badger.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory,
		badger.WithDimension(cfg.Storage.Dimension))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	terms, err := badger.NewTermRepository(backend)
	if err != nil {
		return fmt.Errorf("failed to create term repository: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	svc, err := registry.NewService(terms, embedder, cache.New(cache.Options{
		ExactSize:    cfg.Cache.ExactSize,
		SemanticSize: cfg.Cache.SemanticSize,
		TTL:          cfg.Cache.TTL,
	}))
	if err != nil {
		return err
	}

	srv, err := server.New(svc, cfg.Server.Tokens, server.WithAddr(cfg.Server.Addr))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func ingestCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ValidateIngest(); err != nil {
		return err
	}

	backend, err := badger.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory,
		badger.WithDimension(cfg.Storage.Dimension))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	terms, err := badger.NewTermRepository(backend)
	if err != nil {
		return fmt.Errorf("failed to create term repository: %w", err)
	}
	entities, err := badger.NewEntityRepository(backend)
	if err != nil {
		return fmt.Errorf("failed to create entity repository: %w", err)
	}

	cr, err := buildCrawler(cfg)
	if err != nil {
		return err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	client := server.NewClient(cfg.Ingest.RegistryURL, cfg.Ingest.RegistryToken)
	sources := []ingest.DocumentSource{
		ingest.NewCrawlSource(cr),
		ingest.NewTermSource(terms, storage.TermScope{
			MarketID: cfg.Ingest.MarketID,
			Language: cfg.Ingest.Language,
			Domain:   cfg.Ingest.Domain,
		}),
		ingest.NewEntitySource(entities, cfg.Ingest.MarketID, cfg.Ingest.Language, cfg.Ingest.Domain),
	}

	orchestrator, err := ingest.NewOrchestrator(sources, embedder, client,
		ingest.WithBatchSize(cfg.Ingest.BatchSize),
		ingest.WithRetryPolicy(cfg.Ingest.MaxRetries, cfg.Ingest.RetryDelay),
		ingest.WithProgress(os.Stderr),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Upserted: %d  Failed: %d  Duplicates dropped: %d  Prompt tokens: %d\n",
		summary.Upserted, summary.Failed, summary.Duplicates, summary.PromptTokens)
	return nil
}

// entitySeed is the JSON form of a directory entity in a seed file.
type entitySeed struct {
	MarketID      string            `json:"market_id"`
	Category      string            `json:"category"`
	Subcategory   string            `json:"subcategory,omitempty"`
	City          string            `json:"city"`
	Address       string            `json:"address,omitempty"`
	Latitude      float64           `json:"latitude,omitempty"`
	Longitude     float64           `json:"longitude,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	Website       string            `json:"website,omitempty"`
	LocalizedData map[string]string `json:"localized_data,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func seedCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seeds []entitySeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	if len(seeds) == 0 {
		return fmt.Errorf("seed file contains no entities")
	}

	backend, err := badger.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory,
		badger.WithDimension(cfg.Storage.Dimension))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	entities, err := badger.NewEntityRepository(backend)
	if err != nil {
		return fmt.Errorf("failed to create entity repository: %w", err)
	}

	rows := make([]*core.DirectoryEntity, len(seeds))
	for i, seed := range seeds {
		rows[i] = &core.DirectoryEntity{
			MarketID:      seed.MarketID,
			Category:      seed.Category,
			Subcategory:   seed.Subcategory,
			City:          seed.City,
			Address:       seed.Address,
			Latitude:      seed.Latitude,
			Longitude:     seed.Longitude,
			Phone:         seed.Phone,
			Website:       seed.Website,
			LocalizedData: seed.LocalizedData,
			Metadata:      seed.Metadata,
		}
	}

	stored, err := entities.PutEntities(c.Context, rows...)
	if err != nil {
		return fmt.Errorf("failed to store entities: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Seeded %d entities\n", len(stored))
	return nil
}

// reembedJob names the checkpoint cursor shared by successive reembed runs.
const reembedJob = "reembed"

func reembedCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	backend, err := badger.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory,
		badger.WithDimension(cfg.Storage.Dimension))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	terms, err := badger.NewTermRepository(backend)
	if err != nil {
		return fmt.Errorf("failed to create term repository: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	svc, err := registry.NewService(terms, embedder, cache.New(cache.Options{}))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids, err := terms.AllTermIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list terms: %w", err)
	}

	// Resume after the last ID the previous run persisted. AllTermIDs is in
	// stable key order, so the cursor position survives restarts as long as
	// the term set has not changed underneath us.
	cursors := badger.NewCheckpointRepository(backend)
	offset := 0
	if lastID, found, err := cursors.LoadCursor(ctx, reembedJob); err != nil {
		return fmt.Errorf("failed to load re-embed cursor: %w", err)
	} else if found && lastID != 0 {
		if idx := slices.Index(ids, lastID); idx >= 0 {
			offset = idx + 1
			slog.Info("resuming re-embed from checkpoint", "skipped", offset, "total", len(ids))
		}
	}

	tracker := ingest.NewProgressTracker(os.Stderr, len(ids)-offset, batchSize)
	tracker.Start()
	defer tracker.Finish()

	updated, failed := 0, 0
	for start := offset; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		result, err := svc.EmbedBatch(ctx, registry.EmbedBatchRequest{TermIDs: ids[start:end]})
		if err != nil {
			return fmt.Errorf("re-embed batch at offset %d: %w", start, err)
		}
		updated += result.Updated
		for _, item := range result.Items {
			if item.Status == registry.StatusError {
				failed++
			}
		}
		if err := cursors.SaveCursor(ctx, reembedJob, ids[end-1]); err != nil {
			return fmt.Errorf("failed to save re-embed cursor: %w", err)
		}
		tracker.Increment(end - start)
	}

	// A zero cursor means the next run starts from the beginning.
	if err := cursors.SaveCursor(ctx, reembedJob, 0); err != nil {
		return fmt.Errorf("failed to reset re-embed cursor: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Re-embedded: %d  Failed: %d  Total terms: %d\n", updated, failed, len(ids))
	return nil
}

func newEmbedder(cfg *config.Config) (ai.Embedder, error) {
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(cfg.Embedding.Host),
		ai.WithEmbeddingModel(cfg.Embedding.Model),
		ai.WithDimension(cfg.Storage.Dimension),
		ai.WithBatchSize(cfg.Embedding.BatchSize),
		ai.WithRetryPolicy(cfg.Embedding.MaxRetries, cfg.Embedding.RetryBaseDelay, cfg.Embedding.RetryJitter),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding configuration: %w", err)
	}

	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

func buildCrawler(cfg *config.Config) (*crawler.Crawler, error) {
	snapshots, err := crawler.NewSnapshotCache(cfg.Crawler.SnapshotDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	checkpoints, err := crawler.LoadCheckpointSet(cfg.Crawler.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint set: %w", err)
	}

	fetcher := crawler.NewFetcher(
		crawler.NewSkipLog(cfg.Crawler.SkipLogPath),
		crawler.WithRateLimit(cfg.Crawler.RatePerSecond, 2),
	)

	return crawler.New(
		crawler.NewCachedFetcher(fetcher, snapshots),
		checkpoints,
		crawler.Options{
			Discovery: crawler.DiscoveryOptions{
				BaseURL:         cfg.Crawler.BaseURL,
				AllowPrefixes:   cfg.Crawler.AllowPrefixes,
				ExcludeSections: cfg.Crawler.ExcludeSections,
				MinPathDepth:    cfg.Crawler.MinPathDepth,
				PageBudget:      cfg.Crawler.PageBudget,
				RequestBudget:   cfg.Crawler.RequestBudget,
			},
			Workers:  cfg.Crawler.Workers,
			MarketID: cfg.Ingest.MarketID,
			Language: cfg.Ingest.Language,
			Domain:   cfg.Ingest.Domain,
		},
	)
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
