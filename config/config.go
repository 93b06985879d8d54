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


// Package config loads the termreg YAML configuration file. A handful of
// settings can be overridden through TERMREG_* environment variables, which
// is how deployments inject secrets without writing them to disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full termreg configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// Tokens is the bearer-token allow-list.
	Tokens []string `yaml:"tokens"`
}

// StorageConfig configures the badger term store.
type StorageConfig struct {
	Path      string `yaml:"path"`
	InMemory  bool   `yaml:"in_memory"`
	Dimension int    `yaml:"dimension"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Host           string        `yaml:"host"`
	Model          string        `yaml:"model"`
	BatchSize      int           `yaml:"batch_size"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryJitter    time.Duration `yaml:"retry_jitter"`
}

// CacheConfig configures the two result-cache tiers.
type CacheConfig struct {
	ExactSize    int           `yaml:"exact_size"`
	SemanticSize int           `yaml:"semantic_size"`
	TTL          time.Duration `yaml:"ttl"`
}

// CrawlerConfig configures discovery and fetching.
type CrawlerConfig struct {
	BaseURL         string   `yaml:"base_url"`
	AllowPrefixes   []string `yaml:"allow_prefixes"`
	ExcludeSections []string `yaml:"exclude_sections"`
	MinPathDepth    int      `yaml:"min_path_depth"`
	PageBudget      int      `yaml:"page_budget"`
	RequestBudget   int      `yaml:"request_budget"`
	Workers         int      `yaml:"workers"`
	RatePerSecond   float64  `yaml:"rate_per_second"`
	SnapshotDir     string   `yaml:"snapshot_dir"`
	CheckpointPath  string   `yaml:"checkpoint_path"`
	SkipLogPath     string   `yaml:"skip_log_path"`
}

// IngestConfig configures the batch pipeline and its registry endpoint.
type IngestConfig struct {
	MarketID      string        `yaml:"market_id"`
	Language      string        `yaml:"language"`
	Domain        string        `yaml:"domain"`
	BatchSize     int           `yaml:"batch_size"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	RegistryURL   string        `yaml:"registry_url"`
	RegistryToken string        `yaml:"registry_token"`
}

// Default returns a configuration suitable for local development, except for
// the fields that have no sensible default (tokens, crawler base URL, market).
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{
			Path:      "./termreg-data",
			Dimension: 384,
		},
		Embedding: EmbeddingConfig{
			Host:           "http://localhost:11434/v1",
			Model:          "embeddinggemma",
			BatchSize:      64,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			RetryJitter:    250 * time.Millisecond,
		},
		Cache: CacheConfig{
			ExactSize:    1024,
			SemanticSize: 1024,
			TTL:          5 * time.Minute,
		},
		Crawler: CrawlerConfig{
			Workers:        4,
			RatePerSecond:  4,
			SnapshotDir:    "./termreg-data/snapshots",
			CheckpointPath: "./termreg-data/checkpoint.txt",
			SkipLogPath:    "./termreg-data/skips.log",
		},
		Ingest: IngestConfig{
			Language:   "en",
			Domain:     "local_info",
			BatchSize:  128,
			MaxRetries: 3,
			RetryDelay: 2 * time.Second,
		},
	}
}

// Load reads the YAML file at path, layering it over the defaults and the
// environment over both. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("unable to open config file: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("unable to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv maps TERMREG_* variables onto their config fields.
func (c *Config) applyEnv() {
	if v := os.Getenv("TERMREG_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TERMREG_AUTH_TOKENS"); v != "" {
		c.Server.Tokens = splitNonEmpty(v)
	}
	if v := os.Getenv("TERMREG_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("TERMREG_EMBEDDING_HOST"); v != "" {
		c.Embedding.Host = v
	}
	if v := os.Getenv("TERMREG_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("TERMREG_REGISTRY_URL"); v != "" {
		c.Ingest.RegistryURL = v
	}
	if v := os.Getenv("TERMREG_REGISTRY_TOKEN"); v != "" {
		c.Ingest.RegistryToken = v
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ValidateServe checks the fields the serve command needs.
func (c *Config) ValidateServe() error {
	if len(c.Server.Tokens) == 0 {
		return errors.New("config: at least one auth token is required (server.tokens or TERMREG_AUTH_TOKENS)")
	}
	if c.Storage.Dimension <= 0 {
		return errors.New("config: storage.dimension must be greater than 0")
	}
	if c.Embedding.Host == "" || c.Embedding.Model == "" {
		return errors.New("config: embedding.host and embedding.model are required")
	}
	return nil
}

// ValidateIngest checks the fields the ingest command needs.
func (c *Config) ValidateIngest() error {
	if c.Ingest.MarketID == "" {
		return errors.New("config: ingest.market_id is required")
	}
	if c.Ingest.RegistryURL == "" {
		return errors.New("config: ingest.registry_url is required")
	}
	if c.Ingest.RegistryToken == "" {
		return errors.New("config: ingest.registry_token is required")
	}
	if c.Crawler.BaseURL == "" {
		return errors.New("config: crawler.base_url is required")
	}
	return nil
}
