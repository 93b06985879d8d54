package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 384, cfg.Storage.Dimension)
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 128, cfg.Ingest.BatchSize)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  tokens: ["secret-a", "secret-b"]
storage:
  dimension: 768
crawler:
  base_url: "https://example.test"
  allow_prefixes: ["info"]
ingest:
  market_id: "CY-NC"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"secret-a", "secret-b"}, cfg.Server.Tokens)
	assert.Equal(t, 768, cfg.Storage.Dimension)
	assert.Equal(t, "https://example.test", cfg.Crawler.BaseURL)
	assert.Equal(t, "CY-NC", cfg.Ingest.MarketID)
	// Untouched sections keep their defaults.
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  adress: \":9\"\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err, "typoed keys must not be silently ignored")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TERMREG_SERVER_ADDR", ":7070")
	t.Setenv("TERMREG_AUTH_TOKENS", "one, two,")
	t.Setenv("TERMREG_EMBEDDING_HOST", "http://embed.internal:8080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, []string{"one", "two"}, cfg.Server.Tokens)
	assert.Equal(t, "http://embed.internal:8080", cfg.Embedding.Host)
}

func TestValidateServe(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ValidateServe(), "no tokens configured")

	cfg.Server.Tokens = []string{"secret"}
	assert.NoError(t, cfg.ValidateServe())
}

func TestValidateIngest(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ValidateIngest())

	cfg.Ingest.MarketID = "CY-NC"
	cfg.Ingest.RegistryURL = "http://localhost:8080"
	cfg.Ingest.RegistryToken = "secret"
	cfg.Crawler.BaseURL = "https://example.test"
	assert.NoError(t, cfg.ValidateIngest())
}
