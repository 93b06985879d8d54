package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/termreg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crawlSite serves a sitemap with three content pages and counts page
// fetches separately from sitemap fetches.
func crawlSite(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var pageFetches atomic.Int32
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	pages := []string{"customs-office", "night-pharmacy", "ferry-schedules"}
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><urlset>`)
		for _, page := range pages {
			fmt.Fprintf(w, "<url><loc>%s/info/%s</loc></url>", ts.URL, page)
		}
		fmt.Fprint(w, `</urlset>`)
	})
	for _, page := range pages {
		page := page
		mux.HandleFunc("/info/"+page, func(w http.ResponseWriter, r *http.Request) {
			pageFetches.Add(1)
			fmt.Fprintf(w, "<html><body><main>Details about %s in the north.</main></body></html>",
				strings.ReplaceAll(page, "-", " "))
		})
	}
	return ts, &pageFetches
}

func newTestCrawler(t *testing.T, baseURL, checkpointPath string) *Crawler {
	t.Helper()

	snapshots, err := NewSnapshotCache(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)

	checkpoints, err := LoadCheckpointSet(checkpointPath)
	require.NoError(t, err)

	c, err := New(
		NewCachedFetcher(fastFetcher(t, NewSkipLog(filepath.Join(t.TempDir(), "skips.log"))), snapshots),
		checkpoints,
		Options{
			Discovery: DiscoveryOptions{BaseURL: baseURL, AllowPrefixes: []string{"info"}},
			Workers:   2,
			MarketID:  "CY-NC",
			Language:  "en",
			Domain:    "local_info",
		},
	)
	require.NoError(t, err)
	return c
}

func TestCrawler_ProducesScopedDocuments(t *testing.T) {
	ts, _ := crawlSite(t)
	c := newTestCrawler(t, ts.URL, filepath.Join(t.TempDir(), "checkpoint.txt"))

	docs, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	for _, doc := range docs {
		assert.NotEmpty(t, doc.Text)
		assert.Equal(t, "CY-NC", doc.Meta.MarketID)
		assert.Equal(t, "en", doc.Meta.Language)
		assert.Equal(t, "local_info", doc.Meta.Domain)
		assert.Equal(t, "qa", doc.Meta.Type)
		assert.Contains(t, doc.Meta.Source, ts.URL)
	}
}

func TestCrawler_DrainsBatchesLargerThanPool(t *testing.T) {
	var pageFetches atomic.Int32
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	// Many more pages than the two pool workers, so the run only finishes
	// if workers can hand off results while later submits are queued.
	const pages = 16
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><urlset>`)
		for i := 0; i < pages; i++ {
			fmt.Fprintf(w, "<url><loc>%s/info/town-guide-%d</loc></url>", ts.URL, i)
		}
		fmt.Fprint(w, `</urlset>`)
	})
	mux.HandleFunc("/info/", func(w http.ResponseWriter, r *http.Request) {
		pageFetches.Add(1)
		fmt.Fprint(w, "<html><body><main>Guide content.</main></body></html>")
	})

	c := newTestCrawler(t, ts.URL, filepath.Join(t.TempDir(), "checkpoint.txt"))

	done := make(chan struct{})
	var docs []*core.Document
	var err error
	go func() {
		docs, err = c.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not finish: workers stuck handing results to the orchestrator")
	}

	require.NoError(t, err)
	assert.Len(t, docs, pages)
	assert.Equal(t, int32(pages), pageFetches.Load())
}

func TestCrawler_ResumeSkipsCompletedURLs(t *testing.T) {
	ts, pageFetches := crawlSite(t)
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.txt")

	first := newTestCrawler(t, ts.URL, checkpointPath)
	docs, err := first.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)
	require.Equal(t, int32(3), pageFetches.Load())

	// A second run reloads the checkpoint set and must not touch any of
	// the three completed pages again.
	second := newTestCrawler(t, ts.URL, checkpointPath)
	docs, err = second.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, int32(3), pageFetches.Load(), "completed URLs re-fetched after resume")
}

func TestExtractText_StripsBoilerplate(t *testing.T) {
	body := []byte(`<html><head><style>.x{}</style></head><body>
<nav>menu items</nav>
<main>  Customs   office hours. </main>
<script>var x = 1;</script>
<footer>legal</footer>
</body></html>`)

	text := extractText(body)
	assert.Equal(t, "Customs office hours.", text)
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "legal")
}
