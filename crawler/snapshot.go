package crawler

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotCache stores page bodies on disk, addressed by a filesystem-safe
// slug of the URL path. It backs the offline fallback when the live site is
// unreachable.
type SnapshotCache struct {
	dir string
}

// NewSnapshotCache creates the cache directory if needed.
func NewSnapshotCache(dir string) (*SnapshotCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SnapshotCache{dir: dir}, nil
}

// Store writes the body for the URL, overwriting any previous snapshot.
func (c *SnapshotCache) Store(rawURL string, body []byte) error {
	return os.WriteFile(c.pathFor(rawURL), body, 0o644)
}

// Load returns the stored body for the URL, or ErrNoSnapshot.
func (c *SnapshotCache) Load(rawURL string) ([]byte, error) {
	body, err := os.ReadFile(c.pathFor(rawURL))
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	return body, err
}

func (c *SnapshotCache) pathFor(rawURL string) string {
	return filepath.Join(c.dir, urlSlug(rawURL)+".html")
}

// urlSlug reduces a URL's path to a filesystem-safe name. Different URLs with
// the same path share a slug, which is acceptable for a single-site crawl.
func urlSlug(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(path) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "root"
	}
	return slug
}
