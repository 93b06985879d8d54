// Package crawler discovers and fetches website content for ingestion.
//
// The pipeline is: enumerate URLs (sitemap first, bounded breadth-first
// traversal as fallback), filter out URLs completed in earlier runs via the
// on-disk checkpoint set, fetch the remainder across a bounded worker pool
// with rate limiting and retry, and extract whitespace-normalized text from
// each page. The live site is best-effort: pages that exhaust their retries
// land in an append-only skip log, and previously snapshotted pages are
// served from the offline cache when the live fetch fails.
package crawler
