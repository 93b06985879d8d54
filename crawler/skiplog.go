package crawler

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// SkipLog is an append-only record of URLs abandoned after retry exhaustion.
// Entries are tab-separated: url, error type, message, timestamp. The log is
// for operator review; the crawler never reads it back.
type SkipLog struct {
	mu   sync.Mutex
	path string
}

// NewSkipLog creates a skip log writing to the given path.
func NewSkipLog(path string) *SkipLog {
	return &SkipLog{path: path}
}

// Record appends one skip entry. Logging failures are returned but callers
// treat them as non-fatal.
func (l *SkipLog) Record(url, errType, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s\t%s\t%s\t%s\n",
		url, errType, message, time.Now().UTC().Format(time.RFC3339))
	return err
}
