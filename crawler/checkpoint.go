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
	"bufio"
	"os"
	"sort"
	"strings"
	"sync"
)

const defaultFlushEvery = 20

// CheckpointSet is the durable set of completed URLs. It is loaded before a
// run starts and flushed periodically, so an interrupted crawl resumes
// without re-fetching finished work. At most flushEvery-1 completions can be
// lost to a crash, a bounded inefficiency covered by upsert idempotence.
//
// The file belongs to one crawler process; it is not safe for concurrent
// multi-process writers.
type CheckpointSet struct {
	mu         sync.Mutex
	path       string
	done       map[string]struct{}
	unflushed  int
	flushEvery int
}

// LoadCheckpointSet reads the completed-URL set from disk. A missing file
// yields an empty set.
func LoadCheckpointSet(path string) (*CheckpointSet, error) {
	c := &CheckpointSet{
		path:       path,
		done:       make(map[string]struct{}),
		flushEvery: defaultFlushEvery,
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		url := strings.TrimSpace(scanner.Text())
		if url != "" {
			c.done[url] = struct{}{}
		}
	}
	return c, scanner.Err()
}

// Contains reports whether the URL completed in this or a previous run.
func (c *CheckpointSet) Contains(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.done[url]
	return ok
}

// MarkDone records a completion. Re-inserting a known URL is a no-op. Every
// flushEvery new completions the set is persisted.
func (c *CheckpointSet) MarkDone(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.done[url]; ok {
		return nil
	}
	c.done[url] = struct{}{}
	c.unflushed++

	if c.unflushed >= c.flushEvery {
		return c.flushLocked()
	}
	return nil
}

// Flush persists the set immediately.
func (c *CheckpointSet) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// Len returns the number of completed URLs.
func (c *CheckpointSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.done)
}

// flushLocked writes sorted URLs through a temp file and rename, so a crash
// mid-write never truncates the previous checkpoint.
func (c *CheckpointSet) flushLocked() error {
	urls := make([]string, 0, len(c.done))
	for url := range c.done {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, url := range urls {
		if _, err := w.WriteString(url + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp, c.path); err != nil {
		return err
	}
	c.unflushed = 0
	return nil
}
