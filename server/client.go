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


package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/registry"
)

// Client talks to a running registry server. It exists so the ingestion CLI
// can feed a remote registry instead of linking the storage layer directly.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
// Default has a 30s timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a registry API client.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert submits one term and returns the stored record.
func (c *Client) Upsert(ctx context.Context, term *core.Term) (*core.Term, error) {
	var stored termPayload
	if err := c.post(ctx, "/v1/upsert", termToPayload(term), &stored); err != nil {
		return nil, err
	}
	return stored.toTerm(), nil
}

// Search runs a scoped query against the remote registry.
func (c *Client) Search(ctx context.Context, req registry.SearchRequest) ([]*core.SearchResult, error) {
	var resp searchResponse
	err := c.post(ctx, "/v1/search", searchRequest{
		Query:    req.Query,
		MarketID: req.MarketID,
		Language: req.Language,
		Domain:   req.Domain,
		K:        req.K,
	}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, len(resp.Results))
	for i, hit := range resp.Results {
		results[i] = &core.SearchResult{Term: hit.Term.toTerm(), Score: hit.Score}
	}
	return results, nil
}

// EmbedBatch triggers a re-embed of stored terms or embeds raw texts remotely.
func (c *Client) EmbedBatch(ctx context.Context, req registry.EmbedBatchRequest) (*registry.EmbedBatchResult, error) {
	var resp embedBatchResponse
	err := c.post(ctx, "/v1/embed-batch", embedBatchRequest{
		TermIDs: req.TermIDs,
		Texts:   req.Texts,
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]registry.EmbedItemStatus, len(resp.Items))
	for i, item := range resp.Items {
		items[i] = registry.EmbedItemStatus{Index: item.Index, ID: item.ID, Status: item.Status, Detail: item.Detail}
	}
	return &registry.EmbedBatchResult{
		Items:        items,
		Updated:      resp.Updated,
		Vectors:      resp.Vectors,
		PromptTokens: resp.PromptTokens,
		TotalTokens:  resp.TotalTokens,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("registry %s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("registry %s: status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
