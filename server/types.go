package server

import (
	"github.com/poiesic/termreg/core"
)

// termPayload is the wire form of a term.
type termPayload struct {
	Id            core.ID           `json:"id,omitempty"`
	MarketID      string            `json:"market_id"`
	Domain        string            `json:"domain"`
	BaseTerm      string            `json:"base_term"`
	Language      string            `json:"language"`
	LocalizedTerm string            `json:"localized_term"`
	RouteTarget   string            `json:"route_target,omitempty"`
	EntityRef     core.ID           `json:"entity_id,omitempty"`
	Monetization  map[string]string `json:"monetization,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Embedding lets batch writers submit a precomputed vector so the
	// server does not embed the term a second time.
	Embedding []float32 `json:"embedding,omitempty"`
}

func termToPayload(t *core.Term) termPayload {
	return termPayload{
		Id:            t.Id,
		MarketID:      t.MarketID,
		Domain:        t.Domain,
		BaseTerm:      t.BaseTerm,
		Language:      t.Language,
		LocalizedTerm: t.LocalizedTerm,
		RouteTarget:   t.RouteTarget,
		EntityRef:     t.EntityRef,
		Monetization:  t.Monetization,
		Metadata:      t.Metadata,
		Embedding:     t.Embedding,
	}
}

func (p termPayload) toTerm() *core.Term {
	return &core.Term{
		Id:            p.Id,
		MarketID:      p.MarketID,
		Domain:        p.Domain,
		BaseTerm:      p.BaseTerm,
		Language:      p.Language,
		LocalizedTerm: p.LocalizedTerm,
		RouteTarget:   p.RouteTarget,
		EntityRef:     p.EntityRef,
		Monetization:  p.Monetization,
		Metadata:      p.Metadata,
		Embedding:     p.Embedding,
	}
}

type searchRequest struct {
	Query    string `json:"text"`
	MarketID string `json:"market_id"`
	Language string `json:"language"`
	Domain   string `json:"domain,omitempty"`
	K        int    `json:"k,omitempty"`
}

type searchHit struct {
	Term  termPayload `json:"term"`
	Score float32     `json:"score"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

type embedBatchRequest struct {
	TermIDs []core.ID `json:"term_ids,omitempty"`
	Texts   []string  `json:"texts,omitempty"`
}

type embedItem struct {
	Index  int     `json:"index"`
	ID     core.ID `json:"id,omitempty"`
	Status string  `json:"status"`
	Detail string  `json:"detail,omitempty"`
}

type embedBatchResponse struct {
	Items        []embedItem `json:"items"`
	Updated      int         `json:"updated"`
	Vectors      [][]float32 `json:"vectors,omitempty"`
	PromptTokens int         `json:"prompt_tokens"`
	TotalTokens  int         `json:"total_tokens"`
}

type errorResponse struct {
	Error string `json:"error"`
}
