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


package ingest

import (
	"context"
	"strings"

	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/storage"
)

// DocumentSource produces documents for one ingestion run.
type DocumentSource interface {
	// Name identifies the source in logs and the run summary.
	Name() string

	// Collect returns this source's documents.
	Collect(ctx context.Context) ([]*core.Document, error)
}

// PageCrawler is the slice of the crawler the ingest pipeline needs.
type PageCrawler interface {
	Run(ctx context.Context) ([]*core.Document, error)
}

// CrawlSource feeds crawled page text into the pipeline.
type CrawlSource struct {
	crawler PageCrawler
}

// NewCrawlSource wraps a crawler as a document source.
func NewCrawlSource(crawler PageCrawler) *CrawlSource {
	return &CrawlSource{crawler: crawler}
}

func (s *CrawlSource) Name() string { return "crawler" }

func (s *CrawlSource) Collect(ctx context.Context) ([]*core.Document, error) {
	return s.crawler.Run(ctx)
}

// TermSource re-describes existing term rows as documents, so their
// embeddings get refreshed alongside newly crawled content.
type TermSource struct {
	terms storage.TermRepository
	scope storage.TermScope
}

// NewTermSource creates a source over the stored terms in scope.
func NewTermSource(terms storage.TermRepository, scope storage.TermScope) *TermSource {
	return &TermSource{terms: terms, scope: scope}
}

func (s *TermSource) Name() string { return "term-store" }

func (s *TermSource) Collect(ctx context.Context) ([]*core.Document, error) {
	terms, err := s.terms.ListTerms(ctx, s.scope)
	if err != nil {
		return nil, err
	}

	docs := make([]*core.Document, 0, len(terms))
	for _, term := range terms {
		docs = append(docs, &core.Document{
			Text: term.EmbeddingText(),
			Meta: core.DocumentMeta{
				Source:        "term-store",
				Type:          "term",
				Domain:        term.Domain,
				Language:      term.Language,
				MarketID:      term.MarketID,
				BaseTerm:      term.BaseTerm,
				LocalizedTerm: term.LocalizedTerm,
			},
		})
	}
	return docs, nil
}

// EntitySource re-describes directory entities as documents. Entities are
// not searched directly; this is how they become findable terms.
type EntitySource struct {
	entities storage.EntityRepository
	marketID string
	language string
	domain   string
}

// NewEntitySource creates a source over the directory entities of a market.
func NewEntitySource(entities storage.EntityRepository, marketID, language, domain string) *EntitySource {
	return &EntitySource{
		entities: entities,
		marketID: marketID,
		language: language,
		domain:   domain,
	}
}

func (s *EntitySource) Name() string { return "directory" }

func (s *EntitySource) Collect(ctx context.Context) ([]*core.Document, error) {
	entities, err := s.entities.ListEntities(ctx, s.marketID)
	if err != nil {
		return nil, err
	}

	docs := make([]*core.Document, 0, len(entities))
	for _, entity := range entities {
		text := describeEntity(entity, s.language)
		if text == "" {
			continue
		}
		docs = append(docs, &core.Document{
			Text: text,
			Meta: core.DocumentMeta{
				Source:        "directory",
				Type:          "entity",
				Domain:        s.domain,
				Language:      s.language,
				MarketID:      entity.MarketID,
				BaseTerm:      strings.ToLower(entity.Category),
				LocalizedTerm: localizedEntityName(entity, s.language),
			},
		})
	}
	return docs, nil
}

// describeEntity flattens an entity into one line of text for embedding.
func describeEntity(entity *core.DirectoryEntity, language string) string {
	parts := []string{entity.Category, entity.Subcategory, entity.City, entity.Address}
	if localized, ok := entity.LocalizedData[language]; ok {
		parts = append(parts, localized)
	}

	fields := parts[:0]
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			fields = append(fields, part)
		}
	}
	return strings.Join(fields, " ")
}

// localizedEntityName prefers the entity's localized description, falling
// back to "category city".
func localizedEntityName(entity *core.DirectoryEntity, language string) string {
	if localized, ok := entity.LocalizedData[language]; ok && strings.TrimSpace(localized) != "" {
		return localized
	}
	return strings.TrimSpace(strings.ToLower(entity.Category) + " " + strings.ToLower(entity.City))
}
