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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/registry"
	"github.com/poiesic/termreg/storage"
)

// Server wraps the registry service with an HTTP API.
type Server struct {
	service *registry.Service
	tokens  []string
	addr    string
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithAddr sets the listen address. Default ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates an HTTP server for the registry service. The token list is the
// bearer-token allow-list; it must not be empty.
func New(service *registry.Service, tokens []string, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, ErrServiceRequired
	}
	if len(tokens) == 0 {
		return nil, ErrNoAuthTokens
	}

	s := &Server{
		service: service,
		tokens:  tokens,
		addr:    ":8080",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")

	return s, nil
}

// Handler builds the route tree. Exposed so tests can drive the server with
// httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireBearerToken)
		r.Post("/search", s.handleSearch)
		r.Post("/upsert", s.handleUpsert)
		r.Post("/embed-batch", s.handleEmbedBatch)
	})

	return r
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	results, err := s.service.Search(r.Context(), registry.SearchRequest{
		Query:    req.Query,
		MarketID: req.MarketID,
		Language: req.Language,
		Domain:   req.Domain,
		K:        req.K,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := searchResponse{Results: make([]searchHit, len(results))}
	for i, res := range results {
		resp.Results[i] = searchHit{Term: termToPayload(res.Term), Score: res.Score}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var payload termPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	stored, err := s.service.Upsert(r.Context(), payload.toTerm())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, termToPayload(stored))
}

func (s *Server) handleEmbedBatch(w http.ResponseWriter, r *http.Request) {
	var req embedBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := s.service.EmbedBatch(r.Context(), registry.EmbedBatchRequest{
		TermIDs: req.TermIDs,
		Texts:   req.Texts,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	items := make([]embedItem, len(result.Items))
	for i, item := range result.Items {
		items[i] = embedItem{Index: item.Index, ID: item.ID, Status: item.Status, Detail: item.Detail}
	}
	writeJSON(w, http.StatusOK, embedBatchResponse{
		Items:        items,
		Updated:      result.Updated,
		Vectors:      result.Vectors,
		PromptTokens: result.PromptTokens,
		TotalTokens:  result.TotalTokens,
	})
}

// writeServiceError maps service errors onto HTTP status codes. Validation
// failures are the caller's fault; everything else stays a 500 with detail in
// the log only.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidTerm),
		errors.Is(err, core.ErrBlankQuery),
		errors.Is(err, core.ErrBlankMarket),
		errors.Is(err, core.ErrInvalidLanguage),
		errors.Is(err, core.ErrEmbedBatchInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrDuplicateKey):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
