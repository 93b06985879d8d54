package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/termreg/ai/mock"
	"github.com/poiesic/termreg/cache"
	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/registry"
	"github.com/poiesic/termreg/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	terms, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	svc, err := registry.NewService(terms, mock.NewMockEmbedder(), cache.New(cache.Options{}))
	require.NoError(t, err)

	srv, err := New(svc, []string{testToken})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthz_Unauthenticated(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t)
	body := searchRequest{Query: "customs", MarketID: "CY-NC", Language: "en"}

	t.Run("missing token", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodPost, "/v1/search", "", body)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong token", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodPost, "/v1/search", "nope", body)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodPost, "/v1/search", testToken, body)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestUpsertThenSearch(t *testing.T) {
	ts := newTestServer(t)

	upsert := doJSON(t, ts, http.MethodPost, "/v1/upsert", testToken, termPayload{
		MarketID:      "CY-NC",
		Domain:        "local_info",
		BaseTerm:      "customs",
		Language:      "en",
		LocalizedTerm: "customs office",
	})
	defer upsert.Body.Close()
	require.Equal(t, http.StatusOK, upsert.StatusCode)

	var stored termPayload
	require.NoError(t, json.NewDecoder(upsert.Body).Decode(&stored))
	assert.NotZero(t, stored.Id)

	search := doJSON(t, ts, http.MethodPost, "/v1/search", testToken, searchRequest{
		Query:    "customs office",
		MarketID: "CY-NC",
		Language: "en",
		Domain:   "local_info",
	})
	defer search.Body.Close()
	require.Equal(t, http.StatusOK, search.StatusCode)

	var result searchResponse
	require.NoError(t, json.NewDecoder(search.Body).Decode(&result))
	require.NotEmpty(t, result.Results)
	assert.Equal(t, stored.Id, result.Results[0].Term.Id)
}

func TestWireFieldNames(t *testing.T) {
	ts := newTestServer(t)

	// Raw JSON pins the public field names: the query text travels as
	// "text" and the entity reference as "entity_id".
	upsertBody := []byte(`{
		"market_id": "CY-NC",
		"domain": "local_info",
		"base_term": "harbour",
		"language": "en",
		"localized_term": "harbour master",
		"entity_id": 42
	}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/upsert", bytes.NewReader(upsertBody))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stored map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stored))
	assert.EqualValues(t, 42, stored["entity_id"])

	searchBody := []byte(`{"text": "harbour master", "market_id": "CY-NC", "language": "en"}`)
	req, err = http.NewRequest(http.MethodPost, ts.URL+"/v1/search", bytes.NewReader(searchBody))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result searchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.NotEmpty(t, result.Results, "query sent under the \"text\" key must reach the search handler")
	assert.Equal(t, core.ID(42), result.Results[0].Term.EntityRef)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	t.Run("malformed body is 400", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/search", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+testToken)

		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("blank query is 400", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodPost, "/v1/search", testToken, searchRequest{MarketID: "CY-NC", Language: "en"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid term is 400", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodPost, "/v1/upsert", testToken, termPayload{MarketID: "CY-NC"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("embed-batch with both forms is 400", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodPost, "/v1/embed-batch", testToken, embedBatchRequest{
			TermIDs: []core.ID{1},
			Texts:   []string{"x"},
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestClient_RoundTrip(t *testing.T) {
	ts := newTestServer(t)
	client := NewClient(ts.URL, testToken)
	ctx := context.Background()

	stored, err := client.Upsert(ctx, &core.Term{
		MarketID:      "CY-NC",
		Domain:        "local_info",
		BaseTerm:      "pharmacy",
		Language:      "en",
		LocalizedTerm: "pharmacy",
	})
	require.NoError(t, err)
	assert.NotZero(t, stored.Id)

	results, err := client.Search(ctx, registry.SearchRequest{
		Query:    "pharmacy",
		MarketID: "CY-NC",
		Language: "en",
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, stored.Id, results[0].Term.Id)

	batch, err := client.EmbedBatch(ctx, registry.EmbedBatchRequest{TermIDs: []core.ID{stored.Id}})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Updated)
}

func TestClient_SurfacesAPIErrors(t *testing.T) {
	ts := newTestServer(t)

	t.Run("bad token", func(t *testing.T) {
		client := NewClient(ts.URL, "wrong")
		_, err := client.Search(context.Background(), registry.SearchRequest{
			Query: "x", MarketID: "CY-NC", Language: "en",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("validation error", func(t *testing.T) {
		client := NewClient(ts.URL, testToken)
		_, err := client.Upsert(context.Background(), &core.Term{MarketID: "CY-NC"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})
}
