package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTagsServer(t *testing.T, names ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		models := make([]map[string]string, 0, len(names))
		for _, n := range names {
			models = append(models, map[string]string{"name": n})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHasModel_Present(t *testing.T) {
	srv := newTagsServer(t, "qwen2.5:7b-instruct-q4_K_M", "llama3:latest")
	c := NewClient(WithBaseURL(srv.URL))

	ok, reason := c.HasModel(context.Background(), "qwen2.5:7b-instruct-q4_K_M")
	assert.True(t, ok)
	assert.Empty(t, reason)

	// A :latest tag matches its bare name.
	ok, _ = c.HasModel(context.Background(), "llama3")
	assert.True(t, ok)
}

func TestHasModel_Missing(t *testing.T) {
	srv := newTagsServer(t, "llama3:latest")
	c := NewClient(WithBaseURL(srv.URL))

	ok, reason := c.HasModel(context.Background(), "mistral")
	assert.False(t, ok)
	assert.Equal(t, "model_missing", reason)
}

func TestHasModel_ServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	c := NewClient(WithBaseURL(srv.URL))

	ok, reason := c.HasModel(context.Background(), "llama3")
	assert.False(t, ok)
	assert.Equal(t, "server_unreachable", reason)
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(GenerateResponse{
			Model:    req.Model,
			Response: `{"city": {"value": "Pune"}}`,
			Done:     true,
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(WithBaseURL(srv.URL))
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Model:  "qwen",
		Prompt: "extract",
		Format: "json",
	})
	require.NoError(t, err)
	assert.True(t, resp.Done)
	assert.Contains(t, resp.Response, "Pune")
}

func TestGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "qwen", Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
