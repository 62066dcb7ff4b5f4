package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-discovery/internal/provider"
)

func TestEmbed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, DefaultEmbeddingModel, req.Model)
		require.Equal(t, "title digest", req.Input)
		_, _ = w.Write([]byte(`{"embeddings":[[0.25,0.75]]}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), Config{BaseURL: srv.URL})
	vec, err := c.Embed(context.Background(), "title digest")
	require.NoError(t, err)
	require.Equal(t, []float32{0.25, 0.75}, vec)
}

func TestEmbedEmptyResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	_, err := New(srv.Client(), Config{BaseURL: srv.URL}).Embed(context.Background(), "x")
	require.Error(t, err)
}

func TestCompleteUsesJSONFormat(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "json", req.Format)
		require.False(t, req.Stream)
		require.Equal(t, "qwen3:8b", req.Model)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"is_relevant\":true,\"insight\":\"ok\"}"}}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), Config{BaseURL: srv.URL, Model: "qwen3:8b"})
	out, err := c.Complete(context.Background(), provider.Prompt{User: "judge"})
	require.NoError(t, err)
	require.Contains(t, out, "is_relevant")
}

func TestCompleteWithoutChatModel(t *testing.T) {
	t.Parallel()
	_, err := New(nil, Config{}).Complete(context.Background(), provider.Prompt{User: "x"})
	require.ErrorIs(t, err, provider.ErrUnsupported)
}
