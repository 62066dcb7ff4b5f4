package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-discovery/internal/provider"
)

func TestCompleteSendsSystemAndUserMessages(t *testing.T) {
	t.Parallel()
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"keywords\":[\"a\"]}"}}]}`))
	}))
	defer srv.Close()

	c, err := New(srv.Client(), Config{BaseURL: srv.URL + "/", APIKey: "sk-test", Model: DeepSeekModel})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), provider.Prompt{System: "sys", User: "Topic: x", Temperature: 0.3})
	require.NoError(t, err)
	require.JSONEq(t, `{"keywords":["a"]}`, out)
	require.Equal(t, DeepSeekModel, got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "user", got.Messages[1].Role)
	require.Equal(t, "Topic: x", got.Messages[1].Content)
	require.Equal(t, "json_object", got.ResponseFormat.Type)
	require.InDelta(t, 0.3, got.Temperature, 1e-6)
}

func TestCompleteSurfacesHTTPStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := New(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), provider.Prompt{User: "x"})
	require.ErrorContains(t, err, "status 429")
}

func TestEmbed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "text-embedding-3-small", req.Model)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,0.5]}]}`))
	}))
	defer srv.Close()

	c, err := New(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k", Model: "m", EmbeddingModel: "text-embedding-3-small"})
	require.NoError(t, err)
	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 0.5}, vec)
}

func TestEmbedUnsupportedWithoutModel(t *testing.T) {
	t.Parallel()
	c, err := New(nil, Config{BaseURL: DeepSeekBaseURL, APIKey: "k", Model: DeepSeekModel})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "x")
	require.True(t, errors.Is(err, provider.ErrUnsupported))
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	_, err := New(nil, Config{BaseURL: DeepSeekBaseURL, Model: DeepSeekModel})
	require.Error(t, err)
}
