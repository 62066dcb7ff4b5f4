package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-discovery/internal/config"
	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

func TestForUnknownKind(t *testing.T) {
	t.Parallel()
	r := New(config.ProvidersConfig{}, nil, nil)
	_, err := r.For(context.Background(), "cohere", discovery.ProviderOverrides{})
	require.ErrorIs(t, err, discovery.ErrInvalidArgument)
}

func TestDeepSeekRequiresKey(t *testing.T) {
	t.Parallel()
	r := New(config.ProvidersConfig{}, nil, nil)
	_, err := r.For(context.Background(), discovery.ProviderDeepSeek, discovery.ProviderOverrides{})
	require.Error(t, err)

	p, err := r.For(context.Background(), discovery.ProviderDeepSeek, discovery.ProviderOverrides{DeepSeekAPIKey: "sk"})
	require.NoError(t, err)
	require.Equal(t, discovery.ProviderDeepSeek, p.Kind())
}

func TestOllamaOverrideBaseURL(t *testing.T) {
	t.Parallel()
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = r.URL.Path == "/api/embed"
		_, _ = w.Write([]byte(`{"embeddings":[[1]]}`))
	}))
	defer srv.Close()

	r := New(config.ProvidersConfig{Ollama: config.OllamaBackendConfig{BaseURL: "http://127.0.0.1:1"}}, srv.Client(), nil)
	p, err := r.For(context.Background(), discovery.ProviderOllama, discovery.ProviderOverrides{OllamaBaseURL: srv.URL})
	require.NoError(t, err)
	vec, err := p.Embed(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, []float32{1}, vec)
	require.True(t, hit)
}

func TestResolveStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	r := New(config.ProvidersConfig{}, nil, nil)
	_, err := r.Resolve(context.Background(), discovery.ProviderSelection{
		Keyword:   discovery.ProviderOllama,
		Reasoning: discovery.ProviderGemini,
		Embedding: discovery.ProviderOllama,
	})
	require.ErrorContains(t, err, "gemini")
}
