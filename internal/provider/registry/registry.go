// Package registry builds providers from configuration and per-request overrides.
package registry

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/config"
	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/provider"
	"github.com/JakeFAU/insight-discovery/internal/provider/gemini"
	"github.com/JakeFAU/insight-discovery/internal/provider/ollama"
	"github.com/JakeFAU/insight-discovery/internal/provider/openaicompat"
)

// Set is the trio of providers one task runs with.
type Set struct {
	Keyword   provider.Provider
	Reasoning provider.Provider
	Embedding provider.Provider
}

// Registry constructs backends on demand.
type Registry struct {
	cfg    config.ProvidersConfig
	http   *http.Client
	logger *zap.Logger
	opts   []provider.Option
}

// New returns a Registry. Extra options are applied to every adapter.
func New(cfg config.ProvidersConfig, httpClient *http.Client, logger *zap.Logger, opts ...provider.Option) *Registry {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{cfg: cfg, http: httpClient, logger: logger, opts: opts}
}

// For builds the provider of the given kind. Overrides win over configured values.
func (r *Registry) For(ctx context.Context, kind discovery.ProviderKind, overrides discovery.ProviderOverrides) (provider.Provider, error) {
	backend, err := r.backend(ctx, kind, overrides)
	if err != nil {
		return nil, fmt.Errorf("build %s provider: %w", kind, err)
	}
	opts := append([]provider.Option{provider.WithLogger(r.logger.Named(string(kind)))}, r.opts...)
	return provider.NewAdapter(kind, backend, opts...), nil
}

// Resolve builds one provider per role of the selection.
func (r *Registry) Resolve(ctx context.Context, sel discovery.ProviderSelection) (Set, error) {
	keyword, err := r.For(ctx, sel.Keyword, sel.Overrides)
	if err != nil {
		return Set{}, err
	}
	reasoning, err := r.For(ctx, sel.Reasoning, sel.Overrides)
	if err != nil {
		return Set{}, err
	}
	embedding, err := r.For(ctx, sel.Embedding, sel.Overrides)
	if err != nil {
		return Set{}, err
	}
	return Set{Keyword: keyword, Reasoning: reasoning, Embedding: embedding}, nil
}

func (r *Registry) backend(ctx context.Context, kind discovery.ProviderKind, o discovery.ProviderOverrides) (provider.Backend, error) {
	switch kind {
	case discovery.ProviderGemini:
		return gemini.New(ctx, gemini.Config{
			APIKey:         firstNonEmpty(o.GeminiAPIKey, r.cfg.Gemini.APIKey),
			Model:          r.cfg.Gemini.Model,
			EmbeddingModel: r.cfg.Gemini.EmbeddingModel,
			HTTPClient:     r.http,
		})
	case discovery.ProviderDeepSeek:
		return openaicompat.New(r.http, openaicompat.Config{
			BaseURL:        firstNonEmpty(r.cfg.DeepSeek.BaseURL, openaicompat.DeepSeekBaseURL),
			APIKey:         firstNonEmpty(o.DeepSeekAPIKey, r.cfg.DeepSeek.APIKey),
			Model:          firstNonEmpty(r.cfg.DeepSeek.Model, openaicompat.DeepSeekModel),
			EmbeddingModel: r.cfg.DeepSeek.EmbeddingModel,
		})
	case discovery.ProviderOpenAICompatible:
		return openaicompat.New(r.http, openaicompat.Config{
			BaseURL:        firstNonEmpty(r.cfg.OpenAI.BaseURL, openaicompat.OpenAIBaseURL),
			APIKey:         r.cfg.OpenAI.APIKey,
			Model:          r.cfg.OpenAI.Model,
			EmbeddingModel: r.cfg.OpenAI.EmbeddingModel,
		})
	case discovery.ProviderOllama:
		return ollama.New(r.http, ollama.Config{
			BaseURL:        firstNonEmpty(o.OllamaBaseURL, r.cfg.Ollama.BaseURL),
			Model:          r.cfg.Ollama.Model,
			EmbeddingModel: firstNonEmpty(o.OllamaEmbeddingModel, r.cfg.Ollama.EmbeddingModel),
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q: %w", kind, discovery.ErrInvalidArgument)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
