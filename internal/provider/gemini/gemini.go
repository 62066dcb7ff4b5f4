// Package gemini implements a provider backend on the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/JakeFAU/insight-discovery/internal/provider"
)

// Default model names.
const (
	DefaultModel          = "gemini-2.0-flash"
	DefaultEmbeddingModel = "gemini-embedding-001"
)

// Config selects credentials and models.
type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	HTTPClient     *http.Client
}

type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Backend implements provider.Backend.
type Backend struct {
	models         models
	model          string
	embeddingModel string
}

// New builds a Gemini API client.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newWithModels(client.Models, cfg), nil
}

func newWithModels(m models, cfg Config) *Backend {
	b := &Backend{models: m, model: cfg.Model, embeddingModel: cfg.EmbeddingModel}
	if b.model == "" {
		b.model = DefaultModel
	}
	if b.embeddingModel == "" {
		b.embeddingModel = DefaultEmbeddingModel
	}
	return b
}

// Complete sends the flattened prompt in JSON response mode and returns the text.
func (b *Backend) Complete(ctx context.Context, prompt provider.Prompt) (string, error) {
	temperature := prompt.Temperature
	resp, err := b.models.GenerateContent(ctx, b.model, genai.Text(provider.JoinPrompt(prompt)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      &temperature,
		})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini generate: no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini generate: empty content")
	}
	return sb.String(), nil
}

// Embed returns the embedding of text.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.models.EmbedContent(ctx, b.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini embed: no embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}
