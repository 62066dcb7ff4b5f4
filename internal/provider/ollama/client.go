// Package ollama is a provider backend for a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JakeFAU/insight-discovery/internal/provider"
)

// Defaults for a local install.
const (
	DefaultBaseURL        = "http://127.0.0.1:11434"
	DefaultEmbeddingModel = "qwen3-embedding:8b-q8_0"
)

// Config configures the client.
type Config struct {
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// Client implements provider.Backend.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a client, filling defaults for empty fields.
func New(httpClient *http.Client, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string             `json:"model"`
	Messages []message          `json:"messages"`
	Stream   bool               `json:"stream"`
	Format   string             `json:"format"`
	Options  map[string]float32 `json:"options,omitempty"`
}

type chatResponse struct {
	Message message `json:"message"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Complete runs a non-streaming chat in JSON format.
func (c *Client) Complete(ctx context.Context, prompt provider.Prompt) (string, error) {
	if c.cfg.Model == "" {
		return "", provider.ErrUnsupported
	}
	messages := make([]message, 0, 2)
	if prompt.System != "" {
		messages = append(messages, message{Role: "system", Content: prompt.System})
	}
	messages = append(messages, message{Role: "user", Content: prompt.User})

	var out chatResponse
	err := c.post(ctx, "/api/chat", chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Format:   "json",
		Options:  map[string]float32{"temperature": prompt.Temperature},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Message.Content == "" {
		return "", errors.New("ollama chat returned empty content")
	}
	return out.Message.Content, nil
}

// Embed posts to /api/embed and returns the first embedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var out embedResponse
	if err := c.post(ctx, "/api/embed", embedRequest{Model: c.cfg.EmbeddingModel, Input: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, errors.New("no embedding returned from ollama")
	}
	return out.Embeddings[0], nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ollama %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ollama %s: %w", path, err)
	}
	return nil
}
