// Package provider adapts language-model backends to the keyword, classify
// and embed capabilities used by discovery tasks.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/metrics"
	"github.com/JakeFAU/insight-discovery/internal/retry"
)

// ErrUnsupported is returned when a backend does not offer a capability.
var ErrUnsupported = errors.New("capability not supported by provider")

// Provider is the single capability interface every backend is exposed through.
type Provider interface {
	discovery.KeywordSuggester
	discovery.Classifier
	discovery.Embedder
	Kind() discovery.ProviderKind
}

// Prompt is a backend-neutral chat request.
type Prompt struct {
	System      string
	User        string
	Temperature float32
}

// Backend is the raw transport of one provider: a JSON-mode completion and an embedding call.
type Backend interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	keywordTemperature  = 0.3
	classifyTemperature = 0.2
)

// Adapter layers prompts, response parsing and accounting over a Backend.
type Adapter struct {
	kind         discovery.ProviderKind
	backend      Backend
	keywordRetry retry.Policy
	logger       *zap.Logger
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithKeywordRetry overrides the keyword generation retry policy.
func WithKeywordRetry(p retry.Policy) Option {
	return func(a *Adapter) {
		a.keywordRetry = p
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdapter wraps backend as a Provider of the given kind.
func NewAdapter(kind discovery.ProviderKind, backend Backend, opts ...Option) *Adapter {
	a := &Adapter{
		kind:         kind,
		backend:      backend,
		keywordRetry: retry.Constant(5, 2*time.Second),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Kind reports the backend kind.
func (a *Adapter) Kind() discovery.ProviderKind {
	return a.kind
}

// SuggestKeywords asks the backend for count search terms about topic.
func (a *Adapter) SuggestKeywords(ctx context.Context, topic string, count int) ([]string, error) {
	policy := a.keywordRetry.WithNotify(func(attempt int, err error) {
		a.logger.Warn("keyword generation attempt failed",
			zap.String("provider", string(a.kind)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	keywords, err := retry.Value(ctx, policy, func(ctx context.Context) ([]string, error) {
		content, err := a.backend.Complete(ctx, Prompt{
			System:      KeywordPrompt(count),
			User:        "Topic: " + topic,
			Temperature: keywordTemperature,
		})
		metrics.ObserveProviderCall(string(a.kind), "keywords", err)
		if err != nil {
			return nil, err
		}
		return ParseKeywords(content)
	})
	if err != nil {
		return nil, fmt.Errorf("generate keywords: %w", err)
	}
	return keywords, nil
}

// Classify judges the article against intent. Unparseable output is a negative verdict.
func (a *Adapter) Classify(ctx context.Context, intent, title, digest string) (discovery.Verdict, error) {
	content, err := a.backend.Complete(ctx, Prompt{
		User:        ClassifyPrompt(intent, title, digest),
		Temperature: classifyTemperature,
	})
	metrics.ObserveProviderCall(string(a.kind), "classify", err)
	if err != nil {
		return discovery.Verdict{}, fmt.Errorf("classify article: %w", err)
	}
	return ParseVerdict(content), nil
}

// Embed returns the backend's embedding of text.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := a.backend.Embed(ctx, text)
	metrics.ObserveProviderCall(string(a.kind), "embed", err)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	return vec, nil
}

// JoinPrompt flattens a Prompt for backends without a system role.
func JoinPrompt(p Prompt) string {
	switch {
	case p.System == "":
		return p.User
	case p.User == "":
		return p.System
	default:
		return p.System + "\n\n" + p.User
	}
}
