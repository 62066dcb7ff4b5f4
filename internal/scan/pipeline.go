package scan

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/provider/registry"
	"github.com/JakeFAU/insight-discovery/internal/resolver"
)

// ProviderResolver builds the providers a task was created with.
type ProviderResolver interface {
	Resolve(ctx context.Context, sel discovery.ProviderSelection) (registry.Set, error)
}

// AccountResolver produces the accounts a task scans.
type AccountResolver interface {
	Resolve(ctx context.Context, req resolver.Request) ([]discovery.AccountCandidate, error)
}

// Pipeline runs one task end to end: providers, search space, prompt embedding, scan.
type Pipeline struct {
	providers ProviderResolver
	creds     discovery.CredentialSource
	accounts  AccountResolver
	engine    *Engine
	logger    *zap.Logger
}

// NewPipeline wires a Pipeline.
func NewPipeline(
	providers ProviderResolver,
	creds discovery.CredentialSource,
	accounts AccountResolver,
	engine *Engine,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		providers: providers,
		creds:     creds,
		accounts:  accounts,
		engine:    engine,
		logger:    logger,
	}
}

// Run executes the task described by item and reports its terminal outcome.
// A returned error means the task failed.
func (p *Pipeline) Run(ctx context.Context, item discovery.QueueItem) (discovery.Outcome, error) {
	req := item.Request
	scaling := ScalingFor(req.TargetCount)
	p.logger.Info("starting task",
		zap.String("task_id", item.TaskID),
		zap.String("keyword_provider", string(req.Selection.Keyword)),
		zap.String("reasoning_provider", string(req.Selection.Reasoning)),
		zap.String("embedding_provider", string(req.Selection.Embedding)),
		zap.Int("keywords", scaling.Keywords),
		zap.Int("account_limit", scaling.AccountLimit),
		zap.Int("article_limit", scaling.ArticleLimit),
	)

	providers, err := p.providers.Resolve(ctx, req.Selection)
	if err != nil {
		return discovery.Outcome{}, fmt.Errorf("resolve providers: %w", err)
	}
	cred, err := p.creds.Current(ctx)
	if err != nil {
		return discovery.Outcome{}, fmt.Errorf("load credential: %w", err)
	}

	accounts, err := p.accounts.Resolve(ctx, resolver.Request{
		TaskID:       item.TaskID,
		Prompt:       req.Prompt,
		Pinned:       req.Pinned,
		KeywordCount: scaling.Keywords,
		AccountLimit: scaling.AccountLimit,
		Speed:        req.Selection.Speed,
		Credential:   cred,
		Keywords:     providers.Keyword,
	})
	if errors.Is(err, discovery.ErrCancelled) {
		return discovery.CancelledOutcome(0, 0), nil
	}
	if err != nil {
		return discovery.Outcome{}, fmt.Errorf("resolve search space: %w", err)
	}

	vector, err := providers.Embedding.Embed(ctx, req.Prompt)
	if err != nil {
		return discovery.Outcome{}, fmt.Errorf("embedding generation failed: %w", err)
	}
	if len(vector) == 0 {
		return discovery.Outcome{}, errors.New("embedding generation failed: empty prompt vector")
	}

	return p.engine.Run(ctx, Run{
		TaskID:       item.TaskID,
		Prompt:       req.Prompt,
		Target:       req.TargetCount,
		ArticleLimit: scaling.ArticleLimit,
		Accounts:     accounts,
		PromptVector: vector,
		Credential:   cred,
		Embedder:     providers.Embedding,
		Classifier:   providers.Reasoning,
	})
}
