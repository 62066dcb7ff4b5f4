// Package resolver turns a task prompt into the list of upstream accounts to scan.
package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/ratelimit"
)

// Request describes one resolution.
type Request struct {
	TaskID       string
	Prompt       string
	Pinned       *discovery.AccountCandidate
	KeywordCount int
	AccountLimit int
	Speed        discovery.Speed
	Credential   discovery.Credential
	Keywords     discovery.KeywordSuggester
}

// Resolver implements pinned and keyword discovery modes.
type Resolver struct {
	store  discovery.TaskStore
	source discovery.Source
	gate   *ratelimit.Gate
	logger *zap.Logger
}

// New builds a Resolver.
func New(store discovery.TaskStore, source discovery.Source, gate *ratelimit.Gate, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, source: source, gate: gate, logger: logger}
}

// Resolve returns the accounts to scan. It returns discovery.ErrCancelled when a
// cancel request is observed.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]discovery.AccountCandidate, error) {
	if r.stopped(ctx, req.TaskID) {
		return nil, discovery.ErrCancelled
	}
	if req.Pinned != nil {
		r.logger.Info("scanning pinned account",
			zap.String("task_id", req.TaskID),
			zap.String("account_id", req.Pinned.ExternalID),
		)
		return []discovery.AccountCandidate{*req.Pinned}, nil
	}

	keywords, err := req.Keywords.SuggestKeywords(ctx, req.Prompt, req.KeywordCount)
	if err != nil {
		return nil, fmt.Errorf("suggest keywords: %w", err)
	}
	r.logger.Info("generated keywords", zap.String("task_id", req.TaskID), zap.Strings("keywords", keywords))
	if err := r.store.SetKeywords(ctx, req.TaskID, keywords); err != nil {
		return nil, fmt.Errorf("save keywords: %w", err)
	}

	seen := make(map[string]struct{})
	accounts := make([]discovery.AccountCandidate, 0)
	for _, keyword := range keywords {
		if r.stopped(ctx, req.TaskID) {
			return nil, discovery.ErrCancelled
		}
		if err := r.gate.SearchDelay(ctx, req.Speed); err != nil {
			return nil, discovery.ErrCancelled
		}
		if r.stopped(ctx, req.TaskID) {
			return nil, discovery.ErrCancelled
		}
		found, err := r.source.SearchAccounts(ctx, req.Credential, keyword, req.AccountLimit)
		if err != nil {
			r.logger.Warn("account search failed",
				zap.String("task_id", req.TaskID),
				zap.String("keyword", keyword),
				zap.Error(err),
			)
			continue
		}
		for _, account := range found {
			if _, dup := seen[account.ExternalID]; dup {
				continue
			}
			seen[account.ExternalID] = struct{}{}
			accounts = append(accounts, account)
		}
	}
	r.logger.Info("discovered accounts", zap.String("task_id", req.TaskID), zap.Int("count", len(accounts)))
	return accounts, nil
}

func (r *Resolver) stopped(ctx context.Context, taskID string) bool {
	return discovery.StopRequested(ctx, r.store, taskID)
}
