package scan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/metrics"
	"github.com/JakeFAU/insight-discovery/internal/ratelimit"
	"github.com/JakeFAU/insight-discovery/internal/retry"
)

const (
	// SimilarityThreshold is the minimum cosine similarity before an article is classified.
	SimilarityThreshold = 0.4
	// RelevanceScore is the confidence stored with every accepted article.
	RelevanceScore = 0.8
	cancelPollEvery = 5
)

// Run is the input of one scan.
type Run struct {
	TaskID       string
	Prompt       string
	Target       int
	ArticleLimit int
	Accounts     []discovery.AccountCandidate
	PromptVector []float32
	Credential   discovery.Credential
	Embedder     discovery.Embedder
	Classifier   discovery.Classifier
}

// Engine scans accounts until the target, the scan ceiling or the account list runs out.
type Engine struct {
	store         discovery.Store
	source        discovery.Source
	gate          *ratelimit.Gate
	ids           discovery.IDGenerator
	clock         discovery.Clock
	fetchRetry    retry.Policy
	classifyRetry retry.Policy
	logger        *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRetry replaces the article listing and classification retry policies.
func WithRetry(fetch, classify retry.Policy) Option {
	return func(e *Engine) {
		e.fetchRetry = fetch
		e.classifyRetry = classify
	}
}

// NewEngine builds an Engine.
func NewEngine(
	store discovery.Store,
	source discovery.Source,
	gate *ratelimit.Gate,
	ids discovery.IDGenerator,
	clock discovery.Clock,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:         store,
		source:        source,
		gate:          gate,
		ids:           ids,
		clock:         clock,
		fetchRetry:    retry.Linear(3, 2*time.Second),
		classifyRetry: retry.Linear(3, 2*time.Second),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type runState struct {
	seen     map[string]struct{}
	accepted int
	scanned  int
	ceiling  int
}

// Run scans run.Accounts. Per-account and per-article failures are logged and skipped;
// only store failures on accepted articles abort the run.
func (e *Engine) Run(ctx context.Context, run Run) (discovery.Outcome, error) {
	st := &runState{seen: make(map[string]struct{}), ceiling: ScanCeiling(run.Target)}
	log := e.logger.With(zap.String("task_id", run.TaskID))

	for _, account := range run.Accounts {
		if st.accepted >= run.Target || st.scanned >= st.ceiling {
			break
		}
		if discovery.StopRequested(ctx, e.store, run.TaskID) {
			return discovery.CancelledOutcome(st.accepted, st.scanned), nil
		}
		if err := e.gate.AccountDelay(ctx); err != nil {
			return discovery.CancelledOutcome(st.accepted, st.scanned), nil
		}

		articles, err := retry.Value(ctx, e.fetchRetry.WithNotify(func(attempt int, err error) {
			log.Warn("article listing failed",
				zap.String("account_id", account.ExternalID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}), func(ctx context.Context) ([]discovery.SourceArticle, error) {
			return e.source.ListArticles(ctx, run.Credential, account.ExternalID, run.ArticleLimit)
		})
		if err != nil {
			if ctx.Err() != nil {
				return discovery.CancelledOutcome(st.accepted, st.scanned), nil
			}
			log.Error("skipping account", zap.String("account_id", account.ExternalID), zap.Error(err))
			continue
		}
		log.Info("fetched articles",
			zap.String("account_id", account.ExternalID),
			zap.String("account", account.DisplayName),
			zap.Int("count", len(articles)),
		)

		cancelled, err := e.scanArticles(ctx, run, account, articles, st, log)
		if err != nil {
			return discovery.Outcome{}, err
		}
		if cancelled {
			return discovery.CancelledOutcome(st.accepted, st.scanned), nil
		}
	}

	return st.outcome(run.Target), nil
}

func (e *Engine) scanArticles(
	ctx context.Context,
	run Run,
	account discovery.AccountCandidate,
	articles []discovery.SourceArticle,
	st *runState,
	log *zap.Logger,
) (bool, error) {
	for _, article := range articles {
		if st.accepted >= run.Target {
			return false, nil
		}
		if _, dup := st.seen[article.URL]; dup {
			continue
		}
		if st.scanned%cancelPollEvery == 0 && discovery.StopRequested(ctx, e.store, run.TaskID) {
			return true, nil
		}
		st.seen[article.URL] = struct{}{}
		st.scanned++
		metrics.ObserveScanned()

		vector, err := run.Embedder.Embed(ctx, article.Title+" "+article.Digest)
		if err != nil {
			log.Warn("embed article failed", zap.String("url", article.URL), zap.Error(err))
			continue
		}
		similarity := Cosine(run.PromptVector, vector)
		log.Debug("article similarity", zap.String("url", article.URL), zap.Float64("similarity", similarity))
		if similarity <= SimilarityThreshold {
			continue
		}

		verdict, err := retry.Value(ctx, e.classifyRetry, func(ctx context.Context) (discovery.Verdict, error) {
			return run.Classifier.Classify(ctx, run.Prompt, article.Title, article.Digest)
		})
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			log.Error("classification failed, skipping article", zap.String("url", article.URL), zap.Error(err))
			continue
		}
		if !verdict.Relevant {
			continue
		}
		if err := e.persist(ctx, run, account, article, similarity, verdict); err != nil {
			return false, fmt.Errorf("save article: %w", err)
		}
		st.accepted++
		metrics.ObserveAccepted()
		if err := e.store.SetProcessedCount(ctx, run.TaskID, st.accepted); err != nil {
			return false, fmt.Errorf("update processed count: %w", err)
		}
	}
	return false, nil
}

func (e *Engine) persist(
	ctx context.Context,
	run Run,
	account discovery.AccountCandidate,
	article discovery.SourceArticle,
	similarity float64,
	verdict discovery.Verdict,
) error {
	id, err := e.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate article id: %w", err)
	}
	score := RelevanceScore
	insight := verdict.Insight
	var published *time.Time
	if !article.PublishedAt.IsZero() {
		t := article.PublishedAt
		published = &t
	}
	return e.store.InsertArticle(ctx, discovery.Article{
		ID:             id,
		TaskID:         run.TaskID,
		Title:          article.Title,
		URL:            article.URL,
		AccountName:    account.DisplayName,
		AccountID:      account.ExternalID,
		PublishedAt:    published,
		Similarity:     &similarity,
		Insight:        &insight,
		RelevanceScore: &score,
		CreatedAt:      e.clock.Now(),
	})
}

func (st *runState) outcome(target int) discovery.Outcome {
	out := discovery.Outcome{Status: discovery.StatusCompleted, Accepted: st.accepted, Scanned: st.scanned}
	switch {
	case st.accepted >= target:
		out.Reason = discovery.TargetReachedReason(st.accepted, target)
	case st.scanned >= st.ceiling:
		out.Reason = discovery.ScanLimitReason(st.scanned)
	default:
		out.Reason = discovery.ReasonSearchExhausted
	}
	return out
}
