package bulk

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/insight-discovery/internal/assets"
	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/metrics"
	"github.com/JakeFAU/insight-discovery/internal/ratelimit"
)

// PrefetchRequest describes one cache warm-up run.
type PrefetchRequest struct {
	TaskID   string
	Gateways Gateways
}

// Stats aggregates a prefetch run.
type Stats struct {
	ArticleSuccess int `json:"article_success"`
	ArticleFailed  int `json:"article_failed"`
	ImageSuccess   int `json:"image_success"`
	ImageFailed    int `json:"image_failed"`
}

func (s *Stats) add(o Stats) {
	s.ArticleSuccess += o.ArticleSuccess
	s.ArticleFailed += o.ArticleFailed
	s.ImageSuccess += o.ImageSuccess
	s.ImageFailed += o.ImageFailed
}

// Prefetcher fills the page and asset caches without writing any files.
type Prefetcher struct {
	tasks  Reader
	pages  pages
	images *assets.Pipeline
	gate   *ratelimit.Gate
	logger *zap.Logger
}

// NewPrefetcher wires a Prefetcher.
func NewPrefetcher(
	tasks Reader,
	cache discovery.PageCache,
	fetcher discovery.HTMLFetcher,
	images *assets.Pipeline,
	gate *ratelimit.Gate,
	clock discovery.Clock,
	logger *zap.Logger,
) *Prefetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prefetcher{
		tasks:  tasks,
		pages:  pages{cache: cache, fetcher: fetcher, clock: clock, logger: logger},
		images: images,
		gate:   gate,
		logger: logger,
	}
}

// Prefetch caches every article page of a task and the images they reference.
func (p *Prefetcher) Prefetch(ctx context.Context, req PrefetchRequest) (Stats, error) {
	if _, err := p.tasks.GetTask(ctx, req.TaskID); err != nil {
		return Stats{}, fmt.Errorf("load task: %w", err)
	}
	articles, err := p.tasks.ListArticles(ctx, req.TaskID)
	if err != nil {
		return Stats{}, fmt.Errorf("load articles: %w", err)
	}

	window := Window(FormatMarkdown, req.Gateways)
	logger := p.logger.With(zap.String("task_id", req.TaskID))
	logger.Info("prefetch started", zap.Int("articles", len(articles)), zap.Int("window", window))

	var (
		mu    sync.Mutex
		total Stats
	)
	var g errgroup.Group
	g.SetLimit(window)
	for i, article := range articles {
		g.Go(func() error {
			s := p.prefetchOne(ctx, logger, req.Gateways, i, article)
			mu.Lock()
			total.add(s)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("prefetch finished",
		zap.Int("article_success", total.ArticleSuccess),
		zap.Int("article_failed", total.ArticleFailed),
		zap.Int("image_success", total.ImageSuccess),
		zap.Int("image_failed", total.ImageFailed),
	)
	return total, ctx.Err()
}

func (p *Prefetcher) prefetchOne(
	ctx context.Context,
	logger *zap.Logger,
	gateways Gateways,
	index int,
	article discovery.Article,
) Stats {
	var s Stats
	html, hit := p.pages.cached(ctx, article.URL)
	if !hit {
		fresh, err := p.pages.fetch(ctx, article.URL, gateways.Pick(p.gate.Intn))
		if err != nil {
			logger.Warn("article prefetch failed", zap.Int("index", index), zap.String("url", article.URL), zap.Error(err))
			metrics.ObserveBulkItem("prefetch", "failed")
			s.ArticleFailed++
			return s
		}
		html = fresh
	}
	metrics.ObserveBulkItem("prefetch", "success")
	s.ArticleSuccess++

	s.ImageSuccess, s.ImageFailed = p.images.Warm(ctx, html, func() *discovery.Gateway {
		return gateways.Pick(p.gate.Intn)
	})
	return s
}
