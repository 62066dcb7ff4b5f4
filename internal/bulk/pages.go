package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/hash/sha256"
)

// MinContentLength is the shortest page accepted as a real article.
const MinContentLength = 500

var errShortContent = errors.New("content too short")

// pages reads article HTML through the page cache.
type pages struct {
	cache   discovery.PageCache
	fetcher discovery.HTMLFetcher
	clock   discovery.Clock
	logger  *zap.Logger
}

// cached returns a cached page long enough to trust.
func (p pages) cached(ctx context.Context, url string) (string, bool) {
	page, found, err := p.cache.GetPage(ctx, sha256.URLKey(url))
	if err != nil {
		p.logger.Warn("page cache lookup failed", zap.String("url", url), zap.Error(err))
		return "", false
	}
	if !found || !longEnough(page.HTML) {
		return "", false
	}
	return page.HTML, true
}

// fetch downloads url and caches it. Short pages are an error and are not cached.
func (p pages) fetch(ctx context.Context, url string, gateway *discovery.Gateway) (string, error) {
	html, err := p.fetcher.FetchHTML(ctx, url, gateway)
	if err != nil {
		return "", err
	}
	if !longEnough(html) {
		return "", fmt.Errorf("%w (%d chars)", errShortContent, len(strings.TrimSpace(html)))
	}
	entry := discovery.CachedPage{Key: sha256.URLKey(url), URL: url, HTML: html, FetchedAt: p.clock.Now()}
	if err := p.cache.PutPage(ctx, entry); err != nil {
		p.logger.Warn("page cache write failed", zap.String("url", url), zap.Error(err))
	}
	return html, nil
}

func longEnough(html string) bool {
	return len(strings.TrimSpace(html)) >= MinContentLength
}
