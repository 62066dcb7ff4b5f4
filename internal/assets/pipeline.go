// Package assets localizes article images: it finds them in fetched HTML,
// serves them from the asset cache or downloads them, optionally compresses
// them, writes them next to an export and rewrites the page to point at them.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/hash/sha256"
	"github.com/JakeFAU/insight-discovery/internal/metrics"
	"github.com/JakeFAU/insight-discovery/internal/retry"
)

// Referer the CDN expects on image requests.
const Referer = "https://mp.weixin.qq.com/"

const imageAccept = "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8"

// Mode selects how localized images are referenced in the rewritten page.
type Mode int

const (
	// ModeRelative points at images/<file> next to the exported document.
	ModeRelative Mode = iota
	// ModeDataURI inlines the bytes so the page is self-contained.
	ModeDataURI
)

// Downloader performs one GET and returns the body of a 2xx response.
type Downloader interface {
	Fetch(ctx context.Context, target string, headers http.Header) ([]byte, error)
}

// Config tunes the pipeline.
type Config struct {
	// Workers bounds in-flight downloads per page.
	Workers     int
	MaxWidth    int
	JPEGQuality int
	Compress    bool
	// Retry governs image downloads; zero Attempts means 3 tries 500ms apart.
	Retry retry.Policy
}

// Job describes one page to localize.
type Job struct {
	HTML    string
	Mode    Mode
	Gateway *discovery.Gateway
	// Sink receives the image files under Dir/images. Nil skips file output.
	Sink discovery.BlobStore
	Dir  string
}

// Result is the rewritten page and what happened to its images.
type Result struct {
	HTML      string
	Files     []string
	Localized int
	Failed    int
	CacheHits int
}

// Pipeline implements the image localization shared by export and prefetch.
type Pipeline struct {
	cache      discovery.AssetCache
	downloader Downloader
	cfg        Config
	logger     *zap.Logger
}

// New builds a Pipeline.
func New(cache discovery.AssetCache, downloader Downloader, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 15
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 1280
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 75
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.Constant(3, 500*time.Millisecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cache: cache, downloader: downloader, cfg: cfg, logger: logger}
}

type localized struct {
	ref         Ref
	replacement string
	file        string
	cacheHit    bool
}

// Localize rewrites every CDN image of job.HTML. Images that cannot be
// acquired keep their original URL.
func (p *Pipeline) Localize(ctx context.Context, job Job) Result {
	page := Normalize(job.HTML)
	refs := Discover(page)
	done := make([]*localized, len(refs))

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, ref := range refs {
		g.Go(func() error {
			done[i] = p.localizeOne(ctx, ref, job)
			return nil
		})
	}
	_ = g.Wait()

	type swap struct{ from, to string }
	var swaps []swap
	res := Result{}
	for _, l := range done {
		if l == nil {
			res.Failed++
			continue
		}
		res.Localized++
		if l.cacheHit {
			res.CacheHits++
		}
		if l.file != "" {
			res.Files = append(res.Files, l.file)
		}
		for _, raw := range l.ref.Raws {
			swaps = append(swaps, swap{from: raw, to: l.replacement})
		}
	}
	// Longest first so a URL that prefixes another cannot clobber it.
	sort.SliceStable(swaps, func(a, b int) bool { return len(swaps[a].from) > len(swaps[b].from) })
	for _, s := range swaps {
		page = strings.ReplaceAll(page, s.from, s.to)
	}
	res.HTML = page
	p.logger.Debug("localized images",
		zap.Int("found", len(refs)),
		zap.Int("localized", res.Localized),
		zap.Int("cache_hits", res.CacheHits),
	)
	return res
}

func (p *Pipeline) localizeOne(ctx context.Context, ref Ref, job Job) *localized {
	data, hit := p.cached(ctx, ref.URL)
	if !hit {
		fresh, err := p.download(ctx, ref.URL, job.Gateway)
		if err != nil {
			metrics.ObserveImage("failed")
			p.logger.Warn("image unavailable", zap.String("url", ref.URL), zap.Error(err))
			return nil
		}
		data = p.maybeCompress(fresh, ref.URL)
		p.store(ctx, ref.URL, data)
	}
	if hit {
		metrics.ObserveImage("cache_hit")
	} else {
		metrics.ObserveImage("downloaded")
	}

	mime := Sniff(data)
	name := sha256.URLKey(ref.URL)[:24] + "." + fileExtension(ref.URL, mime)
	out := &localized{ref: ref, cacheHit: hit}
	if job.Sink != nil && len(data) > 0 {
		rel := path.Join(job.Dir, "images", name)
		if _, err := job.Sink.PutObject(ctx, rel, mime, bytes.NewReader(data)); err != nil {
			p.logger.Warn("write image file failed", zap.String("path", rel), zap.Error(err))
		} else {
			out.file = rel
		}
	}
	switch job.Mode {
	case ModeDataURI:
		out.replacement = "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	default:
		out.replacement = "images/" + name
	}
	return out
}

// Warm downloads every src/data-src image of page that the asset cache does
// not hold yet. pick chooses a gateway per image and may return nil.
func (p *Pipeline) Warm(ctx context.Context, page string, pick func() *discovery.Gateway) (ok, failed int) {
	urls := Sources(page)
	var okCount, failCount atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, u := range urls {
		g.Go(func() error {
			exists, err := p.cache.HasAsset(ctx, u)
			if err != nil {
				p.logger.Warn("asset cache lookup failed", zap.String("url", u), zap.Error(err))
			}
			if exists {
				metrics.ObserveImage("cache_hit")
				okCount.Add(1)
				return nil
			}
			var gw *discovery.Gateway
			if pick != nil {
				gw = pick()
			}
			data, err := p.download(ctx, u, gw)
			if err != nil {
				metrics.ObserveImage("failed")
				p.logger.Warn("image prefetch failed", zap.String("url", u), zap.Error(err))
				failCount.Add(1)
				return nil
			}
			data = p.maybeCompress(data, u)
			if err := p.cache.PutAsset(ctx, discovery.CachedAsset{URL: u, Data: data, MimeType: Sniff(data)}); err != nil {
				p.logger.Warn("asset cache write failed", zap.String("url", u), zap.Error(err))
				failCount.Add(1)
				return nil
			}
			metrics.ObserveImage("downloaded")
			okCount.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(okCount.Load()), int(failCount.Load())
}

func (p *Pipeline) cached(ctx context.Context, u string) ([]byte, bool) {
	asset, found, err := p.cache.GetAsset(ctx, u)
	if err != nil {
		p.logger.Warn("asset cache lookup failed", zap.String("url", u), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	if !Valid(asset.Data) {
		p.logger.Warn("corrupt cached asset, re-downloading", zap.String("url", u), zap.Int("bytes", len(asset.Data)))
		return nil, false
	}
	return asset.Data, true
}

func (p *Pipeline) store(ctx context.Context, u string, data []byte) {
	if err := p.cache.PutAsset(ctx, discovery.CachedAsset{URL: u, Data: data, MimeType: Sniff(data)}); err != nil {
		p.logger.Warn("asset cache write failed", zap.String("url", u), zap.Error(err))
	}
}

func (p *Pipeline) download(ctx context.Context, u string, gateway *discovery.Gateway) ([]byte, error) {
	target, err := gateway.Wrap(u)
	if err != nil {
		return nil, err
	}
	headers := http.Header{
		"Referer": {Referer},
		"Accept":  {imageAccept},
	}
	policy := p.cfg.Retry.WithNotify(func(attempt int, err error) {
		p.logger.Debug("image download retry", zap.String("url", u), zap.Int("attempt", attempt), zap.Error(err))
	})
	return retry.Value(ctx, policy, func(ctx context.Context) ([]byte, error) {
		return p.downloader.Fetch(ctx, target, headers)
	})
}

func (p *Pipeline) maybeCompress(data []byte, u string) []byte {
	if !p.cfg.Compress {
		return data
	}
	out, err := Compress(data, p.cfg.MaxWidth, p.cfg.JPEGQuality)
	if err != nil {
		p.logger.Debug("keeping original image bytes", zap.String("url", u), zap.Error(err))
		return data
	}
	return out
}

func fileExtension(u, mime string) string {
	if mime == "image/jpeg" {
		return "jpg"
	}
	return Extension(u)
}
