// Package chromedprender prints article HTML to PDF with headless Chrome.
package chromedprender

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultTimeout = 60 * time.Second

// Config controls the renderer.
type Config struct {
	// MaxParallel bounds concurrently open tabs; zero means unbounded.
	MaxParallel int
	Timeout     time.Duration
}

// Renderer implements discovery.Renderer on a shared browser allocator.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New starts an exec allocator. Chrome itself is launched lazily on the first render.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render lays out body inside a print stylesheet and returns the PDF bytes.
// body must be self-contained: images are expected as data URIs.
func (r *Renderer) Render(ctx context.Context, body, title string) ([]byte, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	tabCtx, tabCancel := chromedp.NewContext(r.allocator)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, r.timeout())
	defer cancel()
	// Tie the tab to the caller without letting the caller's cancel kill the browser.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	var pdf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		setContent(Document(title, body)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(false).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	r.logger.Debug("rendered pdf",
		zap.String("title", title),
		zap.Int("bytes", len(pdf)),
		zap.Duration("duration", time.Since(start)),
	)
	return pdf, nil
}

func setContent(doc string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame tree: %w", err)
		}
		if err := page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx); err != nil {
			return fmt.Errorf("set document content: %w", err)
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

func (r *Renderer) timeout() time.Duration {
	if r.cfg.Timeout > 0 {
		return r.cfg.Timeout
	}
	return defaultTimeout
}

// Document wraps an article body in a page with a CJK-friendly print stylesheet
// that flattens the source platform's absolute layouts.
func Document(title, body string) string {
	return `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>` + html.EscapeString(title) + `</title>
<style>
* {
  font-family: "Noto Sans CJK SC", "WenQuanYi Micro Hei", "Microsoft YaHei", sans-serif !important;
  overflow-wrap: break-word;
  max-width: 100% !important;
  height: auto !important;
  position: static !important;
  float: none !important;
  margin-left: 0 !important;
  margin-right: 0 !important;
  text-indent: 0 !important;
}
html, body { font-size: 14px; line-height: 1.6; color: #333; margin: 0; padding: 0; }
img { display: block; margin: 10px auto !important; }
section, div, p { box-sizing: border-box !important; }
h1, h2, h3 { font-weight: bold; page-break-after: avoid; line-height: 1.4; }
p { orphans: 3; widows: 3; margin-bottom: 1em !important; }
</style>
</head>
<body>
` + body + `
</body>
</html>`
}
