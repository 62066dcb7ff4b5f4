package bulk

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/insight-discovery/internal/assets"
	"github.com/JakeFAU/insight-discovery/internal/clock/system"
	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/markdown"
	"github.com/JakeFAU/insight-discovery/internal/metrics"
	"github.com/JakeFAU/insight-discovery/internal/ratelimit"
)

// SummaryFile is the per-run log written at the root of an export.
const SummaryFile = "summary.txt"

// Reader loads a task and its persisted articles.
type Reader interface {
	GetTask(ctx context.Context, id string) (discovery.Task, error)
	ListArticles(ctx context.Context, taskID string) ([]discovery.Article, error)
}

// SinkFactory opens the blob store rooted at an export target directory.
type SinkFactory func(targetDir string) (discovery.BlobStore, error)

// ExportRequest describes one export run.
type ExportRequest struct {
	TaskID    string
	TargetDir string
	Format    Format
	Gateways  Gateways
}

// ExportResult reports where an export was written and how it went.
type ExportResult struct {
	Directory string `json:"directory"`
	Exported  int    `json:"exported"`
	Failed    int    `json:"failed"`
}

// Exporter writes a task's articles as Markdown or PDF files.
type Exporter struct {
	tasks    Reader
	pages    pages
	images   *assets.Pipeline
	markdown *markdown.Converter
	renderer discovery.Renderer
	sinks    SinkFactory
	gate     *ratelimit.Gate
	clock    discovery.Clock
	logger   *zap.Logger
}

// NewExporter wires an Exporter. A nil renderer disables PDF output.
func NewExporter(
	tasks Reader,
	cache discovery.PageCache,
	fetcher discovery.HTMLFetcher,
	images *assets.Pipeline,
	renderer discovery.Renderer,
	sinks SinkFactory,
	gate *ratelimit.Gate,
	clock discovery.Clock,
	logger *zap.Logger,
) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		tasks:    tasks,
		pages:    pages{cache: cache, fetcher: fetcher, clock: clock, logger: logger},
		images:   images,
		markdown: markdown.NewConverter(),
		renderer: renderer,
		sinks:    sinks,
		gate:     gate,
		clock:    clock,
		logger:   logger,
	}
}

type exportItem struct {
	log string
	ok  bool
}

// Export writes every article of req.TaskID below a fresh directory in
// req.TargetDir and returns that directory. Per-article failures are recorded
// in the summary and never abort the run.
func (e *Exporter) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	if err := e.validate(req); err != nil {
		return ExportResult{}, err
	}
	task, err := e.tasks.GetTask(ctx, req.TaskID)
	if err != nil {
		return ExportResult{}, fmt.Errorf("load task: %w", err)
	}
	articles, err := e.tasks.ListArticles(ctx, req.TaskID)
	if err != nil {
		return ExportResult{}, fmt.Errorf("load articles: %w", err)
	}
	if len(articles) == 0 {
		return ExportResult{}, discovery.ErrNothingToExport
	}
	sink, err := e.sinks(req.TargetDir)
	if err != nil {
		return ExportResult{}, fmt.Errorf("open export target: %w", err)
	}

	dirName := Sanitize(task.Prompt) + "_export_" + system.Stamp(e.clock.Now())
	window := Window(req.Format, req.Gateways)
	logger := e.logger.With(zap.String("task_id", task.ID), zap.String("format", string(req.Format)))
	logger.Info("export started",
		zap.String("directory", dirName),
		zap.Int("articles", len(articles)),
		zap.Int("window", window),
	)

	items := make([]exportItem, len(articles))
	var g errgroup.Group
	g.SetLimit(window)
	for i, article := range articles {
		g.Go(func() error {
			items[i] = e.exportOne(ctx, logger, sink, dirName, req, i, article)
			return nil
		})
	}
	_ = g.Wait()

	res := ExportResult{Directory: filepath.Join(req.TargetDir, dirName)}
	var summary strings.Builder
	fmt.Fprintf(&summary, "Task Prompt: %s\n", task.Prompt)
	fmt.Fprintf(&summary, "Target: %d\n", task.TargetCount)
	fmt.Fprintf(&summary, "Processed: %d\n", task.ProcessedCount)
	fmt.Fprintf(&summary, "Keywords: [%s]\n\n", strings.Join(task.Keywords, ", "))
	for _, item := range items {
		summary.WriteString(item.log)
		if item.ok {
			res.Exported++
		} else {
			res.Failed++
		}
	}
	if _, err := sink.PutObject(ctx, path.Join(dirName, SummaryFile), "text/plain; charset=utf-8",
		strings.NewReader(summary.String())); err != nil {
		return res, fmt.Errorf("write summary: %w", err)
	}
	logger.Info("export finished", zap.Int("exported", res.Exported), zap.Int("failed", res.Failed))
	return res, ctx.Err()
}

func (e *Exporter) validate(req ExportRequest) error {
	if strings.TrimSpace(req.TargetDir) == "" {
		return fmt.Errorf("target_dir is required: %w", discovery.ErrInvalidArgument)
	}
	switch req.Format {
	case FormatMarkdown:
	case FormatPDF:
		if e.renderer == nil {
			return fmt.Errorf("pdf export needs the headless renderer: %w", discovery.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("unknown format %q: %w", req.Format, discovery.ErrInvalidArgument)
	}
	return nil
}

func (e *Exporter) exportOne(
	ctx context.Context,
	logger *zap.Logger,
	sink discovery.BlobStore,
	dirName string,
	req ExportRequest,
	index int,
	article discovery.Article,
) exportItem {
	var log strings.Builder
	fmt.Fprintf(&log, "%d. %s (%s)\n", index+1, article.Title, article.URL)
	insight := ""
	if article.Insight != nil {
		insight = *article.Insight
		fmt.Fprintf(&log, "   Insight: %s\n", insight)
	}
	fail := func(format string, args ...any) exportItem {
		fmt.Fprintf(&log, "   [Error] "+format+"\n", args...)
		metrics.ObserveBulkItem("export", "failed")
		return exportItem{log: log.String()}
	}

	if index > 0 {
		if err := e.gate.Jitter(ctx); err != nil {
			return fail("Cancelled: %v", err)
		}
	}
	gateway := req.Gateways.Pick(e.gate.Intn)

	html, hit := e.pages.cached(ctx, article.URL)
	if hit {
		log.WriteString("   [Cache] Hit\n")
	} else {
		fresh, err := e.pages.fetch(ctx, article.URL, gateway)
		if err != nil {
			logger.Warn("article download failed", zap.Int("index", index), zap.String("url", article.URL), zap.Error(err))
			return fail("Download failed: %v", err)
		}
		html = fresh
	}

	mode := assets.ModeRelative
	if req.Format == FormatPDF {
		mode = assets.ModeDataURI
	}
	localized := e.images.Localize(ctx, assets.Job{
		HTML:    html,
		Mode:    mode,
		Gateway: gateway,
		Sink:    sink,
		Dir:     dirName,
	})
	if localized.Failed > 0 {
		fmt.Fprintf(&log, "   [Images] %d/%d localized\n", localized.Localized, localized.Localized+localized.Failed)
	}

	base := fmt.Sprintf("%d_%s", index+1, Sanitize(article.Title))
	switch req.Format {
	case FormatPDF:
		pdf, err := e.renderer.Render(ctx, localized.HTML, article.Title)
		if err != nil {
			return fail("PDF gen failed: %v", err)
		}
		if _, err := sink.PutObject(ctx, path.Join(dirName, base+".pdf"), "application/pdf",
			bytes.NewReader(pdf)); err != nil {
			return fail("Write PDF failed: %v", err)
		}
		log.WriteString("   [Success] PDF generated.\n")
	default:
		doc, err := e.markdown.Document(markdown.Meta{
			Title:       article.Title,
			URL:         article.URL,
			PublishedAt: article.PublishedAt,
			Insight:     insight,
		}, localized.HTML)
		if err != nil {
			return fail("Convert MD failed: %v", err)
		}
		if _, err := sink.PutObject(ctx, path.Join(dirName, base+".md"), "text/markdown; charset=utf-8",
			strings.NewReader(doc)); err != nil {
			return fail("Write MD failed: %v", err)
		}
		log.WriteString("   [Success] Markdown saved.\n")
	}
	metrics.ObserveBulkItem("export", "success")
	return exportItem{log: log.String(), ok: true}
}
