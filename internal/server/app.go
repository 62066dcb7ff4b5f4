// Package server is the composition root: it builds stores, providers,
// pipelines, the API server and the dispatcher, then runs and shuts them down.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/IBM/sarama"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/api"
	"github.com/JakeFAU/insight-discovery/internal/assets"
	"github.com/JakeFAU/insight-discovery/internal/bulk"
	"github.com/JakeFAU/insight-discovery/internal/clock/system"
	"github.com/JakeFAU/insight-discovery/internal/config"
	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/insight-discovery/internal/fetcher/colly"
	"github.com/JakeFAU/insight-discovery/internal/id/uuid"
	"github.com/JakeFAU/insight-discovery/internal/lifecycle"
	"github.com/JakeFAU/insight-discovery/internal/logging"
	"github.com/JakeFAU/insight-discovery/internal/metrics"
	"github.com/JakeFAU/insight-discovery/internal/provider/registry"
	kafkapublisher "github.com/JakeFAU/insight-discovery/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/insight-discovery/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/insight-discovery/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/insight-discovery/internal/queue/memory"
	"github.com/JakeFAU/insight-discovery/internal/ratelimit"
	chromedprender "github.com/JakeFAU/insight-discovery/internal/render/chromedp"
	"github.com/JakeFAU/insight-discovery/internal/resolver"
	"github.com/JakeFAU/insight-discovery/internal/scan"
	"github.com/JakeFAU/insight-discovery/internal/storage"
	gcsstorage "github.com/JakeFAU/insight-discovery/internal/storage/gcs"
	localstorage "github.com/JakeFAU/insight-discovery/internal/storage/local"
	memorystorage "github.com/JakeFAU/insight-discovery/internal/storage/memory"
	pgstore "github.com/JakeFAU/insight-discovery/internal/storage/postgres"
	redisstorage "github.com/JakeFAU/insight-discovery/internal/storage/redis"
	s3storage "github.com/JakeFAU/insight-discovery/internal/storage/s3"
	"github.com/JakeFAU/insight-discovery/internal/upstream"
	"github.com/JakeFAU/insight-discovery/internal/worker"
)

const (
	providerTimeout = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// relationalStore is what both the Postgres and in-memory stores provide.
type relationalStore interface {
	discovery.Store
	discovery.PageCache
	discovery.AssetCache
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store        relationalStore
	pg           *pgstore.Store
	redis        *goredis.Client
	gcsClient    *gcs.Client
	pubsubClient *pubsub.Client
	pubsubTopic  *pubsub.Topic
	kafka        *kafkapublisher.Publisher
	renderer     *chromedprender.Renderer

	queue      *queuememory.Queue
	dispatch   *dispatcher.Dispatcher
	manager    *lifecycle.Manager
	exporter   *bulk.Exporter
	prefetcher *bulk.Prefetcher
	apiServer  *api.Server
}

// Build creates the application's dependencies. Nothing is started until Run.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.NewWithFile(cfg.Logging.Development, cfg.Logging.Path)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("database", cfg.DB.DSN != ""),
		zap.Bool("redis", cfg.Redis.Addr != ""),
		zap.String("archive", cfg.Export.Archive.Backend),
		zap.String("events", cfg.Events.Backend),
	)

	if err := app.setupStore(ctx); err != nil {
		app.Close()
		return nil, err
	}
	pageCache, err := app.setupPageCache()
	if err != nil {
		app.Close()
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	archive, err := app.setupArchive(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupRenderer(); err != nil {
		app.Close()
		return nil, err
	}

	clock := system.New()
	ids := uuid.New()
	gate := ratelimit.NewGate()
	creds := app.credentials()

	apiClient := &http.Client{Timeout: providerTimeout}
	source := upstream.New(
		&http.Client{Timeout: cfg.UpstreamTimeout()},
		ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
			Burst:             cfg.Upstream.Burst,
		}),
		upstream.Config{BaseURL: cfg.Upstream.BaseURL, UserAgent: cfg.Upstream.UserAgent},
		logger.Named("upstream"),
	)
	providers := registry.New(cfg.Providers, apiClient, logger.Named("provider"))
	accounts := resolver.New(app.store, source, gate, logger.Named("resolver"))
	engine := scan.NewEngine(app.store, source, gate, ids, clock, logger.Named("scan"))
	pipeline := scan.NewPipeline(providers, creds, accounts, engine, logger.Named("pipeline"))

	app.queue = queuememory.NewQueue(cfg.Tasks.QueueDepth)
	tokens := worker.NewTokens()
	workerCfg := worker.Config{Topic: cfg.Events.Topic, LogPath: cfg.Logging.Path}
	workers := make([]*worker.Worker, 0, cfg.Tasks.Concurrency)
	for i := 0; i < cfg.Tasks.Concurrency; i++ {
		workers = append(workers, worker.New(
			app.queue,
			app.store,
			pipeline,
			publisher,
			clock,
			tokens,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	app.dispatch = dispatcher.New(app.queue, workers)

	app.manager = lifecycle.New(app.store, creds, source, app.dispatch, tokens, ids, clock, lifecycle.Config{
		TargetCount: cfg.Tasks.DefaultTarget,
		Selection:   cfg.DefaultSelection(),
		LogPath:     cfg.Logging.Path,
	}, logger.Named("lifecycle"))

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}, collyfetcher.NewHTTPClient(cfg.FetchTimeout(), cfg.Fetch.InsecureSkipVerify), logger.Named("fetcher"))
	images := assets.New(app.store, fetcher, assets.Config{
		Workers:     cfg.Assets.Workers,
		MaxWidth:    cfg.Assets.MaxWidth,
		JPEGQuality: cfg.Assets.JPEGQuality,
		Compress:    cfg.Assets.Compress,
	}, logger.Named("assets"))

	var renderer discovery.Renderer
	if app.renderer != nil {
		renderer = app.renderer
	}
	app.exporter = bulk.NewExporter(app.store, pageCache, fetcher, images, renderer,
		app.sinkFactory(archive), gate, clock, logger.Named("export"))
	app.prefetcher = bulk.NewPrefetcher(app.store, pageCache, fetcher, images, gate, clock, logger.Named("prefetch"))

	app.apiServer = api.NewServer(
		app.manager,
		app.exporter,
		app.prefetcher,
		app.ready,
		cfg.Auth,
		logger.Named("api"),
	)
	return app, nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Sweep fails the tasks a previous process left running.
func (a *App) Sweep(ctx context.Context) (int64, error) {
	return a.manager.Sweep(ctx)
}

// Export runs a bulk export outside the HTTP API.
func (a *App) Export(ctx context.Context, req bulk.ExportRequest) (bulk.ExportResult, error) {
	return a.exporter.Export(ctx, req)
}

// Prefetch warms the page and image caches for a task outside the HTTP API.
func (a *App) Prefetch(ctx context.Context, req bulk.PrefetchRequest) (bulk.Stats, error) {
	return a.prefetcher.Prefetch(ctx, req)
}

// Migrate applies pending schema migrations. It is a no-op on the in-memory store.
func (a *App) Migrate(ctx context.Context) error {
	if a.pg == nil {
		a.logger.Warn("no database configured, skipping migrations")
		return nil
	}
	if err := pgstore.Migrate(ctx, a.pg.Pool(), a.logger); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	a.logger.Info("database migrations applied")
	return nil
}

// Run sweeps interrupted tasks, starts the dispatcher and the HTTP server, and
// blocks until the context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.DB.Migrate {
		if err := a.Migrate(ctx); err != nil {
			return err
		}
	}
	if _, err := a.manager.Sweep(ctx); err != nil {
		return err
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Tasks.Concurrency))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before the shutdown deadline")
	}
	a.Close()
	return nil
}

// Close releases every client the App opened. It is safe on a partially built App.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

func (a *App) closeInfrastructure() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Warn("kafka producer close failed", zap.Error(err))
		}
	}
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
}

func (a *App) ready(ctx context.Context) error {
	if a.pg != nil {
		if err := a.pg.Ping(ctx); err != nil {
			return err
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	return nil
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, using the in-memory store")
		a.store = memorystorage.NewStore()
		return nil
	}
	pg, err := pgstore.New(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pg = pg
	a.store = pg
	a.logger.Info("postgres store initialized")
	return nil
}

func (a *App) setupPageCache() (discovery.PageCache, error) {
	if a.cfg.Redis.Addr == "" {
		return a.store, nil
	}
	rcfg := redisstorage.Config{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		TTL:      a.cfg.Redis.PageTTL,
	}
	a.redis = redisstorage.NewClient(rcfg)
	cache, err := redisstorage.NewPageCache(a.redis, a.store, rcfg, a.logger.Named("redis"))
	if err != nil {
		return nil, fmt.Errorf("redis page cache init failed: %w", err)
	}
	a.logger.Info("redis page cache enabled", zap.String("addr", a.cfg.Redis.Addr), zap.Duration("ttl", rcfg.TTL))
	return cache, nil
}

// credentials prefers the newest stored session and falls back to the configured one.
func (a *App) credentials() discovery.CredentialSource {
	static := upstream.StaticSource{Credential: discovery.Credential{
		Token:  a.cfg.Upstream.Token,
		Cookie: a.cfg.Upstream.Cookie,
	}}
	if a.pg == nil {
		return static
	}
	return upstream.Chain{a.pg, static}
}

func (a *App) setupPublisher(ctx context.Context) (discovery.Publisher, error) {
	events := a.cfg.Events
	switch events.Backend {
	case "pubsub":
		var err error
		a.pubsubClient, err = pubsub.NewClient(ctx, events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubTopic = a.pubsubClient.Topic(events.Topic)
		a.logger.Info("pubsub publisher initialized",
			zap.String("project", events.ProjectID),
			zap.String("topic", events.Topic),
		)
		return gcppublisher.New(a.pubsubTopic), nil
	case "kafka":
		producer, err := kafkapublisher.NewProducer(events.Brokers)
		if err != nil {
			return nil, err
		}
		a.kafka, err = kafkapublisher.New(producer, events.Topic)
		if err != nil {
			return nil, closeProducer(producer, err)
		}
		a.logger.Info("kafka publisher initialized",
			zap.Strings("brokers", events.Brokers),
			zap.String("topic", events.Topic),
		)
		return a.kafka, nil
	case "none":
		a.logger.Info("task events disabled")
		return nil, nil
	default:
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	}
}

func closeProducer(p sarama.SyncProducer, cause error) error {
	if err := p.Close(); err != nil {
		return fmt.Errorf("%w (close producer: %v)", cause, err)
	}
	return cause
}

func (a *App) setupArchive(ctx context.Context) (discovery.BlobStore, error) {
	archive := a.cfg.Export.Archive
	switch archive.Backend {
	case "gcs":
		var err error
		a.gcsClient, err = gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(a.gcsClient, gcsstorage.Config{Bucket: archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.logger.Info("export archive on GCS", zap.String("bucket", archive.Bucket))
		return store, nil
	case "s3":
		store, err := s3storage.New(ctx, s3storage.Config{Bucket: archive.Bucket, Region: archive.Region})
		if err != nil {
			return nil, fmt.Errorf("s3 archive init failed: %w", err)
		}
		a.logger.Info("export archive on S3", zap.String("bucket", archive.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("export archive on local disk", zap.String("path", archive.BaseDir))
		return store, nil
	default:
		return nil, nil
	}
}

func (a *App) setupRenderer() error {
	if !a.cfg.Headless.Enabled {
		a.logger.Info("headless renderer disabled, PDF export unavailable")
		return nil
	}
	r, err := chromedprender.New(chromedprender.Config{
		MaxParallel: a.cfg.Headless.MaxParallel,
		Timeout:     time.Duration(a.cfg.Headless.TimeoutSeconds) * time.Second,
	}, a.logger.Named("renderer"))
	if err != nil {
		return fmt.Errorf("renderer init failed: %w", err)
	}
	a.renderer = r
	a.logger.Info("headless renderer enabled", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	return nil
}

// sinkFactory roots each export at its target directory and mirrors it to the archive.
func (a *App) sinkFactory(archive discovery.BlobStore) bulk.SinkFactory {
	prefix := a.cfg.Export.Archive.Prefix
	logger := a.logger.Named("archive")
	return func(targetDir string) (discovery.BlobStore, error) {
		primary, err := localstorage.New(localstorage.Config{BaseDir: targetDir})
		if err != nil {
			return nil, fmt.Errorf("open export target: %w", err)
		}
		return storage.NewMirror(primary, archive, prefix, logger), nil
	}
}
