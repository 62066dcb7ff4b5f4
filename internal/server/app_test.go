package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/bulk"
	"github.com/JakeFAU/insight-discovery/internal/config"
	"github.com/JakeFAU/insight-discovery/internal/discovery"
	memorypublisher "github.com/JakeFAU/insight-discovery/internal/publisher/memory"
	localstorage "github.com/JakeFAU/insight-discovery/internal/storage/local"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Server:  config.ServerConfig{Port: 8080},
		Logging: config.LoggingConfig{Path: filepath.Join(t.TempDir(), "discovery.log")},
		Upstream: config.UpstreamConfig{
			BaseURL:           "http://127.0.0.1:1",
			TimeoutSeconds:    5,
			RequestsPerSecond: 10,
			Burst:             1,
		},
		Tasks: config.TasksConfig{
			Concurrency:       1,
			QueueDepth:        4,
			DefaultTarget:     30,
			DefaultSpeed:      "medium",
			KeywordProvider:   "gemini",
			ReasoningProvider: "gemini",
			EmbeddingProvider: "gemini",
		},
		Fetch:  config.FetchConfig{TimeoutSeconds: 5},
		Assets: config.AssetsConfig{Workers: 2, MaxWidth: 1280, JPEGQuality: 75},
		Export: config.ExportConfig{Archive: config.ArchiveConfig{
			Backend: "local",
			BaseDir: t.TempDir(),
			Prefix:  "exports",
		}},
		Events: config.EventsConfig{Backend: "memory", Topic: "task-events"},
	}
}

func TestBuildInMemory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.Nil(t, app.pg)
	require.Nil(t, app.renderer)

	handler := app.Handler()
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	// No stored or configured upstream session.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tasks", bytes.NewBufferString(`{"prompt":"p"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	n, err := app.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, app.Migrate(context.Background()))

	_, err = app.Export(context.Background(), bulk.ExportRequest{
		TaskID: "missing", TargetDir: t.TempDir(), Format: bulk.FormatMarkdown,
	})
	require.ErrorIs(t, err, discovery.ErrNotFound)

	_, err = app.Export(context.Background(), bulk.ExportRequest{
		TaskID: "missing", TargetDir: t.TempDir(), Format: bulk.FormatPDF,
	})
	require.ErrorIs(t, err, discovery.ErrInvalidArgument)
}

func TestSinkFactoryMirrorsToArchive(t *testing.T) {
	t.Parallel()

	archiveDir := t.TempDir()
	archive, err := localstorage.New(localstorage.Config{BaseDir: archiveDir})
	require.NoError(t, err)

	cfg := testConfig(t)
	app := &App{cfg: cfg, logger: zap.NewNop()}
	targetDir := filepath.Join(t.TempDir(), "out")
	sink, err := app.sinkFactory(archive)(targetDir)
	require.NoError(t, err)

	_, err = sink.PutObject(context.Background(), "run_export_1/1_a.md", "text/markdown", strings.NewReader("hello"))
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(targetDir, "run_export_1", "1_a.md"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
	got, err = os.ReadFile(filepath.Join(archiveDir, "exports", "run_export_1", "1_a.md"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestCredentialsFallBackToConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	app := &App{cfg: cfg, logger: zap.NewNop()}
	_, err := app.credentials().Current(context.Background())
	require.ErrorIs(t, err, discovery.ErrAuthRequired)

	cfg.Upstream.Token = "tok"
	cfg.Upstream.Cookie = "slave_sid=1"
	app.cfg = cfg
	cred, err := app.credentials().Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok", cred.Token)
}

func TestSetupPublisher(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	app := &App{cfg: cfg, logger: zap.NewNop()}
	pub, err := app.setupPublisher(context.Background())
	require.NoError(t, err)
	require.IsType(t, &memorypublisher.Publisher{}, pub)

	app.cfg.Events.Backend = "none"
	pub, err = app.setupPublisher(context.Background())
	require.NoError(t, err)
	require.Nil(t, pub)

	app.cfg.Export.Archive.Backend = "none"
	archive, err := app.setupArchive(context.Background())
	require.NoError(t, err)
	require.Nil(t, archive)
}
