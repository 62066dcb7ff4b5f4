package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/bulk"
	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

type fakeApp struct {
	exportReq   bulk.ExportRequest
	exportErr   error
	prefetchReq bulk.PrefetchRequest
	swept       int64
	migrated    bool
	closed      bool
}

func (f *fakeApp) Run(context.Context) error { return nil }

func (f *fakeApp) Migrate(context.Context) error {
	f.migrated = true
	return nil
}

func (f *fakeApp) Sweep(context.Context) (int64, error) { return f.swept, nil }

func (f *fakeApp) Export(_ context.Context, req bulk.ExportRequest) (bulk.ExportResult, error) {
	f.exportReq = req
	if f.exportErr != nil {
		return bulk.ExportResult{}, f.exportErr
	}
	return bulk.ExportResult{Directory: "/tmp/out/p_export_1", Exported: 2}, nil
}

func (f *fakeApp) Prefetch(_ context.Context, req bulk.PrefetchRequest) (bulk.Stats, error) {
	f.prefetchReq = req
	return bulk.Stats{ArticleSuccess: 1}, nil
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Close() { f.closed = true }

// run swaps the app factory, so these tests must not run in parallel.
func run(t *testing.T, app *fakeApp, args ...string) (string, error) {
	t.Helper()
	prev := newApp
	newApp = func(context.Context, string) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = prev })

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExportCommand(t *testing.T) {
	app := &fakeApp{}
	out, err := run(t, app, "export", "t1", "--target-dir", "/tmp/out", "--format", "pdf",
		"--proxy", "https://gw1.example.com/", "--proxy", "https://gw2.example.com", "--authorization", "k")
	require.NoError(t, err)
	require.Contains(t, out, `"directory": "/tmp/out/p_export_1"`)
	require.True(t, app.closed)

	require.Equal(t, "t1", app.exportReq.TaskID)
	require.Equal(t, bulk.FormatPDF, app.exportReq.Format)
	require.Equal(t, []string{"https://gw1.example.com", "https://gw2.example.com"}, app.exportReq.Gateways.URLs)
	require.Equal(t, "k", app.exportReq.Gateways.Authorization)
	require.True(t, app.exportReq.Gateways.Provided)
}

func TestExportCommandDefaults(t *testing.T) {
	app := &fakeApp{}
	_, err := run(t, app, "export", "t1", "--target-dir", "/tmp/out")
	require.NoError(t, err)
	require.Equal(t, bulk.FormatMarkdown, app.exportReq.Format)
	require.False(t, app.exportReq.Gateways.Provided)

	_, err = run(t, &fakeApp{}, "export", "t1")
	require.Error(t, err)
}

func TestExportCommandNothingToExport(t *testing.T) {
	app := &fakeApp{exportErr: discovery.ErrNothingToExport}
	_, err := run(t, app, "export", "t1", "--target-dir", "/tmp/out")
	require.NoError(t, err)

	app = &fakeApp{exportErr: discovery.ErrNotFound}
	_, err = run(t, app, "export", "t1", "--target-dir", "/tmp/out")
	require.ErrorIs(t, err, discovery.ErrNotFound)
}

func TestPrefetchCommand(t *testing.T) {
	app := &fakeApp{}
	out, err := run(t, app, "prefetch", "t1", "--proxy", "")
	require.NoError(t, err)
	require.Contains(t, out, `"article_success": 1`)
	require.True(t, app.prefetchReq.Gateways.Provided)
	require.Empty(t, app.prefetchReq.Gateways.URLs)
}

func TestAdminCommands(t *testing.T) {
	app := &fakeApp{swept: 3}
	out, err := run(t, app, "sweep")
	require.NoError(t, err)
	require.Contains(t, out, "3 interrupted tasks marked failed")

	_, err = run(t, app, "migrate")
	require.NoError(t, err)
	require.True(t, app.migrated)
}
