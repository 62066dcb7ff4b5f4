package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-discovery/internal/storage/memory"
)

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("unavailable")
}

func TestMirrorCopiesToArchive(t *testing.T) {
	t.Parallel()

	primary := memory.NewBlobStore()
	archive := memory.NewBlobStore()
	m := NewMirror(primary, archive, "exports/run_1", nil)

	uri, err := m.PutObject(context.Background(), "1_title.md", "text/markdown", strings.NewReader("# t"))
	require.NoError(t, err)
	require.Equal(t, "memory://1_title.md", uri)

	data, ok := archive.Object("exports/run_1/1_title.md")
	require.True(t, ok)
	require.Equal(t, "# t", string(data))
}

func TestMirrorIgnoresArchiveFailure(t *testing.T) {
	t.Parallel()

	primary := memory.NewBlobStore()
	m := NewMirror(primary, failingStore{}, "p", nil)

	_, err := m.PutObject(context.Background(), "summary.txt", "text/plain", strings.NewReader("s"))
	require.NoError(t, err)
	_, ok := primary.Object("summary.txt")
	require.True(t, ok)
}

func TestMirrorWithoutArchive(t *testing.T) {
	t.Parallel()

	primary := memory.NewBlobStore()
	m := NewMirror(primary, nil, "", nil)
	_, err := m.PutObject(context.Background(), "a", "", strings.NewReader("x"))
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, primary.Paths())
}
