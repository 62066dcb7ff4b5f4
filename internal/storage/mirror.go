// Package storage holds helpers shared by the blob store backends.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// Mirror writes every object to a primary store and copies it to an archive
// store under a prefix. Archive failures are logged and never returned.
type Mirror struct {
	primary discovery.BlobStore
	archive discovery.BlobStore
	prefix  string
	logger  *zap.Logger
}

// NewMirror builds a Mirror. A nil archive makes it a pass-through.
func NewMirror(primary, archive discovery.BlobStore, prefix string, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{primary: primary, archive: archive, prefix: prefix, logger: logger}
}

// PutObject writes to the primary store and mirrors the bytes.
func (m *Mirror) PutObject(ctx context.Context, p string, contentType string, r io.Reader) (string, error) {
	if m.archive == nil {
		return m.primary.PutObject(ctx, p, contentType, r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object body: %w", err)
	}
	uri, err := m.primary.PutObject(ctx, p, contentType, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	archived := path.Join(m.prefix, p)
	if _, err := m.archive.PutObject(ctx, archived, contentType, bytes.NewReader(data)); err != nil {
		m.logger.Warn("archive copy failed", zap.String("path", archived), zap.Error(err))
	}
	return uri, nil
}
