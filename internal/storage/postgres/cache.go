package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// GetPage looks up cached HTML by URL hash. A miss is not an error.
func (s *Store) GetPage(ctx context.Context, key string) (discovery.CachedPage, bool, error) {
	page := discovery.CachedPage{Key: key}
	err := s.pool.QueryRow(ctx,
		`SELECT url, html, fetched_at FROM cached_pages WHERE url_hash = $1`, key,
	).Scan(&page.URL, &page.HTML, &page.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return discovery.CachedPage{}, false, nil
	}
	if err != nil {
		return discovery.CachedPage{}, false, fmt.Errorf("select cached page: %w", err)
	}
	return page, true, nil
}

// PutPage upserts cached HTML.
func (s *Store) PutPage(ctx context.Context, page discovery.CachedPage) error {
	const query = `
INSERT INTO cached_pages (url_hash, url, html, fetched_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (url_hash) DO UPDATE
SET url = EXCLUDED.url, html = EXCLUDED.html, fetched_at = EXCLUDED.fetched_at`
	if _, err := s.pool.Exec(ctx, query, page.Key, page.URL, page.HTML, page.FetchedAt); err != nil {
		return fmt.Errorf("upsert cached page: %w", err)
	}
	return nil
}

// GetAsset loads a cached binary asset by normalized URL.
func (s *Store) GetAsset(ctx context.Context, url string) (discovery.CachedAsset, bool, error) {
	asset := discovery.CachedAsset{URL: url}
	err := s.pool.QueryRow(ctx,
		`SELECT data, mime_type FROM cached_assets WHERE url = $1`, url,
	).Scan(&asset.Data, &asset.MimeType)
	if errors.Is(err, pgx.ErrNoRows) {
		return discovery.CachedAsset{}, false, nil
	}
	if err != nil {
		return discovery.CachedAsset{}, false, fmt.Errorf("select cached asset: %w", err)
	}
	return asset, true, nil
}

// HasAsset reports whether an asset row exists without loading its bytes.
func (s *Store) HasAsset(ctx context.Context, url string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cached_assets WHERE url = $1)`, url,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check cached asset: %w", err)
	}
	return exists, nil
}

// PutAsset upserts a binary asset.
func (s *Store) PutAsset(ctx context.Context, asset discovery.CachedAsset) error {
	const query = `
INSERT INTO cached_assets (url, data, mime_type, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (url) DO UPDATE
SET data = EXCLUDED.data, mime_type = EXCLUDED.mime_type, updated_at = now()`
	if _, err := s.pool.Exec(ctx, query, asset.URL, asset.Data, asset.MimeType); err != nil {
		return fmt.Errorf("upsert cached asset: %w", err)
	}
	return nil
}
