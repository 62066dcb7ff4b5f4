package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// Current returns the newest unexpired upstream session.
func (s *Store) Current(ctx context.Context) (discovery.Credential, error) {
	const query = `
SELECT token, cookie, expires_at
FROM upstream_sessions
WHERE expires_at > now()
ORDER BY created_at DESC
LIMIT 1`
	var cred discovery.Credential
	err := s.pool.QueryRow(ctx, query).Scan(&cred.Token, &cred.Cookie, &cred.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return discovery.Credential{}, discovery.ErrAuthRequired
	}
	if err != nil {
		return discovery.Credential{}, fmt.Errorf("select upstream session: %w", err)
	}
	return cred, nil
}

// SaveSession records a new upstream session.
func (s *Store) SaveSession(ctx context.Context, cred discovery.Credential) error {
	const query = `INSERT INTO upstream_sessions (token, cookie, expires_at, created_at) VALUES ($1, $2, $3, now())`
	if _, err := s.pool.Exec(ctx, query, cred.Token, cred.Cookie, cred.ExpiresAt); err != nil {
		return fmt.Errorf("insert upstream session: %w", err)
	}
	return nil
}
