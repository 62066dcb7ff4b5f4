package upstream

import (
	"context"
	"errors"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// StaticSource serves a credential fixed in configuration.
type StaticSource struct {
	Credential discovery.Credential
}

// Current returns the configured credential, or ErrAuthRequired when it is blank.
func (s StaticSource) Current(context.Context) (discovery.Credential, error) {
	if s.Credential.Token == "" || s.Credential.Cookie == "" {
		return discovery.Credential{}, discovery.ErrAuthRequired
	}
	return s.Credential, nil
}

// Chain tries each source in order and returns the first credential found.
type Chain []discovery.CredentialSource

// Current implements discovery.CredentialSource.
func (c Chain) Current(ctx context.Context) (discovery.Credential, error) {
	var lastErr error = discovery.ErrAuthRequired
	for _, src := range c {
		if src == nil {
			continue
		}
		cred, err := src.Current(ctx)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, discovery.ErrAuthRequired) {
			return discovery.Credential{}, err
		}
		lastErr = err
	}
	return discovery.Credential{}, lastErr
}
