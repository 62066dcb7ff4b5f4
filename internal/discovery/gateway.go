package discovery

import (
	"fmt"
	"net/url"
)

// Gateway is a forwarding endpoint that fetches a target URL on our behalf.
type Gateway struct {
	BaseURL       string
	Authorization string
}

// Wrap returns the gateway request URL for target, or target itself for a nil gateway.
func (g *Gateway) Wrap(target string) (string, error) {
	if g == nil || g.BaseURL == "" {
		return target, nil
	}
	u, err := url.Parse(g.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Add("url", target)
	if g.Authorization != "" {
		q.Add("authorization", g.Authorization)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
