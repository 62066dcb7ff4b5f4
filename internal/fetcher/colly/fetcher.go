// Package collyfetcher downloads article pages and images using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/retry"
)

// DefaultUserAgent is a desktop Chrome identity.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const maxBodySize = 32 << 20

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// PageRetry governs FetchHTML; zero Attempts means 3 tries one second apart.
	PageRetry retry.Policy
}

// Fetcher implements discovery.HTMLFetcher and raw byte downloads over one shared client.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	status int
	body   []byte
}

// New builds a Fetcher on client. A nil client gets a pooled transport.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageRetry.Attempts == 0 {
		cfg.PageRetry = retry.Constant(3, time.Second)
	}
	if client == nil {
		client = NewHTTPClient(cfg.Timeout, false)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.SetClient(client)
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = maxBodySize
	c.UserAgent = cfg.UserAgent
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// NewHTTPClient builds the process-wide HTTP client.
func NewHTTPClient(timeout time.Duration, insecureSkipVerify bool) *http.Client {
	transport := newHTTPTransport()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via fetch.insecure_skip_verify
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// FetchHTML downloads target, through gateway when one is given.
func (f *Fetcher) FetchHTML(ctx context.Context, target string, gateway *discovery.Gateway) (string, error) {
	requestURL, err := gateway.Wrap(target)
	if err != nil {
		return "", fmt.Errorf("build gateway url: %w", err)
	}
	policy := f.cfg.PageRetry.WithNotify(func(attempt int, err error) {
		f.logger.Warn("page fetch failed", zap.String("url", target), zap.Int("attempt", attempt), zap.Error(err))
	})
	body, err := retry.Value(ctx, policy, func(ctx context.Context) ([]byte, error) {
		return f.Fetch(ctx, requestURL, nil)
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}
	return string(body), nil
}

// Fetch performs one GET with extra headers and returns the body of a 2xx response.
func (f *Fetcher) Fetch(ctx context.Context, target string, headers http.Header) ([]byte, error) {
	var (
		result   fetchResult
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, headers, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		return nil, err
	}
	if result.status < 200 || result.status >= 300 {
		return nil, fmt.Errorf("unexpected status %d", result.status)
	}
	if len(result.body) == 0 {
		return nil, errors.New("empty response body")
	}
	return result.body, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	headers http.Header,
	result *fetchResult,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = fetchResult{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}
}
