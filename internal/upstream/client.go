// Package upstream is the client for the upstream platform's account search
// and article listing endpoints.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/ratelimit"
)

// ErrSessionInvalid reports a non-zero base_resp.ret. It matches discovery.ErrAuthInvalid.
var ErrSessionInvalid = fmt.Errorf("upstream rejected session: %w", discovery.ErrAuthInvalid)

// DefaultBaseURL is the upstream platform origin.
const DefaultBaseURL = "https://mp.weixin.qq.com"

const probeQuery = "test"

// Config controls the upstream client.
type Config struct {
	BaseURL   string
	UserAgent string
}

// Client implements discovery.Source over HTTP.
type Client struct {
	http    *http.Client
	limiter *ratelimit.Limiter
	base    string
	ua      string
	logger  *zap.Logger
}

// New builds a Client that shares httpClient and limiter with the rest of the process.
func New(httpClient *http.Client, limiter *ratelimit.Limiter, cfg Config, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		limiter: limiter,
		base:    base,
		ua:      cfg.UserAgent,
		logger:  logger,
	}
}

type baseResp struct {
	Ret    int    `json:"ret"`
	ErrMsg string `json:"err_msg"`
}

func (b baseResp) err() error {
	if b.Ret == 0 {
		return nil
	}
	msg := b.ErrMsg
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("%w (ret=%d): %s", ErrSessionInvalid, b.Ret, msg)
}

type searchResponse struct {
	BaseResp baseResp `json:"base_resp"`
	List     []struct {
		FakeID   string `json:"fakeid"`
		Nickname string `json:"nickname"`
	} `json:"list"`
}

// SearchAccounts finds accounts matching query.
func (c *Client) SearchAccounts(
	ctx context.Context,
	cred discovery.Credential,
	query string,
	limit int,
) ([]discovery.AccountCandidate, error) {
	params := url.Values{}
	params.Set("action", "search_biz")
	params.Set("begin", "0")
	params.Set("count", strconv.Itoa(limit))
	params.Set("query", query)
	c.commonParams(params, cred)

	var resp searchResponse
	if err := c.getJSON(ctx, "/cgi-bin/searchbiz", params, cred, &resp); err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	if err := resp.BaseResp.err(); err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	out := make([]discovery.AccountCandidate, 0, len(resp.List))
	for _, item := range resp.List {
		if item.FakeID == "" || item.Nickname == "" {
			continue
		}
		out = append(out, discovery.AccountCandidate{ExternalID: item.FakeID, DisplayName: item.Nickname})
	}
	return out, nil
}

// Probe confirms the credential with a one-result search.
func (c *Client) Probe(ctx context.Context, cred discovery.Credential) error {
	if cred.Token == "" || cred.Cookie == "" {
		return discovery.ErrAuthRequired
	}
	if _, err := c.SearchAccounts(ctx, cred, probeQuery, 1); err != nil {
		return fmt.Errorf("probe session: %w", err)
	}
	return nil
}

type listResponse struct {
	BaseResp    baseResp `json:"base_resp"`
	PublishPage string   `json:"publish_page"`
}

type publishPage struct {
	PublishList []struct {
		PublishInfo string `json:"publish_info"`
	} `json:"publish_list"`
}

type publishInfo struct {
	SentInfo struct {
		Time float64 `json:"time"`
	} `json:"sent_info"`
	AppMsgInfo []struct {
		Title      string `json:"title"`
		Digest     string `json:"digest"`
		ContentURL string `json:"content_url"`
	} `json:"appmsg_info"`
	AppMsgEx []struct {
		Title      *string  `json:"title"`
		Digest     *string  `json:"digest"`
		Link       *string  `json:"link"`
		CreateTime *float64 `json:"create_time"`
	} `json:"appmsgex"`
}

// ListArticles returns up to limit recent articles of an account.
func (c *Client) ListArticles(
	ctx context.Context,
	cred discovery.Credential,
	accountID string,
	limit int,
) ([]discovery.SourceArticle, error) {
	params := url.Values{}
	params.Set("sub", "list")
	params.Set("search_field", "null")
	params.Set("begin", "0")
	params.Set("count", strconv.Itoa(limit))
	params.Set("fakeid", accountID)
	params.Set("type", "101_1")
	c.commonParams(params, cred)

	var resp listResponse
	if err := c.getJSON(ctx, "/cgi-bin/appmsgpublish", params, cred, &resp); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	if err := resp.BaseResp.err(); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return parsePublishPage(resp.PublishPage, c.logger), nil
}

// parsePublishPage decodes the doubly-encoded listing. Malformed entries are skipped.
func parsePublishPage(raw string, logger *zap.Logger) []discovery.SourceArticle {
	out := []discovery.SourceArticle{}
	if raw == "" {
		return out
	}
	var page publishPage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		logger.Warn("unparseable publish_page", zap.Error(err))
		return out
	}
	for _, item := range page.PublishList {
		if item.PublishInfo == "" {
			continue
		}
		var info publishInfo
		cleaned := strings.ReplaceAll(item.PublishInfo, "&quot;", `"`)
		if err := json.Unmarshal([]byte(cleaned), &info); err != nil {
			logger.Debug("skipping unparseable publish_info", zap.Error(err))
			continue
		}
		if len(info.AppMsgInfo) > 0 {
			published := unixTime(info.SentInfo.Time)
			for _, msg := range info.AppMsgInfo {
				if msg.Title == "" || msg.ContentURL == "" {
					continue
				}
				out = append(out, discovery.SourceArticle{
					Title:       msg.Title,
					Digest:      msg.Digest,
					URL:         strings.ReplaceAll(msg.ContentURL, `\`, ""),
					PublishedAt: published,
				})
			}
			continue
		}
		for _, msg := range info.AppMsgEx {
			if msg.Title == nil || msg.Digest == nil || msg.Link == nil || msg.CreateTime == nil {
				continue
			}
			out = append(out, discovery.SourceArticle{
				Title:       *msg.Title,
				Digest:      *msg.Digest,
				URL:         *msg.Link,
				PublishedAt: unixTime(*msg.CreateTime),
			})
		}
	}
	return out
}

func unixTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0).UTC()
}

func (c *Client) commonParams(params url.Values, cred discovery.Credential) {
	params.Set("token", cred.Token)
	params.Set("lang", "zh_CN")
	params.Set("f", "json")
	params.Set("ajax", "1")
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, cred discovery.Credential, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cookie", cred.Cookie)
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close upstream body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode body: %w", errors.Join(err, fmt.Errorf("body: %.200s", body)))
	}
	return nil
}
