package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

var testCred = discovery.Credential{Token: "tok", Cookie: "slave_sid=abc"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.Client(), nil, Config{BaseURL: srv.URL + "/", UserAgent: "test-agent"}, zap.NewNop())
}

func TestSearchAccountsSendsQueryAndParsesList(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cgi-bin/searchbiz", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "search_biz", q.Get("action"))
		require.Equal(t, "supply chain", q.Get("query"))
		require.Equal(t, "20", q.Get("count"))
		require.Equal(t, "tok", q.Get("token"))
		require.Equal(t, "slave_sid=abc", r.Header.Get("Cookie"))
		require.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"base_resp":{"ret":0},"list":[
			{"fakeid":"f1","nickname":"One"},
			{"fakeid":"","nickname":"Broken"},
			{"fakeid":"f2","nickname":"Two"}]}`))
	})

	got, err := client.SearchAccounts(context.Background(), testCred, "supply chain", 20)
	require.NoError(t, err)
	require.Equal(t, []discovery.AccountCandidate{
		{ExternalID: "f1", DisplayName: "One"},
		{ExternalID: "f2", DisplayName: "Two"},
	}, got)
}

func TestSearchAccountsNonZeroRet(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"base_resp":{"ret":200003,"err_msg":"invalid session"}}`))
	})

	_, err := client.SearchAccounts(context.Background(), testCred, "x", 5)
	require.ErrorIs(t, err, ErrSessionInvalid)
	require.ErrorIs(t, err, discovery.ErrAuthInvalid)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	var sawQuery, sawCount string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sawQuery = r.URL.Query().Get("query")
		sawCount = r.URL.Query().Get("count")
		_, _ = w.Write([]byte(`{"base_resp":{"ret":0},"list":[]}`))
	})

	require.NoError(t, client.Probe(context.Background(), testCred))
	require.Equal(t, "test", sawQuery)
	require.Equal(t, "1", sawCount)

	require.ErrorIs(t, client.Probe(context.Background(), discovery.Credential{}), discovery.ErrAuthRequired)
}

func TestListArticlesParsesBothFormats(t *testing.T) {
	t.Parallel()

	modern, err := json.Marshal(map[string]any{
		"sent_info": map[string]any{"time": 1700000000},
		"appmsg_info": []map[string]any{
			{"title": "Modern", "digest": "d1", "content_url": `https:\/\/mp.weixin.qq.com\/s\/abc`},
			{"title": "", "content_url": "https://skip"},
		},
	})
	require.NoError(t, err)
	legacy := `{&quot;appmsgex&quot;:[{&quot;title&quot;:&quot;Legacy&quot;,&quot;digest&quot;:&quot;d2&quot;,` +
		`&quot;link&quot;:&quot;https://mp.weixin.qq.com/s/def&quot;,&quot;create_time&quot;:1600000000}]}`
	page, err := json.Marshal(map[string]any{
		"publish_list": []map[string]string{
			{"publish_info": string(modern)},
			{"publish_info": legacy},
			{"publish_info": "not json"},
		},
	})
	require.NoError(t, err)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cgi-bin/appmsgpublish", r.URL.Path)
		require.Equal(t, "f1", r.URL.Query().Get("fakeid"))
		require.Equal(t, "101_1", r.URL.Query().Get("type"))
		body, _ := json.Marshal(map[string]any{
			"base_resp":    map[string]any{"ret": 0},
			"publish_page": string(page),
		})
		_, _ = w.Write(body)
	})

	got, err := client.ListArticles(context.Background(), testCred, "f1", 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Modern", got[0].Title)
	require.Equal(t, "https://mp.weixin.qq.com/s/abc", got[0].URL)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), got[0].PublishedAt)
	require.Equal(t, "Legacy", got[1].Title)
	require.Equal(t, "d2", got[1].Digest)
	require.Equal(t, time.Unix(1600000000, 0).UTC(), got[1].PublishedAt)
}

func TestListArticlesErrorsOnNonZeroRet(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"base_resp":{"ret":200013,"err_msg":"freq control"}}`))
	})

	_, err := client.ListArticles(context.Background(), testCred, "f1", 20)
	require.ErrorIs(t, err, ErrSessionInvalid)
}

func TestCredentialChain(t *testing.T) {
	t.Parallel()

	chain := Chain{StaticSource{}, StaticSource{Credential: testCred}}
	got, err := chain.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok", got.Token)

	_, err = Chain{StaticSource{}}.Current(context.Background())
	require.ErrorIs(t, err, discovery.ErrAuthRequired)
}
