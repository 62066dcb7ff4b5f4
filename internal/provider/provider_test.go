package provider

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/retry"
)

type fakeBackend struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []Prompt
	vec       []float32
}

func (f *fakeBackend) Complete(_ context.Context, p Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	idx := len(f.prompts) - 1
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return "", err
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func (f *fakeBackend) Embed(context.Context, string) ([]float32, error) {
	if f.vec == nil {
		return nil, ErrUnsupported
	}
	return f.vec, nil
}

func TestSuggestKeywordsRetriesUntilParsed(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{
		errs:      []error{errors.New("boom")},
		responses: []string{"", "not json", "```json\n{\"keywords\": [\"不良资产\", \" \", \"债权处置\"]}\n```"},
	}
	a := NewAdapter(discovery.ProviderDeepSeek, backend, WithKeywordRetry(retry.Constant(5, 0)))

	keywords, err := a.SuggestKeywords(context.Background(), "distressed debt", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"不良资产", "债权处置"}, keywords)
	require.Len(t, backend.prompts, 3)
	require.Equal(t, "Topic: distressed debt", backend.prompts[0].User)
	require.Contains(t, backend.prompts[0].System, "Generate 10 search keywords")
	require.InDelta(t, 0.3, backend.prompts[0].Temperature, 1e-6)
}

func TestSuggestKeywordsGivesUp(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{responses: []string{"{}"}}
	a := NewAdapter(discovery.ProviderGemini, backend, WithKeywordRetry(retry.Constant(2, 0)))

	_, err := a.SuggestKeywords(context.Background(), "x", 5)
	require.ErrorContains(t, err, "after 2 attempts")
	require.Len(t, backend.prompts, 2)
}

func TestClassifyFallsBackOnGarbage(t *testing.T) {
	t.Parallel()
	a := NewAdapter(discovery.ProviderOllama, &fakeBackend{responses: []string{"I think yes"}})

	verdict, err := a.Classify(context.Background(), "intent", "title", "digest")
	require.NoError(t, err)
	require.False(t, verdict.Relevant)
	require.Equal(t, ParseFailureInsight, verdict.Insight)
}

func TestClassifyParsesFencedVerdict(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{responses: []string{"```\n{\"is_relevant\": true, \"insight\": \"有价值\"}\n```"}}
	a := NewAdapter(discovery.ProviderOllama, backend)

	verdict, err := a.Classify(context.Background(), "intent", "title", "digest")
	require.NoError(t, err)
	require.True(t, verdict.Relevant)
	require.Equal(t, "有价值", verdict.Insight)
	require.Contains(t, backend.prompts[0].User, "Article Title: title\nDigest: digest")
}

func TestClassifyTransportError(t *testing.T) {
	t.Parallel()
	a := NewAdapter(discovery.ProviderOllama, &fakeBackend{errs: []error{errors.New("down")}, responses: []string{""}})
	_, err := a.Classify(context.Background(), "i", "t", "d")
	require.ErrorContains(t, err, "down")
}

func TestEmbedUnsupported(t *testing.T) {
	t.Parallel()
	a := NewAdapter(discovery.ProviderDeepSeek, &fakeBackend{responses: []string{""}})
	_, err := a.Embed(context.Background(), "x")
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestStripFences(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"  {\"a\":1}  ":           `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
	}
	for in, want := range cases {
		require.Equal(t, want, StripFences(in))
	}
}

func TestJoinPrompt(t *testing.T) {
	t.Parallel()
	require.Equal(t, "u", JoinPrompt(Prompt{User: "u"}))
	require.Equal(t, "s\n\nu", JoinPrompt(Prompt{System: "s", User: "u"}))
}
