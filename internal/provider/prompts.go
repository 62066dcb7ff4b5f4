package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// ParseFailureInsight is the insight attached to a verdict the backend did not format correctly.
const ParseFailureInsight = "Failed to parse AI response"

// KeywordPrompt is the system instruction for keyword generation.
func KeywordPrompt(count int) string {
	return fmt.Sprintf("You are a keyword generator helper. The user needs to search for WeChat Official Accounts. "+
		"Generate %d search keywords based on the user's topic. "+
		"Output specific, short terms (e.g. '不良资产', '债权处置'). "+
		"IMPORTANT: You must return a valid JSON object in this format: { \"keywords\": [\"keyword1\", \"keyword2\"] }",
		count)
}

// ClassifyPrompt asks for a relevance verdict on one article.
func ClassifyPrompt(intent, title, digest string) string {
	return fmt.Sprintf("Intent: %s\n\nArticle Title: %s\nDigest: %s\n\n"+
		"Evaluate if this article is RELEVANT to the Intent. "+
		"STRICT RULES: "+
		"1. If it is an advertisement, course promotion (training camp, free lessons), or selling anxiety, MARK AS FALSE (is_relevant: false). "+
		"2. If it is a simple notification, recruitment info, or low-value content, MARK AS FALSE. "+
		"3. Only mark as TRUE if it provides substantive knowledge, analysis, or industry insights. "+
		"If relevant, provide a concise insight (2-3 sentences max) in Simplified Chinese. "+
		"Return JSON ONLY: { \"is_relevant\": boolean, \"insight\": \"string\" }",
		intent, title, digest)
}

// StripFences removes a surrounding Markdown code fence from model output.
func StripFences(content string) string {
	out := strings.TrimSpace(content)
	switch {
	case strings.HasPrefix(out, "```json"):
		out = strings.TrimPrefix(out, "```json")
	case strings.HasPrefix(out, "```"):
		out = strings.TrimPrefix(out, "```")
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}

type keywordPayload struct {
	Keywords []string `json:"keywords"`
}

// ParseKeywords decodes a {"keywords": [...]} object, dropping blank entries.
func ParseKeywords(content string) ([]string, error) {
	var payload keywordPayload
	if err := json.Unmarshal([]byte(StripFences(content)), &payload); err != nil {
		return nil, fmt.Errorf("decode keywords: %w", err)
	}
	keywords := make([]string, 0, len(payload.Keywords))
	for _, kw := range payload.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("decode keywords: empty list")
	}
	return keywords, nil
}

// ParseVerdict decodes a relevance verdict, falling back to not relevant.
func ParseVerdict(content string) discovery.Verdict {
	var verdict discovery.Verdict
	if err := json.Unmarshal([]byte(StripFences(content)), &verdict); err != nil {
		return discovery.Verdict{Relevant: false, Insight: ParseFailureInsight}
	}
	return verdict
}
