package assets

import (
	"html"
	"regexp"
	"strings"
)

var (
	hiddenStyle = regexp.MustCompile(`style="[^"]*visibility:\s*hidden[^"]*"`)
	dataSrcAttr = regexp.MustCompile(`(?i)data-src\s*=`)
	// cdnImage matches the platform CDN up to the closing quote or whitespace.
	cdnImage = regexp.MustCompile(`(?:https?:)?//mmbiz\.qpic\.cn/[^"'\s]+`)
	// srcAttr matches absolute or protocol-relative image sources.
	srcAttr = regexp.MustCompile(`(?i)(?:data-src|src)\s*=\s*["']((?:https?:)?//[^"']+)["']`)
)

// Ref is one image to localize: its normalized URL and every raw spelling
// of it found in the page.
type Ref struct {
	URL  string
	Raws []string
}

// Normalize drops hidden-content styles and promotes lazy-loaded data-src
// attributes to src.
func Normalize(page string) string {
	page = hiddenStyle.ReplaceAllString(page, "")
	return dataSrcAttr.ReplaceAllString(page, "src=")
}

// Discover scans page text for CDN image URLs, grouped by normalized URL in
// order of first appearance.
func Discover(page string) []Ref {
	var refs []Ref
	index := map[string]int{}
	seenRaw := map[string]bool{}
	for _, raw := range cdnImage.FindAllString(page, -1) {
		if seenRaw[raw] {
			continue
		}
		seenRaw[raw] = true
		u := NormalizeURL(raw)
		if i, ok := index[u]; ok {
			refs[i].Raws = append(refs[i].Raws, raw)
			continue
		}
		index[u] = len(refs)
		refs = append(refs, Ref{URL: u, Raws: []string{raw}})
	}
	return refs
}

// Sources returns the deduplicated, normalized src/data-src URLs of page.
func Sources(page string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range srcAttr.FindAllStringSubmatch(page, -1) {
		u := NormalizeURL(m[1])
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// NormalizeURL decodes HTML entities and upgrades protocol-relative URLs to https.
func NormalizeURL(raw string) string {
	u := html.UnescapeString(raw)
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// Extension guesses a file extension from the CDN's wx_fmt hint.
func Extension(u string) string {
	switch {
	case strings.Contains(u, "wx_fmt=png"):
		return "png"
	case strings.Contains(u, "wx_fmt=gif"):
		return "gif"
	case strings.Contains(u, "wx_fmt=webp"):
		return "webp"
	default:
		return "jpg"
	}
}
