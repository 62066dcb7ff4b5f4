// Package bulk exports a finished task's articles to disk and warms the page
// and asset caches ahead of an export.
package bulk

import (
	"strings"
	"unicode"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// Format is an export output format.
type Format string

// Supported formats.
const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

const pdfWindow = 10

// Gateways is the forwarding gateway list of one bulk run.
type Gateways struct {
	URLs          []string
	Authorization string
	// Provided records that the caller sent a list, even an empty one.
	Provided bool
}

// NewGateways trims trailing slashes and drops blank entries. A nil raw list
// means the caller sent none.
func NewGateways(raw []string, authorization string) Gateways {
	g := Gateways{Authorization: authorization, Provided: raw != nil}
	for _, u := range raw {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u != "" {
			g.URLs = append(g.URLs, u)
		}
	}
	return g
}

// Window is the number of articles processed concurrently.
func Window(format Format, g Gateways) int {
	switch {
	case format == FormatPDF:
		return pdfWindow
	case !g.Provided:
		return 1
	case len(g.URLs) == 0:
		return 2
	default:
		return min(max(len(g.URLs)/2, 3), 20)
	}
}

// Pick returns a uniformly chosen gateway, or nil when there are none.
func (g Gateways) Pick(intn func(int) int) *discovery.Gateway {
	if len(g.URLs) == 0 {
		return nil
	}
	return &discovery.Gateway{BaseURL: g.URLs[intn(len(g.URLs))], Authorization: g.Authorization}
}

// Sanitize replaces every rune that is not a letter, digit or space with '_'.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' {
			return r
		}
		return '_'
	}, s)
}
