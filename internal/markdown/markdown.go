// Package markdown turns fetched article HTML into standalone Markdown files.
package markdown

import (
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Meta is the front matter of an exported article.
type Meta struct {
	Title       string
	URL         string
	PublishedAt *time.Time
	Insight     string
}

// Converter renders cleaned article bodies as Markdown.
type Converter struct {
	conv *md.Converter
}

// NewConverter builds a Converter. Relative image paths are left as written.
func NewConverter() *Converter {
	return &Converter{conv: md.NewConverter("", true, nil)}
}

// Clean removes scripts, styles and javascript: anchors and returns the body markup.
func Clean(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style").Remove()
	doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "javascript:")
	}).Remove()
	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("serialize body: %w", err)
	}
	return body, nil
}

// Document cleans page and assembles the full Markdown file for meta.
func (c *Converter) Document(meta Meta, page string) (string, error) {
	body, err := Clean(page)
	if err != nil {
		return "", err
	}
	text, err := c.conv.ConvertString(body)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}

	var published int64
	if meta.PublishedAt != nil {
		published = meta.PublishedAt.Unix()
	}
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", meta.Title)
	fmt.Fprintf(&b, "url: %s\n", meta.URL)
	fmt.Fprintf(&b, "date: %d\n", published)
	fmt.Fprintf(&b, "insight: %s\n", oneLine(meta.Insight))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", meta.Title)
	fmt.Fprintf(&b, "> Insight: %s\n\n", meta.Insight)
	b.WriteString(text)
	b.WriteString("\n")
	return b.String(), nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
