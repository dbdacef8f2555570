// Package render turns user-written markdown into safe HTML and formats
// timestamps for feed cards.
package render

import (
	"bytes"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
	)
	policy = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Markdown renders content and strips anything the UGC policy does not
// allow, including raw HTML embedded in the markdown.
func Markdown(content string) string {
	if content == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return policy.Sanitize("<p>" + content + "</p>")
	}
	return policy.Sanitize(buf.String())
}

// PlainText strips every tag, for titles and notification bodies. The
// result is text, not HTML: entities are decoded and runs of whitespace
// collapse to one space.
func PlainText(s string) string {
	text := html.UnescapeString(bluemonday.StrictPolicy().Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

// Ago formats t relative to now, e.g. "3 minutes ago". Times in the
// future render as "just now".
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if !t.Before(now) || now.Sub(t) < 30*time.Second {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Truncate shortens s to at most n runes, adding an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
