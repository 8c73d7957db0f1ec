package telegram

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/avasilyev/issuegram/internal/domain/model"
)

var (
	mdRenderer goldmark.Markdown
	textPolicy *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))
	textPolicy = bluemonday.StrictPolicy()
}

const (
	// maxMessageLength is Telegram's hard limit for message text.
	maxMessageLength = 4096

	// excerptLength bounds the plain-text body excerpt shown per issue.
	excerptLength = 200
)

// newIssuesMessage renders one notification batch as Telegram HTML: a header
// line plus one link (and optional body excerpt) per issue. Batches that
// would exceed the message limit are truncated with a trailing count.
func newIssuesMessage(repoFullName string, issues []model.Issue) string {
	var b strings.Builder

	noun := "issue"
	if len(issues) > 1 {
		noun = "issues"
	}
	fmt.Fprintf(&b, "\U0001F514 <b>%s</b>: %d new %s", html.EscapeString(repoFullName), len(issues), noun)

	for i, issue := range issues {
		var entry strings.Builder
		fmt.Fprintf(&entry, "\n\n<a href=%q>#%d %s</a>", issue.URL, issue.Number, html.EscapeString(issue.Title))
		if excerpt := bodyExcerpt(issue.Body); excerpt != "" {
			entry.WriteString("\n<i>")
			entry.WriteString(html.EscapeString(excerpt))
			entry.WriteString("</i>")
		}

		// Leave headroom for the truncation tail.
		if b.Len()+entry.Len() > maxMessageLength-64 {
			fmt.Fprintf(&b, "\n\n… and %d more", len(issues)-i)
			break
		}
		b.WriteString(entry.String())
	}

	return b.String()
}

// bodyExcerpt reduces an issue body to a single short plain-text line:
// markdown is rendered, all markup stripped, whitespace collapsed, and the
// result truncated on a rune boundary.
func bodyExcerpt(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	rendered := body
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(body), &buf); err == nil {
		rendered = buf.String()
	}

	text := textPolicy.Sanitize(rendered)
	text = html.UnescapeString(text)
	text = strings.Join(strings.Fields(text), " ")

	if runes := []rune(text); len(runes) > excerptLength {
		text = strings.TrimSpace(string(runes[:excerptLength])) + "…"
	}

	return text
}
