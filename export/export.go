// Package export renders a conversation thread as Markdown or HTML.
package export

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hrygo/xflo/store"
)

// Format selects the export output.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts markdown, md or html.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

const untitled = "Untitled Chat"

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

func title(th store.Thread) string {
	if th.Name != "" {
		return th.Name
	}
	return untitled
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Markdown writes the thread as a Markdown document. Messages still streaming
// are marked as incomplete.
func Markdown(w io.Writer, th store.Thread) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title(th))
	fmt.Fprintf(&b, "- Thread: `%s`\n", th.ID)
	if th.Model != "" {
		fmt.Fprintf(&b, "- Model: `%s`\n", th.Model)
	}
	fmt.Fprintf(&b, "- Created: %s\n", formatMillis(th.CreatedAt))
	fmt.Fprintf(&b, "- Last active: %s\n", formatMillis(th.LastActive))

	for _, m := range th.Messages {
		b.WriteString("\n---\n\n")
		role := "User"
		if m.Role == store.RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "### %s\n\n", role)
		if m.Content != "" {
			b.WriteString(strings.TrimRight(m.Content, "\n"))
			b.WriteString("\n")
		}
		if m.IsStreaming {
			b.WriteString("\n_(incomplete)_\n")
		}
		writeMetadata(&b, m.Metadata)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeMetadata(b *strings.Builder, meta *store.MessageMetadata) {
	if meta == nil {
		return
	}
	var facts []string
	if meta.Model != "" {
		facts = append(facts, "model "+meta.Model)
	}
	if meta.ExecutionTime > 0 {
		facts = append(facts, fmt.Sprintf("%.2fs", meta.ExecutionTime))
	}
	if meta.DocumentsFound > 0 {
		facts = append(facts, fmt.Sprintf("%d documents", meta.DocumentsFound))
	}
	if len(facts) > 0 {
		fmt.Fprintf(b, "\n_%s_\n", strings.Join(facts, " · "))
	}
	if meta.Error != "" {
		fmt.Fprintf(b, "\n> **Error:** %s\n", meta.Error)
	}
	if len(meta.Sources) > 0 {
		b.WriteString("\n**Sources**\n\n")
		for i, src := range meta.Sources {
			fmt.Fprintf(b, "%d. %s (%.0f%%, %s)\n", i+1, src.Title, src.Similarity*100, src.Confidence)
		}
	}
}

// HTML writes the thread as a standalone HTML page rendered from its Markdown.
func HTML(w io.Writer, th store.Thread) error {
	var src bytes.Buffer
	if err := Markdown(&src, th); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := md.Convert(src.Bytes(), &body); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}

	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(title(th)), body.String())
	return err
}

// Write renders th in format f.
func Write(w io.Writer, th store.Thread, f Format) error {
	switch f {
	case FormatHTML:
		return HTML(w, th)
	case FormatMarkdown:
		return Markdown(w, th)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}
