package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/xflo/store"
)

func sampleThread() store.Thread {
	return store.Thread{
		ID:         "6f1c",
		Model:      "gpt-4",
		Name:       "Refund Policy Question",
		CreatedAt:  1700000000000,
		LastActive: 1700000005000,
		Messages: []store.Message{
			{Role: store.RoleUser, Content: "What's the refund policy?", Timestamp: 1700000000001},
			{
				Role:      store.RoleAssistant,
				Content:   "Refunds are issued within **30 days**.",
				Timestamp: 1700000000002,
				Metadata: &store.MessageMetadata{
					Model:          "gpt-4",
					ExecutionTime:  1.25,
					DocumentsFound: 1,
					Sources:        []store.Source{{Title: "policy.pdf", Similarity: 0.91, Confidence: "high"}},
				},
			},
			{Role: store.RoleUser, Content: "And exchanges?", Timestamp: 1700000000003},
			{Role: store.RoleAssistant, Content: "Exch", Timestamp: 1700000000004, IsStreaming: true},
		},
	}
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Markdown(&buf, sampleThread()))
	out := buf.String()

	assert.Contains(t, out, "# Refund Policy Question\n")
	assert.Contains(t, out, "- Model: `gpt-4`")
	assert.Contains(t, out, "- Created: 2023-11-14T22:13:20Z")
	assert.Contains(t, out, "### User\n\nWhat's the refund policy?\n")
	assert.Contains(t, out, "Refunds are issued within **30 days**.")
	assert.Contains(t, out, "_model gpt-4 · 1.25s · 1 documents_")
	assert.Contains(t, out, "1. policy.pdf (91%, high)")
	assert.Contains(t, out, "Exch\n\n_(incomplete)_")
}

func TestMarkdownUntitledWithError(t *testing.T) {
	th := store.Thread{ID: "x", Messages: []store.Message{
		{Role: store.RoleAssistant, Content: "Partial ", Metadata: &store.MessageMetadata{Error: "connection reset"}},
	}}
	var buf bytes.Buffer
	require.NoError(t, Markdown(&buf, th))
	assert.Contains(t, buf.String(), "# Untitled Chat")
	assert.Contains(t, buf.String(), "> **Error:** connection reset")
}

func TestHTML(t *testing.T) {
	th := sampleThread()
	th.Name = "Refunds <&> Exchanges"

	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, th))
	out := buf.String()

	assert.Contains(t, out, "<title>Refunds &lt;&amp;&gt; Exchanges</title>")
	assert.Contains(t, out, "<h3>Assistant</h3>")
	assert.Contains(t, out, "<strong>30 days</strong>")
	assert.Contains(t, out, "<hr>")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatMarkdown, "md": FormatMarkdown, "Markdown": FormatMarkdown, "HTML": FormatHTML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)

	var buf bytes.Buffer
	assert.Error(t, Write(&buf, sampleThread(), Format("pdf")))
}
