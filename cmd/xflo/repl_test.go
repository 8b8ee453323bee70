package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/xflo/ai/session"
	"github.com/hrygo/xflo/ai/stream"
	"github.com/hrygo/xflo/internal/chat"
	"github.com/hrygo/xflo/store"
)

type echoTransport struct{}

func (echoTransport) Name() string { return "echo" }

func (echoTransport) Open(_ context.Context, req stream.Request) (stream.Stream, error) {
	return &echoStream{events: []stream.Event{
		stream.ContentEvent("you said: "),
		stream.ContentEvent(req.Message),
		stream.MetadataEvent(store.MessageMetadata{Model: req.Model}),
	}}, nil
}

type echoStream struct {
	events []stream.Event
}

func (s *echoStream) Recv() (stream.Event, error) {
	if len(s.events) == 0 {
		return stream.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *echoStream) Close() error { return nil }

func runREPL(t *testing.T, st *store.Store, input string) string {
	t.Helper()
	ctx := context.Background()
	restorer := session.NewRestorer(st)
	_, err := restorer.Restore(ctx)
	require.NoError(t, err)

	sess := chat.NewSession(st, stream.NewStreamer(echoTransport{}, st), restorer, "gpt-4")
	var out bytes.Buffer
	require.NoError(t, newREPL(sess, st, strings.NewReader(input), &out).Run(ctx))
	return out.String()
}

func TestREPLConversation(t *testing.T) {
	st := store.New(store.NewMemoryDriver())
	out := runREPL(t, st, "hello there\n/rename  Greetings \n/threads\n/export md\n/quit\nnever sent\n")

	assert.Contains(t, out, "no thread selected")
	assert.Contains(t, out, "you said: hello there\n")
	assert.Contains(t, out, "Greetings")
	assert.Contains(t, out, "# Greetings")
	assert.NotContains(t, out, "never sent")

	require.Equal(t, 1, st.Len())
	th, ok := st.GetThread(st.CurrentThreadID())
	require.True(t, ok)
	require.Len(t, th.Messages, 2)
	assert.Equal(t, "you said: hello there", th.Messages[1].Content)
	assert.False(t, th.Messages[1].IsStreaming)
}

func TestREPLThreadCommands(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemoryDriver())
	first, err := st.CreateThread(ctx, "gpt-4")
	require.NoError(t, err)
	require.NoError(t, st.AddMessage(ctx, first, store.Message{Role: store.RoleUser, Content: "a", Timestamp: st.Clock().Next()}))
	second, err := st.CreateThread(ctx, "gpt-4")
	require.NoError(t, err)

	out := runREPL(t, st, "/switch "+first[:8]+"\n/delete "+second+"\n/switch nope\n/bogus\n")

	assert.Contains(t, out, "thread "+first[:8])
	assert.Contains(t, out, "deleted "+second[:8])
	assert.Contains(t, out, "error: thread not found")
	assert.Contains(t, out, "unknown command /bogus")
	assert.Equal(t, 1, st.Len())
	assert.Equal(t, first, st.CurrentThreadID())
}

func TestPrintThreadsEmpty(t *testing.T) {
	var out bytes.Buffer
	printThreads(&out, nil, "")
	assert.Equal(t, "no threads\n", out.String())
}
