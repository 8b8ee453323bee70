package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/xflo/store"
)

// completionServer streams chunks as OpenAI-style SSE frames, then the given tail.
// Decoded requests are sent on got when it is non-nil.
func completionServer(t *testing.T, got chan<- openai.ChatCompletionRequest, chunks []string, tail string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			var req openai.ChatCompletionRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			got <- req
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-x\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", c)
		}
		fmt.Fprint(w, tail)
	}))
}

func newOpenAITestTransport(srv *httptest.Server) *OpenAITransport {
	return NewOpenAITransport(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-4"})
}

func TestOpenAITransport(t *testing.T) {
	requests := make(chan openai.ChatCompletionRequest, 1)
	srv := completionServer(t, requests, []string{"Hel", "", "lo, ", "world"}, "data: [DONE]\n\n")
	defer srv.Close()

	s, err := newOpenAITestTransport(srv).Open(context.Background(), Request{
		ThreadID: "t1",
		Message:  "greet me",
		History: []store.Message{
			{Role: store.RoleUser, Content: "earlier question", Timestamp: 1},
			{Role: store.RoleAssistant, Content: "earlier answer", Timestamp: 2},
			{Role: store.RoleAssistant, Content: "", Timestamp: 3},
			{Role: store.RoleAssistant, Content: "half", Timestamp: 4, IsStreaming: true},
		},
	})
	require.NoError(t, err)
	defer s.Close()

	events, err := drain(t, s)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 4)
	assert.Equal(t, "Hel", *events[0].Content)
	assert.Equal(t, "lo, ", *events[1].Content)
	assert.Equal(t, "world", *events[2].Content)
	require.Equal(t, KindMetadata, events[3].Kind())
	assert.Equal(t, "gpt-x", events[3].Metadata.Model)
	assert.NotEmpty(t, events[3].Metadata.Timestamp)

	got := <-requests
	assert.Equal(t, "gpt-4", got.Model)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "earlier question"}, got.Messages[0])
	assert.Equal(t, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "earlier answer"}, got.Messages[1])
	assert.Equal(t, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "greet me"}, got.Messages[2])
}

func TestOpenAITransportMidStreamError(t *testing.T) {
	srv := completionServer(t, nil, []string{"Partial "},
		"data: {\"error\":{\"message\":\"upstream overloaded\",\"type\":\"server_error\"}}\n\n")
	defer srv.Close()

	s, err := newOpenAITestTransport(srv).Open(context.Background(), Request{Message: "x"})
	require.NoError(t, err)
	defer s.Close()

	events, err := drain(t, s)
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "upstream overloaded")
	require.Len(t, events, 1)
	assert.Equal(t, "Partial ", *events[0].Content)
}

func TestOpenAITransportStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := newOpenAITestTransport(srv).Open(context.Background(), Request{Message: "x"})
	assert.Error(t, err)
}

func TestStreamerWithOpenAITransport(t *testing.T) {
	srv := completionServer(t, nil, []string{"Hel", "lo, ", "world"}, "data: [DONE]\n\n")
	defer srv.Close()

	ctx := context.Background()
	st := store.New(store.NewMemoryDriver())
	tid, err := st.CreateThread(ctx, "gpt-4")
	require.NoError(t, err)

	h := NewStreamer(newOpenAITestTransport(srv), st).Submit(ctx, Request{ThreadID: tid, Model: "gpt-4", Message: "hi"}, 10)
	state, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, Finalized, state)

	th, ok := st.GetThread(tid)
	require.True(t, ok)
	require.Len(t, th.Messages, 1)
	m := th.Messages[0]
	assert.Equal(t, "Hello, world", m.Content)
	assert.False(t, m.IsStreaming)
	require.NotNil(t, m.Metadata)
	assert.Equal(t, "gpt-x", m.Metadata.Model)
}
