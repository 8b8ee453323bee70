package chat

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/xflo/ai/session"
	"github.com/hrygo/xflo/ai/stream"
	"github.com/hrygo/xflo/store"
)

// scriptedTransport replies to every request with the same fragments and a
// metadata event.
type scriptedTransport struct {
	mu        sync.Mutex
	fragments []string
	requests  []stream.Request
}

func (s *scriptedTransport) Name() string { return "scripted" }

func (s *scriptedTransport) Open(_ context.Context, req stream.Request) (stream.Stream, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	events := make([]stream.Event, 0, len(s.fragments)+1)
	for _, f := range s.fragments {
		events = append(events, stream.ContentEvent(f))
	}
	events = append(events, stream.MetadataEvent(store.MessageMetadata{Model: req.Model}))
	return &scriptedStream{events: events}, nil
}

type scriptedStream struct {
	events []stream.Event
}

func (s *scriptedStream) Recv() (stream.Event, error) {
	if len(s.events) == 0 {
		return stream.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *scriptedStream) Close() error { return nil }

func newSession(t *testing.T, tr stream.Transport) (*Session, *store.Store, *session.Restorer) {
	t.Helper()
	st := store.New(store.NewMemoryDriver())
	restorer := session.NewRestorer(st)
	return NewSession(st, stream.NewStreamer(tr, st), restorer, "gpt-4"), st, restorer
}

func TestSubmitCreatesThreadLazily(t *testing.T) {
	ctx := context.Background()
	tr := &scriptedTransport{fragments: []string{"Hel", "lo, ", "world"}}
	sess, st, restorer := newSession(t, tr)
	_, err := restorer.Restore(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.CurrentThreadID())

	h, err := sess.Submit(ctx, "hi")
	require.NoError(t, err)
	state, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, stream.Finalized, state)

	th, ok := sess.Current()
	require.True(t, ok)
	assert.Equal(t, "gpt-4", th.Model)
	require.Len(t, th.Messages, 2)
	assert.Equal(t, store.RoleUser, th.Messages[0].Role)
	assert.Equal(t, "hi", th.Messages[0].Content)
	assert.Equal(t, store.RoleAssistant, th.Messages[1].Role)
	assert.Equal(t, "Hello, world", th.Messages[1].Content)
	assert.False(t, th.Messages[1].IsStreaming)
	assert.Greater(t, th.Messages[1].Timestamp, th.Messages[0].Timestamp)
	assert.Equal(t, h.Timestamp, th.Messages[1].Timestamp)

	require.Len(t, tr.requests, 1)
	assert.Equal(t, th.ID, tr.requests[0].ThreadID)
	assert.Empty(t, tr.requests[0].History)
}

func TestSubmitCarriesHistory(t *testing.T) {
	ctx := context.Background()
	tr := &scriptedTransport{fragments: []string{"ok"}}
	sess, _, restorer := newSession(t, tr)
	_, err := restorer.Restore(ctx)
	require.NoError(t, err)

	for _, text := range []string{"one", "two"} {
		h, err := sess.Submit(ctx, text)
		require.NoError(t, err)
		_, _ = h.Wait()
	}

	require.Len(t, tr.requests, 2)
	hist := tr.requests[1].History
	require.Len(t, hist, 2)
	assert.Equal(t, "one", hist[0].Content)
	assert.Equal(t, "ok", hist[1].Content)
	assert.Equal(t, tr.requests[0].ThreadID, tr.requests[1].ThreadID)
}

func TestSubmitRejectsBlank(t *testing.T) {
	ctx := context.Background()
	sess, st, restorer := newSession(t, &scriptedTransport{})
	_, err := restorer.Restore(ctx)
	require.NoError(t, err)

	_, err = sess.Submit(ctx, "  \n\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, st.Len())
}

func TestSubmitWaitsForRestoration(t *testing.T) {
	sess, _, restorer := newSession(t, &scriptedTransport{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sess.Submit(ctx, "hi")
	assert.ErrorIs(t, err, ErrNotRestored)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() {
		h, err := sess.Submit(context.Background(), "hi")
		if err == nil {
			_, err = h.Wait()
		}
		done <- err
	}()
	_, err = restorer.Restore(context.Background())
	require.NoError(t, err)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not proceed after restoration")
	}
}

func TestThreadManagement(t *testing.T) {
	ctx := context.Background()
	sess, st, restorer := newSession(t, &scriptedTransport{fragments: []string{"a"}})
	_, err := restorer.Restore(ctx)
	require.NoError(t, err)

	h, err := sess.Submit(ctx, "first")
	require.NoError(t, err)
	_, _ = h.Wait()
	first := st.CurrentThreadID()

	second, err := sess.NewThread(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	again, err := sess.NewThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, again, "empty current thread is reused")

	require.NoError(t, sess.Switch(ctx, first))
	assert.Equal(t, first, st.CurrentThreadID())
	assert.ErrorIs(t, sess.Switch(ctx, "missing"), ErrUnknownThread)

	require.NoError(t, sess.Rename(ctx, first, "  Greetings "))
	th, _ := st.GetThread(first)
	assert.Equal(t, "Greetings", th.Name)
	assert.ErrorIs(t, sess.Rename(ctx, first, " "), ErrEmptyName)
	assert.ErrorIs(t, sess.Rename(ctx, "missing", "x"), ErrUnknownThread)

	got, ok := sess.Resolve(first[:8])
	require.True(t, ok)
	assert.Equal(t, first, got.ID)

	require.NoError(t, sess.Delete(ctx, first))
	assert.Equal(t, second, st.CurrentThreadID())
	assert.Len(t, sess.Threads(), 1)
	require.NoError(t, sess.Delete(ctx, "missing"))
}
