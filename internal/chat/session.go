// Package chat wires the thread store, the reply streamer and the restoration
// gate into the operations a chat front end calls.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/xflo/ai/session"
	"github.com/hrygo/xflo/ai/stream"
	"github.com/hrygo/xflo/store"
)

var (
	// ErrEmptyMessage rejects a submission with no visible text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNotRestored is returned when restoration did not finish before ctx ended.
	ErrNotRestored = errors.New("session restoration has not completed")
	// ErrUnknownThread is returned when switching to or renaming a missing thread.
	ErrUnknownThread = errors.New("thread not found")
	// ErrEmptyName rejects a blank thread name.
	ErrEmptyName = errors.New("thread name is empty")
)

// Session is the chat front end's view of the conversation store.
type Session struct {
	store    *store.Store
	streamer *stream.Streamer
	restorer *session.Restorer
	model    string
}

// NewSession creates a session that binds new threads to model.
func NewSession(s *store.Store, streamer *stream.Streamer, restorer *session.Restorer, model string) *Session {
	return &Session{store: s, streamer: streamer, restorer: restorer, model: model}
}

// Submit appends text as a user message to the current thread, creating one when
// none is selected, and starts the assistant reply. It blocks until session
// restoration has completed.
func (s *Session) Submit(ctx context.Context, text string) (*stream.Handle, error) {
	if err := s.restorer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotRestored, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	threadID := s.store.CurrentThreadID()
	th, ok := s.store.GetThread(threadID)
	if !ok {
		id, err := s.store.CreateThread(ctx, s.model)
		if err != nil {
			slog.Warn("thread_persist_failed", "thread_id", id, "error", err)
		}
		threadID = id
		th, _ = s.store.GetThread(threadID)
	}

	clock := s.store.Clock()
	if err := s.store.AddMessage(ctx, threadID, store.Message{
		Role:      store.RoleUser,
		Content:   text,
		Timestamp: clock.Next(),
	}); err != nil {
		slog.Warn("message_persist_failed", "thread_id", threadID, "error", err)
	}

	model := th.Model
	if model == "" {
		model = s.model
	}
	return s.streamer.Submit(ctx, stream.Request{
		ThreadID: threadID,
		Model:    model,
		Message:  text,
		History:  th.Messages,
	}, clock.Next()), nil
}

// NewThread starts a new conversation, or returns the current one when it is still empty.
func (s *Session) NewThread(ctx context.Context) (string, error) {
	return s.store.CreateThread(ctx, s.model)
}

// Switch makes threadID current.
func (s *Session) Switch(ctx context.Context, threadID string) error {
	if _, ok := s.store.GetThread(threadID); !ok {
		return ErrUnknownThread
	}
	return s.store.SetCurrentThreadID(ctx, threadID)
}

// Delete stops any reply running in threadID and removes the thread.
func (s *Session) Delete(ctx context.Context, threadID string) error {
	s.streamer.Forget(threadID)
	return s.store.DeleteThread(ctx, threadID)
}

// Rename sets the thread name explicitly.
func (s *Session) Rename(ctx context.Context, threadID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if _, ok := s.store.GetThread(threadID); !ok {
		return ErrUnknownThread
	}
	return s.store.UpdateThreadName(ctx, threadID, name)
}

// Current returns the current thread.
func (s *Session) Current() (store.Thread, bool) {
	return s.store.GetThread(s.store.CurrentThreadID())
}

// Threads lists threads, most recently active first.
func (s *Session) Threads() []store.Thread {
	return s.store.Threads()
}

// Resolve finds a thread by full id or unique id prefix.
func (s *Session) Resolve(ref string) (store.Thread, bool) {
	if th, ok := s.store.GetThread(ref); ok {
		return th, true
	}
	if ref == "" {
		return store.Thread{}, false
	}
	var (
		match store.Thread
		n     int
	)
	for _, th := range s.store.Threads() {
		if strings.HasPrefix(th.ID, ref) {
			match = th
			n++
		}
	}
	return match, n == 1
}
