package stream

import (
	"context"
	"strings"

	"github.com/hrygo/xflo/store"
)

// FallbackErrorText replaces the reply when a stream fails before any content arrived.
const FallbackErrorText = "Sorry, there was an error processing your message. Please try again."

// State is the lifecycle position of one reply.
type State int

const (
	Idle State = iota
	Streaming
	Finalized
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Finalized:
		return "finalized"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events are accepted.
func (s State) Terminal() bool {
	return s == Finalized || s == Errored
}

// MessageSink receives the message writes produced by a Reducer. *store.Store satisfies it.
type MessageSink interface {
	AddMessage(ctx context.Context, threadID string, m store.Message) error
}

// Reducer accumulates the events of one reply into the assistant message keyed by
// its placeholder timestamp. Events must be applied in arrival order from a single goroutine.
type Reducer struct {
	sink      MessageSink
	threadID  string
	timestamp int64

	buf    strings.Builder
	state  State
	chunks int
}

// NewReducer creates a reducer writing into threadID at the placeholder timestamp.
func NewReducer(sink MessageSink, threadID string, timestamp int64) *Reducer {
	return &Reducer{sink: sink, threadID: threadID, timestamp: timestamp}
}

// State returns the current lifecycle position.
func (r *Reducer) State() State {
	return r.state
}

// Content returns the text accumulated so far.
func (r *Reducer) Content() string {
	return r.buf.String()
}

// Chunks returns the number of content deltas applied.
func (r *Reducer) Chunks() int {
	return r.chunks
}

// Start writes the empty streaming placeholder and moves to Streaming.
func (r *Reducer) Start(ctx context.Context) error {
	if r.state != Idle {
		return nil
	}
	r.state = Streaming
	return r.write(ctx, nil, true)
}

// Apply folds one event into the message. It is a no-op once the reducer is terminal.
// Status and unknown events change nothing.
func (r *Reducer) Apply(ctx context.Context, ev Event) error {
	if r.state.Terminal() {
		return nil
	}
	if r.state == Idle {
		r.state = Streaming
	}

	switch ev.Kind() {
	case KindContent:
		r.buf.WriteString(*ev.Content)
		r.chunks++
		return r.write(ctx, nil, true)
	case KindMetadata:
		if ev.Content != nil {
			r.buf.WriteString(*ev.Content)
			r.chunks++
		}
		r.state = Finalized
		return r.write(ctx, ev.Metadata, false)
	default:
		return nil
	}
}

// Fail finalizes the message with the partial content, or FallbackErrorText when
// nothing arrived, and records cause in the message metadata.
func (r *Reducer) Fail(ctx context.Context, cause error) error {
	if r.state.Terminal() {
		return nil
	}
	r.state = Errored

	meta := &store.MessageMetadata{}
	if cause != nil {
		meta.Error = cause.Error()
	}
	if r.buf.Len() == 0 {
		r.buf.WriteString(FallbackErrorText)
	}
	return r.write(ctx, meta, false)
}

func (r *Reducer) write(ctx context.Context, meta *store.MessageMetadata, streaming bool) error {
	return r.sink.AddMessage(ctx, r.threadID, store.Message{
		Role:        store.RoleAssistant,
		Content:     r.buf.String(),
		Timestamp:   r.timestamp,
		Metadata:    meta,
		IsStreaming: streaming,
	})
}
