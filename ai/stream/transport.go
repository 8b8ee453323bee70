package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hrygo/xflo/store"
)

var (
	// ErrSuperseded finalizes a reply whose slot was taken by a newer submission.
	ErrSuperseded = errors.New("stream superseded by a new submission")
	// ErrCancelled finalizes a reply cancelled by the caller.
	ErrCancelled = errors.New("stream cancelled")
	// ErrIncomplete is reported when the channel closes before a metadata event.
	ErrIncomplete = errors.New("stream closed before completion")
)

// Request identifies one reply: the thread and model context plus the user's text.
// History holds the earlier messages of the thread for transports that replay context.
type Request struct {
	ThreadID string
	Model    string
	Message  string
	History  []store.Message
}

// Transport opens push channels to the chat backend.
type Transport interface {
	// Name labels metrics and logs.
	Name() string
	// Open starts a reply. The returned Stream is bound to ctx.
	Open(ctx context.Context, req Request) (Stream, error)
}

// Stream yields events in arrival order. Recv returns io.EOF when the channel
// closes cleanly. Close may be called concurrently with Recv and more than once.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

const defaultDialTimeout = 10 * time.Second

// StatusError reports a non-2xx handshake response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "unexpected status " + e.Status
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
}
