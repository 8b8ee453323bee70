package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/xflo/ai/metrics"
)

// Streamer runs replies through a Transport, at most one per thread. Submitting
// to a thread cancels the reply already running there and waits for its writer
// to stop before the new transport is opened.
type Streamer struct {
	transport Transport
	sink      MessageSink
	metrics   *metrics.PrometheusExporter

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	mu     sync.Mutex
	active *Handle
}

// StreamerOption configures a Streamer.
type StreamerOption func(*Streamer)

// WithMetrics records stream outcomes on exporter.
func WithMetrics(exporter *metrics.PrometheusExporter) StreamerOption {
	return func(s *Streamer) { s.metrics = exporter }
}

// NewStreamer creates a streamer writing replies into sink.
func NewStreamer(transport Transport, sink MessageSink, opts ...StreamerOption) *Streamer {
	s := &Streamer{
		transport: transport,
		sink:      sink,
		slots:     make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle controls one in-flight reply.
type Handle struct {
	ID        string
	ThreadID  string
	Timestamp int64

	cancel context.CancelCauseFunc
	done   chan struct{}

	// Set before done is closed.
	state State
	err   error
}

// Cancel stops the reply. It is idempotent and safe after completion.
func (h *Handle) Cancel() {
	h.cancel(ErrCancelled)
}

// Done is closed once the reply has reached a terminal state and no further
// writes will be made for it.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the reply is terminal and returns its final state and, for
// Errored, the cause.
func (h *Handle) Wait() (State, error) {
	<-h.done
	return h.state, h.err
}

func (s *Streamer) slotFor(threadID string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[threadID]
	if !ok {
		sl = &slot{}
		s.slots[threadID] = sl
	}
	return sl
}

// Submit writes the streaming placeholder at timestamp and starts the reply for
// req.ThreadID. Transport failures never surface here: they finalize the message
// and are reported through the handle.
func (s *Streamer) Submit(ctx context.Context, req Request, timestamp int64) *Handle {
	sl := s.slotFor(req.ThreadID)
	sl.mu.Lock()
	if prev := sl.active; prev != nil {
		prev.cancel(ErrSuperseded)
		<-prev.done
	}

	streamCtx, cancel := context.WithCancelCause(ctx)
	h := &Handle{
		ID:        shortuuid.New(),
		ThreadID:  req.ThreadID,
		Timestamp: timestamp,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	sl.active = h

	writeCtx := context.WithoutCancel(ctx)
	reducer := NewReducer(s.sink, req.ThreadID, timestamp)
	if err := reducer.Start(writeCtx); err != nil {
		slog.Warn("stream_placeholder_persist_failed", "thread_id", req.ThreadID, "request_id", h.ID, "error", err)
	}
	// Open outside the slot lock so a newer submission can cancel a slow dial.
	sl.mu.Unlock()

	name := s.transport.Name()
	start := time.Now()
	s.metrics.RecordStreamStarted(name)
	slog.Debug("stream_opening", "thread_id", req.ThreadID, "request_id", h.ID, "transport", name, "model", req.Model)

	stream, err := s.transport.Open(streamCtx, req)
	if err != nil {
		if cause := context.Cause(streamCtx); cause != nil {
			err = cause
		}
		s.finish(writeCtx, h, reducer, err, name, start)
		return h
	}

	go s.pump(streamCtx, writeCtx, h, reducer, stream, name, start)
	return h
}

func (s *Streamer) pump(ctx, writeCtx context.Context, h *Handle, r *Reducer, stream Stream, name string, start time.Time) {
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer func() {
		stop()
		_ = stream.Close()
	}()

	for {
		ev, err := stream.Recv()
		if cause := context.Cause(ctx); cause != nil {
			s.finish(writeCtx, h, r, cause, name, start)
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrIncomplete
			}
			s.finish(writeCtx, h, r, err, name, start)
			return
		}

		kind := ev.Kind()
		if err := r.Apply(writeCtx, ev); err != nil {
			slog.Warn("stream_persist_failed", "thread_id", h.ThreadID, "request_id", h.ID, "error", err)
		}
		if kind == KindContent || (kind == KindMetadata && ev.Content != nil) {
			s.metrics.RecordChunk()
		}
		if r.State().Terminal() {
			s.finish(writeCtx, h, r, nil, name, start)
			return
		}
	}
}

// finish fails the reducer with cause when it is not yet terminal, records the
// outcome and releases the handle.
func (s *Streamer) finish(ctx context.Context, h *Handle, r *Reducer, cause error, name string, start time.Time) {
	if cause != nil && !r.State().Terminal() {
		if err := r.Fail(ctx, cause); err != nil {
			slog.Warn("stream_persist_failed", "thread_id", h.ThreadID, "request_id", h.ID, "error", err)
		}
	}

	outcome := metrics.OutcomeFinalized
	switch {
	case r.State() == Finalized:
	case errors.Is(cause, ErrSuperseded), errors.Is(cause, ErrCancelled), errors.Is(cause, context.Canceled):
		outcome = metrics.OutcomeCancelled
	default:
		outcome = metrics.OutcomeErrored
	}
	elapsed := time.Since(start)
	s.metrics.RecordStreamFinished(name, outcome, elapsed)

	if r.State() == Errored {
		slog.Warn("stream_errored",
			"thread_id", h.ThreadID,
			"request_id", h.ID,
			"outcome", outcome,
			"chunks", r.Chunks(),
			"duration_ms", elapsed.Milliseconds(),
			"error", cause)
	} else {
		slog.Debug("stream_finalized",
			"thread_id", h.ThreadID,
			"request_id", h.ID,
			"chunks", r.Chunks(),
			"duration_ms", elapsed.Milliseconds())
	}

	h.state = r.State()
	if h.state == Errored {
		h.err = cause
	}
	h.cancel(nil)
	close(h.done)
}

// Cancel stops the reply running for threadID, if any, and waits for it to finish.
func (s *Streamer) Cancel(threadID string) {
	s.mu.Lock()
	sl, ok := s.slots[threadID]
	s.mu.Unlock()
	if !ok {
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if h := sl.active; h != nil {
		h.Cancel()
		<-h.done
		sl.active = nil
	}
}

// Forget cancels any reply for threadID and drops its slot.
func (s *Streamer) Forget(threadID string) {
	s.Cancel(threadID)
	s.mu.Lock()
	delete(s.slots, threadID)
	s.mu.Unlock()
}

// Active returns the handle of the reply currently running for threadID.
func (s *Streamer) Active(threadID string) (*Handle, bool) {
	s.mu.Lock()
	sl, ok := s.slots[threadID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	h := sl.active
	if h == nil {
		return nil, false
	}
	select {
	case <-h.done:
		return nil, false
	default:
		return h, true
	}
}

// Shutdown cancels every running reply and waits for all of them.
func (s *Streamer) Shutdown() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Cancel(id)
	}
}
