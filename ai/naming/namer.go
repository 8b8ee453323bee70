// Package naming gives unnamed threads a short title derived from their first user message.
package naming

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/xflo/ai/metrics"
	"github.com/hrygo/xflo/store"
)

const defaultTimeout = 30 * time.Second

// TitleGenerator produces a title for a conversation from its first user message.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, firstUserMessage string) (string, error)
}

// Store is the part of the thread store the namer reads and writes.
type Store interface {
	GetThread(threadID string) (store.Thread, bool)
	UpdateThreadName(ctx context.Context, threadID, name string) error
	Subscribe(l store.Listener) func()
	CurrentThreadID() string
}

// Namer runs at most one title request at a time.
type Namer struct {
	store   Store
	gen     TitleGenerator
	guard   *semaphore.Weighted
	timeout time.Duration
	metrics *metrics.PrometheusExporter

	pending atomic.Bool
	// missed is set when a trigger found the guard busy.
	missed atomic.Bool
	wg     sync.WaitGroup
}

// Option configures a Namer.
type Option func(*Namer)

// WithTimeout bounds each title request.
func WithTimeout(d time.Duration) Option {
	return func(n *Namer) { n.timeout = d }
}

// WithMetrics records title request outcomes on exporter.
func WithMetrics(exporter *metrics.PrometheusExporter) Option {
	return func(n *Namer) { n.metrics = exporter }
}

// New creates a namer writing titles into s.
func New(s Store, gen TitleGenerator, opts ...Option) *Namer {
	n := &Namer{
		store:   s,
		gen:     gen,
		guard:   semaphore.NewWeighted(1),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Trigger starts a title request for threadID when the thread exists, has no
// name, has a user message and no request is in flight. It reports whether a
// request was started. The request itself runs in the background.
//
// A trigger turned away by an in-flight request is replayed once for the
// current thread when that request succeeds. Failed requests replay nothing.
func (n *Namer) Trigger(ctx context.Context, threadID string) bool {
	if threadID == "" {
		return false
	}
	th, ok := n.store.GetThread(threadID)
	if !ok || th.Name != "" || len(th.Messages) == 0 {
		return false
	}
	first, ok := th.FirstUserMessage()
	if !ok {
		return false
	}
	if !n.guard.TryAcquire(1) {
		n.missed.Store(true)
		return false
	}
	n.pending.Store(true)

	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ok := n.name(ctx, threadID, first)
		missed := n.missed.Swap(false)
		n.pending.Store(false)
		n.guard.Release(1)
		if ok && missed {
			n.Trigger(ctx, n.store.CurrentThreadID())
		}
	}()
	return true
}

// name requests a title and stores it. It reports whether the request succeeded.
func (n *Namer) name(ctx context.Context, threadID, firstMessage string) bool {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	title, err := n.gen.GenerateTitle(ctx, firstMessage)
	title = strings.TrimSpace(title)
	n.metrics.RecordTitleRequest(time.Since(start), err == nil && title != "")
	if err != nil {
		slog.Warn("title_generation_failed", "thread_id", threadID, "error", err)
		return false
	}
	if title == "" {
		slog.Warn("title_generation_failed", "thread_id", threadID, "error", "empty title")
		return false
	}

	// The user may have renamed or deleted the thread while the request ran.
	th, ok := n.store.GetThread(threadID)
	if !ok || th.Name != "" {
		return true
	}
	if err := n.store.UpdateThreadName(ctx, threadID, title); err != nil {
		slog.Warn("thread_name_persist_failed", "thread_id", threadID, "error", err)
		return true
	}
	slog.Debug("thread named", "thread_id", threadID, "title", title,
		"latency_ms", time.Since(start).Milliseconds())
	return true
}

// IsPending reports whether a title request is in flight.
func (n *Namer) IsPending() bool {
	return n.pending.Load()
}

// Wait blocks until every started request has finished.
func (n *Namer) Wait() {
	n.wg.Wait()
}

// Attach triggers naming whenever the current thread changes or a message is
// appended to it. The returned function detaches the namer.
func (n *Namer) Attach(ctx context.Context) func() {
	return n.store.Subscribe(func(c store.Change) {
		switch c.Kind {
		case store.CurrentChanged:
			n.Trigger(ctx, c.CurrentThreadID)
		case store.MessageAppended:
			if c.ThreadID == c.CurrentThreadID {
				n.Trigger(ctx, c.ThreadID)
			}
		}
	})
}
