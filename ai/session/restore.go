// Package session decides which thread is active when the application starts.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hrygo/xflo/store"
)

// SelectThread returns the thread that should be current after a load, or ""
// when no thread exists. The order is: a current thread that still exists, the
// last-active thread if it still exists, then the thread with the greatest LastActive.
func SelectThread(st store.State) string {
	if st.Has(st.CurrentThreadID) {
		return st.CurrentThreadID
	}
	if st.Has(st.LastActiveThread) {
		return st.LastActiveThread
	}

	var (
		best       string
		bestActive int64
	)
	for _, t := range st.Threads {
		if best == "" || t.LastActive > bestActive {
			best, bestActive = t.ID, t.LastActive
		}
	}
	return best
}

// Store is the part of the thread store the restorer needs.
type Store interface {
	State() store.State
	SetCurrentThreadID(ctx context.Context, threadID string) error
	Len() int
}

// Restorer applies SelectThread exactly once per process.
type Restorer struct {
	store Store

	once      sync.Once
	restoring atomic.Bool
	ready     chan struct{}
	selected  string
}

// NewRestorer creates a restorer in the restoring state.
func NewRestorer(s Store) *Restorer {
	r := &Restorer{store: s, ready: make(chan struct{})}
	r.restoring.Store(true)
	return r
}

// Restore selects the current thread. Only the first call has any effect; later
// calls return the thread chosen by the first.
func (r *Restorer) Restore(ctx context.Context) (string, error) {
	var err error
	r.once.Do(func() {
		defer func() {
			r.restoring.Store(false)
			close(r.ready)
		}()

		st := r.store.State()
		r.selected = SelectThread(st)
		if r.selected == "" || r.selected == st.CurrentThreadID {
			slog.Debug("session restored", "thread_id", r.selected, "threads", len(st.Threads))
			return
		}
		err = r.store.SetCurrentThreadID(ctx, r.selected)
		slog.Debug("session restored", "thread_id", r.selected, "threads", len(st.Threads))
	})
	return r.selected, err
}

// IsRestoring reports whether Restore has not completed yet. Submission is
// blocked while it is true.
func (r *Restorer) IsRestoring() bool {
	return r.restoring.Load()
}

// Ready is closed once restoration has completed.
func (r *Restorer) Ready() <-chan struct{} {
	return r.ready
}

// Wait blocks until restoration completes or ctx is done.
func (r *Restorer) Wait(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HasThreads reports whether the store holds any thread.
func (r *Restorer) HasThreads() bool {
	return r.store.Len() > 0
}
