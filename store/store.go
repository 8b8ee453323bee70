package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ChangeKind classifies a store mutation delivered to listeners.
type ChangeKind int

const (
	ThreadCreated ChangeKind = iota + 1
	ThreadDeleted
	ThreadRenamed
	MessageAppended
	MessageMerged
	MessageUpdated
	CurrentChanged
)

func (k ChangeKind) String() string {
	switch k {
	case ThreadCreated:
		return "thread_created"
	case ThreadDeleted:
		return "thread_deleted"
	case ThreadRenamed:
		return "thread_renamed"
	case MessageAppended:
		return "message_appended"
	case MessageMerged:
		return "message_merged"
	case MessageUpdated:
		return "message_updated"
	case CurrentChanged:
		return "current_changed"
	default:
		return "unknown"
	}
}

// Change describes one mutation. Timestamp is set for message changes.
type Change struct {
	Kind            ChangeKind
	ThreadID        string
	Timestamp       int64
	CurrentThreadID string
}

// Listener receives changes after the mutation is applied and persisted.
type Listener func(Change)

// PersistRecorder observes the outcome of every snapshot write.
type PersistRecorder interface {
	RecordPersist(err error)
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the timestamp source for thread bookkeeping.
func WithClock(c *Clock) Option {
	return func(s *Store) { s.clock = c }
}

// DefaultStreamingFlushInterval bounds how often merges into a message that is
// still streaming are written to the driver.
const DefaultStreamingFlushInterval = 500 * time.Millisecond

// WithStreamingFlushInterval sets the minimum time between snapshot writes
// caused by merges into a streaming message. Zero writes on every merge.
// Any other mutation, including the one finalizing the message, writes at once.
func WithStreamingFlushInterval(d time.Duration) Option {
	return func(s *Store) { s.streamFlush = d }
}

// WithPersistRecorder sets the observer notified of persistence outcomes.
func WithPersistRecorder(r PersistRecorder) Option {
	return func(s *Store) { s.recorder = r }
}

// Store holds every conversation thread plus the current/last-active pointers.
// All mutations go through its methods and are persisted before they return.
type Store struct {
	mu sync.Mutex

	driver   Driver
	clock    *Clock
	recorder PersistRecorder

	streamFlush time.Duration
	now         func() time.Time
	lastPersist time.Time
	// dirty is set while a streaming merge has not been written yet.
	dirty bool

	// threads is kept in insertion order with new threads prepended.
	threads          []*Thread
	currentThreadID  string
	lastActiveThread string

	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextID     int
}

// New creates an empty Store backed by driver. Call Load to hydrate persisted state.
func New(driver Driver, opts ...Option) *Store {
	s := &Store{
		driver:      driver,
		clock:       NewClock(),
		streamFlush: DefaultStreamingFlushInterval,
		now:         time.Now,
		listeners:   make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the store's timestamp source.
func (s *Store) Clock() *Clock {
	return s.clock
}

// Load replaces the in-memory state with the persisted snapshot.
// A missing, corrupt or version-mismatched snapshot yields an empty store.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.driver.Load(ctx, StoreName)
	if err != nil {
		return errors.Wrap(err, "failed to load chat store")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads = nil
	s.currentThreadID = ""
	s.lastActiveThread = ""

	if len(raw) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("discarding unreadable chat store snapshot", "store", StoreName, "error", err)
		return nil
	}
	if env.Version != SchemaVersion {
		slog.Warn("discarding chat store snapshot with mismatched version",
			"store", StoreName,
			"version", env.Version,
			"expected", SchemaVersion,
		)
		return nil
	}

	for i := range env.State.Threads {
		t := env.State.Threads[i]
		if t.Messages == nil {
			t.Messages = []Message{}
		}
		s.threads = append(s.threads, &t)
		s.clock.Observe(t.LastActive)
		for _, m := range t.Messages {
			s.clock.Observe(m.Timestamp)
		}
	}
	s.currentThreadID = env.State.CurrentThreadID
	s.lastActiveThread = env.State.LastActiveThread

	slog.Debug("chat store loaded",
		"threads", len(s.threads),
		"current_thread_id", s.currentThreadID,
		"last_active_thread", s.lastActiveThread,
	)
	return nil
}

// Subscribe registers l and returns a function removing it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

func (s *Store) notify(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	s.listenerMu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.listenerMu.RUnlock()

	for _, c := range changes {
		for _, l := range ls {
			l(c)
		}
	}
}

// CreateThread returns the current thread's id if it has no messages yet.
// Otherwise it creates a thread bound to model, makes it current and returns its id.
func (s *Store) CreateThread(ctx context.Context, model string) (string, error) {
	s.mu.Lock()
	if cur := s.find(s.currentThreadID); cur != nil && len(cur.Messages) == 0 {
		s.mu.Unlock()
		return cur.ID, nil
	}

	now := s.clock.Next()
	t := &Thread{
		ID:         uuid.NewString(),
		Model:      model,
		Messages:   []Message{},
		CreatedAt:  now,
		LastActive: now,
	}
	s.threads = append([]*Thread{t}, s.threads...)
	s.currentThreadID = t.ID
	s.lastActiveThread = t.ID
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(
		Change{Kind: ThreadCreated, ThreadID: t.ID, CurrentThreadID: t.ID},
		Change{Kind: CurrentChanged, ThreadID: t.ID, CurrentThreadID: t.ID},
	)
	return t.ID, err
}

// DeleteThread removes a thread. When it was current, the most recently active
// remaining thread becomes current; when it was the last-active thread, that pointer follows.
// Unknown ids are ignored.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	idx := s.indexOf(threadID)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	s.threads = append(s.threads[:idx:idx], s.threads[idx+1:]...)

	changes := []Change{{Kind: ThreadDeleted, ThreadID: threadID}}
	newCurrent := s.currentThreadID
	if s.currentThreadID == threadID {
		newCurrent = s.mostRecentLocked()
		s.currentThreadID = newCurrent
		changes = append(changes, Change{Kind: CurrentChanged, ThreadID: newCurrent, CurrentThreadID: newCurrent})
	}
	if s.lastActiveThread == threadID {
		s.lastActiveThread = newCurrent
	}
	for i := range changes {
		changes[i].CurrentThreadID = newCurrent
	}
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	slog.Debug("thread deleted", "thread_id", threadID, "current_thread_id", newCurrent)
	s.notify(changes...)
	return err
}

// AddMessage appends m to the thread, or merges it into the existing message
// carrying the same timestamp. Unknown thread ids are ignored.
func (s *Store) AddMessage(ctx context.Context, threadID string, m Message) error {
	s.mu.Lock()
	t := s.find(threadID)
	if t == nil {
		s.mu.Unlock()
		return nil
	}

	kind := MessageAppended
	streaming := false
	if i := t.indexOf(m.Timestamp); i >= 0 {
		t.Messages[i].merge(m)
		kind = MessageMerged
		streaming = t.Messages[i].IsStreaming
	} else {
		m.Metadata = m.Metadata.clone()
		t.Messages = append(t.Messages, m)
	}
	t.LastActive = s.clock.Next()
	s.lastActiveThread = threadID
	current := s.currentThreadID
	var err error
	if streaming {
		err = s.persistStreamingLocked(ctx)
	} else {
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: kind, ThreadID: threadID, Timestamp: m.Timestamp, CurrentThreadID: current})
	return err
}

// UpdateMessage merges u into the message identified by timestamp.
// It does nothing when the thread or the message does not exist.
func (s *Store) UpdateMessage(ctx context.Context, threadID string, timestamp int64, u MessageUpdate) error {
	s.mu.Lock()
	t := s.find(threadID)
	if t == nil {
		s.mu.Unlock()
		return nil
	}
	i := t.indexOf(timestamp)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	t.Messages[i].apply(u)
	t.LastActive = s.clock.Next()
	current := s.currentThreadID
	var err error
	if t.Messages[i].IsStreaming {
		err = s.persistStreamingLocked(ctx)
	} else {
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: MessageUpdated, ThreadID: threadID, Timestamp: timestamp, CurrentThreadID: current})
	return err
}

// GetThread returns a copy of the thread.
func (s *Store) GetThread(threadID string) (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(threadID)
	if t == nil {
		return Thread{}, false
	}
	return t.clone(), true
}

// SetCurrentThreadID selects the current thread. An empty id clears the selection
// but keeps the last-active pointer.
func (s *Store) SetCurrentThreadID(ctx context.Context, threadID string) error {
	s.mu.Lock()
	changed := s.currentThreadID != threadID
	s.currentThreadID = threadID
	if threadID != "" {
		s.lastActiveThread = threadID
	}
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: CurrentChanged, ThreadID: threadID, CurrentThreadID: threadID})
	}
	return err
}

// UpdateThreadName sets the thread's name. Unknown ids are ignored.
func (s *Store) UpdateThreadName(ctx context.Context, threadID, name string) error {
	s.mu.Lock()
	t := s.find(threadID)
	if t == nil {
		s.mu.Unlock()
		return nil
	}
	t.Name = name
	current := s.currentThreadID
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(Change{Kind: ThreadRenamed, ThreadID: threadID, CurrentThreadID: current})
	return err
}

// Threads returns copies of all threads ordered by LastActive, most recent first.
func (s *Store) Threads() []Thread {
	s.mu.Lock()
	out := make([]Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.clone())
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActive > out[j].LastActive
	})
	return out
}

// State returns a copy of the store contents in storage order.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// CurrentThreadID returns the current thread id, or "" when none is selected.
func (s *Store) CurrentThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentThreadID
}

// LastActiveThread returns the most recently selected thread id.
func (s *Store) LastActiveThread() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveThread
}

// Len returns the number of threads.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

func (s *Store) stateLocked() State {
	st := State{
		Threads:          make([]Thread, 0, len(s.threads)),
		CurrentThreadID:  s.currentThreadID,
		LastActiveThread: s.lastActiveThread,
	}
	for _, t := range s.threads {
		st.Threads = append(st.Threads, t.clone())
	}
	return st
}

// Flush writes a snapshot when streaming merges are still pending.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.persistLocked(ctx)
}

// persistStreamingLocked defers the write when the last one is more recent than
// the streaming flush interval.
func (s *Store) persistStreamingLocked(ctx context.Context) error {
	if s.streamFlush > 0 && s.now().Sub(s.lastPersist) < s.streamFlush {
		s.dirty = true
		return nil
	}
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(envelope{Version: SchemaVersion, State: s.stateLocked()})
	if err == nil {
		err = s.driver.Save(ctx, StoreName, raw)
	}
	s.lastPersist = s.now()
	s.dirty = err != nil
	if s.recorder != nil {
		s.recorder.RecordPersist(err)
	}
	if err != nil {
		slog.Error("failed to persist chat store", "store", StoreName, "error", err)
		return errors.Wrap(err, "failed to persist chat store")
	}
	return nil
}

func (s *Store) find(threadID string) *Thread {
	if i := s.indexOf(threadID); i >= 0 {
		return s.threads[i]
	}
	return nil
}

func (s *Store) indexOf(threadID string) int {
	if threadID == "" {
		return -1
	}
	for i, t := range s.threads {
		if t.ID == threadID {
			return i
		}
	}
	return -1
}

// mostRecentLocked returns the id of the thread with the greatest LastActive,
// preferring earlier storage positions on ties, or "" when no threads remain.
func (s *Store) mostRecentLocked() string {
	var best *Thread
	for _, t := range s.threads {
		if best == nil || t.LastActive > best.LastActive {
			best = t
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}
