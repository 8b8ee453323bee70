package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/hrygo/xflo/ai/stream"
	"github.com/hrygo/xflo/export"
	"github.com/hrygo/xflo/internal/chat"
	"github.com/hrygo/xflo/store"
)

const replHelp = `Commands:
  /new               start a new thread
  /threads           list threads, current first marked with *
  /switch <id>       switch to a thread by id or id prefix
  /rename <name>     rename the current thread
  /delete [id]       delete a thread, the current one by default
  /export [format]   print the current thread as markdown or html
  /quit              leave
Anything else is sent as a message. Ctrl-C stops the reply being streamed.`

// repl is the interactive front end: it reads lines, submits messages and
// prints the assistant reply as the store receives it.
type repl struct {
	session *chat.Session
	store   *store.Store
	in      io.Reader
	out     io.Writer

	mu      sync.Mutex
	active  *stream.Handle
	printed int
}

func newREPL(s *chat.Session, st *store.Store, in io.Reader, out io.Writer) *repl {
	return &repl{session: s, store: st, in: in, out: out}
}

// Run reads commands until EOF, /quit or ctx ends.
func (r *repl) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if !r.cancelActive() {
					cancel()
				}
			}
		}
	}()

	unsubscribe := r.store.Subscribe(r.onChange)
	defer unsubscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.printCurrent()
	for {
		fmt.Fprint(r.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			if quit := r.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	var err error
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/new":
		var id string
		if id, err = r.session.NewThread(ctx); err == nil {
			fmt.Fprintf(r.out, "new thread %s\n", shortID(id))
		}
	case "/threads":
		printThreads(r.out, r.session.Threads(), r.store.CurrentThreadID())
	case "/switch":
		th, ok := r.session.Resolve(arg)
		if !ok {
			err = chat.ErrUnknownThread
			break
		}
		if err = r.session.Switch(ctx, th.ID); err == nil {
			r.printCurrent()
		}
	case "/rename":
		err = r.session.Rename(ctx, r.store.CurrentThreadID(), arg)
	case "/delete":
		id := r.store.CurrentThreadID()
		if arg != "" {
			th, ok := r.session.Resolve(arg)
			if !ok {
				err = chat.ErrUnknownThread
				break
			}
			id = th.ID
		}
		if err = r.session.Delete(ctx, id); err == nil {
			fmt.Fprintf(r.out, "deleted %s\n", shortID(id))
			r.printCurrent()
		}
	case "/export":
		var f export.Format
		if f, err = export.ParseFormat(arg); err != nil {
			break
		}
		th, ok := r.session.Current()
		if !ok {
			err = chat.ErrUnknownThread
			break
		}
		err = export.Write(r.out, th, f)
	default:
		err = fmt.Errorf("unknown command %s, try /help", cmd)
	}
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
	}
	return false
}

func (r *repl) send(ctx context.Context, text string) {
	h, err := r.session.Submit(ctx, text)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}

	r.mu.Lock()
	r.active, r.printed = h, 0
	r.mu.Unlock()
	r.flush()

	select {
	case <-h.Done():
	case <-ctx.Done():
		h.Cancel()
		<-h.Done()
	}
	r.flush()

	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()

	_, cause := h.Wait()
	fmt.Fprintln(r.out)
	if cause != nil && !errors.Is(cause, stream.ErrCancelled) {
		fmt.Fprintf(r.out, "error: %v\n", cause)
	}
}

func (r *repl) onChange(c store.Change) {
	switch c.Kind {
	case store.MessageAppended, store.MessageMerged, store.MessageUpdated:
	default:
		return
	}
	r.mu.Lock()
	h := r.active
	r.mu.Unlock()
	if h != nil && c.ThreadID == h.ThreadID && c.Timestamp == h.Timestamp {
		r.flush()
	}
}

// flush prints the part of the active reply not written yet.
func (r *repl) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return
	}
	th, ok := r.store.GetThread(r.active.ThreadID)
	if !ok {
		return
	}
	for _, m := range th.Messages {
		if m.Timestamp != r.active.Timestamp {
			continue
		}
		if len(m.Content) > r.printed {
			fmt.Fprint(r.out, m.Content[r.printed:])
			r.printed = len(m.Content)
		}
		return
	}
}

func (r *repl) cancelActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return false
	}
	r.active.Cancel()
	return true
}

func (r *repl) printCurrent() {
	th, ok := r.session.Current()
	if !ok {
		fmt.Fprintln(r.out, "no thread selected, your first message starts one")
		return
	}
	fmt.Fprintf(r.out, "thread %s  %s  (%d messages)\n", shortID(th.ID), displayName(th), len(th.Messages))
}
