package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const (
	sseStreamPath   = "/chat/stream"
	sseMaxLineBytes = 1024 * 1024 // 1MB
	sseDoneSentinel = "[DONE]"
)

// SSETransport opens server-sent event streams against the chat API:
//
//	GET {BaseURL}/chat/stream?message=...&model=...&thread_id=...
type SSETransport struct {
	BaseURL string
	Client  *http.Client
}

// NewSSETransport creates a transport for the chat API at baseURL.
func NewSSETransport(baseURL string, client *http.Client) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	return &SSETransport{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

func (t *SSETransport) Name() string { return "sse" }

func (t *SSETransport) Open(ctx context.Context, req Request) (Stream, error) {
	q := url.Values{}
	q.Set("message", req.Message)
	if req.Model != "" {
		q.Set("model", req.Model)
	}
	if req.ThreadID != "" {
		q.Set("thread_id", req.ThreadID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+sseStreamPath+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("open event stream: %w", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), sseMaxLineBytes)
	return &sseStream{body: resp.Body, scanner: scanner}, nil
}

type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	data    bytes.Buffer
	once    sync.Once
}

// Recv returns the next event. Multi-line data fields are joined with newlines
// and dispatched on a blank line; comments, other fields and malformed frames are skipped.
func (s *sseStream) Recv() (Event, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if s.data.Len() == 0 {
				continue
			}
			ev, done, err := s.dispatch()
			if done {
				return Event{}, io.EOF
			}
			if err != nil {
				slog.Warn("stream_frame_malformed", "transport", "sse", "error", err)
				continue
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		if s.data.Len() > 0 {
			s.data.WriteByte('\n')
		}
		s.data.WriteString(value)
	}
	if err := s.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("read event stream: %w", err)
	}
	// Flush a final frame without a trailing blank line.
	if s.data.Len() > 0 {
		ev, done, err := s.dispatch()
		if !done && err == nil {
			return ev, nil
		}
	}
	return Event{}, io.EOF
}

func (s *sseStream) dispatch() (Event, bool, error) {
	payload := s.data.Bytes()
	defer s.data.Reset()
	if string(payload) == sseDoneSentinel {
		return Event{}, true, nil
	}
	ev, err := DecodeEvent(payload)
	return ev, false, err
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}
