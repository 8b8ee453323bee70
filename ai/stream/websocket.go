package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const websocketPath = "/chat/ws"

// WebSocketTransport opens a websocket per reply, sends the request as the first
// text frame and reads one event per frame until the server closes the connection.
type WebSocketTransport struct {
	URL    string
	Dialer *websocket.Dialer
}

// NewWebSocketTransport derives the websocket endpoint from the chat API base URL.
func NewWebSocketTransport(baseURL string) (*WebSocketTransport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse chat api url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported chat api scheme %q", u.Scheme)
	}
	u.Path += websocketPath

	return &WebSocketTransport{
		URL: u.String(),
		Dialer: &websocket.Dialer{
			HandshakeTimeout: defaultDialTimeout,
			NetDialContext:   (&net.Dialer{Timeout: defaultDialTimeout}).DialContext,
		},
	}, nil
}

func (t *WebSocketTransport) Name() string { return "websocket" }

type websocketRequest struct {
	Message  string `json:"message"`
	Model    string `json:"model,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

func (t *WebSocketTransport) Open(ctx context.Context, req Request) (Stream, error) {
	conn, resp, err := t.Dialer.DialContext(ctx, t.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial chat websocket: %w", checkStatus(resp))
		}
		return nil, fmt.Errorf("dial chat websocket: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(defaultDialTimeout))
	if err := conn.WriteJSON(websocketRequest{
		Message:  req.Message,
		Model:    req.Model,
		ThreadID: req.ThreadID,
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	s := &websocketStream{conn: conn}
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })
	return s, nil
}

type websocketStream struct {
	conn *websocket.Conn
	stop func() bool
	once sync.Once
}

func (s *websocketStream) Recv() (Event, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("read chat websocket: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			slog.Warn("stream_frame_malformed", "transport", "websocket", "error", err)
			continue
		}
		return ev, nil
	}
}

func (s *websocketStream) Close() error {
	var err error
	s.once.Do(func() {
		s.stop()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
