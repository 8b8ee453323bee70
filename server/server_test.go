package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/xflo/ai"
	"github.com/hrygo/xflo/ai/metrics"
	"github.com/hrygo/xflo/internal/profile"
)

type stubCompleter struct {
	title string
	err   error
	got   []ai.ChatMessage
}

func (s *stubCompleter) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	s.got = messages
	return s.title, s.err
}

func newTestServer(t *testing.T, c ai.Completer, p *profile.Profile) *Server {
	t.Helper()
	if p == nil {
		p = &profile.Profile{TitleRPS: 100, TitleBurst: 100, MetricsEnable: true}
	}
	s, err := NewServer(context.Background(), p, c, metrics.NewPrometheusExporter(metrics.DefaultConfig()))
	require.NoError(t, err)
	return s
}

func postTitle(t *testing.T, s *Server, body string) (int, ai.TitleResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/generate-title", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp ai.TitleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

const refundRequest = `{"messages":[{"role":"system","content":"Create a title"},{"role":"user","content":"What's the refund policy?"}]}`

func TestGenerateTitle(t *testing.T) {
	c := &stubCompleter{title: " Refund Policy Question "}
	s := newTestServer(t, c, nil)

	code, resp := postTitle(t, s, refundRequest)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Refund Policy Question", resp.Title)
	require.Len(t, c.got, 2)
	assert.Equal(t, ai.ChatMessage{Role: "user", Content: "What's the refund policy?"}, c.got[1])
}

func TestGenerateTitleFailures(t *testing.T) {
	tests := []struct {
		name string
		c    *stubCompleter
		body string
		code int
	}{
		{"upstream error", &stubCompleter{err: errors.New("boom")}, refundRequest, http.StatusInternalServerError},
		{"malformed body", &stubCompleter{title: "x"}, `{"messages":`, http.StatusBadRequest},
		{"no messages", &stubCompleter{title: "x"}, `{"messages":[]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := postTitle(t, newTestServer(t, tt.c, nil), tt.body)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, ai.FallbackTitle, resp.Title)
		})
	}
}

func TestGenerateTitleEmptyCompletion(t *testing.T) {
	code, resp := postTitle(t, newTestServer(t, &stubCompleter{title: "  "}, nil), refundRequest)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, ai.FallbackTitle, resp.Title)
}

func TestGenerateTitleRateLimited(t *testing.T) {
	s := newTestServer(t, &stubCompleter{title: "T"}, &profile.Profile{TitleRPS: 0.001, TitleBurst: 1})

	code, _ := postTitle(t, s, refundRequest)
	assert.Equal(t, http.StatusOK, code)
	code, resp := postTitle(t, s, refundRequest)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, ai.FallbackTitle, resp.Title)
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t, &stubCompleter{title: "T"}, nil)
	postTitle(t, s, refundRequest)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "xflo_title_requests_total")
}

func TestMetricsDisabled(t *testing.T) {
	s := newTestServer(t, &stubCompleter{}, &profile.Profile{TitleRPS: 1, TitleBurst: 1})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewServerRequiresCompleter(t *testing.T) {
	_, err := NewServer(context.Background(), &profile.Profile{}, nil, nil)
	assert.Error(t, err)
}
