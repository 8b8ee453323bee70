package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/xflo/ai"
	"github.com/hrygo/xflo/ai/metrics"
	"github.com/hrygo/xflo/ai/naming"
	"github.com/hrygo/xflo/ai/session"
	"github.com/hrygo/xflo/ai/stream"
	"github.com/hrygo/xflo/internal/chat"
	"github.com/hrygo/xflo/internal/profile"
	"github.com/hrygo/xflo/store"
	"github.com/hrygo/xflo/store/db"
)

// app owns every long-lived component of an interactive session.
type app struct {
	profile  *profile.Profile
	driver   store.Driver
	store    *store.Store
	exporter *metrics.PrometheusExporter
	streamer *stream.Streamer
	restorer *session.Restorer
	namer    *naming.Namer
	session  *chat.Session
	detach   func()
}

// openStore opens the configured driver and loads the persisted threads.
func openStore(ctx context.Context, p *profile.Profile, opts ...store.Option) (store.Driver, *store.Store, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		printDatabaseError(err, p)
		return nil, nil, err
	}
	s := store.New(driver, opts...)
	if err := s.Load(ctx); err != nil {
		_ = driver.Close()
		return nil, nil, errors.Wrap(err, "failed to load threads")
	}
	return driver, s, nil
}

func newApp(ctx context.Context, p *profile.Profile) (*app, error) {
	a := &app{profile: p, exporter: metrics.NewPrometheusExporter(metrics.DefaultConfig())}

	var err error
	a.driver, a.store, err = openStore(ctx, p, store.WithPersistRecorder(a.exporter))
	if err != nil {
		return nil, err
	}

	transport, err := newTransport(p)
	if err != nil {
		_ = a.driver.Close()
		return nil, err
	}
	a.streamer = stream.NewStreamer(transport, a.store, stream.WithMetrics(a.exporter))

	a.restorer = session.NewRestorer(a.store)

	titles, err := newTitleGenerator(p)
	if err != nil {
		_ = a.driver.Close()
		return nil, err
	}
	a.namer = naming.New(a.store, titles,
		naming.WithTimeout(time.Duration(p.LLMTimeout)*time.Second),
		naming.WithMetrics(a.exporter))
	a.detach = a.namer.Attach(context.WithoutCancel(ctx))

	if _, err := a.restorer.Restore(ctx); err != nil {
		slog.Warn("session_restore_failed", "error", err)
	}

	a.session = chat.NewSession(a.store, a.streamer, a.restorer, p.Model)
	return a, nil
}

// Close stops in-flight replies and title requests, then closes storage.
func (a *app) Close() {
	a.detach()
	a.streamer.Shutdown()
	a.namer.Wait()
	if err := a.store.Flush(context.Background()); err != nil {
		slog.Warn("failed to flush threads", "error", err)
	}
	if err := a.driver.Close(); err != nil {
		slog.Warn("failed to close storage", "error", err)
	}
}

func newTransport(p *profile.Profile) (stream.Transport, error) {
	switch p.Transport {
	case "sse":
		return stream.NewSSETransport(p.APIURL, nil), nil
	case "websocket":
		return stream.NewWebSocketTransport(p.APIURL)
	case "openai":
		return stream.NewOpenAITransport(stream.OpenAIConfig{
			APIKey:  p.LLMAPIKey,
			BaseURL: p.LLMBaseURL,
			Model:   p.Model,
		}), nil
	default:
		return nil, errors.Errorf("unsupported transport %q", p.Transport)
	}
}

// newTitleGenerator calls the completion API directly when a key is configured
// and no title endpoint was named; otherwise it posts to the title endpoint.
func newTitleGenerator(p *profile.Profile) (naming.TitleGenerator, error) {
	prompt, err := ai.LoadTitlePromptConfig(p.PromptDir)
	if err != nil {
		return nil, err
	}
	if p.TitleAPIURL == "" && p.LLMAPIKey != "" {
		return ai.NewTitleGenerator(ai.TitleGeneratorConfig{
			APIKey:  p.LLMAPIKey,
			BaseURL: p.LLMBaseURL,
			Model:   p.LLMTitleModel,
			Prompt:  prompt,
		}), nil
	}
	return ai.NewTitleClient(p.TitleEndpoint(), nil, prompt), nil
}
