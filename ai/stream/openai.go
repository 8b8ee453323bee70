package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/xflo/store"
)

// OpenAITransport streams replies straight from an OpenAI-compatible completion API.
// Content deltas become content events; the end of the completion becomes a
// metadata event carrying the model and execution time.
type OpenAITransport struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
}

// OpenAIConfig holds the completion API settings.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewOpenAITransport creates a transport for the given completion API.
func NewOpenAITransport(cfg OpenAIConfig) *OpenAITransport {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAITransport{
		client:       openai.NewClientWithConfig(config),
		defaultModel: cfg.Model,
		maxTokens:    cfg.MaxTokens,
	}
}

func (t *OpenAITransport) Name() string { return "openai" }

func (t *OpenAITransport) Open(ctx context.Context, req Request) (Stream, error) {
	model := req.Model
	if model == "" {
		model = t.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.IsStreaming || m.Content == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if m.Role == store.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	start := time.Now()
	stream, err := t.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: t.maxTokens,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("create completion stream: %w", err)
	}
	return &openaiStream{stream: stream, model: model, start: start}, nil
}

type openaiStream struct {
	stream *openai.ChatCompletionStream
	model  string
	start  time.Time

	finished bool
	once     sync.Once
}

func (s *openaiStream) Recv() (Event, error) {
	if s.finished {
		return Event{}, io.EOF
	}
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.finished = true
			return MetadataEvent(store.MessageMetadata{
				Model:         s.model,
				Timestamp:     time.Now().UTC().Format(time.RFC3339),
				ExecutionTime: time.Since(s.start).Seconds(),
			}), nil
		}
		if err != nil {
			return Event{}, fmt.Errorf("stream recv failed: %w", err)
		}
		if resp.Model != "" {
			s.model = resp.Model
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return ContentEvent(resp.Choices[0].Delta.Content), nil
	}
}

func (s *openaiStream) Close() error {
	var err error
	s.once.Do(func() { err = s.stream.Close() })
	return err
}
