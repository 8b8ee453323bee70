package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

// TitleGenerator asks an OpenAI-compatible completion API for thread titles.
type TitleGenerator struct {
	client *openai.Client
	prompt *TitlePromptConfig
}

// TitleGeneratorConfig holds configuration for the title generator.
type TitleGeneratorConfig struct {
	APIKey  string
	BaseURL string
	// Model overrides the prompt config model when set.
	Model  string
	Prompt *TitlePromptConfig
}

// NewTitleGenerator creates a new title generator instance.
func NewTitleGenerator(cfg TitleGeneratorConfig) *TitleGenerator {
	prompt := cfg.Prompt
	if prompt == nil {
		prompt = DefaultTitlePromptConfig()
	}
	if cfg.Model != "" {
		p := *prompt
		p.Params.Model = cfg.Model
		prompt = &p
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &TitleGenerator{
		client: openai.NewClientWithConfig(config),
		prompt: prompt,
	}
}

// Complete sends messages as-is and returns the cleaned title, or FallbackTitle
// when the completion is empty.
func (tg *TitleGenerator) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if tg.prompt.Params.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(tg.prompt.Params.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       tg.prompt.Params.Model,
		MaxTokens:   tg.prompt.Params.MaxTokens,
		Temperature: tg.prompt.Params.Temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := tg.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)
	if err != nil {
		slog.Error("title_generation_failed",
			"model", tg.prompt.Params.Model,
			"error", err,
			"latency_ms", latency.Milliseconds())
		return "", fmt.Errorf("LLM request failed: %w", err)
	}

	var title string
	if len(resp.Choices) > 0 {
		title = CleanTitle(resp.Choices[0].Message.Content, tg.prompt.Params.MaxRunes)
	}
	if title == "" {
		title = FallbackTitle
	}

	slog.Debug("title_generation_success",
		"model", tg.prompt.Params.Model,
		"title", title,
		"latency_ms", latency.Milliseconds(),
		"tokens_total", resp.Usage.TotalTokens)
	return title, nil
}

// GenerateTitle builds the title prompt around firstUserMessage and completes it.
func (tg *TitleGenerator) GenerateTitle(ctx context.Context, firstUserMessage string) (string, error) {
	messages, err := tg.prompt.BuildMessages(firstUserMessage)
	if err != nil {
		return "", err
	}
	return tg.Complete(ctx, messages)
}
