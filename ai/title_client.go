package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const titleClientTimeout = 30 * time.Second

// TitleRequest is the body accepted by the title endpoint.
type TitleRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// TitleResponse is the body returned by the title endpoint.
type TitleResponse struct {
	Title string `json:"title"`
}

// TitleClient calls a title endpoint such as POST /api/generate-title.
type TitleClient struct {
	endpoint string
	client   *http.Client
	prompt   *TitlePromptConfig
}

// NewTitleClient creates a client for endpoint. A nil prompt uses the defaults.
func NewTitleClient(endpoint string, client *http.Client, prompt *TitlePromptConfig) *TitleClient {
	if client == nil {
		client = &http.Client{Timeout: titleClientTimeout}
	}
	if prompt == nil {
		prompt = DefaultTitlePromptConfig()
	}
	return &TitleClient{endpoint: endpoint, client: client, prompt: prompt}
}

// Complete posts messages and returns the title. A non-2xx status is an error
// even when the body carries a fallback title.
func (c *TitleClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	body, err := json.Marshal(TitleRequest{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal title request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build title request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("title request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("title request failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out TitleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode title response: %w", err)
	}
	return out.Title, nil
}

// GenerateTitle builds the title prompt around firstUserMessage and posts it.
func (c *TitleClient) GenerateTitle(ctx context.Context, firstUserMessage string) (string, error) {
	messages, err := c.prompt.BuildMessages(firstUserMessage)
	if err != nil {
		return "", err
	}
	return c.Complete(ctx, messages)
}
