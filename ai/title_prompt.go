package ai

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/hrygo/xflo/ai/configloader"
)

// TitlePromptFile is the optional override file looked up in the prompt directory.
const TitlePromptFile = "title.yaml"

// DefaultTitleSystemPrompt instructs the model to produce a short topic title.
const DefaultTitleSystemPrompt = "Create a very brief, descriptive title (max 40 chars) for this chat based on the user's first message. Focus on the main topic or question. Don't use quotes or punctuation."

// FallbackTitle is returned by the title API when no title could be produced.
const FallbackTitle = "Untitled Chat"

// TitlePromptConfig holds the prompt and sampling parameters for title generation.
type TitlePromptConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	// UserTemplate renders the first user message; {{.Message}} is the raw text.
	UserTemplate string `yaml:"user_template"`
	Params       struct {
		Model          string  `yaml:"model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float32 `yaml:"temperature"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		MaxRunes       int     `yaml:"max_runes"`
	} `yaml:"params"`
}

// TitlePromptData is the data passed to UserTemplate.
type TitlePromptData struct {
	Message string
}

// DefaultTitlePromptConfig returns the built-in prompt.
func DefaultTitlePromptConfig() *TitlePromptConfig {
	cfg := &TitlePromptConfig{
		SystemPrompt: DefaultTitleSystemPrompt,
		UserTemplate: "{{.Message}}",
	}
	cfg.Params.Model = "gpt-3.5-turbo"
	cfg.Params.MaxTokens = 40
	cfg.Params.Temperature = 0.7
	cfg.Params.TimeoutSeconds = 15
	cfg.Params.MaxRunes = 80
	return cfg
}

// LoadTitlePromptConfig overlays dir/title.yaml onto the defaults. An empty dir
// or a missing file yields the defaults.
func LoadTitlePromptConfig(dir string) (*TitlePromptConfig, error) {
	cfg := DefaultTitlePromptConfig()
	if dir == "" {
		return cfg, nil
	}
	if _, err := configloader.NewLoader(dir).LoadOptional(TitlePromptFile, cfg); err != nil {
		return nil, fmt.Errorf("load title prompt config: %w", err)
	}
	if _, err := template.New("title").Parse(cfg.UserTemplate); err != nil {
		return nil, fmt.Errorf("parse title user template: %w", err)
	}
	return cfg, nil
}

// BuildMessages returns the system and user messages for firstUserMessage.
func (c *TitlePromptConfig) BuildMessages(firstUserMessage string) ([]ChatMessage, error) {
	tmpl, err := template.New("title").Parse(c.UserTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse title user template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, TitlePromptData{Message: firstUserMessage}); err != nil {
		return nil, fmt.Errorf("execute title user template: %w", err)
	}
	return []ChatMessage{
		{Role: RoleSystem, Content: c.SystemPrompt},
		{Role: RoleUser, Content: buf.String()},
	}, nil
}
