package profile

import (
	"path/filepath"
	"testing"
)

// TestProfileDefaults checks the values FromEnv fills in when nothing is set.
func TestProfileDefaults(t *testing.T) {
	clearEnvVars(t)

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"APIURL default", "http://localhost:8000", profile.APIURL},
		{"LLMTitleModel default", "gpt-3.5-turbo", profile.LLMTitleModel},
		{"LLMAPIKey default", "", profile.LLMAPIKey},
		{"TitleEndpoint derived from APIURL", "http://localhost:8000/api/generate-title", profile.TitleEndpoint()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}
	if profile.LLMTimeout != 60 {
		t.Errorf("LLMTimeout: expected 60, got %d", profile.LLMTimeout)
	}
}

// TestProfileFromEnv checks that environment variables are picked up.
func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) string
		expected string
	}{
		{
			name:     "LLM API key",
			envVar:   "XFLO_LLM_API_KEY",
			envValue: "test-key",
			field:    func(p *Profile) string { return p.LLMAPIKey },
			expected: "test-key",
		},
		{
			name:     "OpenAI API key fallback",
			envVar:   "OPENAI_API_KEY",
			envValue: "sk-fallback",
			field:    func(p *Profile) string { return p.LLMAPIKey },
			expected: "sk-fallback",
		},
		{
			name:     "API URL",
			envVar:   "NEXT_PUBLIC_API_URL",
			envValue: "https://chat.example.com/",
			field:    func(p *Profile) string { return p.TitleEndpoint() },
			expected: "https://chat.example.com/api/generate-title",
		},
		{
			name:     "XFLO API URL",
			envVar:   "XFLO_API_URL",
			envValue: "http://backend:9000",
			field:    func(p *Profile) string { return p.APIURL },
			expected: "http://backend:9000",
		},
		{
			name:     "explicit title endpoint",
			envVar:   "XFLO_TITLE_API_URL",
			envValue: "https://titles.example.com/generate",
			field:    func(p *Profile) string { return p.TitleEndpoint() },
			expected: "https://titles.example.com/generate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv(tt.envVar, tt.envValue)

			profile := &Profile{}
			profile.FromEnv()

			actual := tt.field(profile)
			if actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, actual)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("sqlite defaults DSN into data dir", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Data: dir}
		if err := p.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if p.Driver != "sqlite" || p.Transport != "sse" || p.Model != "gpt-4" || p.Mode != "dev" {
			t.Errorf("unexpected defaults: %+v", p)
		}
		if want := filepath.Join(dir, "xflo_dev.db"); p.DSN != want {
			t.Errorf("DSN = %q, want %q", p.DSN, want)
		}
	})

	t.Run("rejects unknown transport", func(t *testing.T) {
		p := &Profile{Driver: "memory", Transport: "carrier-pigeon"}
		if err := p.Validate(); err == nil {
			t.Error("expected error for unknown transport")
		}
	})

	t.Run("openai transport needs key", func(t *testing.T) {
		p := &Profile{Driver: "memory", Transport: "openai"}
		if err := p.Validate(); err == nil {
			t.Error("expected error for missing API key")
		}
	})

	t.Run("postgres needs dsn", func(t *testing.T) {
		p := &Profile{Driver: "postgres"}
		if err := p.Validate(); err == nil {
			t.Error("expected error for missing DSN")
		}
	})

	t.Run("memory driver skips data dir", func(t *testing.T) {
		p := &Profile{Driver: "memory"}
		if err := p.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if p.Data != "" {
			t.Errorf("Data = %q, want empty", p.Data)
		}
	})
}

// clearEnvVars resets every variable FromEnv reads.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"XFLO_LLM_API_KEY",
		"OPENAI_API_KEY",
		"XFLO_LLM_BASE_URL",
		"XFLO_LLM_TITLE_MODEL",
		"XFLO_LLM_TIMEOUT_SECONDS",
		"XFLO_API_URL",
		"NEXT_PUBLIC_API_URL",
		"XFLO_TITLE_API_URL",
	} {
		t.Setenv(key, "")
	}
}
