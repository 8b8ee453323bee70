package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the chat client and the title service.
type Profile struct {
	// Chat backend
	APIURL    string // Base URL of the chat/completion backend
	Transport string // Push channel used for streaming replies: sse, websocket, openai
	Model     string // Model bound to newly created threads

	// Title generation
	TitleAPIURL string // Title endpoint consumed by the naming policy; empty means <APIURL>/api/generate-title

	// OpenAI-compatible LLM configuration, used by the title service and the direct transport
	LLMAPIKey     string
	LLMBaseURL    string
	LLMTitleModel string
	LLMTimeout    int // seconds

	// Persistence
	Mode   string
	Data   string
	Driver string // sqlite, postgres, memory
	DSN    string

	// Title service
	Addr          string
	Port          int
	TitleRPS      float64
	TitleBurst    int
	Version       string
	LogLevel      string
	LogFormat     string
	PromptDir     string
	MetricsEnable bool
}

// Transports accepted by Validate.
var transports = map[string]bool{
	"sse":       true,
	"websocket": true,
	"openai":    true,
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads the LLM and title settings from environment variables.
// Values already set on the profile (from flags) take precedence.
func (p *Profile) FromEnv() {
	p.LLMAPIKey = getEnvOrDefault("XFLO_LLM_API_KEY", getEnvOrDefault("OPENAI_API_KEY", p.LLMAPIKey))
	p.LLMBaseURL = getEnvOrDefault("XFLO_LLM_BASE_URL", p.LLMBaseURL)
	if p.LLMTitleModel == "" {
		p.LLMTitleModel = getEnvOrDefault("XFLO_LLM_TITLE_MODEL", "gpt-3.5-turbo")
	}
	if p.LLMTimeout <= 0 {
		p.LLMTimeout = getEnvOrDefaultInt("XFLO_LLM_TIMEOUT_SECONDS", 60)
	}
	if p.APIURL == "" {
		p.APIURL = getEnvOrDefault("XFLO_API_URL", getEnvOrDefault("NEXT_PUBLIC_API_URL", "http://localhost:8000"))
	}
	if p.TitleAPIURL == "" {
		p.TitleAPIURL = os.Getenv("XFLO_TITLE_API_URL")
	}
}

// TitleEndpoint returns the URL the naming policy posts to.
func (p *Profile) TitleEndpoint() string {
	if p.TitleAPIURL != "" {
		return p.TitleAPIURL
	}
	return strings.TrimRight(p.APIURL, "/") + "/api/generate-title"
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if err := os.MkdirAll(dataDir, 0o770); err != nil {
		return "", errors.Wrapf(err, "unable to create data folder %s", dataDir)
	}
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func defaultDataDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "xflo")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".xflo")
	}
	return ".xflo"
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Transport == "" {
		p.Transport = "sse"
	}
	if !transports[p.Transport] {
		return errors.Errorf("unsupported transport %q (want sse, websocket or openai)", p.Transport)
	}
	if p.Transport == "openai" && p.LLMAPIKey == "" {
		return errors.New("openai transport requires XFLO_LLM_API_KEY")
	}
	if p.Model == "" {
		p.Model = "gpt-4"
	}
	if p.TitleRPS <= 0 {
		p.TitleRPS = 2
	}
	if p.TitleBurst <= 0 {
		p.TitleBurst = 5
	}

	switch p.Driver {
	case "", "sqlite":
		p.Driver = "sqlite"
	case "postgres", "memory":
	default:
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires --dsn")
	}
	if p.Driver != "sqlite" {
		return nil
	}

	if p.Data == "" {
		p.Data = defaultDataDir()
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir
	if p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("xflo_%s.db", p.Mode))
	}
	return nil
}
