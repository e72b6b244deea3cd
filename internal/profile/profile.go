package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the assistant daemon.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for the local HTTP server
	Addr string
	// Port is the binding port for the local HTTP server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where paperlens stores its own data
	DSN string
	// Driver is the database driver (sqlite)
	Driver string
	// Version is the current version of the daemon
	Version string

	// Model runtime configuration
	LLMBaseURL       string // PAPERLENS_LLM_BASE_URL (default: http://localhost:11434/v1)
	LLMAPIKey        string // PAPERLENS_LLM_API_KEY (local runtimes usually ignore it)
	LLMModel         string // PAPERLENS_LLM_MODEL (default: llama3.1:8b)
	LLMContextWindow int    // PAPERLENS_LLM_CONTEXT_WINDOW (input quota in tokens, default: 8192)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from PAPERLENS_* environment variables.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("PAPERLENS_MODE", p.Mode)
	p.Addr = getEnvOrDefault("PAPERLENS_ADDR", p.Addr)
	p.Data = getEnvOrDefault("PAPERLENS_DATA", p.Data)
	p.DSN = getEnvOrDefault("PAPERLENS_DSN", p.DSN)
	p.Driver = getEnvOrDefault("PAPERLENS_DRIVER", p.Driver)
	if port := os.Getenv("PAPERLENS_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			p.Port = parsed
		}
	}

	p.LLMBaseURL = getEnvOrDefault("PAPERLENS_LLM_BASE_URL", p.LLMBaseURL)
	p.LLMAPIKey = getEnvOrDefault("PAPERLENS_LLM_API_KEY", p.LLMAPIKey)
	p.LLMModel = getEnvOrDefault("PAPERLENS_LLM_MODEL", p.LLMModel)
	if window := os.Getenv("PAPERLENS_LLM_CONTEXT_WINDOW"); window != "" {
		if parsed, err := strconv.Atoi(window); err == nil && parsed > 0 {
			p.LLMContextWindow = parsed
		}
	}
}

// Validate normalizes the profile and prepares the data directory.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}
	if p.Addr == "" {
		p.Addr = "127.0.0.1"
	}
	if p.Port <= 0 {
		p.Port = 18320
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.LLMBaseURL == "" {
		p.LLMBaseURL = "http://localhost:11434/v1"
	}
	if p.LLMModel == "" {
		p.LLMModel = "llama3.1:8b"
	}
	if p.LLMContextWindow <= 0 {
		p.LLMContextWindow = 8192
	}

	if p.Data == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to resolve home directory")
		}
		p.Data = filepath.Join(home, ".paperlens")
	}
	absData, err := filepath.Abs(p.Data)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve data directory %q", p.Data)
	}
	p.Data = absData
	if err := os.MkdirAll(p.Data, 0o750); err != nil {
		return errors.Wrapf(err, "failed to create data directory %q", p.Data)
	}

	if p.DSN == "" && p.Driver == "sqlite" {
		p.DSN = filepath.Join(p.Data, fmt.Sprintf("paperlens_%s.db", p.Mode))
	}
	if strings.TrimSpace(p.DSN) == "" {
		return errors.New("DSN is required")
	}
	return nil
}
