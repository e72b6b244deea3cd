package ai

import (
	"errors"

	"github.com/paperlens/paperlens/internal/profile"
)

// Defaults for the assistant configuration. The thresholds mirror the tuning
// the engine was shipped with; they are fields on Config rather than hardcoded
// so deployments can adjust them.
const (
	DefaultRecentWindow         = 6
	DefaultMinHistoryForSummary = 3
	DefaultSummaryMergeLimit    = 2
	DefaultCapacityThreshold    = 0.8
	DefaultBudgetSafetyRatio    = 0.8
	DefaultRetrievalLimit       = 8
	DefaultMaxAnswerTokens      = 1024
	DefaultTemperature          = 0.7
	DefaultTopK                 = 40
)

// Config represents assistant configuration.
type Config struct {
	// SystemPrompt is the base instruction block seeded into every session.
	SystemPrompt string

	// Model generation options.
	Model           string
	Temperature     float32
	TopK            int
	MaxAnswerTokens int

	// RecentWindow is the number of trailing raw messages kept out of the
	// rolling summary and used to seed rebuilt sessions.
	RecentWindow int
	// MinHistoryForSummary is the minimum number of turns before the budget
	// planner may trigger summarization.
	MinHistoryForSummary int
	// SummaryMergeLimit is the number of summary merges allowed before the
	// concatenation is re-summarized into a single fresh summary.
	SummaryMergeLimit int
	// CapacityThreshold is the fraction of device-reported capacity at which
	// pre-summarization kicks in.
	CapacityThreshold float64
	// BudgetSafetyRatio caps prompt measurement at this fraction of the
	// session's remaining input budget, leaving headroom for streaming
	// overhead.
	BudgetSafetyRatio float64
	// RetrievalLimit is the default number of excerpts requested per question.
	RetrievalLimit int
	// ContextWindow is the device-reported input quota in tokens.
	ContextWindow int
}

// NewConfigFromProfile creates assistant config from the daemon profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := DefaultConfig()
	cfg.Model = p.LLMModel
	cfg.ContextWindow = p.LLMContextWindow
	return cfg
}

// DefaultConfig returns a config with all tuning knobs at their defaults.
func DefaultConfig() *Config {
	return &Config{
		SystemPrompt:         defaultSystemPrompt,
		Temperature:          DefaultTemperature,
		TopK:                 DefaultTopK,
		MaxAnswerTokens:      DefaultMaxAnswerTokens,
		RecentWindow:         DefaultRecentWindow,
		MinHistoryForSummary: DefaultMinHistoryForSummary,
		SummaryMergeLimit:    DefaultSummaryMergeLimit,
		CapacityThreshold:    DefaultCapacityThreshold,
		BudgetSafetyRatio:    DefaultBudgetSafetyRatio,
		RetrievalLimit:       DefaultRetrievalLimit,
		ContextWindow:        8192,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RecentWindow <= 0 {
		return errors.New("recent window must be positive")
	}
	if c.SummaryMergeLimit <= 0 {
		return errors.New("summary merge limit must be positive")
	}
	if c.CapacityThreshold <= 0 || c.CapacityThreshold > 1 {
		return errors.New("capacity threshold must be in (0, 1]")
	}
	if c.BudgetSafetyRatio <= 0 || c.BudgetSafetyRatio > 1 {
		return errors.New("budget safety ratio must be in (0, 1]")
	}
	if c.ContextWindow <= 0 {
		return errors.New("context window must be positive")
	}
	return nil
}

const defaultSystemPrompt = `You are a research assistant answering questions about an academic paper.
Ground every answer in the provided excerpts and cite the sections you used.
Respond with a JSON object of the form {"answer": "...", "sources": ["..."]}.
Preserve any mathematical notation exactly as written in the paper.`
