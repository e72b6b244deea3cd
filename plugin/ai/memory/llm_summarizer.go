package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/paperlens/paperlens/plugin/ai"
)

const summarizePrompt = `Condense the following conversation about the paper "%s" into a short factual summary.
Keep question intents, conclusions reached, and any section references. Do not add commentary.`

// LLMSummarizer condenses message spans through the model runtime's
// synchronous completion surface.
type LLMSummarizer struct {
	runtime ai.Runtime
}

// NewLLMSummarizer creates a summarizer backed by runtime.
func NewLLMSummarizer(runtime ai.Runtime) *LLMSummarizer {
	return &LLMSummarizer{runtime: runtime}
}

// Summarize condenses messages into summary text.
func (s *LLMSummarizer) Summarize(ctx context.Context, messages []ai.Message, topic string) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}
	if topic == "" {
		topic = "untitled"
	}

	var transcript strings.Builder
	for _, msg := range messages {
		transcript.WriteString(msg.Role)
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n")
	}

	result, err := s.runtime.Complete(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: fmt.Sprintf(summarizePrompt, topic)},
		{Role: ai.RoleUser, Content: transcript.String()},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result), nil
}
