package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider defines the interface for text generation backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate produces text for the given request
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for text generation
type GenerateRequest struct {
	// Prompt is the fully rendered prompt
	Prompt string

	// System overrides the default system message when non-empty
	System string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// GenerateResponse contains the generated output
type GenerateResponse struct {
	// Text is the generated text
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Model:     "",
		Timeout:   30,
		MaxTokens: 1000,
	}
}

const answerSystemMessage = "You are a precise assistant answering questions about stored reference data. You only state numbers that appear verbatim in the provided passages."

// BuildAnswerPrompt constructs the drafting prompt. The passages are the
// ONLY numbers the model may use; the grounding pass afterwards rejects
// any number that is not backed by the record store.
func BuildAnswerPrompt(question string, passages []string) string {
	prompt := fmt.Sprintf(`Answer the question using ONLY the reference passages below.

CRITICAL RULES:
1. Every number in your answer MUST appear verbatim in a passage (e.g. "8F", "8.4%%").
2. DO NOT compute, round, convert, or estimate values.
3. If the passages do not contain the answer, say the data is not available.
4. Keep units exactly as written in the passages.

Reference passages:
%s

Question: %s

Answer in 1-3 sentences.`, joinPassages(passages), question)

	return prompt
}

// BuildEnrichmentPrompt constructs the prompt used to generate a short
// natural-language gloss for a group of structured facts
func BuildEnrichmentPrompt(entity, category string, facts []string) string {
	return fmt.Sprintf(`Write one plain sentence summarizing these recorded facts about %s (%s). Use every number exactly as written, and add nothing that is not in the list.

Facts:
%s`, entity, category, joinPassages(facts))
}

func joinPassages(passages []string) string {
	if len(passages) == 0 {
		return "(no passages available)"
	}
	var b strings.Builder
	for i, p := range passages {
		if i >= 20 { // Limit to avoid token bloat
			fmt.Fprintf(&b, "\n... and %d more passages", len(passages)-20)
			break
		}
		fmt.Fprintf(&b, "\n- %s", p)
	}
	return b.String()
}
