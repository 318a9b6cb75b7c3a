package classifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/v0xg/replaybot/internal/logging"
)

// Provider defines the interface for prompt classification
type Provider interface {
	Classify(ctx context.Context, prompt string) (*Request, error)
}

// NewProvider creates a new AI provider based on the provider name
func NewProvider(name, model string) (Provider, error) {
	switch name {
	case "claude", "anthropic":
		return NewClaudeProvider(model)
	case "openai", "gpt":
		return NewOpenAIProvider(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
}

// maxAttempts caps classification retries
const maxAttempts = 3

// ClassifyWithRetry classifies the prompt, retrying when the provider
// fails or returns a request that does not validate
func ClassifyWithRetry(ctx context.Context, p Provider, prompt string, log *slog.Logger) (*Request, error) {
	if log == nil {
		log = logging.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := p.Classify(ctx, prompt)
		if err == nil {
			if err = req.Validate(); err == nil {
				return req, nil
			}
		}
		lastErr = err
		log.Warn("classification attempt failed", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("classification failed after %d attempts: %w", maxAttempts, lastErr)
}
