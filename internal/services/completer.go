package services

import (
	"context"
	"errors"
	"fmt"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/pkg/logger"
	"strings"
)

// ModelConfig is the per-call generation setting.
type ModelConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// Completer sends one prompt to a generative-language service and returns
// its text. Implementations do not retry; callers own the retry policy.
type Completer interface {
	Complete(ctx context.Context, prompt string, cfg ModelConfig, credential string) (string, error)
}

type CompletionErrorKind string

const (
	CompletionRateLimited CompletionErrorKind = "rate_limited"
	CompletionOther       CompletionErrorKind = "other"
)

type CompletionError struct {
	Kind     CompletionErrorKind
	Provider string
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion failed (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a completion rate-limit signal.
func IsRateLimited(err error) bool {
	var completionErr *CompletionError
	if errors.As(err, &completionErr) {
		return completionErr.Kind == CompletionRateLimited
	}
	return looksRateLimited(err)
}

func looksRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "resource exhausted")
}

// NewCompleter builds the completion backend named by cfg.Completion.Provider.
func NewCompleter(cfg *config.Config, log *logger.Logger) (Completer, error) {
	switch cfg.Completion.Provider {
	case "", "gemini":
		return NewGeminiCompleter(cfg.Gemini, log), nil
	case "openai":
		return NewOpenAICompleter(cfg.OpenAI, log), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Completion.Provider)
	}
}
