package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/pkg/logger"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const providerGemini = "gemini"

// GeminiCompleter talks to the Gemini API. Clients are created lazily per
// credential because callers may bring their own key in a request header.
type GeminiCompleter struct {
	config  config.GeminiConfig
	logger  *logger.Logger
	limiter *rate.Limiter

	clients sync.Map // credential -> *genai.Client
}

func NewGeminiCompleter(cfg config.GeminiConfig, log *logger.Logger) *GeminiCompleter {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	log.WithFields(logger.Fields{
		"model":               cfg.Model,
		"requests_per_second": cfg.RequestsPerSecond,
		"burst":               burst,
	}).Info("Gemini completer initialized")

	return &GeminiCompleter{
		config:  cfg,
		logger:  log,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (service *GeminiCompleter) client(ctx context.Context, credential string) (*genai.Client, error) {
	if cached, ok := service.clients.Load(credential); ok {
		return cached.(*genai.Client), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	actual, _ := service.clients.LoadOrStore(credential, client)
	return actual.(*genai.Client), nil
}

func (service *GeminiCompleter) Complete(ctx context.Context, prompt string, cfg ModelConfig, credential string) (string, error) {
	startTime := time.Now()

	if credential == "" {
		credential = service.config.APIKey
	}
	if credential == "" {
		return "", &CompletionError{Kind: CompletionOther, Provider: providerGemini, Err: errors.New("missing API key")}
	}

	model := cfg.Model
	if model == "" {
		model = service.config.Model
	}

	if err := service.limiter.Wait(ctx); err != nil {
		return "", &CompletionError{Kind: CompletionOther, Provider: providerGemini, Err: err}
	}

	client, err := service.client(ctx, credential)
	if err != nil {
		return "", &CompletionError{Kind: CompletionOther, Provider: providerGemini, Err: err}
	}

	genCtx, cancel := context.WithTimeout(ctx, service.config.Timeout)
	defer cancel()

	temperature := float32(cfg.Temperature)
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(cfg.MaxTokens),
	}
	if cfg.JSON {
		genConfig.ResponseMIMEType = "application/json"
	}

	result, err := client.Models.GenerateContent(genCtx, model, genai.Text(prompt), genConfig)
	if err != nil {
		completionErr := classifyGeminiError(err)
		service.logger.LogService(providerGemini, "generate_content", time.Since(startTime), map[string]interface{}{
			"model":         model,
			"prompt_length": len(prompt),
			"kind":          completionErr.Kind,
		}, err)
		return "", completionErr
	}

	if len(result.Candidates) == 0 {
		return "", &CompletionError{Kind: CompletionOther, Provider: providerGemini, Err: errors.New("no response candidates generated")}
	}

	candidate := result.Candidates[0]
	text := ""
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			text += part.Text
		}
	}

	service.logger.LogService(providerGemini, "generate_content", time.Since(startTime), map[string]interface{}{
		"model":           model,
		"prompt_length":   len(prompt),
		"response_length": len(text),
		"finish_reason":   string(candidate.FinishReason),
	}, nil)

	return text, nil
}

func classifyGeminiError(err error) *CompletionError {
	kind := CompletionOther

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			kind = CompletionRateLimited
		}
	} else if looksRateLimited(err) {
		kind = CompletionRateLimited
	}

	return &CompletionError{Kind: kind, Provider: providerGemini, Err: err}
}

// HealthCheck sends a tiny prompt with the configured key.
func (service *GeminiCompleter) HealthCheck(ctx context.Context) error {
	if service.config.APIKey == "" {
		return nil
	}

	resp, err := service.Complete(ctx, "Respond with 'OK' if you can process this request", ModelConfig{
		Temperature: 0,
		MaxTokens:   10,
	}, "")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp == "" {
		return errors.New("empty response received")
	}
	return nil
}

func (service *GeminiCompleter) Close() error {
	service.logger.Info("Gemini completer closed")
	return nil
}
