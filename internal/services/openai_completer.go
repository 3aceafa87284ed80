package services

import (
	"context"
	"errors"
	"net/http"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/pkg/logger"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const providerOpenAI = "openai"

// OpenAICompleter is the alternate backend for OpenAI-compatible endpoints.
type OpenAICompleter struct {
	config  config.OpenAIConfig
	logger  *logger.Logger
	limiter *rate.Limiter

	clients sync.Map // credential -> *openai.Client
}

func NewOpenAICompleter(cfg config.OpenAIConfig, log *logger.Logger) *OpenAICompleter {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	log.WithFields(logger.Fields{
		"model":    cfg.Model,
		"base_url": cfg.BaseURL,
	}).Info("OpenAI completer initialized")

	return &OpenAICompleter{
		config:  cfg,
		logger:  log,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (service *OpenAICompleter) client(credential string) *openai.Client {
	if cached, ok := service.clients.Load(credential); ok {
		return cached.(*openai.Client)
	}

	clientConfig := openai.DefaultConfig(credential)
	if service.config.BaseURL != "" {
		clientConfig.BaseURL = service.config.BaseURL
	}

	actual, _ := service.clients.LoadOrStore(credential, openai.NewClientWithConfig(clientConfig))
	return actual.(*openai.Client)
}

func (service *OpenAICompleter) Complete(ctx context.Context, prompt string, cfg ModelConfig, credential string) (string, error) {
	startTime := time.Now()

	if credential == "" {
		credential = service.config.APIKey
	}
	if credential == "" {
		return "", &CompletionError{Kind: CompletionOther, Provider: providerOpenAI, Err: errors.New("missing API key")}
	}

	model := cfg.Model
	if model == "" {
		model = service.config.Model
	}

	if err := service.limiter.Wait(ctx); err != nil {
		return "", &CompletionError{Kind: CompletionOther, Provider: providerOpenAI, Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, service.config.Timeout)
	defer cancel()

	resp, err := service.client(credential).CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		completionErr := classifyOpenAIError(err)
		service.logger.LogService(providerOpenAI, "chat_completion", time.Since(startTime), map[string]interface{}{
			"model": model,
			"kind":  completionErr.Kind,
		}, err)
		return "", completionErr
	}

	if len(resp.Choices) == 0 {
		return "", &CompletionError{Kind: CompletionOther, Provider: providerOpenAI, Err: errors.New("no choices returned")}
	}

	text := resp.Choices[0].Message.Content

	service.logger.LogService(providerOpenAI, "chat_completion", time.Since(startTime), map[string]interface{}{
		"model":           model,
		"prompt_length":   len(prompt),
		"response_length": len(text),
		"total_tokens":    resp.Usage.TotalTokens,
	}, nil)

	return text, nil
}

func classifyOpenAIError(err error) *CompletionError {
	kind := CompletionOther

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			kind = CompletionRateLimited
		}
	case errors.As(err, &reqErr):
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			kind = CompletionRateLimited
		}
	case looksRateLimited(err):
		kind = CompletionRateLimited
	}

	return &CompletionError{Kind: kind, Provider: providerOpenAI, Err: err}
}
