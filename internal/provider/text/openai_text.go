package text

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	openaigo "github.com/sashabaranov/go-openai"

	"storypipeline/internal/provider"
)

// openAIAdapter implements Adapter against an OpenAI-compatible chat
// completion endpoint, grounded on the teacher's story-generator
// AIClient.GenerateText.
type openAIAdapter struct {
	client  *openaigo.Client
	logger  *zap.Logger
	timeout time.Duration
	retry   provider.RetryPolicy
}

// NewOpenAIAdapter builds a live Text LLM adapter backed by an
// OpenAI-compatible API at baseURL.
func NewOpenAIAdapter(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) Adapter {
	cfg := openaigo.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &openAIAdapter{
		client:  openaigo.NewClientWithConfig(cfg),
		logger:  logger.Named("TextAdapter.openai"),
		timeout: timeout,
		retry:   provider.DefaultRetryPolicy,
	}
}

func (a *openAIAdapter) GenerateText(ctx context.Context, req Request) (string, error) {
	if req.Prompt == "" {
		return "", provider.NewError(provider.KindBadRequest, "text", errors.New("empty prompt"))
	}

	if tke, tkErr := tiktoken.EncodingForModel(req.Model); tkErr == nil {
		promptTokens := len(tke.Encode(req.Prompt, nil, nil))
		a.logger.Debug("estimated prompt tokens", zap.Int("tokens", promptTokens), zap.String("model", req.Model))
	}

	var out string
	err := provider.Do(ctx, a.retry, func(ctx context.Context, attempt int) (bool, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		resp, err := a.client.CreateChatCompletion(callCtx, openaigo.ChatCompletionRequest{
			Model: req.Model,
			Messages: []openaigo.ChatCompletionMessage{
				{Role: openaigo.ChatMessageRoleUser, Content: req.Prompt},
			},
			Temperature: float32(req.Temperature),
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			a.logger.Warn("chat completion failed", zap.Int("attempt", attempt), zap.Error(err))
			var apiErr *openaigo.APIError
			if errors.As(err, &apiErr) && !provider.RetriableHTTPStatus(apiErr.HTTPStatusCode) {
				return false, provider.NewError(provider.KindBadRequest, "text", err)
			}
			return true, provider.NewError(provider.KindTransient, "text", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return true, provider.NewError(provider.KindUpstreamMalformed, "text", errors.New("empty completion"))
		}
		out = resp.Choices[0].Message.Content
		return false, nil
	})
	return out, err
}
