package text

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"storypipeline/internal/provider"
)

// ollamaAdapter implements Adapter against a local Ollama server,
// following the ollama api package's own client pattern and the shape of
// openAIAdapter; demonstrates that providers
// are swappable behind the same Adapter interface (§6).
type ollamaAdapter struct {
	client  *api.Client
	logger  *zap.Logger
	timeout time.Duration
	retry   provider.RetryPolicy
}

// NewOllamaAdapter builds a live Text LLM adapter backed by Ollama.
func NewOllamaAdapter(baseURL string, timeout time.Duration, logger *zap.Logger) (Adapter, error) {
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: timeout}
	return &ollamaAdapter{
		client:  api.NewClient(parsed, httpClient),
		logger:  logger.Named("TextAdapter.ollama"),
		timeout: timeout,
		retry:   provider.DefaultRetryPolicy,
	}, nil
}

func (a *ollamaAdapter) GenerateText(ctx context.Context, req Request) (string, error) {
	if req.Prompt == "" {
		return "", provider.NewError(provider.KindBadRequest, "text", errors.New("empty prompt"))
	}

	stream := false
	var out string
	err := provider.Do(ctx, a.retry, func(ctx context.Context, attempt int) (bool, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		chatReq := &api.ChatRequest{
			Model:    req.Model,
			Messages: []api.Message{{Role: "user", Content: req.Prompt}},
			Stream:   &stream,
			Options: map[string]interface{}{
				"temperature": req.Temperature,
				"num_predict": req.MaxTokens,
			},
		}

		var resp api.ChatResponse
		err := a.client.Chat(callCtx, chatReq, func(r api.ChatResponse) error {
			resp = r
			return nil
		})
		if err != nil {
			a.logger.Warn("ollama chat failed", zap.Int("attempt", attempt), zap.Error(err))
			if errors.Is(err, context.DeadlineExceeded) {
				return true, provider.NewError(provider.KindTransient, "text", err)
			}
			return true, provider.NewError(provider.KindTransient, "text", err)
		}
		if resp.Message.Content == "" {
			return true, provider.NewError(provider.KindUpstreamMalformed, "text", errors.New("empty completion"))
		}
		out = resp.Message.Content
		return false, nil
	})
	return out, err
}
