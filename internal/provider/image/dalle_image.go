package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storypipeline/internal/provider"
)

// dalleRequest and dalleResponse mirror the upstream DALL-E-compatible
// image endpoint, grounded on MoiseiLiviu-story-generation-api's
// infrastructure/adapters/image_generator.go.
type dalleRequest struct {
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	Number         int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type dalleResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// dalleAdapter implements Adapter against a DALL-E-compatible HTTP API.
type dalleAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	retry      provider.RetryPolicy
}

// NewDalleAdapter builds a live Image adapter.
func NewDalleAdapter(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) Adapter {
	return &dalleAdapter{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("ImageAdapter.dalle"),
		retry:      provider.DefaultRetryPolicy,
	}
}

func (a *dalleAdapter) GenerateImage(ctx context.Context, req Request) ([]byte, error) {
	if req.Prompt == "" {
		return nil, provider.NewError(provider.KindBadRequest, "image", errors.New("empty prompt"))
	}

	var out []byte
	err := provider.Do(ctx, a.retry, func(ctx context.Context, attempt int) (bool, error) {
		body := dalleRequest{
			Prompt:         req.Prompt,
			Size:           fmt.Sprintf("%dx%d", req.Width, req.Height),
			Number:         1,
			ResponseFormat: "b64_json",
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return false, provider.NewError(provider.KindBadRequest, "image", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(payload))
		if err != nil {
			return false, provider.NewError(provider.KindBadRequest, "image", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(httpReq)
		if err != nil {
			a.logger.Warn("image request failed", zap.Int("attempt", attempt), zap.Error(err))
			return true, provider.NewError(provider.KindTransient, "image", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return true, provider.NewError(provider.KindTransient, "image", err)
		}

		if resp.StatusCode != http.StatusOK {
			if provider.RetriableHTTPStatus(resp.StatusCode) {
				return true, provider.NewError(provider.KindTransient, "image", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
			}
			return false, provider.NewError(provider.KindBadRequest, "image", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
		}

		var decoded dalleResponse
		if err := json.Unmarshal(respBody, &decoded); err != nil || len(decoded.Data) == 0 {
			return true, provider.NewError(provider.KindUpstreamMalformed, "image", errors.New("unparsable image response"))
		}

		imgBytes, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
		if err != nil {
			return false, provider.NewError(provider.KindUpstreamMalformed, "image", err)
		}
		out = imgBytes
		return false, nil
	})
	return out, err
}
