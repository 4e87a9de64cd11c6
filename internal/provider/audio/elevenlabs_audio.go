package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storypipeline/internal/provider"
)

// elevenLabsVoiceSettings and elevenLabsRequest mirror the upstream
// text-to-speech API, grounded on MoiseiLiviu-story-generation-api's
// infrastructure/adapters/audio_generator.go.
type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

// elevenLabsAdapter implements Adapter against an ElevenLabs-compatible
// text-to-speech HTTP API.
type elevenLabsAdapter struct {
	baseURL       string
	apiKey        string
	standardModel string
	hqModel       string
	httpClient    *http.Client
	logger        *zap.Logger
	retry         provider.RetryPolicy
}

// NewElevenLabsAdapter builds a live Audio adapter.
func NewElevenLabsAdapter(baseURL, apiKey, standardModel, hqModel string, timeout time.Duration, logger *zap.Logger) Adapter {
	return &elevenLabsAdapter{
		baseURL:       baseURL,
		apiKey:        apiKey,
		standardModel: standardModel,
		hqModel:       hqModel,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger.Named("AudioAdapter.elevenlabs"),
		retry:         provider.DefaultRetryPolicy,
	}
}

func (a *elevenLabsAdapter) GenerateAudio(ctx context.Context, req Request) ([]byte, error) {
	if req.Text == "" {
		return nil, provider.NewError(provider.KindBadRequest, "audio", errors.New("empty narration text"))
	}
	if req.VoiceID == "" {
		return nil, provider.NewError(provider.KindBadRequest, "audio", errors.New("empty voice id"))
	}

	model := a.standardModel
	if req.HQ {
		model = a.hqModel
	}

	var out []byte
	err := provider.Do(ctx, a.retry, func(ctx context.Context, attempt int) (bool, error) {
		body := elevenLabsRequest{
			Text:    req.Text,
			ModelID: model,
			VoiceSettings: elevenLabsVoiceSettings{
				Stability:       0.5,
				SimilarityBoost: 0.75,
			},
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return false, provider.NewError(provider.KindBadRequest, "audio", err)
		}

		url := fmt.Sprintf("%s/%s", a.baseURL, req.VoiceID)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return false, provider.NewError(provider.KindBadRequest, "audio", err)
		}
		httpReq.Header.Set("Accept", "audio/mpeg")
		httpReq.Header.Set("xi-api-key", a.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(httpReq)
		if err != nil {
			a.logger.Warn("audio request failed", zap.Int("attempt", attempt), zap.Error(err))
			return true, provider.NewError(provider.KindTransient, "audio", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return true, provider.NewError(provider.KindTransient, "audio", err)
		}

		if resp.StatusCode != http.StatusOK {
			if provider.RetriableHTTPStatus(resp.StatusCode) {
				return true, provider.NewError(provider.KindTransient, "audio", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
			}
			return false, provider.NewError(provider.KindBadRequest, "audio", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
		}
		if len(respBody) == 0 {
			return true, provider.NewError(provider.KindUpstreamMalformed, "audio", errors.New("empty audio body"))
		}
		out = respBody
		return false, nil
	})
	return out, err
}
