package text

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// mockAdapter returns canned, stage-appropriate text from a fixture
// directory after a configurable delay, per §4.A's mock_ai contract.
// Mirrors the original Celery implementation's ai_service_mock_adapter,
// kept as a distinct implementation of the same Adapter interface (§9
// design note). A single adapter instance is shared by all four text-LLM
// stages (plan, visual profile, base style, scene moment), so it classifies
// each request by its prompt, the same way internal/orchestrator's test
// fakes do, and returns a response shaped for that stage's parser.
type mockAdapter struct {
	fixtureDir string
	delay      time.Duration
}

// NewMockAdapter builds a mock Text LLM adapter. If fixtureDir contains a
// file named "<stage>.json" for the classified stage, its contents are
// returned verbatim; otherwise a canned, schema-correct response for that
// stage is synthesized so mock mode can drive a Story all the way to
// COMPLETED without any fixtures on disk.
func NewMockAdapter(fixtureDir string, delay time.Duration) Adapter {
	return &mockAdapter{fixtureDir: fixtureDir, delay: delay}
}

func (a *mockAdapter) GenerateText(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(a.delay):
	}

	stage := classifyPrompt(req.Prompt)

	if a.fixtureDir != "" {
		path := filepath.Join(a.fixtureDir, stage+".json")
		if b, err := os.ReadFile(path); err == nil {
			return string(b), nil
		}
	}
	return fallbackResponses[stage], nil
}

const (
	stagePlan          = "plan"
	stageVisualProfile = "visual_profile"
	stageBaseStyle     = "base_style"
	stageSceneMoment   = "scene_moment"
)

// classifyPrompt infers which of the four text-LLM stages a prompt belongs
// to from a phrase unique to the corresponding builder in
// internal/prompt/builders.go.
func classifyPrompt(p string) string {
	switch {
	case strings.Contains(p, "Target scene count"):
		return stagePlan
	case strings.Contains(p, "visual continuity editor"):
		return stageVisualProfile
	case strings.Contains(p, "art director defining"):
		return stageBaseStyle
	default:
		return stageSceneMoment
	}
}

var fallbackResponses = map[string]string{
	stagePlan: `{
  "title": "The Lantern Grove",
  "characters": [
    {"name": "Mila", "role": "protagonist", "visual_description": "a curious girl with braided red hair and a green coat"}
  ],
  "scenes": [
    {"sequence": 0, "title": "Into the grove", "text": "Mila steps past the old gate and the lanterns begin to glow.", "image_prompt": "a girl entering a glowing lantern-lit grove at dusk"},
    {"sequence": 1, "title": "The clearing", "text": "At the heart of the grove Mila finds a circle of singing fireflies.", "image_prompt": "a ring of glowing fireflies around a girl in a forest clearing"}
  ]
}`,
	stageVisualProfile: `{"characters": [{"name": "Mila", "canonical_appearance": "red braided hair, green wool coat, brass-buttoned boots"}]}`,
	stageBaseStyle:     `{"palette": "warm amber and deep forest green", "lighting": "soft lantern glow with long shadows", "medium": "watercolor", "composition_notes": "keep the horizon low, frame characters slightly off-center"}`,
	stageSceneMoment:   `{"moment_description": "Mila pausing at the threshold as the first lantern flickers on", "camera": "waist-level, three-quarter view", "mood": "wonder tinged with caution"}`,
}
