package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"storypipeline/internal/provider"
)

// ParsePlan decodes and validates a story-plan prompt response (§4.D.1).
func ParsePlan(raw string) (Plan, error) {
	var plan Plan
	if err := decodeStrict(raw, &plan); err != nil {
		return Plan{}, provider.NewError(provider.KindUpstreamMalformed, "plan", err)
	}
	if len(plan.Characters) == 0 {
		return Plan{}, provider.NewError(provider.KindUpstreamMalformed, "plan", fmt.Errorf("character list is empty"))
	}
	if len(plan.Scenes) == 0 {
		return Plan{}, provider.NewError(provider.KindUpstreamMalformed, "plan", fmt.Errorf("scene list is empty"))
	}
	seen := make(map[int]bool, len(plan.Scenes))
	for _, s := range plan.Scenes {
		if s.Sequence < 0 || s.Sequence >= len(plan.Scenes) {
			return Plan{}, provider.NewError(provider.KindUpstreamMalformed, "plan", fmt.Errorf("scene sequence %d out of range 0..%d", s.Sequence, len(plan.Scenes)-1))
		}
		if seen[s.Sequence] {
			return Plan{}, provider.NewError(provider.KindUpstreamMalformed, "plan", fmt.Errorf("duplicate scene sequence %d", s.Sequence))
		}
		seen[s.Sequence] = true
		if strings.TrimSpace(s.Text) == "" {
			return Plan{}, provider.NewError(provider.KindUpstreamMalformed, "plan", fmt.Errorf("scene %d has empty text", s.Sequence))
		}
		if strings.TrimSpace(s.ImagePrompt) == "" {
			return Plan{}, provider.NewError(provider.KindUpstreamMalformed, "plan", fmt.Errorf("scene %d has empty image_prompt", s.Sequence))
		}
	}
	return plan, nil
}

// ParseVisualProfile decodes a visual-profile prompt response (§4.D.2).
func ParseVisualProfile(raw string) (VisualProfile, error) {
	var profile VisualProfile
	if err := decodeStrict(raw, &profile); err != nil {
		return VisualProfile{}, provider.NewError(provider.KindUpstreamMalformed, "visual_profile", err)
	}
	return profile, nil
}

// ParseBaseStyle decodes a base-style prompt response (§4.D.3).
func ParseBaseStyle(raw string) (BaseStyle, error) {
	var style BaseStyle
	if err := decodeStrict(raw, &style); err != nil {
		return BaseStyle{}, provider.NewError(provider.KindUpstreamMalformed, "base_style", err)
	}
	return style, nil
}

// ParseSceneMoment decodes a scene-moment prompt response (§4.D.4).
func ParseSceneMoment(raw string) (SceneMoment, error) {
	var moment SceneMoment
	if err := decodeStrict(raw, &moment); err != nil {
		return SceneMoment{}, provider.NewError(provider.KindUpstreamMalformed, "scene_moment", err)
	}
	return moment, nil
}

// decodeStrict extracts the first balanced JSON object out of raw (which
// may carry surrounding prose from a chat-style LLM response) and decodes
// it disallowing unknown fields, mirroring the teacher's
// shared/utils.DecodeStrict.
func decodeStrict(raw string, out interface{}) error {
	object, err := extractJSONObject(raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(object))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// extractJSONObject scans s for the first balanced {...} block, tolerating
// surrounding prose, and returns its bytes. Braces inside string literals
// (including escaped quotes) are not treated as structural.
func extractJSONObject(s string) ([]byte, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return []byte(s[start : i+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in response")
}
