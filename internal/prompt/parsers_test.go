package prompt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storypipeline/internal/prompt"
	"storypipeline/internal/provider"
)

func TestParsePlan_Valid(t *testing.T) {
	raw := `Sure, here is the plan:
{
  "title": "Forest",
  "characters": [{"name": "Mila", "role": "protagonist", "visual_description": "a small girl with a red scarf"}],
  "scenes": [
    {"sequence": 0, "title": "Into the woods", "text": "Mila steps into the forest.", "image_prompt": "girl entering dark forest"},
    {"sequence": 1, "title": "The clearing", "text": "She finds a glowing clearing.", "image_prompt": "glowing clearing at dusk"}
  ]
}
Hope that helps!`

	plan, err := prompt.ParsePlan(raw)
	require.NoError(t, err)
	assert.Equal(t, "Forest", plan.Title)
	assert.Len(t, plan.Characters, 1)
	assert.Len(t, plan.Scenes, 2)
}

func TestParsePlan_RejectsDuplicateSequence(t *testing.T) {
	raw := `{
  "title": "Forest",
  "characters": [{"name": "Mila", "role": "protagonist", "visual_description": "x"}],
  "scenes": [
    {"sequence": 0, "title": "a", "text": "a", "image_prompt": "a"},
    {"sequence": 0, "title": "b", "text": "b", "image_prompt": "b"}
  ]
}`
	_, err := prompt.ParsePlan(raw)
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindUpstreamMalformed))
}

func TestParsePlan_RejectsEmptyText(t *testing.T) {
	raw := `{
  "title": "Forest",
  "characters": [{"name": "Mila", "role": "protagonist", "visual_description": "x"}],
  "scenes": [{"sequence": 0, "title": "a", "text": "", "image_prompt": "a"}]
}`
	_, err := prompt.ParsePlan(raw)
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindUpstreamMalformed))
}

func TestParsePlan_RejectsNonJSON(t *testing.T) {
	_, err := prompt.ParsePlan("this is not json at all")
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindUpstreamMalformed))
}

func TestParsePlan_RejectsUnknownFields(t *testing.T) {
	raw := `{
  "title": "Forest",
  "characters": [{"name": "Mila", "role": "protagonist", "visual_description": "x"}],
  "scenes": [{"sequence": 0, "title": "a", "text": "a", "image_prompt": "a"}],
  "unexpected_field": true
}`
	_, err := prompt.ParsePlan(raw)
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindUpstreamMalformed))
}

func TestParseVisualProfile_Roundtrip(t *testing.T) {
	raw := `{"characters": [{"name": "Mila", "canonical_appearance": "small girl, red scarf, brown hair"}]}`
	profile, err := prompt.ParseVisualProfile(raw)
	require.NoError(t, err)
	require.Len(t, profile.Characters, 1)
	assert.Equal(t, "Mila", profile.Characters[0].Name)
}

func TestParseBaseStyle_Roundtrip(t *testing.T) {
	raw := `{"palette": "warm autumn tones", "lighting": "soft golden hour", "medium": "watercolor", "composition_notes": "rule of thirds"}`
	style, err := prompt.ParseBaseStyle(raw)
	require.NoError(t, err)
	assert.Equal(t, "watercolor", style.Medium)
}

func TestParseSceneMoment_Roundtrip(t *testing.T) {
	raw := `{"moment_description": "Mila reaches for a glowing flower", "camera": "low angle", "mood": "wonder"}`
	moment, err := prompt.ParseSceneMoment(raw)
	require.NoError(t, err)
	assert.Equal(t, "wonder", moment.Mood)
}

func TestComposeImagePrompt_IncludesOnlyMentionedCharacters(t *testing.T) {
	base := prompt.BaseStyle{Palette: "warm autumn tones", Lighting: "golden hour", Medium: "watercolor"}
	visual := prompt.VisualProfile{Characters: []prompt.VisualProfileCharacter{
		{Name: "Mila", CanonicalAppearance: "small girl, red scarf"},
		{Name: "Oak", CanonicalAppearance: "ancient talking tree"},
	}}
	moment := prompt.SceneMoment{MomentDescription: "Mila waves at the glow", Camera: "wide shot", Mood: "wonder"}

	result := prompt.ComposeImagePrompt(base, visual, moment, "Mila waved at the light.", "mila waving at a glowing clearing")

	assert.Contains(t, result, "small girl, red scarf")
	assert.NotContains(t, result, "ancient talking tree")
	assert.Contains(t, result, "watercolor")
	assert.Contains(t, result, "wonder")
}

func TestComposeImagePrompt_WholeWordMatchOnly(t *testing.T) {
	base := prompt.BaseStyle{Palette: "cool blues"}
	visual := prompt.VisualProfile{Characters: []prompt.VisualProfileCharacter{
		{Name: "Al", CanonicalAppearance: "tall robot"},
	}}
	moment := prompt.SceneMoment{MomentDescription: "A calm alley scene"}

	// "alley" contains "al" as a substring but not as a whole word.
	result := prompt.ComposeImagePrompt(base, visual, moment, "A calm alley scene", "an alley at night")

	assert.NotContains(t, result, "tall robot")
}
