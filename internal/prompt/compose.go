package prompt

import (
	"regexp"
	"strings"
)

// ComposeImagePrompt builds the final image-generation prompt for one
// scene per the deterministic concatenation rule (§4.D): base style, then
// the visual profile of every character whose name appears in sceneText
// or sceneImagePrompt (case-insensitive whole-word match), then the scene
// moment. Order is stable: characters are considered in the order they
// appear in visual.Characters.
func ComposeImagePrompt(base BaseStyle, visual VisualProfile, moment SceneMoment, sceneText, sceneImagePrompt string) string {
	haystack := sceneText + " " + sceneImagePrompt

	var parts []string
	parts = append(parts, strings.TrimSpace(joinNonEmpty([]string{base.Palette, base.Lighting, base.Medium, base.CompositionNotes}, ", ")))

	for _, c := range visual.Characters {
		if characterMentioned(haystack, c.Name) {
			parts = append(parts, c.CanonicalAppearance)
		}
	}

	parts = append(parts, strings.TrimSpace(joinNonEmpty([]string{moment.MomentDescription, moment.Camera, moment.Mood}, ", ")))

	return joinNonEmpty(parts, ". ")
}

func characterMentioned(haystack, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	pattern := `(?i)\b` + regexp.QuoteMeta(name) + `\b`
	matched, err := regexp.MatchString(pattern, haystack)
	return err == nil && matched
}

func joinNonEmpty(parts []string, sep string) string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
