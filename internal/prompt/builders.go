package prompt

import "fmt"

// BuildPlanPrompt renders the story-plan prompt (§4.D.1). sceneCount is a
// hint, not a hard constraint (§9 Open Questions): the LLM may return a
// different count and the Orchestrator accepts whatever it produces.
func BuildPlanPrompt(title, userPrompt string, sceneCount int) string {
	return fmt.Sprintf(`You are a children's story writer and structured data extractor.

Given a story title and a short premise, produce a single JSON object and
nothing else: no prose before or after it.

Title: %s
Premise: %s
Target scene count: %d (a guideline; use your judgment if the premise needs
more or fewer beats)

The JSON object must have exactly these top-level fields:
  "title": string, the finalized story title
  "characters": array of objects, each with "name", "role", and
    "visual_description" (a concrete, reusable description of how the
    character looks, for use across illustrations); at least one character
  "scenes": array of objects, each with "sequence" (integer, starting at 0,
    contiguous), "title", "text" (the narrative prose for that scene), and
    "image_prompt" (a short visual description of what the scene's
    illustration should show)

Every "text" and "image_prompt" must be non-empty. Sequences must be
0..N-1 with no gaps or repeats. Return raw JSON only.`, title, userPrompt, sceneCount)
}

// BuildVisualProfilePrompt renders the visual-profile prompt (§4.D.2).
func BuildVisualProfilePrompt(plan Plan) string {
	return fmt.Sprintf(`You are a visual continuity editor for an illustrated children's story.

Story title: %s
Characters: %s

Produce a single JSON object and nothing else, with exactly this shape:
  "characters": array of objects, each with "name" (matching a character
  above) and "canonical_appearance" (a precise, illustration-ready
  description an artist could follow consistently across every scene)

Return raw JSON only.`, plan.Title, characterSummary(plan.Characters))
}

// BuildBaseStylePrompt renders the base-style prompt (§4.D.3).
func BuildBaseStylePrompt(plan Plan) string {
	return fmt.Sprintf(`You are an art director defining the shared visual style for an
illustrated children's story.

Story title: %s
Scene count: %d

Produce a single JSON object and nothing else, with exactly this shape:
  "palette": string, the overall color palette
  "lighting": string, the general lighting approach
  "medium": string, the illustration medium (e.g. watercolor, digital
    painting, cut-paper collage)
  "composition_notes": string, any recurring compositional rules

Return raw JSON only.`, plan.Title, len(plan.Scenes))
}

// BuildSceneMomentPrompt renders the scene-moment prompt (§4.D.4) for the
// scene at index sceneIdx within plan.Scenes.
func BuildSceneMomentPrompt(plan Plan, sceneIdx int, visual VisualProfile, base BaseStyle) string {
	scene := plan.Scenes[sceneIdx]
	return fmt.Sprintf(`You are illustrating one moment of a children's story.

Story title: %s
Scene text: %s
Scene image prompt: %s
Base style: palette=%s, lighting=%s, medium=%s
Visual profile: %s

Produce a single JSON object and nothing else, with exactly this shape:
  "moment_description": string, the specific visual moment to depict
  "camera": string, the framing/angle
  "mood": string, the emotional tone of the shot

Return raw JSON only.`, plan.Title, scene.Text, scene.ImagePrompt,
		base.Palette, base.Lighting, base.Medium, visualProfileSummary(visual))
}

func characterSummary(characters []Character) string {
	out := ""
	for i, c := range characters {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s (%s): %s", c.Name, c.Role, c.VisualDescription)
	}
	return out
}

func visualProfileSummary(visual VisualProfile) string {
	out := ""
	for i, c := range visual.Characters {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s: %s", c.Name, c.CanonicalAppearance)
	}
	return out
}
