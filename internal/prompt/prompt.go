// Package prompt implements the Prompt Assembler (§4.D): deterministic
// construction of structured JSON-producing prompts for each text-LLM
// stage, together with parsers that tolerate surrounding prose and
// validate the decoded shape strictly. Grounded on the teacher's
// shared/utils.DecodeStrict (reject unknown fields) and on the narrative
// structure of original_source/app/services/prompt_templates.py, adapted
// to the flatter plan/visual-profile/base-style/scene-moment schema
// named by the specification.
package prompt

// Character is one entry in a Plan's character list.
type Character struct {
	Name              string `json:"name"`
	Role              string `json:"role"`
	VisualDescription string `json:"visual_description"`
}

// PlanScene is one narrative beat produced by the story-plan stage.
type PlanScene struct {
	Sequence    int    `json:"sequence"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	ImagePrompt string `json:"image_prompt"`
}

// Plan is the decoded story-plan prompt response (§4.D.1).
type Plan struct {
	Title      string      `json:"title"`
	Characters []Character `json:"characters"`
	Scenes     []PlanScene `json:"scenes"`
}

// VisualProfileCharacter is one character's canonical appearance anchor.
type VisualProfileCharacter struct {
	Name                string `json:"name"`
	CanonicalAppearance string `json:"canonical_appearance"`
}

// VisualProfile is the decoded visual-profile prompt response (§4.D.2).
type VisualProfile struct {
	Characters []VisualProfileCharacter `json:"characters"`
}

// BaseStyle is the decoded base-style prompt response (§4.D.3).
type BaseStyle struct {
	Palette           string `json:"palette"`
	Lighting          string `json:"lighting"`
	Medium            string `json:"medium"`
	CompositionNotes  string `json:"composition_notes"`
}

// SceneMoment is the decoded scene-moment prompt response (§4.D.4).
type SceneMoment struct {
	MomentDescription string `json:"moment_description"`
	Camera            string `json:"camera"`
	Mood              string `json:"mood"`
}
