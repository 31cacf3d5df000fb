// Package types defines the shared types used across all Panelvox packages.
//
// These types form the lingua franca between page sources, analysis providers,
// the consistency stores, and the pipeline. Each package defines its own
// domain types; cross-cutting data structures live here to avoid circular
// imports.
package types

import "time"

// SoundEffectSpeaker is the synthetic speaker label used for onomatopoeia
// lines. Sound effects flow through dialogue in reading order but are never
// registered as characters.
const SoundEffectSpeaker = "Sound Effect"

// PageImage is a single extracted comic page, ordered by page number.
type PageImage struct {
	// Number is the 1-based page number within the scene.
	Number int

	// Path is the image file location on disk, if the page was persisted.
	Path string

	// Data holds the encoded image bytes (PNG or JPEG).
	Data []byte

	// MIMEType describes Data (e.g. "image/png"). Defaults to PNG when empty.
	MIMEType string
}

// RosterEntry is one distinct speaking character identified by the global
// identification pass across all pages of a scene.
type RosterEntry struct {
	// Name is the stable label assigned by the analyzer — a real name when
	// inferable, else a generic placeholder like "Blond Soldier".
	Name string `json:"name"`

	// GenderHint is "male", "female", or "unknown".
	GenderHint string `json:"gender_hint"`

	// Importance is one of "main", "supporting", or "background".
	Importance string `json:"importance"`

	// Pages lists the page numbers this character appears on.
	Pages []int `json:"pages"`

	// Description is a short visual description used as Pass-2 context.
	Description string `json:"description"`

	// DominantEmotion is the character's prevailing emotion across the scene.
	DominantEmotion string `json:"dominant_emotion"`
}

// DialogueLine is one speech bubble (or sound effect) in reading order:
// right-to-left, top-to-bottom.
type DialogueLine struct {
	// Speaker is a roster label, or [SoundEffectSpeaker] for onomatopoeia.
	Speaker string `json:"speaker"`

	// Text is the spoken text. Sound-effect text is bracketed, e.g. "[THUD]".
	Text string `json:"text"`

	// Emotion is the analyzer's emotion tag for this line.
	Emotion string `json:"emotion"`

	// Confidence is the analyzer's attribution confidence (0.0–1.0).
	Confidence float64 `json:"confidence"`
}

// PageAnalysis is the per-page extraction result. Produced by the analyzer,
// then mutated in place by the pipeline: enhancement rewrites dialogue text,
// and the assembler injects resolved voice handles downstream.
type PageAnalysis struct {
	PageNumber int    `json:"page_number"`
	Scene      string `json:"scene"`

	// Dialogue is ordered by reading order and includes sound-effect lines.
	Dialogue []DialogueLine `json:"dialogue"`

	// CharactersPresent lists roster labels visible on this page.
	CharactersPresent []string `json:"characters_present"`

	// Atmosphere is free-form ambient text for this page.
	Atmosphere string `json:"atmosphere"`
}

// CharacterSummary is the roster-derived consistency entry for one character
// in a reconciled scene analysis.
type CharacterSummary struct {
	Name        string `json:"name"`
	Appearances int    `json:"appearance_count"`
	Importance  string `json:"importance"`
	Pages       []int  `json:"pages"`
	GenderHint  string `json:"gender_hint"`
	Description string `json:"description"`
}

// SceneSummary aggregates scene-level findings from both passes.
type SceneSummary struct {
	MainCharacters       []string `json:"main_characters"`
	SupportingCharacters []string `json:"supporting_characters"`

	// AmbientContext is the unique page atmospheres joined with " | ".
	AmbientContext string `json:"ambient_context"`

	// ConsistencyScore is main-character count / total character count.
	ConsistencyScore float64 `json:"consistency_score"`
}

// SceneAnalysis is the reconciled output of both analysis passes for a scene.
type SceneAnalysis struct {
	SceneID    string             `json:"scene_id"`
	TotalPages int                `json:"total_pages"`
	Pages      []PageAnalysis     `json:"page_analyses"`
	Characters []CharacterSummary `json:"characters"`
	Summary    SceneSummary       `json:"scene_summary"`
}

// CharacterVoice is one entry in a page script's character map.
type CharacterVoice struct {
	// Voice is the synthesis-voice handle resolved for this character.
	Voice string `json:"voice_id"`

	// Expression is the character's dominant emotion on this page.
	Expression string `json:"expression"`
}

// ScriptEntry is one voice-tagged dialogue line in a page script.
type ScriptEntry struct {
	Speaker    string  `json:"speaker"`
	Voice      string  `json:"voice_id"`
	Text       string  `json:"text"`
	Page       int     `json:"page_number"`
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// PageScript is the publishable script for a single page, ready for per-line
// speech synthesis.
type PageScript struct {
	PageID           string                    `json:"page_id"`
	SceneTitle       string                    `json:"scene_title"`
	SceneDescription string                    `json:"scene_description"`
	Characters       map[string]CharacterVoice `json:"characters"`
	Dialogue         []ScriptEntry             `json:"dialogue"`
	GeneratedAt      time.Time                 `json:"generated_at"`
}

// Clip is one synthesized audio segment for a single dialogue line.
type Clip struct {
	// Audio holds the encoded audio bytes.
	Audio []byte

	// Duration is the estimated playback length. Providers that cannot
	// report duration exactly estimate it from the byte count and format.
	Duration time.Duration

	// Format identifies the audio encoding (e.g. "mp3_44100_128", "pcm_16000").
	Format string
}

// Voice describes a synthesis voice available from a speech provider.
type Voice struct {
	// ID is the provider-specific voice handle.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which speech provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific attributes (gender, accent, age, ...).
	Metadata map[string]string
}
