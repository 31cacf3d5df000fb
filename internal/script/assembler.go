// Package script assembles publishable voice-tagged page scripts from
// analyzed pages and the resolved voice map.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panelvox/panelvox/internal/classify"
	"github.com/panelvox/panelvox/internal/match"
	"github.com/panelvox/panelvox/pkg/types"
)

// NarratorSpeaker is the synthetic character used when narration is enabled.
const NarratorSpeaker = "Narrator"

// VoiceSource resolves a character name to an already-assigned voice handle.
// Implemented by the roster store.
type VoiceSource interface {
	VoiceFor(name, sceneID string) (string, bool)
}

// VoiceAssigner assigns a fresh voice handle for a category. Implemented by
// the voice registry; used as the fallback when a dialogue speaker is absent
// from the voice map.
type VoiceAssigner interface {
	Assign(ctx context.Context, name string, category classify.Category, explicit string) (string, error)
}

// Assembler builds per-page scripts, folding in resolved voices.
type Assembler struct {
	log           *slog.Logger
	voices        VoiceSource
	registry      VoiceAssigner
	resolver      *match.Resolver
	classifier    classify.Classifier
	narratorVoice string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(a *Assembler) {
		a.log = log
	}
}

// WithNarrator enables a synthetic Narrator character speaking each page's
// scene description as the first line, using the given voice handle.
func WithNarrator(voice string) Option {
	return func(a *Assembler) {
		a.narratorVoice = voice
	}
}

// WithResolver sets the speaker-label resolver used before falling back to a
// fresh voice assignment.
func WithResolver(r *match.Resolver) Option {
	return func(a *Assembler) {
		a.resolver = r
	}
}

// WithClassifier sets the category classifier for fallback assignments.
func WithClassifier(c classify.Classifier) Option {
	return func(a *Assembler) {
		a.classifier = c
	}
}

// New creates an Assembler over the given voice source and fallback assigner.
func New(voices VoiceSource, registry VoiceAssigner, opts ...Option) *Assembler {
	a := &Assembler{
		log:      slog.Default(),
		voices:   voices,
		registry: registry,
	}
	for _, o := range opts {
		o(a)
	}
	if a.resolver == nil {
		a.resolver = match.New()
	}
	if a.classifier == nil {
		a.classifier = classify.KeywordClassifier{}
	}
	a.log = a.log.With("component", "assembler")
	return a
}

// Assemble builds the script for one page. The page's dialogue text is taken
// as-is (the pipeline has already folded in enhancement), sound-effect lines
// are kept in the page analysis but excluded from the voiced dialogue, and
// any speaker missing from the voice map gets a voice on the fly.
//
// The only hard error is a fallback assignment failing, which means a
// misconfigured voice pool; everything else degrades with a warning.
func (a *Assembler) Assemble(ctx context.Context, sceneID string, page types.PageAnalysis, roster []types.RosterEntry) (*types.PageScript, error) {
	ps := &types.PageScript{
		PageID:           fmt.Sprintf("%s_page_%03d", sceneID, page.PageNumber),
		SceneTitle:       sceneID,
		SceneDescription: page.Scene,
		Characters:       make(map[string]types.CharacterVoice),
		Dialogue:         []types.ScriptEntry{},
		GeneratedAt:      time.Now().UTC(),
	}

	names := make([]string, 0, len(roster))
	emotions := make(map[string]string, len(roster))
	hints := make(map[string]string, len(roster))
	for _, e := range roster {
		names = append(names, e.Name)
		emotions[e.Name] = e.DominantEmotion
		hints[e.Name] = e.GenderHint
	}

	if a.narratorVoice != "" && page.Scene != "" {
		ps.Characters[NarratorSpeaker] = types.CharacterVoice{Voice: a.narratorVoice, Expression: "calm"}
		// The delivery tag rides in the text itself; synthesis only sees Text.
		ps.Dialogue = append(ps.Dialogue, types.ScriptEntry{
			Speaker:    NarratorSpeaker,
			Voice:      a.narratorVoice,
			Text:       "[calm] " + page.Scene,
			Page:       page.PageNumber,
			Emotion:    "calm",
			Confidence: 1,
		})
	}

	for _, present := range page.CharactersPresent {
		if present == "" || present == types.SoundEffectSpeaker {
			continue
		}
		if _, err := a.ensureVoice(ctx, ps, sceneID, present, names, emotions, hints, ""); err != nil {
			return nil, err
		}
	}

	for _, line := range page.Dialogue {
		if line.Speaker == types.SoundEffectSpeaker || line.Speaker == "" {
			continue
		}
		speaker, err := a.ensureVoice(ctx, ps, sceneID, line.Speaker, names, emotions, hints, line.Emotion)
		if err != nil {
			return nil, err
		}
		ps.Dialogue = append(ps.Dialogue, types.ScriptEntry{
			Speaker:    speaker,
			Voice:      ps.Characters[speaker].Voice,
			Text:       line.Text,
			Page:       page.PageNumber,
			Emotion:    line.Emotion,
			Confidence: line.Confidence,
		})
	}

	return ps, nil
}

// ensureVoice resolves the label to a canonical roster name where possible,
// looks up its voice, assigns one if everything misses, and records the
// character in the script's map. Returns the canonical speaker name.
func (a *Assembler) ensureVoice(ctx context.Context, ps *types.PageScript, sceneID, label string, names []string, emotions, hints map[string]string, lineEmotion string) (string, error) {
	name := label
	if _, ok := ps.Characters[name]; ok {
		return name, nil
	}

	voice, ok := a.voices.VoiceFor(name, sceneID)
	if !ok {
		if resolved, conf, matched := a.resolver.Resolve(label, names); matched && resolved != label {
			a.log.Debug("speaker label reconciled",
				"label", label,
				"name", resolved,
				"confidence", conf,
			)
			name = resolved
			if _, present := ps.Characters[name]; present {
				return name, nil
			}
			voice, ok = a.voices.VoiceFor(name, sceneID)
		}
	}
	if !ok {
		// Analyzer drift produced a speaker the roster pass never saw.
		category := classify.FromHint(hints[name], name, a.classifier)
		assigned, err := a.registry.Assign(ctx, name, category, "")
		if err != nil {
			return "", fmt.Errorf("script: fallback voice for %q: %w", name, err)
		}
		a.log.Warn("speaker missing from voice map, assigned on the fly",
			"speaker", name,
			"voice", assigned,
			"page", ps.PageID,
		)
		voice = assigned
	}

	expression := emotions[name]
	if expression == "" {
		expression = lineEmotion
	}
	if expression == "" {
		expression = "neutral"
	}
	ps.Characters[name] = types.CharacterVoice{Voice: voice, Expression: expression}
	return name, nil
}
