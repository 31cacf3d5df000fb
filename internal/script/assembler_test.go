package script

import (
	"context"
	"errors"
	"testing"

	"github.com/panelvox/panelvox/internal/classify"
	"github.com/panelvox/panelvox/pkg/types"
)

type fakeVoices map[string]string

func (f fakeVoices) VoiceFor(name, _ string) (string, bool) {
	v, ok := f[name]
	return v, ok
}

type fakeAssigner struct {
	next     int
	assigned map[string]classify.Category
	err      error
}

func (f *fakeAssigner) Assign(_ context.Context, name string, category classify.Category, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.assigned == nil {
		f.assigned = make(map[string]classify.Category)
	}
	f.assigned[name] = category
	f.next++
	return string(category[:1]) + "-fallback", nil
}

func testRoster() []types.RosterEntry {
	return []types.RosterEntry{
		{Name: "Eren", GenderHint: "male", Importance: "main", DominantEmotion: "angry"},
		{Name: "Mikasa", GenderHint: "female", Importance: "supporting", DominantEmotion: "calm"},
	}
}

func testPage() types.PageAnalysis {
	return types.PageAnalysis{
		PageNumber:        2,
		Scene:             "Eren turns from the breach.",
		CharactersPresent: []string{"Eren", "Mikasa"},
		Atmosphere:        "dust",
		Dialogue: []types.DialogueLine{
			{Speaker: "Eren", Text: "[shouting] I'll destroy them all!", Emotion: "furious", Confidence: 0.95},
			{Speaker: types.SoundEffectSpeaker, Text: "[THUD]", Emotion: "neutral", Confidence: 1},
			{Speaker: "Mikasa", Text: "[softly] Calm down.", Emotion: "calm", Confidence: 0.9},
		},
	}
}

func TestAssembleFoldsVoices(t *testing.T) {
	t.Parallel()

	voices := fakeVoices{"Eren": "m1", "Mikasa": "f1"}
	a := New(voices, &fakeAssigner{})

	ps, err := a.Assemble(context.Background(), "ch1", testPage(), testRoster())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if ps.PageID != "ch1_page_002" {
		t.Errorf("PageID = %q", ps.PageID)
	}
	if got := ps.Characters["Eren"]; got.Voice != "m1" || got.Expression != "angry" {
		t.Errorf("Eren = %+v", got)
	}
	if got := ps.Characters["Mikasa"]; got.Voice != "f1" || got.Expression != "calm" {
		t.Errorf("Mikasa = %+v", got)
	}

	// Sound effects stay in the page analysis but never enter the voiced
	// dialogue or the character map.
	if len(ps.Dialogue) != 2 {
		t.Fatalf("dialogue length = %d, want 2", len(ps.Dialogue))
	}
	if _, ok := ps.Characters[types.SoundEffectSpeaker]; ok {
		t.Error("sound effect must not appear in the character map")
	}
	if ps.Dialogue[0].Speaker != "Eren" || ps.Dialogue[1].Speaker != "Mikasa" {
		t.Errorf("dialogue order broken: %+v", ps.Dialogue)
	}
	if ps.Dialogue[0].Voice != "m1" {
		t.Errorf("dialogue[0].Voice = %q", ps.Dialogue[0].Voice)
	}

	if report := Validate(ps); !report.Valid() {
		t.Errorf("valid script reported problems: %v", report.Problems)
	}
}

func TestAssembleNarrator(t *testing.T) {
	t.Parallel()

	voices := fakeVoices{"Eren": "m1", "Mikasa": "f1"}
	a := New(voices, &fakeAssigner{}, WithNarrator("n1"))

	ps, err := a.Assemble(context.Background(), "ch1", testPage(), testRoster())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if got := ps.Characters[NarratorSpeaker]; got.Voice != "n1" {
		t.Fatalf("narrator = %+v", got)
	}
	first := ps.Dialogue[0]
	if first.Speaker != NarratorSpeaker || first.Text != "[calm] Eren turns from the breach." {
		t.Errorf("narrator must speak the tagged scene description first, got %+v", first)
	}
	if len(ps.Dialogue) != 3 {
		t.Errorf("dialogue length = %d, want narrator + 2", len(ps.Dialogue))
	}
}

func TestAssembleNarratorSkippedWithoutDescription(t *testing.T) {
	t.Parallel()

	a := New(fakeVoices{"Eren": "m1"}, &fakeAssigner{}, WithNarrator("n1"))

	page := types.PageAnalysis{PageNumber: 1, Dialogue: []types.DialogueLine{
		{Speaker: "Eren", Text: "hey", Emotion: "neutral", Confidence: 1},
	}}
	ps, err := a.Assemble(context.Background(), "ch1", page, testRoster())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if _, ok := ps.Characters[NarratorSpeaker]; ok {
		t.Error("narrator entry requires a scene description")
	}
}

func TestAssembleReconcilesDriftedLabel(t *testing.T) {
	t.Parallel()

	voices := fakeVoices{"Eren": "m1", "Mikasa": "f1"}
	assigner := &fakeAssigner{}
	a := New(voices, assigner)

	page := testPage()
	page.Dialogue[0].Speaker = "Erin" // analyzer drift

	ps, err := a.Assemble(context.Background(), "ch1", page, testRoster())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if ps.Dialogue[0].Speaker != "Eren" || ps.Dialogue[0].Voice != "m1" {
		t.Errorf("drifted label not reconciled: %+v", ps.Dialogue[0])
	}
	if len(assigner.assigned) != 0 {
		t.Errorf("reconciled label must not trigger a fresh assignment: %v", assigner.assigned)
	}
}

func TestAssembleFallbackAssignment(t *testing.T) {
	t.Parallel()

	assigner := &fakeAssigner{}
	a := New(fakeVoices{"Eren": "m1"}, assigner)

	page := types.PageAnalysis{
		PageNumber: 1,
		Dialogue: []types.DialogueLine{
			{Speaker: "Mysterious Lady", Text: "Who goes there?", Emotion: "stern", Confidence: 0.8},
		},
	}
	ps, err := a.Assemble(context.Background(), "ch1", page, testRoster())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := assigner.assigned["Mysterious Lady"]; got != classify.CategoryFemale {
		t.Errorf("fallback category = %q, want female (keyword heuristic)", got)
	}
	if ps.Dialogue[0].Voice != "f-fallback" {
		t.Errorf("dialogue voice = %q", ps.Dialogue[0].Voice)
	}
	if report := Validate(ps); !report.Valid() {
		t.Errorf("script with fallback voice reported problems: %v", report.Problems)
	}
}

func TestAssembleFallbackFailureIsFatal(t *testing.T) {
	t.Parallel()

	assigner := &fakeAssigner{err: errors.New("pool empty")}
	a := New(fakeVoices{}, assigner)

	page := types.PageAnalysis{
		PageNumber: 1,
		Dialogue:   []types.DialogueLine{{Speaker: "Stranger", Text: "hm", Confidence: 1}},
	}
	if _, err := a.Assemble(context.Background(), "ch1", page, nil); err == nil {
		t.Fatal("a failing fallback assignment means a broken pool and must error")
	}
}

func TestValidateReportsProblems(t *testing.T) {
	t.Parallel()

	ps := &types.PageScript{
		PageID:     "",
		Characters: map[string]types.CharacterVoice{"Eren": {Voice: ""}},
		Dialogue: []types.ScriptEntry{
			{Speaker: "", Voice: "", Text: ""},
			{Speaker: "Ghost", Voice: "g1", Text: "boo"},
		},
	}
	report := Validate(ps)
	if report.Valid() {
		t.Fatal("broken script must not validate")
	}
	// page_id, Eren's voice, dialogue[0] speaker/voice/text, dialogue[1]'s
	// speaker missing from the character map.
	if len(report.Problems) != 6 {
		t.Errorf("got %d problems, want 6: %v", len(report.Problems), report.Problems)
	}

	if Validate(nil).Valid() {
		t.Error("nil script must not validate")
	}
}
