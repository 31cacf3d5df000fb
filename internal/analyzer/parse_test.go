package analyzer

import (
	"testing"

	"github.com/panelvox/panelvox/pkg/types"
)

func TestStripFence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
		{"fence glued to content", "```{\"a\": 1}```", `{"a": 1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := stripFence(tc.in); got != tc.want {
				t.Errorf("stripFence(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseRoster(t *testing.T) {
	t.Parallel()

	raw := "```json\n" + `{
		"characters": [
			{"name": "Eren", "gender_hint": "male", "importance": "main", "pages": [1, 2], "description": "short dark hair", "dominant_emotion": "angry"},
			{"name": "Sound Effect"},
			{"name": ""}
		]
	}` + "\n```"

	roster, err := parseRoster(raw)
	if err != nil {
		t.Fatalf("parseRoster: %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("got %d entries, want 1 (sound effects and blanks dropped)", len(roster))
	}
	e := roster[0]
	if e.Name != "Eren" || e.Importance != "main" || len(e.Pages) != 2 {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestParseRosterErrors(t *testing.T) {
	t.Parallel()

	if _, err := parseRoster("not json"); err == nil {
		t.Error("malformed payload should fail")
	}
	if _, err := parseRoster(`{"characters": []}`); err == nil {
		t.Error("empty roster should fail")
	}
	if _, err := parseRoster(`{"characters": [{"name": "Sound Effect"}]}`); err == nil {
		t.Error("roster of only sound effects should fail")
	}
}

func TestParsePage(t *testing.T) {
	t.Parallel()

	raw := `{
		"page_number": 99,
		"scene": "Eren shouts at the wall.",
		"dialogue": [
			{"speaker": "Eren", "text": "I'll destroy them all!", "emotion": "furious", "confidence": 0.95},
			{"speaker": "Sound Effect", "text": "[CRASH]", "emotion": "neutral", "confidence": 1.0}
		],
		"characters_present": ["Eren"],
		"atmosphere": "dust and rubble"
	}`

	page, err := parsePage(raw, 3)
	if err != nil {
		t.Fatalf("parsePage: %v", err)
	}
	if page.PageNumber != 3 {
		t.Errorf("caller's page number must win: got %d", page.PageNumber)
	}
	if len(page.Dialogue) != 2 {
		t.Fatalf("got %d dialogue lines, want 2", len(page.Dialogue))
	}
	if page.Dialogue[1].Speaker != types.SoundEffectSpeaker {
		t.Errorf("sound effect speaker = %q", page.Dialogue[1].Speaker)
	}
}
