package analyzer

import (
	"fmt"
	"strings"

	"github.com/panelvox/panelvox/pkg/types"
)

// rosterPrompt is the Pass-1 instruction: one request over every page,
// constrained to identity only. Dialogue accuracy is Pass 2's job.
const rosterPrompt = `You are analyzing every page of a manga/comic scene at once.
Identify each distinct SPEAKING character and give it one stable label, reused
consistently for that character on every page. Prefer a real name when it can be
inferred from the dialogue or context; otherwise use a short descriptive
placeholder such as "Blond Soldier".

Rules:
- Exclude non-speaking background figures.
- Exclude onomatopoeia and sound effects; they are not characters.
- importance is "main", "supporting", or "background".
- gender_hint is "male", "female", or "unknown".

Respond with ONLY a JSON object in this exact shape:
{
  "characters": [
    {
      "name": "<stable label>",
      "gender_hint": "male|female|unknown",
      "importance": "main|supporting|background",
      "pages": [1, 2],
      "description": "<short visual description>",
      "dominant_emotion": "<single word>"
    }
  ]
}`

// pagePrompt builds the Pass-2 instruction for one page, carrying the
// Pass-1 roster so the extractor reuses exactly the same labels.
func pagePrompt(pageNumber int, roster []types.RosterEntry) string {
	var ctxLines []string
	for _, e := range roster {
		ctxLines = append(ctxLines, fmt.Sprintf("- %s (%s, %s): %s",
			e.Name, e.Importance, e.GenderHint, e.Description))
	}

	return fmt.Sprintf(`You are analyzing page %d of a manga/comic scene.

Known characters in this scene (use EXACTLY these labels for speakers):
%s

Extract every speech bubble in manga reading order: right to left, top to
bottom. For each bubble give the speaker label from the list above, the text,
a single-word emotion, and your attribution confidence from 0.0 to 1.0.

Onomatopoeia and sound effects are NOT character dialogue: list them in
reading order with the speaker %q and the text wrapped in square brackets,
e.g. "[THUD]".

Respond with ONLY a JSON object in this exact shape:
{
  "page_number": %d,
  "scene": "<one or two sentences describing the page>",
  "dialogue": [
    {"speaker": "<label>", "text": "<text>", "emotion": "<word>", "confidence": 0.9}
  ],
  "characters_present": ["<label>"],
  "atmosphere": "<short ambient description>"
}`,
		pageNumber,
		strings.Join(ctxLines, "\n"),
		types.SoundEffectSpeaker,
		pageNumber,
	)
}
