package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/panelvox/panelvox/pkg/types"
)

// stripFence removes a surrounding markdown code fence, with or without a
// language tag. Vision models routinely wrap JSON responses in one even when
// told not to.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag like "json" on the opening fence line.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{}[]") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// rosterResponse is the Pass-1 wire shape.
type rosterResponse struct {
	Characters []types.RosterEntry `json:"characters"`
}

// parseRoster decodes a Pass-1 response into roster entries.
func parseRoster(raw string) ([]types.RosterEntry, error) {
	var resp rosterResponse
	if err := json.Unmarshal([]byte(stripFence(raw)), &resp); err != nil {
		return nil, fmt.Errorf("analyzer: decode roster: %w", err)
	}
	if len(resp.Characters) == 0 {
		return nil, fmt.Errorf("analyzer: roster is empty")
	}

	out := resp.Characters[:0]
	for _, e := range resp.Characters {
		if e.Name == "" || e.Name == types.SoundEffectSpeaker {
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("analyzer: roster has no usable characters")
	}
	return out, nil
}

// parsePage decodes a Pass-2 response. The analyzer's page number wins over
// whatever the model echoed back.
func parsePage(raw string, pageNumber int) (types.PageAnalysis, error) {
	var page types.PageAnalysis
	if err := json.Unmarshal([]byte(stripFence(raw)), &page); err != nil {
		return types.PageAnalysis{}, fmt.Errorf("analyzer: decode page %d: %w", pageNumber, err)
	}
	page.PageNumber = pageNumber
	return page, nil
}
