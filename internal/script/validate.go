package script

import (
	"fmt"

	"github.com/panelvox/panelvox/pkg/types"
)

// Report is the outcome of validating an assembled page script. Validation
// fails closed: problems are collected and reported rather than raised, so
// the pipeline can decide whether to skip the page or abort the scene.
type Report struct {
	Problems []string
}

// Valid reports whether the script passed every check.
func (r Report) Valid() bool {
	return len(r.Problems) == 0
}

// Validate checks the shape of an assembled page script: required top-level
// fields, a voice handle for every character, and complete dialogue entries.
func Validate(ps *types.PageScript) Report {
	var r Report
	if ps == nil {
		r.Problems = append(r.Problems, "script is nil")
		return r
	}
	if ps.PageID == "" {
		r.Problems = append(r.Problems, "page_id is empty")
	}
	if ps.Characters == nil {
		r.Problems = append(r.Problems, "characters map is missing")
	}
	for name, cv := range ps.Characters {
		if name == "" {
			r.Problems = append(r.Problems, "characters map has an empty name")
		}
		if cv.Voice == "" {
			r.Problems = append(r.Problems, fmt.Sprintf("character %q has no voice handle", name))
		}
	}
	for i, entry := range ps.Dialogue {
		if entry.Speaker == "" {
			r.Problems = append(r.Problems, fmt.Sprintf("dialogue[%d] has no speaker", i))
		}
		if entry.Voice == "" {
			r.Problems = append(r.Problems, fmt.Sprintf("dialogue[%d] (%s) has no voice handle", i, entry.Speaker))
		}
		if entry.Text == "" {
			r.Problems = append(r.Problems, fmt.Sprintf("dialogue[%d] (%s) has no text", i, entry.Speaker))
		}
		if entry.Speaker != "" {
			if _, ok := ps.Characters[entry.Speaker]; !ok {
				r.Problems = append(r.Problems, fmt.Sprintf("dialogue[%d] speaker %q missing from characters map", i, entry.Speaker))
			}
		}
	}
	return r
}
