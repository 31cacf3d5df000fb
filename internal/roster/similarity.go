package roster

import (
	"math"
	"strings"
)

// MatchThreshold is the similarity score above which two character records
// are considered the same real character and converge on one voice handle.
const MatchThreshold = 0.7

// Descriptor carries the attributes that participate in similarity scoring.
type Descriptor struct {
	Name        string
	Importance  string
	Emotion     string
	Appearances int
}

// Similarity scores how likely two descriptors refer to the same character,
// as a weighted sum capped at 1.0:
//
//   - name equality (case-insensitive) +0.4, else substring containment in
//     either direction +0.2 (the two name bonuses are mutually exclusive)
//   - importance-class equality +0.3
//   - dominant-emotion equality +0.2
//   - appearance-count ratio min/max, scaled by 0.1
func Similarity(a, b Descriptor) float64 {
	score := 0.0

	an := strings.ToLower(strings.TrimSpace(a.Name))
	bn := strings.ToLower(strings.TrimSpace(b.Name))
	switch {
	case an != "" && an == bn:
		score += 0.4
	case an != "" && bn != "" && (strings.Contains(an, bn) || strings.Contains(bn, an)):
		score += 0.2
	}

	if a.Importance != "" && a.Importance == b.Importance {
		score += 0.3
	}
	if a.Emotion != "" && a.Emotion == b.Emotion {
		score += 0.2
	}
	if a.Appearances > 0 && b.Appearances > 0 {
		lo, hi := a.Appearances, b.Appearances
		if lo > hi {
			lo, hi = hi, lo
		}
		score += float64(lo) / float64(hi) * 0.1
	}

	return math.Min(score, 1.0)
}
