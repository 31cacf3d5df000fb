// Package match reconciles drifted speaker labels against the scene roster.
//
// The per-page pass occasionally labels a speaker slightly differently from
// the roster it was given — "Erin" for "Eren", "Old Hannes" for "Hannes",
// a trailing descriptor, a transcription slip. Before a label is treated as
// a brand-new character it is checked here against the known roster names.
//
// Matching runs in two stages. Double Metaphone codes are computed for every
// token of the label and of each roster name; a code overlap makes the name
// a phonetic candidate, accepted when its Jaro-Winkler similarity clears the
// phonetic threshold. Labels with no phonetic candidate fall back to pure
// Jaro-Winkler against all names under a stricter fuzzy threshold, so
// spelling drift is caught without conflating genuinely distinct characters.
package match

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically-overlapping roster name to win. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(r *Resolver) {
		r.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the non-phonetic
// fallback. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(r *Resolver) {
		r.fuzzyThreshold = threshold
	}
}

// Resolver maps drifted speaker labels onto roster names. Read-only after
// construction and safe for concurrent use.
type Resolver struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Resolver with the supplied options applied.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve finds the roster name the label most plausibly refers to.
//
// An exact case-insensitive hit wins immediately with confidence 1. When
// matched is false the label named nobody on the roster and comes back
// unchanged with confidence 0.
func (r *Resolver) Resolve(label string, roster []string) (name string, confidence float64, matched bool) {
	label = strings.TrimSpace(label)
	if label == "" || len(roster) == 0 {
		return label, 0, false
	}

	labelLower := strings.ToLower(label)
	for _, candidate := range roster {
		if strings.EqualFold(strings.TrimSpace(candidate), label) {
			return candidate, 1, true
		}
	}

	labelTokens := strings.Fields(labelLower)
	labelCodes := tokenCodes(labelTokens)

	var (
		bestName     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, candidate := range roster {
		candLower := strings.ToLower(strings.TrimSpace(candidate))
		if candLower == "" {
			continue
		}
		candTokens := strings.Fields(candLower)
		phonetic := overlap(labelCodes, tokenCodes(candTokens))
		score := similarity(labelTokens, candTokens, labelLower, candLower)

		if phonetic {
			if score >= r.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				bestName, bestScore, bestPhonetic = candidate, score, true
			}
		} else if !bestPhonetic && score >= r.fuzzyThreshold && score > bestScore {
			bestName, bestScore = candidate, score
		}
	}

	if bestName == "" {
		return label, 0, false
	}
	return bestName, bestScore, true
}

// tokenCodes returns the union of Double Metaphone codes across tokens,
// dropping the empty codes short words can produce.
func tokenCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score across full strings, the
// space-stripped strings, and all token pairs. The token-pair pass matters
// for labels like "Old Hannes" against the roster's "Hannes".
func similarity(labelTokens, candTokens []string, labelFull, candFull string) float64 {
	score := matchr.JaroWinkler(labelFull, candFull, false)

	if len(labelTokens) > 1 || len(candTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(labelTokens, ""), strings.Join(candTokens, ""), false)
		if joined > score {
			score = joined
		}
	}

	for _, lt := range labelTokens {
		for _, ct := range candTokens {
			if s := matchr.JaroWinkler(lt, ct, false); s > score {
				score = s
			}
		}
	}
	return score
}
