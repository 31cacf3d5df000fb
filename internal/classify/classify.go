// Package classify infers the voice-pool category for a character from its
// roster data. The default strategy is a fixed name-keyword list inherited
// from the upstream dataset; it is deliberately kept behind an interface so
// the policy can be swapped without touching the registry or the consistency
// store.
package classify

import "strings"

// Category selects which voice pool a new assignment draws from.
type Category string

const (
	// CategoryFemale selects the feminine voice pool.
	CategoryFemale Category = "female"

	// CategoryMale selects the masculine voice pool.
	CategoryMale Category = "male"
)

// Classifier maps a character name to a voice-pool category.
type Classifier interface {
	// Categorize returns the category for name. Implementations must return
	// a valid category for every input; "unknown" is not an option here
	// because the registry has to pick a pool.
	Categorize(name string) Category
}

// femaleKeywords is the fixed keyword list of the default heuristic. A name
// containing any of these (case-insensitive) is classified as female;
// everything else defaults to male. The list and the default are a known
// bias of the source data and are intentionally not extended here.
var femaleKeywords = []string{
	"mikasa", "mrs", "miss", "lady", "woman", "girl",
	"female", "mother", "sister", "daughter",
}

// KeywordClassifier implements [Classifier] with the fixed keyword list.
// The zero value is ready to use.
type KeywordClassifier struct{}

var _ Classifier = KeywordClassifier{}

// Categorize implements Classifier.
func (KeywordClassifier) Categorize(name string) Category {
	lower := strings.ToLower(name)
	for _, kw := range femaleKeywords {
		if strings.Contains(lower, kw) {
			return CategoryFemale
		}
	}
	return CategoryMale
}

// FromHint resolves an analyzer gender hint to a category, falling back to
// the classifier when the hint is absent or unrecognised.
func FromHint(hint, name string, c Classifier) Category {
	switch strings.ToLower(hint) {
	case "female":
		return CategoryFemale
	case "male":
		return CategoryMale
	}
	return c.Categorize(name)
}
