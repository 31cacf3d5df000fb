package roster

import (
	"math"
	"testing"
)

func TestSimilarityScoring(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Descriptor
		want float64
	}{
		{
			name: "exact name equality is case-insensitive",
			a:    Descriptor{Name: "hannes", Appearances: 1},
			b:    Descriptor{Name: "Hannes", Appearances: 1},
			want: 0.4 + 0.1,
		},
		{
			name: "containment either direction",
			a:    Descriptor{Name: "Hannes", Appearances: 1},
			b:    Descriptor{Name: "Old Hannes", Appearances: 1},
			want: 0.2 + 0.1,
		},
		{
			name: "containment with matching importance and emotion",
			a:    Descriptor{Name: "Hannes", Importance: "supporting", Emotion: "worried", Appearances: 3},
			b:    Descriptor{Name: "Old Hannes", Importance: "supporting", Emotion: "worried", Appearances: 3},
			want: 0.2 + 0.3 + 0.2 + 0.1,
		},
		{
			name: "no relation at all",
			a:    Descriptor{Name: "Eren", Importance: "main", Emotion: "angry", Appearances: 5},
			b:    Descriptor{Name: "Shopkeeper", Importance: "background", Emotion: "calm", Appearances: 1},
			want: 1.0 / 5.0 * 0.1,
		},
		{
			name: "appearance ratio is min over max",
			a:    Descriptor{Name: "A", Appearances: 2},
			b:    Descriptor{Name: "B", Appearances: 8},
			want: 2.0 / 8.0 * 0.1,
		},
		{
			name: "full match caps at 1.0",
			a:    Descriptor{Name: "Eren", Importance: "main", Emotion: "angry", Appearances: 4},
			b:    Descriptor{Name: "Eren", Importance: "main", Emotion: "angry", Appearances: 4},
			want: 1.0,
		},
		{
			name: "empty names earn no name bonus",
			a:    Descriptor{Appearances: 1},
			b:    Descriptor{Appearances: 1},
			want: 0.1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Similarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Similarity = %.4f, want %.4f", got, tc.want)
			}
		})
	}
}

func TestSimilarityThresholdBoundaries(t *testing.T) {
	t.Parallel()

	// The convergence case: name containment, equal importance, equal
	// emotion, comparable counts. Must land above the matching threshold.
	converge := Similarity(
		Descriptor{Name: "Hannes", Importance: "supporting", Emotion: "worried", Appearances: 2},
		Descriptor{Name: "Old Hannes", Importance: "supporting", Emotion: "worried", Appearances: 2},
	)
	if converge <= MatchThreshold {
		t.Errorf("convergence case scored %.2f, want > %.2f", converge, MatchThreshold)
	}

	// No name relation, different importance, different emotion: strictly
	// below the threshold no matter the counts.
	diverge := Similarity(
		Descriptor{Name: "Eren", Importance: "main", Emotion: "angry", Appearances: 3},
		Descriptor{Name: "Mikasa", Importance: "supporting", Emotion: "calm", Appearances: 3},
	)
	if diverge >= MatchThreshold {
		t.Errorf("divergence case scored %.2f, want < %.2f", diverge, MatchThreshold)
	}
}
