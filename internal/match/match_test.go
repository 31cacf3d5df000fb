package match

import "testing"

func TestResolveExact(t *testing.T) {
	t.Parallel()

	r := New()
	roster := []string{"Eren", "Mikasa", "Hannes"}

	name, conf, ok := r.Resolve("mikasa", roster)
	if !ok || name != "Mikasa" {
		t.Fatalf("Resolve(mikasa) = %q, %v", name, ok)
	}
	if conf != 1 {
		t.Errorf("exact match confidence = %v, want 1", conf)
	}
}

func TestResolveSpellingDrift(t *testing.T) {
	t.Parallel()

	r := New()
	roster := []string{"Eren", "Mikasa", "Hannes"}

	tests := []struct {
		label string
		want  string
	}{
		{"Erin", "Eren"},
		{"Mikassa", "Mikasa"},
		{"Hanes", "Hannes"},
	}
	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			t.Parallel()
			name, conf, ok := r.Resolve(tc.label, roster)
			if !ok {
				t.Fatalf("Resolve(%q) found nothing", tc.label)
			}
			if name != tc.want {
				t.Errorf("Resolve(%q) = %q, want %q", tc.label, name, tc.want)
			}
			if conf <= 0 || conf > 1 {
				t.Errorf("confidence = %v, want (0, 1]", conf)
			}
		})
	}
}

func TestResolveDescriptorPrefix(t *testing.T) {
	t.Parallel()

	r := New()
	name, _, ok := r.Resolve("Old Hannes", []string{"Eren", "Hannes"})
	if !ok || name != "Hannes" {
		t.Fatalf("Resolve(Old Hannes) = %q, %v, want Hannes", name, ok)
	}
}

func TestResolveNoMatch(t *testing.T) {
	t.Parallel()

	r := New()
	roster := []string{"Eren", "Mikasa"}

	name, conf, ok := r.Resolve("Commander Pixis", roster)
	if ok {
		t.Fatalf("Resolve(Commander Pixis) = %q, should not match", name)
	}
	if name != "Commander Pixis" || conf != 0 {
		t.Errorf("unmatched label must come back unchanged with zero confidence, got %q/%v", name, conf)
	}
}

func TestResolveDegenerateInput(t *testing.T) {
	t.Parallel()

	r := New()
	if _, _, ok := r.Resolve("   ", []string{"Eren"}); ok {
		t.Error("blank label must not match")
	}
	if _, _, ok := r.Resolve("Eren", nil); ok {
		t.Error("empty roster must not match")
	}
}

func TestResolveThresholdOptions(t *testing.T) {
	t.Parallel()

	// With an impossible fuzzy threshold and phonetics effectively the only
	// path, a non-phonetic near-miss is rejected.
	strict := New(WithFuzzyThreshold(1.01), WithPhoneticThreshold(1.01))
	if _, _, ok := strict.Resolve("Erin", []string{"Eren"}); ok {
		t.Error("thresholds above 1 must reject everything except exact hits")
	}
	if name, _, ok := strict.Resolve("Eren", []string{"Eren"}); !ok || name != "Eren" {
		t.Error("exact hits bypass thresholds")
	}
}
