package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	speechmock "github.com/panelvox/panelvox/pkg/provider/speech/mock"
	"github.com/panelvox/panelvox/pkg/types"
)

func testScript() *types.PageScript {
	return &types.PageScript{
		PageID: "ch1_page_001",
		Characters: map[string]types.CharacterVoice{
			"Eren":   {Voice: "m1", Expression: "angry"},
			"Mikasa": {Voice: "f1", Expression: "calm"},
		},
		Dialogue: []types.ScriptEntry{
			{Speaker: "Eren", Voice: "m1", Text: "I'll destroy them all!", Page: 1},
			{Speaker: "Mikasa", Voice: "f1", Text: "Calm down.", Page: 1},
			{Speaker: "Eren", Voice: "m1", Text: "This is our chance.", Page: 1},
		},
	}
}

func TestRenderPage(t *testing.T) {
	t.Parallel()

	sp := &speechmock.Provider{}
	r := NewRenderer(sp,
		WithRendererMetrics(testMetrics(t)),
		WithSynthesisRetry(fastRetry()),
	)

	audio, err := r.RenderPage(context.Background(), testScript())
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}

	// The mock returns one-second clips, so the timeline is 0s, 1s, 2s.
	if audio.Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", audio.Duration)
	}
	lines := strings.Split(strings.TrimRight(audio.Transcript, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("transcript has %d lines, want 3: %q", len(lines), audio.Transcript)
	}
	want := []string{
		"[00:00] Eren: I'll destroy them all!",
		"[00:01] Mikasa: Calm down.",
		"[00:02] Eren: This is our chance.",
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("transcript[%d] = %q, want %q", i, lines[i], w)
		}
	}
	if audio.FailedLines != 0 {
		t.Errorf("FailedLines = %d", audio.FailedLines)
	}
	if len(audio.Audio) != 3 {
		t.Errorf("audio bytes = %d, want one byte per mock clip", len(audio.Audio))
	}
	if len(sp.Calls()) != 3 {
		t.Errorf("synthesis calls = %d, want one per line", len(sp.Calls()))
	}
}

func TestRenderPageFailedLinePlaceholder(t *testing.T) {
	t.Parallel()

	sp := &speechmock.Provider{}
	sp.SynthesizeFunc = func(_ context.Context, text, _ string) (*types.Clip, error) {
		if text == "Calm down." {
			return nil, errors.New("synthesis refused")
		}
		return &types.Clip{Audio: []byte{1, 2}, Duration: 2 * time.Second, Format: "mp3_44100_128"}, nil
	}
	r := NewRenderer(sp,
		WithRendererMetrics(testMetrics(t)),
		WithSynthesisRetry(fastRetry()),
		WithParallelism(1),
	)

	audio, err := r.RenderPage(context.Background(), testScript())
	if err != nil {
		t.Fatalf("a failed line must not fail the page: %v", err)
	}
	if audio.FailedLines != 1 {
		t.Errorf("FailedLines = %d, want 1", audio.FailedLines)
	}
	// 2s + 1s placeholder + 2s.
	if audio.Duration != 5*time.Second {
		t.Errorf("Duration = %v, want 5s", audio.Duration)
	}
	if !strings.Contains(audio.Transcript, "[00:02] Mikasa: Calm down.") {
		t.Errorf("placeholder line missing from transcript:\n%s", audio.Transcript)
	}
	if !strings.Contains(audio.Transcript, "[00:03] Eren: This is our chance.") {
		t.Errorf("timeline must include the placeholder second:\n%s", audio.Transcript)
	}
	if audio.Format != "mp3_44100_128" {
		t.Errorf("Format = %q", audio.Format)
	}
}

func TestRenderPageEmptyScript(t *testing.T) {
	t.Parallel()

	r := NewRenderer(&speechmock.Provider{}, WithRendererMetrics(testMetrics(t)))
	audio, err := r.RenderPage(context.Background(), &types.PageScript{PageID: "ch1_page_001"})
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if audio.Duration != 0 || audio.Transcript != "" {
		t.Errorf("empty script should render nothing: %+v", audio)
	}
}

func TestRenderPageRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	var attempts int
	sp := &speechmock.Provider{}
	sp.SynthesizeFunc = func(context.Context, string, string) (*types.Clip, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("flaky")
		}
		return &types.Clip{Audio: []byte{1}, Duration: time.Second, Format: "pcm_16000"}, nil
	}
	r := NewRenderer(sp,
		WithRendererMetrics(testMetrics(t)),
		WithSynthesisRetry(fastRetry()),
		WithParallelism(1),
	)

	ps := testScript()
	ps.Dialogue = ps.Dialogue[:1]
	audio, err := r.RenderPage(context.Background(), ps)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if audio.FailedLines != 0 {
		t.Errorf("FailedLines = %d, want recovery on retry", audio.FailedLines)
	}
}
