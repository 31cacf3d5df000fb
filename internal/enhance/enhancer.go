// Package enhance adds expressive bracketed audio tags to dialogue without
// altering the original words.
//
// The whole scene's dialogue goes to the language provider in one batch —
// not per page — to cut round-trips and keep the tone consistent across
// pages. The response contract is strict: same length, same order. Any
// mismatch means the original, un-enhanced lines are returned unchanged with
// a warning; partial application or guessed alignment never happens.
package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/panelvox/panelvox/internal/observe"
	"github.com/panelvox/panelvox/pkg/provider/llm"
)

// Line is one dialogue line in the scene-wide batch, in reading order.
type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Emotion string `json:"emotion"`
	Page    int    `json:"page_number"`
}

const systemPrompt = `You annotate comic dialogue for speech synthesis. You add
expressive audio tags in square brackets — such as [laughs], [sighs],
[whispers], [shouting], [pause], [nervously] — guided by each line's emotion.
Tags are purely additive: never remove, reorder, or rewrite any original word.`

// Enhancer batches a scene's dialogue through the language provider.
type Enhancer struct {
	log      *slog.Logger
	provider llm.Provider
	metrics  *observe.Metrics
}

// Option configures an Enhancer.
type Option func(*Enhancer)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(e *Enhancer) {
		e.log = log
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Enhancer) {
		e.metrics = m
	}
}

// New creates an Enhancer over the given provider.
func New(provider llm.Provider, opts ...Option) *Enhancer {
	e := &Enhancer{
		log:      slog.Default(),
		provider: provider,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	e.log = e.log.With("component", "enhancer")
	return e
}

// EnhanceScene submits every line in one batch and returns the enhanced
// texts, aligned index-for-index with lines.
//
// The returned slice always has len(lines) entries. When the provider fails
// or violates the alignment contract, the original texts come back unchanged
// and the returned error describes the degradation; the caller ships
// un-enhanced text rather than failing the scene.
func (e *Enhancer) EnhanceScene(ctx context.Context, lines []Line) ([]string, error) {
	originals := make([]string, len(lines))
	for i, l := range lines {
		originals[i] = l.Text
	}
	if len(lines) == 0 {
		return originals, nil
	}

	start := time.Now()
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Prompt:       buildPrompt(lines),
	})
	e.metrics.EnhanceDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		e.metrics.RecordProviderError(ctx, "llm", "enhance")
		e.log.Warn("enhancement batch failed, shipping original text", "error", err)
		return originals, fmt.Errorf("enhance: batch call: %w", err)
	}

	enhanced, err := parseBatch(resp.Content)
	if err != nil {
		e.log.Warn("enhancement response unusable, shipping original text", "error", err)
		return originals, fmt.Errorf("enhance: %w", err)
	}
	if len(enhanced) != len(lines) {
		e.log.Warn("enhancement batch misaligned, shipping original text",
			"sent", len(lines),
			"received", len(enhanced),
		)
		return originals, fmt.Errorf("enhance: response has %d lines, sent %d", len(enhanced), len(lines))
	}

	// Best-effort policy check: the original words must survive the tags.
	// The upstream model is the enforcement point, so a violation is a
	// warning, not a rejection.
	for i, l := range lines {
		if !preservesOriginal(l.Text, enhanced[i]) {
			e.log.Warn("enhanced line altered original wording",
				"index", i,
				"page", l.Page,
				"speaker", l.Speaker,
			)
		}
	}

	e.log.Info("dialogue enhanced", "lines", len(lines))
	return enhanced, nil
}

// buildPrompt serializes the batch with an instruction demanding a bare JSON
// string array of matching length and order.
func buildPrompt(lines []Line) string {
	payload, _ := json.MarshalIndent(lines, "", "  ")
	return fmt.Sprintf(`Enhance each dialogue line below with audio tags.

Respond with ONLY a JSON array of %d strings — the enhanced text for each
line, in exactly the input order. Keep every original word intact; only add
bracketed tags.

Input lines:
%s`, len(lines), payload)
}

// parseBatch decodes the provider response, tolerating a markdown fence.
func parseBatch(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.Contains(s[:i], "[") {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	var out []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &out); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}
	return out, nil
}

var (
	tagPattern   = regexp.MustCompile(`\[[^\[\]]*\]`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// preservesOriginal reports whether enhanced still contains the original
// text once bracketed tags are stripped and whitespace is collapsed.
func preservesOriginal(original, enhanced string) bool {
	normalize := func(s string) string {
		s = tagPattern.ReplaceAllString(s, " ")
		return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
	}
	return strings.Contains(normalize(enhanced), normalize(original))
}
