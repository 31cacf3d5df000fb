// Package analyzer implements the two-pass scene analysis.
//
// A page-at-a-time analysis relabels the same person differently on
// different pages; an all-pages-at-once analysis cannot extract per-bubble
// dialogue at usable granularity. So the analyzer runs two passes against
// the vision provider: Pass 1 submits every page together and produces a
// character roster with stable labels; Pass 2 submits each page separately
// with that roster as context and extracts dialogue that reuses the labels.
//
// Pass-1 failure is scene-fatal — no page context is meaningful without a
// roster. Pass-2 failure for one page degrades that page to a placeholder
// analysis after a bounded retry, and the scene continues.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/panelvox/panelvox/internal/observe"
	"github.com/panelvox/panelvox/internal/resilience"
	"github.com/panelvox/panelvox/pkg/provider/vision"
	"github.com/panelvox/panelvox/pkg/types"
)

// failedPageMarker is the scene text of a degraded page analysis.
const failedPageMarker = "Analysis failed"

// Analyzer orchestrates the two passes for one scene at a time.
type Analyzer struct {
	log      *slog.Logger
	provider vision.Provider
	metrics  *observe.Metrics
	retry    resilience.RetryConfig
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(a *Analyzer) {
		a.log = log
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithRetry sets the per-page retry policy for Pass 2.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(a *Analyzer) {
		a.retry = cfg
	}
}

// New creates an Analyzer over the given vision provider.
func New(provider vision.Provider, opts ...Option) *Analyzer {
	a := &Analyzer{
		log:      slog.Default(),
		provider: provider,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.log = a.log.With("component", "analyzer")
	return a
}

// Analyze runs both passes over the scene's pages and reconciles the results.
// The returned roster is the Pass-1 output, for registration with the
// consistency store.
func (a *Analyzer) Analyze(ctx context.Context, sceneID string, pages []types.PageImage) (*types.SceneAnalysis, []types.RosterEntry, error) {
	if len(pages) == 0 {
		return nil, nil, fmt.Errorf("analyzer: scene %q has no pages", sceneID)
	}

	roster, err := a.IdentifyRoster(ctx, pages)
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer: scene %q: %w", sceneID, err)
	}
	a.log.Info("roster identified", "scene", sceneID, "characters", len(roster))

	analyses := make([]types.PageAnalysis, 0, len(pages))
	for _, page := range pages {
		pa, err := a.AnalyzePage(ctx, page, roster)
		if err != nil {
			a.log.Warn("page analysis degraded",
				"scene", sceneID,
				"page", page.Number,
				"error", err,
			)
			a.metrics.RecordProviderError(ctx, "vision", "page_pass")
			pa = failedPage(page.Number)
		}
		analyses = append(analyses, pa)
	}

	analysis := reconcile(sceneID, roster, analyses)
	return analysis, roster, nil
}

// IdentifyRoster runs Pass 1: all pages in one request. No retry — a roster
// failure fails the scene and a rerun is the recovery path.
func (a *Analyzer) IdentifyRoster(ctx context.Context, pages []types.PageImage) ([]types.RosterEntry, error) {
	start := time.Now()
	raw, err := a.provider.Analyze(ctx, vision.Request{
		Instruction: rosterPrompt,
		Images:      pages,
	})
	a.metrics.RosterPassDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordProviderError(ctx, "vision", "roster_pass")
		return nil, fmt.Errorf("roster pass: %w", err)
	}
	return parseRoster(raw)
}

// AnalyzePage runs Pass 2 for one page with the roster as context, retrying
// transient failures within the configured budget.
func (a *Analyzer) AnalyzePage(ctx context.Context, page types.PageImage, roster []types.RosterEntry) (types.PageAnalysis, error) {
	var result types.PageAnalysis
	err := resilience.Retry(ctx, a.retry, fmt.Sprintf("page %d analysis", page.Number), func(ctx context.Context) error {
		start := time.Now()
		raw, err := a.provider.Analyze(ctx, vision.Request{
			Instruction: pagePrompt(page.Number, roster),
			Images:      []types.PageImage{page},
		})
		a.metrics.PagePassDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("page pass: %w", err)
		}
		result, err = parsePage(raw, page.Number)
		return err
	})
	if err != nil {
		return types.PageAnalysis{}, err
	}
	return result, nil
}

// failedPage is the minimal placeholder for a page whose extraction failed:
// the page stays in the scene, carrying no dialogue.
func failedPage(number int) types.PageAnalysis {
	return types.PageAnalysis{
		PageNumber:        number,
		Scene:             failedPageMarker,
		Dialogue:          []types.DialogueLine{},
		CharactersPresent: []string{},
	}
}

// Failed reports whether a page analysis is the degraded placeholder.
func Failed(pa types.PageAnalysis) bool {
	return pa.Scene == failedPageMarker && len(pa.Dialogue) == 0
}

// reconcile merges Pass-2 page results (taken verbatim — they carry the
// accurate dialogue) with the Pass-1 roster consistency data and a
// synthesized scene summary.
func reconcile(sceneID string, roster []types.RosterEntry, pages []types.PageAnalysis) *types.SceneAnalysis {
	characters := make([]types.CharacterSummary, 0, len(roster))
	var main, supporting []string
	for _, e := range roster {
		appearances := len(e.Pages)
		if appearances == 0 {
			appearances = 1
		}
		characters = append(characters, types.CharacterSummary{
			Name:        e.Name,
			Appearances: appearances,
			Importance:  e.Importance,
			Pages:       slices.Clone(e.Pages),
			GenderHint:  e.GenderHint,
			Description: e.Description,
		})
		switch e.Importance {
		case "main":
			main = append(main, e.Name)
		case "supporting":
			supporting = append(supporting, e.Name)
		}
	}

	var ambient []string
	for _, pa := range pages {
		atm := strings.TrimSpace(pa.Atmosphere)
		if atm != "" && !slices.Contains(ambient, atm) {
			ambient = append(ambient, atm)
		}
	}

	score := 0.0
	if len(roster) > 0 {
		score = float64(len(main)) / float64(len(roster))
		score = math.Round(score*100) / 100
	}

	return &types.SceneAnalysis{
		SceneID:    sceneID,
		TotalPages: len(pages),
		Pages:      pages,
		Characters: characters,
		Summary: types.SceneSummary{
			MainCharacters:       main,
			SupportingCharacters: supporting,
			AmbientContext:       strings.Join(ambient, " | "),
			ConsistencyScore:     score,
		},
	}
}
