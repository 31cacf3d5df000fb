// Package pipeline orchestrates a scene's journey from extracted page images
// to a persisted, voice-tagged script.
//
// Each scene moves through a strictly forward state machine:
//
//	images_extracted → roster_identified → per_page_enhanced → assembled → persisted
//
// Pages are processed independently inside the enhanced/assembled stages; a
// page's failure is recorded in the result list and never changes the
// scene's state. Once the roster pass succeeds the scene always reaches
// persisted, publishing whatever subset of pages succeeded. Image cleanup,
// when requested, happens only after persisted.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/panelvox/panelvox/internal/analyzer"
	"github.com/panelvox/panelvox/internal/enhance"
	"github.com/panelvox/panelvox/internal/observe"
	"github.com/panelvox/panelvox/internal/pagesource"
	"github.com/panelvox/panelvox/internal/roster"
	"github.com/panelvox/panelvox/internal/script"
	"github.com/panelvox/panelvox/internal/store"
	"github.com/panelvox/panelvox/pkg/types"
)

// State is a scene's position in the pipeline. Transitions are strictly
// forward; there is no backward transition.
type State string

const (
	StateImagesExtracted  State = "images_extracted"
	StateRosterIdentified State = "roster_identified"
	StatePerPageEnhanced  State = "per_page_enhanced"
	StateAssembled        State = "assembled"
	StatePersisted        State = "persisted"
)

// PageResult is the per-page outcome inside a scene run.
type PageResult struct {
	Page    int    `json:"page_number"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Problems holds validation findings for an assembled-but-invalid script.
	Problems []string `json:"problems,omitempty"`

	Script *types.PageScript `json:"script,omitempty"`

	// Audio is set when a renderer is configured and the page rendered.
	Audio *PageAudio `json:"audio,omitempty"`
}

// SceneResult is the aggregate outcome of one scene run.
type SceneResult struct {
	SceneID         string               `json:"scene_id"`
	State           State                `json:"state"`
	TotalPages      int                  `json:"total_pages"`
	SuccessfulPages int                  `json:"successful_pages"`
	Voices          map[string]string    `json:"voice_assignments"`
	Analysis        *types.SceneAnalysis `json:"analysis"`
	Pages           []PageResult         `json:"pages"`
}

// Pipeline runs scenes sequentially against its collaborators.
type Pipeline struct {
	log       *slog.Logger
	metrics   *observe.Metrics
	source    pagesource.Source
	analyzer  *analyzer.Analyzer
	roster    *roster.Store
	enhancer  *enhance.Enhancer
	assembler *script.Assembler

	renderer  *Renderer
	publisher Publisher
	docs      store.DocStore
	docPrefix string
	cleanup   bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithRenderer enables per-line audio rendering for assembled pages.
func WithRenderer(r *Renderer) Option {
	return func(p *Pipeline) {
		p.renderer = r
	}
}

// WithPublisher publishes page scripts and transcripts after persistence.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = pub
	}
}

// WithSceneStore persists each scene result under prefix+sceneID.
func WithSceneStore(docs store.DocStore, prefix string) Option {
	return func(p *Pipeline) {
		p.docs = docs
		p.docPrefix = prefix
	}
}

// WithCleanup deletes extracted page images after a scene persists.
func WithCleanup(enabled bool) Option {
	return func(p *Pipeline) {
		p.cleanup = enabled
	}
}

// New creates a Pipeline over the given collaborators. A nil enhancer skips
// the enhancement batch and ships raw dialogue.
func New(source pagesource.Source, a *analyzer.Analyzer, rs *roster.Store, e *enhance.Enhancer, asm *script.Assembler, opts ...Option) *Pipeline {
	p := &Pipeline{
		log:       slog.Default(),
		source:    source,
		analyzer:  a,
		roster:    rs,
		enhancer:  e,
		assembler: asm,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.log = p.log.With("component", "pipeline")
	return p
}

// Run processes one scene end to end. The returned error is non-nil only for
// scene-fatal failures: missing pages, a failed roster pass, or a broken
// voice pool. Everything else degrades into the result's page list.
func (p *Pipeline) Run(ctx context.Context, sceneID string) (*SceneResult, error) {
	pages, err := p.source.Pages(ctx, sceneID)
	if err != nil {
		p.recordScene(ctx, "failed")
		return nil, fmt.Errorf("pipeline: scene %q: %w", sceneID, err)
	}
	result := &SceneResult{
		SceneID:    sceneID,
		State:      StateImagesExtracted,
		TotalPages: len(pages),
	}
	p.log.Info("scene started", "scene", sceneID, "pages", len(pages))

	analysis, rosterEntries, err := p.analyzer.Analyze(ctx, sceneID, pages)
	if err != nil {
		p.recordScene(ctx, "failed")
		return nil, err
	}
	result.Analysis = analysis

	voices, err := p.roster.RegisterScene(ctx, sceneID, len(pages), rosterEntries)
	if err != nil {
		p.recordScene(ctx, "failed")
		return nil, fmt.Errorf("pipeline: scene %q: %w", sceneID, err)
	}
	result.Voices = voices
	result.State = StateRosterIdentified

	p.enhanceDialogue(ctx, analysis)
	result.State = StatePerPageEnhanced

	for _, pa := range analysis.Pages {
		result.Pages = append(result.Pages, p.processPage(ctx, sceneID, pa, rosterEntries))
	}
	result.State = StateAssembled

	for _, pr := range result.Pages {
		if pr.Success {
			result.SuccessfulPages++
		}
	}

	p.persist(ctx, result)
	result.State = StatePersisted
	p.recordScene(ctx, "ok")

	if p.publisher != nil {
		p.publish(ctx, result)
	}
	if p.cleanup {
		pagesource.Cleanup(p.log, pages)
	}

	p.log.Info("scene finished",
		"scene", sceneID,
		"pages_ok", result.SuccessfulPages,
		"pages_total", result.TotalPages,
	)
	return result, nil
}

// enhanceDialogue runs the scene-wide enhancement batch and folds the texts
// back into the page analyses. Sound effects and failed pages stay out of
// the batch; a degraded batch leaves the original texts in place.
func (p *Pipeline) enhanceDialogue(ctx context.Context, analysis *types.SceneAnalysis) {
	if p.enhancer == nil {
		return
	}

	type slot struct{ page, line int }

	var (
		lines []enhance.Line
		slots []slot
	)
	for pi := range analysis.Pages {
		pa := &analysis.Pages[pi]
		if analyzer.Failed(*pa) {
			continue
		}
		for li, dl := range pa.Dialogue {
			if dl.Speaker == "" || dl.Speaker == types.SoundEffectSpeaker {
				continue
			}
			lines = append(lines, enhance.Line{
				Speaker: dl.Speaker,
				Text:    dl.Text,
				Emotion: dl.Emotion,
				Page:    pa.PageNumber,
			})
			slots = append(slots, slot{page: pi, line: li})
		}
	}
	if len(lines) == 0 {
		return
	}

	texts, err := p.enhancer.EnhanceScene(ctx, lines)
	if err != nil {
		// Already logged by the enhancer; texts hold the originals.
		p.log.Warn("scene ships unenhanced dialogue", "scene", analysis.SceneID)
	}
	for i, s := range slots {
		analysis.Pages[s.page].Dialogue[s.line].Text = texts[i]
	}
}

// processPage turns one page analysis into a per-page result. Every failure
// stays inside the result; other pages are unaffected.
func (p *Pipeline) processPage(ctx context.Context, sceneID string, pa types.PageAnalysis, rosterEntries []types.RosterEntry) PageResult {
	if analyzer.Failed(pa) {
		p.metrics.RecordPage(ctx, "failed")
		return PageResult{Page: pa.PageNumber, Error: "page analysis failed"}
	}

	ps, err := p.assembler.Assemble(ctx, sceneID, pa, rosterEntries)
	if err != nil {
		p.metrics.RecordPage(ctx, "failed")
		p.log.Error("page assembly failed", "scene", sceneID, "page", pa.PageNumber, "error", err)
		return PageResult{Page: pa.PageNumber, Error: err.Error()}
	}

	if report := script.Validate(ps); !report.Valid() {
		p.metrics.RecordPage(ctx, "failed")
		p.log.Warn("page script failed validation",
			"scene", sceneID,
			"page", pa.PageNumber,
			"problems", len(report.Problems),
		)
		return PageResult{Page: pa.PageNumber, Error: "script validation failed", Problems: report.Problems}
	}

	pr := PageResult{Page: pa.PageNumber, Success: true, Script: ps}
	if p.renderer != nil {
		audio, err := p.renderer.RenderPage(ctx, ps)
		if err != nil {
			// The script is the deliverable; missing audio degrades the page,
			// it does not fail it.
			p.log.Warn("page audio rendering failed",
				"scene", sceneID,
				"page", pa.PageNumber,
				"error", err,
			)
		} else {
			pr.Audio = audio
		}
	}
	p.metrics.RecordPage(ctx, "ok")
	return pr
}

// persist writes the scene result to the durable store. A failed write is a
// warning; the in-memory result is still returned to the caller.
func (p *Pipeline) persist(ctx context.Context, result *SceneResult) {
	if p.docs == nil {
		return
	}
	key := p.docPrefix + result.SceneID
	if err := p.docs.Save(ctx, key, result); err != nil {
		p.log.Warn("scene persistence failed, continuing in-memory",
			"key", key, "error", err)
	}
}

func (p *Pipeline) recordScene(ctx context.Context, status string) {
	p.metrics.ScenesProcessed.Add(ctx, 1,
		metric.WithAttributes(observe.Attr("status", status)),
	)
}
