package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/panelvox/panelvox/internal/observe"
	"github.com/panelvox/panelvox/internal/resilience"
	"github.com/panelvox/panelvox/pkg/provider/speech"
	"github.com/panelvox/panelvox/pkg/types"
)

// placeholderDuration stands in for a line whose synthesis failed, so the
// transcript timeline stays plausible.
const placeholderDuration = time.Second

// PageAudio is the rendered audio for one page script: every dialogue line
// synthesized individually (per-line calls buy exact per-line timing), then
// concatenated, with a timestamped transcript.
type PageAudio struct {
	Audio    []byte        `json:"-"`
	Format   string        `json:"format"`
	Duration time.Duration `json:"duration"`

	// Transcript is one "[MM:SS] Speaker: text" line per dialogue entry.
	Transcript string `json:"transcript"`

	// FailedLines counts lines replaced by a silent placeholder.
	FailedLines int `json:"failed_lines"`
}

// Renderer synthesizes page scripts line by line.
type Renderer struct {
	log         *slog.Logger
	metrics     *observe.Metrics
	speech      speech.Provider
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
	parallelism int
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithRendererLogger sets the logger. Defaults to slog.Default.
func WithRendererLogger(log *slog.Logger) RendererOption {
	return func(r *Renderer) {
		r.log = log
	}
}

// WithRendererMetrics sets the metrics sink. Defaults to
// [observe.DefaultMetrics].
func WithRendererMetrics(m *observe.Metrics) RendererOption {
	return func(r *Renderer) {
		r.metrics = m
	}
}

// WithSynthesisRetry sets the per-line retry policy.
func WithSynthesisRetry(cfg resilience.RetryConfig) RendererOption {
	return func(r *Renderer) {
		r.retry = cfg
	}
}

// WithParallelism bounds concurrent synthesis calls. Lines within a page are
// independent; order matters only for assembly. Defaults to 4.
func WithParallelism(n int) RendererOption {
	return func(r *Renderer) {
		r.parallelism = n
	}
}

// NewRenderer creates a Renderer over the given speech provider. A shared
// circuit breaker guards the provider across pages.
func NewRenderer(sp speech.Provider, opts ...RendererOption) *Renderer {
	r := &Renderer{
		log:         slog.Default(),
		speech:      sp,
		breaker:     resilience.NewCircuitBreaker("speech", 0, 0),
		parallelism: 4,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	r.log = r.log.With("component", "renderer")
	return r
}

// RenderPage synthesizes every dialogue line of the script and concatenates
// the clips in script order. A line whose synthesis fails after retries
// becomes a silent placeholder; only context cancellation fails the page.
func (r *Renderer) RenderPage(ctx context.Context, ps *types.PageScript) (*PageAudio, error) {
	if len(ps.Dialogue) == 0 {
		return &PageAudio{}, nil
	}

	clips := make([]*types.Clip, len(ps.Dialogue))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	for i, entry := range ps.Dialogue {
		g.Go(func() error {
			clip, err := r.renderLine(gctx, entry)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.log.Warn("line synthesis failed, inserting placeholder",
					"page", ps.PageID,
					"speaker", entry.Speaker,
					"error", err,
				)
				r.metrics.RecordLine(gctx, "failed")
				clips[i] = &types.Clip{Duration: placeholderDuration}
				return nil
			}
			r.metrics.RecordLine(gctx, "ok")
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline: render %s: %w", ps.PageID, err)
	}

	audio := &PageAudio{}
	var transcript strings.Builder
	var cursor time.Duration
	for i, clip := range clips {
		entry := ps.Dialogue[i]
		fmt.Fprintf(&transcript, "[%s] %s: %s\n", timestamp(cursor), entry.Speaker, entry.Text)
		cursor += clip.Duration
		if len(clip.Audio) == 0 {
			audio.FailedLines++
			continue
		}
		audio.Audio = append(audio.Audio, clip.Audio...)
		if audio.Format == "" {
			audio.Format = clip.Format
		}
	}
	audio.Duration = cursor
	audio.Transcript = transcript.String()

	r.log.Info("page rendered",
		"page", ps.PageID,
		"lines", len(ps.Dialogue),
		"failed_lines", audio.FailedLines,
		"duration", audio.Duration,
	)
	return audio, nil
}

// renderLine synthesizes one entry behind the breaker and the retry policy.
func (r *Renderer) renderLine(ctx context.Context, entry types.ScriptEntry) (*types.Clip, error) {
	var clip *types.Clip
	err := resilience.Retry(ctx, r.retry, fmt.Sprintf("synthesize %q", entry.Speaker), func(ctx context.Context) error {
		return r.breaker.Execute(func() error {
			start := time.Now()
			c, err := r.speech.Synthesize(ctx, entry.Text, entry.Voice)
			r.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
			if err != nil {
				return err
			}
			clip = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return clip, nil
}

// timestamp renders a playback offset as MM:SS.
func timestamp(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
