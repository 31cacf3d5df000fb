// Package speech defines the speech-synthesis provider interface.
//
// Synthesis runs one call per dialogue line. That is a deliberate
// precision/cost trade-off: per-line calls yield exact per-line durations
// for the transcript timeline, which coarser batching would lose. Lines are
// independent, so callers may parallelize; implementations must be safe for
// concurrent use.
package speech

import (
	"context"

	"github.com/panelvox/panelvox/pkg/types"
)

// Provider synthesizes speech.
type Provider interface {
	// Synthesize renders one line of text with the given voice handle and
	// returns the audio clip with its estimated duration.
	Synthesize(ctx context.Context, text, voice string) (*types.Clip, error)

	// Voices lists the synthesis voices available to this provider.
	Voices(ctx context.Context) ([]types.Voice, error)
}
