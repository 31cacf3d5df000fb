// Package mock provides a scriptable speech provider for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/panelvox/panelvox/pkg/provider/speech"
	"github.com/panelvox/panelvox/pkg/types"
)

// Compile-time interface check.
var _ speech.Provider = (*Provider)(nil)

// Call records one Synthesize invocation.
type Call struct {
	Text  string
	Voice string
}

// Provider is a scriptable speech.Provider. Safe for concurrent use so
// parallel rendering paths can be tested against it.
type Provider struct {
	// SynthesizeFunc handles each call. When nil, Synthesize returns a
	// one-second silent clip.
	SynthesizeFunc func(ctx context.Context, text, voice string) (*types.Clip, error)

	// VoicesFunc handles Voices calls. When nil, Voices returns nil.
	VoicesFunc func(ctx context.Context) ([]types.Voice, error)

	mu    sync.Mutex
	calls []Call
}

// Synthesize implements speech.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) (*types.Clip, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Text: text, Voice: voice})
	p.mu.Unlock()

	if p.SynthesizeFunc == nil {
		return &types.Clip{Audio: []byte{0}, Duration: time.Second, Format: "pcm_16000"}, nil
	}
	return p.SynthesizeFunc(ctx, text, voice)
}

// Voices implements speech.Provider.
func (p *Provider) Voices(ctx context.Context) ([]types.Voice, error) {
	if p.VoicesFunc == nil {
		return nil, nil
	}
	return p.VoicesFunc(ctx)
}

// Calls returns a copy of all Synthesize invocations seen so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}
