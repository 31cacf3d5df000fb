// Package mock provides a scriptable vision provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/panelvox/panelvox/pkg/provider/vision"
)

// Compile-time interface check.
var _ vision.Provider = (*Provider)(nil)

// Provider is a scriptable vision.Provider. Set AnalyzeFunc to control
// responses; every request is recorded for later inspection.
type Provider struct {
	// AnalyzeFunc handles each call. When nil, Analyze returns "".
	AnalyzeFunc func(ctx context.Context, req vision.Request) (string, error)

	mu       sync.Mutex
	requests []vision.Request
}

// Analyze implements vision.Provider.
func (p *Provider) Analyze(ctx context.Context, req vision.Request) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.AnalyzeFunc == nil {
		return "", nil
	}
	return p.AnalyzeFunc(ctx, req)
}

// Requests returns a copy of all requests seen so far.
func (p *Provider) Requests() []vision.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]vision.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// Calls returns how many times Analyze was invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
