// Package vision defines the provider interface for image analysis: one or
// more page images plus a natural-language instruction in, a text response
// out. Both analysis passes go through this interface — Pass 1 submits every
// page at once, Pass 2 submits a single page with roster context.
//
// The response is expected to be JSON following the instruction's schema,
// possibly wrapped in a markdown code fence; fence handling is the caller's
// concern, not the provider's.
package vision

import (
	"context"

	"github.com/panelvox/panelvox/pkg/types"
)

// Request is one analysis invocation.
type Request struct {
	// Instruction is the natural-language prompt constraining the output.
	Instruction string

	// Images are the pages to analyze, in page order.
	Images []types.PageImage

	// MaxTokens caps the response length. 0 uses the provider default.
	MaxTokens int

	// Temperature, when non-zero, overrides the provider default.
	Temperature float64
}

// Provider analyzes page images.
type Provider interface {
	// Analyze submits the request and returns the raw text response.
	Analyze(ctx context.Context, req Request) (string, error)
}
