// Package genai wraps the long-running AI generation operation behind a
// small interface so the rest of the service treats it as opaque work
// that either streams chunks or fails.
package genai

import "context"

// Request describes one generation: the user input, what kind of output
// is wanted (e.g. "business_analysis", "technical_spec",
// "repository_analysis") and optional prior context to build on.
type Request struct {
	Input        string
	TargetType   string
	PriorContext string
}

// Generator is the external long-running operation. Stream must invoke fn
// once per output fragment, in order; a non-nil error from fn aborts the
// generation.
type Generator interface {
	Stream(ctx context.Context, req *Request, fn func(chunk string) error) error
	Complete(ctx context.Context, req *Request) (string, error)
}
