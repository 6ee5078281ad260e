package genai

import "context"

// Scripted is a Generator fake for tests: it replays fixed chunks and can
// fail partway through.
type Scripted struct {
	Chunks []string
	// FailAfter, when >= 0, makes Stream return Err after that many chunks.
	FailAfter int
	Err       error
}

func NewScripted(chunks ...string) *Scripted {
	return &Scripted{Chunks: chunks, FailAfter: -1}
}

func (s *Scripted) Stream(ctx context.Context, req *Request, fn func(chunk string) error) error {
	for i, c := range s.Chunks {
		if s.FailAfter >= 0 && i >= s.FailAfter {
			return s.Err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	if s.FailAfter >= 0 && s.FailAfter >= len(s.Chunks) {
		return s.Err
	}
	return nil
}

func (s *Scripted) Complete(ctx context.Context, req *Request) (string, error) {
	var out string
	err := s.Stream(ctx, req, func(chunk string) error {
		out += chunk
		return nil
	})
	return out, err
}
