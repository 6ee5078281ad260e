package stream

import (
	"context"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
)

// Outcome is a receiver's reconstruction of one session.
type Outcome struct {
	Phases      []string
	Content     string // concatenation of content fragments, in order
	FullContent string // authoritative text from the complete event
	ShareURL    string
	Err         string // set when the session ended with an error event
	Completed   bool
}

// Text prefers the complete event's payload over local concatenation, so
// a receiver that missed fragments still gets the whole output.
func (o *Outcome) Text() string {
	if o.FullContent != "" {
		return o.FullContent
	}
	return o.Content
}

// Collect drains a session's events into an Outcome. It returns when a
// terminal event arrives, the channel closes, or ctx is cancelled.
func Collect(ctx context.Context, events <-chan api.StreamEvent) (*Outcome, error) {
	o := &Outcome{}
	for {
		select {
		case <-ctx.Done():
			return o, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return o, nil
			}
			switch ev.Type {
			case api.EventProgress:
				o.Phases = append(o.Phases, ev.Phase)
			case api.EventContent:
				o.Content += ev.Content
			case api.EventComplete:
				o.FullContent = ev.FullContent
				o.ShareURL = ev.ShareURL
				o.Completed = true
				return o, nil
			case api.EventError:
				o.Err = ev.Error
				return o, nil
			}
		}
	}
}
