package stream

import (
	"context"
	"log"
	"strings"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/genai"
)

// Generation phases, announced in order via progress events.
const (
	PhaseFetchingMetadata      = "fetching metadata"
	PhaseAnalyzingStructure    = "analyzing structure"
	PhaseReadingFiles          = "reading files"
	PhaseAnalyzingArchitecture = "analyzing architecture"
	PhaseGeneratingOutput      = "generating output"
)

// Publisher persists a finished generation and returns a shareable URL.
// The share store implements it; a nil Publisher disables share links.
type Publisher interface {
	Publish(targetType, content string) (string, error)
}

// Producer drives one generation and pushes its lifecycle into a Session:
// phase announcements, content fragments as the generator yields them,
// then exactly one complete or error event.
type Producer struct {
	gen genai.Generator
	pub Publisher
}

func NewProducer(g genai.Generator, pub Publisher) *Producer {
	return &Producer{gen: g, pub: pub}
}

func phasesFor(targetType string) []string {
	if targetType == "repository_analysis" {
		return []string{
			PhaseFetchingMetadata,
			PhaseAnalyzingStructure,
			PhaseReadingFiles,
			PhaseAnalyzingArchitecture,
			PhaseGeneratingOutput,
		}
	}
	return []string{PhaseFetchingMetadata, PhaseGeneratingOutput}
}

// Run executes the generation and closes the session when it returns. On
// receiver disconnect (ctx cancelled) the work is abandoned and nothing
// more is sent; on generator failure an error event ends the session.
func (p *Producer) Run(ctx context.Context, sess *Session, req *api.GenerateRequest) {
	defer sess.Close()

	if strings.TrimSpace(req.Input) == "" {
		_ = sess.Fail(ctx, "input is required")
		return
	}

	for _, phase := range phasesFor(req.TargetType) {
		if err := sess.SendProgress(ctx, phase); err != nil {
			return
		}
	}

	var full strings.Builder
	err := p.gen.Stream(ctx, &genai.Request{
		Input:        req.Input,
		TargetType:   req.TargetType,
		PriorContext: req.PriorContext,
	}, func(chunk string) error {
		if err := sess.SendContent(ctx, chunk); err != nil {
			return err
		}
		full.WriteString(chunk)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		_ = sess.Fail(ctx, err.Error())
		return
	}

	shareURL := ""
	if p.pub != nil {
		url, err := p.pub.Publish(req.TargetType, full.String())
		if err != nil {
			// a share link is a convenience; the generation itself succeeded
			log.Printf("stream: publish share: %v", err)
		} else {
			shareURL = url
		}
	}
	_ = sess.Complete(ctx, full.String(), shareURL)
}
