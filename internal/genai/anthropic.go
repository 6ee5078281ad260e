package genai

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 4096
)

// AnthropicGenerator implements Generator over the official Anthropic SDK.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropic(apiKey, model string, maxTokens int) (*AnthropicGenerator, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic generator requires an API key")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicGenerator{
		client:    anthropic.NewClient(option.WithAPIKey(key)),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (g *AnthropicGenerator) Stream(ctx context.Context, req *Request, fn func(chunk string) error) error {
	params, err := g.buildParams(req)
	if err != nil {
		return err
	}

	stream := g.client.Messages.NewStreaming(ctx, params)
	if stream == nil {
		return fmt.Errorf("anthropic stream failed: no stream returned")
	}
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()

		deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		textDelta, ok := deltaEvent.Delta.AsAny().(anthropic.TextDelta)
		if !ok || textDelta.Text == "" {
			continue
		}

		if err := fn(textDelta.Text); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream failed: %w", err)
	}
	return nil
}

func (g *AnthropicGenerator) Complete(ctx context.Context, req *Request) (string, error) {
	params, err := g.buildParams(req)
	if err != nil {
		return "", err
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block.Text)
	}
	return sb.String(), nil
}

func (g *AnthropicGenerator) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	if req == nil || strings.TrimSpace(req.Input) == "" {
		return anthropic.MessageNewParams{}, fmt.Errorf("generation request requires input")
	}

	prompt := buildPrompt(req)
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)},
			},
		},
	}, nil
}

func buildPrompt(req *Request) string {
	var sb strings.Builder
	switch req.TargetType {
	case "business_analysis":
		sb.WriteString("Produce a business analysis document for the following request.\n\n")
	case "technical_spec":
		sb.WriteString("Produce a technical specification for the following request.\n\n")
	case "repository_analysis":
		sb.WriteString("Analyze the following repository and summarize its architecture.\n\n")
	default:
		sb.WriteString("Produce the requested document.\n\n")
	}
	sb.WriteString(req.Input)
	if req.PriorContext != "" {
		sb.WriteString("\n\nPrior context:\n")
		sb.WriteString(req.PriorContext)
	}
	return sb.String()
}
