package distill

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

const distillSystemPrompt = `You condense a user memory fragment into one durable fact.

Rules:
- Output exactly one declarative sentence stating the fact.
- Keep it in third person ("The user prefers...").
- Preserve concrete details (names, preferences, constraints).
- Do not add information that is not in the fragment.
- Do not include preamble, quotes, or explanation.`

// Anthropic distills memory content through the Claude Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewAnthropic creates a Claude-backed distiller from the configuration.
func NewAnthropic(cfg config.DistillConfig) (*Anthropic, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: API key required", ErrDistillFailed)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 512
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey.Value())),
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}, nil
}

// Distill sends the content to Claude and returns the extracted fact.
func (a *Anthropic) Distill(ctx context.Context, content string) (*Distillation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: distillSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(content)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDistillFailed, err)
	}

	var fact strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			fact.WriteString(block.Text)
		}
	}

	text := strings.TrimSpace(fact.String())
	if text == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrDistillFailed)
	}

	return &Distillation{
		Fact:       text,
		Confidence: 0.9,
	}, nil
}

var _ Distiller = (*Anthropic)(nil)
