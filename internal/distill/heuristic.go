package distill

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

// Heuristic is a rule-based distiller needing no network. It keeps the
// leading sentence of the content, the part most likely to carry the fact,
// and assigns a fixed lower confidence than the LLM backend.
type Heuristic struct {
	maxLen int
}

// NewHeuristic creates a rule-based distiller.
func NewHeuristic() *Heuristic {
	return &Heuristic{maxLen: 280}
}

// Distill extracts the first sentence of the content, truncated to a
// bounded length.
func (h *Heuristic) Distill(ctx context.Context, content string) (*Distillation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	fact := firstSentence(content)
	if len(fact) > h.maxLen {
		// Back the cut up to a rune boundary so multi-byte characters
		// are dropped whole, never split.
		cut := h.maxLen
		for cut > 0 && !utf8.RuneStart(fact[cut]) {
			cut--
		}
		fact = strings.TrimSpace(fact[:cut])
	}

	return &Distillation{
		Fact:       fact,
		Confidence: 0.6,
	}, nil
}

// firstSentence returns content up to and including the first sentence
// terminator, or the whole content when none exists.
func firstSentence(s string) string {
	for i, r := range s {
		switch r {
		case '.', '!', '?':
			return strings.TrimSpace(s[:i+1])
		case '\n':
			if trimmed := strings.TrimSpace(s[:i]); trimmed != "" {
				return trimmed
			}
		}
	}
	return s
}

// New creates a distiller from the configuration.
func New(cfg config.DistillConfig) (Distiller, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropic(cfg)
	case "heuristic", "":
		return NewHeuristic(), nil
	default:
		return nil, fmt.Errorf("unknown distill provider: %q", cfg.Provider)
	}
}

var _ Distiller = (*Heuristic)(nil)
