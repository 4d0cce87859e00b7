// Package distill condenses clusters of episodic memory content into
// durable semantic facts during consolidation.
//
// Two backends exist: an Anthropic-backed distiller for production and a
// heuristic distiller that needs no network. Both are deterministic about
// their contract: a non-empty fact with a confidence in [0,1], or an error.
package distill

import (
	"context"
	"errors"
)

var (
	// ErrEmptyContent indicates there was nothing to distill.
	ErrEmptyContent = errors.New("empty content")

	// ErrDistillFailed indicates the backend could not produce a fact.
	ErrDistillFailed = errors.New("distillation failed")
)

// Distillation is the outcome of condensing episodic content.
type Distillation struct {
	// Fact is the durable statement extracted from the content.
	Fact string

	// Confidence reflects how faithful the fact is to its source, in [0,1].
	// Distilled facts never claim full confidence.
	Confidence float64
}

// Distiller condenses raw episodic content into a semantic fact.
type Distiller interface {
	Distill(ctx context.Context, content string) (*Distillation, error)
}
