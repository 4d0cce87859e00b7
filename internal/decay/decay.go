// Package decay computes time-based relevance decay for memory entries.
//
// Decay is exponential in age: score = exp(-lambda * ageHours), with a
// per-type lambda. Episodic memories fade fastest, procedural slowest.
// Scores are computed lazily at read time; nothing is persisted.
package decay

import (
	"math"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/memory"
)

// Engine computes decay scores from per-type rates.
type Engine struct {
	lambdaEpisodic   float64
	lambdaSemantic   float64
	lambdaProcedural float64
}

// New creates an Engine from the decay configuration.
func New(cfg config.DecayConfig) *Engine {
	return &Engine{
		lambdaEpisodic:   cfg.LambdaEpisodic,
		lambdaSemantic:   cfg.LambdaSemantic,
		lambdaProcedural: cfg.LambdaProcedural,
	}
}

// Lambda returns the hourly decay rate for a memory type. Unknown types get
// the episodic rate, the most aggressive.
func (e *Engine) Lambda(t memory.Type) float64 {
	switch t {
	case memory.TypeSemantic:
		return e.lambdaSemantic
	case memory.TypeProcedural:
		return e.lambdaProcedural
	default:
		return e.lambdaEpisodic
	}
}

// Score returns the decay factor in (0, 1] for a memory of the given type
// and age. Age zero scores exactly 1; negative ages are treated as zero.
func (e *Engine) Score(t memory.Type, ageHours float64) float64 {
	if ageHours <= 0 {
		return 1.0
	}
	return math.Exp(-e.Lambda(t) * ageHours)
}

// ScoreEntry returns the decay factor for an entry at now.
func (e *Engine) ScoreEntry(entry *memory.Entry, now time.Time) float64 {
	return e.Score(entry.Type, entry.AgeHours(now))
}

// HalfLife returns the age, in hours, at which a memory of the given type
// decays to half relevance.
func (e *Engine) HalfLife(t memory.Type) float64 {
	return math.Ln2 / e.Lambda(t)
}
