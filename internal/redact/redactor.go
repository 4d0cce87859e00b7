// Package redact scrubs personally-identifiable information from text
// before it reaches the memory store.
package redact

import "sort"

// Redactor detects and replaces PII in content.
//
// Redact is deterministic, side-effect-free, and total: input with no
// matches passes through unchanged, and detector errors are impossible
// after config compilation.
type Redactor interface {
	// Redact replaces all PII matches with type-tagged placeholders.
	Redact(content string) *Result

	// Check detects PII without redacting.
	Check(content string) *Result

	// IsEnabled returns whether redaction is enabled.
	IsEnabled() bool
}

// Result contains the redaction outcome.
type Result struct {
	// Redacted is the content with PII replaced.
	Redacted string

	// TotalFindings is the count of matches found.
	TotalFindings int

	// ByDetector maps detector IDs to match counts. Matched values are
	// never recorded.
	ByDetector map[string]int
}

// HasFindings returns true if any PII was found.
func (r *Result) HasFindings() bool {
	return r.TotalFindings > 0
}

type redactor struct {
	config *Config
}

// span tracks a region to replace.
type span struct {
	start, end  int
	placeholder string
}

// New creates a Redactor with the given configuration.
// If config is nil, DefaultConfig() is used.
func New(cfg *Config) (Redactor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &redactor{config: cfg}, nil
}

// MustNew creates a Redactor, panicking on error.
func MustNew(cfg *Config) Redactor {
	r, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *redactor) Redact(content string) *Result {
	result := &Result{
		Redacted:   content,
		ByDetector: make(map[string]int),
	}

	if !r.config.Enabled {
		return result
	}

	// Detectors run in declared order; earlier detectors claim overlapping
	// regions so an email inside a longer match keeps its own tag.
	spans := make([]span, 0)
	for _, d := range r.config.compiledDetectors {
		for _, match := range d.pattern.FindAllStringIndex(content, -1) {
			if r.isAllowed(content[match[0]:match[1]]) {
				continue
			}
			if overlaps(spans, match[0], match[1]) {
				continue
			}
			spans = append(spans, span{
				start:       match[0],
				end:         match[1],
				placeholder: d.Placeholder,
			})
			result.ByDetector[d.ID]++
			result.TotalFindings++
		}
	}

	if len(spans) == 0 {
		return result
	}

	// Replace back-to-front so earlier offsets stay valid.
	sort.Slice(spans, func(i, j int) bool {
		return spans[i].start > spans[j].start
	})
	redacted := content
	for _, s := range spans {
		redacted = redacted[:s.start] + s.placeholder + redacted[s.end:]
	}
	result.Redacted = redacted

	return result
}

func (r *redactor) Check(content string) *Result {
	result := r.Redact(content)
	result.Redacted = content
	return result
}

func (r *redactor) IsEnabled() bool {
	return r.config.Enabled
}

func (r *redactor) isAllowed(match string) bool {
	for _, pattern := range r.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// Noop is a redactor that does nothing (disabled mode).
type Noop struct{}

// Redact returns content unchanged.
func (Noop) Redact(content string) *Result {
	return &Result{Redacted: content, ByDetector: make(map[string]int)}
}

// Check returns content unchanged.
func (n Noop) Check(content string) *Result {
	return n.Redact(content)
}

// IsEnabled returns false.
func (Noop) IsEnabled() bool { return false }

var (
	_ Redactor = (*redactor)(nil)
	_ Redactor = Noop{}
)
