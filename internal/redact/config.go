package redact

import (
	"fmt"
	"regexp"
)

// Config configures the redactor. The detector list is externally supplied
// (koanf); DefaultConfig seeds it with the standard PII detectors.
type Config struct {
	// Enabled controls whether redaction is active (default: true).
	Enabled bool `koanf:"enabled"`

	// Detectors defines the ordered detection rules.
	Detectors []Detector `koanf:"detectors"`

	// AllowList contains patterns to skip during redaction.
	AllowList []string `koanf:"allow_list"`

	// compiled patterns (populated by Validate)
	compiledDetectors []*compiledDetector
	compiledAllowList []*regexp.Regexp
}

// Detector defines one PII detection rule.
type Detector struct {
	// ID is the unique identifier for this detector (e.g. "email").
	ID string `koanf:"id"`

	// Description explains what this detector finds.
	Description string `koanf:"description"`

	// Pattern is the regex matching the sensitive value.
	Pattern string `koanf:"pattern"`

	// Placeholder replaces every match (e.g. "[EMAIL_REDACTED]").
	Placeholder string `koanf:"placeholder"`
}

type compiledDetector struct {
	Detector
	pattern *regexp.Regexp
}

// DefaultDetectors returns the standard PII detectors, applied in order.
/// Card numbers run before phone numbers: a card's digit run contains
// phone-shaped substrings, and the first detector to claim a span wins.
func DefaultDetectors() []Detector {
	return []Detector{
		{
			ID:          "email",
			Description: "Email address",
			Pattern:     `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
			Placeholder: "[EMAIL_REDACTED]",
		},
		{
			ID:          "credit-card",
			Description: "Credit-card-like number",
			Pattern:     `\b(?:\d[\s\-]?){13,16}\b`,
			Placeholder: "[CARD_REDACTED]",
		},
		{
			ID:          "ssn",
			Description: "US Social Security Number",
			Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
			Placeholder: "[SSN_REDACTED]",
		},
		{
			ID:          "phone",
			Description: "Phone number",
			Pattern:     `(?:\+?1[\s.\-]?)?(?:\(\d{3}\)|\b\d{3})[\s.\-]?\d{3}[\s.\-]?\d{4}\b`,
			Placeholder: "[PHONE_REDACTED]",
		},
	}
}

// DefaultConfig returns a configuration with the standard detectors.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Detectors: DefaultDetectors(),
		AllowList: []string{},
	}
}

// Validate validates and compiles the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if len(c.Detectors) == 0 {
		c.Detectors = DefaultDetectors()
	}

	c.compiledDetectors = make([]*compiledDetector, 0, len(c.Detectors))
	for i, d := range c.Detectors {
		if d.ID == "" {
			return fmt.Errorf("detector %d: ID is required", i)
		}
		if d.Pattern == "" {
			return fmt.Errorf("detector %s: pattern is required", d.ID)
		}
		if d.Placeholder == "" {
			return fmt.Errorf("detector %s: placeholder is required", d.ID)
		}

		pattern, err := regexp.Compile(d.Pattern)
		if err != nil {
			return fmt.Errorf("detector %s: invalid pattern: %w", d.ID, err)
		}

		c.compiledDetectors = append(c.compiledDetectors, &compiledDetector{
			Detector: d,
			pattern:  pattern,
		})
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, compiled)
	}

	return nil
}
