package redact

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact_Email(t *testing.T) {
	r := MustNew(nil)

	result := r.Redact("contact user@example.com for details")

	assert.Equal(t, "contact [EMAIL_REDACTED] for details", result.Redacted)
	assert.Equal(t, 1, result.ByDetector["email"])
}

func TestRedact_Phone(t *testing.T) {
	r := MustNew(nil)

	tests := []string{
		"call 555-123-4567 tomorrow",
		"call (555) 123-4567 tomorrow",
		"call +1 555 123 4567 tomorrow",
	}
	for _, input := range tests {
		result := r.Redact(input)
		assert.Contains(t, result.Redacted, "[PHONE_REDACTED]", "input: %s", input)
		assert.NotContains(t, result.Redacted, "4567", "input: %s", input)
	}
}

func TestRedact_SSN(t *testing.T) {
	r := MustNew(nil)

	result := r.Redact("SSN is 123-45-6789")

	assert.Equal(t, "SSN is [SSN_REDACTED]", result.Redacted)
}

func TestRedact_CreditCard(t *testing.T) {
	r := MustNew(nil)

	tests := []string{
		"card 4111111111111111 on file",
		"card 4111 1111 1111 1111 on file",
	}
	for _, input := range tests {
		result := r.Redact(input)
		assert.Contains(t, result.Redacted, "[CARD_REDACTED]", "input: %s", input)
		assert.NotContains(t, result.Redacted, "4111", "input: %s", input)
		assert.Equal(t, 1, result.ByDetector["credit-card"], "input: %s", input)
		assert.Zero(t, result.ByDetector["phone"], "card digits must not be claimed as a phone number, input: %s", input)
	}
}

// A card number contains phone-shaped digit runs; the card detector must
// claim the full span so no digits leak under the phone tag.
func TestRedact_CardAndPhoneTogether(t *testing.T) {
	r := MustNew(nil)

	result := r.Redact("pay 4111111111111111 or call 555-123-4567")

	assert.Equal(t, "pay [CARD_REDACTED] or call [PHONE_REDACTED]", result.Redacted)
	assert.Equal(t, 1, result.ByDetector["credit-card"])
	assert.Equal(t, 1, result.ByDetector["phone"])
}

// Redaction round-trip: after redacting, the output must contain no match of
// the detector's own pattern.
func TestRedact_RoundTrip(t *testing.T) {
	r := MustNew(nil)

	inputs := map[string]string{
		"email":       "a@b.com then c.d@sub.example.org end",
		"phone":       "555-123-4567 and 555.987.6543",
		"ssn":         "123-45-6789 twice 987-65-4321",
		"credit-card": "4111 1111 1111 1111 and 5500005555555559",
	}

	for _, d := range DefaultDetectors() {
		input, ok := inputs[d.ID]
		if !ok {
			continue
		}
		result := r.Redact(input)
		pattern := regexp.MustCompile(d.Pattern)
		assert.False(t, pattern.MatchString(result.Redacted),
			"detector %s left a match in %q", d.ID, result.Redacted)
	}
}

func TestRedact_NoMatchPassesThrough(t *testing.T) {
	r := MustNew(nil)

	input := "prefers dark mode and vim keybindings"
	result := r.Redact(input)

	assert.Equal(t, input, result.Redacted)
	assert.False(t, result.HasFindings())
}

func TestRedact_Deterministic(t *testing.T) {
	r := MustNew(nil)
	input := "mail user@example.com or 555-123-4567"

	first := r.Redact(input)
	second := r.Redact(input)

	assert.Equal(t, first.Redacted, second.Redacted)
	assert.Equal(t, first.TotalFindings, second.TotalFindings)
}

func TestRedact_MultipleFindings(t *testing.T) {
	r := MustNew(nil)

	result := r.Redact("a@b.com wrote to c@d.com about 123-45-6789")

	assert.Equal(t, 3, result.TotalFindings)
	assert.Equal(t, 2, result.ByDetector["email"])
	assert.Equal(t, 1, result.ByDetector["ssn"])
	assert.NotContains(t, result.Redacted, "a@b.com")
	assert.NotContains(t, result.Redacted, "c@d.com")
}

func TestRedact_AllowList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowList = []string{`.*@example\.com`}
	r := MustNew(cfg)

	result := r.Redact("keep admin@example.com, drop user@other.org")

	assert.Contains(t, result.Redacted, "admin@example.com")
	assert.NotContains(t, result.Redacted, "user@other.org")
}

func TestRedact_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	r := MustNew(cfg)

	input := "user@example.com"
	assert.Equal(t, input, r.Redact(input).Redacted)
	assert.False(t, r.IsEnabled())
}

func TestCheck_DetectsWithoutRedacting(t *testing.T) {
	r := MustNew(nil)

	input := "mail user@example.com"
	result := r.Check(input)

	assert.Equal(t, input, result.Redacted)
	assert.True(t, result.HasFindings())
}

func TestConfigValidate_BadPattern(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Detectors: []Detector{
			{ID: "broken", Pattern: "[", Placeholder: "[X]"},
		},
	}
	_, err := New(cfg)
	require.Error(t, err)
}
