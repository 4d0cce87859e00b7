package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampImportance(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"in range", 5.5, 5.5},
		{"below minimum", 0.2, 1.0},
		{"negative", -3, 1.0},
		{"above maximum", 42, 10.0},
		{"at minimum", 1.0, 1.0},
		{"at maximum", 10.0, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClampImportance(tt.input))
		})
	}
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.7, ClampConfidence(0.7))
	assert.Equal(t, 0.0, ClampConfidence(-1))
	assert.Equal(t, 1.0, ClampConfidence(2.5))
}

func TestEntryNormalize(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	e := &Entry{
		Content:   "prefers dark mode",
		Type:      TypeEpisodic,
		Namespace: NamespaceShortTerm,
		Metadata:  Metadata{TenantID: "t1", UserID: "u1"},
	}
	e.Normalize(now)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, int64(1), e.Version)
	assert.Equal(t, now, e.CreatedAt)
	assert.Equal(t, now, e.LastAccessed)
	assert.Equal(t, 1.0, e.Confidence)
	assert.Equal(t, StatusActive, e.Status)
	require.NotNil(t, e.ExpiresAt)
	assert.Equal(t, now.Add(24*time.Hour), *e.ExpiresAt)
}

func TestEntryNormalize_PersistentHasNoExpiry(t *testing.T) {
	e := &Entry{
		Content:   "distilled fact",
		Type:      TypeSemantic,
		Namespace: NamespacePersistent,
		Metadata:  Metadata{TenantID: "t1", UserID: "u1"},
	}
	e.Normalize(time.Now())

	assert.Nil(t, e.ExpiresAt)
}

func TestEntryValidate(t *testing.T) {
	valid := func() *Entry {
		return &Entry{
			Content:   "x",
			Type:      TypeEpisodic,
			Namespace: NamespaceShortTerm,
			Metadata:  Metadata{TenantID: "t1", UserID: "u1"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Entry)
		ok     bool
	}{
		{"valid entry", func(e *Entry) {}, true},
		{"empty content", func(e *Entry) { e.Content = "" }, false},
		{"unknown type", func(e *Entry) { e.Type = "working" }, false},
		{"unknown namespace", func(e *Entry) { e.Namespace = "scratch" }, false},
		{"missing tenant", func(e *Entry) { e.Metadata.TenantID = "" }, false},
		{"missing user", func(e *Entry) { e.Metadata.UserID = "" }, false},
		{"out-of-range importance accepted", func(e *Entry) { e.Importance = 99 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(e)
			err := e.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}

func TestScopeValidate(t *testing.T) {
	assert.NoError(t, Scope{TenantID: "t1", UserID: "u1"}.Validate())
	assert.ErrorIs(t, Scope{UserID: "u1"}.Validate(), ErrScopeViolation)
	assert.ErrorIs(t, Scope{TenantID: "t1"}.Validate(), ErrScopeViolation)
}

func TestScopeOwns(t *testing.T) {
	scope := Scope{TenantID: "t1", UserID: "u1"}
	assert.True(t, scope.Owns(&Entry{Metadata: Metadata{TenantID: "t1"}}))
	assert.False(t, scope.Owns(&Entry{Metadata: Metadata{TenantID: "t2"}}))
	assert.False(t, scope.Owns(nil))
}

func TestNamespaceDefaultTTL(t *testing.T) {
	assert.Equal(t, time.Hour, NamespaceEphemeral.DefaultTTL())
	assert.Equal(t, 24*time.Hour, NamespaceShortTerm.DefaultTTL())
	assert.Equal(t, 30*24*time.Hour, NamespaceLongTerm.DefaultTTL())
	assert.Equal(t, time.Duration(0), NamespacePersistent.DefaultTTL())
}

func TestEntryExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Entry{}).Expired(now))
	assert.True(t, (&Entry{ExpiresAt: &past}).Expired(now))
	assert.False(t, (&Entry{ExpiresAt: &future}).Expired(now))
}
