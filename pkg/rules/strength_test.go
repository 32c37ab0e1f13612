package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrengthPolicy_Score_Empty(t *testing.T) {
	policy := DefaultStrengthPolicy()
	s := policy.Score("")

	assert.Equal(t, 0, s.Score)
	assert.Equal(t, "very-weak", s.Level)
	assert.False(t, s.Valid)
	assert.NotEmpty(t, s.Requirements)
}

func TestStrengthPolicy_Score_Requirements(t *testing.T) {
	policy := StrengthPolicy{
		MinLength:      8,
		RequireNumber:  true,
		RequireUpper:   true,
		RequireLower:   true,
		RequireSpecial: true,
	}

	s := policy.Score("Tr0ub4dor&Mule")
	assert.True(t, s.Valid, "all requirements met")
	for _, r := range s.Requirements {
		assert.True(t, r.Met, "requirement %s", r.ID)
	}

	weak := policy.Score("short")
	assert.False(t, weak.Valid)
}

func TestStrengthPolicy_Score_Penalties(t *testing.T) {
	policy := StrengthPolicy{MinLength: 8}

	// "password" trips the common-sequence and letters-only penalties.
	common := policy.Score("password")
	clean := policy.Score("kmrtvwyz")
	assert.Less(t, common.Score, clean.Score)

	// Repeated characters are penalized.
	repeated := policy.Score("aaa12345")
	cleanDigits := policy.Score("azb12345")
	assert.Less(t, repeated.Score, cleanDigits.Score)
}

func TestStrengthPolicy_Score_LengthBonus(t *testing.T) {
	policy := StrengthPolicy{MinLength: 8}

	base := policy.Score("kmrtvwyz")
	longer := policy.Score("kmrtvwyzkmrtvwyz")
	assert.Greater(t, longer.Score, base.Score)
}

func TestStrengthPolicy_Levels(t *testing.T) {
	level, label := strengthLevel(10)
	assert.Equal(t, "very-weak", level)
	assert.Equal(t, "Very Weak", label)

	level, _ = strengthLevel(45)
	assert.Equal(t, "fair", level)

	level, _ = strengthLevel(95)
	assert.Equal(t, "strong", level)
}

func TestHasRepeatedChars(t *testing.T) {
	assert.True(t, hasRepeatedChars("aaa"))
	assert.True(t, hasRepeatedChars("xy111z"))
	assert.False(t, hasRepeatedChars("aabbcc"))
	assert.False(t, hasRepeatedChars("aa"))
}

func TestHasSequentialChars(t *testing.T) {
	assert.True(t, hasSequentialChars("xabcx"))
	assert.True(t, hasSequentialChars("123"))
	assert.False(t, hasSequentialChars("acegik"))
	assert.False(t, hasSequentialChars("ab"))
}
