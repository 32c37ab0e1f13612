package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailFormat(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{"valid", "user@example.com", true},
		{"subdomain", "user@mail.example.co", true},
		{"missing tld", "a@b", false},
		{"missing at", "userexample.com", false},
		{"spaces", "us er@example.com", false},
		{"empty", "", false},
		{"whitespace only", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EmailFormat(tt.value)
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				assert.NotEmpty(t, result.Message)
			}
		})
	}
}

func TestName(t *testing.T) {
	min1 := Name(1)
	min2 := Name(2)

	assert.True(t, min1("J").Valid)
	assert.False(t, min1("").Valid)
	assert.False(t, min1("   ").Valid)

	assert.False(t, min2("J").Valid)
	assert.True(t, min2("Jo").Valid)
	assert.True(t, min2("  Jo  ").Valid)
}

func TestCompanyName(t *testing.T) {
	assert.False(t, CompanyName("A").Valid)
	assert.True(t, CompanyName("AB").Valid)
	assert.False(t, CompanyName(" A ").Valid)
}

func TestVATCR(t *testing.T) {
	// 5 chars is too short, 10 alphanumeric chars is the minimum.
	assert.False(t, VATCR("AB123").Valid)
	assert.True(t, VATCR("AB12345678").Valid)
	assert.True(t, VATCR("1234567890123").Valid)
	assert.False(t, VATCR("AB12345-78").Valid)
	assert.False(t, VATCR("").Valid)
}

func TestPasswordConfirm(t *testing.T) {
	rule := PasswordConfirm("secret123")

	assert.True(t, rule("secret123").Valid)
	assert.False(t, rule("secret124").Valid)
	assert.False(t, rule("").Valid)

	empty := PasswordConfirm("")
	assert.False(t, empty("").Valid, "empty confirmation is never valid")
}

func TestDynamic(t *testing.T) {
	assert.True(t, Dynamic("anything").Valid)
	assert.False(t, Dynamic("").Valid)
	assert.False(t, Dynamic("   ").Valid)
	// Dynamic fields fail silently: no message surfaced.
	assert.Empty(t, Dynamic("").Message)
}

func TestPhoneFormat(t *testing.T) {
	assert.True(t, PhoneFormat("+966 512345678").Valid)
	assert.False(t, PhoneFormat("").Valid)
	assert.False(t, PhoneFormat("  ").Valid)
}
