package rules

import (
	"fmt"
	"regexp"
	"unicode"
)

// StrengthPolicy configures password strength requirements.
type StrengthPolicy struct {
	MinLength      int
	RequireNumber  bool
	RequireUpper   bool
	RequireLower   bool
	RequireSpecial bool
}

// DefaultStrengthPolicy returns the default policy: 8 characters minimum
// with at least one number.
func DefaultStrengthPolicy() StrengthPolicy {
	return StrengthPolicy{
		MinLength:     8,
		RequireNumber: true,
	}
}

// Requirement is one password requirement and whether the candidate meets it.
type Requirement struct {
	ID   string
	Text string
	Met  bool
}

// Strength is the scored result of a password evaluation.
type Strength struct {
	Score        int // 0-100
	Level        string
	Label        string
	Requirements []Requirement
	Valid        bool
}

var commonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)123|abc|qwerty|password|admin`),
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`^[a-zA-Z]+$`),
}

// Score evaluates a password against the policy. The score blends
// requirement coverage (up to 80 points) with a length bonus (up to 20),
// minus penalties for common weak patterns.
func (p StrengthPolicy) Score(password string) Strength {
	reqs := p.requirements(password)

	if password == "" {
		return Strength{Level: "very-weak", Label: "Very Weak", Requirements: reqs}
	}

	met := 0
	for _, r := range reqs {
		if r.Met {
			met++
		}
	}

	score := float64(met) / float64(len(reqs)) * 80

	if len(password) > p.MinLength {
		bonus := float64(len(password)-p.MinLength) * 2
		if bonus > 20 {
			bonus = 20
		}
		score += bonus
	}

	score -= float64(p.penalty(password))

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	rounded := int(score + 0.5)
	level, label := strengthLevel(rounded)

	return Strength{
		Score:        rounded,
		Level:        level,
		Label:        label,
		Requirements: reqs,
		Valid:        met == len(reqs),
	}
}

func (p StrengthPolicy) requirements(password string) []Requirement {
	reqs := []Requirement{{
		ID:   "length",
		Text: fmt.Sprintf("At least %d characters", p.MinLength),
		Met:  len(password) >= p.MinLength,
	}}

	hasNumber, hasUpper, hasLower, hasSpecial := false, false, false, false
	for _, c := range password {
		switch {
		case unicode.IsDigit(c):
			hasNumber = true
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		default:
			hasSpecial = true
		}
	}

	if p.RequireNumber {
		reqs = append(reqs, Requirement{ID: "number", Text: "At least one number", Met: hasNumber})
	}
	if p.RequireUpper {
		reqs = append(reqs, Requirement{ID: "uppercase", Text: "At least one uppercase letter", Met: hasUpper})
	}
	if p.RequireLower {
		reqs = append(reqs, Requirement{ID: "lowercase", Text: "At least one lowercase letter", Met: hasLower})
	}
	if p.RequireSpecial {
		reqs = append(reqs, Requirement{ID: "special", Text: "At least one special character", Met: hasSpecial})
	}

	return reqs
}

func (p StrengthPolicy) penalty(password string) int {
	penalty := 0
	for _, pattern := range commonPatterns {
		if pattern.MatchString(password) {
			penalty += 10
		}
	}
	if hasRepeatedChars(password) {
		penalty += 10
	}
	if hasSequentialChars(password) {
		penalty += 5
	}
	return penalty
}

// hasRepeatedChars reports three identical consecutive characters,
// e.g. "aaa" or "111".
func hasRepeatedChars(password string) bool {
	for i := 0; i+2 < len(password); i++ {
		if password[i+1] == password[i] && password[i+2] == password[i] {
			return true
		}
	}
	return false
}

// hasSequentialChars reports three consecutive ascending character codes,
// e.g. "abc" or "123".
func hasSequentialChars(password string) bool {
	for i := 0; i+2 < len(password); i++ {
		if password[i+1] == password[i]+1 && password[i+2] == password[i]+2 {
			return true
		}
	}
	return false
}

func strengthLevel(score int) (level, label string) {
	switch {
	case score < 20:
		return "very-weak", "Very Weak"
	case score < 40:
		return "weak", "Weak"
	case score < 60:
		return "fair", "Fair"
	case score < 80:
		return "good", "Good"
	default:
		return "strong", "Strong"
	}
}
