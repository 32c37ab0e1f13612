// Package rules provides the synchronous, client-only field checks for the
// signup form: format and consistency rules that never need a network round
// trip. Every rule is a pure function from the raw input to a verdict.
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Result is the outcome of a single rule evaluation.
type Result struct {
	Valid   bool
	Message string
}

// Rule checks one field value. Rules are pure: no I/O, no side effects,
// deterministic for a given input.
type Rule func(value string) Result

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	vatCRRegex = regexp.MustCompile(`^[A-Za-z0-9]{10,}$`)
)

func ok() Result {
	return Result{Valid: true}
}

func fail(message string) Result {
	return Result{Valid: false, Message: message}
}

// EmailFormat validates the shape of an email address. It is the format gate
// that runs before any remote check; a value rejected here is never sent to
// the validation service.
func EmailFormat(value string) Result {
	value = strings.TrimSpace(value)
	if value == "" {
		return fail("Email is required")
	}
	if !emailRegex.MatchString(value) {
		return fail("Invalid email format")
	}
	return ok()
}

// PhoneFormat accepts any non-empty phone value. Authoritative phone
// validation is delegated to the remote service; the local gate only blocks
// empty input.
func PhoneFormat(value string) Result {
	if strings.TrimSpace(value) == "" {
		return fail("Phone number is required")
	}
	return ok()
}

// Name returns a rule that requires a trimmed length of at least min runes.
// Used for first and last name in individual mode.
func Name(min int) Rule {
	return func(value string) Result {
		if len([]rune(strings.TrimSpace(value))) < min {
			if min <= 1 {
				return fail("Name is required")
			}
			return fail(fmt.Sprintf("Name must be at least %d characters", min))
		}
		return ok()
	}
}

// CompanyName requires a trimmed length of at least 2 runes.
func CompanyName(value string) Result {
	if len([]rune(strings.TrimSpace(value))) < 2 {
		return fail("Company name must be at least 2 characters")
	}
	return ok()
}

// VATCR validates a VAT or Commercial Registration number: at least 10
// alphanumeric characters.
func VATCR(value string) Result {
	if !vatCRRegex.MatchString(strings.TrimSpace(value)) {
		return fail("VAT/CR number must be at least 10 letters or digits")
	}
	return ok()
}

// PasswordConfirm returns a rule that requires the confirmation value to be
// non-empty and identical to the password.
func PasswordConfirm(password string) Rule {
	return func(confirm string) Result {
		if confirm == "" {
			return fail("Password confirmation is required")
		}
		if confirm != password {
			return fail("Passwords do not match")
		}
		return ok()
	}
}

// Dynamic validates a dynamically injected field: non-empty after trimming.
// Dynamic fields contribute to form validity silently, so the message is
// intentionally empty.
func Dynamic(value string) Result {
	if strings.TrimSpace(value) == "" {
		return Result{Valid: false}
	}
	return ok()
}
