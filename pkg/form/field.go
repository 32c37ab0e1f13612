// Package form tracks per-field and aggregate validity for the signup form.
// It is the single source of truth the wizard and the submit gate observe:
// pure state, no rendering, no network. Presentation layers subscribe to
// Change notifications instead of reaching into the state.
package form

import "strings"

// Well-known field names, matching the signup form's input names.
const (
	FieldEmail           = "email"
	FieldPhone           = "phone"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
	FieldFirstName       = "first_name"
	FieldLastName        = "last_name"
	FieldCompanyName     = "company_name"
	FieldVATCR           = "vat_cr"
)

// DynamicPrefix marks dynamically injected fields by naming convention.
const DynamicPrefix = "dynamic_"

// IsDynamic reports whether a field name follows the dynamic-field
// convention.
func IsDynamic(name string) bool {
	return strings.HasPrefix(name, DynamicPrefix)
}

// Status is the presentation status of a field.
type Status string

const (
	// StatusNone means the field has not been evaluated yet.
	StatusNone Status = ""
	// StatusChecking means a remote verdict is pending.
	StatusChecking Status = "checking"
	// StatusValid means the field passed all applicable checks.
	StatusValid Status = "valid"
	// StatusInvalid means the field failed a local or remote check.
	StatusInvalid Status = "invalid"
)

// Field is the record kept for one input.
type Field struct {
	// Name is the input name.
	Name string

	// Raw is the latest raw value received for the field.
	Raw string

	// LocalValid is the synchronous rule verdict.
	LocalValid bool

	// RemoteValid is nil until a remote check completes. The combined
	// validity of a remote-checked field is LocalValid && *RemoteValid.
	RemoteValid *bool

	// Pending is true while a remote check is scheduled or in flight.
	Pending bool
}

// Change describes one field validity transition, delivered to subscribers.
type Change struct {
	Field   string
	Value   string
	Valid   bool
	Status  Status
	Message string

	// FormValid is the aggregate validity of the whole required set after
	// this change, gating submit enablement.
	FormValid bool
}

// Mode selects which fields are members of the required set.
type Mode int

const (
	// ModeIndividual requires first and last name.
	ModeIndividual Mode = iota
	// ModeCompany requires company name and, when marked, VAT/CR.
	ModeCompany
)

// String returns the mode's wire name.
func (m Mode) String() string {
	if m == ModeCompany {
		return "company"
	}
	return "individual"
}

// ParseMode maps a wire name to a Mode. Unknown values fall back to
// ModeIndividual.
func ParseMode(s string) Mode {
	if s == "company" {
		return ModeCompany
	}
	return ModeIndividual
}

// DynamicField declares a dynamically injected extra field.
type DynamicField struct {
	Name     string
	Required bool
}
