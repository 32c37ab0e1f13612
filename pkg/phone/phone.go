// Package phone binds a country selector to the phone input. Selecting a
// country rewrites the number's calling-code prefix in place and triggers a
// re-validation of the rewritten value.
package phone

import (
	"context"
	"errors"
	"regexp"
	"sort"

	"github.com/jsignup/signupkit/pkg/form"
)

// ErrUnknownCountry is returned when a country ID is not in the registry.
var ErrUnknownCountry = errors.New("phone: unknown country")

// Country describes one selectable country.
type Country struct {
	ID          string
	Name        string
	ISO         string
	CallingCode string // digits only, no leading plus
}

// Registry holds the selectable countries.
type Registry struct {
	byID    map[string]Country
	ordered []Country
}

// DefaultCountryID is the country preselected on a fresh form.
const DefaultCountryID = "682" // Saudi Arabia

var defaultCountries = []Country{
	{ID: "682", Name: "Saudi Arabia", ISO: "SA", CallingCode: "966"},
	{ID: "784", Name: "United Arab Emirates", ISO: "AE", CallingCode: "971"},
	{ID: "400", Name: "Jordan", ISO: "JO", CallingCode: "962"},
	{ID: "414", Name: "Kuwait", ISO: "KW", CallingCode: "965"},
	{ID: "48", Name: "Bahrain", ISO: "BH", CallingCode: "973"},
	{ID: "818", Name: "Egypt", ISO: "EG", CallingCode: "20"},
	{ID: "826", Name: "United Kingdom", ISO: "GB", CallingCode: "44"},
	{ID: "840", Name: "United States", ISO: "US", CallingCode: "1"},
}

// NewRegistry builds a registry. With no arguments it carries the default
// country table.
func NewRegistry(countries ...Country) *Registry {
	if len(countries) == 0 {
		countries = defaultCountries
	}
	r := &Registry{byID: make(map[string]Country, len(countries))}
	for _, c := range countries {
		r.byID[c.ID] = c
	}
	r.ordered = append(r.ordered, countries...)
	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].Name < r.ordered[j].Name
	})
	return r
}

// Lookup returns the country with the given ID.
func (r *Registry) Lookup(id string) (Country, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Countries returns the registry's countries sorted by name.
func (r *Registry) Countries() []Country {
	return append([]Country(nil), r.ordered...)
}

// prefixRegex matches exactly one leading calling-code run. Bounded so a
// number can never lose more than the prefix it carries.
var prefixRegex = regexp.MustCompile(`^\+\d{1,4}\s*`)

// ApplyPrefix rewrites raw so it starts with the country's calling code.
// An empty number becomes just the prefix; a number already carrying a
// prefix has it swapped; anything else gets the prefix prepended.
func ApplyPrefix(raw string, c Country) string {
	prefix := "+" + c.CallingCode + " "
	if raw == "" {
		return prefix
	}
	if loc := prefixRegex.FindStringIndex(raw); loc != nil {
		return prefix + raw[loc[1]:]
	}
	return prefix + raw
}

// Revalidator is the slice of the validation controller the binding needs.
type Revalidator interface {
	SetCountry(countryID string)
	Revalidate(ctx context.Context, field string)
}

// Binding couples the country selector to the form's phone field.
type Binding struct {
	registry *Registry
	state    *form.State
	ctrl     Revalidator
	current  string
}

// NewBinding creates a binding preselecting the default country.
func NewBinding(registry *Registry, state *form.State, ctrl Revalidator) *Binding {
	b := &Binding{
		registry: registry,
		state:    state,
		ctrl:     ctrl,
		current:  DefaultCountryID,
	}
	ctrl.SetCountry(DefaultCountryID)
	return b
}

// Country returns the currently selected country ID.
func (b *Binding) Country() string {
	return b.current
}

// SelectCountry switches the selected country, rewrites the phone input's
// prefix and re-validates the result.
func (b *Binding) SelectCountry(ctx context.Context, id string) error {
	country, ok := b.registry.Lookup(id)
	if !ok {
		return ErrUnknownCountry
	}

	b.current = id
	b.ctrl.SetCountry(id)

	rewritten := ApplyPrefix(b.state.Raw(form.FieldPhone), country)
	b.state.ApplyLocal(form.FieldPhone, rewritten)
	b.ctrl.Revalidate(ctx, form.FieldPhone)
	return nil
}
