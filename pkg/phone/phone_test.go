package phone

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsignup/signupkit/pkg/form"
)

type recordingRevalidator struct {
	country     string
	revalidated []string
}

func (r *recordingRevalidator) SetCountry(id string) { r.country = id }

func (r *recordingRevalidator) Revalidate(_ context.Context, field string) {
	r.revalidated = append(r.revalidated, field)
}

func TestApplyPrefix(t *testing.T) {
	sa := Country{ID: "682", CallingCode: "966"}
	jo := Country{ID: "400", CallingCode: "962"}

	tests := []struct {
		name    string
		raw     string
		country Country
		want    string
	}{
		{"empty becomes bare prefix", "", sa, "+966 "},
		{"prefix swapped in place", "+966 512345678", jo, "+962 512345678"},
		{"bare number gets prefix", "512345678", sa, "+966 512345678"},
		{"short code swapped for long", "+1 5551234", sa, "+966 5551234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyPrefix(tt.raw, tt.country))
		})
	}
}

func TestApplyPrefix_NeverStacks(t *testing.T) {
	jo := Country{ID: "400", CallingCode: "962"}
	kw := Country{ID: "414", CallingCode: "965"}

	raw := "+966 512345678"
	for i := 0; i < 5; i++ {
		raw = ApplyPrefix(raw, jo)
		raw = ApplyPrefix(raw, kw)
	}
	assert.Equal(t, "+965 512345678", raw)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	sa, ok := r.Lookup(DefaultCountryID)
	require.True(t, ok)
	assert.Equal(t, "966", sa.CallingCode)
	assert.Equal(t, "SA", sa.ISO)

	_, ok = r.Lookup("999")
	assert.False(t, ok)

	countries := r.Countries()
	require.NotEmpty(t, countries)
	for i := 1; i < len(countries); i++ {
		assert.LessOrEqual(t, countries[i-1].Name, countries[i].Name)
	}
}

func TestBinding_SelectCountry(t *testing.T) {
	state := form.NewState()
	ctrl := &recordingRevalidator{}
	b := NewBinding(NewRegistry(), state, ctrl)

	assert.Equal(t, DefaultCountryID, b.Country())
	assert.Equal(t, DefaultCountryID, ctrl.country, "default forwarded at construction")

	// Empty phone: selecting a country seeds the bare prefix.
	require.NoError(t, b.SelectCountry(context.Background(), "400"))
	assert.Equal(t, "+962 ", state.Raw(form.FieldPhone))
	assert.Equal(t, "400", ctrl.country)
	assert.Equal(t, []string{form.FieldPhone}, ctrl.revalidated)

	// A typed number keeps its national part across a switch.
	state.ApplyLocal(form.FieldPhone, "+962 512345678")
	require.NoError(t, b.SelectCountry(context.Background(), "682"))
	assert.Equal(t, "+966 512345678", state.Raw(form.FieldPhone))
}

func TestBinding_UnknownCountry(t *testing.T) {
	state := form.NewState()
	ctrl := &recordingRevalidator{}
	b := NewBinding(NewRegistry(), state, ctrl)

	err := b.SelectCountry(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownCountry)
	assert.Equal(t, DefaultCountryID, b.Country(), "selection unchanged on error")
}
