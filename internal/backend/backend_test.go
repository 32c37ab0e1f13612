package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsignup/signupkit/pkg/form"
	"github.com/jsignup/signupkit/pkg/remote"
	"github.com/jsignup/signupkit/pkg/signup"
)

func call(t *testing.T, srv *httptest.Server, path string, params any) rpcResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "call",
		"params":  params,
		"id":      "test-1",
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func newTestServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	svc := New(nil)
	srv := httptest.NewServer(svc.Routes())
	t.Cleanup(srv.Close)
	return svc, srv
}

func TestValidateEmail(t *testing.T) {
	_, srv := newTestServer(t)

	tests := []struct {
		name    string
		email   string
		valid   bool
		message string
	}{
		{"available", "new.user@example.com", true, ""},
		{"malformed", "not-an-email", false, ""},
		{"disposable domain", "user@mailinator.com", false, "Disposable email addresses are not allowed"},
		{"already registered", "test@example.com", false, "An account with this email address already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := call(t, srv, remote.PathValidateEmail, map[string]string{"email": tt.email})
			require.NotNil(t, out.Result)
			assert.Equal(t, tt.valid, out.Result.Valid)
			if tt.message != "" {
				require.NotEmpty(t, out.Result.Messages)
				assert.Equal(t, tt.message, out.Result.Messages[0])
			}
		})
	}
}

func TestValidatePhone(t *testing.T) {
	_, srv := newTestServer(t)

	out := call(t, srv, remote.PathValidatePhone, map[string]string{
		"phone":      "+966 512345678",
		"country_id": "682",
	})
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Valid)
	assert.Equal(t, "+966 51 23 45 678", out.Result.Formatted)

	short := call(t, srv, remote.PathValidatePhone, map[string]string{"phone": "+966 12"})
	require.NotNil(t, short.Result)
	assert.False(t, short.Result.Valid)
}

func TestValidatePassword(t *testing.T) {
	_, srv := newTestServer(t)

	strong := call(t, srv, PathValidatePassword, map[string]string{"password": "Str0ngEnough"})
	require.NotNil(t, strong.Result)
	assert.True(t, strong.Result.Valid)

	weak := call(t, srv, PathValidatePassword, map[string]string{"password": "abc"})
	require.NotNil(t, weak.Result)
	assert.False(t, weak.Result.Valid)
	assert.NotEmpty(t, weak.Result.Messages)
}

func TestSubmit(t *testing.T) {
	svc, srv := newTestServer(t)

	payload := map[string]string{
		"mode":       "individual",
		"email":      "fresh@example.com",
		"phone":      "+966512345678",
		"password":   "Str0ngEnough",
		"first_name": "John",
		"last_name":  "Smith",
	}

	out := call(t, srv, PathSubmit, payload)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Valid)
	assert.True(t, svc.Registered("fresh@example.com"))

	// Same email again is a duplicate.
	dup := call(t, srv, PathSubmit, payload)
	require.NotNil(t, dup.Result)
	assert.False(t, dup.Result.Valid)
}

func TestSubmit_DTOValidation(t *testing.T) {
	_, srv := newTestServer(t)

	// Company mode without a company name fails the DTO check.
	out := call(t, srv, PathSubmit, map[string]string{
		"mode":     "company",
		"email":    "biz@example.com",
		"phone":    "+966512345678",
		"password": "Str0ngEnough",
	})
	require.NotNil(t, out.Result)
	assert.False(t, out.Result.Valid)
	assert.NotEmpty(t, out.Result.Messages)
}

func TestSubmit_VATTooShort(t *testing.T) {
	_, srv := newTestServer(t)

	out := call(t, srv, PathSubmit, map[string]string{
		"mode":         "company",
		"email":        "vat@example.com",
		"phone":        "+966512345678",
		"password":     "Str0ngEnough",
		"company_name": "Acme Trading",
		"vat_cr":       "12345",
	})
	require.NotNil(t, out.Result)
	assert.False(t, out.Result.Valid)
}

func TestMalformedEnvelope(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+remote.PathValidateEmail, "application/json",
		bytes.NewReader([]byte("{broken")))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, "malformed request", out.Error.Message)
}

func TestInProcessSubmitter(t *testing.T) {
	svc := New(nil)
	submitter := svc.Submitter()

	err := submitter.Submit(context.Background(), signup.Submission{
		Mode:      form.ModeIndividual,
		CountryID: "682",
		Values: map[string]string{
			form.FieldEmail:     "inproc@example.com",
			form.FieldPhone:     "+966512345678",
			form.FieldPassword:  "Str0ngEnough",
			form.FieldFirstName: "John",
			form.FieldLastName:  "Smith",
		},
	})
	require.NoError(t, err)
	assert.True(t, svc.Registered("inproc@example.com"))
}

func TestFormatPhone(t *testing.T) {
	assert.Equal(t, "+966 51 23 45 678", formatPhone("966512345678"))
	assert.Equal(t, "+123", formatPhone("123"))
}
