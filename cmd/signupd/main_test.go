package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jsignup/signupkit/pkg/config"
)

func TestSelfHosted(t *testing.T) {
	tests := []struct {
		name       string
		addr       string
		backendURL string
		want       bool
	}{
		{"default in-process backend", ":8080", "http://localhost:8080", true},
		{"loopback same port", ":8080", "http://127.0.0.1:8080", true},
		{"loopback different port", ":8080", "http://localhost:9090", false},
		{"external host", ":8080", "http://validation.internal:8080", false},
		{"https default port", ":443", "https://localhost", true},
		{"unparseable url", ":8080", "://bad", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Addr = tt.addr
			cfg.BackendURL = tt.backendURL
			assert.Equal(t, tt.want, selfHosted(cfg))
		})
	}
}
