// Package remote implements the client side of the server-authoritative
// validation contract: JSON-RPC-style POST calls that return a structured
// verdict for email and phone values. The service itself is an external
// collaborator; only the request/response exchange lives here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jsignup/signupkit/pkg/logging"
	"github.com/jsignup/signupkit/pkg/retry"
)

// Default endpoint paths, matching the signup backend's JSON routes.
const (
	PathValidateEmail = "/j_signup_validation/validate_email"
	PathValidatePhone = "/j_signup_validation/validate_phone"
)

// ErrTransport covers every failure that is not a verdict: network errors,
// non-2xx responses, unparseable bodies, and server error envelopes. Callers
// surface all of them as one generic "validation failed" condition.
var ErrTransport = errors.New("remote: validation request failed")

// Verdict is the structured outcome of a remote validation call.
type Verdict struct {
	Valid     bool
	Formatted string
	Messages  []string
}

// DisplayMessage joins the server-supplied messages for presentation.
func (v Verdict) DisplayMessage() string {
	return strings.Join(v.Messages, ", ")
}

// Checker is the contract the debounce controller depends on.
type Checker interface {
	CheckEmail(ctx context.Context, email string) (Verdict, error)
	CheckPhone(ctx context.Context, phone, countryID string) (Verdict, error)
}

// Client calls the validation service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	logger     logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryPolicy sets the retry policy for transient transport failures.
func WithRetryPolicy(policy retry.Policy) ClientOption {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a validation client against the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		policy:     retry.DefaultPolicy(),
		logger:     logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckEmail asks the service for an authoritative email verdict.
func (c *Client) CheckEmail(ctx context.Context, email string) (Verdict, error) {
	return c.call(ctx, PathValidateEmail, map[string]any{"email": email})
}

// CheckPhone asks the service for an authoritative phone verdict.
func (c *Client) CheckPhone(ctx context.Context, phone, countryID string) (Verdict, error) {
	params := map[string]any{"phone": phone}
	if countryID != "" {
		params["country_id"] = countryID
	}
	return c.call(ctx, PathValidatePhone, params)
}

// rpcRequest is the JSON-RPC 2.0 envelope the service expects.
type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      string         `json:"id"`
}

type rpcResponse struct {
	Result *rpcResult `json:"result"`
	Error  *rpcError  `json:"error"`
}

type rpcResult struct {
	Valid     bool     `json:"valid"`
	Formatted string   `json:"formatted,omitempty"`
	Messages  []string `json:"messages"`
}

type rpcError struct {
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, path string, params map[string]any) (Verdict, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      uuid.NewString(),
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: encode request: %v", ErrTransport, err)
	}

	verdict, err := retry.DoWithResult(ctx, c.policy, func() (Verdict, error) {
		return c.post(ctx, path, body)
	})
	if err != nil {
		c.logger.Warn("validation call failed",
			logging.String("path", path),
			logging.Err(err),
		)
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return Verdict{}, err
	}
	return verdict, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Verdict{}, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return Verdict{}, fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}

	// An error envelope is a request-handling failure, not a verdict.
	if rpcResp.Error != nil {
		return Verdict{}, fmt.Errorf("%w: %s", ErrTransport, rpcResp.Error.Message)
	}
	if rpcResp.Result == nil {
		return Verdict{}, fmt.Errorf("%w: empty result", ErrTransport)
	}

	return Verdict{
		Valid:     rpcResp.Result.Valid,
		Formatted: rpcResp.Result.Formatted,
		Messages:  rpcResp.Result.Messages,
	}, nil
}
