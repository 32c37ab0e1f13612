// Package backend is the dev validation backend for signupd. It answers
// the JSON-RPC validation routes the form's remote client calls, backed by
// in-memory data. Not a production registration service.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/jsignup/signupkit/pkg/form"
	"github.com/jsignup/signupkit/pkg/logging"
	"github.com/jsignup/signupkit/pkg/remote"
	"github.com/jsignup/signupkit/pkg/rules"
	"github.com/jsignup/signupkit/pkg/signup"
)

// PathValidatePassword serves password strength checks.
const PathValidatePassword = "/j_signup_validation/validate_password"

// PathSubmit receives the completed signup.
const PathSubmit = "/j_signup_validation/submit"

var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.com":      true,
	"throwaway.email":   true,
}

// Service is the in-memory validation backend.
type Service struct {
	logger   logging.Logger
	validate *validator.Validate
	strength rules.StrengthPolicy

	mu         sync.Mutex
	registered map[string]bool
}

// New creates a service with a few pre-registered accounts for testing
// duplicate detection.
func New(logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Service{
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		strength: rules.DefaultStrengthPolicy(),
		registered: map[string]bool{
			"test@example.com":  true,
			"admin@example.com": true,
		},
	}
}

// Routes returns the backend's HTTP mux.
func (s *Service) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(remote.PathValidateEmail, s.rpc(s.validateEmail))
	mux.HandleFunc(remote.PathValidatePhone, s.rpc(s.validatePhone))
	mux.HandleFunc(PathValidatePassword, s.rpc(s.validatePassword))
	mux.HandleFunc(PathSubmit, s.rpc(s.submit))
	return mux
}

// Registered reports whether an email has an account.
func (s *Service) Registered(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered[strings.ToLower(email)]
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      string          `json:"id"`
}

type rpcResult struct {
	Valid     bool     `json:"valid"`
	Messages  []string `json:"messages,omitempty"`
	Formatted string   `json:"formatted,omitempty"`
}

type rpcResponse struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      string     `json:"id,omitempty"`
	Result  *rpcResult `json:"result,omitempty"`
	Error   *rpcError  `json:"error,omitempty"`
}

type rpcError struct {
	Message string `json:"message"`
}

type rpcHandler func(params json.RawMessage) (*rpcResult, error)

// rpc adapts a handler to the JSON-RPC envelope the form client speaks.
func (s *Service) rpc(fn rpcHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, "", "malformed request")
			return
		}

		result, err := fn(req.Params)
		if err != nil {
			s.logger.Warn("rpc handler failed",
				logging.String("path", r.URL.Path),
				logging.Err(err),
			)
			s.writeError(w, req.ID, err.Error())
			return
		}

		s.writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
	}
}

func (s *Service) writeError(w http.ResponseWriter, id, message string) {
	s.writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Message: message}})
}

func (s *Service) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", logging.Err(err))
	}
}

type emailParams struct {
	Email string `json:"email"`
}

func (s *Service) validateEmail(params json.RawMessage) (*rpcResult, error) {
	var p emailParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}

	if r := rules.EmailFormat(p.Email); !r.Valid {
		return &rpcResult{Messages: []string{r.Message}}, nil
	}

	domain := strings.ToLower(p.Email[strings.LastIndex(p.Email, "@")+1:])
	if disposableDomains[domain] {
		return &rpcResult{Messages: []string{"Disposable email addresses are not allowed"}}, nil
	}

	if s.Registered(p.Email) {
		return &rpcResult{Messages: []string{"An account with this email address already exists"}}, nil
	}

	return &rpcResult{Valid: true}, nil
}

type phoneParams struct {
	Phone     string `json:"phone"`
	CountryID string `json:"country_id"`
}

func (s *Service) validatePhone(params json.RawMessage) (*rpcResult, error) {
	var p phoneParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}

	digits := digitsOf(p.Phone)
	if len(digits) < 7 || len(digits) > 15 {
		return &rpcResult{Messages: []string{"Phone number must have between 7 and 15 digits"}}, nil
	}

	return &rpcResult{Valid: true, Formatted: formatPhone(digits)}, nil
}

type passwordParams struct {
	Password string `json:"password"`
}

func (s *Service) validatePassword(params json.RawMessage) (*rpcResult, error) {
	var p passwordParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}

	strength := s.strength.Score(p.Password)
	result := &rpcResult{Valid: strength.Valid}
	for _, req := range strength.Requirements {
		if !req.Met {
			result.Messages = append(result.Messages, req.Text)
		}
	}
	if !strength.Valid && len(result.Messages) == 0 {
		result.Messages = []string{"Password is too weak"}
	}
	return result, nil
}

// submitDTO is the final payload, checked before the account is simulated.
type submitDTO struct {
	Mode        string `json:"mode" validate:"required,oneof=individual company"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"required,min=8"`
	Password    string `json:"password" validate:"required,min=8"`
	FirstName   string `json:"first_name" validate:"required_if=Mode individual"`
	LastName    string `json:"last_name" validate:"required_if=Mode individual"`
	CompanyName string `json:"company_name" validate:"required_if=Mode company"`
	VATCR       string `json:"vat_cr" validate:"omitempty,alphanum,min=10"`
}

func (s *Service) submit(params json.RawMessage) (*rpcResult, error) {
	var dto submitDTO
	if err := json.Unmarshal(params, &dto); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}

	if err := s.validate.Struct(dto); err != nil {
		var verrs validator.ValidationErrors
		result := &rpcResult{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result.Messages = append(result.Messages, invalidFieldMessage(fe))
			}
			return result, nil
		}
		return nil, fmt.Errorf("validate submission: %w", err)
	}

	email := strings.ToLower(dto.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registered[email] {
		return &rpcResult{Messages: []string{"An account with this email address already exists"}}, nil
	}
	s.registered[email] = true

	s.logger.Info("account created",
		logging.String("mode", dto.Mode),
		logging.String("email", email),
	)
	return &rpcResult{Valid: true}, nil
}

// Submitter adapts the service for in-process engine wiring, bypassing HTTP.
func (s *Service) Submitter() signup.Submitter {
	return signup.SubmitterFunc(func(_ context.Context, sub signup.Submission) error {
		dto := submitDTO{
			Mode:        sub.Mode.String(),
			Email:       sub.Values[form.FieldEmail],
			Phone:       sub.Values[form.FieldPhone],
			Password:    sub.Values[form.FieldPassword],
			FirstName:   sub.Values[form.FieldFirstName],
			LastName:    sub.Values[form.FieldLastName],
			CompanyName: sub.Values[form.FieldCompanyName],
			VATCR:       sub.Values[form.FieldVATCR],
		}
		params, err := json.Marshal(dto)
		if err != nil {
			return fmt.Errorf("encode submission: %w", err)
		}
		result, err := s.submit(params)
		if err != nil {
			return err
		}
		if !result.Valid {
			return fmt.Errorf("submission rejected: %s", strings.Join(result.Messages, ", "))
		}
		return nil
	})
}

func invalidFieldMessage(fe validator.FieldError) string {
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// formatPhone renders digits as +CC XX XXX XXXX-style groups.
func formatPhone(digits string) string {
	if len(digits) <= 3 {
		return "+" + digits
	}
	cc := digits[:3]
	rest := digits[3:]
	var groups []string
	for len(rest) > 4 {
		groups = append(groups, rest[:2])
		rest = rest[2:]
	}
	groups = append(groups, rest)
	return "+" + cc + " " + strings.Join(groups, " ")
}
