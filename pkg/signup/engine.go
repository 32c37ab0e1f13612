// Package signup wires the form state, the validation controller, the
// wizard and the country binding into one engine behind the event surface
// a live session drives. Everything the engine uses is passed in at
// construction.
package signup

import (
	"context"
	"fmt"
	"strings"

	"github.com/jsignup/signupkit/pkg/config"
	"github.com/jsignup/signupkit/pkg/form"
	"github.com/jsignup/signupkit/pkg/logging"
	"github.com/jsignup/signupkit/pkg/phone"
	"github.com/jsignup/signupkit/pkg/remote"
	"github.com/jsignup/signupkit/pkg/rules"
	"github.com/jsignup/signupkit/pkg/validate"
	"github.com/jsignup/signupkit/pkg/wizard"
)

// Submission is the payload handed to the Submitter once the form clears
// the final gate.
type Submission struct {
	Mode      form.Mode
	CountryID string
	Values    map[string]string
}

// Submitter delivers a completed signup to the backend.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) error
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, sub Submission) error

// Submit implements Submitter.
func (f SubmitterFunc) Submit(ctx context.Context, sub Submission) error {
	return f(ctx, sub)
}

// Engine is the per-form facade over the validation machinery.
type Engine struct {
	state     *form.State
	ctrl      *validate.Controller
	wizard    *wizard.Wizard
	binding   *phone.Binding
	submitter Submitter
	logger    logging.Logger
	cfg       config.Config
}

// Deps lists the engine's collaborators.
type Deps struct {
	State      *form.State
	Controller *validate.Controller
	Wizard     *wizard.Wizard
	Binding    *phone.Binding
	Submitter  Submitter
	Logger     logging.Logger
	Config     config.Config
}

// New assembles an engine from explicit dependencies.
func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Engine{
		state:     deps.State,
		ctrl:      deps.Controller,
		wizard:    deps.Wizard,
		binding:   deps.Binding,
		submitter: deps.Submitter,
		logger:    logger,
		cfg:       deps.Config,
	}
}

// Build constructs the full collaborator graph from a configuration and a
// remote checker, for callers that do not need to customize the wiring.
func Build(cfg config.Config, checker remote.Checker, submitter Submitter, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	policy := rules.StrengthPolicy{
		MinLength:      cfg.PasswordMinLength,
		RequireNumber:  cfg.PasswordRequireNumber,
		RequireUpper:   cfg.PasswordRequireUpper,
		RequireSpecial: cfg.PasswordRequireSpecial,
	}
	state := form.NewState(
		form.WithNameMin(cfg.NameMinLength),
		form.WithStrengthPolicy(policy),
		form.WithVATRequired(cfg.VATRequired),
		form.WithDynamicFields(dynamicFields(cfg.DynamicFields)...),
	)
	ctrl := validate.NewController(state, checker,
		validate.WithQuietPeriod(cfg.QuietPeriod),
		validate.WithLogger(logger),
	)
	binding := phone.NewBinding(phone.NewRegistry(), state, ctrl)
	return New(Deps{
		State:      state,
		Controller: ctrl,
		Wizard:     wizard.New(state, wizard.WithLogger(logger)),
		Binding:    binding,
		Submitter:  submitter,
		Logger:     logger,
		Config:     cfg,
	})
}

// dynamicFields maps configured field names onto the dynamic-field naming
// convention. Configured fields are always required.
func dynamicFields(names []string) []form.DynamicField {
	fields := make([]form.DynamicField, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !form.IsDynamic(name) {
			name = form.DynamicPrefix + name
		}
		fields = append(fields, form.DynamicField{Name: name, Required: true})
	}
	return fields
}

// State exposes the form state for observers.
func (e *Engine) State() *form.State {
	return e.state
}

// Wizard exposes step information for presenters.
func (e *Engine) Wizard() *wizard.Wizard {
	return e.wizard
}

// Subscribe registers an observer for field changes. The returned function
// unsubscribes.
func (e *Engine) Subscribe(fn func(form.Change)) func() {
	return e.state.Subscribe(fn)
}

// HandleInput processes one keystroke-level input event.
func (e *Engine) HandleInput(ctx context.Context, field, value string) rules.Result {
	return e.ctrl.OnInput(ctx, field, value)
}

// HandleBlur forces a pending remote check for the field.
func (e *Engine) HandleBlur(ctx context.Context, field string) {
	e.ctrl.OnBlur(ctx, field)
}

// HandleCountryChange switches the phone country.
func (e *Engine) HandleCountryChange(ctx context.Context, countryID string) error {
	return e.binding.SelectCountry(ctx, countryID)
}

// HandleModeSwitch flips between individual and company signup.
func (e *Engine) HandleModeSwitch(mode form.Mode) {
	e.state.SwitchMode(mode)
}

// Next advances the wizard when the current step is complete.
func (e *Engine) Next() error {
	return e.wizard.Next()
}

// Prev moves the wizard back one step.
func (e *Engine) Prev() {
	e.wizard.Prev()
}

// Step returns the wizard position as (current, total).
func (e *Engine) Step() (int, int) {
	return e.wizard.Step(), e.wizard.Steps()
}

// Submit runs the final full-form check and delivers the signup through
// the configured submitter.
func (e *Engine) Submit(ctx context.Context) error {
	err := e.wizard.Submit(func() error {
		sub := Submission{
			Mode:      e.state.Mode(),
			CountryID: e.binding.Country(),
			Values:    e.collect(),
		}
		if err := e.submitter.Submit(ctx, sub); err != nil {
			return fmt.Errorf("deliver signup: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("signup submitted", logging.String("mode", e.state.Mode().String()))
	return nil
}

// Close releases the engine's timers.
func (e *Engine) Close() {
	e.ctrl.Stop()
}

// collect snapshots the raw values of every required field plus any filled
// optional ones.
func (e *Engine) collect() map[string]string {
	values := make(map[string]string)
	for _, name := range e.state.RequiredFields() {
		values[name] = e.state.Raw(name)
	}
	for _, name := range []string{form.FieldCompanyName, form.FieldVATCR} {
		if _, ok := values[name]; ok {
			continue
		}
		if raw := e.state.Raw(name); raw != "" {
			values[name] = raw
		}
	}
	return values
}
