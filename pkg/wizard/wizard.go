// Package wizard implements the multi-step navigation over a signup form.
// Advancing is gated on the validity of the current step's fields; moving
// back is always allowed. Submission only happens from the last step, after
// a full re-check, and is guarded against double delivery.
package wizard

import (
	"errors"
	"sync"

	"github.com/jsignup/signupkit/pkg/form"
	"github.com/jsignup/signupkit/pkg/logging"
)

var (
	// ErrStepIncomplete is returned by Next when the current step's fields
	// are not all valid.
	ErrStepIncomplete = errors.New("wizard: current step incomplete")

	// ErrNotLastStep is returned by Submit when invoked before reaching the
	// final step.
	ErrNotLastStep = errors.New("wizard: not on last step")

	// ErrSubmitInFlight is returned by Submit while a previous submission
	// is still running.
	ErrSubmitInFlight = errors.New("wizard: submit already in flight")

	// ErrFormInvalid is returned by Submit when the full required set does
	// not pass the pre-submit re-check.
	ErrFormInvalid = errors.New("wizard: form not valid")
)

// Wizard tracks the current step and enforces the step gates.
type Wizard struct {
	mu         sync.Mutex
	state      *form.State
	step       int
	submitting bool
	logger     logging.Logger
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(w *Wizard) {
		w.logger = logger
	}
}

// New creates a wizard positioned on step 1.
func New(state *form.State, opts ...Option) *Wizard {
	w := &Wizard{
		state:  state,
		step:   1,
		logger: logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Step returns the current step, 1-based.
func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Steps returns the total number of steps. A third step exists only when
// the form carries required dynamic fields.
func (w *Wizard) Steps() int {
	if len(w.state.RequiredDynamicFields()) > 0 {
		return 3
	}
	return 2
}

// Requirements returns the field names gating the given step. Step 1 is the
// identity and contact block, which shifts with the account mode. Step 2 is
// the credentials pair. Step 3 is the required dynamic fields.
func (w *Wizard) Requirements(step int) []string {
	switch step {
	case 1:
		var names []string
		for _, name := range w.state.RequiredFields() {
			if name == form.FieldPassword || name == form.FieldConfirmPassword {
				continue
			}
			if form.IsDynamic(name) {
				continue
			}
			names = append(names, name)
		}
		return names
	case 2:
		return []string{form.FieldPassword, form.FieldConfirmPassword}
	case 3:
		return w.state.RequiredDynamicFields()
	default:
		return nil
	}
}

// Next advances one step if every field on the current step is valid.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step >= w.Steps() {
		return nil
	}
	if !w.state.Valid(w.Requirements(w.step)...) {
		w.logger.Debug("step gate held", logging.Step(w.step))
		return ErrStepIncomplete
	}
	w.step++
	w.logger.Debug("advanced", logging.Step(w.step))
	return nil
}

// Prev moves back one step unconditionally, stopping at step 1.
func (w *Wizard) Prev() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step > 1 {
		w.step--
	}
}

// MissingFields lists the invalid fields on the current step. Dynamic
// fields are omitted; they carry no inline messaging.
func (w *Wizard) MissingFields() []string {
	w.mu.Lock()
	step := w.step
	w.mu.Unlock()

	var missing []string
	for _, name := range w.Requirements(step) {
		if form.IsDynamic(name) {
			continue
		}
		if !w.state.Valid(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Submit delivers the form through fn. It requires the last step, re-checks
// the entire required set, and refuses re-entry while a delivery is
// running. The in-flight guard is released exactly once, whatever fn
// returns.
func (w *Wizard) Submit(fn func() error) error {
	w.mu.Lock()
	if w.step != w.Steps() {
		w.mu.Unlock()
		return ErrNotLastStep
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmitInFlight
	}
	if !w.state.FormValid() {
		w.mu.Unlock()
		return ErrFormInvalid
	}
	w.submitting = true
	w.mu.Unlock()

	err := fn()

	w.mu.Lock()
	w.submitting = false
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("submit failed", logging.Err(err))
	}
	return err
}

// Reset returns the wizard to step 1 with no submission in flight.
func (w *Wizard) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step = 1
	w.submitting = false
}
