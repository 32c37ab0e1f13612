// Package validate bridges instantaneous local checks with delayed remote
// verdicts. Each remote-checked field runs a small state machine
// {Idle, Scheduled, InFlight}: a new input cancels any scheduled check and
// schedules one quiet period later; a response only commits if the field's
// value has not moved underneath it.
package validate

import (
	"context"
	"sync"
	"time"

	"github.com/jsignup/signupkit/pkg/form"
	"github.com/jsignup/signupkit/pkg/logging"
	"github.com/jsignup/signupkit/pkg/remote"
	"github.com/jsignup/signupkit/pkg/rules"
)

// DefaultQuietPeriod is the debounce interval between the last keystroke
// and the remote call.
const DefaultQuietPeriod = 500 * time.Millisecond

type phase int

const (
	phaseIdle phase = iota
	phaseScheduled
	phaseInFlight
)

type fieldMachine struct {
	phase  phase
	timer  Timer
	source string // value captured when the check was scheduled
}

// Controller coordinates local and remote validation for a form.
type Controller struct {
	mu       sync.Mutex
	state    *form.State
	checker  remote.Checker
	clock    Clock
	quiet    time.Duration
	logger   logging.Logger
	machines map[string]*fieldMachine
	country  string
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithQuietPeriod overrides the debounce interval.
func WithQuietPeriod(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.quiet = d
		}
	}
}

// WithClock injects a clock, for tests.
func WithClock(clock Clock) ControllerOption {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a controller over the given state and checker.
func NewController(state *form.State, checker remote.Checker, opts ...ControllerOption) *Controller {
	c := &Controller{
		state:    state,
		checker:  checker,
		clock:    RealClock{},
		quiet:    DefaultQuietPeriod,
		logger:   logging.NopLogger{},
		machines: make(map[string]*fieldMachine),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCountry records the selected country, forwarded with phone checks.
func (c *Controller) SetCountry(countryID string) {
	c.mu.Lock()
	c.country = countryID
	c.mu.Unlock()
}

// OnInput handles one input event for any field. The local rule runs
// immediately; for email and phone a remote check is scheduled after the
// quiet period, unless the value is locally malformed, in which case no
// network call is ever made.
func (c *Controller) OnInput(ctx context.Context, field, value string) rules.Result {
	result := c.state.ApplyLocal(field, value)

	if !isRemoteField(field) {
		return result
	}

	if !result.Valid {
		// Format gate: malformed input never reaches the network.
		c.cancel(field)
		return result
	}

	c.schedule(ctx, field, value)
	return result
}

// OnBlur forces an immediate check of a scheduled field, mirroring the
// form's blur behavior. A field that is idle or already in flight is left
// alone.
func (c *Controller) OnBlur(ctx context.Context, field string) {
	if !isRemoteField(field) {
		return
	}

	c.mu.Lock()
	m := c.machines[field]
	if m == nil || m.phase != phaseScheduled {
		c.mu.Unlock()
		return
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	source := m.source
	c.mu.Unlock()

	c.fire(ctx, field, source)
}

// Revalidate re-runs the full pipeline against the field's current value,
// used after programmatic mutations such as a country switch.
func (c *Controller) Revalidate(ctx context.Context, field string) {
	c.OnInput(ctx, field, c.state.Raw(field))
}

// Stop cancels all scheduled checks. In-flight requests are allowed to
// complete; their results are discarded by the staleness check if the form
// has moved on.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.machines {
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		m.phase = phaseIdle
	}
}

// cancel clears any scheduled check for the field.
func (c *Controller) cancel(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.machines[field]
	if m == nil {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.phase = phaseIdle
	m.source = ""
}

// schedule applies the cancel-then-set discipline on the field's single
// owned timer.
func (c *Controller) schedule(ctx context.Context, field, value string) {
	c.state.SetPending(field, checkingMessage(field))

	c.mu.Lock()
	m := c.machines[field]
	if m == nil {
		m = &fieldMachine{}
		c.machines[field] = m
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.phase = phaseScheduled
	m.source = value
	m.timer = c.clock.AfterFunc(c.quiet, func() {
		c.fire(ctx, field, value)
	})
	c.mu.Unlock()
}

// fire performs the remote check for the value captured at schedule time.
func (c *Controller) fire(ctx context.Context, field, source string) {
	c.mu.Lock()
	m := c.machines[field]
	if m == nil || m.source != source {
		// Superseded before the timer ran.
		c.mu.Unlock()
		return
	}
	m.phase = phaseInFlight
	m.timer = nil
	country := c.country
	c.mu.Unlock()

	var verdict remote.Verdict
	var err error
	switch field {
	case form.FieldEmail:
		verdict, err = c.checker.CheckEmail(ctx, source)
	case form.FieldPhone:
		verdict, err = c.checker.CheckPhone(ctx, source, country)
	}

	c.mu.Lock()
	if m.source == source && m.phase == phaseInFlight {
		m.phase = phaseIdle
		m.source = ""
	}
	c.mu.Unlock()

	if err != nil {
		// Reported, non-fatal: the field stays invalid and the user can
		// retry by editing it again.
		c.logger.Warn("remote validation failed",
			logging.FieldName(field),
			logging.Err(err),
		)
		c.state.CommitRemote(field, source, false, failureMessage(field))
		return
	}

	message := verdict.DisplayMessage()
	if verdict.Valid {
		message = successMessage(field, verdict)
	}
	if !c.state.CommitRemote(field, source, verdict.Valid, message) {
		c.logger.Debug("stale verdict discarded", logging.FieldName(field))
		return
	}

	if verdict.Valid && verdict.Formatted != "" {
		c.state.AdoptFormatted(field, source, verdict.Formatted)
	}
}

func isRemoteField(field string) bool {
	return field == form.FieldEmail || field == form.FieldPhone
}

func checkingMessage(field string) string {
	if field == form.FieldPhone {
		return "Validating phone..."
	}
	return "Checking email..."
}

func failureMessage(field string) string {
	if field == form.FieldPhone {
		return "Phone validation failed"
	}
	return "Email validation failed"
}

func successMessage(field string, verdict remote.Verdict) string {
	if field == form.FieldPhone && verdict.Formatted != "" {
		return "Valid: " + verdict.Formatted
	}
	if field == form.FieldPhone {
		return "Valid phone number"
	}
	return "Email is valid"
}
