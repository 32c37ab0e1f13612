package validate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsignup/signupkit/pkg/form"
	"github.com/jsignup/signupkit/pkg/remote"
)

// fakeClock collects scheduled timers and fires them on demand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	stopped bool
	fired   bool
	mu      sync.Mutex
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) fire() bool {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	fn := t.fn
	t.mu.Unlock()
	fn()
	return true
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every pending timer synchronously.
func (c *fakeClock) fireAll() int {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()

	fired := 0
	for _, t := range timers {
		if t.fire() {
			fired++
		}
	}
	return fired
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// mockChecker records calls and replies from a scripted verdict table.
type mockChecker struct {
	mu       sync.Mutex
	emails   []string
	phones   []string
	verdicts map[string]remote.Verdict
	errs     map[string]error
}

func newMockChecker() *mockChecker {
	return &mockChecker{
		verdicts: make(map[string]remote.Verdict),
		errs:     make(map[string]error),
	}
}

func (m *mockChecker) CheckEmail(_ context.Context, email string) (remote.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, email)
	if err, ok := m.errs[email]; ok {
		return remote.Verdict{}, err
	}
	if v, ok := m.verdicts[email]; ok {
		return v, nil
	}
	return remote.Verdict{Valid: true}, nil
}

func (m *mockChecker) CheckPhone(_ context.Context, phone, _ string) (remote.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phones = append(m.phones, phone)
	if err, ok := m.errs[phone]; ok {
		return remote.Verdict{}, err
	}
	if v, ok := m.verdicts[phone]; ok {
		return v, nil
	}
	return remote.Verdict{Valid: true}, nil
}

func (m *mockChecker) emailCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.emails...)
}

func newTestController(t *testing.T) (*Controller, *form.State, *fakeClock, *mockChecker) {
	t.Helper()
	state := form.NewState()
	clock := &fakeClock{}
	checker := newMockChecker()
	ctrl := NewController(state, checker, WithClock(clock))
	return ctrl, state, clock, checker
}

func TestController_FormatGatePrecedesNetworkGate(t *testing.T) {
	ctrl, state, clock, checker := newTestController(t)

	result := ctrl.OnInput(context.Background(), form.FieldEmail, "a@b")
	assert.False(t, result.Valid)
	assert.False(t, state.Valid(form.FieldEmail))

	clock.fireAll()
	assert.Empty(t, checker.emailCalls(), "malformed input must never reach the network")
}

func TestController_DebouncedRemoteCheck(t *testing.T) {
	ctrl, state, clock, checker := newTestController(t)

	result := ctrl.OnInput(context.Background(), form.FieldEmail, "user@example.com")
	assert.True(t, result.Valid)
	assert.False(t, state.Valid(form.FieldEmail), "still pending")

	f, _ := state.Snapshot(form.FieldEmail)
	assert.True(t, f.Pending)

	clock.fireAll()
	assert.Equal(t, []string{"user@example.com"}, checker.emailCalls())
	assert.True(t, state.Valid(form.FieldEmail))
}

func TestController_RapidEditsCoalesce(t *testing.T) {
	ctrl, _, clock, checker := newTestController(t)
	ctx := context.Background()

	ctrl.OnInput(ctx, form.FieldEmail, "u@example.com")
	ctrl.OnInput(ctx, form.FieldEmail, "us@example.com")
	ctrl.OnInput(ctx, form.FieldEmail, "use@example.com")

	assert.Equal(t, 1, clock.pending(), "cancel-then-schedule keeps one timer")

	clock.fireAll()
	assert.Equal(t, []string{"use@example.com"}, checker.emailCalls(),
		"only the final value is checked")
}

func TestController_EditToInvalidCancelsScheduledCheck(t *testing.T) {
	ctrl, _, clock, checker := newTestController(t)
	ctx := context.Background()

	ctrl.OnInput(ctx, form.FieldEmail, "user@example.com")
	ctrl.OnInput(ctx, form.FieldEmail, "broken")

	clock.fireAll()
	assert.Empty(t, checker.emailCalls())
}

func TestController_StaleResponseDiscarded(t *testing.T) {
	ctrl, state, clock, checker := newTestController(t)
	ctx := context.Background()

	checker.verdicts["old@example.com"] = remote.Verdict{Valid: true}

	ctrl.OnInput(ctx, form.FieldEmail, "old@example.com")

	// Capture the scheduled timer, then type a new value before it fires.
	clock.mu.Lock()
	oldTimer := clock.timers[0]
	clock.mu.Unlock()

	ctrl.OnInput(ctx, form.FieldEmail, "new@example.com")

	// The old timer was stopped by the reschedule; even if its callback had
	// raced ahead, the commit is refused because the value moved on.
	assert.False(t, oldTimer.fire())
	assert.False(t, state.Valid(form.FieldEmail))

	clock.fireAll()
	assert.True(t, state.Valid(form.FieldEmail))
	assert.Equal(t, []string{"new@example.com"}, checker.emailCalls())
}

func TestController_RemoteRejection(t *testing.T) {
	ctrl, state, clock, checker := newTestController(t)

	checker.verdicts["taken@example.com"] = remote.Verdict{
		Valid:    false,
		Messages: []string{"An account with this email address already exists"},
	}

	var last form.Change
	unsub := state.Subscribe(func(c form.Change) { last = c })
	defer unsub()

	ctrl.OnInput(context.Background(), form.FieldEmail, "taken@example.com")
	clock.fireAll()

	assert.False(t, state.Valid(form.FieldEmail))
	assert.Equal(t, form.StatusInvalid, last.Status)
	assert.Equal(t, "An account with this email address already exists", last.Message)
}

func TestController_TransportFailureIsGenericAndRetryable(t *testing.T) {
	ctrl, state, clock, checker := newTestController(t)
	ctx := context.Background()

	checker.errs["user@example.com"] = remote.ErrTransport

	var last form.Change
	unsub := state.Subscribe(func(c form.Change) { last = c })
	defer unsub()

	ctrl.OnInput(ctx, form.FieldEmail, "user@example.com")
	clock.fireAll()

	assert.False(t, state.Valid(form.FieldEmail))
	assert.Equal(t, "Email validation failed", last.Message)

	// Editing again retries.
	delete(checker.errs, "user@example.com")
	ctrl.OnInput(ctx, form.FieldEmail, "user@example.com")
	clock.fireAll()
	assert.True(t, state.Valid(form.FieldEmail))
}

func TestController_PhoneFormattedAdopted(t *testing.T) {
	ctrl, state, clock, checker := newTestController(t)

	checker.verdicts["+966512345678"] = remote.Verdict{
		Valid:     true,
		Formatted: "+966 51 234 5678",
	}

	ctrl.SetCountry("682")
	ctrl.OnInput(context.Background(), form.FieldPhone, "+966512345678")
	clock.fireAll()

	assert.True(t, state.Valid(form.FieldPhone))
	assert.Equal(t, "+966 51 234 5678", state.Raw(form.FieldPhone))
}

func TestController_OnBlurFiresImmediately(t *testing.T) {
	ctrl, state, clock, checker := newTestController(t)
	ctx := context.Background()

	ctrl.OnInput(ctx, form.FieldEmail, "user@example.com")
	ctrl.OnBlur(ctx, form.FieldEmail)

	assert.Equal(t, []string{"user@example.com"}, checker.emailCalls())
	assert.True(t, state.Valid(form.FieldEmail))

	// The debounce timer was consumed; firing it later is a no-op.
	clock.fireAll()
	assert.Len(t, checker.emailCalls(), 1)
}

func TestController_LocalFieldsNeverScheduled(t *testing.T) {
	ctrl, state, clock, _ := newTestController(t)

	result := ctrl.OnInput(context.Background(), form.FieldFirstName, "John")
	assert.True(t, result.Valid)
	assert.True(t, state.Valid(form.FieldFirstName))
	assert.Zero(t, clock.pending())
}

func TestController_Stop(t *testing.T) {
	ctrl, _, clock, checker := newTestController(t)

	ctrl.OnInput(context.Background(), form.FieldEmail, "user@example.com")
	ctrl.Stop()

	clock.fireAll()
	assert.Empty(t, checker.emailCalls())
}

func TestController_Require(t *testing.T) {
	// Scenario from the signup flow: "a@b" with empty password leaves the
	// form unsubmittable and issues no network traffic.
	ctrl, state, clock, checker := newTestController(t)

	ctrl.OnInput(context.Background(), form.FieldEmail, "a@b")
	ctrl.OnInput(context.Background(), form.FieldPassword, "")
	clock.fireAll()

	require.Empty(t, checker.emailCalls())
	assert.False(t, state.FormValid())
}
