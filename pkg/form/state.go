package form

import (
	"strings"
	"sync"

	"github.com/jsignup/signupkit/pkg/rules"
)

// State is the aggregate field-name → validity mapping. All mutations are
// atomic with respect to observers: a subscriber never sees a half-applied
// mode switch or a torn update.
type State struct {
	mu          sync.Mutex
	fields      map[string]*Field
	mode        Mode
	vatRequired bool
	dynamics    []DynamicField
	nameMin     int
	strength    rules.StrengthPolicy
	subs        map[int]func(Change)
	nextSub     int
}

// StateOption configures a State.
type StateOption func(*State)

// WithNameMin sets the minimum trimmed length for first and last name.
func WithNameMin(min int) StateOption {
	return func(s *State) {
		if min > 0 {
			s.nameMin = min
		}
	}
}

// WithStrengthPolicy sets the password strength policy.
func WithStrengthPolicy(p rules.StrengthPolicy) StateOption {
	return func(s *State) {
		s.strength = p
	}
}

// WithVATRequired marks the VAT/CR input as carrying a required marker, so
// it joins the company-mode required set.
func WithVATRequired(required bool) StateOption {
	return func(s *State) {
		s.vatRequired = required
	}
}

// WithDynamicFields registers dynamically injected fields.
func WithDynamicFields(fields ...DynamicField) StateOption {
	return func(s *State) {
		s.dynamics = append(s.dynamics, fields...)
	}
}

// NewState creates the form state with all known fields registered. The
// initial mode is individual; fields outside the active required set start
// satisfied, fields inside start unsatisfied.
func NewState(opts ...StateOption) *State {
	s := &State{
		fields:   make(map[string]*Field),
		mode:     ModeIndividual,
		nameMin:  1,
		strength: rules.DefaultStrengthPolicy(),
		subs:     make(map[int]func(Change)),
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, name := range []string{
		FieldEmail, FieldPhone, FieldPassword, FieldConfirmPassword,
		FieldFirstName, FieldLastName, FieldCompanyName, FieldVATCR,
	} {
		s.fields[name] = &Field{Name: name}
	}
	for _, d := range s.dynamics {
		s.fields[d.Name] = &Field{Name: d.Name}
	}

	// Fields outside the individual required set are satisfied until a mode
	// switch pulls them in.
	s.fields[FieldCompanyName].LocalValid = true
	s.fields[FieldVATCR].LocalValid = true
	for _, d := range s.dynamics {
		if !d.Required {
			s.fields[d.Name].LocalValid = true
		}
	}

	return s
}

// Subscribe registers an observer and returns its unsubscribe function.
func (s *State) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Mode returns the active account-type mode.
func (s *State) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Raw returns the latest raw value for a field.
func (s *State) Raw(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.fields[name]; ok {
		return f.Raw
	}
	return ""
}

// Snapshot returns a copy of one field's record.
func (s *State) Snapshot(name string) (Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.fields[name]; ok {
		return *f, true
	}
	return Field{}, false
}

// Valid reports whether every named field is currently valid. Absent fields
// count as invalid: the conservative default.
func (s *State) Valid(required ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked(required)
}

// FormValid reports aggregate validity of the full active required set.
func (s *State) FormValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked(s.requiredLocked(s.mode))
}

// RequiredFields returns the active required set for the current mode.
func (s *State) RequiredFields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requiredLocked(s.mode)
}

// RequiredFieldsFor returns the required set a given mode would activate.
func (s *State) RequiredFieldsFor(mode Mode) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requiredLocked(mode)
}

// RequiredDynamicFields returns the names of required dynamic fields.
func (s *State) RequiredDynamicFields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, d := range s.dynamics {
		if d.Required {
			names = append(names, d.Name)
		}
	}
	return names
}

// Seed sets a field's validity without running any rule, for explicit
// initial seeding. Server-checked fields adopt the seeded value as their
// remote verdict so a seeded field is effective immediately.
func (s *State) Seed(name string, valid bool) {
	s.mu.Lock()
	f, ok := s.fields[name]
	if !ok {
		f = &Field{Name: name}
		s.fields[name] = f
	}
	f.LocalValid = valid
	if isRemote(name) {
		v := valid
		f.RemoteValid = &v
	} else {
		f.RemoteValid = nil
	}
	f.Pending = false
	changes := []Change{s.changeLocked(f, StatusNone, "")}
	s.mu.Unlock()

	s.notify(changes)
}

// ApplyLocal records a new raw value for a field and runs its local rule.
// For remote-checked fields a previous remote verdict is discarded: the new
// value supersedes it. Returns the rule result so callers can decide whether
// a remote check is warranted.
func (s *State) ApplyLocal(name, raw string) rules.Result {
	s.mu.Lock()

	f, ok := s.fields[name]
	if !ok {
		f = &Field{Name: name}
		s.fields[name] = f
	}
	f.Raw = raw

	result := s.localResultLocked(name, raw)
	f.LocalValid = result.Valid
	if isRemote(name) {
		f.RemoteValid = nil
	}
	f.Pending = false

	status := StatusValid
	if !result.Valid {
		status = StatusInvalid
	} else if isRemote(name) {
		// Locally well-formed but not yet confirmed.
		status = StatusNone
	}
	// Dynamic fields never surface a per-field message.
	if IsDynamic(name) {
		status = StatusNone
	}

	changes := []Change{s.changeLocked(f, status, result.Message)}

	// Editing the password invalidates a previously matching confirmation.
	if name == FieldPassword {
		if confirm, ok := s.fields[FieldConfirmPassword]; ok && confirm.Raw != "" {
			res := rules.PasswordConfirm(raw)(confirm.Raw)
			confirm.LocalValid = res.Valid
			st := StatusValid
			if !res.Valid {
				st = StatusInvalid
			}
			changes = append(changes, s.changeLocked(confirm, st, res.Message))
		}
	}

	s.finalizeLocked(changes)
	s.mu.Unlock()
	s.notify(changes)
	return result
}

// SetPending marks a remote-checked field as awaiting a verdict.
func (s *State) SetPending(name, message string) {
	s.mu.Lock()
	f, ok := s.fields[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	f.Pending = true
	changes := []Change{s.changeLocked(f, StatusChecking, message)}
	s.mu.Unlock()

	s.notify(changes)
}

// CommitRemote records a remote verdict for the value that triggered the
// check. The commit is refused when the field's current raw value no longer
// equals the captured source: a stale response must not overwrite newer
// state. Returns whether the verdict was committed.
func (s *State) CommitRemote(name, source string, valid bool, message string) bool {
	s.mu.Lock()
	f, ok := s.fields[name]
	if !ok || f.Raw != source {
		s.mu.Unlock()
		return false
	}

	v := valid
	f.RemoteValid = &v
	f.Pending = false

	status := StatusValid
	if !valid {
		status = StatusInvalid
	}
	changes := []Change{s.changeLocked(f, status, message)}
	s.mu.Unlock()

	s.notify(changes)
	return true
}

// SwitchMode swaps the active required set. The swap is atomic: fields
// leaving the set are forced satisfied, fields entering are re-evaluated
// against their existing raw values, and observers see the result only once
// the whole swap is applied.
func (s *State) SwitchMode(mode Mode) {
	s.mu.Lock()
	if mode == s.mode {
		s.mu.Unlock()
		return
	}
	s.mode = mode

	var leaving, entering []string
	switch mode {
	case ModeCompany:
		leaving = []string{FieldFirstName, FieldLastName}
		entering = []string{FieldCompanyName}
		if s.vatRequired {
			entering = append(entering, FieldVATCR)
		}
	default:
		leaving = []string{FieldCompanyName, FieldVATCR}
		entering = []string{FieldFirstName, FieldLastName}
	}

	var changes []Change
	for _, name := range leaving {
		f := s.fields[name]
		f.LocalValid = true
		changes = append(changes, s.changeLocked(f, StatusNone, ""))
	}
	for _, name := range entering {
		f := s.fields[name]
		result := s.localResultLocked(name, f.Raw)
		f.LocalValid = result.Valid
		status := StatusValid
		message := ""
		if !result.Valid {
			status = StatusInvalid
			// A never-touched field is unsatisfied, not in error.
			if f.Raw == "" {
				status = StatusNone
			} else {
				message = result.Message
			}
		}
		changes = append(changes, s.changeLocked(f, status, message))
	}
	s.finalizeLocked(changes)
	s.mu.Unlock()

	s.notify(changes)
}

// finalizeLocked stamps every collected change with the aggregate validity
// of the fully applied mutation, so no observer reads an intermediate
// aggregate from a multi-field update.
func (s *State) finalizeLocked(changes []Change) {
	formValid := s.validLocked(s.requiredLocked(s.mode))
	for i := range changes {
		changes[i].FormValid = formValid
	}
}

func (s *State) requiredLocked(mode Mode) []string {
	required := []string{FieldEmail, FieldPhone, FieldPassword, FieldConfirmPassword}
	if mode == ModeCompany {
		required = append(required, FieldCompanyName)
		if s.vatRequired {
			required = append(required, FieldVATCR)
		}
	} else {
		required = append(required, FieldFirstName, FieldLastName)
	}
	for _, d := range s.dynamics {
		if d.Required {
			required = append(required, d.Name)
		}
	}
	return required
}

func (s *State) validLocked(required []string) bool {
	for _, name := range required {
		f, ok := s.fields[name]
		if !ok || !effectiveValid(f) {
			return false
		}
	}
	return true
}

func (s *State) localResultLocked(name, raw string) rules.Result {
	switch name {
	case FieldEmail:
		return rules.EmailFormat(raw)
	case FieldPhone:
		return rules.PhoneFormat(raw)
	case FieldPassword:
		if !s.strength.Score(raw).Valid {
			return rules.Result{Message: "Password does not meet requirements"}
		}
		return rules.Result{Valid: true}
	case FieldConfirmPassword:
		password := ""
		if p, ok := s.fields[FieldPassword]; ok {
			password = p.Raw
		}
		return rules.PasswordConfirm(password)(raw)
	case FieldFirstName, FieldLastName:
		return rules.Name(s.nameMin)(raw)
	case FieldCompanyName:
		return rules.CompanyName(raw)
	case FieldVATCR:
		// Optional unless its input carries the required marker; an empty
		// optional value is not an error.
		if !s.vatRequired && strings.TrimSpace(raw) == "" {
			return rules.Result{Valid: true}
		}
		return rules.VATCR(raw)
	default:
		return rules.Dynamic(raw)
	}
}

// AdoptFormatted replaces a field's raw value with the server-formatted
// rendering of the same input, keeping the remote verdict. Refused when the
// field has since changed.
func (s *State) AdoptFormatted(name, source, formatted string) bool {
	s.mu.Lock()
	f, ok := s.fields[name]
	if !ok || f.Raw != source || formatted == source {
		s.mu.Unlock()
		return false
	}
	f.Raw = formatted

	status := StatusInvalid
	if effectiveValid(f) {
		status = StatusValid
	}
	changes := []Change{s.changeLocked(f, status, "")}
	s.mu.Unlock()

	s.notify(changes)
	return true
}

func (s *State) changeLocked(f *Field, status Status, message string) Change {
	return Change{
		Field:     f.Name,
		Value:     f.Raw,
		Valid:     effectiveValid(f),
		Status:    status,
		Message:   message,
		FormValid: s.validLocked(s.requiredLocked(s.mode)),
	}
}

func (s *State) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, change := range changes {
		for _, fn := range subs {
			fn(change)
		}
	}
}

// isRemote reports whether a field's validity is server-authoritative.
func isRemote(name string) bool {
	return name == FieldEmail || name == FieldPhone
}

func effectiveValid(f *Field) bool {
	if isRemote(f.Name) {
		return f.LocalValid && f.RemoteValid != nil && *f.RemoteValid
	}
	return f.LocalValid
}
