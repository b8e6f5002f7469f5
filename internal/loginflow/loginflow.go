// Package loginflow drives the login surface: password login, the remembered
// user shortcut and one-tap biometric login.
package loginflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attendtrack/internal/apperr"
	"attendtrack/internal/biometric"
	"attendtrack/internal/prefs"
)

// State of the login surface.
type State int

const (
	// NoRememberedUser shows the plain username and password form.
	NoRememberedUser State = iota
	// RememberedNoCredential pre-fills the username and asks for the password.
	RememberedNoCredential
	// RememberedWithCredential hides the password and offers one-tap login.
	RememberedWithCredential
	// TemporarilySwitched shows the plain form but keeps the stored record.
	TemporarilySwitched
)

func (s State) String() string {
	switch s {
	case RememberedNoCredential:
		return "remembered_no_credential"
	case RememberedWithCredential:
		return "remembered_with_credential"
	case TemporarilySwitched:
		return "temporarily_switched"
	default:
		return "no_remembered_user"
	}
}

var (
	// ErrOneTapUnavailable is returned by OneTap outside RememberedWithCredential.
	ErrOneTapUnavailable = errors.New("one-tap login is not available")
	// ErrPasswordHidden is returned by PasswordLogin while one-tap is offered.
	ErrPasswordHidden = errors.New("switch user to log in with a password")
)

// Identity is the student a successful login established a session for.
type Identity struct {
	USN      string `json:"usn"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Lookup asks the server about a remembered handle.
type Lookup interface {
	CheckUser(ctx context.Context, username string) (biometric.UserStatus, error)
}

// Authenticator establishes sessions.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (Identity, error)
	AuthChallenge(ctx context.Context, username string) (biometric.AuthOptions, error)
	VerifyAuth(ctx context.Context, a biometric.Assertion) (Identity, error)
}

// Platform is the local authenticator. Assert returns a *apperr.CeremonyError
// when the user cancels or the device cannot perform the ceremony.
type Platform interface {
	Supported() bool
	Assert(ctx context.Context, opts biometric.AuthOptions) (biometric.Assertion, error)
}

// View is what the login surface shows in the current state.
type View struct {
	State            State
	Username         string
	Name             string
	UsernameReadOnly bool
	PasswordRequired bool
	ShowOneTap       bool
	ShowSwitchUser   bool
}

// Flow is the login surface state machine.
type Flow struct {
	prefs    *prefs.Store
	lookup   Lookup
	auth     Authenticator
	platform Platform
	timeout  time.Duration

	state State
	user  prefs.User
}

// New creates a flow in NoRememberedUser. Call Load to pick up the stored record.
func New(store *prefs.Store, lookup Lookup, auth Authenticator, platform Platform) *Flow {
	return &Flow{
		prefs:    store,
		lookup:   lookup,
		auth:     auth,
		platform: platform,
		timeout:  biometric.CeremonyTimeout,
	}
}

// State returns the current state.
func (f *Flow) State() State { return f.state }

// View describes the surface for the current state.
func (f *Flow) View() View {
	v := View{State: f.state, PasswordRequired: true}
	switch f.state {
	case RememberedNoCredential:
		v.Username, v.Name = f.user.Username, f.user.Name
		v.UsernameReadOnly, v.ShowSwitchUser = true, true
	case RememberedWithCredential:
		v.Username, v.Name = f.user.Username, f.user.Name
		v.UsernameReadOnly, v.ShowSwitchUser = true, true
		v.PasswordRequired, v.ShowOneTap = false, true
	}
	return v
}

// Load reads the remembered user and asks the server whether it can use one-tap.
// A failed lookup falls back to the cached record with a password prompt.
func (f *Flow) Load(ctx context.Context) State {
	u, ok := f.prefs.Remembered()
	if !ok {
		f.state, f.user = NoRememberedUser, prefs.User{}
		return f.state
	}
	f.user = u

	status, err := f.lookup.CheckUser(ctx, u.Username)
	if err != nil {
		f.state = RememberedNoCredential
		return f.state
	}
	if !status.Found {
		_ = f.prefs.Forget()
		f.state, f.user = NoRememberedUser, prefs.User{}
		return f.state
	}
	if status.Name != "" {
		f.user.Name = status.Name
	}
	if status.HasFingerprint && f.platform.Supported() {
		f.state = RememberedWithCredential
	} else {
		f.state = RememberedNoCredential
	}
	return f.state
}

// SwitchUser clears the form without forgetting the stored record.
func (f *Flow) SwitchUser() State {
	if f.state == RememberedNoCredential || f.state == RememberedWithCredential {
		f.state = TemporarilySwitched
	}
	return f.state
}

// PasswordLogin logs in and remembers the user on success.
// In a remembered state the stored username is used.
func (f *Flow) PasswordLogin(ctx context.Context, username, password string) (Identity, error) {
	switch f.state {
	case RememberedWithCredential:
		return Identity{}, ErrPasswordHidden
	case RememberedNoCredential:
		username = f.user.Username
	}
	if username == "" {
		return Identity{}, apperr.Invalid("Username is required")
	}
	if password == "" {
		return Identity{}, apperr.Invalid("Password is required")
	}
	id, err := f.auth.Login(ctx, username, password)
	if err != nil {
		return Identity{}, err
	}
	f.remember(id, username)
	return id, nil
}

// OneTap runs the biometric login for the remembered user. Any failure leaves
// the flow in RememberedWithCredential so the user can retry or switch.
func (f *Flow) OneTap(ctx context.Context) (Identity, error) {
	if f.state != RememberedWithCredential {
		return Identity{}, ErrOneTapUnavailable
	}
	opts, err := f.auth.AuthChallenge(ctx, f.user.Username)
	if err != nil {
		return Identity{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	assertion, err := f.platform.Assert(cctx, opts)
	cancel()
	if err != nil {
		return Identity{}, ceremonyError(err)
	}
	if assertion.Challenge == "" {
		assertion.Challenge = opts.Challenge
	}

	id, err := f.auth.VerifyAuth(ctx, assertion)
	if err != nil {
		return Identity{}, err
	}
	f.remember(id, f.user.Username)
	return id, nil
}

func (f *Flow) remember(id Identity, fallback string) {
	u := prefs.User{Username: id.USN, Name: id.Name}
	if u.Username == "" {
		u.Username = fallback
	}
	if u.Name == "" {
		u.Name = u.Username
	}
	_ = f.prefs.Remember(u)
	f.user = u
}

func ceremonyError(err error) error {
	var cerr *apperr.CeremonyError
	if errors.As(err, &cerr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperr.CeremonyError{Reason: apperr.CeremonyTimedOut, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &apperr.CeremonyError{Reason: apperr.CeremonyCancelled, Err: err}
	}
	return &apperr.CeremonyError{Err: fmt.Errorf("fingerprint authentication failed: %w", err)}
}
