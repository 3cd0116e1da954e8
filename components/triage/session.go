package triage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// SessionState is the authentication status of the visitor.
type SessionState int

const (
	StateLoading SessionState = iota
	StateAnonymous
	StateAuthenticatedIncomplete
	StateAuthenticatedComplete
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticatedIncomplete:
		return "authenticated_incomplete"
	case StateAuthenticatedComplete:
		return "authenticated_complete"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name for JSON payloads.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is a point-in-time copy of the visitor's session.
type Session struct {
	State    SessionState `json:"state"`
	Identity *Identity    `json:"identity,omitempty"`
	IsAdmin  bool         `json:"is_admin"`
}

// Loading reports whether the first identity event is still pending.
func (s Session) Loading() bool {
	return s.State == StateLoading
}

// Authenticated reports whether an identity is present.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticatedIncomplete || s.State == StateAuthenticatedComplete
}

// DisplayLabel returns the display name, falling back to the email.
func (s Session) DisplayLabel() string {
	if s.Identity == nil {
		return ""
	}
	if s.Identity.DisplayName != "" {
		return s.Identity.DisplayName
	}
	return s.Identity.Email
}

// SessionOptions wires collaborators into a SessionMachine.
type SessionOptions struct {
	Provider  IdentityProvider
	Admins    AdminPolicy
	Logger    *slog.Logger
	Telemetry Telemetry
}

// SignupResult reports how far a signup progressed.
type SignupResult struct {
	Identity       Identity `json:"identity"`
	AccountCreated bool     `json:"account_created"`
	ProfileUpdated bool     `json:"profile_updated"`
}

// SessionMachine tracks the provider's process-wide authentication state
// from identity events and exposes the provider's imperative actions. It
// suits single-user hosts; HTTP transports resolve a Visitor per request
// through VisitorSessions instead.
type SessionMachine struct {
	provider  IdentityProvider
	admins    AdminPolicy
	logger    *slog.Logger
	telemetry Telemetry

	mu      sync.RWMutex
	session Session
	subs    map[int]chan Session
	next    int
	closed  bool

	unsubscribe func()
	closeOnce   sync.Once
}

// NewSessionMachine starts in the loading state and attaches to the provider.
func NewSessionMachine(opts SessionOptions) (*SessionMachine, error) {
	if opts.Provider == nil {
		return nil, errors.New("triage: identity provider is required")
	}
	m := &SessionMachine{
		provider:  opts.Provider,
		admins:    opts.Admins,
		logger:    normalizeLogger(opts.Logger),
		telemetry: normalizeTelemetry(opts.Telemetry),
		session:   Session{State: StateLoading},
		subs:      make(map[int]chan Session),
	}
	m.unsubscribe = opts.Provider.OnAuthStateChanged(m.apply)
	return m, nil
}

// Session returns the current session.
func (m *SessionMachine) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySession(m.session)
}

// Subscribe returns a channel of session changes and a cancel func. Slow
// receivers only observe the latest session.
func (m *SessionMachine) Subscribe() (<-chan Session, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Session, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.next
	m.next++
	m.subs[id] = ch
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Login signs in with email and password. The resulting session change
// arrives through the provider's event stream.
func (m *SessionMachine) Login(ctx context.Context, email, password string) error {
	if err := m.provider.SignIn(ctx, email, password); err != nil {
		return classify("login", err, KindNetwork)
	}
	return nil
}

// Signup creates an account and, when username is non-empty, sets the
// display name. A failed second step leaves the account in place and
// returns a partial failure.
func (m *SessionMachine) Signup(ctx context.Context, email, password, username string) (SignupResult, error) {
	identity, err := m.provider.CreateAccount(ctx, email, password)
	if err != nil {
		return SignupResult{}, classify("signup", err, KindNetwork)
	}
	result := SignupResult{Identity: identity, AccountCreated: true}
	if username == "" {
		return result, nil
	}
	if err := m.provider.UpdateProfile(ctx, identity, Profile{DisplayName: username}); err != nil {
		m.logger.Warn("triage: signup profile update failed", "uid", identity.UID, "error", err)
		return result, NewError(KindPartialFailure, "signup", err)
	}
	result.Identity.DisplayName = username
	result.ProfileUpdated = true
	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("triage: refresh after signup failed", "uid", identity.UID, "error", err)
	}
	return result, nil
}

// LoginWithProvider runs the provider's interactive sign-in.
func (m *SessionMachine) LoginWithProvider(ctx context.Context) error {
	if err := m.provider.SignInWithProvider(ctx); err != nil {
		return classify("login_with_provider", err, KindNetwork)
	}
	return nil
}

// CompleteProfile sets the display name of the signed-in identity. The
// session keeps its old state until Refresh is called.
func (m *SessionMachine) CompleteProfile(ctx context.Context, username string) error {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return validationError("complete_profile", "username is required")
	}
	session := m.Session()
	if session.Identity == nil {
		return NewError(KindNotAuthenticated, "complete_profile", nil)
	}
	if err := m.provider.UpdateProfile(ctx, *session.Identity, Profile{DisplayName: trimmed}); err != nil {
		return classify("complete_profile", err, KindNetwork)
	}
	return nil
}

// Refresh re-reads the provider's current identity and re-applies it.
func (m *SessionMachine) Refresh(ctx context.Context) error {
	identity, err := m.provider.CurrentIdentity(ctx)
	if err != nil {
		return classify("refresh", err, KindNetwork)
	}
	m.apply(identity)
	return nil
}

// Logout signs out and resets the session to anonymous.
func (m *SessionMachine) Logout(ctx context.Context) error {
	if err := m.provider.SignOut(ctx); err != nil {
		return classify("logout", err, KindNetwork)
	}
	m.apply(nil)
	return nil
}

// Close detaches from the provider and closes every subscriber channel.
func (m *SessionMachine) Close() {
	m.closeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed = true
		for id, ch := range m.subs {
			delete(m.subs, id)
			close(ch)
		}
	})
}

func (m *SessionMachine) apply(identity *Identity) {
	next := m.derive(identity)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	prev := m.session.State
	m.session = next
	for _, ch := range m.subs {
		publishLatest(ch, copySession(next))
	}
	m.mu.Unlock()

	payload := map[string]any{
		"from":     prev.String(),
		"to":       next.State.String(),
		"is_admin": next.IsAdmin,
	}
	if next.Identity != nil {
		payload["uid"] = next.Identity.UID
	}
	m.telemetry.Record(context.Background(), "triage.session.transition", payload)
}

func (m *SessionMachine) derive(identity *Identity) Session {
	return DeriveSession(identity, m.admins)
}

func copySession(s Session) Session {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}

// publishLatest replaces any unread value so the receiver sees the newest.
func publishLatest[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- value:
	default:
	}
}
