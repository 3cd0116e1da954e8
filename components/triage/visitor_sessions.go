package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var errNoVisitor = errors.New("no visitor in request context")

// VisitorOptions wires VisitorSessions.
type VisitorOptions struct {
	Credentials Credentials
	Admins      AdminPolicy
	Logger      *slog.Logger
	Telemetry   Telemetry
}

// VisitorSessions runs the session actions for the visitor attached to each
// request context. Results are granted to that visitor only; nothing is
// shared between callers.
type VisitorSessions struct {
	credentials Credentials
	admins      AdminPolicy
	logger      *slog.Logger
	telemetry   Telemetry
}

// NewVisitorSessions validates opts.
func NewVisitorSessions(opts VisitorOptions) (*VisitorSessions, error) {
	if opts.Credentials == nil {
		return nil, errors.New("triage: credentials are required")
	}
	return &VisitorSessions{
		credentials: opts.Credentials,
		admins:      opts.Admins,
		logger:      normalizeLogger(opts.Logger),
		telemetry:   normalizeTelemetry(opts.Telemetry),
	}, nil
}

// Resolve verifies token and returns the visitor it names. Empty, expired
// and forged tokens resolve to an anonymous visitor.
func (s *VisitorSessions) Resolve(_ context.Context, token string) *Visitor {
	if token == "" {
		return AnonymousVisitor()
	}
	identity, err := s.credentials.VerifyToken(token)
	if err != nil {
		s.logger.Debug("triage: session token rejected", "error", err)
		return AnonymousVisitor()
	}
	return NewVisitor(DeriveSession(&identity, s.admins), token)
}

// Login verifies email and password and grants the visitor a session.
func (s *VisitorSessions) Login(ctx context.Context, email, password string) error {
	identity, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		return classify("login", err, KindNetwork)
	}
	return s.grant(ctx, "login", identity)
}

// Signup registers an account, signs the visitor in and, when username is
// non-empty, sets the display name. A failed second step keeps the account
// and the grant and returns a partial failure.
func (s *VisitorSessions) Signup(ctx context.Context, email, password, username string) (SignupResult, error) {
	if _, ok := VisitorFrom(ctx); !ok {
		return SignupResult{}, NewError(KindNotAuthenticated, "signup", errNoVisitor)
	}
	identity, err := s.credentials.Register(ctx, email, password)
	if err != nil {
		return SignupResult{}, classify("signup", err, KindNetwork)
	}
	result := SignupResult{Identity: identity, AccountCreated: true}
	if err := s.grant(ctx, "signup", identity); err != nil {
		return result, err
	}
	if username == "" {
		return result, nil
	}
	if err := s.credentials.UpdateProfile(ctx, identity, Profile{DisplayName: username}); err != nil {
		s.logger.Warn("triage: signup profile update failed", "uid", identity.UID, "error", err)
		return result, NewError(KindPartialFailure, "signup", err)
	}
	result.Identity.DisplayName = username
	result.ProfileUpdated = true
	return result, s.grant(ctx, "signup", result.Identity)
}

// LoginWithProvider runs the external sign-in and grants its identity.
func (s *VisitorSessions) LoginWithProvider(ctx context.Context) error {
	identity, err := s.credentials.AuthenticateWithProvider(ctx)
	if err != nil {
		return classify("login_with_provider", err, KindNetwork)
	}
	return s.grant(ctx, "login_with_provider", identity)
}

// CompleteProfile sets the display name of the signed-in visitor. The
// visitor's session keeps its old state until Refresh.
func (s *VisitorSessions) CompleteProfile(ctx context.Context, username string) error {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return validationError("complete_profile", "username is required")
	}
	session := SessionFrom(ctx)
	if session.Identity == nil {
		return NewError(KindNotAuthenticated, "complete_profile", nil)
	}
	if err := s.credentials.UpdateProfile(ctx, *session.Identity, Profile{DisplayName: trimmed}); err != nil {
		return classify("complete_profile", err, KindNetwork)
	}
	return nil
}

// Refresh re-verifies the visitor's token so profile changes are observed.
func (s *VisitorSessions) Refresh(ctx context.Context) error {
	v, ok := VisitorFrom(ctx)
	if !ok || v.Token() == "" {
		return NewError(KindNotAuthenticated, "refresh", errNoVisitor)
	}
	identity, err := s.credentials.VerifyToken(v.Token())
	if err != nil {
		return classify("refresh", err, KindNotAuthenticated)
	}
	v.refresh(DeriveSession(&identity, s.admins))
	return nil
}

// Logout drops the visitor's grant.
func (s *VisitorSessions) Logout(ctx context.Context) error {
	v, ok := VisitorFrom(ctx)
	if !ok {
		return NewError(KindNotAuthenticated, "logout", errNoVisitor)
	}
	from := v.Session()
	v.Grant(Session{State: StateAnonymous}, "")
	s.record(ctx, "logout", from, v.Session())
	return nil
}

func (s *VisitorSessions) grant(ctx context.Context, op string, identity Identity) error {
	v, ok := VisitorFrom(ctx)
	if !ok {
		return NewError(KindNotAuthenticated, op, errNoVisitor)
	}
	token, err := s.credentials.IssueToken(identity)
	if err != nil {
		return fmt.Errorf("triage: %s: issue token: %w", op, err)
	}
	from := v.Session()
	v.Grant(DeriveSession(&identity, s.admins), token)
	s.record(ctx, op, from, v.Session())
	return nil
}

func (s *VisitorSessions) record(ctx context.Context, op string, from, to Session) {
	payload := map[string]any{
		"op":       op,
		"from":     from.State.String(),
		"to":       to.State.String(),
		"is_admin": to.IsAdmin,
	}
	if to.Identity != nil {
		payload["uid"] = to.Identity.UID
	}
	s.telemetry.Record(ctx, "triage.visitor.transition", payload)
}
