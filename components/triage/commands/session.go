package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-triage/components/triage"
)

// Sessions is what the session commands drive: triage.VisitorSessions for
// per-request callers or triage.SessionMachine for a single-user host.
type Sessions interface {
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, email, password, username string) (triage.SignupResult, error)
	LoginWithProvider(ctx context.Context) error
	CompleteProfile(ctx context.Context, username string) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
}

var errSessionsRequired = errors.New("session command requires sessions")

// LoginInput carries credentials for an email sign-in.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginCommand signs a visitor in with email and password.
type LoginCommand struct {
	sessions  Sessions
	telemetry Telemetry
}

// NewLoginCommand creates the command.
func NewLoginCommand(sessions Sessions, telemetry Telemetry) *LoginCommand {
	return &LoginCommand{sessions: sessions, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[LoginInput] = (*LoginCommand)(nil)

// Execute delegates to the session machine.
func (c *LoginCommand) Execute(ctx context.Context, msg LoginInput) error {
	if c.sessions == nil {
		return errSessionsRequired
	}
	if err := c.sessions.Login(ctx, msg.Email, msg.Password); err != nil {
		c.telemetry.Record(ctx, "triage.command.login.failed", map[string]any{"kind": string(triage.KindOf(err))})
		return err
	}
	c.telemetry.Record(ctx, "triage.command.login", nil)
	return nil
}

// SignupInput carries the fields of the signup form.
type SignupInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	// OnResult, when set, receives the outcome of both signup steps, also
	// on partial failure.
	OnResult func(triage.SignupResult) `json:"-"`
}

// SignupCommand creates an account and sets its display name.
type SignupCommand struct {
	sessions  Sessions
	telemetry Telemetry
}

// NewSignupCommand creates the command.
func NewSignupCommand(sessions Sessions, telemetry Telemetry) *SignupCommand {
	return &SignupCommand{sessions: sessions, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[SignupInput] = (*SignupCommand)(nil)

// Execute runs the signup sequence.
func (c *SignupCommand) Execute(ctx context.Context, msg SignupInput) error {
	if c.sessions == nil {
		return errSessionsRequired
	}
	result, err := c.sessions.Signup(ctx, msg.Email, msg.Password, msg.Username)
	if msg.OnResult != nil {
		msg.OnResult(result)
	}
	c.telemetry.Record(ctx, "triage.command.signup", map[string]any{
		"account_created": result.AccountCreated,
		"profile_updated": result.ProfileUpdated,
	})
	return err
}

// ProviderLoginInput triggers the external interactive sign-in.
type ProviderLoginInput struct{}

// ProviderLoginCommand signs in through the identity provider's popup flow.
type ProviderLoginCommand struct {
	sessions  Sessions
	telemetry Telemetry
}

// NewProviderLoginCommand creates the command.
func NewProviderLoginCommand(sessions Sessions, telemetry Telemetry) *ProviderLoginCommand {
	return &ProviderLoginCommand{sessions: sessions, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ProviderLoginInput] = (*ProviderLoginCommand)(nil)

// Execute delegates to the session machine.
func (c *ProviderLoginCommand) Execute(ctx context.Context, _ ProviderLoginInput) error {
	if c.sessions == nil {
		return errSessionsRequired
	}
	if err := c.sessions.LoginWithProvider(ctx); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "triage.command.provider_login", nil)
	return nil
}

// CompleteProfileInput carries the chosen username.
type CompleteProfileInput struct {
	Username string `json:"username"`
}

// CompleteProfileCommand sets the display name and then refreshes the
// session so the new name is observed.
type CompleteProfileCommand struct {
	sessions  Sessions
	telemetry Telemetry
}

// NewCompleteProfileCommand creates the command.
func NewCompleteProfileCommand(sessions Sessions, telemetry Telemetry) *CompleteProfileCommand {
	return &CompleteProfileCommand{sessions: sessions, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[CompleteProfileInput] = (*CompleteProfileCommand)(nil)

// Execute updates the profile and forces a session refresh.
func (c *CompleteProfileCommand) Execute(ctx context.Context, msg CompleteProfileInput) error {
	if c.sessions == nil {
		return errSessionsRequired
	}
	if err := c.sessions.CompleteProfile(ctx, msg.Username); err != nil {
		return err
	}
	if err := c.sessions.Refresh(ctx); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "triage.command.complete_profile", nil)
	return nil
}

// LogoutInput signs the visitor out.
type LogoutInput struct{}

// LogoutCommand clears the session.
type LogoutCommand struct {
	sessions  Sessions
	telemetry Telemetry
}

// NewLogoutCommand creates the command.
func NewLogoutCommand(sessions Sessions, telemetry Telemetry) *LogoutCommand {
	return &LogoutCommand{sessions: sessions, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[LogoutInput] = (*LogoutCommand)(nil)

// Execute delegates to the session machine.
func (c *LogoutCommand) Execute(ctx context.Context, _ LogoutInput) error {
	if c.sessions == nil {
		return errSessionsRequired
	}
	if err := c.sessions.Logout(ctx); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "triage.command.logout", nil)
	return nil
}
