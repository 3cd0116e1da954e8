package triage

import (
	"context"
	"sync"
)

// Credentials verifies callers without touching an identity provider's
// process-wide signed-in identity, and signs the session tokens that carry
// a visitor from one request to the next.
type Credentials interface {
	Authenticate(ctx context.Context, email, password string) (Identity, error)
	Register(ctx context.Context, email, password string) (Identity, error)
	AuthenticateWithProvider(ctx context.Context) (Identity, error)
	UpdateProfile(ctx context.Context, identity Identity, profile Profile) error
	IssueToken(identity Identity) (string, error)
	VerifyToken(raw string) (Identity, error)
}

// Visitor is the caller of a single request: the session resolved from its
// token plus any grant issued while the request was handled.
type Visitor struct {
	mu      sync.Mutex
	session Session
	token   string
	granted bool
}

// NewVisitor returns a visitor holding session and the token it came from.
func NewVisitor(session Session, token string) *Visitor {
	return &Visitor{session: copySession(session), token: token}
}

// AnonymousVisitor returns a visitor with no identity.
func AnonymousVisitor() *Visitor {
	return NewVisitor(Session{State: StateAnonymous}, "")
}

// Session returns a copy of the visitor's session.
func (v *Visitor) Session() Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return copySession(v.session)
}

// Token returns the visitor's current session token.
func (v *Visitor) Token() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.token
}

// Granted reports whether the token changed while handling the request.
// A granted empty token means the visitor signed out.
func (v *Visitor) Granted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.granted
}

// Grant replaces the visitor's session and token, marking the token as
// changed for the transport to persist.
func (v *Visitor) Grant(session Session, token string) {
	v.mu.Lock()
	v.session = copySession(session)
	v.token = token
	v.granted = true
	v.mu.Unlock()
}

func (v *Visitor) refresh(session Session) {
	v.mu.Lock()
	v.session = copySession(session)
	v.mu.Unlock()
}

type visitorKey struct{}

// WithVisitor attaches v to ctx.
func WithVisitor(ctx context.Context, v *Visitor) context.Context {
	return context.WithValue(ctx, visitorKey{}, v)
}

// VisitorFrom returns the visitor attached to ctx.
func VisitorFrom(ctx context.Context) (*Visitor, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(visitorKey{}).(*Visitor)
	return v, ok && v != nil
}

// SessionFrom returns the session of the request's visitor. Requests
// without a resolved visitor are anonymous.
func SessionFrom(ctx context.Context) Session {
	if v, ok := VisitorFrom(ctx); ok {
		return v.Session()
	}
	return Session{State: StateAnonymous}
}

// ScopeKey names the per-visitor state bucket for ctx: the identity UID, or
// empty for anonymous callers.
func ScopeKey(ctx context.Context) string {
	session := SessionFrom(ctx)
	if session.Identity == nil {
		return ""
	}
	return session.Identity.UID
}

// DeriveSession computes the session for identity; nil is anonymous.
func DeriveSession(identity *Identity, admins AdminPolicy) Session {
	if identity == nil {
		return Session{State: StateAnonymous}
	}
	id := *identity
	state := StateAuthenticatedComplete
	if id.DisplayName == "" {
		state = StateAuthenticatedIncomplete
	}
	return Session{State: state, Identity: &id, IsAdmin: admins.IsAdmin(&id)}
}
