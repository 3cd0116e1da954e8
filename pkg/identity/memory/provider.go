// Package memory provides an in-process identity provider with password
// accounts, a simulated external sign-in popup and signed session tokens.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-triage/components/triage"
)

// MinPasswordLength matches the hosted provider's weak-password rule.
const MinPasswordLength = 6

// PopupFunc simulates the external sign-in window. Returning ok=false means
// the visitor dismissed it.
type PopupFunc func(ctx context.Context) (email, displayName string, ok bool)

// Option customizes a Provider.
type Option func(*Provider)

// WithSecret sets the HS256 key used for session tokens.
func WithSecret(secret []byte) Option {
	return func(p *Provider) {
		if len(secret) > 0 {
			p.secret = append([]byte(nil), secret...)
		}
	}
}

// WithPopup installs the external sign-in simulation.
func WithPopup(fn PopupFunc) Option {
	return func(p *Provider) { p.popup = fn }
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

// WithTokenTTL sets the lifetime of issued session tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

type account struct {
	identity triage.Identity
	hash     []byte
}

// Provider implements triage.IdentityProvider in memory.
type Provider struct {
	mu        sync.Mutex
	accounts  map[string]*account
	current   *triage.Identity
	listeners map[int]func(*triage.Identity)
	next      int

	secret []byte
	popup  PopupFunc
	cost   int
	ttl    time.Duration
	now    func() time.Time
}

var (
	_ triage.IdentityProvider = (*Provider)(nil)
	_ triage.Credentials      = (*Provider)(nil)
)

// New creates an empty provider with nobody signed in.
func New(opts ...Option) *Provider {
	p := &Provider{
		accounts:  make(map[string]*account),
		listeners: make(map[int]func(*triage.Identity)),
		secret:    []byte(uuid.NewString()),
		cost:      bcrypt.DefaultCost,
		ttl:       24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// OnAuthStateChanged registers fn and immediately reports the current identity.
func (p *Provider) OnAuthStateChanged(fn func(*triage.Identity)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.listeners[id] = fn
	current := copyIdentity(p.current)
	p.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// SignIn verifies the password for email and signs that account in.
func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	identity, err := p.Authenticate(ctx, email, password)
	if err != nil {
		return err
	}
	p.signIn(identity)
	return nil
}

// Authenticate verifies the password for email without changing the
// provider's signed-in identity.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (triage.Identity, error) {
	if err := ctx.Err(); err != nil {
		return triage.Identity{}, err
	}
	p.mu.Lock()
	acct, ok := p.accounts[normalizeEmail(email)]
	var identity triage.Identity
	var hash []byte
	if ok {
		identity, hash = acct.identity, acct.hash
	}
	p.mu.Unlock()
	if len(hash) == 0 {
		return triage.Identity{}, fmt.Errorf("memory: sign in: %w", triage.ErrInvalidCredential)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return triage.Identity{}, fmt.Errorf("memory: sign in: %w", triage.ErrInvalidCredential)
	}
	return identity, nil
}

// CreateAccount registers email and signs the new account in.
func (p *Provider) CreateAccount(ctx context.Context, email, password string) (triage.Identity, error) {
	identity, err := p.Register(ctx, email, password)
	if err != nil {
		return triage.Identity{}, err
	}
	p.signIn(identity)
	return identity, nil
}

// Register creates a password account without signing it in.
func (p *Provider) Register(ctx context.Context, email, password string) (triage.Identity, error) {
	if err := ctx.Err(); err != nil {
		return triage.Identity{}, err
	}
	key := normalizeEmail(email)
	if !strings.Contains(key, "@") {
		return triage.Identity{}, triage.NewError(triage.KindValidation, "create_account", errors.New("invalid email"))
	}
	if len(password) < MinPasswordLength {
		return triage.Identity{}, triage.NewError(triage.KindValidation, "create_account",
			fmt.Errorf("password must be at least %d characters", MinPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return triage.Identity{}, fmt.Errorf("memory: hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[key]; exists {
		return triage.Identity{}, triage.NewError(triage.KindValidation, "create_account", errors.New("email already in use"))
	}
	identity := triage.Identity{UID: uuid.NewString(), Email: strings.TrimSpace(email)}
	p.accounts[key] = &account{identity: identity, hash: hash}
	return identity, nil
}

// SignInWithProvider runs the popup and signs the returned account in,
// creating it on first use.
func (p *Provider) SignInWithProvider(ctx context.Context) error {
	identity, err := p.AuthenticateWithProvider(ctx)
	if err != nil {
		return err
	}
	p.signIn(identity)
	return nil
}

// AuthenticateWithProvider runs the popup and returns its account, creating
// it on first use, without changing the provider's signed-in identity.
func (p *Provider) AuthenticateWithProvider(ctx context.Context) (triage.Identity, error) {
	if err := ctx.Err(); err != nil {
		return triage.Identity{}, err
	}
	if p.popup == nil {
		return triage.Identity{}, fmt.Errorf("memory: provider sign in: %w", triage.ErrPopupClosed)
	}
	email, name, ok := p.popup(ctx)
	if !ok {
		return triage.Identity{}, fmt.Errorf("memory: provider sign in: %w", triage.ErrPopupClosed)
	}
	key := normalizeEmail(email)

	p.mu.Lock()
	defer p.mu.Unlock()
	acct, exists := p.accounts[key]
	if !exists {
		acct = &account{identity: triage.Identity{UID: uuid.NewString(), Email: strings.TrimSpace(email), DisplayName: name}}
		p.accounts[key] = acct
	}
	return acct.identity, nil
}

// SignOut clears the current identity.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	p.notify(nil)
	return nil
}

// UpdateProfile stores the display name. No state-change event is emitted,
// callers re-read CurrentIdentity.
func (p *Provider) UpdateProfile(ctx context.Context, identity triage.Identity, profile triage.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, acct := range p.accounts {
		if acct.identity.UID != identity.UID {
			continue
		}
		acct.identity.DisplayName = profile.DisplayName
		if p.current != nil && p.current.UID == identity.UID {
			p.current.DisplayName = profile.DisplayName
		}
		return nil
	}
	return fmt.Errorf("memory: update profile: %w", triage.ErrNotAuthenticated)
}

// CurrentIdentity returns the signed-in identity or nil.
func (p *Provider) CurrentIdentity(ctx context.Context) (*triage.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyIdentity(p.current), nil
}

// IssueToken signs a session token naming identity.
func (p *Provider) IssueToken(identity triage.Identity) (string, error) {
	now := p.now()
	claims := sessionClaims{
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("memory: sign token: %w", err)
	}
	return token, nil
}

// VerifyToken parses a session token and returns the current state of the
// account it names.
func (p *Provider) VerifyToken(raw string) (triage.Identity, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now))
	if err != nil {
		return triage.Identity{}, fmt.Errorf("memory: verify token: %w", errors.Join(triage.ErrNotAuthenticated, err))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[normalizeEmail(claims.Email)]
	if !ok || acct.identity.UID != claims.Subject {
		return triage.Identity{}, fmt.Errorf("memory: verify token: %w", triage.ErrNotAuthenticated)
	}
	return acct.identity, nil
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (p *Provider) signIn(identity triage.Identity) {
	p.mu.Lock()
	current := identity
	p.current = &current
	p.mu.Unlock()
	p.notify(&identity)
}

func (p *Provider) notify(identity *triage.Identity) {
	p.mu.Lock()
	listeners := make([]func(*triage.Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(copyIdentity(identity))
	}
}

func copyIdentity(identity *triage.Identity) *triage.Identity {
	if identity == nil {
		return nil
	}
	c := *identity
	return &c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
