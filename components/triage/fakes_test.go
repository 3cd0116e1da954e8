package triage

import (
	"context"
	"fmt"
	"sync"
)

type fakeProvider struct {
	mu        sync.Mutex
	listeners map[int]func(*Identity)
	next      int
	current   *Identity

	signInErr   error
	createErr   error
	providerErr error
	signOutErr  error
	updateErr   error
	currentErr  error

	created       Identity
	updateCalls   []Profile
	unsubscribed  int
	emitOnConnect bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{listeners: make(map[int]func(*Identity))}
}

func (p *fakeProvider) OnAuthStateChanged(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.listeners[id] = fn
	emit := p.emitOnConnect
	current := p.current
	p.mu.Unlock()
	if emit {
		fn(current)
	}
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
		p.unsubscribed++
	}
}

func (p *fakeProvider) emit(identity *Identity) {
	p.mu.Lock()
	p.current = identity
	listeners := make([]func(*Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(identity)
	}
}

func (p *fakeProvider) SignIn(context.Context, string, string) error {
	return p.signInErr
}

func (p *fakeProvider) CreateAccount(_ context.Context, email, _ string) (Identity, error) {
	if p.createErr != nil {
		return Identity{}, p.createErr
	}
	p.created = Identity{UID: "uid-" + email, Email: email}
	created := p.created
	p.emit(&created)
	return p.created, nil
}

func (p *fakeProvider) SignInWithProvider(context.Context) error {
	return p.providerErr
}

func (p *fakeProvider) SignOut(context.Context) error {
	if p.signOutErr != nil {
		return p.signOutErr
	}
	p.emit(nil)
	return nil
}

func (p *fakeProvider) UpdateProfile(_ context.Context, identity Identity, profile Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateCalls = append(p.updateCalls, profile)
	if p.updateErr != nil {
		return p.updateErr
	}
	if p.current != nil && p.current.UID == identity.UID {
		updated := *p.current
		updated.DisplayName = profile.DisplayName
		p.current = &updated
	}
	return nil
}

func (p *fakeProvider) CurrentIdentity(context.Context) (*Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentErr != nil {
		return nil, p.currentErr
	}
	if p.current == nil {
		return nil, nil
	}
	id := *p.current
	return &id, nil
}

type fakeStore struct {
	mu           sync.Mutex
	onSnapshot   func([]Complaint)
	onError      func(error)
	query        Query
	subscribeErr error
	subscribes   int
	unsubscribes int
	initial      []Complaint
}

func (s *fakeStore) Subscribe(_ context.Context, query Query, onSnapshot func([]Complaint), onError func(error)) (func(), error) {
	s.mu.Lock()
	s.subscribes++
	if s.subscribeErr != nil {
		s.mu.Unlock()
		return nil, s.subscribeErr
	}
	s.query = query
	s.onSnapshot = onSnapshot
	s.onError = onError
	initial := s.initial
	s.mu.Unlock()
	if initial != nil {
		onSnapshot(initial)
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unsubscribes++
	}, nil
}

func (s *fakeStore) deliver(complaints []Complaint) {
	s.mu.Lock()
	fn := s.onSnapshot
	s.mu.Unlock()
	fn(complaints)
}

func (s *fakeStore) fail(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	fn(err)
}

type recordingTelemetry struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingTelemetry) Record(_ context.Context, event string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingTelemetry) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func sampleComplaints() []Complaint {
	return []Complaint{
		{ID: "c1", ComplaintText: "Library too loud at night", Summary: "Noise in library", Category: "Facilities", Urgency: UrgencyLow, CreatedAt: 1000},
		{ID: "c2", ComplaintText: "Wifi drops constantly", Summary: "Network outage", Category: "IT", Urgency: UrgencyHigh, CreatedAt: 3000},
		{ID: "c3", Description: "Cafeteria food cold", Category: "Food", Urgency: UrgencyMedium, Timestamp: 2000},
		{ID: "c4", Description: "Something odd"},
	}
}

type fakeCredentials struct {
	mu        sync.Mutex
	accounts  map[string]Identity
	tokens    map[string]string
	issued    int
	authErr   error
	updateErr error
	popup     *Identity
}

func newFakeCredentials(accounts ...Identity) *fakeCredentials {
	c := &fakeCredentials{accounts: map[string]Identity{}, tokens: map[string]string{}}
	for _, a := range accounts {
		c.accounts[a.Email] = a
	}
	return c
}

func (c *fakeCredentials) Authenticate(_ context.Context, email, password string) (Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authErr != nil {
		return Identity{}, c.authErr
	}
	id, ok := c.accounts[email]
	if !ok || password != "secret1" {
		return Identity{}, ErrInvalidCredential
	}
	return id, nil
}

func (c *fakeCredentials) Register(_ context.Context, email, _ string) (Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := Identity{UID: "uid-" + email, Email: email}
	c.accounts[email] = id
	return id, nil
}

func (c *fakeCredentials) AuthenticateWithProvider(context.Context) (Identity, error) {
	if c.popup == nil {
		return Identity{}, ErrPopupClosed
	}
	return *c.popup, nil
}

func (c *fakeCredentials) UpdateProfile(_ context.Context, identity Identity, profile Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateErr != nil {
		return c.updateErr
	}
	id := c.accounts[identity.Email]
	id.DisplayName = profile.DisplayName
	c.accounts[identity.Email] = id
	return nil
}

func (c *fakeCredentials) IssueToken(identity Identity) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	token := fmt.Sprintf("tok-%d", c.issued)
	c.tokens[token] = identity.Email
	return token, nil
}

func (c *fakeCredentials) VerifyToken(raw string) (Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	email, ok := c.tokens[raw]
	if !ok {
		return Identity{}, ErrNotAuthenticated
	}
	return c.accounts[email], nil
}
