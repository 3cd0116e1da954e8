// Package memory provides an in-process document store with live ordered
// subscriptions over complaint collections.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-triage/components/triage"
)

// Option customizes a Store.
type Option func(*Store)

// WithValidator checks every written complaint.
func WithValidator(v *triage.ComplaintValidator) Option {
	return func(s *Store) { s.validator = v }
}

// WithClock injects the time used for missing created_at values.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type subscription struct {
	query      triage.Query
	onSnapshot func([]triage.Complaint)
	onError    func(error)
}

// Store implements triage.DocumentStore in memory. Every write re-delivers
// the full ordered collection to its subscribers.
type Store struct {
	mu          sync.Mutex
	collections map[string][]triage.Complaint
	subs        map[int]*subscription
	next        int

	validator *triage.ComplaintValidator
	now       func() time.Time
	logger    *slog.Logger
}

var _ triage.DocumentStore = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string][]triage.Complaint),
		subs:        make(map[int]*subscription),
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Subscribe registers the callbacks and synchronously delivers the current
// snapshot of the collection.
func (s *Store) Subscribe(ctx context.Context, query triage.Query, onSnapshot func([]triage.Complaint), onError func(error)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query.Collection == "" {
		return nil, errors.New("memory: subscribe: collection is required")
	}
	if onSnapshot == nil {
		return nil, errors.New("memory: subscribe: snapshot callback is required")
	}
	sub := &subscription{query: query, onSnapshot: onSnapshot, onError: onError}

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = sub
	initial := s.ordered(query)
	s.mu.Unlock()

	onSnapshot(initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}, nil
}

// Add stores complaint, assigning an id and created_at when missing.
func (s *Store) Add(ctx context.Context, collection string, complaint triage.Complaint) (triage.Complaint, error) {
	if err := ctx.Err(); err != nil {
		return triage.Complaint{}, err
	}
	if complaint.ID == "" {
		complaint.ID = uuid.NewString()
	}
	if complaint.Instant() == 0 {
		complaint.CreatedAt = triage.InstantFromTime(s.now())
	}
	if s.validator != nil {
		if err := s.validator.Validate(complaint); err != nil {
			return triage.Complaint{}, err
		}
	}
	s.mu.Lock()
	docs := s.collections[collection]
	replaced := false
	for i := range docs {
		if docs[i].ID == complaint.ID {
			docs[i] = complaint
			replaced = true
			break
		}
	}
	if !replaced {
		docs = append(docs, complaint)
	}
	s.collections[collection] = docs
	s.mu.Unlock()

	s.broadcast(collection)
	return complaint, nil
}

// Delete removes one document. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	docs := s.collections[collection]
	kept := docs[:0:0]
	for _, doc := range docs {
		if doc.ID != id {
			kept = append(kept, doc)
		}
	}
	changed := len(kept) != len(docs)
	s.collections[collection] = kept
	s.mu.Unlock()
	if changed {
		s.broadcast(collection)
	}
	return nil
}

// Clear removes every document in collection and reports how many were dropped.
func (s *Store) Clear(ctx context.Context, collection string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	n := len(s.collections[collection])
	delete(s.collections, collection)
	s.mu.Unlock()
	s.broadcast(collection)
	s.logger.Info("triage.docstore.cleared", "collection", collection, "count", n)
	return n, nil
}

// Snapshot returns the collection ordered by created_at, newest first.
func (s *Store) Snapshot(ctx context.Context, collection string) ([]triage.Complaint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ordered(triage.Query{Collection: collection, OrderBy: "created_at", Direction: triage.Descending}), nil
}

// Fail reports err to every subscriber of collection, as a revoked
// permission would.
func (s *Store) Fail(collection string, err error) {
	for _, sub := range s.subscribers(collection) {
		if sub.onError != nil {
			sub.onError(err)
		}
	}
}

// LoadFixtures decodes a YAML or JSON list of complaints into collection.
func (s *Store) LoadFixtures(ctx context.Context, collection string, r io.Reader) (int, error) {
	var docs []triage.Complaint
	if err := yaml.NewDecoder(r).Decode(&docs); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("memory: decode fixtures: %w", err)
	}
	for i, doc := range docs {
		if _, err := s.Add(ctx, collection, doc); err != nil {
			return i, fmt.Errorf("memory: fixture %d: %w", i, err)
		}
	}
	return len(docs), nil
}

func (s *Store) broadcast(collection string) {
	for _, sub := range s.subscribers(collection) {
		s.mu.Lock()
		snapshot := s.ordered(sub.query)
		s.mu.Unlock()
		sub.onSnapshot(snapshot)
	}
}

func (s *Store) subscribers(collection string) []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.query.Collection == collection {
			out = append(out, sub)
		}
	}
	return out
}

// ordered must be called with s.mu held.
func (s *Store) ordered(query triage.Query) []triage.Complaint {
	docs := s.collections[query.Collection]
	out := make([]triage.Complaint, len(docs))
	copy(out, docs)
	if query.OrderBy != "" {
		dir := query.Direction
		if dir == "" {
			dir = triage.Ascending
		}
		triage.SortComplaints(out, triage.ParseSortKey(query.OrderBy), dir)
	}
	return out
}
