package triage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// FeedOptions wires a FeedSubscriber.
type FeedOptions struct {
	Store      DocumentStore
	Collection string
	Hub        *SnapshotHub
	Logger     *slog.Logger
	Telemetry  Telemetry
	Now        func() time.Time
}

// FeedSubscriber holds one live subscription to the complaint collection and
// the latest snapshot it delivered.
type FeedSubscriber struct {
	store     DocumentStore
	query     Query
	hub       *SnapshotHub
	logger    *slog.Logger
	telemetry Telemetry
	now       func() time.Time

	mu          sync.RWMutex
	snapshot    Snapshot
	loading     bool
	err         error
	opened      bool
	closed      bool
	unsubscribe func()
}

// NewFeedSubscriber builds an unopened subscriber.
func NewFeedSubscriber(opts FeedOptions) (*FeedSubscriber, error) {
	if opts.Store == nil {
		return nil, errors.New("triage: document store is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewSnapshotHub()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &FeedSubscriber{
		store:     opts.Store,
		query:     Query{Collection: collection, OrderBy: string(SortCreatedAt), Direction: Descending},
		hub:       hub,
		logger:    normalizeLogger(opts.Logger),
		telemetry: normalizeTelemetry(opts.Telemetry),
		now:       now,
		loading:   true,
	}, nil
}

// Open subscribes to the collection. Repeated calls and calls after Close
// are no-ops. Subscription failures settle the feed into an empty snapshot.
func (f *FeedSubscriber) Open(ctx context.Context) {
	f.mu.Lock()
	if f.opened || f.closed {
		f.mu.Unlock()
		return
	}
	f.opened = true
	f.mu.Unlock()

	unsubscribe, err := f.store.Subscribe(ctx, f.query, f.onSnapshot, f.onError)
	if err != nil {
		f.onError(err)
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return
	}
	f.unsubscribe = unsubscribe
	f.mu.Unlock()
}

// Snapshot returns the latest snapshot.
func (f *FeedSubscriber) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot
}

// Loading reports whether no snapshot or error has arrived yet.
func (f *FeedSubscriber) Loading() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loading
}

// Err returns the last subscription error, cleared by the next snapshot.
func (f *FeedSubscriber) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

// Query returns the subscription query.
func (f *FeedSubscriber) Query() Query {
	return f.query
}

// Hub exposes the hub snapshots are published to.
func (f *FeedSubscriber) Hub() *SnapshotHub {
	return f.hub
}

// Updates subscribes to snapshot deliveries.
func (f *FeedSubscriber) Updates() (<-chan Snapshot, func()) {
	return f.hub.Subscribe()
}

// Close unsubscribes exactly once. It is safe before Open and safe to repeat.
func (f *FeedSubscriber) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	unsubscribe := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (f *FeedSubscriber) onSnapshot(complaints []Complaint) {
	rows := make([]Complaint, len(complaints))
	copy(rows, complaints)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	snapshot := Snapshot{
		Complaints: rows,
		Version:    f.snapshot.Version + 1,
		ReceivedAt: f.now(),
	}
	f.snapshot = snapshot
	f.loading = false
	f.err = nil
	f.mu.Unlock()

	f.hub.Publish(context.Background(), snapshot)
	f.telemetry.Record(context.Background(), "triage.feed.snapshot", map[string]any{
		"collection": f.query.Collection,
		"count":      len(rows),
		"version":    snapshot.Version,
	})
}

func (f *FeedSubscriber) onError(err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	snapshot := Snapshot{
		Complaints: []Complaint{},
		Version:    f.snapshot.Version + 1,
		ReceivedAt: f.now(),
	}
	f.snapshot = snapshot
	f.loading = false
	f.err = err
	f.mu.Unlock()

	f.logger.Error("triage: feed subscription failed", "collection", f.query.Collection, "error", err)
	f.hub.Publish(context.Background(), snapshot)
	f.telemetry.Record(context.Background(), "triage.feed.error", map[string]any{
		"collection": f.query.Collection,
		"error":      err.Error(),
	})
}
