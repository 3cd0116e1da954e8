// Package redisstore keeps complaint collections in Redis: one hash of JSON
// documents, one sorted set ordered by instant, and a pub/sub channel that
// announces every change.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-triage/components/triage"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "triage"

// Options configures a Store.
type Options struct {
	Client    redis.UniversalClient
	Prefix    string
	Validator *triage.ComplaintValidator
	Logger    *slog.Logger
	Now       func() time.Time
}

// Store implements triage.DocumentStore on Redis.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	validator *triage.ComplaintValidator
	logger    *slog.Logger
	now       func() time.Time
}

var _ triage.DocumentStore = (*Store)(nil)

// New builds a store around an existing client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redisstore: client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{client: opts.Client, prefix: prefix, validator: opts.Validator, logger: logger, now: now}, nil
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", addr, err)
	}
	opts.Client = client
	return New(opts)
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Keys names the Redis keys backing one collection.
type Keys struct {
	Docs    string
	Index   string
	Channel string
}

// KeysFor returns the keys used for collection.
func (s *Store) KeysFor(collection string) Keys {
	return keysFor(s.prefix, collection)
}

func keysFor(prefix, collection string) Keys {
	base := prefix + ":" + collection
	return Keys{Docs: base + ":docs", Index: base + ":index", Channel: base + ":changes"}
}

// Add writes complaint, assigning an id and created_at when missing.
func (s *Store) Add(ctx context.Context, collection string, complaint triage.Complaint) (triage.Complaint, error) {
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
	payload, err := json.Marshal(complaint)
	if err != nil {
		return triage.Complaint{}, fmt.Errorf("redisstore: encode %s: %w", complaint.ID, err)
	}
	keys := s.KeysFor(collection)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keys.Docs, complaint.ID, payload)
		pipe.ZAdd(ctx, keys.Index, redis.Z{Score: score(complaint), Member: complaint.ID})
		pipe.Publish(ctx, keys.Channel, complaint.ID)
		return nil
	})
	if err != nil {
		return triage.Complaint{}, fmt.Errorf("redisstore: add %s: %w", complaint.ID, err)
	}
	return complaint, nil
}

// Delete removes one document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	keys := s.KeysFor(collection)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, keys.Docs, id)
		pipe.ZRem(ctx, keys.Index, id)
		pipe.Publish(ctx, keys.Channel, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: delete %s: %w", id, err)
	}
	return nil
}

// Clear drops the collection and reports how many documents it held.
func (s *Store) Clear(ctx context.Context, collection string) (int, error) {
	keys := s.KeysFor(collection)
	var count *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.HLen(ctx, keys.Docs)
		pipe.Del(ctx, keys.Docs, keys.Index)
		pipe.Publish(ctx, keys.Channel, "*")
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redisstore: clear %s: %w", collection, err)
	}
	n := int(count.Val())
	s.logger.Info("triage.docstore.cleared", "collection", collection, "count", n)
	return n, nil
}

// Snapshot returns the collection ordered by created_at, newest first.
func (s *Store) Snapshot(ctx context.Context, collection string) ([]triage.Complaint, error) {
	return s.load(ctx, triage.Query{Collection: collection, OrderBy: "created_at", Direction: triage.Descending})
}

// Subscribe delivers the current collection, then a fresh snapshot after
// every change announced on the collection channel.
func (s *Store) Subscribe(ctx context.Context, query triage.Query, onSnapshot func([]triage.Complaint), onError func(error)) (func(), error) {
	if query.Collection == "" {
		return nil, errors.New("redisstore: subscribe: collection is required")
	}
	if onSnapshot == nil {
		return nil, errors.New("redisstore: subscribe: snapshot callback is required")
	}
	if onError == nil {
		onError = func(error) {}
	}
	keys := s.KeysFor(query.Collection)
	pubsub := s.client.Subscribe(ctx, keys.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redisstore: subscribe %s: %w", keys.Channel, err)
	}

	initial, err := s.load(ctx, query)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	onSnapshot(initial)

	// The listener outlives the subscribe call, so it does not inherit ctx.
	listenCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range pubsub.Channel() {
			docs, err := s.load(listenCtx, query)
			if listenCtx.Err() != nil {
				return
			}
			if err != nil {
				onError(err)
				continue
			}
			onSnapshot(docs)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			_ = pubsub.Close()
			<-done
		})
	}, nil
}

func (s *Store) load(ctx context.Context, query triage.Query) ([]triage.Complaint, error) {
	keys := s.KeysFor(query.Collection)
	var ids []string
	var err error
	if query.Direction == triage.Ascending {
		ids, err = s.client.ZRange(ctx, keys.Index, 0, -1).Result()
	} else {
		ids, err = s.client.ZRevRange(ctx, keys.Index, 0, -1).Result()
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redisstore: read index: %w", err)
	}
	if len(ids) == 0 {
		return []triage.Complaint{}, nil
	}
	values, err := s.client.HMGet(ctx, keys.Docs, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: read documents: %w", err)
	}
	docs := decodeDocuments(s.logger, ids, values)
	if key := triage.ParseSortKey(query.OrderBy); key != "" && key != triage.SortCreatedAt && key != triage.SortTimestamp {
		dir := query.Direction
		if dir == "" {
			dir = triage.Ascending
		}
		triage.SortComplaints(docs, key, dir)
	}
	return docs, nil
}

// decodeDocuments turns HMGET replies into complaints, skipping ids whose
// document vanished between the two reads. Malformed documents are logged
// and left out so one bad write cannot hide the rest of the collection.
func decodeDocuments(logger *slog.Logger, ids []string, values []any) []triage.Complaint {
	docs := make([]triage.Complaint, 0, len(values))
	for i, value := range values {
		var id string
		if i < len(ids) {
			id = ids[i]
		}
		var raw []byte
		switch v := value.(type) {
		case nil:
			continue
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		default:
			logger.Warn("triage.docstore.document.skipped", "id", id, "reason", fmt.Sprintf("unexpected type %T", value))
			continue
		}
		var doc triage.Complaint
		if err := json.Unmarshal(raw, &doc); err != nil {
			logger.Warn("triage.docstore.document.skipped", "id", id, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

func score(c triage.Complaint) float64 {
	return float64(c.Instant())
}
