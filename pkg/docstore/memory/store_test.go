package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-triage/components/triage"
	"github.com/goliatone/go-triage/pkg/docstore/memory"
)

var ordered = triage.Query{Collection: "complaints", OrderBy: "created_at", Direction: triage.Descending}

type collector struct {
	snapshots [][]triage.Complaint
	errs      []error
}

func (c *collector) snapshot(docs []triage.Complaint) { c.snapshots = append(c.snapshots, docs) }
func (c *collector) fail(err error)                   { c.errs = append(c.errs, err) }

func (c *collector) lastIDs() []string {
	last := c.snapshots[len(c.snapshots)-1]
	ids := make([]string, 0, len(last))
	for _, doc := range last {
		ids = append(ids, doc.ID)
	}
	return ids
}

func TestSubscribeDeliversInitialAndOrderedUpdates(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.Add(ctx, "complaints", triage.Complaint{ID: "old", CreatedAt: 1000})
	require.NoError(t, err)

	rec := &collector{}
	cancel, err := store.Subscribe(ctx, ordered, rec.snapshot, rec.fail)
	require.NoError(t, err)
	require.Len(t, rec.snapshots, 1)
	assert.Equal(t, []string{"old"}, rec.lastIDs())

	_, err = store.Add(ctx, "complaints", triage.Complaint{ID: "new", CreatedAt: 3000})
	require.NoError(t, err)
	_, err = store.Add(ctx, "complaints", triage.Complaint{ID: "mid", Timestamp: 2000})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old"}, rec.lastIDs())

	_, err = store.Add(ctx, "other", triage.Complaint{ID: "x", CreatedAt: 1})
	require.NoError(t, err)
	assert.Len(t, rec.snapshots, 3, "other collections do not notify")

	cancel()
	cancel()
	_, err = store.Add(ctx, "complaints", triage.Complaint{ID: "late", CreatedAt: 1})
	require.NoError(t, err)
	assert.Len(t, rec.snapshots, 3)
}

func TestAddAssignsIDAndCreatedAt(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	store := memory.New(memory.WithClock(func() time.Time { return now }))
	doc, err := store.Add(context.Background(), "complaints", triage.Complaint{Description: "cold dorm"})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, triage.InstantFromTime(now), doc.CreatedAt)

	doc.Status = "resolved"
	_, err = store.Add(context.Background(), "complaints", doc)
	require.NoError(t, err)
	docs, err := store.Snapshot(context.Background(), "complaints")
	require.NoError(t, err)
	require.Len(t, docs, 1, "same id replaces")
	assert.Equal(t, "resolved", docs[0].Status)
}

func TestAddValidates(t *testing.T) {
	store := memory.New(memory.WithValidator(triage.NewComplaintValidator()))
	_, err := store.Add(context.Background(), "complaints", triage.Complaint{ID: "a", Urgency: "Critical"})
	assert.True(t, triage.IsKind(err, triage.KindValidation))
	docs, _ := store.Snapshot(context.Background(), "complaints")
	assert.Empty(t, docs)
}

func TestDeleteAndClear(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Add(ctx, "complaints", triage.Complaint{ID: id, CreatedAt: 1})
		require.NoError(t, err)
	}
	rec := &collector{}
	_, err := store.Subscribe(ctx, ordered, rec.snapshot, rec.fail)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "complaints", "b"))
	assert.ElementsMatch(t, []string{"a", "c"}, rec.lastIDs())
	require.NoError(t, store.Delete(ctx, "complaints", "missing"))
	assert.Len(t, rec.snapshots, 2)

	n, err := store.Clear(ctx, "complaints")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, rec.lastIDs())
}

func TestFailReachesSubscribers(t *testing.T) {
	store := memory.New()
	rec := &collector{}
	_, err := store.Subscribe(context.Background(), ordered, rec.snapshot, rec.fail)
	require.NoError(t, err)
	store.Fail("complaints", errors.New("permission denied"))
	require.Len(t, rec.errs, 1)
	assert.EqualError(t, rec.errs[0], "permission denied")
}

func TestSubscribeValidatesInput(t *testing.T) {
	store := memory.New()
	_, err := store.Subscribe(context.Background(), triage.Query{}, func([]triage.Complaint) {}, nil)
	assert.Error(t, err)
	_, err = store.Subscribe(context.Background(), ordered, nil, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Subscribe(ctx, ordered, func([]triage.Complaint) {}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

const fixtures = `
- id: c1
  description: Library too loud
  category: Facilities
  urgency: Low
  created_at: 1000
- id: c2
  complaint_text: Wifi down in dorm B
  category: IT
  urgency: High
  created_at: "2024-03-01T10:00:00Z"
`

func TestLoadFixtures(t *testing.T) {
	store := memory.New(memory.WithValidator(triage.NewComplaintValidator()))
	n, err := store.LoadFixtures(context.Background(), "complaints", strings.NewReader(fixtures))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	docs, err := store.Snapshot(context.Background(), "complaints")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c2", docs[0].ID)

	_, err = store.LoadFixtures(context.Background(), "complaints", strings.NewReader(`[{"id": "bad", "urgency": "Urgent"}]`))
	assert.True(t, triage.IsKind(err, triage.KindValidation))

	n, err = store.LoadFixtures(context.Background(), "complaints", strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFeedSubscriberOverMemoryStore(t *testing.T) {
	store := memory.New()
	feed, err := triage.NewFeedSubscriber(triage.FeedOptions{Store: store})
	require.NoError(t, err)
	feed.Open(context.Background())
	defer feed.Close()
	assert.False(t, feed.Loading())

	_, err = store.Add(context.Background(), triage.DefaultCollection, triage.Complaint{ID: "a", CreatedAt: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Snapshot().Len())
}
