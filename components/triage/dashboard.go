package triage

import (
	"context"
	"log/slog"
	"sync"
)

// DashboardOptions wires a mounted dashboard.
type DashboardOptions struct {
	Store      DocumentStore
	Collection string
	Hub        *SnapshotHub
	Charts     *ChartRenderer
	Logger     *slog.Logger
	Telemetry  Telemetry
}

// Dashboard is one mounted admin dashboard: a live feed shared by every
// viewer plus filter and sort controls kept per visitor. The Dashboard's own
// methods drive the unscoped controls used by single-user hosts.
type Dashboard struct {
	feed      *FeedSubscriber
	charts    *ChartRenderer
	telemetry Telemetry

	mu     sync.RWMutex
	states map[string]FilterSortState
}

// NewDashboard builds an unmounted dashboard with the default controls.
func NewDashboard(opts DashboardOptions) (*Dashboard, error) {
	feed, err := NewFeedSubscriber(FeedOptions{
		Store:      opts.Store,
		Collection: opts.Collection,
		Hub:        opts.Hub,
		Logger:     opts.Logger,
		Telemetry:  opts.Telemetry,
	})
	if err != nil {
		return nil, err
	}
	charts := opts.Charts
	if charts == nil {
		charts = NewChartRenderer()
	}
	return &Dashboard{
		feed:      feed,
		charts:    charts,
		telemetry: normalizeTelemetry(opts.Telemetry),
		states:    make(map[string]FilterSortState),
	}, nil
}

// Mount opens the live feed.
func (d *Dashboard) Mount(ctx context.Context) {
	d.feed.Open(ctx)
}

// Feed exposes the dashboard's subscriber.
func (d *Dashboard) Feed() *FeedSubscriber {
	return d.feed
}

// Scope returns the controls of the visitor attached to ctx.
func (d *Dashboard) Scope(ctx context.Context) ViewControls {
	return d.Controls(ScopeKey(ctx))
}

// Controls returns the controls stored under key.
func (d *Dashboard) Controls(key string) ViewControls {
	return ViewControls{d: d, key: key}
}

// State returns the current controls.
func (d *Dashboard) State() FilterSortState { return d.Controls("").State() }

// SetSearch replaces the search term.
func (d *Dashboard) SetSearch(term string) FilterSortState { return d.Controls("").SetSearch(term) }

// FilterUrgency sets the urgency filter; empty means FilterAll.
func (d *Dashboard) FilterUrgency(value string) FilterSortState {
	return d.Controls("").FilterUrgency(value)
}

// FilterCategory sets the category filter; empty means FilterAll.
func (d *Dashboard) FilterCategory(value string) FilterSortState {
	return d.Controls("").FilterCategory(value)
}

// Sort toggles the sort key.
func (d *Dashboard) Sort(key SortKey) FilterSortState { return d.Controls("").Sort(key) }

// Apply replaces the controls wholesale.
func (d *Dashboard) Apply(state FilterSortState) FilterSortState { return d.Controls("").Apply(state) }

// View derives the current view from the latest snapshot.
func (d *Dashboard) View() View { return d.Controls("").View() }

// Charts renders the aggregates of the current view.
func (d *Dashboard) Charts() (Charts, error) { return d.Controls("").Charts() }

// Loading reports whether the feed is still waiting for its first delivery.
func (d *Dashboard) Loading() bool {
	return d.feed.Loading()
}

// Close unmounts the dashboard; the feed is unsubscribed exactly once.
func (d *Dashboard) Close() error {
	d.feed.Close()
	return nil
}

func (d *Dashboard) state(key string) FilterSortState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if state, ok := d.states[key]; ok {
		return state
	}
	return DefaultFilterSortState()
}

func (d *Dashboard) update(key string, mutate func(*FilterSortState)) FilterSortState {
	d.mu.Lock()
	state, ok := d.states[key]
	if !ok {
		state = DefaultFilterSortState()
	}
	mutate(&state)
	d.states[key] = state
	d.mu.Unlock()
	payload := map[string]any{
		"search":    state.Search,
		"urgency":   state.Urgency,
		"category":  state.Category,
		"sort_key":  string(state.SortKey),
		"direction": string(state.Direction),
	}
	if key != "" {
		payload["visitor"] = key
	}
	d.telemetry.Record(context.Background(), "triage.dashboard.state", payload)
	return state
}

// ViewControls are one visitor's filter and sort controls over the
// dashboard's shared feed.
type ViewControls struct {
	d   *Dashboard
	key string
}

// State returns the visitor's controls.
func (c ViewControls) State() FilterSortState { return c.d.state(c.key) }

// SetSearch replaces the search term.
func (c ViewControls) SetSearch(term string) FilterSortState {
	return c.d.update(c.key, func(s *FilterSortState) { s.Search = term })
}

// FilterUrgency sets the urgency filter; empty means FilterAll.
func (c ViewControls) FilterUrgency(value string) FilterSortState {
	return c.d.update(c.key, func(s *FilterSortState) { s.Urgency = orAll(value) })
}

// FilterCategory sets the category filter; empty means FilterAll.
func (c ViewControls) FilterCategory(value string) FilterSortState {
	return c.d.update(c.key, func(s *FilterSortState) { s.Category = orAll(value) })
}

// Sort toggles the sort key.
func (c ViewControls) Sort(key SortKey) FilterSortState {
	return c.d.update(c.key, func(s *FilterSortState) { *s = s.ToggleSort(key) })
}

// Apply replaces the controls wholesale.
func (c ViewControls) Apply(state FilterSortState) FilterSortState {
	return c.d.update(c.key, func(s *FilterSortState) { *s = state.normalized() })
}

// View derives the visitor's view from the latest snapshot.
func (c ViewControls) View() View {
	return Derive(c.d.feed.Snapshot(), c.State())
}

// Charts renders the aggregates of the visitor's view.
func (c ViewControls) Charts() (Charts, error) {
	return c.d.charts.Render(c.View())
}

// Loading reports whether the shared feed is still loading.
func (c ViewControls) Loading() bool {
	return c.d.feed.Loading()
}

func orAll(value string) string {
	if value == "" {
		return FilterAll
	}
	return value
}
