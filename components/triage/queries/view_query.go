package queries

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-triage/components/triage"
)

type snapshotSource interface {
	Snapshot() triage.Snapshot
}

type stateSource interface {
	State() triage.FilterSortState
}

// scopedStates is implemented by dashboards that keep controls per visitor.
type scopedStates interface {
	Scope(ctx context.Context) triage.ViewControls
}

// ViewInput optionally overrides the caller's dashboard controls.
type ViewInput struct {
	State *triage.FilterSortState
}

// ViewQuery derives the triage view from the latest snapshot.
type ViewQuery struct {
	snapshots snapshotSource
	states    stateSource
}

// NewViewQuery builds the query. states may be nil when every input carries
// its own state.
func NewViewQuery(snapshots snapshotSource, states stateSource) *ViewQuery {
	return &ViewQuery{snapshots: snapshots, states: states}
}

var _ gocommand.Querier[ViewInput, triage.View] = (*ViewQuery)(nil)

// Query filters, sorts and aggregates the current snapshot.
func (q *ViewQuery) Query(ctx context.Context, input ViewInput) (triage.View, error) {
	if q.snapshots == nil {
		return triage.View{}, errors.New("view query requires a snapshot source")
	}
	state := triage.DefaultFilterSortState()
	switch {
	case input.State != nil:
		state = *input.State
	case q.states != nil:
		if scoped, ok := q.states.(scopedStates); ok {
			state = scoped.Scope(ctx).State()
		} else {
			state = q.states.State()
		}
	}
	return triage.Derive(q.snapshots.Snapshot(), state), nil
}
