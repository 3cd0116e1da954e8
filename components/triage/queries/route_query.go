package queries

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-triage/components/triage"
)

type sessionSource interface {
	Session() triage.Session
}

// RouteInput names the screen a visitor is navigating to.
type RouteInput struct {
	Screen string `json:"screen"`
}

// RouteQuery asks the guard whether the caller's session may see a screen.
// The visitor resolved into the request context wins; without one the
// optional session source is consulted, and otherwise the caller is
// anonymous.
type RouteQuery struct {
	sessions sessionSource
	guard    *triage.RouteGuard
}

// NewRouteQuery builds the query. sessions may be nil.
func NewRouteQuery(sessions sessionSource, guard *triage.RouteGuard) *RouteQuery {
	return &RouteQuery{sessions: sessions, guard: guard}
}

var _ gocommand.Querier[RouteInput, triage.Decision] = (*RouteQuery)(nil)

// Query returns the guard decision for the caller's session.
func (q *RouteQuery) Query(ctx context.Context, input RouteInput) (triage.Decision, error) {
	if q.guard == nil {
		return triage.Decision{}, errors.New("route query requires a guard")
	}
	return q.guard.DecideNamed(q.session(ctx), input.Screen), nil
}

func (q *RouteQuery) session(ctx context.Context) triage.Session {
	if _, ok := triage.VisitorFrom(ctx); ok {
		return triage.SessionFrom(ctx)
	}
	if q.sessions != nil {
		return q.sessions.Session()
	}
	return triage.Session{State: triage.StateAnonymous}
}
