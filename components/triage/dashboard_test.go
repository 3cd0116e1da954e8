package triage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardLifecycle(t *testing.T) {
	store := &fakeStore{}
	dash, err := NewDashboard(DashboardOptions{Store: store, Charts: NewChartRenderer(WithChartCache(nil))})
	require.NoError(t, err)
	assert.Equal(t, DefaultFilterSortState(), dash.State())
	assert.True(t, dash.Loading())

	dash.Mount(context.Background())
	store.deliver(sampleComplaints())
	assert.False(t, dash.Loading())

	dash.SetSearch("wifi")
	view := dash.View()
	assert.Equal(t, []string{"c2"}, ids(view.Rows))
	assert.Equal(t, 4, view.Total)

	dash.SetSearch("")
	dash.FilterUrgency(UrgencyLow)
	assert.Equal(t, []string{"c1"}, ids(dash.View().Rows))
	dash.FilterUrgency("")
	assert.Equal(t, FilterAll, dash.State().Urgency)

	dash.FilterCategory("Food")
	assert.Equal(t, []string{"c3"}, ids(dash.View().Rows))
	dash.FilterCategory(FilterAll)

	state := dash.Sort(SortUrgency)
	assert.Equal(t, Ascending, state.Direction)
	assert.Equal(t, []string{"c4", "c1", "c3", "c2"}, ids(dash.View().Rows))
	state = dash.Sort(SortUrgency)
	assert.Equal(t, Descending, state.Direction)

	charts, err := dash.Charts()
	require.NoError(t, err)
	assert.Contains(t, charts.Category, "Facilities")

	require.NoError(t, dash.Close())
	require.NoError(t, dash.Close())
	assert.Equal(t, 1, store.unsubscribes)
}

func TestDashboardApplyNormalizes(t *testing.T) {
	dash, err := NewDashboard(DashboardOptions{Store: &fakeStore{}})
	require.NoError(t, err)
	state := dash.Apply(FilterSortState{Search: "x", SortKey: SortCategory})
	assert.Equal(t, FilterAll, state.Urgency)
	assert.Equal(t, FilterAll, state.Category)
	assert.Equal(t, Descending, state.Direction)
	assert.Equal(t, SortCategory, state.SortKey)
}

func TestDashboardsOwnTheirState(t *testing.T) {
	store := &fakeStore{}
	first, err := NewDashboard(DashboardOptions{Store: store})
	require.NoError(t, err)
	second, err := NewDashboard(DashboardOptions{Store: store})
	require.NoError(t, err)

	first.SetSearch("noise")
	assert.Equal(t, "", second.State().Search)
}

func TestNewDashboardRequiresStore(t *testing.T) {
	_, err := NewDashboard(DashboardOptions{})
	require.Error(t, err)
}

func TestDashboardControlsArePerVisitor(t *testing.T) {
	store := &fakeStore{}
	dash, err := NewDashboard(DashboardOptions{Store: store, Charts: NewChartRenderer(WithChartCache(nil))})
	require.NoError(t, err)
	dash.Mount(context.Background())
	store.deliver(sampleComplaints())

	ada := WithVisitor(context.Background(), NewVisitor(Session{State: StateAuthenticatedComplete, Identity: &Identity{UID: "ada"}}, "t1"))
	bob := WithVisitor(context.Background(), NewVisitor(Session{State: StateAuthenticatedComplete, Identity: &Identity{UID: "bob"}}, "t2"))

	dash.Scope(ada).FilterUrgency(UrgencyLow)
	dash.Scope(bob).SetSearch("wifi")

	assert.Equal(t, []string{"c1"}, ids(dash.Scope(ada).View().Rows))
	assert.Equal(t, []string{"c2"}, ids(dash.Scope(bob).View().Rows))
	assert.Equal(t, FilterAll, dash.Scope(bob).State().Urgency)
	assert.Equal(t, DefaultFilterSortState(), dash.State())
	assert.Equal(t, DefaultFilterSortState(), dash.Scope(context.Background()).State())
}
