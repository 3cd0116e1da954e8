package triage

import (
	"testing"

	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChartRendererRendersAggregates(t *testing.T) {
	renderer := NewChartRenderer(WithChartCache(nil))
	view := Derive(Snapshot{Complaints: sampleComplaints()}, DefaultFilterSortState())

	charts, err := renderer.Render(view)
	require.NoError(t, err)
	assert.Equal(t, types.ThemeWesteros, charts.Theme)
	assert.Contains(t, charts.Category, "Complaints by Category")
	assert.Contains(t, charts.Category, "Facilities")
	assert.Contains(t, charts.Category, DefaultCategory)
	assert.Contains(t, charts.Urgency, "Urgency Levels")
	assert.Contains(t, charts.Urgency, DefaultUrgency)
}

func TestChartRendererEmptyPlaceholder(t *testing.T) {
	renderer := NewChartRenderer()
	charts, err := renderer.Render(Derive(Snapshot{}, DefaultFilterSortState()))
	require.NoError(t, err)
	assert.Equal(t, EmptyChartHTML, charts.Category)
	assert.Equal(t, EmptyChartHTML, charts.Urgency)
}

func TestChartRendererUsesCache(t *testing.T) {
	cache := &countingCache{}
	renderer := NewChartRenderer(WithChartCache(cache), WithChartTheme("dark"), WithChartAssetsHost("https://cdn.example.com/"))
	buckets := []Bucket{{UrgencyHigh, 2}}

	html, err := renderer.UrgencyBar(buckets)
	require.NoError(t, err)
	assert.Contains(t, html, "https://cdn.example.com/")
	assert.Equal(t, "dark", renderer.Theme())
	require.Len(t, cache.keys, 1)
	assert.Contains(t, cache.keys[0], "urgency_bar:dark:")
}

func TestChartThemeIgnoresBlank(t *testing.T) {
	renderer := NewChartRenderer(WithChartTheme("  "))
	assert.Equal(t, types.ThemeWesteros, renderer.Theme())
}

type countingCache struct {
	keys []string
}

func (c *countingCache) GetOrRender(key string, render func() (string, error)) (string, error) {
	c.keys = append(c.keys, key)
	return render()
}
