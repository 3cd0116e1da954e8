package triage

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	defaultChartHeight = "320px"
	// EmptyChartHTML replaces a chart whose aggregate has no buckets.
	EmptyChartHTML = `<div class="triage-chart triage-chart--empty">No data yet</div>`
)

// Charts carries the rendered aggregate charts of a view.
type Charts struct {
	Category string `json:"category_html"`
	Urgency  string `json:"urgency_html"`
	Theme    string `json:"theme"`
}

// ChartRenderer renders the category and urgency aggregates as ECharts HTML.
type ChartRenderer struct {
	cache      RenderCache
	theme      string
	assetsHost string
}

// ChartOption customizes a ChartRenderer.
type ChartOption func(*ChartRenderer)

// WithChartCache injects a render cache; nil disables caching.
func WithChartCache(cache RenderCache) ChartOption {
	return func(r *ChartRenderer) {
		r.cache = cache
	}
}

// WithChartTheme sets the ECharts theme (defaults to Westeros).
func WithChartTheme(theme string) ChartOption {
	return func(r *ChartRenderer) {
		if theme = strings.TrimSpace(theme); theme != "" {
			r.theme = theme
		}
	}
}

// WithChartAssetsHost rewrites the host ECharts JS is loaded from.
func WithChartAssetsHost(host string) ChartOption {
	return func(r *ChartRenderer) {
		r.assetsHost = host
	}
}

// NewChartRenderer builds a renderer with a five minute cache.
func NewChartRenderer(options ...ChartOption) *ChartRenderer {
	r := &ChartRenderer{
		cache: NewChartCache(5 * time.Minute),
		theme: types.ThemeWesteros,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Theme returns the configured theme.
func (r *ChartRenderer) Theme() string {
	return r.theme
}

// Render renders both aggregates of view.
func (r *ChartRenderer) Render(view View) (Charts, error) {
	category, err := r.CategoryPie(view.CategoryCounts)
	if err != nil {
		return Charts{}, err
	}
	urgency, err := r.UrgencyBar(view.UrgencyCounts)
	if err != nil {
		return Charts{}, err
	}
	return Charts{Category: category, Urgency: urgency, Theme: r.theme}, nil
}

// CategoryPie renders the category distribution as a pie chart.
func (r *ChartRenderer) CategoryPie(buckets []Bucket) (string, error) {
	return r.cached("category_pie", buckets, func() (string, error) {
		pie := charts.NewPie()
		pie.SetGlobalOptions(r.globalOptions("Complaints by Category")...)
		data := make([]opts.PieData, len(buckets))
		for i, b := range buckets {
			data[i] = opts.PieData{Name: b.Label, Value: b.Count}
		}
		pie.AddSeries("Categories", data, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true)}))
		return renderChart(pie)
	})
}

// UrgencyBar renders the urgency distribution as a bar chart.
func (r *ChartRenderer) UrgencyBar(buckets []Bucket) (string, error) {
	return r.cached("urgency_bar", buckets, func() (string, error) {
		bar := charts.NewBar()
		bar.SetGlobalOptions(r.globalOptions("Urgency Levels")...)
		labels := make([]string, len(buckets))
		data := make([]opts.BarData, len(buckets))
		for i, b := range buckets {
			labels[i] = b.Label
			data[i] = opts.BarData{Name: b.Label, Value: b.Count}
		}
		bar.SetXAxis(labels).AddSeries("Complaints", data)
		return renderChart(bar)
	})
}

func (r *ChartRenderer) cached(kind string, buckets []Bucket, render func() (string, error)) (string, error) {
	if len(buckets) == 0 {
		return EmptyChartHTML, nil
	}
	if r.cache == nil {
		return render()
	}
	key := fmt.Sprintf("%s:%s:%s", kind, r.theme, bucketHash(buckets))
	return r.cache.GetOrRender(key, render)
}

func (r *ChartRenderer) globalOptions(title string) []charts.GlobalOpts {
	initOpts := opts.Initialization{
		Theme:  r.theme,
		Width:  "100%",
		Height: defaultChartHeight,
	}
	if r.assetsHost != "" {
		initOpts.AssetsHost = r.assetsHost
	}
	return []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithInitializationOpts(initOpts),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	}
}

func renderChart(renderable interface{ Render(io.Writer) error }) (string, error) {
	var buf bytes.Buffer
	if err := renderable.Render(&buf); err != nil {
		return "", fmt.Errorf("triage: render chart: %w", err)
	}
	return buf.String(), nil
}
