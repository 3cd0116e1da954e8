package triage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"
)

// ViewSource is the slice of a Dashboard the controller reads.
type ViewSource interface {
	View() View
	Charts() (Charts, error)
	Loading() bool
}

// scopedSource is implemented by dashboards that keep controls per visitor.
type scopedSource interface {
	Scope(ctx context.Context) ViewControls
}

// ControllerOptions configures the HTML controller.
type ControllerOptions struct {
	Dashboard ViewSource
	Renderer  Renderer
	Template  string
	Title     string
	BasePath  string
}

// Controller renders the dashboard page.
type Controller struct {
	dashboard ViewSource
	renderer  Renderer
	template  string
	title     string
	basePath  string
}

// NewController wires a dashboard into a controller.
func NewController(opts ControllerOptions) *Controller {
	tpl := opts.Template
	if tpl == "" {
		tpl = "dashboard.html"
	}
	title := opts.Title
	if title == "" {
		title = "Complaint Triage"
	}
	base := opts.BasePath
	if base == "" {
		base = "/admin/triage"
	}
	return &Controller{
		dashboard: opts.Dashboard,
		renderer:  opts.Renderer,
		template:  tpl,
		title:     title,
		basePath:  base,
	}
}

// Payload builds the template data for session.
func (c *Controller) Payload(ctx context.Context, session Session) (map[string]any, error) {
	source, err := c.source(ctx)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"title":     c.title,
		"base_path": c.basePath,
		"session": map[string]any{
			"label":    session.DisplayLabel(),
			"is_admin": session.IsAdmin,
			"state":    session.State.String(),
		},
		"loading": source.Loading(),
	}
	view := source.View()
	charts, err := source.Charts()
	if err != nil {
		return nil, err
	}
	payload["charts"] = map[string]any{
		"category": charts.Category,
		"urgency":  charts.Urgency,
		"theme":    charts.Theme,
	}
	payload["state"] = map[string]any{
		"search":    view.State.Search,
		"urgency":   view.State.Urgency,
		"category":  view.State.Category,
		"sort_key":  string(view.State.SortKey),
		"direction": string(view.State.Direction),
	}
	payload["urgency_options"] = []string{FilterAll, UrgencyHigh, UrgencyMedium, UrgencyLow, DefaultUrgency}
	payload["category_options"] = view.KnownCategories
	// Counts are preformatted; the template engine sees numbers as floats.
	payload["showing"] = strconv.Itoa(view.Showing)
	payload["total"] = strconv.Itoa(view.Total)
	payload["rows"] = rowPayloads(view.Rows)
	payload["sort_links"] = map[string]string{
		string(SortUrgency):   c.sortLink(view.State, SortUrgency),
		string(SortCategory):  c.sortLink(view.State, SortCategory),
		string(SortCreatedAt): c.sortLink(view.State, SortCreatedAt),
	}
	return payload, nil
}

// RenderTemplate renders the dashboard page into out.
func (c *Controller) RenderTemplate(ctx context.Context, session Session, out io.Writer) error {
	if c.renderer == nil {
		return errors.New("triage: controller has no renderer")
	}
	payload, err := c.Payload(ctx, session)
	if err != nil {
		return err
	}
	html, err := c.renderer.Render(c.template, payload)
	if err != nil {
		return fmt.Errorf("triage: render %s: %w", c.template, err)
	}
	_, err = io.WriteString(out, html)
	return err
}

// Charts returns the rendered aggregates for the caller's view.
func (c *Controller) Charts(ctx context.Context) (Charts, error) {
	source, err := c.source(ctx)
	if err != nil {
		return Charts{}, err
	}
	return source.Charts()
}

func (c *Controller) source(ctx context.Context) (ViewSource, error) {
	if c.dashboard == nil {
		return nil, errors.New("triage: controller has no dashboard")
	}
	if scoped, ok := c.dashboard.(scopedSource); ok {
		return scoped.Scope(ctx), nil
	}
	return c.dashboard, nil
}

func (c *Controller) sortLink(state FilterSortState, key SortKey) string {
	next := state.ToggleSort(key)
	q := url.Values{}
	if next.Search != "" {
		q.Set("search", next.Search)
	}
	q.Set("urgency", next.Urgency)
	q.Set("category", next.Category)
	q.Set("sort", string(next.SortKey))
	q.Set("dir", string(next.Direction))
	return c.basePath + "?" + q.Encode()
}

func rowPayloads(rows []Complaint) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		created := ""
		if instant := row.Instant(); instant != 0 {
			created = instant.Time().Format(time.DateTime)
		}
		out = append(out, map[string]any{
			"id":               row.ID,
			"urgency":          row.UrgencyLabel(),
			"category":         row.CategoryLabel(),
			"summary":          firstNonEmpty(row.Summary, row.Text()),
			"text":             row.Text(),
			"suggested_action": row.SuggestedAction,
			"sentiment":        row.Sentiment,
			"status":           row.Status,
			"user_name":        firstNonEmpty(row.UserName, row.UserEmail, AnonymousUserName),
			"created_at":       created,
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
