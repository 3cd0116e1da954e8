package triage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type stubViewSource struct {
	view    View
	charts  Charts
	err     error
	loading bool
}

func (s *stubViewSource) View() View              { return s.view }
func (s *stubViewSource) Charts() (Charts, error) { return s.charts, s.err }
func (s *stubViewSource) Loading() bool           { return s.loading }

type stubRenderer struct {
	lastTemplate string
	lastPayload  map[string]any
	err          error
}

func (r *stubRenderer) Render(name string, data any, out ...io.Writer) (string, error) {
	r.lastTemplate = name
	if payload, ok := data.(map[string]any); ok {
		r.lastPayload = payload
	}
	if len(out) > 0 && out[0] != nil {
		out[0].Write([]byte("<html></html>"))
	}
	return "<html></html>", r.err
}

func TestControllerRenderTemplate(t *testing.T) {
	source := &stubViewSource{
		view:   Derive(Snapshot{Complaints: sampleComplaints()}, DefaultFilterSortState()),
		charts: Charts{Category: "<pie>", Urgency: "<bar>"},
	}
	renderer := &stubRenderer{}
	controller := NewController(ControllerOptions{
		Dashboard: source,
		Renderer:  renderer,
		Template:  "dashboard.html",
	})

	session := Session{State: StateAuthenticatedComplete, Identity: &Identity{Email: adminEmail, DisplayName: "Ada"}, IsAdmin: true}
	var buf bytes.Buffer
	if err := controller.RenderTemplate(context.Background(), session, &buf); err != nil {
		t.Fatalf("RenderTemplate returned error: %v", err)
	}
	if renderer.lastTemplate != "dashboard.html" {
		t.Fatalf("expected dashboard template to render, got %s", renderer.lastTemplate)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected rendered output")
	}
	if got := renderer.lastPayload["total"]; got != "4" {
		t.Fatalf("expected total 4, got %v", got)
	}
	rows, ok := renderer.lastPayload["rows"].([]map[string]any)
	if !ok || len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %#v", renderer.lastPayload["rows"])
	}
	last := rows[3]
	if last["category"] != DefaultCategory || last["urgency"] != DefaultUrgency || last["user_name"] != AnonymousUserName {
		t.Fatalf("expected default labels on bare complaint, got %#v", last)
	}
	sessionPayload := renderer.lastPayload["session"].(map[string]any)
	if sessionPayload["label"] != "Ada" {
		t.Fatalf("expected welcome label, got %v", sessionPayload["label"])
	}
}

func TestControllerSortLinksToggle(t *testing.T) {
	source := &stubViewSource{view: Derive(Snapshot{}, DefaultFilterSortState())}
	controller := NewController(ControllerOptions{Dashboard: source, Renderer: &stubRenderer{}})
	payload, err := controller.Payload(context.Background(), Session{})
	if err != nil {
		t.Fatalf("Payload returned error: %v", err)
	}
	links := payload["sort_links"].(map[string]string)
	if !strings.Contains(links["created_at"], "dir=asc") {
		t.Fatalf("expected active key to flip direction, got %s", links["created_at"])
	}
	if !strings.Contains(links["urgency"], "sort=urgency") || !strings.Contains(links["urgency"], "dir=asc") {
		t.Fatalf("expected new key to start ascending, got %s", links["urgency"])
	}
}

func TestControllerPropagatesChartErrors(t *testing.T) {
	source := &stubViewSource{err: errors.New("render failed")}
	controller := NewController(ControllerOptions{Dashboard: source, Renderer: &stubRenderer{}})
	if err := controller.RenderTemplate(context.Background(), Session{}, io.Discard); err == nil {
		t.Fatalf("expected chart error")
	}
}

func TestControllerWithoutRenderer(t *testing.T) {
	controller := NewController(ControllerOptions{Dashboard: &stubViewSource{}})
	if err := controller.RenderTemplate(context.Background(), Session{}, io.Discard); err == nil {
		t.Fatalf("expected renderer error")
	}
}

func TestEmbeddedTemplateRenders(t *testing.T) {
	renderer, err := NewTemplateRenderer()
	if err != nil {
		t.Fatalf("NewTemplateRenderer: %v", err)
	}
	store := &fakeStore{initial: sampleComplaints()}
	dash, err := NewDashboard(DashboardOptions{Store: store, Charts: NewChartRenderer(WithChartCache(nil))})
	if err != nil {
		t.Fatalf("NewDashboard: %v", err)
	}
	dash.Mount(context.Background())
	defer dash.Close()

	controller := NewController(ControllerOptions{Dashboard: dash, Renderer: renderer})
	var buf bytes.Buffer
	if err := controller.RenderTemplate(context.Background(), Session{Identity: &Identity{Email: "a@b.c"}}, &buf); err != nil {
		t.Fatalf("RenderTemplate: %v", err)
	}
	html := buf.String()
	for _, want := range []string{"Complaint Triage", "Showing 4 of 4 complaints", "Network outage", "Welcome, a@b.c"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in rendered page", want)
		}
	}
}

func TestControllerUsesVisitorControls(t *testing.T) {
	store := &fakeStore{initial: sampleComplaints()}
	dash, err := NewDashboard(DashboardOptions{Store: store, Charts: NewChartRenderer(WithChartCache(nil))})
	if err != nil {
		t.Fatalf("NewDashboard: %v", err)
	}
	dash.Mount(context.Background())
	defer dash.Close()

	ctx := WithVisitor(context.Background(), NewVisitor(Session{State: StateAuthenticatedComplete, Identity: &Identity{UID: "ada"}}, "t"))
	dash.Scope(ctx).FilterUrgency(UrgencyHigh)

	controller := NewController(ControllerOptions{Dashboard: dash, Renderer: &stubRenderer{}})
	payload, err := controller.Payload(ctx, SessionFrom(ctx))
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if payload["showing"] != "1" || payload["total"] != "4" {
		t.Fatalf("expected visitor filter applied, got %v of %v", payload["showing"], payload["total"])
	}
	payload, err = controller.Payload(context.Background(), Session{})
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if payload["showing"] != "4" {
		t.Fatalf("expected other callers unaffected, got %v", payload["showing"])
	}
	if _, err := controller.Charts(ctx); err != nil {
		t.Fatalf("Charts: %v", err)
	}
}
