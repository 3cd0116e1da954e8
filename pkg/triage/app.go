// Package triage assembles the complaint triage components into a runnable
// application: store, identity session, live dashboard, submission client and
// the transports that expose them.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	router "github.com/goliatone/go-router"

	core "github.com/goliatone/go-triage/components/triage"
	"github.com/goliatone/go-triage/components/triage/commands"
	"github.com/goliatone/go-triage/components/triage/gorouter"
	"github.com/goliatone/go-triage/components/triage/httpapi"
	"github.com/goliatone/go-triage/components/triage/queries"
	"github.com/goliatone/go-triage/pkg/docstore/memory"
	"github.com/goliatone/go-triage/pkg/docstore/redisstore"
	identity "github.com/goliatone/go-triage/pkg/identity/memory"
	"github.com/goliatone/go-triage/pkg/navigation"
)

// Re-exports for callers that only import this package.
type (
	Config    = core.Config
	Session   = core.Session
	View      = core.View
	Complaint = core.Complaint
)

// LoadConfig proxies to the component loader.
func LoadConfig(path string) (Config, error) {
	return core.LoadConfig(path)
}

// Store is the document store surface the application needs: live
// subscriptions plus the maintenance calls used by the CLI.
type Store interface {
	core.DocumentStore
	Add(ctx context.Context, collection string, complaint core.Complaint) (core.Complaint, error)
	Delete(ctx context.Context, collection, id string) error
	Clear(ctx context.Context, collection string) (int, error)
	Snapshot(ctx context.Context, collection string) ([]core.Complaint, error)
}

// Options wires an App. Zero values select the in-memory collaborators.
type Options struct {
	Config      Config
	Store       Store
	Provider    core.IdentityProvider
	// Credentials verifies per-request visitors. Defaults to Provider when
	// it implements core.Credentials.
	Credentials core.Credentials
	HTTPClient  *http.Client
	Logger      *slog.Logger
	Renderer    core.Renderer
	MenuBuilder navigation.MenuBuilder
}

// App holds every wired component.
type App struct {
	Config      Config
	Store       Store
	Provider    core.IdentityProvider
	// Sessions tracks the provider's signed-in identity for in-process hosts.
	Sessions *core.SessionMachine
	// Visitors resolves HTTP callers from their session token.
	Visitors    *core.VisitorSessions
	Hub         *core.SnapshotHub
	Dashboard   *core.Dashboard
	Controller  *core.Controller
	Submissions *core.SubmissionClient
	Handlers    *httpapi.Handlers
	API         httpapi.Executor
	Navigation  *navigation.Navigation
	Guard       *core.RouteGuard

	logger  *slog.Logger
	closers []func() error
}

// New builds the application without opening the live feed.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config.WithDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	telemetry := core.NewLogTelemetry(logger)
	app := &App{Config: cfg, logger: logger}

	store, err := app.openStore(ctx, opts.Store)
	if err != nil {
		return nil, err
	}
	app.Store = store

	provider := opts.Provider
	if provider == nil {
		var popts []identity.Option
		if cfg.SessionSecret != "" {
			popts = append(popts, identity.WithSecret([]byte(cfg.SessionSecret)))
		}
		provider = identity.New(popts...)
	}
	app.Provider = provider

	admins := cfg.AdminPolicy()
	sessions, err := core.NewSessionMachine(core.SessionOptions{
		Provider:  provider,
		Admins:    admins,
		Logger:    logger,
		Telemetry: telemetry,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Sessions = sessions
	app.closers = append(app.closers, func() error { sessions.Close(); return nil })

	credentials := opts.Credentials
	if credentials == nil {
		var ok bool
		if credentials, ok = provider.(core.Credentials); !ok {
			_ = app.Close()
			return nil, errors.New("triage: identity provider cannot verify per-request credentials; set Options.Credentials")
		}
	}
	visitors, err := core.NewVisitorSessions(core.VisitorOptions{
		Credentials: credentials,
		Admins:      admins,
		Logger:      logger,
		Telemetry:   telemetry,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Visitors = visitors

	app.Hub = core.NewSnapshotHub()
	charts := core.NewChartRenderer(core.WithChartTheme(cfg.ChartTheme))
	dashboard, err := core.NewDashboard(core.DashboardOptions{
		Store:      store,
		Collection: cfg.Collection,
		Hub:        app.Hub,
		Charts:     charts,
		Logger:     logger,
		Telemetry:  telemetry,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Dashboard = dashboard
	app.closers = append(app.closers, dashboard.Close)

	renderer := opts.Renderer
	if renderer == nil {
		renderer, err = core.NewTemplateRenderer()
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("triage: templates: %w", err)
		}
	}
	app.Controller = core.NewController(core.ControllerOptions{
		Dashboard: dashboard,
		Renderer:  renderer,
	})

	app.Submissions = core.NewSubmissionClient(core.SubmissionConfig{
		BaseURL:    cfg.APIBase,
		HTTPClient: opts.HTTPClient,
		Logger:     logger,
		Telemetry:  telemetry,
	})

	app.Guard = core.NewRouteGuard(cfg.Routes)
	app.Handlers = &httpapi.Handlers{
		Login:           commands.NewLoginCommand(visitors, telemetry),
		Signup:          commands.NewSignupCommand(visitors, telemetry),
		ProviderLogin:   commands.NewProviderLoginCommand(visitors, telemetry),
		CompleteProfile: commands.NewCompleteProfileCommand(visitors, telemetry),
		Logout:          commands.NewLogoutCommand(visitors, telemetry),
		Submit:          commands.NewSubmitComplaintCommand(app.Submissions, telemetry),
		Filter:          commands.NewSetFilterCommand(dashboard, telemetry),
		Sort:            commands.NewToggleSortCommand(dashboard, telemetry),
		Apply:           commands.NewApplyStateCommand(dashboard, telemetry),
		View:            queries.NewViewQuery(dashboard.Feed(), dashboard),
		Route:           queries.NewRouteQuery(nil, app.Guard),
		Visitors:        visitors,
		Hub:             app.Hub,
	}
	app.API = httpapi.NewExecutor(app.Handlers)
	app.Navigation = navigation.New(navigation.Config{
		MenuBuilder: opts.MenuBuilder,
		Admins:      &admins,
	})
	return app, nil
}

func (a *App) openStore(ctx context.Context, store Store) (Store, error) {
	if store != nil {
		return store, nil
	}
	validator := core.NewComplaintValidator()
	if a.Config.RedisAddr == "" {
		return memory.New(memory.WithValidator(validator), memory.WithLogger(a.logger)), nil
	}
	rs, err := redisstore.Dial(ctx, a.Config.RedisAddr, redisstore.Options{
		Validator: validator,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rs.Close)
	return rs, nil
}

// Mount opens the dashboard feed and registers menu entries when a builder
// was supplied.
func (a *App) Mount(ctx context.Context) error {
	a.Dashboard.Mount(ctx)
	if a.Navigation.HasBuilder() {
		if err := a.Navigation.Bootstrap(ctx); err != nil {
			return fmt.Errorf("triage: navigation: %w", err)
		}
	}
	a.logger.Info("triage.app.mounted", "collection", a.Config.Collection, "api_base", a.Config.APIBase)
	return nil
}

// RegisterRoutes mounts the application on a go-router router.
func RegisterRoutes[T any](app *App, r router.Router[T]) error {
	if app == nil {
		return errors.New("triage: app is required")
	}
	return gorouter.Register(gorouter.Config[T]{
		Router:     r,
		Controller: app.Controller,
		API:        app.API,
		Hub:        app.Hub,
		Navigation: app.Navigation,
		BasePath:   "/admin",
	})
}

// Mux exposes the JSON API on a plain net/http mux under prefix. Every
// route resolves its caller from the bearer token or session cookie.
func (a *App) Mux(prefix string) *http.ServeMux {
	prefix = strings.TrimRight(prefix, "/")
	h := a.Handlers
	open := func(fn http.HandlerFunc) http.Handler {
		return h.Authenticate(fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return h.Authenticate(h.RequireScreen(core.ScreenAdmin, fn))
	}
	mux := http.NewServeMux()
	mux.Handle("GET "+prefix+"/view", admin(h.HandleView))
	mux.Handle("POST "+prefix+"/filter", admin(h.HandleFilter))
	mux.Handle("POST "+prefix+"/sort", admin(h.HandleSort))
	mux.Handle("GET "+prefix+"/stream", admin(h.HandleStream))
	mux.Handle("GET "+prefix+"/ws", admin(h.HandleWebSocket))
	mux.Handle("POST "+prefix+"/complaints", open(h.HandleSubmit))
	mux.Handle("POST "+prefix+"/auth/login", open(h.HandleLogin))
	mux.Handle("POST "+prefix+"/auth/signup", open(h.HandleSignup))
	mux.Handle("POST "+prefix+"/auth/provider", open(h.HandleProviderLogin))
	mux.Handle("POST "+prefix+"/auth/profile", open(h.HandleCompleteProfile))
	mux.Handle("POST "+prefix+"/auth/logout", open(h.HandleLogout))
	return mux
}

// Close tears the application down, newest component first.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
