package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ettle/strcase"
	"github.com/gofiber/fiber/v2"
	router "github.com/goliatone/go-router"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	core "github.com/goliatone/go-triage/components/triage"
	"github.com/goliatone/go-triage/pkg/triage"
)

type cli struct {
	Globals

	Serve  serveCmd  `cmd:"" help:"Serve the admin dashboard and complaint API."`
	Submit submitCmd `cmd:"" help:"Submit a complaint to the classification backend."`
	View   viewCmd   `cmd:"" help:"Print the filtered and sorted complaint table."`
	Seed   seedCmd   `cmd:"" help:"Load complaints from a YAML or JSON file into the store."`
	Clear  clearCmd  `cmd:"" help:"Delete every complaint in the configured collection."`
}

// Globals are flags shared by every command.
type Globals struct {
	Config   string `type:"path" env:"TRIAGE_CONFIG" help:"Optional YAML config file."`
	EnvFile  string `name:"env-file" default:".env" help:"Dotenv file loaded before the config (missing files are ignored)."`
	LogLevel string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Minimum log level."`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Description("Operator tooling for the complaint triage dashboard."),
		kong.UsageOnError(),
		kong.Bind(&c.Globals),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func (g *Globals) load() (triage.Config, *slog.Logger, error) {
	if g.EnvFile != "" {
		if err := godotenv.Load(g.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return triage.Config{}, nil, fmt.Errorf("triagectl: load %s: %w", g.EnvFile, err)
		}
	}
	cfg, err := triage.LoadConfig(g.Config)
	if err != nil {
		return triage.Config{}, nil, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.LogLevel)); err != nil {
		return triage.Config{}, nil, fmt.Errorf("triagectl: log level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

type serveCmd struct {
	Listen   string `help:"Address to bind (overrides config)."`
	Fixtures string `type:"existingfile" help:"Complaints loaded into the store before serving."`
}

func (cmd *serveCmd) Run(ctx context.Context, g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	if cmd.Listen != "" {
		cfg.Listen = cmd.Listen
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := triage.New(ctx, triage.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer app.Close()

	if cmd.Fixtures != "" {
		n, err := seedFile(ctx, app.Store, app.Config.Collection, cmd.Fixtures)
		if err != nil {
			return err
		}
		logger.Info("triagectl.fixtures.loaded", "count", n, "path", cmd.Fixtures)
	}
	if err := app.Mount(ctx); err != nil {
		return err
	}

	server := router.NewFiberAdapter(withHealth)
	if err := triage.RegisterRoutes(app, server.Router()); err != nil {
		return fmt.Errorf("triagectl: register routes: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(app.Config.Listen) }()
	logger.Info("triagectl.serve", "listen", app.Config.Listen, "dashboard", "/admin/triage")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func withHealth(app *fiber.App) *fiber.App {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return router.DefaultFiberOptions(app)
}

type submitCmd struct {
	Description []string      `arg:"" help:"Complaint text."`
	APIBase     string        `name:"api-base" help:"Classification endpoint base URL (overrides config)."`
	Timeout     time.Duration `default:"30s" help:"Request timeout."`
}

func (cmd *submitCmd) Run(ctx context.Context, g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	if cmd.APIBase != "" {
		cfg.APIBase = cmd.APIBase
	}
	client := core.NewSubmissionClient(core.SubmissionConfig{
		BaseURL:   cfg.APIBase,
		Logger:    logger,
		Telemetry: core.NewLogTelemetry(logger),
	})
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}
	result, err := client.Submit(ctx, strings.Join(cmd.Description, " "), nil)
	if err != nil {
		return err
	}
	return writeYAML(os.Stdout, result)
}

type viewCmd struct {
	Fixtures string `type:"existingfile" help:"Read complaints from this file instead of the configured store."`
	Search   string `help:"Case-insensitive search over summary, text and category."`
	Urgency  string `default:"All" help:"Urgency filter (High, Medium, Low or All)."`
	Category string `default:"All" help:"Category filter."`
	Sort     string `default:"created_at" help:"Sort column (urgency, category, created_at)."`
	Dir      string `default:"desc" enum:"asc,desc" help:"Sort direction."`
	Counts   bool   `help:"Print category and urgency counts instead of rows."`
}

func (cmd *viewCmd) Run(ctx context.Context, g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	var complaints []core.Complaint
	if cmd.Fixtures != "" {
		complaints, err = readFixtures(cmd.Fixtures)
	} else {
		var app *triage.App
		app, err = triage.New(ctx, triage.Options{Config: cfg, Logger: logger})
		if err != nil {
			return err
		}
		defer app.Close()
		complaints, err = app.Store.Snapshot(ctx, app.Config.Collection)
	}
	if err != nil {
		return err
	}

	view := core.Derive(core.Snapshot{Complaints: complaints, ReceivedAt: time.Now()}, cmd.state())
	if cmd.Counts {
		return writeYAML(os.Stdout, map[string]any{
			"total":    view.Total,
			"category": view.CategoryCounts,
			"urgency":  view.UrgencyCounts,
		})
	}
	return writeYAML(os.Stdout, view.Rows)
}

func (cmd *viewCmd) state() core.FilterSortState {
	state := core.DefaultFilterSortState()
	state.Search = cmd.Search
	state.Urgency = cmd.Urgency
	state.Category = cmd.Category
	state.SortKey = normalizeSortKey(cmd.Sort)
	state.Direction = core.ParseDirection(cmd.Dir, state.Direction)
	return state
}

// normalizeSortKey accepts CreatedAt, created-at and friends.
func normalizeSortKey(raw string) core.SortKey {
	return core.ParseSortKey(strcase.ToSnake(strings.TrimSpace(raw)))
}

type seedCmd struct {
	Path string `arg:"" type:"existingfile" help:"YAML or JSON list of complaints."`
}

func (cmd *seedCmd) Run(ctx context.Context, g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	app, err := triage.New(ctx, triage.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer app.Close()
	n, err := seedFile(ctx, app.Store, app.Config.Collection, cmd.Path)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✓ Loaded %d complaints into %s\n", n, app.Config.Collection)
	return nil
}

type clearCmd struct {
	Yes bool `short:"y" help:"Skip the confirmation guard."`
}

func (cmd *clearCmd) Run(ctx context.Context, g *Globals) error {
	if !cmd.Yes {
		return errors.New("triagectl: clear deletes every complaint; pass --yes to confirm")
	}
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	app, err := triage.New(ctx, triage.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer app.Close()
	n, err := app.Store.Clear(ctx, app.Config.Collection)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✓ Removed %d complaints from %s\n", n, app.Config.Collection)
	return nil
}

func seedFile(ctx context.Context, store triage.Store, collection, path string) (int, error) {
	complaints, err := readFixtures(path)
	if err != nil {
		return 0, err
	}
	for i, complaint := range complaints {
		if _, err := store.Add(ctx, collection, complaint); err != nil {
			return i, fmt.Errorf("triagectl: add %q: %w", complaint.ID, err)
		}
	}
	return len(complaints), nil
}

func readFixtures(path string) ([]core.Complaint, error) {
	file, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("triagectl: open fixtures: %w", err)
	}
	defer file.Close()
	return decodeFixtures(file)
}

func decodeFixtures(r io.Reader) ([]core.Complaint, error) {
	var complaints []core.Complaint
	if err := yaml.NewDecoder(r).Decode(&complaints); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("triagectl: decode fixtures: %w", err)
	}
	return complaints, nil
}

func writeYAML(w io.Writer, value any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("triagectl: write output: %w", err)
	}
	return nil
}
