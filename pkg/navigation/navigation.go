package navigation

import (
	"context"
	"errors"

	"github.com/goliatone/go-triage/components/triage"
)

// MenuBuilder ensures triage entries exist within a host application's menu.
type MenuBuilder interface {
	EnsureMenuItem(ctx context.Context, menuCode string, item MenuItem) error
}

// MenuItem captures link metadata.
type MenuItem struct {
	Label    string `json:"label"`
	Route    string `json:"route"`
	Icon     string `json:"icon,omitempty"`
	Position int    `json:"position"`
	// Method is set for items that submit instead of link, such as logout.
	Method string `json:"method,omitempty"`
}

// Menu is the navigation rendered for one session.
type Menu struct {
	Welcome       string     `json:"welcome,omitempty"`
	Authenticated bool       `json:"authenticated"`
	Loading       bool       `json:"loading"`
	Items         []MenuItem `json:"items"`
}

// Config customizes the menu entries.
type Config struct {
	MenuCode      string
	MenuBuilder   MenuBuilder
	HomeItem      MenuItem
	DashboardItem MenuItem
	LoginItem     MenuItem
	LogoutItem    MenuItem
	Admins        *triage.AdminPolicy
}

// Navigation builds session-aware menus.
type Navigation struct {
	cfg Config
}

// New applies defaults and returns a Navigation.
func New(cfg Config) *Navigation {
	if cfg.MenuCode == "" {
		cfg.MenuCode = "admin.main"
	}
	cfg.HomeItem = withItemDefaults(cfg.HomeItem, MenuItem{Label: "Home", Route: "/", Icon: "home", Position: 0})
	cfg.DashboardItem = withItemDefaults(cfg.DashboardItem, MenuItem{Label: "Admin Dashboard", Route: "/admin/triage", Icon: "chart", Position: 10})
	cfg.LoginItem = withItemDefaults(cfg.LoginItem, MenuItem{Label: "Login", Route: "/login", Position: 90})
	cfg.LogoutItem = withItemDefaults(cfg.LogoutItem, MenuItem{Label: "Logout", Route: "/admin/auth/logout", Position: 90, Method: "POST"})
	return &Navigation{cfg: cfg}
}

// Build returns the menu for session. The dashboard link only appears for
// the administrator; a loading session gets the home link alone.
func (n *Navigation) Build(session triage.Session) Menu {
	menu := Menu{Loading: session.Loading(), Items: []MenuItem{n.cfg.HomeItem}}
	if menu.Loading {
		return menu
	}
	if !session.Authenticated() {
		menu.Items = append(menu.Items, n.cfg.LoginItem)
		return menu
	}
	menu.Authenticated = true
	menu.Welcome = "Welcome, " + session.DisplayLabel()
	if n.isAdmin(session) {
		menu.Items = append(menu.Items, n.cfg.DashboardItem)
	}
	menu.Items = append(menu.Items, n.cfg.LogoutItem)
	return menu
}

// HasBuilder reports whether a host menu builder was configured.
func (n *Navigation) HasBuilder() bool {
	return n.cfg.MenuBuilder != nil
}

// Bootstrap seeds the dashboard entry into the host menu.
func (n *Navigation) Bootstrap(ctx context.Context) error {
	if n.cfg.MenuBuilder == nil {
		return errors.New("navigation: menu builder is required")
	}
	return n.cfg.MenuBuilder.EnsureMenuItem(ctx, n.cfg.MenuCode, n.cfg.DashboardItem)
}

func (n *Navigation) isAdmin(session triage.Session) bool {
	if n.cfg.Admins != nil {
		return n.cfg.Admins.IsAdmin(session.Identity)
	}
	return session.IsAdmin
}

func withItemDefaults(item, def MenuItem) MenuItem {
	if item.Label == "" {
		item.Label = def.Label
	}
	if item.Route == "" {
		item.Route = def.Route
	}
	if item.Icon == "" {
		item.Icon = def.Icon
	}
	if item.Position == 0 {
		item.Position = def.Position
	}
	if item.Method == "" {
		item.Method = def.Method
	}
	return item
}
