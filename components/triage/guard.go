package triage

// Screen describes a navigable destination and its access requirements.
type Screen struct {
	Name          string `json:"name" yaml:"name"`
	Path          string `json:"path" yaml:"path"`
	RequiresAuth  bool   `json:"requires_auth" yaml:"requires_auth"`
	RequiresAdmin bool   `json:"requires_admin" yaml:"requires_admin"`
}

// Built-in screen names.
const (
	ScreenLogin   = "login"
	ScreenProfile = "set-username"
	ScreenHome    = "home"
	ScreenAdmin   = "admin"
)

// GuardRoutes names the redirect targets used by RouteGuard.
type GuardRoutes struct {
	Unauthenticated string `yaml:"unauthenticated" json:"unauthenticated"`
	SignIn          string `yaml:"sign_in" json:"sign_in"`
	Default         string `yaml:"default" json:"default"`
	Profile         string `yaml:"profile" json:"profile"`
	Admin           string `yaml:"admin" json:"admin"`
}

// DefaultGuardRoutes mirrors the paths of the reference screens.
func DefaultGuardRoutes() GuardRoutes {
	return GuardRoutes{
		Unauthenticated: "/login",
		SignIn:          "/login",
		Default:         "/",
		Profile:         "/set-username",
		Admin:           "/admin",
	}
}

func (r GuardRoutes) withDefaults() GuardRoutes {
	def := DefaultGuardRoutes()
	if r.Unauthenticated == "" {
		r.Unauthenticated = def.Unauthenticated
	}
	if r.SignIn == "" {
		r.SignIn = def.SignIn
	}
	if r.Default == "" {
		r.Default = def.Default
	}
	if r.Profile == "" {
		r.Profile = def.Profile
	}
	if r.Admin == "" {
		r.Admin = def.Admin
	}
	return r
}

// DecisionKind is the outcome class of a guard decision.
type DecisionKind string

const (
	DecisionLoading  DecisionKind = "loading"
	DecisionRender   DecisionKind = "render"
	DecisionRedirect DecisionKind = "redirect"
)

// Decision is the guard's verdict for one navigation attempt. Path is the
// redirect target for DecisionRedirect and the screen path for DecisionRender.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Screen string       `json:"screen"`
	Path   string       `json:"path,omitempty"`
}

// RouteGuard maps a session and target screen onto a navigation decision.
// It holds no state beyond its route table.
type RouteGuard struct {
	routes  GuardRoutes
	screens map[string]Screen
}

// NewRouteGuard builds a guard with the built-in screens.
func NewRouteGuard(routes GuardRoutes) *RouteGuard {
	routes = routes.withDefaults()
	g := &RouteGuard{routes: routes, screens: make(map[string]Screen)}
	g.Register(Screen{Name: ScreenLogin, Path: routes.SignIn})
	g.Register(Screen{Name: ScreenProfile, Path: routes.Profile})
	g.Register(Screen{Name: ScreenHome, Path: routes.Default, RequiresAuth: true})
	g.Register(Screen{Name: ScreenAdmin, Path: routes.Admin, RequiresAuth: true, RequiresAdmin: true})
	return g
}

// Register adds or replaces a screen.
func (g *RouteGuard) Register(screen Screen) {
	if screen.RequiresAdmin {
		screen.RequiresAuth = true
	}
	g.screens[screen.Name] = screen
}

// Screen looks up a registered screen by name.
func (g *RouteGuard) Screen(name string) (Screen, bool) {
	screen, ok := g.screens[name]
	return screen, ok
}

// Routes returns the guard's redirect table.
func (g *RouteGuard) Routes() GuardRoutes {
	return g.routes
}

// Decide evaluates the access rules in order; the first match wins.
func (g *RouteGuard) Decide(session Session, target Screen) Decision {
	requiresAuth := target.RequiresAuth || target.RequiresAdmin
	anonymous := session.Identity == nil || session.State == StateAnonymous

	switch {
	case session.Loading():
		return Decision{Kind: DecisionLoading, Screen: target.Name}
	case target.RequiresAdmin && !session.IsAdmin && anonymous:
		return g.redirect(target, g.routes.Unauthenticated)
	case requiresAuth && anonymous:
		return g.redirect(target, g.routes.SignIn)
	case requiresAuth && session.State == StateAuthenticatedIncomplete:
		return g.redirect(target, g.routes.Profile)
	case target.RequiresAdmin && !session.IsAdmin:
		return g.redirect(target, g.routes.Default)
	default:
		return Decision{Kind: DecisionRender, Screen: target.Name, Path: target.Path}
	}
}

// DecideNamed resolves name against the registered screens. Unknown names are
// treated as public screens.
func (g *RouteGuard) DecideNamed(session Session, name string) Decision {
	screen, ok := g.screens[name]
	if !ok {
		screen = Screen{Name: name}
	}
	return g.Decide(session, screen)
}

func (g *RouteGuard) redirect(target Screen, path string) Decision {
	return Decision{Kind: DecisionRedirect, Screen: target.Name, Path: path}
}
