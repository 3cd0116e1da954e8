package gorouter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	router "github.com/goliatone/go-router"
	"github.com/gorilla/websocket"

	"github.com/goliatone/go-triage/components/triage"
	"github.com/goliatone/go-triage/components/triage/commands"
	"github.com/goliatone/go-triage/components/triage/httpapi"
	"github.com/goliatone/go-triage/components/triage/queries"
	"github.com/goliatone/go-triage/pkg/navigation"
)

// Config wires go-router with the triage controller, API and live hub.
type Config[T any] struct {
	Router     router.Router[T]
	Controller *triage.Controller
	API        httpapi.Executor
	Hub        *triage.SnapshotHub
	Navigation *navigation.Navigation
	BasePath   string
	Routes     RouteConfig
}

// RouteConfig customizes the relative paths used for triage endpoints.
type RouteConfig struct {
	HTML            string
	View            string
	Charts          string
	Submit          string
	Filter          string
	Sort            string
	Route           string
	Nav             string
	Login           string
	Signup          string
	ProviderLogin   string
	Logout          string
	CompleteProfile string
	WebSocket       string
}

// Register mounts the triage routes (HTML, JSON, auth, WebSocket) on a go-router router.
func Register[T any](cfg Config[T]) error {
	if cfg.Router == nil {
		return errors.New("gorouter: router is required")
	}
	if cfg.Controller == nil {
		return errors.New("gorouter: controller is required")
	}
	if cfg.API == nil {
		return errors.New("gorouter: api executor is required")
	}
	routes := defaultRouteConfig(cfg.Routes)
	base := cfg.BasePath
	if base == "" {
		base = "/admin"
	}
	group := cfg.Router.Group(base)
	api := cfg.API

	group.Get(routes.HTML, visit(api, func(ctx router.Context) error {
		if handled, err := guard(ctx, api, triage.ScreenAdmin); handled {
			return err
		}
		query := func(name string) string { return ctx.Query(name) }
		if httpapi.HasStateParams(query) {
			state := httpapi.StateFromParams(query)
			if err := api.ApplyState(ctx.Context(), commands.ApplyStateInput{State: state}); err != nil {
				return respondError(ctx, http.StatusBadRequest, err)
			}
		}
		var buf bytes.Buffer
		if err := cfg.Controller.RenderTemplate(ctx.Context(), api.Session(ctx.Context()), &buf); err != nil {
			return respondError(ctx, http.StatusInternalServerError, err)
		}
		ctx.SetHeader("Content-Type", "text/html; charset=utf-8")
		return ctx.Send(buf.Bytes())
	}))

	group.Get(routes.View, visit(api, func(ctx router.Context) error {
		if handled, err := guard(ctx, api, triage.ScreenAdmin); handled {
			return err
		}
		state := httpapi.StateFromParams(func(name string) string { return ctx.Query(name) })
		view, err := api.View(ctx.Context(), queries.ViewInput{State: &state})
		if err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, view)
	}))

	group.Get(routes.Charts, visit(api, func(ctx router.Context) error {
		if handled, err := guard(ctx, api, triage.ScreenAdmin); handled {
			return err
		}
		charts, err := cfg.Controller.Charts(ctx.Context())
		if err != nil {
			return respondError(ctx, http.StatusInternalServerError, err)
		}
		return ctx.JSON(http.StatusOK, charts)
	}))

	group.Get(routes.Route, visit(api, func(ctx router.Context) error {
		decision, err := api.Route(ctx.Context(), queries.RouteInput{Screen: ctx.Param("screen")})
		if err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, decision)
	}))

	if cfg.Navigation != nil {
		group.Get(routes.Nav, visit(api, func(ctx router.Context) error {
			return ctx.JSON(http.StatusOK, cfg.Navigation.Build(api.Session(ctx.Context())))
		}))
	}

	registerSubmit(group, api, routes)
	registerControls(group, api, routes)
	registerAuth(group, api, routes)

	if cfg.Hub != nil {
		registerWebSocket(group, api, cfg.Hub, routes.WebSocket)
	}
	return nil
}

func registerSubmit[T any](r router.Router[T], api httpapi.Executor, routes RouteConfig) {
	r.Post(routes.Submit, visit(api, func(ctx router.Context) error {
		var payload httpapi.SubmitRequest
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		var result triage.AnalysisResult
		err := api.Submit(ctx.Context(), commands.SubmitComplaintInput{
			Description: payload.Description,
			OnResult:    func(r triage.AnalysisResult) { result = r },
		})
		if err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return ctx.JSON(http.StatusCreated, result)
	}))
}

func registerControls[T any](r router.Router[T], api httpapi.Executor, routes RouteConfig) {
	r.Post(routes.Filter, visit(api, func(ctx router.Context) error {
		if handled, err := guard(ctx, api, triage.ScreenAdmin); handled {
			return err
		}
		var payload commands.SetFilterInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		if err := api.SetFilter(ctx.Context(), payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		view, err := api.View(ctx.Context(), queries.ViewInput{})
		if err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, view)
	}))

	r.Post(routes.Sort, visit(api, func(ctx router.Context) error {
		if handled, err := guard(ctx, api, triage.ScreenAdmin); handled {
			return err
		}
		var payload commands.ToggleSortInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		if err := api.ToggleSort(ctx.Context(), payload); err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		view, err := api.View(ctx.Context(), queries.ViewInput{})
		if err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, view)
	}))
}

func registerAuth[T any](r router.Router[T], api httpapi.Executor, routes RouteConfig) {
	r.Post(routes.Login, visit(api, func(ctx router.Context) error {
		var payload httpapi.CredentialsRequest
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		if err := api.Login(ctx.Context(), commands.LoginInput{Email: payload.Email, Password: payload.Password}); err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return respondGrant(ctx, http.StatusAccepted, httpapi.AuthResponse{})
	}))

	r.Post(routes.Signup, visit(api, func(ctx router.Context) error {
		var payload httpapi.CredentialsRequest
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		var result triage.SignupResult
		err := api.Signup(ctx.Context(), commands.SignupInput{
			Email:    payload.Email,
			Password: payload.Password,
			Username: payload.Username,
			OnResult: func(r triage.SignupResult) { result = r },
		})
		if err != nil {
			return respondGrant(ctx, httpapi.StatusFor(err), httpapi.AuthResponse{
				Result: &result,
				Error:  err.Error(),
				Kind:   triage.KindOf(err),
			})
		}
		return respondGrant(ctx, http.StatusCreated, httpapi.AuthResponse{Result: &result})
	}))

	r.Post(routes.ProviderLogin, visit(api, func(ctx router.Context) error {
		if err := api.ProviderLogin(ctx.Context()); err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return respondGrant(ctx, http.StatusAccepted, httpapi.AuthResponse{})
	}))

	r.Post(routes.CompleteProfile, visit(api, func(ctx router.Context) error {
		var payload commands.CompleteProfileInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		if err := api.CompleteProfile(ctx.Context(), payload); err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return respondGrant(ctx, http.StatusOK, httpapi.AuthResponse{})
	}))

	r.Post(routes.Logout, visit(api, func(ctx router.Context) error {
		if err := api.Logout(ctx.Context()); err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return respondGrant(ctx, http.StatusOK, httpapi.AuthResponse{})
	}))
}

const upgradeTokenKey = "triage_token"

func registerWebSocket[T any](r router.Router[T], api httpapi.Executor, hub *triage.SnapshotHub, path string) {
	cfg := router.DefaultWebSocketConfig()
	cfg.OnPreUpgrade = func(ctx router.Context) (router.UpgradeData, error) {
		return router.UpgradeData{upgradeTokenKey: requestToken(ctx)}, nil
	}
	r.WebSocket(path, cfg, func(ws router.WebSocketContext) error {
		token, _ := router.GetUpgradeDataWithDefault(ws, upgradeTokenKey, "").(string)
		ctx := api.Authenticate(ws.Context(), token)
		decision, err := api.Route(ctx, queries.RouteInput{Screen: triage.ScreenAdmin})
		if err != nil {
			return ws.CloseWithStatus(websocket.CloseInternalServerErr, err.Error())
		}
		switch decision.Kind {
		case triage.DecisionLoading:
			return ws.CloseWithStatus(websocket.CloseTryAgainLater, "session loading")
		case triage.DecisionRedirect:
			return ws.CloseWithStatus(websocket.ClosePolicyViolation, decision.Path)
		}

		snapshots, cancel := hub.Subscribe()
		defer cancel()
		for {
			select {
			case snapshot, ok := <-snapshots:
				if !ok {
					return nil
				}
				if err := ws.WriteJSON(snapshot); err != nil {
					return err
				}
			case <-ctx.Done():
				return ws.Close()
			}
		}
	})
}

// visit resolves the caller's session token into the request context
// before fn runs.
func visit(api httpapi.Executor, fn func(router.Context) error) router.HandlerFunc {
	return router.WrapHandler(func(ctx router.Context) error {
		ctx.SetContext(api.Authenticate(ctx.Context(), requestToken(ctx)))
		return fn(ctx)
	})
}

func requestToken(ctx router.Context) string {
	return httpapi.BearerToken(ctx.Header("Authorization"), ctx.Cookies(httpapi.SessionCookie))
}

// respondGrant writes resp with the caller's session, setting the session
// cookie when a token was granted or revoked during the request.
func respondGrant(ctx router.Context, status int, resp httpapi.AuthResponse) error {
	resp.Session = triage.SessionFrom(ctx.Context())
	if visitor, ok := triage.VisitorFrom(ctx.Context()); ok && visitor.Granted() {
		resp.Token = visitor.Token()
		cookie := &router.Cookie{
			Name:     httpapi.SessionCookie,
			Value:    resp.Token,
			Path:     "/",
			HTTPOnly: true,
			SameSite: router.CookieSameSiteLaxMode,
		}
		if resp.Token == "" {
			cookie.MaxAge = -1
		}
		ctx.Cookie(cookie)
	}
	return ctx.JSON(status, resp)
}

// guard applies the route decision for screen. It reports whether the
// response was already written.
func guard(ctx router.Context, api httpapi.Executor, screen string) (bool, error) {
	decision, err := api.Route(ctx.Context(), queries.RouteInput{Screen: screen})
	if err != nil {
		return true, respondError(ctx, httpapi.StatusFor(err), err)
	}
	switch decision.Kind {
	case triage.DecisionLoading:
		ctx.SetHeader("Retry-After", "1")
		return true, ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "loading"})
	case triage.DecisionRedirect:
		return true, ctx.Redirect(decision.Path, http.StatusSeeOther)
	}
	return false, nil
}

func respondError(ctx router.Context, status int, err error) error {
	return ctx.JSON(status, map[string]any{"error": err.Error(), "kind": triage.KindOf(err)})
}

func defaultRouteConfig(routes RouteConfig) RouteConfig {
	if routes.HTML == "" {
		routes.HTML = "/triage"
	}
	if routes.View == "" {
		routes.View = "/triage/_view"
	}
	if routes.Charts == "" {
		routes.Charts = "/triage/_charts"
	}
	if routes.Submit == "" {
		routes.Submit = "/complaints"
	}
	if routes.Filter == "" {
		routes.Filter = "/triage/filter"
	}
	if routes.Sort == "" {
		routes.Sort = "/triage/sort"
	}
	if routes.Route == "" {
		routes.Route = "/route/:screen"
	}
	if routes.Nav == "" {
		routes.Nav = "/nav"
	}
	if routes.Login == "" {
		routes.Login = "/auth/login"
	}
	if routes.Signup == "" {
		routes.Signup = "/auth/signup"
	}
	if routes.ProviderLogin == "" {
		routes.ProviderLogin = "/auth/provider"
	}
	if routes.Logout == "" {
		routes.Logout = "/auth/logout"
	}
	if routes.CompleteProfile == "" {
		routes.CompleteProfile = "/auth/profile"
	}
	if routes.WebSocket == "" {
		routes.WebSocket = "/triage/ws"
	}
	return routes
}
