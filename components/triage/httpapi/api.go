package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-triage/components/triage"
	"github.com/goliatone/go-triage/components/triage/commands"
	"github.com/goliatone/go-triage/components/triage/queries"
)

// SessionCookie carries the session token between browser requests.
const SessionCookie = "triage_session"

// VisitorResolver turns a session token into the visitor making a request.
type VisitorResolver interface {
	Resolve(ctx context.Context, token string) *triage.Visitor
}

// Handlers exposes HTTP endpoints backed by shared commands and queries.
type Handlers struct {
	Login           gocommand.Commander[commands.LoginInput]
	Signup          gocommand.Commander[commands.SignupInput]
	ProviderLogin   gocommand.Commander[commands.ProviderLoginInput]
	CompleteProfile gocommand.Commander[commands.CompleteProfileInput]
	Logout          gocommand.Commander[commands.LogoutInput]
	Submit          gocommand.Commander[commands.SubmitComplaintInput]
	Filter          gocommand.Commander[commands.SetFilterInput]
	Sort            gocommand.Commander[commands.ToggleSortInput]
	Apply           gocommand.Commander[commands.ApplyStateInput]
	View            gocommand.Querier[queries.ViewInput, triage.View]
	Route           gocommand.Querier[queries.RouteInput, triage.Decision]
	Visitors        VisitorResolver
	Hub             *triage.SnapshotHub
}

// SubmitRequest is the body accepted by HandleSubmit.
type SubmitRequest struct {
	Description string `json:"description"`
}

// CredentialsRequest is the body accepted by the login and signup handlers.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

// AuthResponse is returned by the sign-in style handlers. Token is the
// bearer credential for later requests; it is also set as SessionCookie.
type AuthResponse struct {
	Session triage.Session       `json:"session"`
	Token   string               `json:"token,omitempty"`
	Result  *triage.SignupResult `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
	Kind    triage.ErrorKind     `json:"kind,omitempty"`
}

// HandleView responds with the derived view for the query's controls.
func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	state := StateFromParams(r.URL.Query().Get)
	view, err := h.View.Query(r.Context(), queries.ViewInput{State: &state})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSubmit relays a complaint on behalf of the current visitor.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var result triage.AnalysisResult
	input := commands.SubmitComplaintInput{
		Description: payload.Description,
		Submitter:   h.submitter(r.Context()),
		OnResult:    func(r triage.AnalysisResult) { result = r },
	}
	if err := h.Submit.Execute(r.Context(), input); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// HandleFilter updates one filter control of the mounted dashboard.
func (h *Handlers) HandleFilter(w http.ResponseWriter, r *http.Request) {
	var payload commands.SetFilterInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Filter.Execute(r.Context(), payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSort toggles the sort of the mounted dashboard.
func (h *Handlers) HandleSort(w http.ResponseWriter, r *http.Request) {
	var payload commands.ToggleSortInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Sort.Execute(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogin signs in with email and password.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var payload CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Login.Execute(r.Context(), commands.LoginInput{Email: payload.Email, Password: payload.Password}); err != nil {
		writeError(w, err)
		return
	}
	h.writeGrant(w, r, http.StatusAccepted, AuthResponse{})
}

// HandleSignup creates an account and reports both signup steps.
func (h *Handlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var payload CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var result triage.SignupResult
	err := h.Signup.Execute(r.Context(), commands.SignupInput{
		Email:    payload.Email,
		Password: payload.Password,
		Username: payload.Username,
		OnResult: func(r triage.SignupResult) { result = r },
	})
	if err != nil {
		h.writeGrant(w, r, StatusFor(err), AuthResponse{Result: &result, Error: err.Error(), Kind: triage.KindOf(err)})
		return
	}
	h.writeGrant(w, r, http.StatusCreated, AuthResponse{Result: &result})
}

// HandleProviderLogin runs the external sign-in flow.
func (h *Handlers) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	if err := h.ProviderLogin.Execute(r.Context(), commands.ProviderLoginInput{}); err != nil {
		writeError(w, err)
		return
	}
	h.writeGrant(w, r, http.StatusAccepted, AuthResponse{})
}

// HandleCompleteProfile sets the display name and refreshes the session.
func (h *Handlers) HandleCompleteProfile(w http.ResponseWriter, r *http.Request) {
	var payload commands.CompleteProfileInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.CompleteProfile.Execute(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	h.writeGrant(w, r, http.StatusOK, AuthResponse{})
}

// HandleLogout signs the visitor out and clears the session cookie.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Logout.Execute(r.Context(), commands.LogoutInput{}); err != nil {
		writeError(w, err)
		return
	}
	setSessionCookie(w, r, "")
	w.WriteHeader(http.StatusNoContent)
}

// HandleStream streams snapshots as Server-Sent Events.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}
	h.Hub.ServeSSE(w, r)
}

// HandleWebSocket streams snapshots over a WebSocket.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}
	h.Hub.ServeWebSocket(w, r)
}

// Authenticate resolves the request's session token, from the
// Authorization header or SessionCookie, into a visitor on the request
// context. Missing or invalid tokens yield an anonymous visitor.
func (h *Handlers) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cookie string
		if c, err := r.Cookie(SessionCookie); err == nil {
			cookie = c.Value
		}
		token := BearerToken(r.Header.Get("Authorization"), cookie)
		next.ServeHTTP(w, r.WithContext(h.visit(r.Context(), token)))
	})
}

// RequireScreen gates next behind the guard decision for screen. Loading
// sessions get 503, redirects become 303 See Other.
func (h *Handlers) RequireScreen(screen string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := h.Route.Query(r.Context(), queries.RouteInput{Screen: screen})
		if err != nil {
			writeError(w, err)
			return
		}
		switch decision.Kind {
		case triage.DecisionLoading:
			w.Header().Set("Retry-After", "1")
			http.Error(w, "session loading", http.StatusServiceUnavailable)
		case triage.DecisionRedirect:
			http.Redirect(w, r, decision.Path, http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (h *Handlers) visit(ctx context.Context, token string) context.Context {
	visitor := triage.AnonymousVisitor()
	if h.Visitors != nil {
		visitor = h.Visitors.Resolve(ctx, token)
	}
	return triage.WithVisitor(ctx, visitor)
}

func (h *Handlers) submitter(ctx context.Context) *triage.Identity {
	return triage.SessionFrom(ctx).Identity
}

// writeGrant responds with the visitor's session and, when a new token was
// granted during the request, sets it as the session cookie.
func (h *Handlers) writeGrant(w http.ResponseWriter, r *http.Request, status int, resp AuthResponse) {
	if visitor, ok := triage.VisitorFrom(r.Context()); ok {
		resp.Session = visitor.Session()
		if visitor.Granted() {
			resp.Token = visitor.Token()
			setSessionCookie(w, r, resp.Token)
		}
	} else {
		resp.Session = triage.Session{State: triage.StateAnonymous}
	}
	writeJSON(w, status, resp)
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	cookie := &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		cookie.MaxAge = -1
	}
	http.SetCookie(w, cookie)
}

// BearerToken picks the session token from an Authorization header value,
// falling back to the session cookie value.
func BearerToken(authorization, cookie string) string {
	const prefix = "bearer "
	if len(authorization) > len(prefix) && strings.EqualFold(authorization[:len(prefix)], prefix) {
		return strings.TrimSpace(authorization[len(prefix):])
	}
	return cookie
}

// HasStateParams reports whether any control parameter is present.
func HasStateParams(get func(string) string) bool {
	for _, name := range []string{"search", "urgency", "category", "sort", "dir"} {
		if get(name) != "" {
			return true
		}
	}
	return false
}

// StateFromParams reads search, urgency, category, sort and dir parameters
// on top of the default controls.
func StateFromParams(get func(string) string) triage.FilterSortState {
	state := triage.DefaultFilterSortState()
	state.Search = get("search")
	if v := strings.TrimSpace(get("urgency")); v != "" {
		state.Urgency = v
	}
	if v := strings.TrimSpace(get("category")); v != "" {
		state.Category = v
	}
	if v := get("sort"); v != "" {
		state.SortKey = triage.ParseSortKey(v)
	}
	state.Direction = triage.ParseDirection(get("dir"), state.Direction)
	return state
}

// StatusFor maps a triage error onto an HTTP status.
func StatusFor(err error) int {
	switch triage.KindOf(err) {
	case triage.KindValidation:
		return http.StatusBadRequest
	case triage.KindInvalidCredential, triage.KindNotAuthenticated:
		return http.StatusUnauthorized
	case triage.KindPopupClosed:
		return http.StatusConflict
	case triage.KindPartialFailure:
		return http.StatusMultiStatus
	case triage.KindSubmissionFailed, triage.KindNetwork:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), map[string]any{"error": err.Error(), "kind": triage.KindOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
