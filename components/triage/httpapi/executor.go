package httpapi

import (
	"context"
	"errors"

	"github.com/goliatone/go-triage/components/triage"
	"github.com/goliatone/go-triage/components/triage/commands"
	"github.com/goliatone/go-triage/components/triage/queries"
)

// Executor is the transport-neutral surface other routers mount.
type Executor interface {
	Login(ctx context.Context, input commands.LoginInput) error
	Signup(ctx context.Context, input commands.SignupInput) error
	ProviderLogin(ctx context.Context) error
	CompleteProfile(ctx context.Context, input commands.CompleteProfileInput) error
	Logout(ctx context.Context) error
	Submit(ctx context.Context, input commands.SubmitComplaintInput) error
	SetFilter(ctx context.Context, input commands.SetFilterInput) error
	ToggleSort(ctx context.Context, input commands.ToggleSortInput) error
	ApplyState(ctx context.Context, input commands.ApplyStateInput) error
	View(ctx context.Context, input queries.ViewInput) (triage.View, error)
	Route(ctx context.Context, input queries.RouteInput) (triage.Decision, error)
	// Authenticate returns ctx carrying the visitor named by token.
	Authenticate(ctx context.Context, token string) context.Context
	// Session returns the session of the visitor carried by ctx.
	Session(ctx context.Context) triage.Session
}

// NewExecutor adapts the handler set's commands and queries into an Executor.
func NewExecutor(h *Handlers) Executor {
	return commandExecutor{h: h}
}

var errNotConfigured = errors.New("httpapi: operation not configured")

type commandExecutor struct {
	h *Handlers
}

func (e commandExecutor) Login(ctx context.Context, input commands.LoginInput) error {
	if e.h.Login == nil {
		return errNotConfigured
	}
	return e.h.Login.Execute(ctx, input)
}

func (e commandExecutor) Signup(ctx context.Context, input commands.SignupInput) error {
	if e.h.Signup == nil {
		return errNotConfigured
	}
	return e.h.Signup.Execute(ctx, input)
}

func (e commandExecutor) ProviderLogin(ctx context.Context) error {
	if e.h.ProviderLogin == nil {
		return errNotConfigured
	}
	return e.h.ProviderLogin.Execute(ctx, commands.ProviderLoginInput{})
}

func (e commandExecutor) CompleteProfile(ctx context.Context, input commands.CompleteProfileInput) error {
	if e.h.CompleteProfile == nil {
		return errNotConfigured
	}
	return e.h.CompleteProfile.Execute(ctx, input)
}

func (e commandExecutor) Logout(ctx context.Context) error {
	if e.h.Logout == nil {
		return errNotConfigured
	}
	return e.h.Logout.Execute(ctx, commands.LogoutInput{})
}

func (e commandExecutor) Submit(ctx context.Context, input commands.SubmitComplaintInput) error {
	if e.h.Submit == nil {
		return errNotConfigured
	}
	if input.Submitter == nil {
		input.Submitter = e.h.submitter(ctx)
	}
	return e.h.Submit.Execute(ctx, input)
}

func (e commandExecutor) SetFilter(ctx context.Context, input commands.SetFilterInput) error {
	if e.h.Filter == nil {
		return errNotConfigured
	}
	return e.h.Filter.Execute(ctx, input)
}

func (e commandExecutor) ToggleSort(ctx context.Context, input commands.ToggleSortInput) error {
	if e.h.Sort == nil {
		return errNotConfigured
	}
	return e.h.Sort.Execute(ctx, input)
}

func (e commandExecutor) ApplyState(ctx context.Context, input commands.ApplyStateInput) error {
	if e.h.Apply == nil {
		return errNotConfigured
	}
	return e.h.Apply.Execute(ctx, input)
}

func (e commandExecutor) View(ctx context.Context, input queries.ViewInput) (triage.View, error) {
	if e.h.View == nil {
		return triage.View{}, errNotConfigured
	}
	return e.h.View.Query(ctx, input)
}

func (e commandExecutor) Route(ctx context.Context, input queries.RouteInput) (triage.Decision, error) {
	if e.h.Route == nil {
		return triage.Decision{}, errNotConfigured
	}
	return e.h.Route.Query(ctx, input)
}

func (e commandExecutor) Authenticate(ctx context.Context, token string) context.Context {
	return e.h.visit(ctx, token)
}

func (e commandExecutor) Session(ctx context.Context) triage.Session {
	return triage.SessionFrom(ctx)
}
