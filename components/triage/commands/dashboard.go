package commands

import (
	"context"
	"errors"
	"fmt"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-triage/components/triage"
)

// Controls is the slice of triage.Dashboard the filter commands drive.
type Controls interface {
	SetSearch(term string) triage.FilterSortState
	FilterUrgency(value string) triage.FilterSortState
	FilterCategory(value string) triage.FilterSortState
	Sort(key triage.SortKey) triage.FilterSortState
	Apply(state triage.FilterSortState) triage.FilterSortState
}

// scoper is implemented by controls that keep state per visitor.
type scoper interface {
	Scope(ctx context.Context) triage.ViewControls
}

// scoped picks the calling visitor's controls when controls support it.
func scoped(ctx context.Context, controls Controls) Controls {
	if s, ok := controls.(scoper); ok {
		return s.Scope(ctx)
	}
	return controls
}

// Filter fields accepted by SetFilterCommand.
const (
	FilterSearch   = "search"
	FilterUrgency  = "urgency"
	FilterCategory = "category"
)

// SetFilterInput updates one filter control.
type SetFilterInput struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// SetFilterCommand applies search, urgency or category filters.
type SetFilterCommand struct {
	controls  Controls
	telemetry Telemetry
}

// NewSetFilterCommand creates the command.
func NewSetFilterCommand(controls Controls, telemetry Telemetry) *SetFilterCommand {
	return &SetFilterCommand{controls: controls, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[SetFilterInput] = (*SetFilterCommand)(nil)

// Execute routes the value to the matching control.
func (c *SetFilterCommand) Execute(ctx context.Context, msg SetFilterInput) error {
	if c.controls == nil {
		return errors.New("filter command requires a dashboard")
	}
	controls := scoped(ctx, c.controls)
	switch msg.Field {
	case FilterSearch:
		controls.SetSearch(msg.Value)
	case FilterUrgency:
		controls.FilterUrgency(msg.Value)
	case FilterCategory:
		controls.FilterCategory(msg.Value)
	default:
		return fmt.Errorf("unknown filter field %q", msg.Field)
	}
	c.telemetry.Record(ctx, "triage.command.filter", map[string]any{"field": msg.Field, "value": msg.Value})
	return nil
}

// ToggleSortInput names the column clicked.
type ToggleSortInput struct {
	Key triage.SortKey `json:"key"`
}

// ToggleSortCommand flips or switches the active sort.
type ToggleSortCommand struct {
	controls  Controls
	telemetry Telemetry
}

// NewToggleSortCommand creates the command.
func NewToggleSortCommand(controls Controls, telemetry Telemetry) *ToggleSortCommand {
	return &ToggleSortCommand{controls: controls, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ToggleSortInput] = (*ToggleSortCommand)(nil)

// Execute toggles the sort key.
func (c *ToggleSortCommand) Execute(ctx context.Context, msg ToggleSortInput) error {
	if c.controls == nil {
		return errors.New("sort command requires a dashboard")
	}
	state := scoped(ctx, c.controls).Sort(msg.Key)
	c.telemetry.Record(ctx, "triage.command.sort", map[string]any{
		"key":       string(state.SortKey),
		"direction": string(state.Direction),
	})
	return nil
}

// ApplyStateInput replaces every control at once, as a submitted filter form does.
type ApplyStateInput struct {
	State triage.FilterSortState `json:"state"`
	// OnResult receives the normalized controls.
	OnResult func(triage.FilterSortState) `json:"-"`
}

// ApplyStateCommand replaces the dashboard controls wholesale.
type ApplyStateCommand struct {
	controls  Controls
	telemetry Telemetry
}

// NewApplyStateCommand creates the command.
func NewApplyStateCommand(controls Controls, telemetry Telemetry) *ApplyStateCommand {
	return &ApplyStateCommand{controls: controls, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ApplyStateInput] = (*ApplyStateCommand)(nil)

// Execute applies the controls.
func (c *ApplyStateCommand) Execute(ctx context.Context, msg ApplyStateInput) error {
	if c.controls == nil {
		return errors.New("apply command requires a dashboard")
	}
	state := scoped(ctx, c.controls).Apply(msg.State)
	if msg.OnResult != nil {
		msg.OnResult(state)
	}
	c.telemetry.Record(ctx, "triage.command.apply", map[string]any{
		"search":    state.Search,
		"urgency":   state.Urgency,
		"category":  state.Category,
		"key":       string(state.SortKey),
		"direction": string(state.Direction),
	})
	return nil
}
