package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-triage/components/triage"
)

// Submitter sends complaints to the classification backend.
type Submitter interface {
	Submit(ctx context.Context, description string, submitter *triage.Identity) (triage.AnalysisResult, error)
}

// SubmitComplaintInput carries one complaint submission.
type SubmitComplaintInput struct {
	Description string           `json:"description"`
	Submitter   *triage.Identity `json:"-"`
	// OnResult receives the backend verdict on success.
	OnResult func(triage.AnalysisResult) `json:"-"`
}

// SubmitComplaintCommand relays a complaint to the classifier.
type SubmitComplaintCommand struct {
	client    Submitter
	telemetry Telemetry
}

// NewSubmitComplaintCommand creates the command.
func NewSubmitComplaintCommand(client Submitter, telemetry Telemetry) *SubmitComplaintCommand {
	return &SubmitComplaintCommand{client: client, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[SubmitComplaintInput] = (*SubmitComplaintCommand)(nil)

// Execute submits the complaint.
func (c *SubmitComplaintCommand) Execute(ctx context.Context, msg SubmitComplaintInput) error {
	if c.client == nil {
		return errors.New("submit command requires a client")
	}
	result, err := c.client.Submit(ctx, msg.Description, msg.Submitter)
	if err != nil {
		return err
	}
	if msg.OnResult != nil {
		msg.OnResult(result)
	}
	c.telemetry.Record(ctx, "triage.command.submit", map[string]any{"id": result.ID})
	return nil
}
