package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Submitter placeholders used when the visitor is anonymous or a field is
// missing from their identity.
const (
	AnonymousUserID    = "anonymous"
	AnonymousUserEmail = "anonymous"
	AnonymousUserName  = "Anonymous Student"
)

// SubmissionConfig configures the classification endpoint client.
type SubmissionConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Telemetry  Telemetry
}

// SubmissionClient posts complaints to the classification backend.
type SubmissionClient struct {
	baseURL   string
	client    *http.Client
	logger    *slog.Logger
	telemetry Telemetry
}

// SubmissionRequest is the body sent to POST /api/complaints.
type SubmissionRequest struct {
	Description string `json:"description"`
	UserID      string `json:"user_id"`
	UserEmail   string `json:"user_email"`
	UserName    string `json:"user_name"`
}

// NewSubmissionClient builds a client. An empty base URL falls back to
// DefaultAPIBase. Requests are bounded only by the caller's context.
func NewSubmissionClient(cfg SubmissionConfig) *SubmissionClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultAPIBase
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &SubmissionClient{
		baseURL:   base,
		client:    httpClient,
		logger:    normalizeLogger(cfg.Logger),
		telemetry: normalizeTelemetry(cfg.Telemetry),
	}
}

// BaseURL returns the endpoint base.
func (c *SubmissionClient) BaseURL() string {
	return c.baseURL
}

// NewSubmissionRequest builds the request body, substituting placeholders
// for every missing submitter field.
func NewSubmissionRequest(description string, submitter *Identity) SubmissionRequest {
	req := SubmissionRequest{
		Description: description,
		UserID:      AnonymousUserID,
		UserEmail:   AnonymousUserEmail,
		UserName:    AnonymousUserName,
	}
	if submitter == nil {
		return req
	}
	if submitter.UID != "" {
		req.UserID = submitter.UID
	}
	if submitter.Email != "" {
		req.UserEmail = submitter.Email
	}
	if submitter.DisplayName != "" {
		req.UserName = submitter.DisplayName
	}
	return req
}

// Submit sends one complaint and returns the backend's verdict unchanged.
func (c *SubmissionClient) Submit(ctx context.Context, description string, submitter *Identity) (AnalysisResult, error) {
	if strings.TrimSpace(description) == "" {
		return AnalysisResult{}, validationError("submit", "description is required")
	}
	payload := NewSubmissionRequest(description, submitter)

	var result AnalysisResult
	if err := c.do(ctx, http.MethodPost, "/api/complaints", payload, &result); err != nil {
		c.logger.Warn("triage: submission failed", "user_id", payload.UserID, "error", err)
		return AnalysisResult{}, NewError(KindSubmissionFailed, "submit", err)
	}
	c.telemetry.Record(ctx, "triage.submission.sent", map[string]any{
		"id":       result.ID,
		"user_id":  payload.UserID,
		"category": result.Analysis.Category,
		"urgency":  result.Analysis.Urgency,
	})
	return result, nil
}

func (c *SubmissionClient) do(ctx context.Context, method, path string, payload any, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
