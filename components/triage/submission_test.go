package triage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionClientAnonymousPayload(t *testing.T) {
	var got SubmissionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/complaints" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "doc-1",
			"message": "Complaint submitted successfully",
			"analysis": map[string]any{
				"urgency":          "Medium",
				"category":         "Facilities",
				"suggested_action": "Post quiet-hours signage",
				"sentiment":        "Negative",
			},
		})
	}))
	defer server.Close()

	client := NewSubmissionClient(SubmissionConfig{BaseURL: server.URL + "/"})
	result, err := client.Submit(context.Background(), "library too loud", nil)
	require.NoError(t, err)

	assert.Equal(t, SubmissionRequest{
		Description: "library too loud",
		UserID:      "anonymous",
		UserEmail:   "anonymous",
		UserName:    "Anonymous Student",
	}, got)
	assert.Equal(t, "doc-1", result.ID)
	assert.Equal(t, "Facilities", result.Analysis.Category)
	assert.Equal(t, "Negative", result.Analysis.Sentiment)
}

func TestSubmissionRequestFillsMissingFields(t *testing.T) {
	req := NewSubmissionRequest("x", &Identity{UID: "u1"})
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, AnonymousUserEmail, req.UserEmail)
	assert.Equal(t, AnonymousUserName, req.UserName)

	req = NewSubmissionRequest("x", &Identity{UID: "u1", Email: "s@campus.edu", DisplayName: "Sam"})
	assert.Equal(t, SubmissionRequest{Description: "x", UserID: "u1", UserEmail: "s@campus.edu", UserName: "Sam"}, req)
}

func TestSubmissionClientNon2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "classifier down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewSubmissionClient(SubmissionConfig{BaseURL: server.URL})
	result, err := client.Submit(context.Background(), "library too loud", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubmissionFailed))
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, AnalysisResult{}, result)
}

func TestSubmissionClientUndecodableBodyFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewSubmissionClient(SubmissionConfig{BaseURL: server.URL})
	_, err := client.Submit(context.Background(), "noise", nil)
	assert.True(t, errors.Is(err, ErrSubmissionFailed))
}

func TestSubmissionClientTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewSubmissionClient(SubmissionConfig{BaseURL: url})
	_, err := client.Submit(context.Background(), "noise", nil)
	assert.Equal(t, KindSubmissionFailed, KindOf(err))
}

func TestSubmissionClientRejectsBlankDescription(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := NewSubmissionClient(SubmissionConfig{BaseURL: server.URL})
	_, err := client.Submit(context.Background(), "  \n\t", nil)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestSubmissionClientDefaultBase(t *testing.T) {
	client := NewSubmissionClient(SubmissionConfig{})
	assert.Equal(t, DefaultAPIBase, client.BaseURL())
}
