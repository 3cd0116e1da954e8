package triage

import (
	"errors"
	"testing"
)

func TestComplaintValidatorAcceptsMinimalDocument(t *testing.T) {
	validator := NewComplaintValidator()
	if err := validator.Validate(Complaint{ID: "c1", Description: "noise"}); err != nil {
		t.Fatalf("expected valid complaint, got %v", err)
	}
	if err := validator.Validate(Complaint{ID: "c2", Urgency: UrgencyHigh, CreatedAt: 1700000000000}); err != nil {
		t.Fatalf("expected valid complaint, got %v", err)
	}
}

func TestComplaintValidatorRejectsInvalidDocuments(t *testing.T) {
	validator := NewComplaintValidator()
	if err := validator.Validate(Complaint{Description: "no id"}); err == nil {
		t.Fatalf("expected missing id to fail")
	}
	err := validator.Validate(Complaint{ID: "c1", Urgency: "Critical"})
	if err == nil {
		t.Fatalf("expected unknown urgency to fail")
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation kind, got %v", err)
	}
	if err := validator.ValidateDocument(map[string]any{"id": "c1", "created_at": "yesterday"}); err == nil {
		t.Fatalf("expected string created_at to fail")
	}
}

func TestComplaintValidatorCompilesOnce(t *testing.T) {
	validator := NewComplaintValidator()
	first, err := validator.compiled()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	second, _ := validator.compiled()
	if first != second {
		t.Fatalf("expected compiled schema to be reused")
	}
}
