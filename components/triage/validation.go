package triage

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const complaintSchemaName = "complaint.json"

// ComplaintSchema constrains complaint documents accepted by the reference
// stores. Classification fields stay optional.
const ComplaintSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "complaint_text": {"type": "string"},
    "summary": {"type": "string"},
    "category": {"type": "string"},
    "urgency": {"type": "string", "enum": ["High", "Medium", "Low"]},
    "sentiment": {"type": "string"},
    "suggested_action": {"type": "string"},
    "status": {"type": "string"},
    "created_at": {"type": "integer", "minimum": 0},
    "timestamp": {"type": "integer", "minimum": 0},
    "user_id": {"type": "string"},
    "user_email": {"type": "string"},
    "user_name": {"type": "string"}
  }
}`

// ComplaintValidator checks complaint documents against ComplaintSchema.
type ComplaintValidator struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

// NewComplaintValidator builds a validator; the schema compiles on first use.
func NewComplaintValidator() *ComplaintValidator {
	return &ComplaintValidator{}
}

// Validate checks a decoded complaint.
func (v *ComplaintValidator) Validate(c Complaint) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("triage: marshal complaint %s: %w", c.ID, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("triage: normalize complaint %s: %w", c.ID, err)
	}
	return v.ValidateDocument(payload)
}

// ValidateDocument checks a raw JSON-shaped document.
func (v *ComplaintValidator) ValidateDocument(doc map[string]any) error {
	schema, err := v.compiled()
	if err != nil {
		return err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := schema.Validate(doc); err != nil {
		id, _ := doc["id"].(string)
		return validationError("validate_complaint", "complaint %q: %v", id, err)
	}
	return nil
}

func (v *ComplaintValidator) compiled() (*jsonschema.Schema, error) {
	v.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(complaintSchemaName, strings.NewReader(ComplaintSchema)); err != nil {
			v.err = fmt.Errorf("triage: load complaint schema: %w", err)
			return
		}
		schema, err := compiler.Compile(complaintSchemaName)
		if err != nil {
			v.err = fmt.Errorf("triage: compile complaint schema: %w", err)
			return
		}
		v.schema = schema
	})
	return v.schema, v.err
}
