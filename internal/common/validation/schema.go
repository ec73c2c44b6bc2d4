// Package validation checks inbound webhook bodies against the update
// envelope schema before they are decoded.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// UpdateEnvelopeSchema accepts any update object that carries a numeric
// update_id and, when present, well-formed message or callback_query
// objects. Unknown members are allowed.
const UpdateEnvelopeSchema = `{
  "type": "object",
  "required": ["update_id"],
  "properties": {
    "update_id": {"type": "integer"},
    "message": {
      "type": "object",
      "required": ["message_id", "chat"],
      "properties": {
        "message_id": {"type": "integer"},
        "text": {"type": "string"},
        "from": {"$ref": "#/definitions/user"},
        "chat": {
          "type": "object",
          "required": ["id", "type"],
          "properties": {
            "id": {"type": "integer"},
            "type": {"type": "string"}
          }
        }
      }
    },
    "callback_query": {
      "type": "object",
      "required": ["id", "from"],
      "properties": {
        "id": {"type": "string"},
        "data": {"type": "string", "maxLength": 64},
        "from": {"$ref": "#/definitions/user"}
      }
    }
  },
  "definitions": {
    "user": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "integer"},
        "username": {"type": "string"}
      }
    }
  }
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator holds a compiled schema; it is safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles a JSON schema document.
func NewValidator(schema string) (*Validator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// NewEnvelopeValidator compiles UpdateEnvelopeSchema.
func NewEnvelopeValidator() *Validator {
	v, err := NewValidator(UpdateEnvelopeSchema)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a raw JSON document.
func (v *Validator) Validate(body []byte) (*ValidationResult, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// ValidateEnvelope returns an error describing every violation, or nil.
func (v *Validator) ValidateEnvelope(body []byte) error {
	result, err := v.Validate(body)
	if err != nil {
		return err
	}
	if result.Valid {
		return nil
	}

	errs := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		errs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Errorf("envelope validation failed: %s", strings.Join(errs, "; "))
}
