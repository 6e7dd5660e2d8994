package config

import (
	"encoding/json"
	"strings"

	dserrors "github.com/Surf-Wax/automated-secrets-management-poc/internal/errors"
	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is the JSON schema for rotationdemo.yaml. Validation
// runs after defaults and environment overrides so that a minimal file
// (or an empty one) still passes. The rotation bounds are deliberately
// absent here: validateSemantics owns them and reports per-field errors.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["vault", "simulator", "rotation"],
  "properties": {
    "version": {"type": "integer", "enum": [0]},
    "vault": {
      "type": "object",
      "required": ["address"],
      "properties": {
        "address": {"type": "string", "pattern": "^https?://"},
        "token": {"type": "string"},
        "mount": {"type": "string", "minLength": 1}
      }
    },
    "simulator": {
      "type": "object",
      "required": ["endpoint"],
      "properties": {
        "endpoint": {"type": "string", "pattern": "^https?://"},
        "region": {"type": "string", "minLength": 1}
      }
    },
    "identities": {
      "type": "object",
      "properties": {
        "managed_user": {"type": "string", "minLength": 1},
        "manager_user": {"type": "string", "minLength": 1}
      }
    },
    "rotation": {
      "type": "object",
      "properties": {
        "role_name": {"type": "string", "minLength": 1},
        "interval_seconds": {"type": "integer"},
        "safety_margin_seconds": {"type": "integer"}
      }
    },
    "state_file": {"type": "string"}
  }
}`

// validateSchema checks the finalized definition against the JSON schema.
func validateSchema(def *Definition) error {
	schemaLoader := gojsonschema.NewStringLoader(definitionSchema)

	// Convert the definition to JSON for validation
	jsonData, err := json.Marshal(def)
	if err != nil {
		return dserrors.ConfigError{
			Message:    "failed to marshal configuration for validation",
			Suggestion: "This is an internal error. Please report it",
		}
	}

	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return dserrors.ConfigError{
			Message:    "schema validation error: " + err.Error(),
			Suggestion: "This is an internal error. Please report it",
		}
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return dserrors.ConfigError{
			Message:    "configuration does not match schema:\n  - " + strings.Join(errorMessages, "\n  - "),
			Suggestion: "Check endpoint URLs and rotation settings in rotationdemo.yaml",
		}
	}

	return nil
}
