package agent

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// responseSchema is the canonical shape the completion service is steered
// toward. Strict decoding succeeds only if the response validates against
// it; per-type field requirements (event for create, event_id for
// update/delete) are enforced afterwards in convert.
const responseSchema = `{
	"type": "object",
	"required": ["message", "actions", "confidence"],
	"additionalProperties": false,
	"properties": {
		"message": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"actions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "calendar_id"],
				"additionalProperties": false,
				"properties": {
					"type": {"enum": ["create_event", "update_event", "delete_event", "query"]},
					"calendar_id": {"type": "string", "minLength": 1},
					"event_id": {"type": "string"},
					"event": {"$ref": "#/$defs/eventFields"},
					"updates": {"$ref": "#/$defs/eventFields"},
					"query_params": {
						"type": "object",
						"additionalProperties": false,
						"properties": {
							"start": {"type": "string"},
							"end": {"type": "string"}
						}
					}
				}
			}
		}
	},
	"$defs": {
		"eventFields": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"summary": {"type": "string"},
				"description": {"type": "string"},
				"location": {"type": "string"},
				"start": {"type": "string"},
				"end": {"type": "string"},
				"attendees": {"type": "array", "items": {"type": "string"}}
			}
		}
	}
}`

func compileSchema() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(responseSchema), &doc); err != nil {
		return nil, fmt.Errorf("invalid response schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", doc); err != nil {
		return nil, fmt.Errorf("invalid response schema: %w", err)
	}
	schema, err := compiler.Compile("response.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile response schema: %w", err)
	}
	return schema, nil
}
