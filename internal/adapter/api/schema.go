package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// createSystemSchema checks the shape of a create payload. Missing sections
// are left to SystemConfig.CheckSections so the error names the section.
const createSystemSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"mission": {"type": "string"},
		"models": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "integer", "minimum": 0},
					"name": {"type": "string"},
					"knowledge_bases": {"type": "array", "items": {"type": "integer"}},
					"tools": {"type": "array", "items": {"type": "integer"}},
					"is_supervisor": {"type": "boolean"}
				}
			}
		},
		"knowledge_bases": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "integer", "minimum": 0},
					"name": {"type": "string"},
					"url": {"type": "string"},
					"s3_url": {"type": "string"},
					"description": {"type": "string"}
				}
			}
		},
		"tools": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "integer", "minimum": 0},
					"name": {"type": "string"},
					"description": {"type": "string"},
					"api_url": {"type": "string"},
					"api_key": {"type": "string"},
					"email": {"type": "string"}
				}
			}
		}
	}
}`

type payloadValidator struct {
	schema *jsonschema.Schema
}

func newPayloadValidator() (*payloadValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("create_system.json", strings.NewReader(createSystemSchema)); err != nil {
		return nil, fmt.Errorf("add create_system schema: %w", err)
	}
	compiled, err := compiler.Compile("create_system.json")
	if err != nil {
		return nil, fmt.Errorf("compile create_system schema: %w", err)
	}
	return &payloadValidator{schema: compiled}, nil
}

// validate checks raw against the create schema.
func (p *payloadValidator) validate(raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := p.schema.Validate(v); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
