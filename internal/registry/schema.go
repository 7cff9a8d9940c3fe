package registry

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://nixbrew.dev/schemas/registry.json"

// registrySchema describes the registry document. Unknown properties are
// allowed so files written by newer versions stay readable.
const registrySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "packages": {
      "type": ["object", "null"],
      "additionalProperties": {"$ref": "#/$defs/record"}
    }
  },
  "$defs": {
    "ref": {
      "type": "object",
      "required": ["source"],
      "properties": {
        "package": {"type": "string"},
        "channel": {"type": "string"},
        "commit": {"type": "string"},
        "version": {"type": "string"},
        "source": {"type": "string", "minLength": 1},
        "resolvedAt": {"type": "string"}
      }
    },
    "entry": {
      "type": "object",
      "required": ["ref", "action", "timestamp"],
      "properties": {
        "ref": {"$ref": "#/$defs/ref"},
        "action": {"type": "string", "minLength": 1},
        "timestamp": {"type": "string"}
      }
    },
    "record": {
      "type": "object",
      "required": ["current"],
      "properties": {
        "name": {"type": "string"},
        "current": {"$ref": "#/$defs/ref"},
        "pinned": {"type": "boolean"},
        "history": {
          "type": ["array", "null"],
          "items": {"$ref": "#/$defs/entry"}
        }
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(registrySchema))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add registry schema: %w", err)
	}

	s, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile registry schema: %w", err)
	}
	return s, nil
})

// validateDocument checks raw registry bytes against the schema.
func validateDocument(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := s.Validate(inst); err != nil {
		return err
	}
	return nil
}
