package protocol

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const vec3Schema = `{
  "type": "object",
  "properties": {
    "x": {"type": "number"},
    "y": {"type": "number"},
    "z": {"type": "number"}
  },
  "required": ["x", "y", "z"]
}`

const placementSchema = `{
  "type": "object",
  "properties": {
    "placement_id": {"type": "string"},
    "asset_id": {"type": "string"},
    "region_id": {"type": "string"},
    "space_id": {"type": "string"},
    "transform": {
      "type": "object",
      "properties": {
        "position": {"$ref": "vec3.schema.json"},
        "rotation": {"$ref": "vec3.schema.json"},
        "scale": {"$ref": "vec3.schema.json"}
      }
    },
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

const WorldSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "type": {"const": "WORLD"},
    "protocol_version": {"type": "string"},
    "world_id": {"type": "string"},
    "regions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "region_id": {"type": "string"},
          "name": {"type": "string"},
          "space_ids": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["region_id"]
      }
    },
    "placements": {"type": "array", "items": {"$ref": "placement.schema.json"}}
  },
  "required": ["type", "regions", "placements"]
}`

// PlanSchemaJSON leaves op open so newer change kinds pass and get skipped.
const PlanSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "type": {"const": "PLAN"},
    "protocol_version": {"type": "string"},
    "world_id": {"type": "string"},
    "changes": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "op": {"type": "string"},
          "placement_id": {"type": "string"},
          "after": {"$ref": "placement.schema.json"}
        },
        "required": ["op"]
      }
    }
  },
  "required": ["type", "changes"]
}`

// Relative $refs resolve against this base.
const schemaBase = "https://worldstate.ai/schemas/"

var (
	schemaOnce sync.Once
	schemaErr  error
	worldS     *jsonschema.Schema
	planS      *jsonschema.Schema
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	resources := map[string]string{
		"vec3.schema.json":      vec3Schema,
		"placement.schema.json": placementSchema,
		"world.schema.json":     WorldSchemaJSON,
		"plan.schema.json":      PlanSchemaJSON,
	}
	for name, src := range resources {
		if err := c.AddResource(schemaBase+name, strings.NewReader(src)); err != nil {
			schemaErr = err
			return
		}
	}
	if worldS, schemaErr = c.Compile(schemaBase + "world.schema.json"); schemaErr != nil {
		return
	}
	planS, schemaErr = c.Compile(schemaBase + "plan.schema.json")
}

func worldSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(compileSchemas)
	return worldS, schemaErr
}

func planSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(compileSchemas)
	return planS, schemaErr
}

func validateDoc(schema func() (*jsonschema.Schema, error), b []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
