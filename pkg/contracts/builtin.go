package contracts

import (
	"context"
	"encoding/json"
)

// Built-in payload contracts shipped with the Bridge. External producers
// register their own at deploy time via `bridge register`.
var builtins = map[Key]string{
	{Name: "csr_ingested", Version: 1}: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["doc_id", "org_id"],
		"properties": {
			"doc_id": {"type": "string", "minLength": 1},
			"org_id": {"type": "string", "minLength": 1},
			"doc_type": {"type": "string"},
			"title": {"type": "string"},
			"source_uri": {"type": "string"},
			"extracted_text": {"type": "string"}
		}
	}`,
	{Name: "esg_metric_extracted", Version: 1}: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["doc_id", "org_id", "metric_count"],
		"properties": {
			"doc_id": {"type": "string", "minLength": 1},
			"org_id": {"type": "string", "minLength": 1},
			"metric_count": {"type": "integer", "minimum": 0},
			"metric_ids": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	{Name: "delivery_failed", Version: 1}: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["original", "topic", "attempts"],
		"properties": {
			"original": {"type": "object"},
			"topic": {"type": "string"},
			"attempts": {"type": "integer", "minimum": 1},
			"last_error": {"type": "string"},
			"failed_at": {"type": "string"}
		}
	}`,
}

// RegisterBuiltins registers the shipped contracts. Idempotent across
// restarts and across services racing at startup.
func (r *Registry) RegisterBuiltins(ctx context.Context) error {
	for key, schema := range builtins {
		if err := r.Register(ctx, key.Name, key.Version, json.RawMessage(schema)); err != nil {
			return err
		}
	}
	return nil
}
