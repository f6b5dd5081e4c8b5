package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the JSON Schema the config file is checked against
// before unmarshalling, so a typo'd key or mistyped value produces a
// pointed message instead of a silently ignored setting.
const configSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"data_dir": {"type": "string"},
		"database": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"path": {"type": "string"},
				"dimension": {"type": "integer", "minimum": 1}
			}
		},
		"embedding": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"provider": {"type": "string", "enum": ["openai", "ollama"]},
				"model": {"type": "string"},
				"api_key": {"type": "string"},
				"base_url": {"type": "string"}
			}
		},
		"llm": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"provider": {"type": "string", "enum": ["", "anthropic", "openai", "openrouter", "ollama"]},
				"model": {"type": "string"},
				"api_key": {"type": "string"},
				"base_url": {"type": "string"}
			}
		},
		"consolidation": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"threshold": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
				"max_candidates": {"type": "integer", "minimum": 0},
				"min_corpus_size": {"type": "integer", "minimum": 0},
				"min_age_days": {"type": "integer", "minimum": 0},
				"merge_with_llm": {"type": "boolean"},
				"auto_redact": {"type": "boolean"}
			}
		},
		"maintenance": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"schedule": {"type": "string"},
				"prune_threshold": {"type": "number", "minimum": 0, "maximum": 1},
				"enrich_limit": {"type": "integer", "minimum": 0},
				"orphan_threshold": {"type": "number", "minimum": 0, "maximum": 1},
				"orphan_max_links": {"type": "integer", "minimum": 0},
				"context_min_tags": {"type": "integer", "minimum": 0}
			}
		},
		"metrics": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"enabled": {"type": "boolean"},
				"host": {"type": "string"},
				"port": {"type": "integer", "minimum": 1, "maximum": 65535}
			}
		},
		"logging": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
				"file": {"type": "string"},
				"max_size": {"type": "integer", "minimum": 0},
				"max_age": {"type": "integer", "minimum": 0},
				"compress": {"type": "boolean"},
				"redaction": {"type": "boolean"}
			}
		}
	}
}`

// ValidateSchema checks a raw config document against the schema
func ValidateSchema(settings map[string]interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewGoLoader(settings),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
