// Package toolschema normalizes tool input schemas into canonical
// JSON-Schema and validates tool-call arguments against them before a
// handler runs. Grounded on pkg/pluginsdk/validation.go's compileSchema /
// sync.Map cache pattern.
package toolschema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Bridge compiles and caches JSON-Schema documents by content hash, so
// repeatedly registering (or re-registering) the same tool schema does not
// recompile it.
type Bridge struct {
	cache sync.Map // hash string -> *jsonschema.Schema
}

// New returns an empty Bridge.
func New() *Bridge {
	return &Bridge{}
}

// Normalize massages a caller-supplied schema into canonical JSON-Schema:
// MCP and some client libraries emit `type` as an array (e.g.
// `["string","null"]`); this reduces it to the first non-null entry, per
// spec §4.M. Schemas that are already canonical pass through unchanged.
func Normalize(raw json.RawMessage) (json.RawMessage, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("toolschema: invalid schema json: %w", err)
	}
	normalizeTypeField(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeTypeField(doc map[string]any) {
	if t, ok := doc["type"].([]any); ok {
		for _, candidate := range t {
			if s, ok := candidate.(string); ok && s != "null" {
				doc["type"] = s
				break
			}
		}
	}
	if props, ok := doc["properties"].(map[string]any); ok {
		for _, v := range props {
			if sub, ok := v.(map[string]any); ok {
				normalizeTypeField(sub)
			}
		}
	}
}

// Compile compiles and caches raw as a JSON-Schema document, keyed by its
// content hash.
func (b *Bridge) Compile(raw json.RawMessage) (*jsonschema.Schema, error) {
	key := hashSchema(raw)
	if cached, ok := b.cache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiler := jsonschema.NewCompiler()
	resourceName := "schema-" + key + ".json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("toolschema: add resource: %w", err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("toolschema: compile: %w", err)
	}
	b.cache.Store(key, schema)
	return schema, nil
}

// Validate compiles (if needed) schemaRaw and validates argsJSON against it.
// A non-nil error means the tool call's arguments must be rejected before
// the handler ever runs.
func (b *Bridge) Validate(schemaRaw json.RawMessage, argsJSON json.RawMessage) error {
	if len(schemaRaw) == 0 {
		return nil // tools without a schema accept any arguments
	}
	schema, err := b.Compile(schemaRaw)
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(argsJSON, &instance); err != nil {
		return fmt.Errorf("toolschema: invalid arguments json: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("toolschema: arguments failed validation: %w", err)
	}
	return nil
}

func hashSchema(raw json.RawMessage) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
