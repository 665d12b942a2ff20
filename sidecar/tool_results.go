package sidecar

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bazelment/agent-sidecar/protocol"
)

// ToolResultBlocks builds a tool result from content blocks. extra keys are
// merged into the top-level result map.
func ToolResultBlocks(blocks []protocol.ContentBlock, isError bool, extra map[string]protocol.Value) protocol.Value {
	content := make([]protocol.Value, len(blocks))
	for i, b := range blocks {
		content[i] = b.Value()
	}
	out := map[string]protocol.Value{
		"content":  protocol.ListValue(content...),
		"is_error": protocol.BoolValue(isError),
	}
	for k, v := range extra {
		out[k] = v
	}
	return protocol.MapValue(out)
}

// ToolResultText is a successful single-text result.
func ToolResultText(text string) protocol.Value {
	return ToolResultBlocks([]protocol.ContentBlock{protocol.TextBlock(text)}, false, nil)
}

// ToolResultError is a failed single-text result.
func ToolResultError(text string) protocol.Value {
	return ToolResultBlocks([]protocol.ContentBlock{protocol.TextBlock(text)}, true, nil)
}

// ToolResultJSON wraps a structured value in a json block.
func ToolResultJSON(v protocol.Value) protocol.Value {
	return ToolResultBlocks([]protocol.ContentBlock{protocol.JSONBlock(v)}, false, nil)
}

// ToolResultWithMetadata attaches a "meta" map to a block result.
func ToolResultWithMetadata(blocks []protocol.ContentBlock, isError bool, meta protocol.Value) protocol.Value {
	if meta.IsNull() {
		return ToolResultBlocks(blocks, isError, nil)
	}
	return ToolResultBlocks(blocks, isError, map[string]protocol.Value{"meta": meta})
}

// ToolResultValidated returns payload as a raw tool result after checking it
// against schema.
func ToolResultValidated(schema, payload protocol.Value) (protocol.Value, error) {
	if err := ValidateJSONSchema(schema, payload); err != nil {
		return protocol.Value{}, fmt.Errorf("tool result schema validation failed: %w", err)
	}
	return payload, nil
}

// IsToolResultError reports whether a tool result is flagged as an error.
func IsToolResultError(result protocol.Value) bool {
	b, _ := result.Field("is_error").AsBool()
	return b
}

// ToolResultTextOf concatenates the text blocks of a tool result.
func ToolResultTextOf(result protocol.Value) string {
	list, _ := result.Field("content").AsList()
	var sb strings.Builder
	for _, item := range list {
		if item.Str("type") == string(protocol.BlockText) {
			sb.WriteString(item.Str("text"))
		}
	}
	return sb.String()
}

// CompileJSONSchema compiles a JSON schema document.
func CompileJSONSchema(schema protocol.Value) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema.String()))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// ValidateJSONSchema validates value against schema. A null schema accepts
// everything.
func ValidateJSONSchema(schema, value protocol.Value) error {
	if schema.IsNull() {
		return nil
	}
	compiled, err := CompileJSONSchema(schema)
	if err != nil {
		return err
	}
	return validateAgainst(compiled, value)
}

func validateAgainst(schema *jsonschema.Schema, value protocol.Value) error {
	// Validate against the decoder's own representation so numbers keep
	// their json.Number form.
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(value.String()))
	if err != nil {
		return fmt.Errorf("decode instance: %w", err)
	}
	return schema.Validate(inst)
}

// rawSchemaValue parses a JSON schema document produced by reflection.
func rawSchemaValue(raw json.RawMessage) (protocol.Value, error) {
	var v protocol.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return protocol.Value{}, err
	}
	return v, nil
}
