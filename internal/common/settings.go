package common

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ReservedSettingKeys are owned by the pipeline and may not be passed through to
// the OCR engine.
var ReservedSettingKeys = []string{"input_file", "output_file", "input-file", "output-file"}

var settingsSchema = func() map[string]any {
	anyOf := make([]any, 0, len(ReservedSettingKeys))
	for _, k := range ReservedSettingKeys {
		anyOf = append(anyOf, map[string]any{"required": []string{k}})
	}
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "object",
		"not":     map[string]any{"anyOf": anyOf},
	}
}()

// ValidateOCRSettings checks the pass-through engine settings against the settings schema.
func ValidateOCRSettings(settings map[string]any) error {
	if settings == nil {
		settings = map[string]any{}
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return validateJSONAgainstSchema(settingsSchema, data)
}

func validateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("settings.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("settings.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("settings do not match schema: %w", err)
	}
	return nil
}
