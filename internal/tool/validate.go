package tool

import "fmt"

// validateArgs checks call arguments against a JSON Schema parameters
// object: every required key must be present, and values whose declared
// type is recognized must match it. Unknown or absent schemas pass, so
// a plugin with an exotic schema still runs.
func validateArgs(schema, args map[string]any) error {
	if schema == nil {
		return nil
	}

	required, _ := schema["required"].([]string)
	if required == nil {
		// Schemas decoded from JSON carry []any instead.
		if raw, ok := schema["required"].([]any); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	for _, key := range required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("missing required argument %q", key)
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for key, value := range args {
		prop, ok := props[key].(map[string]any)
		if !ok {
			continue
		}
		declared, _ := prop["type"].(string)
		if declared == "" {
			continue
		}
		if err := checkType(declared, value); err != nil {
			return fmt.Errorf("argument %q: %w", key, err)
		}
	}
	return nil
}

func checkType(declared string, value any) error {
	if value == nil {
		return nil
	}
	ok := true
	switch declared {
	case "string":
		_, ok = value.(string)
	case "number":
		switch value.(type) {
		case float64, int, int64:
		default:
			ok = false
		}
	case "integer":
		switch v := value.(type) {
		case int, int64:
		case float64:
			ok = v == float64(int64(v))
		default:
			ok = false
		}
	case "boolean":
		_, ok = value.(bool)
	case "array":
		_, ok = value.([]any)
	case "object":
		_, ok = value.(map[string]any)
	}
	if !ok {
		return fmt.Errorf("expected %s, got %T", declared, value)
	}
	return nil
}
