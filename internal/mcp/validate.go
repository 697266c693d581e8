package mcp

import (
	"fmt"
	"sort"
	"strings"
)

// ValidateArgs checks a tools/call argument map against the tool's
// input schema before any handler runs: unknown arguments, missing
// required arguments and JSON type mismatches are all rejected.
func ValidateArgs(schema map[string]interface{}, args map[string]interface{}) error {
	properties, _ := schema["properties"].(map[string]interface{})

	var unknown []string
	for name := range args {
		if _, ok := properties[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown argument(s): %s", strings.Join(unknown, ", "))
	}

	if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required argument: %s", name)
			}
		}
	} else if required, ok := schema["required"].([]interface{}); ok {
		for _, nameAny := range required {
			name, _ := nameAny.(string)
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required argument: %s", name)
			}
		}
	}

	for name, value := range args {
		spec, _ := properties[name].(map[string]interface{})
		wantType, _ := spec["type"].(string)
		if wantType == "" || value == nil {
			continue
		}
		if !typeMatches(wantType, value) {
			return fmt.Errorf("argument %q: expected %s, got %s", name, wantType, jsonTypeName(value))
		}
	}
	return nil
}

func typeMatches(wantType string, value interface{}) bool {
	switch wantType {
	case "string":
		// Decimal and 64-bit integer properties advertise string schemas
		// to protect precision, but numeric input is still converted.
		switch value.(type) {
		case string, float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch n := value.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	}
	return true
}

func jsonTypeName(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64:
		return "number"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", value)
}
