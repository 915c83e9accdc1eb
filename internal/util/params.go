package util

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/troupe-dev/troupe/core"
)

// ValidationError reports an argument that does not satisfy a capability's
// parameter schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateArguments checks args against an ordered parameter schema: every
// required parameter must be present and every provided value must match its
// declared type hint. Extra arguments are allowed.
func ValidateArguments(params []core.Parameter, args map[string]any) error {
	for _, p := range params {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return &ValidationError{Field: p.Name, Message: "required parameter is missing"}
			}
			continue
		}
		if !matchesType(v, p.Type) {
			return &ValidationError{
				Field:   p.Name,
				Value:   v,
				Message: fmt.Sprintf("expected type %s, got %T", p.Type, v),
			}
		}
	}
	return nil
}

// ParametersFromStruct derives an ordered parameter schema from a struct
// type using reflection. Field declaration order is preserved; json tags
// rename, "-" skips, omitempty and pointer fields become optional. A
// `description` tag documents the parameter.
func ParametersFromStruct(structType any) []core.Parameter {
	t := reflect.TypeOf(structType)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	params := make([]core.Parameter, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name := field.Name
		if jsonTag != "" {
			if tagName := strings.Split(jsonTag, ",")[0]; tagName != "" {
				name = tagName
			}
		}
		params = append(params, core.Parameter{
			Name:        name,
			Type:        typeHint(field.Type),
			Description: field.Tag.Get("description"),
			Required:    !hasOmitEmpty(jsonTag) && field.Type.Kind() != reflect.Ptr,
		})
	}
	return params
}

// typeHint maps a Go type onto a parameter type hint.
func typeHint(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return core.TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return core.TypeInteger
	case reflect.Float32, reflect.Float64:
		return core.TypeNumber
	case reflect.Bool:
		return core.TypeBoolean
	case reflect.Slice, reflect.Array:
		return core.TypeArray
	case reflect.Map, reflect.Struct:
		return core.TypeObject
	case reflect.Ptr:
		return typeHint(t.Elem())
	default:
		return core.TypeString
	}
}

func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// matchesType checks a decoded JSON value against a parameter type hint.
// JSON numbers decode as float64, so integer hints accept whole floats.
func matchesType(value any, hint string) bool {
	if value == nil {
		return true
	}
	switch hint {
	case core.TypeString:
		_, ok := value.(string)
		return ok
	case core.TypeInteger:
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case core.TypeNumber:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case core.TypeBoolean:
		_, ok := value.(bool)
		return ok
	case core.TypeArray:
		return reflect.ValueOf(value).Kind() == reflect.Slice
	case core.TypeObject:
		_, ok := value.(map[string]any)
		return ok
	case core.TypeAny, "":
		return true
	default:
		return true
	}
}
