package analysis

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"time"
)

// EncodeDeterministic produces byte-identical JSON for an Analysis (or any
// fragment of one):
//   - stable key ordering (sorted alphabetically)
//   - floats rounded to 6 decimal places
//   - timestamps as RFC 3339 UTC strings
//   - empty/nil fields omitted entirely
//
// Byte-level stability is what makes the idempotence property testable
// with a plain byte comparison.
func EncodeDeterministic(v interface{}) ([]byte, error) {
	normalized := normalizeValue(v)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(normalized); err != nil {
		return nil, err
	}

	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}

	return result, nil
}

// roundFloat rounds a float to max 6 decimal places.
func roundFloat(f float64) float64 {
	multiplier := math.Pow(10, 6)
	return math.Round(f*multiplier) / multiplier
}

var timeType = reflect.TypeOf(time.Time{})

// normalizeValue recursively normalizes a value for deterministic encoding.
func normalizeValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	val := reflect.ValueOf(v)

	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	// time.Time marshals as an RFC 3339 UTC string, not a struct walk.
	if val.Type() == timeType {
		t := val.Interface().(time.Time)
		return t.UTC().Format(time.RFC3339Nano)
	}

	switch val.Kind() {
	case reflect.Map:
		return normalizeMap(val)
	case reflect.Slice, reflect.Array:
		return normalizeSlice(val)
	case reflect.Struct:
		return normalizeStruct(val)
	case reflect.Float32, reflect.Float64:
		return roundFloat(val.Float())
	case reflect.Interface:
		if val.IsNil() {
			return nil
		}
		return normalizeValue(val.Interface())
	default:
		return val.Interface()
	}
}

// normalizeMap converts a map for deterministic JSON output; encoding/json
// sorts string keys on marshal.
func normalizeMap(val reflect.Value) interface{} {
	if val.IsNil() || val.Len() == 0 {
		return nil
	}

	result := make(map[string]interface{})
	iter := val.MapRange()
	for iter.Next() {
		value := normalizeValue(iter.Value().Interface())
		if value != nil {
			result[iter.Key().String()] = value
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func normalizeSlice(val reflect.Value) interface{} {
	if val.Kind() == reflect.Slice && val.IsNil() {
		return nil
	}
	if val.Len() == 0 {
		return nil
	}

	result := make([]interface{}, val.Len())
	for i := 0; i < val.Len(); i++ {
		result[i] = normalizeValue(val.Index(i).Interface())
	}
	return result
}

// normalizeStruct converts a struct to a map keyed by JSON tag names.
func normalizeStruct(val reflect.Value) interface{} {
	result := make(map[string]interface{})
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)

		if !field.IsExported() {
			continue
		}

		// Embedded structs flatten the way encoding/json does.
		if field.Anonymous && field.Tag.Get("json") == "" {
			if inner, ok := normalizeValue(fieldVal.Interface()).(map[string]interface{}); ok {
				for k, v := range inner {
					result[k] = v
				}
			}
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		tagName, omitEmpty := parseJSONTag(jsonTag)
		if tagName == "" {
			tagName = field.Name
		}

		normalized := normalizeValue(fieldVal.Interface())
		if omitEmpty && isZeroValue(normalized) {
			continue
		}
		if normalized != nil {
			result[tagName] = normalized
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func parseJSONTag(tag string) (name string, omitEmpty bool) {
	if tag == "" {
		return "", false
	}
	start := 0
	first := true
	for i := 0; i <= len(tag); i++ {
		if i == len(tag) || tag[i] == ',' {
			part := tag[start:i]
			if first {
				name = part
				first = false
			} else if part == "omitempty" {
				omitEmpty = true
			}
			start = i + 1
		}
	}
	return name, omitEmpty
}

func isZeroValue(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case int:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	case map[string]interface{}:
		return len(x) == 0
	case []interface{}:
		return len(x) == 0
	default:
		return false
	}
}
