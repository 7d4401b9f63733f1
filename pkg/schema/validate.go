package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Discard records one payload field that failed coercion and was dropped.
type Discard struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Result is a validated instance of a target schema. Invalid fields are
// discarded rather than failing the whole payload; FillRatio is the fraction
// of declared fields that ended up populated, rounded to the nearest 0.01.
type Result struct {
	Schema    string         `json:"schema"`
	Values    map[string]any `json:"values"`
	FillRatio float64        `json:"fill_ratio"`
	Discarded []Discard      `json:"discarded,omitempty"`
}

// ExhaustedError reports that every required field of the schema was missing
// or discarded. An empty extraction carries no signal, so it is treated as an
// attempt failure rather than a zero-fill result.
type ExhaustedError struct {
	Schema  string
	Missing []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("validation exhausted: schema %s has no populated required fields (missing: %s)",
		e.Schema, strings.Join(e.Missing, ", "))
}

// IsExhausted reports whether err is a validation-exhausted failure.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}

// Validate coerces a raw backend payload into an instance of the definition.
// The payload may be a bare JSON object or free text with an object embedded
// in it (models routinely wrap JSON in prose or code fences).
func Validate(payload string, def Definition) (*Result, error) {
	if err := def.Check(); err != nil {
		return nil, err
	}

	data := extractObject(payload)

	result := &Result{
		Schema: def.Name,
		Values: make(map[string]any, len(def.Fields)),
	}

	populated := 0
	requiredPopulated := 0
	for _, field := range def.Fields {
		raw, present := data[field.Name]
		if !present {
			continue
		}
		value, err := coerce(raw, field.Type)
		if err != nil {
			result.Discarded = append(result.Discarded, Discard{Field: field.Name, Reason: err.Error()})
			continue
		}
		result.Values[field.Name] = value
		populated++
		if field.Required {
			requiredPopulated++
		}
	}

	required := def.RequiredFields()
	if len(required) > 0 && requiredPopulated == 0 {
		var missing []string
		for _, name := range required {
			if _, ok := result.Values[name]; !ok {
				missing = append(missing, name)
			}
		}
		return nil, &ExhaustedError{Schema: def.Name, Missing: missing}
	}

	result.FillRatio = roundRatio(float64(populated) / float64(len(def.Fields)))
	return result, nil
}

// roundRatio rounds to the nearest 0.01, the documented fill-ratio precision.
func roundRatio(r float64) float64 {
	return math.Round(r*100) / 100
}

// extractObject pulls a JSON object out of the payload. It tries the payload
// verbatim, then with markdown code fences stripped, then the widest brace-
// delimited span. A payload with no recoverable object yields an empty map.
func extractObject(payload string) map[string]any {
	trimmed := strings.TrimSpace(payload)

	candidates := []string{trimmed}
	if stripped := stripCodeFence(trimmed); stripped != trimmed {
		candidates = append(candidates, stripped)
	}
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		candidates = append(candidates, trimmed[start:end+1])
	}

	for _, candidate := range candidates {
		var data map[string]any
		if err := json.Unmarshal([]byte(candidate), &data); err == nil {
			return data
		}
	}
	return map[string]any{}
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// coerce attempts to convert a decoded JSON value to the declared field type.
// The rules are deliberately lax for scalars that are unambiguously
// convertible (numeric strings, stringly booleans); anything else is an error
// and the field is discarded.
func coerce(raw any, t FieldType) (any, error) {
	switch t {
	case TypeString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("value %v is not a string", raw)
	case TypeNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, nil
			}
			return nil, fmt.Errorf("value %q is not numeric", v)
		default:
			return nil, fmt.Errorf("value %v is not a number", raw)
		}
	case TypeInteger:
		switch v := raw.(type) {
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("value %v is not an integer", v)
			}
			return int64(v), nil
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return i, nil
			}
			return nil, fmt.Errorf("value %q is not an integer", v)
		default:
			return nil, fmt.Errorf("value %v is not an integer", raw)
		}
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, nil
			}
			return nil, fmt.Errorf("value %q is not a boolean", v)
		default:
			return nil, fmt.Errorf("value %v is not a boolean", raw)
		}
	case TypeArray:
		if a, ok := raw.([]any); ok {
			return a, nil
		}
		return nil, fmt.Errorf("value %v is not an array", raw)
	case TypeObject:
		if m, ok := raw.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("value %v is not an object", raw)
	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
}
