package fieldmap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scullers68/sprint-reports/internal/types"
)

// TransformValue converts a raw tracker value per the transformation
// config. The "type" key selects the transformation; absent or "direct"
// passes through. The boolean result reports whether a value was produced
// (false means the caller should fall back to the mapping default).
func TransformValue(raw interface{}, fieldType types.FieldType, config map[string]interface{}) (interface{}, bool, error) {
	if raw == nil {
		return nil, false, nil
	}

	kind, _ := config["type"].(string)
	var out interface{}
	var err error
	switch kind {
	case "", "direct":
		out = raw
	case "extract_object_value":
		out, err = extractObjectValue(raw, config)
	case "string_format":
		out = stringFormat(raw, config)
	case "numeric_conversion":
		out = numericConversion(raw, config)
	case "date_format":
		out, err = dateFormat(raw, config)
	case "conditional":
		out = conditional(raw, config)
	default:
		return nil, false, fmt.Errorf("unknown transformation type %q", kind)
	}
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return coerceType(out, fieldType), true, nil
}

// extractObjectValue picks one key (default "value") from a dict value.
func extractObjectValue(raw interface{}, config map[string]interface{}) (interface{}, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("extract_object_value: value is %T, not an object", raw)
	}
	key, _ := config["key"].(string)
	if key == "" {
		key = "value"
	}
	return obj[key], nil
}

// stringFormat applies config.template, substituting {value}.
func stringFormat(raw interface{}, config map[string]interface{}) interface{} {
	template, _ := config["template"].(string)
	if template == "" {
		template = "{value}"
	}
	return strings.ReplaceAll(template, "{value}", stringify(raw))
}

// numericConversion parses a number; on failure it returns config.default
// or zero.
func numericConversion(raw interface{}, config map[string]interface{}) interface{} {
	if f, ok := asFloat(raw); ok {
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	}
	if def, ok := config["default"]; ok {
		return def
	}
	return int64(0)
}

// dateFormatLayouts are tried in order when no input_format is configured.
var dateFormatLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// dateFormat reparses a date string from config.input_format to
// config.output_format (both Go reference layouts; RFC 3339 defaults).
func dateFormat(raw interface{}, config map[string]interface{}) (interface{}, error) {
	s := stringify(raw)
	inputFormat, _ := config["input_format"].(string)
	outputFormat, _ := config["output_format"].(string)
	if outputFormat == "" {
		outputFormat = time.RFC3339
	}

	var t time.Time
	var err error
	if inputFormat != "" {
		t, err = time.Parse(inputFormat, s)
	} else {
		for _, layout := range dateFormatLayouts {
			if t, err = time.Parse(layout, s); err == nil {
				break
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("date_format: parse %q: %w", s, err)
	}
	return t.Format(outputFormat), nil
}

// conditional evaluates config.conditions in order; the first matching
// operator wins, otherwise config.default.
func conditional(raw interface{}, config map[string]interface{}) interface{} {
	conditions, _ := config["conditions"].([]interface{})
	for _, c := range conditions {
		cond, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		operator, _ := cond["operator"].(string)
		if matchCondition(raw, operator, cond["value"]) {
			return cond["result"]
		}
	}
	return config["default"]
}

func matchCondition(raw interface{}, operator string, operand interface{}) bool {
	switch operator {
	case "equals":
		return stringify(raw) == stringify(operand)
	case "not_equals":
		return stringify(raw) != stringify(operand)
	case "contains":
		return strings.Contains(stringify(raw), stringify(operand))
	case "starts_with":
		return strings.HasPrefix(stringify(raw), stringify(operand))
	case "ends_with":
		return strings.HasSuffix(stringify(raw), stringify(operand))
	case "greater_than":
		a, aok := asFloat(raw)
		b, bok := asFloat(operand)
		return aok && bok && a > b
	case "less_than":
		a, aok := asFloat(raw)
		b, bok := asFloat(operand)
		return aok && bok && a < b
	}
	return false
}

// truthyStrings are recognized as boolean true during coercion.
var truthyStrings = map[string]bool{
	"true": true, "1": true, "yes": true, "on": true,
}

var falsyStrings = map[string]bool{
	"false": true, "0": true, "no": true, "off": true, "": true,
}

// coerceType converts a transformed value to the declared field type.
// Coercion is best effort; on failure the input is returned unchanged.
func coerceType(v interface{}, fieldType types.FieldType) interface{} {
	switch fieldType {
	case types.FieldString:
		return stringify(v)
	case types.FieldInteger:
		if f, ok := asFloat(v); ok {
			return int64(f)
		}
	case types.FieldFloat:
		if f, ok := asFloat(v); ok {
			return f
		}
	case types.FieldBoolean:
		switch b := v.(type) {
		case bool:
			return b
		case string:
			s := strings.ToLower(strings.TrimSpace(b))
			if truthyStrings[s] {
				return true
			}
			if falsyStrings[s] {
				return false
			}
		default:
			if f, ok := asFloat(v); ok {
				return f != 0
			}
		}
	case types.FieldList:
		if _, ok := v.([]interface{}); ok {
			return v
		}
		return []interface{}{v}
	case types.FieldObject:
		if _, ok := v.(map[string]interface{}); ok {
			return v
		}
	case types.FieldDate, types.FieldDateTime:
		return v
	}
	return v
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
