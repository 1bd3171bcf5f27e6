package fieldmap

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/scullers68/sprint-reports/internal/types"
)

// ValidationResult reports the outcome of validating one value against a
// mapping's rules. Normalized carries the value after type coercion.
type ValidationResult struct {
	OK         bool
	Errors     []string
	Warnings   []string
	Normalized interface{}
}

// patternCache avoids recompiling validation regexes per record.
var patternCache sync.Map // pattern string -> *regexp.Regexp

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// ValidateValue checks a transformed value against the mapping's
// validation rules. A required field fails on nil or empty string.
func ValidateValue(value interface{}, rules map[string]interface{}, fieldType types.FieldType, required bool) ValidationResult {
	result := ValidationResult{OK: true, Normalized: value}

	if value == nil || value == "" {
		if required {
			result.OK = false
			result.Errors = append(result.Errors, "required field has no value")
		}
		return result
	}

	normalized := coerceType(value, fieldType)
	result.Normalized = normalized

	if typeCheck, _ := rules["type_check"].(bool); typeCheck {
		if !matchesType(normalized, fieldType) {
			result.OK = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("value %v is not coercible to %s", value, fieldType))
		}
	}

	if f, ok := asFloat(normalized); ok {
		if min, present := asFloatRule(rules, "min_value"); present && f < min {
			result.OK = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("value %v below minimum %v", f, min))
		}
		if max, present := asFloatRule(rules, "max_value"); present && f > max {
			result.OK = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("value %v above maximum %v", f, max))
		}
	}

	if s, ok := normalized.(string); ok {
		if min, present := asFloatRule(rules, "min_length"); present && float64(len(s)) < min {
			result.OK = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("length %d below minimum %d", len(s), int(min)))
		}
		if max, present := asFloatRule(rules, "max_length"); present && float64(len(s)) > max {
			result.OK = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("length %d above maximum %d", len(s), int(max)))
		}
		if pattern, _ := rules["pattern"].(string); pattern != "" {
			re, err := compilePattern(pattern)
			if err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("invalid pattern %q: %v", pattern, err))
			} else if !re.MatchString(s) {
				result.OK = false
				result.Errors = append(result.Errors,
					fmt.Sprintf("value %q does not match pattern %q", s, pattern))
			}
		}
	}

	if allowed, ok := rules["allowed_values"].([]interface{}); ok && len(allowed) > 0 {
		found := false
		for _, a := range allowed {
			if stringify(a) == stringify(normalized) {
				found = true
				break
			}
		}
		if !found {
			result.OK = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("value %v not in allowed set", normalized))
		}
	}

	return result
}

func asFloatRule(rules map[string]interface{}, key string) (float64, bool) {
	v, ok := rules[key]
	if !ok {
		return 0, false
	}
	return asFloatOrZero(v)
}

func asFloatOrZero(v interface{}) (float64, bool) {
	f, ok := asFloat(v)
	return f, ok
}

func matchesType(v interface{}, fieldType types.FieldType) bool {
	switch fieldType {
	case types.FieldString, types.FieldDate, types.FieldDateTime:
		_, ok := v.(string)
		return ok
	case types.FieldInteger:
		switch v.(type) {
		case int, int64:
			return true
		case float64:
			f := v.(float64)
			return f == float64(int64(f))
		}
		return false
	case types.FieldFloat:
		_, ok := asFloat(v)
		return ok
	case types.FieldBoolean:
		_, ok := v.(bool)
		return ok
	case types.FieldList:
		_, ok := v.([]interface{})
		return ok
	case types.FieldObject:
		_, ok := v.(map[string]interface{})
		return ok
	}
	return true
}
