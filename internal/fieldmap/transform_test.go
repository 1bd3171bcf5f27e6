package fieldmap

import (
	"testing"

	"github.com/scullers68/sprint-reports/internal/types"
)

func TestTransformValueDirect(t *testing.T) {
	out, ok, err := TransformValue("hello", types.FieldString, nil)
	if err != nil || !ok {
		t.Fatalf("direct transform failed: %v ok=%v", err, ok)
	}
	if out != "hello" {
		t.Errorf("out = %v, want hello", out)
	}

	// nil raw never produces a value.
	_, ok, err = TransformValue(nil, types.FieldString, nil)
	if err != nil || ok {
		t.Errorf("nil raw: ok=%v err=%v, want no value", ok, err)
	}
}

func TestTransformValueUnknownType(t *testing.T) {
	_, _, err := TransformValue("x", types.FieldString, map[string]interface{}{"type": "reverse"})
	if err == nil {
		t.Error("unknown transformation type accepted")
	}
}

func TestExtractObjectValue(t *testing.T) {
	raw := map[string]interface{}{"value": "High", "id": "2"}

	out, ok, err := TransformValue(raw, types.FieldString, map[string]interface{}{"type": "extract_object_value"})
	if err != nil || !ok {
		t.Fatalf("extract failed: %v", err)
	}
	if out != "High" {
		t.Errorf("out = %v, want High (default key)", out)
	}

	out, _, err = TransformValue(raw, types.FieldString, map[string]interface{}{"type": "extract_object_value", "key": "id"})
	if err != nil {
		t.Fatalf("extract by key failed: %v", err)
	}
	if out != "2" {
		t.Errorf("out = %v, want 2", out)
	}

	_, _, err = TransformValue("not an object", types.FieldString, map[string]interface{}{"type": "extract_object_value"})
	if err == nil {
		t.Error("non-object value accepted by extract_object_value")
	}
}

func TestStringFormat(t *testing.T) {
	out, _, err := TransformValue("WEB", types.FieldString, map[string]interface{}{
		"type":     "string_format",
		"template": "project-{value}",
	})
	if err != nil {
		t.Fatalf("string_format failed: %v", err)
	}
	if out != "project-WEB" {
		t.Errorf("out = %v", out)
	}
}

func TestNumericConversion(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want interface{}
	}{
		{"float string", "3.5", 3.5},
		{"integral float", 8.0, int64(8)},
		{"int string", "21", int64(21)},
		{"unparseable", "n/a", int64(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := TransformValue(tt.raw, types.FieldFloat, map[string]interface{}{"type": "numeric_conversion"})
			if err != nil {
				t.Fatalf("numeric_conversion failed: %v", err)
			}
			// FieldFloat coerces the result to float64.
			wantF, _ := asFloat(tt.want)
			if got, _ := asFloat(out); got != wantF {
				t.Errorf("out = %v, want %v", out, tt.want)
			}
		})
	}
}

func TestDateFormat(t *testing.T) {
	out, _, err := TransformValue("2026-02-02T10:30:00.000+1100", types.FieldDate, map[string]interface{}{
		"type":          "date_format",
		"output_format": "2006-01-02",
	})
	if err != nil {
		t.Fatalf("date_format failed: %v", err)
	}
	if out != "2026-02-02" {
		t.Errorf("out = %v, want 2026-02-02", out)
	}

	_, _, err = TransformValue("yesterday", types.FieldDate, map[string]interface{}{"type": "date_format"})
	if err == nil {
		t.Error("unparseable date accepted")
	}
}

func TestConditional(t *testing.T) {
	config := map[string]interface{}{
		"type": "conditional",
		"conditions": []interface{}{
			map[string]interface{}{"operator": "equals", "value": "Highest", "result": "p0"},
			map[string]interface{}{"operator": "contains", "value": "High", "result": "p1"},
			map[string]interface{}{"operator": "greater_than", "value": 5, "result": "big"},
		},
		"default": "p3",
	}

	tests := []struct {
		raw  interface{}
		want interface{}
	}{
		{"Highest", "p0"},
		{"Very High", "p1"},
		{8, "big"},
		{"Low", "p3"},
	}
	for _, tt := range tests {
		out, _, err := TransformValue(tt.raw, types.FieldString, config)
		if err != nil {
			t.Fatalf("conditional(%v) failed: %v", tt.raw, err)
		}
		if out != tt.want {
			t.Errorf("conditional(%v) = %v, want %v", tt.raw, out, tt.want)
		}
	}
}

func TestCoerceType(t *testing.T) {
	tests := []struct {
		name      string
		v         interface{}
		fieldType types.FieldType
		want      interface{}
	}{
		{"string from number", 3.5, types.FieldString, "3.5"},
		{"integer from float", 7.0, types.FieldInteger, int64(7)},
		{"float from string", "2.25", types.FieldFloat, 2.25},
		{"bool from yes", "yes", types.FieldBoolean, true},
		{"bool from off", "off", types.FieldBoolean, false},
		{"bool from number", 1.0, types.FieldBoolean, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerceType(tt.v, tt.fieldType); got != tt.want {
				t.Errorf("coerceType(%v, %s) = %v, want %v", tt.v, tt.fieldType, got, tt.want)
			}
		})
	}

	// Scalars wrap into a single-element list.
	got := coerceType("x", types.FieldList)
	list, ok := got.([]interface{})
	if !ok || len(list) != 1 || list[0] != "x" {
		t.Errorf("coerceType list = %v", got)
	}
}

func TestValidateValue(t *testing.T) {
	t.Run("required missing", func(t *testing.T) {
		result := ValidateValue(nil, nil, types.FieldString, true)
		if result.OK {
			t.Error("nil value passed required validation")
		}
		if result := ValidateValue(nil, nil, types.FieldString, false); !result.OK {
			t.Error("nil value failed optional validation")
		}
	})

	t.Run("numeric range", func(t *testing.T) {
		rules := map[string]interface{}{"min_value": 0, "max_value": 100}
		if r := ValidateValue(40.0, rules, types.FieldFloat, false); !r.OK {
			t.Errorf("in-range value rejected: %v", r.Errors)
		}
		if r := ValidateValue(120.0, rules, types.FieldFloat, false); r.OK {
			t.Error("out-of-range value accepted")
		}
	})

	t.Run("string length and pattern", func(t *testing.T) {
		rules := map[string]interface{}{
			"min_length": 2,
			"max_length": 10,
			"pattern":    `^[A-Z]+-\d+$`,
		}
		if r := ValidateValue("WEB-12", rules, types.FieldString, false); !r.OK {
			t.Errorf("valid key rejected: %v", r.Errors)
		}
		if r := ValidateValue("web-12", rules, types.FieldString, false); r.OK {
			t.Error("pattern mismatch accepted")
		}
		if r := ValidateValue("WEB-123456789", rules, types.FieldString, false); r.OK {
			t.Error("over-length value accepted")
		}
	})

	t.Run("allowed values", func(t *testing.T) {
		rules := map[string]interface{}{"allowed_values": []interface{}{"todo", "doing", "done"}}
		if r := ValidateValue("doing", rules, types.FieldString, false); !r.OK {
			t.Errorf("allowed value rejected: %v", r.Errors)
		}
		if r := ValidateValue("blocked", rules, types.FieldString, false); r.OK {
			t.Error("disallowed value accepted")
		}
	})

	t.Run("type check", func(t *testing.T) {
		rules := map[string]interface{}{"type_check": true}
		if r := ValidateValue(3.0, rules, types.FieldInteger, false); !r.OK {
			t.Errorf("integral float rejected: %v", r.Errors)
		}
		if r := ValidateValue("abc", rules, types.FieldInteger, false); r.OK {
			t.Error("non-integer passed integer type check")
		}
	})
}
