package formula

import (
	"errors"
	"testing"
)

func TestEvaluate_BasicOperations(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		values  map[string]float64
		want    float64
	}{
		{"addition", "a + b", map[string]float64{"a": 5, "b": 3}, 8},
		{"subtraction", "a - b", map[string]float64{"a": 10, "b": 3}, 7},
		{"multiplication", "a * b", map[string]float64{"a": 4, "b": 5}, 20},
		{"division", "a / b", map[string]float64{"a": 20, "b": 4}, 5},
		{"modulo", "a % b", map[string]float64{"a": 7, "b": 3}, 1},
		{"power", "a ** 2", map[string]float64{"a": 3}, 9},
		{"single variable", "value", map[string]float64{"value": 42}, 42},
		{"numeric constant", "a * 100", map[string]float64{"a": 0.5}, 50},
		{"decimal numbers", "a * b", map[string]float64{"a": 2.5, "b": 4}, 10},
		{"negative values", "a + b", map[string]float64{"a": -5, "b": 10}, 5},
		{"unary minus", "-a + b", map[string]float64{"a": 5, "b": 10}, 5},
		{"parentheses", "(a + b) * c", map[string]float64{"a": 2, "b": 3, "c": 4}, 20},
		{"conversion rate", "(conversions / visitors) * 100", map[string]float64{"conversions": 50, "visitors": 1000}, 5},
		{"precedence", "a + b * c", map[string]float64{"a": 1, "b": 2, "c": 3}, 7},
		{"power right assoc", "a ** b ** c", map[string]float64{"a": 2, "b": 1, "c": 2}, 2},
		{"negative exponent", "a ** -1", map[string]float64{"a": 4}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.formula, tt.values)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvaluate_DivisionByZero(t *testing.T) {
	_, err := Evaluate("a / b", map[string]float64{"a": 10, "b": 0})
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("want ErrDivisionByZero, got %v", err)
	}
}

func TestEvaluate_MissingVariable(t *testing.T) {
	_, err := Evaluate("a + b + c", map[string]float64{"a": 1, "b": 2})
	if !errors.Is(err, ErrMissingValues) {
		t.Errorf("want ErrMissingValues, got %v", err)
	}
}

func TestExtractVariables(t *testing.T) {
	vars := ExtractVariables("(conversions / visitors) * 100 + conversions")
	if len(vars) != 2 {
		t.Fatalf("want 2 variables, got %d: %v", len(vars), vars)
	}
	// 出現順を保持する
	if vars[0] != "conversions" || vars[1] != "visitors" {
		t.Errorf("want [conversions visitors], got %v", vars)
	}
}

func TestValidate_Valid(t *testing.T) {
	vars, err := Validate("(a + b) / c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vars) != 3 {
		t.Errorf("want 3 variables, got %v", vars)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		formula string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"no variables", "1 + 2"},
		{"unclosed parenthesis", "(a + b"},
		{"trailing operator", "a +"},
		{"function call", "max(a, b)"},
		{"attribute access", "a.b + 1"},
		{"code injection", "__import__('os')"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Validate(tt.formula); err == nil {
				t.Errorf("want error for formula %q", tt.formula)
			}
		})
	}
}

func TestValidate_ReservedKeyword(t *testing.T) {
	// 予約語は変数として扱わない
	if _, err := Validate("True + 1"); err == nil {
		t.Error("want error for reserved keyword formula")
	}
}
