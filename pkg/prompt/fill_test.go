package prompt_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ravi-parthasarathy/codecrew/pkg/prompt"
)

func TestFill(t *testing.T) {
	tests := []struct {
		name     string
		tpl      string
		bindings map[string]string
		want     string
	}{
		{"single", "Req: {{USER_REQUIREMENTS}}", map[string]string{"USER_REQUIREMENTS": "add"}, "Req: add"},
		{"repeated", "{{A}}-{{A}}", map[string]string{"A": "x"}, "x-x"},
		{"spaces inside braces", "{{ A }}!", map[string]string{"A": "y"}, "y!"},
		{"no placeholders", "plain", nil, "plain"},
		{"empty value", "[{{A}}]", map[string]string{"A": ""}, "[]"},
		{"value not rescanned", "{{A}}", map[string]string{"A": "{{B}}"}, "{{B}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := prompt.Fill(tt.tpl, tt.bindings)
			if err != nil {
				t.Fatalf("Fill: %v", err)
			}
			if got != tt.want {
				t.Errorf("Fill = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFill_MissingBinding(t *testing.T) {
	_, err := prompt.Fill("{{A}} and {{B}}", map[string]string{"A": "ok"})
	var mbe *prompt.MissingBindingError
	if !errors.As(err, &mbe) {
		t.Fatalf("want MissingBindingError, got %v", err)
	}
	if mbe.Key != "B" {
		t.Errorf("Key = %q, want %q", mbe.Key, "B")
	}
}

func TestPlaceholders(t *testing.T) {
	got := prompt.Placeholders("{{B}} {{A}} {{B}}")
	want := []string{"B", "A"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders = %v, want %v", got, want)
	}
}

// Every stage template must bind exactly the keys its agent supplies.
func TestTemplates_Keys(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
		want []string
	}{
		{"generator", prompt.Generator, []string{prompt.KeyRequirements}},
		{"reviewer", prompt.Reviewer, []string{prompt.KeyGeneratedCode}},
		{"refiner", prompt.Refiner, []string{prompt.KeyOriginalCode, prompt.KeyReviewReport}},
		{"documenter", prompt.Documenter, []string{prompt.KeyGeneratedCode, prompt.KeyReviewReport}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := prompt.Placeholders(tt.tpl)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("placeholders = %v, want %v", got, tt.want)
			}
		})
	}
}
