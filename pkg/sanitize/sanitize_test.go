package sanitize_test

import (
	"testing"

	"github.com/ravi-parthasarathy/codecrew/pkg/sanitize"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"think inline", "a<think>secret</think>b", "ab"},
		{"think multiline", "<think>\nplan\nmore\n</think>\ncode()", "code()"},
		{"two think spans", "<think>1</think>x<think>2</think>y", "xy"},
		{"fenced js", "```js\nfunction add(a,b){return a+b;}\n```", "function add(a,b){return a+b;}"},
		{"fenced bare", "```\nx := 1\n```", "x := 1"},
		{"fence with surrounding blank lines", "\n\n```python\nprint(1)\n```\n\n", "print(1)"},
		{"think then fence", "<think>hmm</think>\n```go\nfmt.Println()\n```", "fmt.Println()"},
		{"crlf fence", "```js\r\nx()\r\n```\r\n", "x()"},
		{"indented fence line", "  ```ts\nlet a = 1\n  ```", "let a = 1"},
		{"inner backticks kept", "const s = `template`", "const s = `template`"},
		{"spliced think span", "<thi<think>x</think>nk>gone</think>kept", "kept"},
		{"unclosed think kept", "<think>never closed", "<think>never closed"},
		{"empty", "", ""},
		{"whitespace only", " \n\t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitize.Sanitize(tt.in)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"a<think>secret</think>b",
		"```js\n```js\ncode\n```\n```",
		"<thi<think>x</think>nk>y</think>z",
		"  ```\n  <think>a</think>\n```  ",
		"<think><think>a</think></think>b",
		"plain text\n\nwith lines\n",
		"```\n\n```",
	}
	for _, in := range inputs {
		once := sanitize.Sanitize(in)
		twice := sanitize.Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
		onceThink := sanitize.StripThink(in)
		if again := sanitize.StripThink(onceThink); again != onceThink {
			t.Errorf("StripThink not idempotent for %q: once=%q twice=%q", in, onceThink, again)
		}
	}
}

func TestStripThink_KeepsFences(t *testing.T) {
	in := "<think>x</think>\n## Example\n```js\nrun()\n```\n"
	want := "## Example\n```js\nrun()\n```"
	if got := sanitize.StripThink(in); got != want {
		t.Errorf("StripThink = %q, want %q", got, want)
	}
}

func TestStripFences_NoFence(t *testing.T) {
	in := "  leading and trailing  "
	if got := sanitize.StripFences(in); got != in {
		t.Errorf("StripFences changed fence-free input: %q", got)
	}
}
