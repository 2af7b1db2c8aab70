// Package prompt holds the stage prompt templates and the placeholder filler
// that binds request values into them.
package prompt

import (
	"fmt"
	"regexp"
)

// placeholderRe matches {{NAME}} tokens. Whitespace inside the braces is
// tolerated so "{{ NAME }}" binds the same key.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// MissingBindingError is returned when a template references a placeholder
// that has no value in the bindings map.
type MissingBindingError struct {
	Key string
}

func (e *MissingBindingError) Error() string {
	return fmt.Sprintf("prompt: missing binding for placeholder %q", e.Key)
}

// Fill replaces every {{KEY}} placeholder in tpl with bindings[KEY].
// Bound values are inserted verbatim and are never re-scanned for
// placeholders. The first unbound key (in template order) fails the call.
func Fill(tpl string, bindings map[string]string) (string, error) {
	for _, key := range Placeholders(tpl) {
		if _, ok := bindings[key]; !ok {
			return "", &MissingBindingError{Key: key}
		}
	}
	return placeholderRe.ReplaceAllStringFunc(tpl, func(tok string) string {
		key := placeholderRe.FindStringSubmatch(tok)[1]
		return bindings[key]
	}), nil
}

// Placeholders lists the distinct placeholder names in tpl in order of first
// appearance.
func Placeholders(tpl string) []string {
	var keys []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(tpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}
