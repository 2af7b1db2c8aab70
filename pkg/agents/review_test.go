package agents

import "testing"

const cleanReview = `### Summary of Issues

The code is correct and minimal.

### Detailed Review and Recommendations

- **Bugs/Issues:** None
- **Security Flaws:** None.
- **Improvements:** N/A
- **Performance:** Consider caching results for repeated inputs.

### Final Improvement Recommendations

1. Add input validation in a future version.`

const findingsReview = `### Summary of Issues

The function ignores non-numeric input.

### Detailed Review and Recommendations

- **Bugs/Issues:** Passing strings concatenates instead of adding.
- **Security Flaws:** No security flaws found.
- **Improvements:**
  - Validate argument types.
  - Add a doc comment.
- **Performance:** None

### Final Improvement Recommendations

1. Validate types.`

func TestParseReview_Clean(t *testing.T) {
	r := ParseReview(cleanReview)
	for _, c := range Categories {
		if _, ok := r.Findings[c]; !ok {
			t.Errorf("category %q not found", c)
		}
	}
	for _, c := range []Category{CategoryBugs, CategorySecurity, CategoryImprovements} {
		if r.Actionable(c) {
			t.Errorf("%q actionable, body %q", c, r.Findings[c])
		}
	}
	if !r.Actionable(CategoryPerformance) {
		t.Error("performance finding not detected")
	}
	if r.HasActionableFindings() {
		t.Error("performance alone must not count as actionable")
	}
	if !r.ContainsMarker() {
		t.Error("marker check should see the labels")
	}
}

func TestParseReview_Findings(t *testing.T) {
	r := ParseReview(findingsReview)
	if !r.Actionable(CategoryBugs) {
		t.Errorf("bugs body %q not actionable", r.Findings[CategoryBugs])
	}
	if r.Actionable(CategorySecurity) {
		t.Errorf("security body %q should be a none marker", r.Findings[CategorySecurity])
	}
	if got := r.Findings[CategoryImprovements]; got != "- Validate argument types.\n  - Add a doc comment." {
		t.Errorf("improvements body = %q", got)
	}
	if r.Actionable(CategoryPerformance) {
		t.Error("performance should be none")
	}
	if !r.HasActionableFindings() {
		t.Error("want actionable findings")
	}
}

func TestParseReview_HeadingStyle(t *testing.T) {
	text := "## Bugs/Issues\n\nnone\n\n## Security Flaws\n\nSQL built by string concatenation.\n\n## Notes\n\nlooks fine"
	r := ParseReview(text)
	if r.Actionable(CategoryBugs) {
		t.Errorf("bugs = %q", r.Findings[CategoryBugs])
	}
	if got := r.Findings[CategorySecurity]; got != "SQL built by string concatenation." {
		t.Errorf("security = %q, want body to stop at next heading", got)
	}
}

func TestParseReview_MissingPerformanceDoesNotLeak(t *testing.T) {
	text := "- **Improvements:** none\n\n### Final Improvement Recommendations\n\n1. Ship it."
	r := ParseReview(text)
	if r.Actionable(CategoryImprovements) {
		t.Errorf("improvements = %q, want final section excluded", r.Findings[CategoryImprovements])
	}
}

func TestParseReview_SentenceIsNotHeader(t *testing.T) {
	r := ParseReview("Improvements are unnecessary here.\nPerformance is fine.")
	if len(r.Findings) != 0 {
		t.Errorf("findings = %v, want none", r.Findings)
	}
	if !r.HasActionableFindings() {
		t.Error("unparsed report naming a refine category should count as actionable")
	}
	if ParseReview("Performance is fine.").HasActionableFindings() {
		t.Error("performance mention alone should not count")
	}
}

func TestParseReview_NumberedList(t *testing.T) {
	text := "### Detailed Review and Recommendations\n\n" +
		"1. **Bugs/Issues:** division by zero when b is 0\n" +
		"2. **Security Flaws:** None\n" +
		"3. **Improvements:** N/A\n" +
		"4. **Performance:** None"
	r := ParseReview(text)
	if got := r.Findings[CategoryBugs]; got != "division by zero when b is 0" {
		t.Errorf("bugs = %q", got)
	}
	for _, c := range []Category{CategorySecurity, CategoryImprovements, CategoryPerformance} {
		if _, ok := r.Findings[c]; !ok {
			t.Errorf("category %q not found", c)
		}
		if r.Actionable(c) {
			t.Errorf("%q actionable, body %q", c, r.Findings[c])
		}
	}
	if !r.HasActionableFindings() {
		t.Error("want actionable findings")
	}
}

func TestParseReview_NumberedHeading(t *testing.T) {
	cases := []struct {
		name, text string
		want       bool
	}{
		{"finding", "#### 1. Bugs/Issues\n- crashes on nil\n\n#### 2. Security Flaws\nNone", true},
		{"clean", "#### 1. Bugs/Issues\nNone\n\n#### 2. Security Flaws\nNone\n\n#### 3) Improvements\nNone", false},
		{"bold number", "**1. Bugs/Issues:** crashes on nil", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := ParseReview(tc.text)
			if _, ok := r.Findings[CategoryBugs]; !ok {
				t.Fatalf("bugs section not found in %q", tc.text)
			}
			if got := r.HasActionableFindings(); got != tc.want {
				t.Errorf("HasActionableFindings = %v, want %v (findings %v)", got, tc.want, r.Findings)
			}
		})
	}
}

func TestParseReview_Empty(t *testing.T) {
	r := ParseReview("")
	if r.HasActionableFindings() || r.ContainsMarker() {
		t.Error("empty report should have no findings")
	}
}

func TestIsNoneMarker(t *testing.T) {
	cases := map[string]bool{
		"":                              true,
		"None":                          true,
		"None.":                         true,
		"*None*":                        true,
		"n/a":                           true,
		"-":                             true,
		"No bugs found.":                true,
		"No significant issues found":   true,
		"Nothing to report.":            true,
		"No security risks identified.": true,
		"Not applicable":                true,
		"Off-by-one in loop bound":      false,
		"None, but input is unchecked":  false,
		"No input validation on `path`": false,
	}
	for in, want := range cases {
		if got := isNoneMarker(in); got != want {
			t.Errorf("isNoneMarker(%q) = %v, want %v", in, got, want)
		}
	}
}
