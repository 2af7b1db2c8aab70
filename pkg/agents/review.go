package agents

import (
	"regexp"
	"strings"
)

// Category is one finding section of the review report.
type Category string

const (
	CategoryBugs         Category = "Bugs/Issues"
	CategorySecurity     Category = "Security Flaws"
	CategoryImprovements Category = "Improvements"
	CategoryPerformance  Category = "Performance"
)

// Categories lists the finding sections in report order.
var Categories = []Category{CategoryBugs, CategorySecurity, CategoryImprovements, CategoryPerformance}

// refineCategories are the sections whose findings warrant a refinement pass.
var refineCategories = []Category{CategoryBugs, CategorySecurity, CategoryImprovements}

// ReviewReport is the structured form of the reviewer's prose.
type ReviewReport struct {
	// Text is the cleaned report as the reviewer wrote it.
	Text string
	// Findings holds the trimmed body of each category section that was
	// present in the report. A missing section has no entry.
	Findings map[Category]string
}

var (
	// categoryHeaderRe matches a category label at the start of a line in any
	// of the shapes models produce: "- **Bugs/Issues:** ...", "### Improvements",
	// "Security Flaws: ...", "**Performance**: ...", "1. **Bugs/Issues:** ...",
	// "#### 2. Security Flaws".
	categoryHeaderRe = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+][ \t]+|\d+[.)][ \t]+)?(#{1,6}[ \t]+)?(?:\d+[.)][ \t]+)?(\*\*|__)?(?:\d+[.)][ \t]+)?(Bugs/Issues|Security Flaws|Improvements|Performance)(?:\*\*|__)?[ \t]*(:)?[ \t]*(?:\*\*|__)?`)

	// headingRe matches any markdown heading line; it ends a category body.
	headingRe = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+\S`)

	noneRe = regexp.MustCompile(`^(?:none(?: (?:found|identified|noted|detected|reported))?|n/?a|nil|nothing(?: to report)?|not applicable|no(?: known| significant| obvious| major| critical)? (?:bugs?|issues?|security (?:flaws?|issues?|risks?|concerns?)|flaws?|improvements?|findings?|problems?|concerns?|risks?)(?: (?:found|identified|detected|needed|required|noted|to report))?)$`)
)

// ParseReview splits a review report into its category sections.
func ParseReview(text string) ReviewReport {
	report := ReviewReport{Text: text, Findings: map[Category]string{}}

	type header struct {
		cat        Category
		start, end int
	}
	var headers []header
	for _, m := range categoryHeaderRe.FindAllStringSubmatchIndex(text, -1) {
		heading, bold, colon := m[2] >= 0, m[4] >= 0, m[8] >= 0
		if !heading && !bold && !colon {
			// A sentence that happens to start with a category word.
			continue
		}
		headers = append(headers, header{cat: Category(text[m[6]:m[7]]), start: m[0], end: m[1]})
	}
	if len(headers) == 0 {
		return report
	}

	// Every header and every markdown heading bounds the body before it.
	var bounds []int
	for _, h := range headers {
		bounds = append(bounds, h.start)
	}
	for _, m := range headingRe.FindAllStringIndex(text, -1) {
		bounds = append(bounds, m[0])
	}

	for _, h := range headers {
		end := len(text)
		for _, b := range bounds {
			if b > h.start && b < end {
				end = b
			}
		}
		body := strings.TrimSpace(text[h.end:max(end, h.end)])
		if prev, ok := report.Findings[h.cat]; ok && prev != "" {
			// A repeated section only adds to what was already found.
			if body != "" {
				body = prev + "\n" + body
			} else {
				body = prev
			}
		}
		report.Findings[h.cat] = body
	}
	return report
}

// Actionable reports whether the category section exists and carries a
// finding other than a "none" marker.
func (r ReviewReport) Actionable(c Category) bool {
	body, ok := r.Findings[c]
	if !ok {
		return false
	}
	return !isNoneMarker(body)
}

// HasActionableFindings reports whether any of Bugs/Issues, Security Flaws or
// Improvements is actionable. Performance findings never count. A report
// with no recognizable section that still names a refine category counts as
// actionable, so an unfamiliar layout errs toward refining.
func (r ReviewReport) HasActionableFindings() bool {
	if len(r.Findings) == 0 {
		return r.ContainsMarker()
	}
	for _, c := range refineCategories {
		if r.Actionable(c) {
			return true
		}
	}
	return false
}

// ContainsMarker reports whether the raw text mentions any refine category
// label at all, regardless of what follows it.
func (r ReviewReport) ContainsMarker() bool {
	for _, c := range refineCategories {
		if strings.Contains(r.Text, string(c)) {
			return true
		}
	}
	return false
}

func isNoneMarker(body string) bool {
	s := strings.ToLower(body)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " -*_•.:;!`[]()")
	if s == "" {
		return true
	}
	return noneRe.MatchString(s)
}
