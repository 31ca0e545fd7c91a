package services

import (
	"strings"
	"unicode/utf8"
)

// Sections is the three-way split of a raw optimization response.
type Sections struct {
	OptimizedPrompt  string
	Improvements     string
	ExpectedBenefits string
}

// Markers the upstream models are prompted to emit. Matching is plain
// substring containment over paragraph chunks; this is deliberately the same
// fragile heuristic the callers already depend on, kept behind this one
// function so a structured-output mode can replace it in one place.
const (
	markerOptimized = "优化后的"
	markerImproveA  = "改进"
	markerImproveB  = "优化"
	markerBenefitA  = "预期"
	markerBenefitB  = "效果"
)

// splitSections splits raw model output into optimized prompt, improvements
// rationale, and expected benefits. When no paragraph matches any marker the
// whole text becomes the optimized prompt and the other fields stay empty;
// callers must tolerate that.
func splitSections(raw string) Sections {
	var s Sections
	for _, para := range paragraphs(raw) {
		switch {
		case s.OptimizedPrompt == "" && strings.Contains(para, markerOptimized):
			s.OptimizedPrompt = stripHeading(para)
		case s.Improvements == "" && (strings.Contains(para, markerImproveA) || strings.Contains(para, markerImproveB)):
			s.Improvements = stripHeading(para)
		case s.ExpectedBenefits == "" && (strings.Contains(para, markerBenefitA) || strings.Contains(para, markerBenefitB)):
			s.ExpectedBenefits = stripHeading(para)
		}
	}
	if s.OptimizedPrompt == "" {
		return Sections{OptimizedPrompt: strings.TrimSpace(raw)}
	}
	return s
}

// paragraphs splits text into non-empty paragraph-like chunks.
func paragraphs(raw string) []string {
	norm := strings.ReplaceAll(raw, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(norm, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// stripHeading drops a leading heading line ("优化后的提示词：") when the
// paragraph has body lines below it; a bare heading keeps its text.
func stripHeading(para string) string {
	lines := strings.SplitN(para, "\n", 2)
	if len(lines) == 2 {
		head := strings.TrimSpace(lines[0])
		if strings.HasSuffix(head, ":") || strings.HasSuffix(head, "：") {
			return strings.TrimSpace(lines[1])
		}
	}
	// Single line: strip an inline "heading: body" prefix if present.
	if i := strings.IndexAny(para, ":："); i >= 0 {
		_, size := utf8.DecodeRuneInString(para[i:])
		if body := strings.TrimSpace(para[i+size:]); body != "" {
			return body
		}
	}
	return strings.TrimSpace(para)
}

// flattenLines joins list-ish values into a single newline-separated string;
// the storage schema only accepts strings for these fields.
func flattenLines(values []string) string {
	var kept []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, "\n")
}
