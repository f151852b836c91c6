package analysis

import "strings"

// Dedupe removes exact duplicate strings while keeping first-occurrence
// order. Blank strings are dropped. Comparison is case-sensitive.
func Dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// DedupeSections applies Dedupe to every list of a section map independently.
// Duplicates across different keys are kept.
func DedupeSections[K comparable](sections map[K][]string) map[K][]string {
	out := make(map[K][]string, len(sections))
	for k, v := range sections {
		out[k] = Dedupe(v)
	}
	return out
}

// Aggregate merges several per-category maps, appending lists in the order the
// parts are given, then dedupes each category. Keys listed in order always
// get a non-nil list.
func Aggregate[K comparable](order []K, parts ...map[K][]string) map[K][]string {
	merged := make(map[K][]string, len(order))
	for _, k := range order {
		merged[k] = nil
	}
	for _, p := range parts {
		for k, v := range p {
			merged[k] = append(merged[k], v...)
		}
	}
	return DedupeSections(merged)
}

// aggregator collects generated items per section in generation order.
type aggregator struct {
	questions map[QuestionCategory][]string
	tests     map[TestCategory][]string
	risks     []string
	technical []string
	clarify   []string
}

func newAggregator() *aggregator {
	return &aggregator{
		questions: make(map[QuestionCategory][]string),
		tests:     make(map[TestCategory][]string),
	}
}

// result dedupes every section and makes sure every known category has a
// non-nil list.
func (a *aggregator) result() Result {
	r := Result{
		Questions:               DedupeSections(a.questions),
		TestCases:               DedupeSections(a.tests),
		RiskAreas:               Dedupe(a.risks),
		TechnicalConsiderations: Dedupe(a.technical),
		ClarificationsNeeded:    Dedupe(a.clarify),
	}
	for _, c := range QuestionCategories {
		if r.Questions[c] == nil {
			r.Questions[c] = []string{}
		}
	}
	for _, c := range TestCategories {
		if r.TestCases[c] == nil {
			r.TestCases[c] = []string{}
		}
	}
	return r
}
