package patterns

import (
	"sort"

	"pyscan/internal/engine/defect"
)

// Summary aggregates a defect list for reports and the history store.
type Summary struct {
	Total         int                          `json:"total"`
	BySeverity    map[string]int               `json:"by_severity"`
	ByPattern     map[string]int               `json:"by_pattern"`
	ByCategory    map[Category]int             `json:"by_category"`
	AffectedLines map[string][]int             `json:"affected_lines"`
	Categorized   map[Category][]defect.Defect `json:"-"`
}

// Summarize groups defects by severity, pattern and category. Ids the
// registry does not know are counted under the basic category.
func (r *Registry) Summarize(defects []defect.Defect) Summary {
	s := Summary{
		Total:         len(defects),
		BySeverity:    make(map[string]int),
		ByPattern:     make(map[string]int),
		ByCategory:    make(map[Category]int),
		AffectedLines: make(map[string][]int),
		Categorized:   make(map[Category][]defect.Defect),
	}
	seen := make(map[string]map[int]bool)
	for _, d := range defects {
		cat := CategoryBasic
		if rule, ok := r.Lookup(d.Pattern); ok {
			cat = rule.Category()
		}
		s.BySeverity[d.Severity.String()]++
		s.ByPattern[d.Pattern]++
		s.ByCategory[cat]++
		s.Categorized[cat] = append(s.Categorized[cat], d)

		if seen[d.File] == nil {
			seen[d.File] = make(map[int]bool)
		}
		if d.Line > 0 && !seen[d.File][d.Line] {
			seen[d.File][d.Line] = true
			s.AffectedLines[d.File] = append(s.AffectedLines[d.File], d.Line)
		}
	}
	for file := range s.AffectedLines {
		sort.Ints(s.AffectedLines[file])
	}
	return s
}

// Statistics counts registered rules per category and severity.
type Statistics struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
	BySeverity map[string]int   `json:"by_severity"`
	Symbolic   int              `json:"symbolic"`
}

func (r *Registry) Statistics() Statistics {
	st := Statistics{
		Total:      len(r.ids),
		ByCategory: make(map[Category]int),
		BySeverity: make(map[string]int),
	}
	for _, id := range r.ids {
		rule := r.rules[id]
		st.ByCategory[rule.category]++
		st.BySeverity[rule.Severity.String()]++
		if rule.Engine == EngineSymbolic {
			st.Symbolic++
		}
	}
	return st
}
