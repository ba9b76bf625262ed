// Package defect holds the finding types shared by every analyzer.
package defect

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Severity is ordered: Low < Medium < High < Critical.
type Severity int

const (
	Low Severity = iota + 1
	Medium
	High
	Critical
)

var severityNames = map[Severity]string{
	Low:      "low",
	Medium:   "medium",
	High:     "high",
	Critical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

func (s Severity) Valid() bool {
	return s >= Low && s <= Critical
}

// ParseSeverity accepts low, medium, high or critical in any case.
func ParseSeverity(raw string) (Severity, error) {
	want := strings.ToLower(strings.TrimSpace(raw))
	for s, name := range severityNames {
		if name == want {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", raw)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Defect is one finding. Line 0 marks a whole-function finding.
type Defect struct {
	Pattern     string   `json:"pattern"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Context     string   `json:"context,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

func (d Defect) String() string {
	return fmt.Sprintf("%s:%d [%s] %s: %s", d.File, d.Line, d.Severity, d.Pattern, d.Description)
}

// Diagnostic records a failure that was isolated instead of aborting the
// run: a file that did not parse or a rule that failed on one node.
type Diagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Pattern != "" {
		return fmt.Sprintf("%s:%d %s (%s): %s", d.File, d.Line, d.Code, d.Pattern, d.Message)
	}
	return fmt.Sprintf("%s:%d %s: %s", d.File, d.Line, d.Code, d.Message)
}

// FilterBySeverity keeps defects at or above min, preserving order.
func FilterBySeverity(defects []Defect, min Severity) []Defect {
	out := make([]Defect, 0, len(defects))
	for _, d := range defects {
		if d.Severity >= min {
			out = append(out, d)
		}
	}
	return out
}

// Sort orders defects by file, line, then pattern. The sort is stable so
// defects on the same line keep their detection order.
func Sort(defects []Defect) {
	sort.SliceStable(defects, func(i, j int) bool {
		a, b := defects[i], defects[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Pattern < b.Pattern
	})
}

// CountBySeverity tallies defects per severity.
func CountBySeverity(defects []Defect) map[Severity]int {
	out := make(map[Severity]int, 4)
	for _, d := range defects {
		out[d.Severity]++
	}
	return out
}

// CountByPattern tallies defects per pattern id.
func CountByPattern(defects []Defect) map[string]int {
	out := make(map[string]int)
	for _, d := range defects {
		out[d.Pattern]++
	}
	return out
}
