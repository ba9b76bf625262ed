// Package patterns holds the rule registry and the matcher that runs rules
// over an ir.Model.
package patterns

import (
	"fmt"
	"sort"
	"strings"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
)

type Category string

const (
	CategoryBasic       Category = "basic"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
)

// Engine names the component that produces a rule's findings.
type Engine int

const (
	// EngineMatcher rules run a Detector on every node.
	EngineMatcher Engine = iota
	// EngineSymbolic rules are confirmed by the symbolic executor and carry
	// no node detector.
	EngineSymbolic
)

// Detector inspects one node. Returning an error (or panicking) drops only
// this (rule, node) evaluation.
type Detector func(n *ir.Node, fc *FileContext) ([]defect.Defect, error)

type Rule struct {
	ID          string
	Description string
	Severity    defect.Severity
	// ThresholdKey names the numeric setting the rule compares against.
	ThresholdKey     string
	DefaultThreshold int
	Engine           Engine
	Detect           Detector

	category Category
}

func (r Rule) Category() Category { return r.category }

type RuleSet struct {
	Category Category
	Rules    []Rule
}

type Info struct {
	ID           string          `json:"id"`
	Description  string          `json:"description"`
	Severity     defect.Severity `json:"severity"`
	Category     Category        `json:"category"`
	ThresholdKey string          `json:"threshold_key,omitempty"`
	Symbolic     bool            `json:"symbolic,omitempty"`
}

// Registry is built once and only read afterwards, so one instance can be
// shared by every worker.
type Registry struct {
	rules map[string]Rule
	ids   []string
}

// NewRegistry merges rule sets into one namespace. A duplicate id, within a
// set or across sets, is a configuration error.
func NewRegistry(sets ...RuleSet) (*Registry, error) {
	r := &Registry{rules: make(map[string]Rule)}
	for _, set := range sets {
		for _, rule := range set.Rules {
			if strings.TrimSpace(rule.ID) == "" {
				return nil, errors.Configuration("patterns", fmt.Sprintf("rule without id in %s set", set.Category))
			}
			if existing, dup := r.rules[rule.ID]; dup {
				err := errors.Configuration("patterns", fmt.Sprintf("duplicate pattern id %q registered by %s and %s", rule.ID, existing.category, set.Category))
				return nil, errors.AddContext(err, errors.CtxPattern, rule.ID)
			}
			if !rule.Severity.Valid() {
				return nil, errors.AddContext(errors.Configuration("patterns", "invalid severity"), errors.CtxPattern, rule.ID)
			}
			if rule.Engine == EngineMatcher && rule.Detect == nil {
				return nil, errors.AddContext(errors.Configuration("patterns", "matcher rule without detector"), errors.CtxPattern, rule.ID)
			}
			rule.category = set.Category
			r.rules[rule.ID] = rule
			r.ids = append(r.ids, rule.ID)
		}
	}
	sort.Strings(r.ids)
	return r, nil
}

// DefaultRegistry holds the basic, security and performance rule sets.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(BasicRules(), SecurityRules(), PerformanceRules())
}

func (r *Registry) Lookup(id string) (Rule, bool) {
	rule, ok := r.rules[id]
	return rule, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.rules[id]
	return ok
}

// IDs returns every registered id in sorted order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

func (r *Registry) Info(id string) (Info, error) {
	rule, ok := r.rules[id]
	if !ok {
		return Info{}, errors.AddContext(errors.New(errors.CodeNotFound, "unknown pattern"), errors.CtxPattern, id)
	}
	return infoOf(rule), nil
}

func infoOf(rule Rule) Info {
	return Info{
		ID:           rule.ID,
		Description:  rule.Description,
		Severity:     rule.Severity,
		Category:     rule.category,
		ThresholdKey: rule.ThresholdKey,
		Symbolic:     rule.Engine == EngineSymbolic,
	}
}

// List returns every rule's info sorted by id, optionally restricted to
// one category.
func (r *Registry) List(category ...Category) []Info {
	out := make([]Info, 0, len(r.ids))
	for _, id := range r.ids {
		rule := r.rules[id]
		if len(category) > 0 && rule.category != category[0] {
			continue
		}
		out = append(out, infoOf(rule))
	}
	return out
}

// Split partitions ids into registered and unknown, keeping input order.
func (r *Registry) Split(ids []string) (valid, invalid []string) {
	for _, id := range ids {
		if r.Has(id) {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	return valid, invalid
}

// Resolve turns configured enabled/disabled lists into the ordered set of
// ids to run. An empty enabled list selects every registered rule. Unknown
// ids in either list are a configuration error.
func (r *Registry) Resolve(enabled, disabled []string) ([]string, error) {
	if _, invalid := r.Split(enabled); len(invalid) > 0 {
		return nil, errors.AddContext(errors.Configuration("patterns.enabled", "unknown pattern id"), errors.CtxPattern, strings.Join(invalid, ","))
	}
	if _, invalid := r.Split(disabled); len(invalid) > 0 {
		return nil, errors.AddContext(errors.Configuration("patterns.disabled", "unknown pattern id"), errors.CtxPattern, strings.Join(invalid, ","))
	}

	source := enabled
	if len(source) == 0 {
		source = r.ids
	}
	skip := make(map[string]bool, len(disabled))
	for _, id := range disabled {
		skip[id] = true
	}
	seen := make(map[string]bool, len(source))
	out := make([]string, 0, len(source))
	for _, id := range source {
		if skip[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// SymbolicEnabled reports whether any symbolic rule is in ids.
func (r *Registry) SymbolicEnabled(ids []string) bool {
	for _, id := range ids {
		if rule, ok := r.rules[id]; ok && rule.Engine == EngineSymbolic {
			return true
		}
	}
	return false
}
