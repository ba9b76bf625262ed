package patterns

import (
	"context"
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
)

const cancelCheckInterval = 256

// Matcher applies registered rules to every node of a model. It holds no
// per-file state and may be shared across goroutines.
type Matcher struct {
	registry *Registry
	logger   *slog.Logger
}

func NewMatcher(registry *Registry, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{registry: registry, logger: logger}
}

func (m *Matcher) Registry() *Registry { return m.registry }

// Result carries the findings of one file along with the (rule, node)
// evaluations that failed.
type Result struct {
	Defects     []defect.Defect
	Diagnostics []defect.Diagnostic
}

// outcome is the result of one (rule, node) evaluation: either defects or
// a failure, never both.
type outcome struct {
	defects []defect.Defect
	err     error
}

// Match walks the model once and runs every enabled matcher rule on each
// node. Symbolic rules are accepted but produce nothing here. A failing
// detector only loses its own (rule, node) evaluation and is reported as a
// diagnostic. An unknown id fails before any node is visited. When ctx is
// cancelled the defects found so far are returned together with the error.
func (m *Matcher) Match(ctx context.Context, model *ir.Model, enabled []string, thresholds map[string]int) (Result, error) {
	var res Result
	if model == nil {
		return res, errors.New(errors.CodeInternal, "match called without a model")
	}
	rules, err := m.activeRules(enabled, thresholds)
	if err != nil {
		return res, err
	}
	if len(rules) == 0 {
		return res, nil
	}

	fc := &FileContext{Model: model}
	visited := 0
	for n := range model.Walk() {
		visited++
		if visited%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, errors.Wrap(err, errors.CodeCancelled, "matching interrupted")
			}
		}
		for _, ar := range rules {
			fc.rule = ar.rule
			fc.Threshold = ar.threshold
			out := evaluate(ar.rule, n, fc)
			if out.err != nil {
				res.Diagnostics = append(res.Diagnostics, m.diagnose(model, ar.rule, n, out.err))
				continue
			}
			res.Defects = append(res.Defects, m.accept(model, ar.rule, n, out.defects, &res)...)
		}
	}
	if err := ctx.Err(); err != nil {
		return res, errors.Wrap(err, errors.CodeCancelled, "matching interrupted")
	}
	return res, nil
}

type activeRule struct {
	rule      Rule
	threshold int
}

func (m *Matcher) activeRules(enabled []string, thresholds map[string]int) ([]activeRule, error) {
	if _, invalid := m.registry.Split(enabled); len(invalid) > 0 {
		err := errors.Configuration("patterns.enabled", fmt.Sprintf("unknown pattern ids: %v", invalid))
		return nil, errors.AddContext(err, errors.CtxPattern, invalid[0])
	}
	seen := make(map[string]bool, len(enabled))
	out := make([]activeRule, 0, len(enabled))
	for _, id := range enabled {
		if seen[id] {
			continue
		}
		seen[id] = true
		rule, _ := m.registry.Lookup(id)
		if rule.Engine != EngineMatcher {
			continue
		}
		out = append(out, activeRule{rule: rule, threshold: resolveThreshold(rule, thresholds)})
	}
	slices.SortFunc(out, func(a, b activeRule) int { return cmp.Compare(a.rule.ID, b.rule.ID) })
	return out, nil
}

// resolveThreshold prefers a positive configured value over the rule's
// default.
func resolveThreshold(rule Rule, thresholds map[string]int) int {
	if rule.ThresholdKey == "" {
		return 0
	}
	if v, ok := thresholds[rule.ThresholdKey]; ok && v > 0 {
		return v
	}
	return rule.DefaultThreshold
}

func evaluate(rule Rule, n *ir.Node, fc *FileContext) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("detector panicked: %v", r)}
		}
	}()
	found, err := rule.Detect(n, fc)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{defects: found}
}

// accept stamps rule metadata onto raw findings and drops any that point
// outside the file.
func (m *Matcher) accept(model *ir.Model, rule Rule, n *ir.Node, found []defect.Defect, res *Result) []defect.Defect {
	if len(found) == 0 {
		return nil
	}
	out := found[:0]
	for _, d := range found {
		d.Pattern = rule.ID
		if !d.Severity.Valid() {
			d.Severity = rule.Severity
		}
		d.File = model.Path
		d.Suggestion = Suggest(rule.ID)
		if !model.ValidLine(d.Line) {
			res.Diagnostics = append(res.Diagnostics, m.diagnose(model, rule, n, fmt.Errorf("line %d outside file", d.Line)))
			continue
		}
		out = append(out, d)
	}
	return out
}

func (m *Matcher) diagnose(model *ir.Model, rule Rule, n *ir.Node, err error) defect.Diagnostic {
	m.logger.Debug("detector failed",
		"pattern", rule.ID,
		"file", model.Path,
		"line", n.Line(),
		"error", err,
	)
	return defect.Diagnostic{
		File:    model.Path,
		Line:    n.Line(),
		Pattern: rule.ID,
		Code:    string(errors.CodeDetector),
		Message: err.Error(),
	}
}
