package report

import (
	"encoding/json"
	"path/filepath"
	"sort"

	"pyscan/internal/core/app"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/patterns"
	"pyscan/internal/shared/version"
)

// SARIF v2.1.0 schema, see https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Results     []sarifResult     `json:"results"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
	Properties       map[string]string      `json:"properties,omitempty"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine int `json:"startLine,omitempty"`
}

// Diagnostics become tool execution notifications rather than results.
type sarifInvocation struct {
	ExecutionSuccessful bool                `json:"executionSuccessful"`
	Notifications       []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

// GenerateSARIF builds a SARIF v2.1.0 document from a report. File URIs are
// made relative to projectRoot so reports are safe to share. Only rules
// with at least one result are listed; their metadata comes from registry.
func GenerateSARIF(projectRoot string, r *app.Report, registry *patterns.Registry) ([]byte, error) {
	results := make([]sarifResult, 0, len(r.Defects))
	used := make(map[string]defect.Severity)
	for _, d := range r.Defects {
		used[d.Pattern] = d.Severity
		text := d.Description
		if d.Suggestion != "" {
			text += ". " + d.Suggestion
		}
		results = append(results, sarifResult{
			RuleID:    d.Pattern,
			Level:     severityToLevel(d.Severity),
			Message:   sarifMessage{Text: text},
			Locations: []sarifLocation{fileLocation(projectRoot, d.File, d.Line)},
		})
	}

	invocation := sarifInvocation{ExecutionSuccessful: !r.Cancelled}
	for _, d := range r.Diagnostics {
		invocation.Notifications = append(invocation.Notifications, sarifNotification{
			Level:     "warning",
			Message:   sarifMessage{Text: d.Code + ": " + d.Message},
			Locations: []sarifLocation{fileLocation(projectRoot, d.File, d.Line)},
		})
	}

	doc := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:    "pyscan",
				Version: version.Version,
				Rules:   buildSARIFRules(used, registry),
			}},
			Results:     results,
			Invocations: []sarifInvocation{invocation},
		}},
	}
	return json.MarshalIndent(doc, "", "  ")
}

func buildSARIFRules(used map[string]defect.Severity, registry *patterns.Registry) []sarifRule {
	ids := make([]string, 0, len(used))
	for id := range used {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rules := make([]sarifRule, 0, len(ids))
	for _, id := range ids {
		rule := sarifRule{
			ID:               id,
			Name:             id,
			ShortDescription: sarifMessage{Text: id},
			DefaultConfig:    sarifRuleDefaultConfig{Level: severityToLevel(used[id])},
		}
		if registry != nil {
			if info, err := registry.Info(id); err == nil {
				rule.ShortDescription.Text = info.Description
				rule.DefaultConfig.Level = severityToLevel(info.Severity)
				rule.Properties = map[string]string{"category": string(info.Category)}
			}
		}
		rules = append(rules, rule)
	}
	return rules
}

func fileLocation(projectRoot, path string, line int) sarifLocation {
	loc := sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{
				URI:       relativeURI(projectRoot, path),
				URIBaseID: "%SRCROOT%",
			},
		},
	}
	if line > 0 {
		loc.PhysicalLocation.Region = &sarifRegion{StartLine: line}
	}
	return loc
}

// relativeURI converts an absolute file path to a forward-slash relative URI
// anchored at projectRoot. Relative paths pass through unchanged.
func relativeURI(projectRoot, filePath string) string {
	if projectRoot != "" && filepath.IsAbs(filePath) {
		if rel, err := filepath.Rel(projectRoot, filePath); err == nil {
			filePath = rel
		}
	}
	return filepath.ToSlash(filePath)
}

func severityToLevel(s defect.Severity) string {
	switch s {
	case defect.Critical, defect.High:
		return "error"
	case defect.Medium:
		return "warning"
	default:
		return "note"
	}
}
