package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pyscan/internal/core/app"
	"pyscan/internal/engine/defect"
)

// RenderMarkdown renders the defects as a table followed by a short
// summary, suitable for pull request comments or docs.
func RenderMarkdown(r *app.Report, projectRoot string) []byte {
	var b strings.Builder
	counts := defect.CountBySeverity(r.Defects)
	fmt.Fprintf(&b, "### pyscan: %d defects\n\n", len(r.Defects))
	fmt.Fprintf(&b, "| Critical | High | Medium | Low | Files |\n|---|---|---|---|---|\n| %d | %d | %d | %d | %d |\n\n",
		counts[defect.Critical], counts[defect.High], counts[defect.Medium], counts[defect.Low], len(r.Files))

	if len(r.Defects) > 0 {
		b.WriteString("| Location | Severity | Pattern | Description |\n|---|---|---|---|\n")
		for _, d := range r.Defects {
			loc := relativeURI(projectRoot, d.File)
			if d.Line > 0 {
				loc = fmt.Sprintf("%s:%d", loc, d.Line)
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", loc, d.Severity, d.Pattern, escapeCell(d.Description))
		}
		b.WriteString("\n")
	}
	if n := len(r.Diagnostics); n > 0 {
		fmt.Fprintf(&b, "_%d diagnostics were recorded; files that failed to parse were skipped._\n", n)
	}
	return []byte(b.String())
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// InjectMarkdown replaces the block between the pyscan markers for marker
// in filePath. The file is rewritten through a temp file and rename.
func InjectMarkdown(filePath, marker, body string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read markdown file %q: %w", filePath, err)
	}

	next, err := ReplaceBetweenMarkers(string(content), marker, body)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".pyscan-inject-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", filePath, err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.WriteString(next)
	if err := tmp.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp markdown file %q: %w", tmpName, writeErr)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace markdown file %q: %w", filePath, err)
	}
	return nil
}

// ReplaceBetweenMarkers swaps the text between
// <!-- pyscan:marker:start --> and <!-- pyscan:marker:end -->.
// Each marker must appear exactly once, start before end.
func ReplaceBetweenMarkers(content, marker, replacement string) (string, error) {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return "", fmt.Errorf("markdown marker must not be empty")
	}

	newline := "\n"
	if strings.Contains(content, "\r\n") {
		newline = "\r\n"
	}

	start := fmt.Sprintf("<!-- pyscan:%s:start -->", marker)
	end := fmt.Sprintf("<!-- pyscan:%s:end -->", marker)
	if strings.Count(content, start) != 1 || strings.Count(content, end) != 1 {
		return "", fmt.Errorf("markdown marker %q must appear exactly once for start and end", marker)
	}

	startIdx := strings.Index(content, start)
	endIdx := strings.Index(content, end)
	if endIdx < startIdx {
		return "", fmt.Errorf("invalid marker order for %q", marker)
	}

	prefix := content[:startIdx+len(start)]
	suffix := content[endIdx:]
	body := strings.TrimRight(replacement, "\r\n")
	return prefix + newline + body + newline + suffix, nil
}
