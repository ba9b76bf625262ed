package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestAnalyze_JSON(t *testing.T) {
	dir := writeProject(t, map[string]string{"a.py": "x = 1 / 0\n"})
	t.Chdir(dir)

	code, out, errOut := run(t, "analyze", "--format", "json", "-p", "division_by_zero", dir)
	if code != ExitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var doc struct {
		Defects []struct {
			Pattern string `json:"pattern"`
			Line    int    `json:"line"`
		} `json:"defects"`
		Patterns []string `json:"patterns"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("stdout is not json: %v\n%s", err, out)
	}
	if len(doc.Defects) != 1 || doc.Defects[0].Pattern != "division_by_zero" || doc.Defects[0].Line != 1 {
		t.Fatalf("unexpected defects: %+v", doc.Defects)
	}
	if len(doc.Patterns) != 1 {
		t.Fatalf("expected only the selected pattern to run: %v", doc.Patterns)
	}
}

func TestAnalyze_ConsoleToFile(t *testing.T) {
	dir := writeProject(t, map[string]string{"a.py": "x = 1 / 0\n"})
	t.Chdir(dir)
	target := filepath.Join(t.TempDir(), "out", "report.sarif")

	code, out, errOut := run(t, "analyze", "--format", "sarif", "--output", target, dir)
	if code != ExitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if out != "" {
		t.Fatalf("expected nothing on stdout, got %q", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"ruleId": "division_by_zero"`) {
		t.Fatalf("sarif missing result:\n%s", data)
	}
}

func TestAnalyze_FailOn(t *testing.T) {
	dir := writeProject(t, map[string]string{"a.py": "x = 1 / 0\n"})
	t.Chdir(dir)

	code, _, errOut := run(t, "analyze", "--fail-on", "high", dir)
	if code != ExitDefects {
		t.Fatalf("expected exit %d, got %d: %s", ExitDefects, code, errOut)
	}
	if code, _, _ := run(t, "analyze", "--fail-on", "critical", dir); code != ExitOK {
		t.Fatalf("critical threshold should pass, got %d", code)
	}
	if code, _, _ := run(t, "analyze", "--fail-on", "severe", dir); code != ExitError {
		t.Fatalf("bad --fail-on should fail, got %d", code)
	}
}

func TestAnalyze_ConfigErrors(t *testing.T) {
	dir := writeProject(t, map[string]string{"a.py": "x = 1\n"})
	t.Chdir(dir)

	cases := [][]string{
		{"analyze", "--severity", "bogus", dir},
		{"analyze", "-p", "no_such_pattern", dir},
		{"analyze", "--format", "xml", dir},
		{"analyze", "--config", filepath.Join(dir, "missing.toml"), dir},
		{"analyze", filepath.Join(dir, "missing")},
	}
	for _, args := range cases {
		code, _, errOut := run(t, args...)
		if code != ExitError {
			t.Errorf("%v: expected exit %d, got %d", args, ExitError, code)
		}
		if !strings.Contains(errOut, "error:") {
			t.Errorf("%v: expected an error message, got %q", args, errOut)
		}
	}
}

func TestAnalyze_DiscoversConfig(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"a.py":        "x = 1 / 0\n",
		"pyscan.toml": "version = 1\n[reporting]\nseverity_filter = \"critical\"\n",
	})
	t.Chdir(dir)

	code, out, errOut := run(t, "analyze", dir)
	if code != ExitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "No defects found (severity >= critical)") {
		t.Fatalf("config file was not applied:\n%s", out)
	}
}

func TestAnalyze_RecordsHistory(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"a.py":        "x = 1 / 0\n",
		"pyscan.toml": "version = 1\n[history]\nenabled = true\nproject = \"demo\"\n",
	})
	t.Chdir(dir)

	for i := 0; i < 2; i++ {
		if code, _, errOut := run(t, "analyze", dir); code != ExitOK {
			t.Fatalf("analyze exit %d: %s", code, errOut)
		}
	}

	tsv := filepath.Join(dir, "trend.tsv")
	code, out, errOut := run(t, "history", "--tsv", tsv, "--window", "1h")
	if code != ExitOK {
		t.Fatalf("history exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "History: 2 runs of demo") {
		t.Fatalf("unexpected history output:\n%s", out)
	}
	if !strings.Contains(out, "Latest: files=1 (+0)") {
		t.Fatalf("unexpected trend line:\n%s", out)
	}
	data, err := os.ReadFile(tsv)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 3 {
		t.Fatalf("expected header plus two rows, got %d lines", lines)
	}

	code, out, _ = run(t, "history", "--since", "2999-01-01")
	if code != ExitOK || !strings.Contains(out, "no runs matched") {
		t.Fatalf("future --since should match nothing: %d %q", code, out)
	}
}

func TestHistory_Errors(t *testing.T) {
	dir := writeProject(t, map[string]string{"pyscan.toml": "version = 1\n"})
	t.Chdir(dir)

	if code, _, errOut := run(t, "history"); code != ExitError || !strings.Contains(errOut, "no history database") {
		t.Fatalf("expected missing database error, got %d %q", code, errOut)
	}
	if code, _, _ := run(t, "history", "--since", "yesterday"); code != ExitError {
		t.Fatalf("expected --since error, got %d", code)
	}
	if code, _, _ := run(t, "history", "--window", "-1h"); code != ExitError {
		t.Fatalf("expected --window error, got %d", code)
	}
}

func TestPatterns(t *testing.T) {
	code, out, _ := run(t, "patterns")
	if code != ExitOK {
		t.Fatalf("exit %d", code)
	}
	for _, want := range []string{"ID", "division_by_zero", "sql_injection", "need symbolic execution"} {
		if !strings.Contains(out, want) {
			t.Errorf("pattern list missing %q:\n%s", want, out)
		}
	}

	code, out, _ = run(t, "patterns", "long_function")
	if code != ExitOK || !strings.Contains(out, "threshold: patterns.thresholds.function_length") {
		t.Fatalf("unexpected describe output %d:\n%s", code, out)
	}

	code, out, _ = run(t, "patterns", "--json", "--category", "security")
	if code != ExitOK {
		t.Fatalf("exit %d", code)
	}
	var infos []map[string]any
	if err := json.Unmarshal([]byte(out), &infos); err != nil || len(infos) == 0 {
		t.Fatalf("bad json %v:\n%s", err, out)
	}
	for _, info := range infos {
		if info["category"] != "security" {
			t.Fatalf("category filter leaked %v", info)
		}
	}

	if code, _, _ := run(t, "patterns", "nope"); code != ExitError {
		t.Fatalf("unknown pattern should fail, got %d", code)
	}
	if code, _, _ := run(t, "patterns", "--category", "nope"); code != ExitError {
		t.Fatalf("unknown category should fail, got %d", code)
	}
	if code, _, _ := run(t, "patterns", "--list", "long_function"); code != ExitError {
		t.Fatalf("id with --list should fail, got %d", code)
	}
}

func TestWatch_MissingRoot(t *testing.T) {
	dir := writeProject(t, map[string]string{"pyscan.toml": "version = 1\n"})
	t.Chdir(dir)
	if code, _, _ := run(t, "watch", filepath.Join(dir, "missing")); code != ExitError {
		t.Fatalf("expected exit %d, got %d", ExitError, code)
	}
}

func TestWatch_PrintsUntilCancelled(t *testing.T) {
	dir := writeProject(t, map[string]string{"a.py": "x = 1 / 0\n"})
	t.Chdir(dir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var stdout, stderr bytes.Buffer
	code := Execute(ctx, []string{"watch", dir}, &stdout, &stderr)
	if code != ExitOK {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "division_by_zero") {
		t.Fatalf("initial report not printed:\n%s", stdout.String())
	}
}

func TestParseSinceAndWindow(t *testing.T) {
	if got, err := parseSince(""); err != nil || !got.IsZero() {
		t.Fatalf("empty since: %v %v", got, err)
	}
	got, err := parseSince("2026-02-13")
	if err != nil || !got.Equal(time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date since: %v %v", got, err)
	}
	if _, err := parseSince("2026-02-13T10:00:00+02:00"); err != nil {
		t.Fatalf("rfc3339 since: %v", err)
	}

	if d, err := parseWindow(""); err != nil || d != 24*time.Hour {
		t.Fatalf("default window: %v %v", d, err)
	}
	for _, bad := range []string{"soon", "0s", "-5m"} {
		if _, err := parseWindow(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestLoadConfig_Discovery(t *testing.T) {
	dir := writeProject(t, map[string]string{"pyscan.yaml": "version: 1\nreporting:\n  format: json\n"})
	cfg, path, err := loadConfig("", dir)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "pyscan.yaml") || cfg.Reporting.Format != "json" {
		t.Fatalf("unexpected discovery result: %q %q", path, cfg.Reporting.Format)
	}

	cfg, path, err = loadConfig("", t.TempDir())
	if err != nil || path != "" || cfg.Reporting.Format != "console" {
		t.Fatalf("expected defaults, got %q %v", path, err)
	}

	broken := writeProject(t, map[string]string{"pyscan.toml": "version = = 1"})
	if _, _, err := loadConfig("", broken); err == nil {
		t.Fatal("expected parse error for broken discovered config")
	}
}
