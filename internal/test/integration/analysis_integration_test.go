package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pyscan/internal/core/app"
	"pyscan/internal/core/config"
	"pyscan/internal/data/history"
	"pyscan/internal/engine/patterns"
	"pyscan/internal/ui/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestFiles(t *testing.T, tmpDir string) {
	t.Helper()
	files := map[string]string{
		"service/__init__.py": "",
		"service/calc.py": `import os


def ratio(a, b):
    return a / b


def ping(n):
    return pong(n - 1)


def pong(n):
    return ping(n)
`,
		"service/settings.py": "GITHUB_TOKEN = 'ghp_" + "Zx8Qw2Lm5Np7Rt1Vy4Bc6Df9Gh3Jk0Ls2Mq5'\n",
		"README.md":           "# not python\n",
	}
	for name, src := range files {
		path := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
}

func TestFullPipelineIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFiles(t, tmpDir)

	cfg := config.Default()
	cfg.Reporting.SeverityFilter = "low"
	cfg.Symbolic.Enabled = true
	cfg.Performance.Workers = 2

	analyzer, err := app.NewAnalyzer(cfg)
	require.NoError(t, err)
	require.True(t, analyzer.SymbolicActive())

	ctx := context.Background()
	result, err := analyzer.AnalyzePaths(ctx, []string{tmpDir})
	require.NoError(t, err)
	require.False(t, result.Cancelled)

	// README.md is not a Python file.
	assert.Len(t, result.Files, 3)
	assert.Zero(t, result.Totals.FilesFailed)
	assert.GreaterOrEqual(t, result.Totals.Cycles, 1)

	found := map[string]bool{}
	for _, d := range result.Defects {
		found[d.Pattern] = true
	}
	for _, id := range []string{patterns.DivisionByZeroSymbolic, "leaked_secret", "unused_import"} {
		assert.True(t, found[id], "expected %s", id)
	}

	// History round trip.
	store, err := history.Open(filepath.Join(tmpDir, "data", "pyscan.db"), time.Second)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, app.Record(ctx, store, result, "integration"))

	snaps, err := store.LoadSnapshots(ctx, "integration", time.Time{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, result.RunID, snaps[0].RunID)
	assert.Equal(t, len(result.Defects), snaps[0].DefectCount)
	assert.Equal(t, 1, snaps[0].ByPattern["leaked_secret"])

	// SARIF carries every defect.
	data, err := report.Render(result, report.Options{
		Format:      report.FormatSARIF,
		ProjectRoot: tmpDir,
		Registry:    analyzer.Registry(),
	})
	require.NoError(t, err)
	var sarif struct {
		Runs []struct {
			Results []json.RawMessage `json:"results"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(data, &sarif))
	require.Len(t, sarif.Runs, 1)
	assert.Len(t, sarif.Runs[0].Results, len(result.Defects))
}
