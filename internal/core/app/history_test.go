package app_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyscan/internal/core/app"
	"pyscan/internal/data/history"
)

type failingRecorder struct{}

func (failingRecorder) SaveSnapshot(context.Context, history.Snapshot) (string, error) {
	return "", fmt.Errorf("disk full")
}

func TestRecord_RoundTrip(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.py": "y = 1 / 0\nz = 2 / 0\n"})
	a := newAnalyzer(t, only("division_by_zero"))
	report, err := a.AnalyzePaths(context.Background(), []string{dir})
	require.NoError(t, err)

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"), time.Second)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, app.Record(context.Background(), store, report, "demo"))

	rows, err := store.LoadSnapshots(context.Background(), "demo", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, report.RunID, rows[0].RunID)
	assert.Equal(t, 2, rows[0].DefectCount)
	assert.Equal(t, 2, rows[0].HighCount)
	assert.Equal(t, 1, rows[0].FileCount)
	assert.Equal(t, map[string]int{"division_by_zero": 2}, rows[0].ByPattern)
}

func TestRecord_Failure(t *testing.T) {
	a := newAnalyzer(t, nil)
	report := a.AnalyzeFiles(context.Background(), nil)
	require.Error(t, app.Record(context.Background(), failingRecorder{}, report, ""))
}
