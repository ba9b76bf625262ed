package app_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyscan/internal/core/app"
)

func TestScanner_Scan(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.py":             "pass\n",
		"notes.txt":           "not python\n",
		"stubs/types.pyi":     "x: int\n",
		"pkg/mod.py":          "pass\n",
		"pkg/test_mod.py":     "pass\n",
		"build/generated.py":  "pass\n",
		"pkg/build/nested.py": "pass\n",
	})
	s, err := app.NewScanner([]string{"build"}, []string{"test_*.py"})
	require.NoError(t, err)

	files, err := s.Scan([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "main.py"),
		filepath.Join(dir, "pkg/mod.py"),
		filepath.Join(dir, "stubs/types.pyi"),
	}, files)
}

func TestScanner_FileRootsAndDuplicates(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"test_explicit.py": "pass\n",
		"readme.md":        "# hi\n",
	})
	s, err := app.NewScanner(nil, []string{"test_*.py"})
	require.NoError(t, err)

	explicit := filepath.Join(dir, "test_explicit.py")
	files, err := s.Scan([]string{explicit, explicit, filepath.Join(dir, "readme.md"), dir})
	require.NoError(t, err)
	assert.Equal(t, []string{explicit}, files, "explicit file roots bypass exclude patterns")
}

func TestScanner_Errors(t *testing.T) {
	_, err := app.NewScanner([]string{"[unclosed"}, nil)
	require.Error(t, err)

	s, err := app.NewScanner(nil, nil)
	require.NoError(t, err)
	_, err = s.Scan([]string{filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}
