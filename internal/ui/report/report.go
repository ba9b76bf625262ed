package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"pyscan/internal/core/app"
	"pyscan/internal/engine/patterns"
	"pyscan/internal/shared/util"
)

const (
	FormatConsole  = "console"
	FormatJSON     = "json"
	FormatSARIF    = "sarif"
	FormatMarkdown = "markdown"
)

type Options struct {
	Format      string
	ProjectRoot string
	Color       bool
	ShowMetrics bool
	Registry    *patterns.Registry
}

// RenderJSON returns the full report, per-file results included.
func RenderJSON(r *app.Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Render produces the report in opts.Format.
func Render(r *app.Report, opts Options) ([]byte, error) {
	switch strings.ToLower(opts.Format) {
	case "", FormatConsole:
		var buf bytes.Buffer
		err := WriteConsole(&buf, r, ConsoleOptions{
			Color:       opts.Color,
			ShowMetrics: opts.ShowMetrics,
			Root:        opts.ProjectRoot,
		})
		return buf.Bytes(), err
	case FormatJSON:
		return RenderJSON(r)
	case FormatSARIF:
		return GenerateSARIF(opts.ProjectRoot, r, opts.Registry)
	case FormatMarkdown:
		return RenderMarkdown(r, opts.ProjectRoot), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", opts.Format)
	}
}

// Write renders the report to path, or to w when path is empty.
func Write(w io.Writer, path string, r *app.Report, opts Options) error {
	data, err := Render(r, opts)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = w.Write(data)
		return err
	}
	return util.WriteFileWithDirs(path, data, 0o644)
}

// WriteDOTFiles writes one Graphviz file per analyzed source into dir and
// returns the written paths in report order.
func WriteDOTFiles(dir string, r *app.Report, projectRoot string) ([]string, error) {
	var written []string
	for _, f := range r.Files {
		g := f.Graph()
		if g == nil {
			continue
		}
		rel := relativeURI(projectRoot, f.Path)
		name := strings.NewReplacer("/", "_", ".", "_").Replace(strings.TrimSuffix(rel, filepath.Ext(rel)))
		var buf bytes.Buffer
		if err := g.WriteDOT(&buf, rel); err != nil {
			return written, fmt.Errorf("render call graph for %s: %w", f.Path, err)
		}
		out := filepath.Join(dir, name+".dot")
		if err := util.WriteFileWithDirs(out, buf.Bytes(), 0o644); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}
