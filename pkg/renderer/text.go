package renderer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/mattn/go-isatty"

	"github.com/northcutted/pkg-inspector/pkg/analysis"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiGray   = "\033[90m"
)

// diffTemplate is the human-readable diff summary.
const diffTemplate = `{{ bold "Package diff" }}: {{ .ImageFrom.Name }} -> {{ .ImageTo.Name }}{{ with .ImageTo.Architecture }} ({{ . }}){{ end }}
  from: {{ .ImageFrom.TotalPackages }} packages{{ with .ImageFrom.Digest }} {{ gray . }}{{ end }}
  to:   {{ .ImageTo.TotalPackages }} packages{{ with .ImageTo.Digest }} {{ gray . }}{{ end }}
{{- with .ExclusionImage }}
  excluding packages from {{ .Name }} ({{ .TotalPackages }} packages, {{ $.InheritedCount }} inherited)
{{- end }}

  {{ green "added" }}: {{ .Summary.Added }}  {{ red "removed" }}: {{ .Summary.Removed }}  {{ yellow "changed" }}: {{ .Summary.Changed }}  unchanged: {{ .Summary.Unchanged }}
{{- range .Differences.Added }}
  {{ green "+" }} {{ .Name }} {{ .Version }} [{{ .PackageType }}]{{ if .Inherited }} {{ gray "(inherited)" }}{{ end }}
{{- end }}
{{- range .Differences.Removed }}
  {{ red "-" }} {{ .Name }} {{ .Version }} [{{ .PackageType }}]
{{- end }}
{{- range .Differences.Changed }}
  {{ yellow "~" }} {{ .Name }} {{ .VersionFrom }} -> {{ .VersionTo }}{{ if ne .LicenseFrom .LicenseTo }} (license: {{ .LicenseFrom }} -> {{ .LicenseTo }}){{ end }}
{{- end }}
`

// inventoryTemplate summarizes an inspection run.
const inventoryTemplate = `{{ bold "Inspection summary" }}: {{ .Stats.Succeeded }}/{{ .Stats.Targets }} targets inspected
{{- range .Doc.Results }}
  {{ green "ok" }}   {{ .Image }} ({{ .Architecture }}): {{ len .Packages }} packages
{{- end }}
{{- range .Doc.Failures }}
  {{ red "fail" }} {{ .Image }} ({{ .Architecture }}): {{ .Error }}
{{- end }}
  total: {{ .Stats.TotalPackages }} packages ({{ .Stats.PythonCount }} python, {{ .Stats.BinaryCount }} binary)
`

// Colorize reports whether ANSI colors should be written to w.
func Colorize(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return writerIsTTY(w)
}

// writerIsTTY returns true when w is backed by a terminal file descriptor.
func writerIsTTY(w io.Writer) bool {
	type fdWriter interface {
		Fd() uintptr
	}
	f, ok := w.(fdWriter)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func funcs(color bool) template.FuncMap {
	paint := func(code string) func(string) string {
		return func(s string) string {
			if !color {
				return s
			}
			return code + s + ansiReset
		}
	}
	return template.FuncMap{
		"bold":   paint(ansiBold),
		"green":  paint(ansiGreen),
		"yellow": paint(ansiYellow),
		"red":    paint(ansiRed),
		"gray":   paint(ansiGray),
	}
}

func render(w io.Writer, name, text string, data any, color bool) error {
	tmpl, err := template.New(name).Funcs(funcs(color)).Parse(text)
	if err != nil {
		return err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	_, err = io.WriteString(w, sb.String())
	return err
}

// RenderDiffSummary writes a readable summary of doc to w, colored when w
// is a terminal.
func RenderDiffSummary(w io.Writer, doc *DiffDocument) error {
	return render(w, "diff", diffTemplate, doc, Colorize(w))
}

// RenderInventorySummary writes per-target package counts and failures.
func RenderInventorySummary(w io.Writer, doc *InventoryDocument, stats analysis.Stats) error {
	data := struct {
		Doc   *InventoryDocument
		Stats analysis.Stats
	}{doc, stats}
	return render(w, "inventory", inventoryTemplate, data, Colorize(w))
}
