package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

// Default timeouts for container runtime commands.
const (
	TimeoutInspect = 60 * time.Second
	TimeoutPull    = 10 * time.Minute
	TimeoutExec    = 5 * time.Minute
	TimeoutScan    = 10 * time.Minute
)

// ErrNoRuntime is returned when neither docker nor podman is installed.
var ErrNoRuntime = errors.New("no container runtime found (docker or podman)")

// lookupTool resolves the path to an external binary. Tests replace it.
var lookupTool = exec.LookPath

// Executor runs a shell script inside a throwaway container of a target.
type Executor interface {
	Exec(ctx context.Context, t types.Target, script string) ([]byte, error)
}

// Extractor reports the packages of one package manager inside a target.
type Extractor interface {
	Name() string
	Type() types.PackageType
	// Tools lists the binaries whose presence in the image enables the extractor.
	Tools() []string
	Extract(ctx context.Context, ex Executor, t types.Target) ([]types.RawEntry, error)
}

// DefaultExtractors returns the in-container extractors in source order:
// python first, then binary package managers.
func DefaultExtractors() []Extractor {
	return []Extractor{
		&PipExtractor{},
		&DpkgExtractor{},
		&RPMExtractor{},
		&APKExtractor{},
	}
}

// runCommand executes cmd and returns its stdout. Stderr is attached to the
// error when the command fails.
func runCommand(cmd *exec.Cmd, verbose bool) ([]byte, error) {
	if verbose {
		slog.Debug("running command", "cmd", cmd.String())
	}

	output, err := cmd.Output()
	if err != nil {
		var stderr []byte
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr = exitErr.Stderr
		}
		if len(stderr) > 0 {
			return nil, fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(string(stderr)))
		}
		return nil, fmt.Errorf("command failed: %w", err)
	}

	if verbose {
		slog.Debug("command finished", "cmd", cmd.Path, "bytes", len(output))
	}

	return output, nil
}

// fileMarker prefixes the package name ahead of a file body in script output.
const fileMarker = "@@FILE@@ "

// splitFileBlocks collects the bodies that follow fileMarker lines, keyed by
// package name. Several files for one package are concatenated.
func splitFileBlocks(text string) map[string]string {
	blocks := make(map[string]string)
	var name string
	var b strings.Builder
	flush := func() {
		if name != "" {
			blocks[name] += b.String()
		}
		b.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		if pkg, ok := strings.CutPrefix(line, fileMarker); ok {
			flush()
			name = strings.TrimSpace(pkg)
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	flush()
	return blocks
}

// splitSections cuts output at marker lines. The first element is the text
// before the first marker.
func splitSections(output, marker string) []string {
	var sections []string
	var b strings.Builder
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == marker {
			sections = append(sections, b.String())
			b.Reset()
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return append(sections, b.String())
}
