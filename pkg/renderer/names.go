package renderer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

var (
	unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	underscoreRuns  = regexp.MustCompile(`_+`)
)

// SanitizeImageName turns an image reference into a filename fragment,
// e.g. "python:3.11" becomes "python_3_11".
func SanitizeImageName(image string) string {
	s := unsafeFileChars.ReplaceAllString(image, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// DefaultBaseName derives the output filename stem for a run. specs are the
// images as requested by the user, targets the resolved targets.
func DefaultBaseName(specs []string, targets []types.Target, isDiff bool) string {
	if len(targets) == 0 {
		return "inventory"
	}

	if isDiff && len(targets) >= 2 {
		name := fmt.Sprintf("diff_%s_vs_%s", SanitizeImageName(targets[0].Image), SanitizeImageName(targets[1].Image))
		if targets[0].Architecture != "" {
			name += "_" + targets[0].Architecture
		}
		return name
	}

	first := SanitizeImageName(targets[0].Image)
	if len(specs) <= 1 && len(targets) == 1 {
		if targets[0].Architecture != "" {
			return first + "_" + SanitizeImageName(targets[0].Architecture)
		}
		return first
	}

	images := make(map[string]bool)
	archs := make(map[string]bool)
	for _, t := range targets {
		images[t.Image] = true
		if t.Architecture != "" {
			archs[t.Architecture] = true
		}
	}

	switch {
	case len(images) > 1 && len(archs) > 1:
		return fmt.Sprintf("%s_and_%d_more_multi_arch", first, len(images)-1)
	case len(images) > 1:
		return fmt.Sprintf("%s_and_%d_more", first, len(images)-1)
	case len(archs) > 1:
		return first + "_multi_arch"
	}
	return first
}

// DefaultOutputPaths returns the JSON and CSV paths used when no output file
// is given. An empty dir means the OS temp directory.
func DefaultOutputPaths(dir string, specs []string, targets []types.Target, isDiff bool) (jsonPath, csvPath string) {
	if dir == "" {
		dir = os.TempDir()
	}
	base := filepath.Join(dir, DefaultBaseName(specs, targets, isDiff))
	return base + ".json", base + ".csv"
}
