package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"sort"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

// Platforms returns the "os/arch[/variant]" platforms published for image by
// running 'docker manifest inspect'. A single-platform image yields nil.
func (r *Runtime) Platforms(ctx context.Context, image string) ([]string, error) {
	if r.binary == "" && !r.IsAvailable() {
		return nil, ErrNoRuntime
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout(TimeoutInspect))
	defer cancel()
	cmd := exec.CommandContext(runCtx, r.binary, "manifest", "inspect", image)
	// Needed by older docker releases.
	cmd.Env = append(os.Environ(), "DOCKER_CLI_EXPERIMENTAL=enabled")

	output, err := runCommand(cmd, r.Verbose)
	if err != nil {
		return nil, fmt.Errorf("manifest inspect failed: %w", err)
	}

	return parseManifestInspect(output), nil
}

// SupportsArchitecture reports whether platforms contains linux/<arch>. An
// empty platform list means the image is not a manifest list and is assumed
// to support the requested architecture.
func SupportsArchitecture(platforms []string, t types.Target) bool {
	if len(platforms) == 0 {
		return true
	}
	arch := t.Architecture
	if arch == "arm64/v8" {
		arch = "arm64"
	}
	return slices.Contains(platforms, "linux/"+arch)
}

// parseManifestInspect parses JSON output from 'docker manifest inspect'.
// Output that is not a manifest list yields no platforms.
func parseManifestInspect(output []byte) []string {
	type Platform struct {
		Architecture string `json:"architecture"`
		OS           string `json:"os"`
		Variant      string `json:"variant"`
	}
	type Manifest struct {
		Platform Platform `json:"platform"`
	}
	type ManifestIndex struct {
		Manifests []Manifest `json:"manifests"`
	}

	var index ManifestIndex
	if err := json.Unmarshal(output, &index); err != nil || len(index.Manifests) == 0 {
		return nil
	}

	var platforms []string
	seen := make(map[string]bool)
	for _, m := range index.Manifests {
		if m.Platform.OS == "unknown" || m.Platform.Architecture == "" {
			// attestation manifests
			continue
		}
		key := m.Platform.OS + "/" + m.Platform.Architecture
		if m.Platform.Variant != "" && m.Platform.Architecture != "arm64" {
			key += "/" + m.Platform.Variant
		}
		if !seen[key] {
			seen[key] = true
			platforms = append(platforms, key)
		}
	}
	sort.Strings(platforms)
	return platforms
}
