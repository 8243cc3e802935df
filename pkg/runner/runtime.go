package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

// ImageInfo is what 'docker image inspect' reports about a pulled image.
type ImageInfo struct {
	Digest       string
	Architecture string
	OS           string
	Variant      string
}

// Platform returns the architecture in the form used on the command line,
// e.g. "arm/v7".
func (i ImageInfo) Platform() string {
	if i.Variant == "" || i.Architecture == "arm64" {
		return i.Architecture
	}
	return i.Architecture + "/" + i.Variant
}

// Runtime drives 'docker' or 'podman' on the host.
type Runtime struct {
	binary  string
	Verbose bool
	// Timeout overrides the per-command defaults when non-zero.
	Timeout time.Duration
}

// NewRuntime detects the container runtime, preferring docker.
func NewRuntime(verbose bool) (*Runtime, error) {
	r := &Runtime{Verbose: verbose}
	if !r.IsAvailable() {
		return nil, ErrNoRuntime
	}
	return r, nil
}

// Name returns the display name for this runtime.
func (r *Runtime) Name() string {
	if r.binary != "" {
		return r.binary
	}
	return "runtime"
}

// IsAvailable checks whether docker or podman is installed.
func (r *Runtime) IsAvailable() bool {
	for _, bin := range []string{"docker", "podman"} {
		if _, err := lookupTool(bin); err == nil {
			r.binary = bin
			return true
		}
	}
	return false
}

func (r *Runtime) timeout(def time.Duration) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return def
}

func (r *Runtime) command(ctx context.Context, def time.Duration, args ...string) ([]byte, error) {
	if r.binary == "" && !r.IsAvailable() {
		return nil, ErrNoRuntime
	}
	runCtx, cancel := context.WithTimeout(ctx, r.timeout(def))
	defer cancel()
	cmd := exec.CommandContext(runCtx, r.binary, args...)
	return runCommand(cmd, r.Verbose)
}

func platformFlag(arch string) string {
	return "--platform=linux/" + arch
}

// EnsureImage makes the target available locally. With pull set the image is
// always pulled for the target platform; otherwise it is pulled only when
// missing.
func (r *Runtime) EnsureImage(ctx context.Context, t types.Target, pull bool) error {
	if !pull {
		if _, err := r.command(ctx, TimeoutInspect, "image", "inspect", t.Image); err == nil {
			slog.Debug("image found locally", "image", t.Image)
			return nil
		}
	}

	slog.Info("pulling image", "image", t.Image, "arch", t.Architecture)
	if _, err := r.command(ctx, TimeoutPull, "pull", platformFlag(t.Architecture), t.Image); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", t.Image, err)
	}
	return nil
}

// Inspect returns the digest and platform of a local image.
func (r *Runtime) Inspect(ctx context.Context, image string) (*ImageInfo, error) {
	output, err := r.command(ctx, TimeoutInspect, "image", "inspect", image)
	if err != nil {
		return nil, err
	}
	return parseRuntimeInspect(output, image, r.Name())
}

// Exec runs script with sh inside a throwaway container of the target.
// The entrypoint is overridden so images with custom entrypoints behave.
func (r *Runtime) Exec(ctx context.Context, t types.Target, script string) ([]byte, error) {
	return r.command(ctx, TimeoutExec,
		"run", "--rm", "--network=none", platformFlag(t.Architecture),
		"--entrypoint", "sh", t.Image, "-c", script)
}

// probeScript prints the name of every tool found on the image's PATH.
func probeScript(tools []string) string {
	return fmt.Sprintf(`for t in %s; do command -v "$t" >/dev/null 2>&1 && echo "$t"; done; true`, strings.Join(tools, " "))
}

// Probe reports which of tools exist inside the target.
func Probe(ctx context.Context, ex Executor, t types.Target, tools []string) (map[string]bool, error) {
	output, err := ex.Exec(ctx, t, probeScript(tools))
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", t, err)
	}
	found := make(map[string]bool)
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			found[line] = true
		}
	}
	return found, nil
}

// parseRuntimeInspect parses JSON output from 'docker image inspect' or
// 'podman image inspect'. The digest is the part after "@" of the first
// repo digest.
func parseRuntimeInspect(output []byte, image string, binary string) (*ImageInfo, error) {
	var inspect []struct {
		Architecture string   `json:"Architecture"`
		Os           string   `json:"Os"`
		Variant      string   `json:"Variant"`
		RepoDigests  []string `json:"RepoDigests"`
		Digest       string   `json:"Digest"`
	}

	if err := json.Unmarshal(output, &inspect); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s inspect output: %w", binary, err)
	}

	if len(inspect) == 0 {
		return nil, fmt.Errorf("no inspect data returned for image %s", image)
	}

	data := inspect[0]
	info := &ImageInfo{
		Architecture: data.Architecture,
		OS:           data.Os,
		Variant:      data.Variant,
	}
	for _, rd := range data.RepoDigests {
		if _, digest, ok := strings.Cut(rd, "@"); ok {
			info.Digest = digest
			break
		}
	}
	if info.Digest == "" {
		info.Digest = data.Digest
	}

	return info, nil
}
