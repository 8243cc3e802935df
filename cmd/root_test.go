// Test file for the inspect and diff commands (rootCmd.Execute end to end
// against a fake container runtime).
//
// Globals mutated: all root flags, newRuntime, stdout/stderr (via
// captureOutput and captureAll).
// All tests use defer resetFlags()() for cleanup.
package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/northcutted/pkg-inspector/pkg/analysis"
	"github.com/northcutted/pkg-inspector/pkg/renderer"
	"github.com/northcutted/pkg-inspector/pkg/runner"
	"github.com/northcutted/pkg-inspector/pkg/types"
)

func decodeInventory(t *testing.T, data string) renderer.InventoryDocument {
	t.Helper()
	var doc renderer.InventoryDocument
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		t.Fatalf("invalid inventory JSON: %v\n%s", err, data)
	}
	return doc
}

func TestExecute_DryRunInventory(t *testing.T) {
	defer resetFlags()()
	useFakeRuntime(t, newFakeRuntime())

	rootCmd.SetArgs([]string{"--image", "app:2", "--arch", "amd64", "--dry-run"})
	output := captureOutput(func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	})

	doc := decodeInventory(t, output)
	if doc.TotalImages != 1 || doc.TotalArchitectures != 1 || len(doc.Results) != 1 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	res := doc.Results[0]
	if res.Image != "app:2" || res.Architecture != "amd64" || res.Digest != "sha256:app:2" {
		t.Errorf("result header = %+v", res)
	}
	if len(res.Packages) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(res.Packages))
	}
	urllib3 := res.Packages[1]
	if urllib3.Name != "urllib3" || !urllib3.IsDependency || len(urllib3.ParentPackages) != 1 || urllib3.ParentPackages[0] != "requests" {
		t.Errorf("urllib3 = %+v", urllib3)
	}
	if urllib3.License != "MIT" || urllib3.PackageProvider != types.ProviderPip {
		t.Errorf("urllib3 metadata = %+v", urllib3)
	}
}

func TestExecute_MatrixDefaultOutputFiles(t *testing.T) {
	defer resetFlags()()
	useFakeRuntime(t, newFakeRuntime())

	dir := t.TempDir()
	rootCmd.SetArgs([]string{"--images", "app:1,app:2", "--archs", "amd64,arm64", "--output-dir", dir, "--delimiter", ";"})
	captureAll(func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	})

	base := filepath.Join(dir, "app_1_and_1_more_multi_arch")
	data, err := os.ReadFile(base + ".json")
	if err != nil {
		t.Fatalf("expected default JSON output: %v", err)
	}
	doc := decodeInventory(t, string(data))
	if len(doc.Results) != 4 || doc.TotalImages != 2 || doc.TotalArchitectures != 2 {
		t.Errorf("document totals = %d results, %d images, %d archs", len(doc.Results), doc.TotalImages, doc.TotalArchitectures)
	}
	// Image-major order
	want := []string{"app:1/amd64", "app:1/arm64", "app:2/amd64", "app:2/arm64"}
	for i, r := range doc.Results {
		if got := r.Image + "/" + r.Architecture; got != want[i] {
			t.Errorf("result %d = %s, want %s", i, got, want[i])
		}
	}

	csvData, err := os.ReadFile(base + ".csv")
	if err != nil {
		t.Fatalf("expected default CSV output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	if !strings.HasPrefix(lines[0], "image;digest;architecture;name") {
		t.Errorf("CSV header = %q", lines[0])
	}
	// 1 + 1 + 2 + 2 packages plus the header
	if len(lines) != 7 {
		t.Errorf("expected 7 CSV lines, got %d", len(lines))
	}
}

func TestExecute_FailedTarget(t *testing.T) {
	t.Run("fails without ignore-errors", func(t *testing.T) {
		defer resetFlags()()
		useFakeRuntime(t, newFakeRuntime())

		rootCmd.SetArgs([]string{"--image", "app:1", "--image", "broken:1", "--arch", "amd64", "--dry-run"})
		_, logs := captureAll(func() {
			err := rootCmd.Execute()
			if err == nil || !strings.Contains(err.Error(), "1 of 2 targets failed") {
				t.Fatalf("expected failure error, got %v", err)
			}
		})
		if !strings.Contains(logs, "inspection failed") || !strings.Contains(logs, "broken:1") {
			t.Errorf("expected failure warning in logs, got:\n%s", logs)
		}
	})

	t.Run("ignore-errors keeps going", func(t *testing.T) {
		defer resetFlags()()
		useFakeRuntime(t, newFakeRuntime())

		rootCmd.SetArgs([]string{"--image", "app:1", "--image", "broken:1", "--arch", "amd64", "--dry-run", "--ignore-errors"})
		out, _ := captureAll(func() {
			if err := rootCmd.Execute(); err != nil {
				t.Fatalf("Execute failed despite ignore-errors: %v", err)
			}
		})
		doc := decodeInventory(t, out)
		if len(doc.Results) != 1 || len(doc.Failures) != 1 || doc.Failures[0].Image != "broken:1" {
			t.Errorf("results=%d failures=%+v", len(doc.Results), doc.Failures)
		}
	})
}

func TestExecute_DiffWithExclusion(t *testing.T) {
	defer resetFlags()()
	useFakeRuntime(t, newFakeRuntime())

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "diff.json")
	csvPath := filepath.Join(dir, "diff.csv")
	rootCmd.SetArgs([]string{
		"--diff", "--image", "app:1", "--image", "app:2", "--arch", "amd64",
		"--exclude-packages-from-image", "base:1",
		"--json-output", jsonPath, "--csv-output", csvPath, "--summary",
	})
	out, _ := captureAll(func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	})

	if !strings.Contains(out, "added: 1  removed: 0  changed: 1  unchanged: 0") {
		t.Errorf("summary missing counts:\n%s", out)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("failed to read diff JSON: %v", err)
	}
	var doc renderer.DiffDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid diff JSON: %v", err)
	}
	if doc.ComparisonType != "diff" || doc.ImageFrom.Name != "app:1" || doc.ImageTo.Name != "app:2" {
		t.Errorf("diff header = %+v", doc)
	}
	if len(doc.Differences.Added) != 1 || !doc.Differences.Added[0].Inherited || doc.Differences.Added[0].InheritedFrom != "base:1" {
		t.Errorf("added = %+v", doc.Differences.Added)
	}
	if len(doc.Differences.Changed) != 1 || doc.Differences.Changed[0].VersionTo != "2.31.0" {
		t.Errorf("changed = %+v", doc.Differences.Changed)
	}
	if doc.ExclusionImage == nil || doc.ExclusionImage.Name != "base:1" {
		t.Errorf("exclusion = %+v", doc.ExclusionImage)
	}

	csvData, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("failed to read diff CSV: %v", err)
	}
	if !strings.Contains(string(csvData), "ADDED-INHERITED,urllib3") {
		t.Errorf("CSV missing inherited row:\n%s", csvData)
	}
}

func TestExecute_DiffErrors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{"one target", []string{"--diff", "--image", "app:1", "--arch", "amd64", "--dry-run"}, "exactly 2 targets"},
		{"three targets", []string{"--diff", "--images", "app:1,app:2,base:1", "--arch", "amd64", "--dry-run"}, "exactly 2 targets"},
		{"two archs", []string{"--diff", "--image", "app:1", "--archs", "amd64,arm64", "--dry-run"}, "at most one global architecture"},
		{"failed side", []string{"--diff", "--image", "app:1", "--image", "broken:1", "--arch", "amd64", "--dry-run"}, "cannot diff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer resetFlags()()
			useFakeRuntime(t, newFakeRuntime())

			rootCmd.SetArgs(tt.args)
			captureAll(func() {
				err := rootCmd.Execute()
				if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want it to contain %q", err, tt.errMsg)
				}
			})
		})
	}
}

func TestExecute_ResolutionError(t *testing.T) {
	defer resetFlags()()
	useFakeRuntime(t, newFakeRuntime())

	rootCmd.SetArgs([]string{"--image", "python:", "--dry-run"})
	captureAll(func() {
		err := rootCmd.Execute()
		var resErr *types.ResolutionError
		if !errors.As(err, &resErr) {
			t.Errorf("error = %v, want ResolutionError", err)
		}
	})
}

func TestExecute_NoRuntime(t *testing.T) {
	defer resetFlags()()
	newRuntime = func(bool, time.Duration) (analysis.Runtime, error) {
		return nil, runner.ErrNoRuntime
	}

	rootCmd.SetArgs([]string{"--image", "app:1", "--dry-run"})
	captureAll(func() {
		if err := rootCmd.Execute(); !errors.Is(err, runner.ErrNoRuntime) {
			t.Errorf("error = %v, want ErrNoRuntime", err)
		}
	})
}

func TestExecute_PullFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want bool
	}{
		{"default pulls", nil, true},
		{"no-pull", []string{"--no-pull"}, false},
		{"pull=false", []string{"--pull=false"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer resetFlags()()
			rt := newFakeRuntime()
			useFakeRuntime(t, rt)

			rootCmd.SetArgs(append([]string{"--image", "app:1", "--arch", "amd64", "--dry-run"}, tt.args...))
			captureAll(func() {
				if err := rootCmd.Execute(); err != nil {
					t.Fatalf("Execute failed: %v", err)
				}
			})
			if got := rt.pulled["app:1/amd64"]; got != tt.want {
				t.Errorf("pull = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecute_Dockerfile(t *testing.T) {
	defer resetFlags()()
	useFakeRuntime(t, newFakeRuntime())

	path := filepath.Join(t.TempDir(), "Dockerfile")
	content := "ARG TAG=2\nFROM app:1 AS build\nFROM app:${TAG}\nCOPY --from=build /x /x\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write Dockerfile: %v", err)
	}

	rootCmd.SetArgs([]string{"-f", path, "--arch", "amd64", "--dry-run"})
	output := captureOutput(func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	})

	doc := decodeInventory(t, output)
	if len(doc.Results) != 2 || doc.Results[0].Image != "app:1" || doc.Results[1].Image != "app:2" {
		t.Errorf("results = %+v", doc.Results)
	}
}

func TestExecute_ConfigFile(t *testing.T) {
	defer resetFlags()()
	useFakeRuntime(t, newFakeRuntime())

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pkg-inspector.yaml")
	cfg := `
images: [app:1, app:2]
architectures: [amd64]
output:
  json: out/inventory.json
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	rootCmd.SetArgs([]string{"--config", cfgPath})
	captureAll(func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	})

	data, err := os.ReadFile(filepath.Join(dir, "out", "inventory.json"))
	if err != nil {
		t.Fatalf("expected JSON at the configured path: %v", err)
	}
	if doc := decodeInventory(t, string(data)); len(doc.Results) != 2 {
		t.Errorf("expected 2 results from config images, got %d", len(doc.Results))
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "inventory.csv")); !os.IsNotExist(err) {
		t.Error("CSV must not be written when only a JSON path is configured")
	}
}
