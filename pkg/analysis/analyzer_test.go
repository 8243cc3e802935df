package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/northcutted/pkg-inspector/pkg/diff"
	"github.com/northcutted/pkg-inspector/pkg/inventory"
	"github.com/northcutted/pkg-inspector/pkg/runner"
	"github.com/northcutted/pkg-inspector/pkg/types"
)

// fakeRuntime serves canned script output per image. Scripts are told apart
// by the tool they mention.
type fakeRuntime struct {
	mu        sync.Mutex
	outputs   map[string]map[string]string
	pullErr   map[string]error
	platforms []string
	pulled    []string
}

func (f *fakeRuntime) EnsureImage(_ context.Context, t types.Target, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, t.Image)
	return f.pullErr[t.Image]
}

func (f *fakeRuntime) Inspect(_ context.Context, image string) (*runner.ImageInfo, error) {
	return &runner.ImageInfo{Digest: "sha256:" + image, Architecture: "amd64", OS: "linux"}, nil
}

func (f *fakeRuntime) Platforms(_ context.Context, _ string) ([]string, error) {
	return f.platforms, nil
}

func (f *fakeRuntime) Exec(_ context.Context, t types.Target, script string) ([]byte, error) {
	out := f.outputs[t.Image]
	switch {
	case strings.HasPrefix(script, "for t in"):
		return []byte(out["probe"]), nil
	case strings.Contains(script, "pip3"):
		return []byte(out["pip"]), nil
	case strings.Contains(script, "dpkg-query"):
		return []byte(out["dpkg"]), nil
	}
	return nil, nil
}

func pipOutput(list, show string) string {
	return list + "\n@@PKG-INSPECTOR-PIP-SHOW@@\n" + show
}

func newFake() *fakeRuntime {
	return &fakeRuntime{
		outputs: map[string]map[string]string{
			"app:1": {
				"probe": "pip3\n",
				"pip": pipOutput(`[{"name":"requests","version":"2.28.1"}]`,
					"Name: requests\nLicense: Apache-2.0\nRequires: urllib3\n"),
			},
			"app:2": {
				"probe": "pip3\ndpkg-query\n",
				"pip": pipOutput(`[{"name":"requests","version":"2.31.0"},{"name":"urllib3","version":"2.0.7"}]`,
					"Name: requests\nLicense: Apache-2.0\nRequires: urllib3\n---\nName: urllib3\nLicense: MIT\n"),
				"dpkg": "bash|5.2|https://www.gnu.org/software/bash/|\n@@PKG-INSPECTOR-COPYRIGHT@@\n",
			},
		},
		pullErr: map[string]error{"broken:1": errors.New("manifest unknown")},
	}
}

func newTestAnalyzer(rt Runtime) *Analyzer {
	asm := inventory.NewAssembler(nil)
	asm.Now = func() time.Time { return time.Unix(0, 0) }
	return New(rt, asm, Options{Workers: 2})
}

func TestAnalyzeTarget(t *testing.T) {
	a := newTestAnalyzer(newFake())
	snap, err := a.AnalyzeTarget(context.Background(), types.Target{Image: "app:2", Architecture: "amd64"})
	if err != nil {
		t.Fatalf("AnalyzeTarget() error: %v", err)
	}
	if snap.Target.Digest != "sha256:app:2" {
		t.Errorf("digest = %q", snap.Target.Digest)
	}
	if len(snap.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snap.Records))
	}
	if snap.Records[2].Name != "bash" || snap.Records[2].PackageType != types.PackageTypeBinary {
		t.Errorf("binary record should come last, got %+v", snap.Records[2])
	}
	if !snap.Records[1].IsDependency || snap.Records[1].ParentPackages[0] != "requests" {
		t.Errorf("urllib3 attribution = %+v", snap.Records[1])
	}
}

func TestAnalyzeTargets_FailureIsolated(t *testing.T) {
	rt := newFake()
	a := newTestAnalyzer(rt)
	targets := []types.Target{
		{Image: "app:1", Architecture: "amd64"},
		{Image: "broken:1", Architecture: "amd64"},
		{Image: "app:2", Architecture: "amd64"},
	}

	results := a.AnalyzeTargets(context.Background(), targets)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].OK() || !results[2].OK() {
		t.Errorf("healthy targets should succeed: %+v / %+v", results[0].Err, results[2].Err)
	}
	if results[1].OK() {
		t.Fatal("broken target should fail")
	}
	var failure *types.ExtractionFailure
	if !errors.As(results[1].Err, &failure) || failure.Target.Image != "broken:1" {
		t.Errorf("error = %v, want ExtractionFailure for broken:1", results[1].Err)
	}
	if results[1].Snapshot != nil {
		t.Error("failed target must not carry a snapshot")
	}

	stats := Summarize(results)
	if stats.Succeeded != 2 || stats.Failed != 1 || stats.TotalPackages != 4 {
		t.Errorf("Summarize() = %+v", stats)
	}
	if stats.PythonCount != 3 || stats.BinaryCount != 1 {
		t.Errorf("Summarize() type counts = %+v", stats)
	}
	if f := Failures(results); len(f) != 1 || f[0].Target.Image != "broken:1" {
		t.Errorf("Failures() = %+v", f)
	}
}

func TestAnalyzeTargets_EndToEndDiff(t *testing.T) {
	a := newTestAnalyzer(newFake())
	results := a.AnalyzeTargets(context.Background(), []types.Target{
		{Image: "app:1", Architecture: "amd64"},
		{Image: "app:2", Architecture: "amd64"},
	})
	for _, r := range results {
		if !r.OK() {
			t.Fatalf("target %s failed: %v", r.Target, r.Err)
		}
	}

	// Drop the binary record to match the python-only scenario.
	to := *results[1].Snapshot
	to.Records = to.Records[:2]

	res := diff.Compare(results[0].Snapshot, &to, diff.Options{})
	if res.Summary != (types.Summary{Added: 1, Changed: 1}) {
		t.Errorf("Summary = %+v", res.Summary)
	}
	if res.Added[0].Name != "urllib3" || res.Changed[0].VersionTo != "2.31.0" {
		t.Errorf("diff = %+v", res)
	}
}

func TestAnalyzeTarget_PlatformCheck(t *testing.T) {
	rt := newFake()
	rt.platforms = []string{"linux/amd64"}
	a := newTestAnalyzer(rt)
	a.Options.CheckPlatforms = true

	_, err := a.AnalyzeTarget(context.Background(), types.Target{Image: "app:1", Architecture: "s390x"})
	if err == nil || !strings.Contains(err.Error(), "not published") {
		t.Fatalf("error = %v, want unpublished architecture", err)
	}
	if len(rt.pulled) != 0 {
		t.Error("image must not be pulled when the platform is unavailable")
	}
}

func TestAnalyzeTarget_CancelledContext(t *testing.T) {
	a := newTestAnalyzer(newFake())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.AnalyzeTarget(ctx, types.Target{Image: "app:1", Architecture: "amd64"}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestAnalyzeTarget_NoRuntime(t *testing.T) {
	a := newTestAnalyzer(nil)
	if _, err := a.AnalyzeTarget(context.Background(), types.Target{Image: "x"}); !errors.Is(err, runner.ErrNoRuntime) {
		t.Errorf("error = %v, want ErrNoRuntime", err)
	}
}

type fakeCataloger struct{}

func (fakeCataloger) Name() string { return "syft" }

func (fakeCataloger) Run(_ context.Context, _ types.Target) (python, binary []types.RawEntry, err error) {
	return []types.RawEntry{{Name: "flask", Version: "3.0.0", RawLicense: "BSD-3-Clause"}},
		[]types.RawEntry{{Name: "zlib", Version: "1.3", RawLicense: "Zlib"}}, nil
}

func TestAnalyzeTarget_Cataloger(t *testing.T) {
	a := newTestAnalyzer(newFake())
	a.Cataloger = fakeCataloger{}
	snap, err := a.AnalyzeTarget(context.Background(), types.Target{Image: "app:1", Architecture: "amd64"})
	if err != nil {
		t.Fatalf("AnalyzeTarget() error: %v", err)
	}
	if len(snap.Records) != 2 || snap.Records[0].Name != "flask" || snap.Records[1].PackageType != types.PackageTypeBinary {
		t.Errorf("records = %+v", snap.Records)
	}
}
