// Shared test helpers for the cmd package: output capture, flag reset and a
// fake container runtime.
//
// Globals mutated: stdout, stderr, newRuntime, newCataloger, lookPath and
// every cobra flag (restored by resetFlags).
package cmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/northcutted/pkg-inspector/pkg/analysis"
	"github.com/northcutted/pkg-inspector/pkg/runner"
	"github.com/northcutted/pkg-inspector/pkg/types"
)

// captureOutput runs f with stdout redirected to a buffer.
func captureOutput(f func()) string {
	old := stdout
	var buf bytes.Buffer
	stdout = &buf
	defer func() { stdout = old }()

	f()
	return buf.String()
}

// captureAll runs f with stdout and the log output redirected.
func captureAll(f func()) (string, string) {
	oldOut, oldErr := stdout, stderr
	var out, logs bytes.Buffer
	stdout, stderr = &out, &logs
	defer func() { stdout, stderr = oldOut, oldErr }()

	f()
	return out.String(), logs.String()
}

// resetFlags returns a func restoring every flag, hook and writer to its
// default. Use as defer resetFlags()().
func resetFlags() func() {
	oldStdout, oldStderr := stdout, stderr
	oldRuntime, oldCataloger := newRuntime, newCataloger
	oldLookPath := lookPath
	oldLogger := slog.Default()

	return func() {
		stdout, stderr = oldStdout, oldStderr
		newRuntime, newCataloger = oldRuntime, oldCataloger
		lookPath = oldLookPath
		slog.SetDefault(oldLogger)

		var reset func(c *cobra.Command)
		reset = func(c *cobra.Command) {
			for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
				fs.VisitAll(func(f *pflag.Flag) {
					if sv, ok := f.Value.(pflag.SliceValue); ok {
						_ = sv.Replace(nil)
					} else {
						_ = f.Value.Set(f.DefValue)
					}
					f.Changed = false
				})
			}
			for _, sub := range c.Commands() {
				reset(sub)
			}
		}
		reset(rootCmd)
		rootCmd.SetArgs(nil)
	}
}

// fakeRuntime serves canned pip output per image.
type fakeRuntime struct {
	mu      sync.Mutex
	pip     map[string]string
	pullErr map[string]error
	pulled  map[string]bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		pip: map[string]string{
			"app:1": pipOutput(`[{"name":"requests","version":"2.28.1"}]`,
				"Name: requests\nLicense: Apache-2.0\nRequires: urllib3\n"),
			"app:2": pipOutput(`[{"name":"requests","version":"2.31.0"},{"name":"urllib3","version":"2.0.7"}]`,
				"Name: requests\nLicense: Apache-2.0\nRequires: urllib3\n---\nName: urllib3\nLicense: MIT\n"),
			"base:1": pipOutput(`[{"name":"urllib3","version":"1.26.0"}]`,
				"Name: urllib3\nLicense: MIT\n"),
		},
		pullErr: map[string]error{"broken:1": errors.New("manifest unknown")},
		pulled:  make(map[string]bool),
	}
}

func pipOutput(list, show string) string {
	return list + "\n@@PKG-INSPECTOR-PIP-SHOW@@\n" + show
}

func (f *fakeRuntime) EnsureImage(_ context.Context, t types.Target, pull bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled[t.Image+"/"+t.Architecture] = pull
	return f.pullErr[t.Image]
}

func (f *fakeRuntime) Inspect(_ context.Context, image string) (*runner.ImageInfo, error) {
	return &runner.ImageInfo{Digest: "sha256:" + image}, nil
}

func (f *fakeRuntime) Platforms(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (f *fakeRuntime) Exec(_ context.Context, t types.Target, script string) ([]byte, error) {
	switch {
	case strings.HasPrefix(script, "for t in"):
		return []byte("pip3\n"), nil
	case strings.Contains(script, "pip3"):
		return []byte(f.pip[t.Image]), nil
	}
	return nil, nil
}

// useFakeRuntime installs rt as the runtime for the rest of the test.
func useFakeRuntime(t *testing.T, rt *fakeRuntime) {
	t.Helper()
	newRuntime = func(bool, time.Duration) (analysis.Runtime, error) {
		return rt, nil
	}
}
