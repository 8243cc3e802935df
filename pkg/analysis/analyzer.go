package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/northcutted/pkg-inspector/pkg/inventory"
	"github.com/northcutted/pkg-inspector/pkg/runner"
	"github.com/northcutted/pkg-inspector/pkg/types"
)

// DefaultWorkers bounds the number of targets analyzed at once.
const DefaultWorkers = 4

// Runtime is the container runtime surface the pipeline needs.
// *runner.Runtime implements it.
type Runtime interface {
	runner.Executor
	EnsureImage(ctx context.Context, t types.Target, pull bool) error
	Inspect(ctx context.Context, image string) (*runner.ImageInfo, error)
	Platforms(ctx context.Context, image string) ([]string, error)
}

// Cataloger inventories a target from the host. *runner.SyftRunner
// implements it.
type Cataloger interface {
	Name() string
	Run(ctx context.Context, t types.Target) (python, binary []types.RawEntry, err error)
}

// Options tune the per-target pipeline.
type Options struct {
	Pull           bool
	Workers        int
	CheckPlatforms bool
}

// Analyzer runs extraction and assembly for targets.
type Analyzer struct {
	Runtime    Runtime
	Extractors []runner.Extractor
	// Cataloger replaces the in-container extractors when set.
	Cataloger Cataloger
	Assembler *inventory.Assembler
	Options   Options
}

// New returns an Analyzer with the default extractors.
func New(rt Runtime, assembler *inventory.Assembler, opts Options) *Analyzer {
	if assembler == nil {
		assembler = inventory.NewAssembler(nil)
	}
	return &Analyzer{
		Runtime:    rt,
		Extractors: runner.DefaultExtractors(),
		Assembler:  assembler,
		Options:    opts,
	}
}

// AnalyzeTargets runs one pipeline per target concurrently. Results are in
// target order; a failing target never cancels its siblings.
func (a *Analyzer) AnalyzeTargets(ctx context.Context, targets []types.Target) []TargetResult {
	results := make([]TargetResult, len(targets))

	workers := a.Options.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			snap, err := a.AnalyzeTarget(ctx, t)
			if err != nil {
				slog.Warn("target failed", "image", t.Image, "arch", t.Architecture, "error", err)
				results[i] = TargetResult{Target: t, Err: err}
				return nil
			}
			results[i] = TargetResult{Target: snap.Target, Snapshot: snap}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// AnalyzeTarget pulls, inspects and inventories one target. Any error is
// returned as a *types.ExtractionFailure.
func (a *Analyzer) AnalyzeTarget(ctx context.Context, t types.Target) (*types.InventorySnapshot, error) {
	snap, err := a.analyze(ctx, t)
	if err != nil {
		return nil, &types.ExtractionFailure{Target: t, Err: err}
	}
	return snap, nil
}

func (a *Analyzer) analyze(ctx context.Context, t types.Target) (*types.InventorySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.Runtime == nil {
		return nil, runner.ErrNoRuntime
	}

	slog.Info("analyzing image", "image", t.Image, "arch", t.Architecture)

	if a.Options.CheckPlatforms {
		platforms, err := a.Runtime.Platforms(ctx, t.Image)
		switch {
		case err != nil:
			slog.Warn("platform check skipped", "image", t.Image, "error", err)
		case !runner.SupportsArchitecture(platforms, t):
			return nil, fmt.Errorf("architecture %s is not published for %s (available: %v)", t.Architecture, t.Image, platforms)
		}
	}

	if err := a.Runtime.EnsureImage(ctx, t, a.Options.Pull); err != nil {
		return nil, err
	}

	info, err := a.Runtime.Inspect(ctx, t.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", t.Image, err)
	}
	t.Digest = info.Digest
	if info.Architecture != "" && info.Platform() != t.Architecture && info.Architecture != t.Architecture {
		slog.Warn("local image architecture differs from target", "image", t.Image, "want", t.Architecture, "got", info.Platform())
	}

	sources, err := a.extract(ctx, t)
	if err != nil {
		return nil, err
	}

	snap, err := a.Assembler.Assemble(t, sources)
	if err != nil {
		return nil, err
	}
	slog.Info("inventory assembled", "image", t.Image, "arch", t.Architecture, "packages", len(snap.Records))
	return snap, nil
}

func (a *Analyzer) extract(ctx context.Context, t types.Target) ([]inventory.Source, error) {
	if a.Cataloger != nil {
		python, binary, err := a.Cataloger.Run(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w", a.Cataloger.Name(), err)
		}
		return []inventory.Source{
			{Name: a.Cataloger.Name(), Type: types.PackageTypePython, Entries: python},
			{Name: a.Cataloger.Name(), Type: types.PackageTypeBinary, Entries: binary},
		}, nil
	}

	var tools []string
	for _, e := range a.Extractors {
		tools = append(tools, e.Tools()...)
	}
	found, err := runner.Probe(ctx, a.Runtime, t, tools)
	if err != nil {
		return nil, err
	}

	var sources []inventory.Source
	for _, e := range a.Extractors {
		if !available(e, found) {
			slog.Debug("extractor not applicable", "extractor", e.Name(), "image", t.Image)
			continue
		}
		entries, err := e.Extract(ctx, a.Runtime, t)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w", e.Name(), err)
		}
		slog.Debug("extracted packages", "extractor", e.Name(), "image", t.Image, "count", len(entries))
		sources = append(sources, inventory.Source{Name: e.Name(), Type: e.Type(), Entries: entries})
	}
	return sources, nil
}

func available(e runner.Extractor, found map[string]bool) bool {
	for _, tool := range e.Tools() {
		if found[tool] {
			return true
		}
	}
	return false
}
