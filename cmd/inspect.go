package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/northcutted/pkg-inspector/pkg/analysis"
	"github.com/northcutted/pkg-inspector/pkg/diff"
	"github.com/northcutted/pkg-inspector/pkg/inventory"
	"github.com/northcutted/pkg-inspector/pkg/license"
	"github.com/northcutted/pkg-inspector/pkg/renderer"
	"github.com/northcutted/pkg-inspector/pkg/runner"
	"github.com/northcutted/pkg-inspector/pkg/target"
	"github.com/northcutted/pkg-inspector/pkg/types"
)

// newRuntime and newCataloger are replaced in tests.
var (
	newRuntime = func(verbose bool, timeout time.Duration) (analysis.Runtime, error) {
		rt, err := runner.NewRuntime(verbose)
		if err != nil {
			return nil, err
		}
		rt.Timeout = timeout
		return rt, nil
	}
	newCataloger = func(verbose bool) (analysis.Cataloger, error) {
		s := &runner.SyftRunner{Verbose: verbose}
		if !s.IsAvailable() {
			return nil, fmt.Errorf("syft not found in PATH")
		}
		return s, nil
	}
)

func runInspect(ctx context.Context, opts *runOptions) error {
	mode := target.ModeSingle
	switch {
	case opts.diff:
		mode = target.ModeDiff
	case len(opts.specs) > 1 || len(opts.archs) > 1:
		mode = target.ModeMatrix
	}

	targets, err := target.Resolve(target.Request{
		Specs:               opts.specs,
		Architectures:       opts.archs,
		Mode:                mode,
		DefaultArchitecture: opts.defaultArch,
	})
	if err != nil {
		return err
	}
	slog.Info("resolved targets", "mode", mode.String(), "count", len(targets))
	for _, t := range targets {
		slog.Debug("target", "image", t.Image, "arch", t.Architecture)
	}

	rt, err := newRuntime(verbose, opts.timeout)
	if err != nil {
		return err
	}

	assembler := inventory.NewAssembler(license.New(opts.keywords))
	analyzer := analysis.New(rt, assembler, analysis.Options{
		Pull:           opts.pull,
		Workers:        opts.workers,
		CheckPlatforms: opts.checkPlatforms,
	})
	if opts.useSyft {
		cataloger, err := newCataloger(verbose)
		if err != nil {
			return err
		}
		analyzer.Cataloger = cataloger
	}

	meta := renderer.Meta{Version: Version, Date: time.Now()}
	if opts.diff {
		return runDiff(ctx, analyzer, targets, opts, meta)
	}
	if opts.exclude != "" {
		slog.Warn("--exclude-packages-from-image only applies to diff mode, ignoring", "image", opts.exclude)
	}
	return runInventory(ctx, analyzer, targets, opts, meta)
}

func runInventory(ctx context.Context, analyzer *analysis.Analyzer, targets []types.Target, opts *runOptions, meta renderer.Meta) error {
	results := analyzer.AnalyzeTargets(ctx, targets)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("inspection interrupted: %w", err)
	}

	failures := analysis.Failures(results)
	for _, f := range failures {
		slog.Warn("inspection failed", "image", f.Target.Image, "arch", f.Target.Architecture, "error", f.Err)
	}

	stats := analysis.Summarize(results)
	doc := renderer.NewInventoryDocument(meta, results)
	err := writeOutputs(opts, targets, doc, func(w io.Writer) error {
		return renderer.WriteInventoryCSV(w, doc, opts.delimiter)
	})
	if err != nil {
		return err
	}

	if opts.summary {
		if err := renderer.RenderInventorySummary(stdout, doc, stats); err != nil {
			return err
		}
	}

	if opts.save {
		var snaps []*types.InventorySnapshot
		for _, r := range results {
			if r.OK() {
				snaps = append(snaps, r.Snapshot)
			}
		}
		if err := persistSnapshots(opts.dbPath, snaps); err != nil {
			return err
		}
	}

	slog.Info("inspection complete", "targets", stats.Targets, "succeeded", stats.Succeeded, "failed", stats.Failed, "packages", stats.TotalPackages)
	if stats.Failed > 0 && !opts.ignoreErrors {
		return fmt.Errorf("%d of %d targets failed (use --ignore-errors to continue)", stats.Failed, stats.Targets)
	}
	return nil
}

func runDiff(ctx context.Context, analyzer *analysis.Analyzer, targets []types.Target, opts *runOptions, meta renderer.Meta) error {
	all := targets
	if opts.exclude != "" {
		spec, err := target.ParseImageSpec(opts.exclude)
		if err != nil {
			return err
		}
		arch := spec.Architecture
		if arch == "" {
			arch = targets[0].Architecture
		}
		all = append(append([]types.Target{}, targets...), types.Target{Image: spec.Image, Architecture: arch})
	}

	results := analyzer.AnalyzeTargets(ctx, all)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("inspection interrupted: %w", err)
	}
	for _, r := range results[:2] {
		if !r.OK() {
			return fmt.Errorf("cannot diff: %w", r.Err)
		}
	}

	var diffOpts diff.Options
	if len(results) > 2 {
		switch excl := results[2]; {
		case excl.OK():
			diffOpts.Exclude = excl.Snapshot
		case opts.ignoreErrors:
			slog.Warn("exclusion image failed, diffing without it", "image", excl.Target.Image, "error", excl.Err)
		default:
			return fmt.Errorf("failed to inspect exclusion image: %w", excl.Err)
		}
	}

	res := diff.Compare(results[0].Snapshot, results[1].Snapshot, diffOpts)
	slog.Info("diff complete", "added", res.Summary.Added, "removed", res.Summary.Removed,
		"changed", res.Summary.Changed, "unchanged", res.Summary.Unchanged)

	doc := renderer.NewDiffDocument(meta, res)
	err := writeOutputs(opts, targets, doc, func(w io.Writer) error {
		return renderer.WriteDiffCSV(w, doc, opts.delimiter)
	})
	if err != nil {
		return err
	}

	if opts.summary {
		if err := renderer.RenderDiffSummary(stdout, doc); err != nil {
			return err
		}
	}

	if opts.save {
		snaps := []*types.InventorySnapshot{results[0].Snapshot, results[1].Snapshot}
		if err := persistSnapshots(opts.dbPath, snaps); err != nil {
			return err
		}
	}
	return nil
}
