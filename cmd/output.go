package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/northcutted/pkg-inspector/pkg/renderer"
	"github.com/northcutted/pkg-inspector/pkg/store"
	"github.com/northcutted/pkg-inspector/pkg/types"
)

// resolveOutputPaths returns the JSON and CSV destinations. Explicit paths
// are used as given; with neither set, both default to files named after
// the targets.
func resolveOutputPaths(opts *runOptions, targets []types.Target) (jsonPath, csvPath string) {
	if opts.jsonPath != "" || opts.csvPath != "" {
		return opts.jsonPath, opts.csvPath
	}
	jsonPath, csvPath = renderer.DefaultOutputPaths(opts.outputDir, opts.specs, targets, opts.diff)
	slog.Info("no output files specified, using defaults", "json", jsonPath, "csv", csvPath)
	return jsonPath, csvPath
}

// writeOutputs writes doc as JSON and, when a CSV path is set, as CSV.
// In dry-run mode the JSON goes to stdout and no files are written.
func writeOutputs(opts *runOptions, targets []types.Target, doc any, writeCSV func(io.Writer) error) error {
	if opts.dryRun {
		return renderer.WriteJSON(stdout, doc)
	}

	jsonPath, csvPath := resolveOutputPaths(opts, targets)
	if jsonPath != "" {
		if err := writeFile(jsonPath, func(w io.Writer) error { return renderer.WriteJSON(w, doc) }); err != nil {
			return err
		}
		slog.Info("wrote JSON output", "path", jsonPath)
	}
	if csvPath != "" {
		if err := writeFile(csvPath, writeCSV); err != nil {
			return err
		}
		slog.Info("wrote CSV output", "path", csvPath)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// persistSnapshots stores snaps in the history database at dbPath.
func persistSnapshots(dbPath string, snaps []*types.InventorySnapshot) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot history: %w", err)
	}
	defer func() { _ = s.Close() }()

	for _, snap := range snaps {
		id, err := s.SaveSnapshot(snap)
		if err != nil {
			return fmt.Errorf("failed to save snapshot of %s: %w", snap.Target, err)
		}
		slog.Info("saved snapshot", "id", id, "image", snap.Target.Image, "arch", snap.Target.Architecture)
	}
	return nil
}
