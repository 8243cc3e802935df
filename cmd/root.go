package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	imageFlags      []string
	imagesList      string
	archFlags       []string
	archsList       string
	dockerfile      string
	diffMode        bool
	excludeImage    string
	jsonOutput      string
	csvOutput       string
	outputDir       string
	delimiter       string
	pull            bool
	noPull          bool
	workers         int
	timeout         time.Duration
	saveSnapshots   bool
	dbPath          string
	ignoreErrors    bool
	verbose         bool
	configFile      string
	dryRun          bool
	showSummary     bool
	checkPlatforms  bool
	useSyft         bool
	defaultArch     string
	licenseKeywords []string
)

// stdout and stderr are swapped by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "pkg-inspector",
	Short: "Inventory and diff the packages inside container images",
	Long: `Inventory the Python and OS packages installed in container images.

For every image and architecture, pkg-inspector lists installed packages with
a normalized license, records which Python packages are pulled in by others,
and writes the result as JSON and CSV.

Modes:
- Inventory: one or more images, optionally crossed with several architectures.
- Diff: exactly two targets; reports added, removed and changed packages.
  Packages that also exist in --exclude-packages-from-image are marked as inherited.

Settings can also be read from 'pkg-inspector.yaml' (or --config).`,
	Example: `  # Inventory a single image
  pkg-inspector --image python:3.11-slim

  # Matrix of images and architectures
  pkg-inspector --images python:3.11,python:3.12 --archs amd64,arm64

  # Inline architecture
  pkg-inspector --image ubuntu:24.04/arm64 -o ubuntu.json

  # Diff two images, ignoring packages inherited from the base image
  pkg-inspector --diff --image myapp:1.0 --image myapp:1.1 \
    --exclude-packages-from-image python:3.11-slim --summary

  # Base images of a Dockerfile
  pkg-inspector -f ./Dockerfile --dry-run`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := buildOptions(cmd)
		if err != nil {
			return err
		}
		return runInspect(cmd.Context(), opts)
	},
}

// Execute runs the root cobra command and exits on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
}

func init() {
	// Dynamically append tool status to the help description
	rootCmd.Long += "\n" + checkToolStatus()

	f := rootCmd.Flags()
	f.StringArrayVar(&imageFlags, "image", nil, "Image to inspect, optionally with an inline architecture (e.g. python:3.11/arm64); repeatable")
	f.StringVar(&imagesList, "images", "", "Comma-separated list of images to inspect")
	f.StringArrayVar(&archFlags, "arch", nil, "Architecture to inspect (e.g. amd64, arm64, arm/v7); repeatable")
	f.StringVar(&archsList, "archs", "", "Comma-separated list of architectures")
	f.StringVarP(&dockerfile, "file", "f", "", "Dockerfile whose FROM images are inspected")
	f.BoolVar(&diffMode, "diff", false, "Compare exactly two targets")
	f.StringVar(&excludeImage, "exclude-packages-from-image", "", "Mark added packages also present in this image as inherited (diff mode)")
	f.StringVarP(&jsonOutput, "json-output", "o", "", "Path to the JSON output file")
	f.StringVar(&csvOutput, "csv-output", "", "Path to the CSV output file")
	f.StringVar(&outputDir, "output-dir", "", "Directory for default output files (default: OS temp dir)")
	f.StringVar(&delimiter, "delimiter", ",", "CSV delimiter: ',', ';', '|' or '\\t'")
	f.BoolVar(&pull, "pull", true, "Pull images before inspecting")
	f.BoolVar(&noPull, "no-pull", false, "Only use images already present locally")
	f.IntVar(&workers, "workers", 0, "Number of targets inspected in parallel (default 4)")
	f.DurationVar(&timeout, "timeout", 0, "Override the timeout of each container command (e.g. 2m)")
	f.BoolVar(&saveSnapshots, "save", false, "Save inventories to the snapshot history")
	f.BoolVar(&ignoreErrors, "ignore-errors", false, "Report failed targets as warnings and exit zero (default false)")
	f.BoolVar(&dryRun, "dry-run", false, "Print JSON to stdout instead of writing files")
	f.BoolVar(&showSummary, "summary", false, "Print a readable summary to stdout")
	f.BoolVar(&checkPlatforms, "check-platforms", false, "Check the image manifest for the architecture before pulling")
	f.BoolVar(&useSyft, "syft", false, "Catalog packages with syft instead of querying package managers in the container")
	f.StringVar(&defaultArch, "default-arch", "", "Architecture used when none is given (default: host architecture)")
	f.StringSliceVar(&licenseKeywords, "proprietary-keyword", nil, "Keyword marking a license string as proprietary; repeatable")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to config file (default: pkg-inspector.yaml if present)")
	pf.StringVar(&dbPath, "db", "", "Path to the snapshot history database (default: ~/.pkg-inspector/history.db)")
	pf.BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	// Add version flag as shortcut for "version" command
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("pkg-inspector {{.Version}}\n")
}
