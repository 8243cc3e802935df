package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/northcutted/pkg-inspector/pkg/analysis"
	"github.com/northcutted/pkg-inspector/pkg/config"
	"github.com/northcutted/pkg-inspector/pkg/parser"
)

// runOptions is the merged view of flags and the config file.
type runOptions struct {
	specs          []string
	archs          []string
	diff           bool
	exclude        string
	jsonPath       string
	csvPath        string
	outputDir      string
	delimiter      rune
	pull           bool
	workers        int
	timeout        time.Duration
	save           bool
	dbPath         string
	defaultArch    string
	keywords       []string
	checkPlatforms bool
	useSyft        bool
	ignoreErrors   bool
	dryRun         bool
	summary        bool
}

// loadConfig returns the config named by --config, or pkg-inspector.yaml
// when it exists in the working directory. No config yields an empty one.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}
	if path == "" {
		return &config.Config{}, nil
	}
	slog.Debug("using config file", "path", path)
	return config.Load(path)
}

// buildOptions merges flags over the config file over defaults.
func buildOptions(cmd *cobra.Command) (*runOptions, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	changed := cmd.Flags().Changed

	opts := &runOptions{
		diff:           cfg.Diff || diffMode,
		exclude:        pick(changed("exclude-packages-from-image"), excludeImage, cfg.ExcludeFromImage),
		jsonPath:       pick(changed("json-output"), jsonOutput, cfg.Output.JSON),
		csvPath:        pick(changed("csv-output"), csvOutput, cfg.Output.CSV),
		outputDir:      pick(changed("output-dir"), outputDir, cfg.Output.Dir),
		pull:           cfg.PullEnabled(),
		workers:        cfg.Workers,
		timeout:        timeout,
		save:           cfg.Store.Save || saveSnapshots,
		dbPath:         resolveDBPath(cfg),
		defaultArch:    pick(changed("default-arch"), defaultArch, cfg.DefaultArchitecture),
		keywords:       cfg.License.ProprietaryKeywords,
		checkPlatforms: cfg.CheckPlatforms || checkPlatforms,
		useSyft:        cfg.UseSyft || useSyft,
		ignoreErrors:   ignoreErrors,
		dryRun:         dryRun,
		summary:        showSummary,
	}

	if changed("pull") {
		opts.pull = pull
	}
	if noPull {
		opts.pull = false
	}
	if changed("workers") {
		opts.workers = workers
	}
	if opts.workers < 0 || (changed("workers") && opts.workers == 0) {
		return nil, fmt.Errorf("--workers must be >= 1, got %d", opts.workers)
	}
	if opts.workers == 0 {
		opts.workers = analysis.DefaultWorkers
	}
	if changed("proprietary-keyword") {
		opts.keywords = licenseKeywords
	}

	delim := delimiter
	if !changed("delimiter") && cfg.Output.Delimiter != "" {
		delim = cfg.Output.Delimiter
	}
	if opts.delimiter, err = config.ParseDelimiter(delim); err != nil {
		return nil, err
	}

	// Images: flags replace the config list; Dockerfile base images are appended.
	specs := append(append([]string{}, imageFlags...), splitList(imagesList)...)
	if len(specs) == 0 {
		specs = append(specs, cfg.Images...)
	}
	df := pick(changed("file"), dockerfile, cfg.Dockerfile)
	if df != "" {
		bases, err := parser.Parse(df)
		if err != nil {
			return nil, err
		}
		fromDockerfile := parser.Specs(bases)
		slog.Info("found base images in dockerfile", "path", df, "count", len(fromDockerfile))
		specs = append(specs, fromDockerfile...)
	}
	opts.specs = specs

	archs := append(append([]string{}, archFlags...), splitList(archsList)...)
	if len(archs) == 0 {
		archs = append(archs, cfg.Architectures...)
	}
	opts.archs = archs

	return opts, nil
}

func pick(flagSet bool, flagValue, cfgValue string) string {
	if flagSet || cfgValue == "" {
		return flagValue
	}
	return cfgValue
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func resolveDBPath(cfg *config.Config) string {
	if dbPath != "" {
		return dbPath
	}
	if cfg != nil && cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	return config.DefaultStorePath()
}
