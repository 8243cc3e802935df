package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/northcutted/pkg-inspector/pkg/target"
)

// DefaultFile is looked up in the working directory when --config is not given.
const DefaultFile = "pkg-inspector.yaml"

// Config is the YAML configuration file.
type Config struct {
	Images              []string      `yaml:"images"`
	Architectures       []string      `yaml:"architectures"`
	Dockerfile          string        `yaml:"dockerfile"`
	Diff                bool          `yaml:"diff"`
	ExcludeFromImage    string        `yaml:"exclude_from_image"`
	Pull                *bool         `yaml:"pull"`
	Workers             int           `yaml:"workers"`
	DefaultArchitecture string        `yaml:"default_architecture"`
	CheckPlatforms      bool          `yaml:"check_platforms"`
	UseSyft             bool          `yaml:"use_syft"`
	Output              OutputConfig  `yaml:"output"`
	License             LicenseConfig `yaml:"license"`
	Store               StoreConfig   `yaml:"store"`
}

// OutputConfig selects where results are written.
type OutputConfig struct {
	JSON      string `yaml:"json"`
	CSV       string `yaml:"csv"`
	Dir       string `yaml:"dir"`
	Delimiter string `yaml:"delimiter"`
}

// LicenseConfig tunes license normalization.
type LicenseConfig struct {
	ProprietaryKeywords []string `yaml:"proprietary_keywords"`
}

// StoreConfig configures the snapshot history database.
type StoreConfig struct {
	Path string `yaml:"path"`
	Save bool   `yaml:"save"`
}

// Load reads and validates the config file at path. Relative paths inside
// the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	cfg.resolvePaths(filepath.Dir(path))
	return &cfg, nil
}

// Validate checks values the flags cannot express wrongly.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.Output.Delimiter != "" {
		if _, err := ParseDelimiter(c.Output.Delimiter); err != nil {
			return err
		}
	}
	for _, a := range c.Architectures {
		if !target.IsKnownArchitecture(a) {
			return fmt.Errorf("unknown architecture %q (known: %s)", a, strings.Join(target.KnownArchitectures(), ", "))
		}
	}
	if c.DefaultArchitecture != "" && !target.IsKnownArchitecture(c.DefaultArchitecture) {
		return fmt.Errorf("unknown default_architecture %q", c.DefaultArchitecture)
	}
	return nil
}

// PullEnabled returns the pull setting, defaulting to true.
func (c *Config) PullEnabled() bool {
	return c.Pull == nil || *c.Pull
}

func (c *Config) resolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		if strings.HasPrefix(p, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, p[2:])
			}
			return p
		}
		return filepath.Join(base, p)
	}
	c.Dockerfile = resolve(c.Dockerfile)
	c.Output.JSON = resolve(c.Output.JSON)
	c.Output.CSV = resolve(c.Output.CSV)
	c.Output.Dir = resolve(c.Output.Dir)
	c.Store.Path = resolve(c.Store.Path)
}

// ParseDelimiter accepts a single-character CSV delimiter; "\t" and "tab"
// name the tab character.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab", "\t":
		return '\t', nil
	case ",", ";", "|":
		return rune(s[0]), nil
	}
	return 0, fmt.Errorf("unsupported delimiter %q (use ',', ';', '|' or '\\t')", s)
}

// DefaultStorePath is the history database location when none is configured.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pkg-inspector", "history.db")
	}
	return filepath.Join(home, ".pkg-inspector", "history.db")
}
