package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

// SyftRunner catalogs a target from the host with 'syft <image> -o json'
// instead of running package managers inside a container.
type SyftRunner struct {
	binary  string
	Verbose bool
}

// Name returns the display name for this runner.
func (r *SyftRunner) Name() string { return "syft" }

// IsAvailable checks whether the syft binary is installed.
func (r *SyftRunner) IsAvailable() bool {
	if path, err := lookupTool("syft"); err == nil {
		r.binary = path
		return true
	}
	return false
}

// Run executes syft for the target platform and splits the catalog into
// python and binary entries.
func (r *SyftRunner) Run(ctx context.Context, t types.Target) (python, binary []types.RawEntry, err error) {
	if r.binary == "" && !r.IsAvailable() {
		return nil, nil, fmt.Errorf("syft not found")
	}
	runCtx, cancel := context.WithTimeout(ctx, TimeoutScan)
	defer cancel()
	cmd := exec.CommandContext(runCtx, r.binary, t.Image, "--platform", "linux/"+t.Architecture, "-o", "json", "-q")
	output, err := runCommand(cmd, r.Verbose)
	if err != nil {
		return nil, nil, err
	}

	return parseSyftOutput(output)
}

// syftLicenses accepts both the object form ({"value": ...}) and the plain
// string form of the licenses array.
type syftLicenses []string

func (l *syftLicenses) UnmarshalJSON(data []byte) error {
	var objects []struct {
		Value          string `json:"value"`
		SPDXExpression string `json:"spdxExpression"`
	}
	if err := json.Unmarshal(data, &objects); err == nil {
		for _, o := range objects {
			if o.SPDXExpression != "" {
				*l = append(*l, o.SPDXExpression)
			} else if o.Value != "" {
				*l = append(*l, o.Value)
			}
		}
		return nil
	}
	var plain []string
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}
	*l = append(*l, plain...)
	return nil
}

var syftProviders = map[string]string{
	"python": types.ProviderPip,
	"deb":    types.ProviderDpkg,
	"rpm":    types.ProviderRPM,
	"apk":    types.ProviderAPK,
}

// parseSyftOutput parses JSON output from 'syft <image> -o json'. Artifacts
// of other ecosystems are skipped.
func parseSyftOutput(output []byte) (python, binary []types.RawEntry, err error) {
	var syftOutput struct {
		Artifacts []struct {
			Name     string       `json:"name"`
			Version  string       `json:"version"`
			Type     string       `json:"type"`
			Licenses syftLicenses `json:"licenses"`
			Metadata struct {
				RequiresDist []string `json:"requiresDist"`
				Homepage     string   `json:"homepage"`
			} `json:"metadata"`
		} `json:"artifacts"`
	}

	if err := json.Unmarshal(output, &syftOutput); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal syft output: %w", err)
	}

	seen := make(map[string]bool)
	for _, a := range syftOutput.Artifacts {
		provider, ok := syftProviders[a.Type]
		if !ok || a.Name == "" {
			continue
		}
		key := a.Type + "/" + a.Name + "@" + a.Version
		if seen[key] {
			continue
		}
		seen[key] = true

		entry := types.RawEntry{
			Name:          a.Name,
			Version:       a.Version,
			RawLicense:    strings.Join(a.Licenses, " | "),
			SourceCodeURL: a.Metadata.Homepage,
			Provider:      provider,
			LicenseSource: "syft catalog",
		}
		if a.Type == "python" {
			entry.Source = fmt.Sprintf("https://pypi.org/project/%s/", a.Name)
			entry.DeclaredRequirements = a.Metadata.RequiresDist
			python = append(python, entry)
			continue
		}
		entry.Source = entry.SourceCodeURL
		binary = append(binary, entry)
	}

	return python, binary, nil
}
