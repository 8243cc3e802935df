package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

// RPMExtractor lists packages from the rpm database.
type RPMExtractor struct{}

// Name returns the display name for this extractor.
func (e *RPMExtractor) Name() string { return "rpm" }

// Type reports the package type produced by rpm.
func (e *RPMExtractor) Type() types.PackageType { return types.PackageTypeBinary }

// Tools lists the binaries that enable rpm extraction.
func (e *RPMExtractor) Tools() []string { return []string{"rpm"} }

func rpmScript() string {
	return `command -v rpm >/dev/null 2>&1 || { echo "rpm not found" >&2; exit 127; }
rpm -qa --queryformat '%{NAME}|%{VERSION}-%{RELEASE}|%{LICENSE}|%{URL}\n'`
}

// Extract runs rpm inside the target.
func (e *RPMExtractor) Extract(ctx context.Context, ex Executor, t types.Target) ([]types.RawEntry, error) {
	output, err := ex.Exec(ctx, t, rpmScript())
	if err != nil {
		return nil, fmt.Errorf("rpm extraction failed: %w", err)
	}
	return parseRPMOutput(output), nil
}

// parseRPMOutput parses 'NAME|VERSION-RELEASE|LICENSE|URL' lines. rpm
// prints "(none)" for missing tags.
func parseRPMOutput(output []byte) []types.RawEntry {
	var entries []types.RawEntry
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}
		for i := range parts {
			if parts[i] == "(none)" {
				parts[i] = ""
			}
		}
		entry := types.RawEntry{
			Name:          parts[0],
			Version:       parts[1],
			Provider:      types.ProviderRPM,
			LicenseSource: "RPM metadata",
		}
		if len(parts) > 2 {
			entry.RawLicense = parts[2]
		}
		if len(parts) > 3 {
			entry.Source = parts[3]
			entry.SourceCodeURL = parts[3]
		}
		entries = append(entries, entry)
	}
	return entries
}
