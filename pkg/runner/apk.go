package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

// APKExtractor reads the Alpine package database.
type APKExtractor struct{}

// Name returns the display name for this extractor.
func (e *APKExtractor) Name() string { return "apk" }

// Type reports the package type produced by apk.
func (e *APKExtractor) Type() types.PackageType { return types.PackageTypeBinary }

// Tools lists the binaries that enable apk extraction.
func (e *APKExtractor) Tools() []string { return []string{"apk"} }

func apkScript() string {
	return `if [ -f /lib/apk/db/installed ]; then cat /lib/apk/db/installed
else apk info -v
fi`
}

// Extract reads the apk database inside the target.
func (e *APKExtractor) Extract(ctx context.Context, ex Executor, t types.Target) ([]types.RawEntry, error) {
	output, err := ex.Exec(ctx, t, apkScript())
	if err != nil {
		return nil, fmt.Errorf("apk extraction failed: %w", err)
	}
	return parseAPKOutput(output), nil
}

// parseAPKOutput accepts either the installed database format ("P:name",
// "V:version", "L:license" stanzas) or 'apk info -v' lines.
func parseAPKOutput(output []byte) []types.RawEntry {
	text := string(output)
	if strings.HasPrefix(text, "P:") || strings.Contains(text, "\nP:") {
		return parseAPKInstalled(text)
	}
	return parseAPKInfo(text)
}

func parseAPKInstalled(text string) []types.RawEntry {
	var entries []types.RawEntry
	var cur types.RawEntry
	flush := func() {
		if cur.Name != "" {
			cur.Provider = types.ProviderAPK
			cur.LicenseSource = "APK database"
			if cur.Source == "" {
				cur.Source = "https://pkgs.alpinelinux.org/packages?name=" + cur.Name
			}
			entries = append(entries, cur)
		}
		cur = types.RawEntry{}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}
		if len(line) < 2 || line[1] != ':' {
			continue
		}
		value := line[2:]
		switch line[0] {
		case 'P':
			cur.Name = value
		case 'V':
			cur.Version = value
		case 'L':
			cur.RawLicense = value
		case 'U':
			cur.SourceCodeURL = value
		}
	}
	flush()
	return entries
}

// parseAPKInfo splits 'name-version-release' lines from 'apk info -v'.
func parseAPKInfo(text string) []types.RawEntry {
	var entries []types.RawEntry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "WARNING:") || strings.Contains(line, "No such file") {
			continue
		}
		// The version starts at the second-to-last dash.
		last := strings.LastIndex(line, "-")
		if last <= 0 {
			continue
		}
		cut := strings.LastIndex(line[:last], "-")
		if cut <= 0 {
			cut = last
		}
		name := line[:cut]
		entries = append(entries, types.RawEntry{
			Name:          name,
			Version:       line[cut+1:],
			Source:        "https://pkgs.alpinelinux.org/packages?name=" + name,
			Provider:      types.ProviderAPK,
			LicenseSource: "Not available",
		})
	}
	return entries
}
