package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

const dpkgCopyrightMarker = "@@PKG-INSPECTOR-COPYRIGHT@@"

// DpkgExtractor lists Debian packages with dpkg-query and reads each
// package's /usr/share/doc/<pkg>/copyright file.
type DpkgExtractor struct{}

// Name returns the display name for this extractor.
func (e *DpkgExtractor) Name() string { return "dpkg" }

// Type reports the package type produced by dpkg.
func (e *DpkgExtractor) Type() types.PackageType { return types.PackageTypeBinary }

// Tools lists the binaries that enable dpkg extraction.
func (e *DpkgExtractor) Tools() []string { return []string{"dpkg-query"} }

func dpkgScript() string {
	return `command -v dpkg-query >/dev/null 2>&1 || { echo "dpkg-query not found" >&2; exit 127; }
dpkg-query -W -f='${Package}|${Version}|${Homepage}|${Source}\n' || exit $?
echo "` + dpkgCopyrightMarker + `"
for p in $(dpkg-query -W -f='${Package}\n'); do
  f="/usr/share/doc/$p/copyright"
  if [ -f "$f" ]; then echo "` + fileMarker + `$p"; head -c 65536 "$f"; echo; fi
done
true`
}

// Extract runs dpkg-query inside the target.
func (e *DpkgExtractor) Extract(ctx context.Context, ex Executor, t types.Target) ([]types.RawEntry, error) {
	output, err := ex.Exec(ctx, t, dpkgScript())
	if err != nil {
		return nil, fmt.Errorf("dpkg extraction failed: %w", err)
	}
	return parseDpkgOutput(output)
}

// parseDpkgOutput parses 'Package|Version|Homepage|Source' lines followed by
// the copyright files of the listed packages. Output without the copyright
// marker means the query did not complete.
func parseDpkgOutput(output []byte) ([]types.RawEntry, error) {
	sections := splitSections(string(output), dpkgCopyrightMarker)
	if len(sections) < 2 {
		return nil, errors.New("dpkg-query output is incomplete")
	}
	copyrights := splitFileBlocks(sections[1])

	var entries []types.RawEntry
	for _, line := range strings.Split(sections[0], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}
		entry := types.RawEntry{
			Name:     parts[0],
			Version:  parts[1],
			Provider: types.ProviderDpkg,
		}
		if len(parts) > 2 {
			entry.SourceCodeURL = parts[2]
		}
		entry.Source = entry.SourceCodeURL
		if entry.Source == "" {
			src := entry.Name
			if len(parts) > 3 && parts[3] != "" {
				// "${Source}" may carry a version: "glibc (2.36-9)".
				src = strings.Fields(parts[3])[0]
			}
			entry.Source = "https://packages.debian.org/source/" + src
		}
		if text, ok := copyrights[entry.Name]; ok {
			entry.LicenseText = text
			entry.LicenseSource = "/usr/share/doc/" + entry.Name + "/copyright"
		} else {
			entry.LicenseSource = "Not found"
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
