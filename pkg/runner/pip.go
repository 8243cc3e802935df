package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

const (
	pipShowMarker    = "@@PKG-INSPECTOR-PIP-SHOW@@"
	pipLicenseMarker = "@@PKG-INSPECTOR-PIP-LICENSE@@"
)

// PipExtractor lists python packages with 'pip list' and reads license and
// requirement metadata with 'pip show'. Packages without license metadata
// fall back to the LICENSE, COPYING or COPYRIGHT files they install.
type PipExtractor struct{}

// Name returns the display name for this extractor.
func (e *PipExtractor) Name() string { return "pip" }

// Type reports the package type produced by pip.
func (e *PipExtractor) Type() types.PackageType { return types.PackageTypePython }

// Tools lists the binaries that enable pip extraction.
func (e *PipExtractor) Tools() []string { return []string{"pip3", "pip"} }

// pipLicenseFiles reads 'pip show -f' output and prints "name|path" for up
// to three license files of every package whose metadata has no license.
const pipLicenseFiles = `awk -v max=3 '
/^Name:/ { sub(/^Name: */, ""); name = $0; lic = ""; n = 0; files = 0; next }
/^License(-Expression)?:/ { v = $0; sub(/^[^:]*: */, "", v); if (toupper(v) != "UNKNOWN") lic = lic v; next }
/^Location:/ { sub(/^Location: */, ""); loc = $0; next }
/^Files:/ { files = 1; next }
/^[^ ]/ { files = 0; next }
files && lic == "" && n < max {
  f = $0; sub(/^ +/, "", f); b = f; sub(/.*\//, "", b)
  if (toupper(b) ~ /^(LICEN[CS]E|COPYING|COPYRIGHT)/) { n++; print name "|" loc "/" f }
}'`

func pipScript() string {
	return `P=$(command -v pip3 || command -v pip) || { echo "pip not found" >&2; exit 127; }
export PIP_DISABLE_PIP_VERSION_CHECK=1
"$P" list --format=json || exit $?
echo "` + pipShowMarker + `"
SHOW=$("$P" list --format=freeze 2>/dev/null | sed 's/[=@ ].*//' | xargs "$P" show -f 2>/dev/null)
printf '%s\n' "$SHOW"
echo "` + pipLicenseMarker + `"
printf '%s\n' "$SHOW" | ` + pipLicenseFiles + ` | while IFS='|' read -r name path; do
  [ -f "$path" ] || continue
  echo "` + fileMarker + `$name"; head -c 65536 "$path"; echo
done
true`
}

// Extract runs pip inside the target.
func (e *PipExtractor) Extract(ctx context.Context, ex Executor, t types.Target) ([]types.RawEntry, error) {
	output, err := ex.Exec(ctx, t, pipScript())
	if err != nil {
		return nil, fmt.Errorf("pip extraction failed: %w", err)
	}
	return parsePipOutput(output)
}

type pipShow struct {
	name       string
	license    string
	homepage   string
	requires   []string
	projectURL string
}

var pipNameSep = regexp.MustCompile(`[-_.]+`)

// canonicalPipName applies PEP 503 name normalization.
func canonicalPipName(name string) string {
	return strings.ToLower(pipNameSep.ReplaceAllString(strings.TrimSpace(name), "-"))
}

// parsePipOutput parses the combined output of 'pip list --format=json' and
// 'pip show'. Requirement names are rewritten to the spelling 'pip list'
// uses so they match package names exactly.
func parsePipOutput(output []byte) ([]types.RawEntry, error) {
	sections := splitSections(string(output), pipShowMarker)
	if len(sections) < 2 {
		return nil, errors.New("pip output is incomplete")
	}

	var listLine string
	for _, line := range strings.Split(sections[0], "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "[") {
			listLine = line
			break
		}
	}
	if listLine == "" {
		return nil, errors.New("pip list printed no package list")
	}

	var listed []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal([]byte(listLine), &listed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pip list output: %w", err)
	}

	metadata := splitSections(sections[1], pipLicenseMarker)
	shows := make(map[string]pipShow)
	for _, s := range parsePipShow(metadata[0]) {
		shows[canonicalPipName(s.name)] = s
	}
	licenseFiles := make(map[string]string)
	if len(metadata) > 1 {
		for name, text := range splitFileBlocks(metadata[1]) {
			licenseFiles[canonicalPipName(name)] += text
		}
	}

	spelling := make(map[string]string, len(listed))
	for _, p := range listed {
		spelling[canonicalPipName(p.Name)] = p.Name
	}

	entries := make([]types.RawEntry, 0, len(listed))
	for _, p := range listed {
		if p.Name == "" {
			continue
		}
		entry := types.RawEntry{
			Name:          p.Name,
			Version:       p.Version,
			Source:        fmt.Sprintf("https://pypi.org/project/%s/", p.Name),
			Provider:      types.ProviderPip,
			LicenseSource: "pip show metadata",
		}
		if s, ok := shows[canonicalPipName(p.Name)]; ok {
			entry.RawLicense = s.license
			entry.SourceCodeURL = s.homepage
			if entry.SourceCodeURL == "" {
				entry.SourceCodeURL = s.projectURL
			}
			for _, req := range s.requires {
				if listedName, ok := spelling[canonicalPipName(req)]; ok {
					req = listedName
				}
				entry.DeclaredRequirements = append(entry.DeclaredRequirements, req)
			}
		}
		if entry.RawLicense == "" {
			if text, ok := licenseFiles[canonicalPipName(p.Name)]; ok && strings.TrimSpace(text) != "" {
				entry.LicenseText = text
				entry.LicenseSource = "package license files"
			} else {
				entry.LicenseSource = "Not available"
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parsePipShow parses the "---"-separated blocks printed by 'pip show'.
func parsePipShow(text string) []pipShow {
	var out []pipShow
	var cur pipShow
	var licenseExpr string
	flush := func() {
		if cur.name != "" {
			if licenseExpr != "" {
				cur.license = licenseExpr
			}
			out = append(out, cur)
		}
		cur = pipShow{}
		licenseExpr = ""
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.HasPrefix(key, " ") {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Name":
			cur.name = value
		case "License":
			if !strings.EqualFold(value, "UNKNOWN") {
				cur.license = value
			}
		case "License-Expression":
			licenseExpr = value
		case "Home-page":
			cur.homepage = value
		case "Project-URL":
			if _, url, ok := strings.Cut(value, ","); ok && cur.projectURL == "" {
				cur.projectURL = strings.TrimSpace(url)
			}
		case "Requires":
			for _, r := range strings.Split(value, ",") {
				if r = strings.TrimSpace(r); r != "" {
					cur.requires = append(cur.requires, r)
				}
			}
		}
	}
	flush()
	return out
}
