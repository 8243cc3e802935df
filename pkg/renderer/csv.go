package renderer

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/northcutted/pkg-inspector/pkg/license"
	"github.com/northcutted/pkg-inspector/pkg/types"
)

// MaxLicenseLength is the longest license value written to CSV as-is.
const MaxLicenseLength = 200

// Change types used in the diff CSV.
const (
	ChangeAdded          = "ADDED"
	ChangeAddedInherited = "ADDED-INHERITED"
	ChangeChanged        = "CHANGED"
	ChangeRemoved        = "REMOVED"
)

var inventoryHeader = []string{
	"image", "digest", "architecture", "name", "version", "package_type",
	"package_provider", "source", "license", "license_source",
	"source_code_url", "is_dependency", "parent_packages",
}

var diffHeader = []string{
	"change_type", "name", "version_from", "version_to", "package_type",
	"license_from", "license_to", "source",
}

// ParentSeparator returns the joiner for parent_packages that does not
// collide with the column delimiter.
func ParentSeparator(delimiter rune) string {
	if delimiter == ',' {
		return "; "
	}
	return ", "
}

// SanitizeValue keeps a CSV value on a single line.
func SanitizeValue(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateLicense shortens license values longer than MaxLicenseLength to
// the license name when one can be found.
func TruncateLicense(s string) string {
	s = SanitizeValue(s)
	if len(s) <= MaxLicenseLength {
		return s
	}
	if name := license.Detect(s); name != "" {
		return name
	}
	if head, _, ok := strings.Cut(s, "."); ok && len(head) < 100 && head != "" {
		return strings.TrimSpace(head)
	}
	cut := s[:MaxLicenseLength]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}

func newWriter(w io.Writer, delimiter rune) *csv.Writer {
	cw := csv.NewWriter(w)
	if delimiter != 0 {
		cw.Comma = delimiter
	}
	return cw
}

// WriteInventoryCSV writes one row per record across all results.
func WriteInventoryCSV(w io.Writer, doc *InventoryDocument, delimiter rune) error {
	cw := newWriter(w, delimiter)
	sep := ParentSeparator(cw.Comma)

	if err := cw.Write(inventoryHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, res := range doc.Results {
		for _, p := range res.Packages {
			row := []string{
				SanitizeValue(res.Image),
				SanitizeValue(res.Digest),
				SanitizeValue(res.Architecture),
				SanitizeValue(p.Name),
				SanitizeValue(p.Version),
				string(p.PackageType),
				SanitizeValue(orUnknown(p.PackageProvider)),
				SanitizeValue(p.Source),
				TruncateLicense(p.License),
				SanitizeValue(orUnknown(p.LicenseSource)),
				SanitizeValue(p.SourceCodeURL),
				strconv.FormatBool(p.IsDependency),
				SanitizeValue(strings.Join(p.ParentPackages, sep)),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row for %s: %w", p.Name, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

type diffRow struct {
	changeType string
	fields     []string
}

// WriteDiffCSV writes one row per added, removed and changed item, ordered
// by change type then name. An inherited_from column is added when the diff
// used an exclusion image.
func WriteDiffCSV(w io.Writer, doc *DiffDocument, delimiter rune) error {
	cw := newWriter(w, delimiter)
	withExclusion := doc.ExclusionImage != nil

	header := diffHeader
	if withExclusion {
		header = append(append([]string{}, diffHeader...), "inherited_from")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	var rows []diffRow
	for _, a := range doc.Differences.Added {
		ct := ChangeAdded
		if a.Inherited {
			ct = ChangeAddedInherited
		}
		row := diffRow{ct, []string{ct, SanitizeValue(a.Name), "", SanitizeValue(a.Version),
			string(a.PackageType), "", TruncateLicense(a.License), SanitizeValue(a.Source)}}
		if withExclusion {
			row.fields = append(row.fields, SanitizeValue(a.InheritedFrom))
		}
		rows = append(rows, row)
	}
	for _, r := range doc.Differences.Removed {
		row := diffRow{ChangeRemoved, []string{ChangeRemoved, SanitizeValue(r.Name), SanitizeValue(r.Version), "",
			string(r.PackageType), TruncateLicense(r.License), "", SanitizeValue(r.Source)}}
		if withExclusion {
			row.fields = append(row.fields, "")
		}
		rows = append(rows, row)
	}
	for _, c := range doc.Differences.Changed {
		row := diffRow{ChangeChanged, []string{ChangeChanged, SanitizeValue(c.Name), SanitizeValue(c.VersionFrom),
			SanitizeValue(c.VersionTo), string(c.PackageType), TruncateLicense(c.LicenseFrom),
			TruncateLicense(c.LicenseTo), ""}}
		if withExclusion {
			row.fields = append(row.fields, "")
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].changeType != rows[j].changeType {
			return rows[i].changeType < rows[j].changeType
		}
		return rows[i].fields[1] < rows[j].fields[1]
	})

	for _, r := range rows {
		if err := cw.Write(r.fields); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", r.fields[1], err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func orUnknown(s string) string {
	if s == "" {
		return types.UnknownLicense
	}
	return s
}
