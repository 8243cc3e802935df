package types

import (
	"fmt"
	"time"
)

// PackageType distinguishes language-level packages from OS packages.
type PackageType string

const (
	PackageTypePython PackageType = "python"
	PackageTypeBinary PackageType = "binary"
)

// Rank orders package types for deterministic output: python before binary.
func (p PackageType) Rank() int {
	switch p {
	case PackageTypePython:
		return 0
	case PackageTypeBinary:
		return 1
	default:
		return 2
	}
}

// UnknownLicense is the canonical value for missing or unusable license data.
const UnknownLicense = "Unknown"

// Package providers reported by the extractors.
const (
	ProviderPip  = "PIP"
	ProviderDpkg = "dpkg"
	ProviderRPM  = "RPM"
	ProviderAPK  = "APK"
)

// PackageRecord is one package as observed in one target.
type PackageRecord struct {
	Name            string      `json:"name"`
	Version         string      `json:"version"`
	Source          string      `json:"source"`
	License         string      `json:"license"`
	LicenseSource   string      `json:"license_source,omitempty"`
	SourceCodeURL   string      `json:"source_code_url"`
	PackageType     PackageType `json:"package_type"`
	PackageProvider string      `json:"package_provider,omitempty"`
	IsDependency    bool        `json:"is_dependency"`
	ParentPackages  []string    `json:"parent_packages"`
}

// Key returns the identity of the record within a snapshot.
func (r PackageRecord) Key() Key {
	return Key{Name: r.Name, PackageType: r.PackageType}
}

// Key is the (name, package_type) identity used for uniqueness and comparison.
type Key struct {
	Name        string
	PackageType PackageType
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.PackageType, k.Name)
}

// Less orders keys by name, ties broken by package type rank.
func (k Key) Less(o Key) bool {
	if k.Name != o.Name {
		return k.Name < o.Name
	}
	return k.PackageType.Rank() < o.PackageType.Rank()
}

// RawEntry is what an extractor reports for a single package before
// normalization and attribution. LicenseText holds the content of a
// copyright or license file and is only consulted when RawLicense is empty.
type RawEntry struct {
	Name                 string
	Version              string
	RawLicense           string
	LicenseText          string
	Source               string
	SourceCodeURL        string
	DeclaredRequirements []string
	Provider             string
	LicenseSource        string
}

// Target identifies one inspected (image, architecture) pair.
type Target struct {
	Image        string `json:"image"`
	Architecture string `json:"architecture"`
	Digest       string `json:"digest,omitempty"`
}

func (t Target) String() string {
	if t.Architecture == "" {
		return t.Image
	}
	return t.Image + " (" + t.Architecture + ")"
}

// InventorySnapshot is the assembled inventory of one target.
// Records hold python packages first, then binary packages.
type InventorySnapshot struct {
	Target    Target          `json:"target"`
	Records   []PackageRecord `json:"records"`
	CreatedAt time.Time       `json:"created_at"`
}

// ChangedPackage describes a key present in both snapshots whose version or
// license differs.
type ChangedPackage struct {
	Name        string      `json:"name"`
	PackageType PackageType `json:"package_type"`
	VersionFrom string      `json:"version_from"`
	VersionTo   string      `json:"version_to"`
	LicenseFrom string      `json:"license_from"`
	LicenseTo   string      `json:"license_to"`
}

// AddedPackage is a record only present in the "to" snapshot. Inherited is
// set when the key also exists in the exclusion snapshot.
type AddedPackage struct {
	PackageRecord
	Inherited     bool   `json:"inherited,omitempty"`
	InheritedFrom string `json:"inherited_from,omitempty"`
}

// Summary holds the diff counts.
type Summary struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}

// DiffSide identifies one compared snapshot.
type DiffSide struct {
	Target        Target `json:"target"`
	TotalPackages int    `json:"total_packages"`
}

// DiffResult is the derived comparison of two snapshots.
type DiffResult struct {
	From      DiffSide         `json:"from"`
	To        DiffSide         `json:"to"`
	Added     []AddedPackage   `json:"added"`
	Removed   []PackageRecord  `json:"removed"`
	Changed   []ChangedPackage `json:"changed"`
	Unchanged int              `json:"unchanged_count"`
	Summary   Summary          `json:"summary"`
	Exclusion *DiffSide        `json:"exclusion,omitempty"`
}
