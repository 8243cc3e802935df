package renderer

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/northcutted/pkg-inspector/pkg/analysis"
	"github.com/northcutted/pkg-inspector/pkg/diff"
	"github.com/northcutted/pkg-inspector/pkg/target"
	"github.com/northcutted/pkg-inspector/pkg/types"
)

// Meta is stamped on every output document.
type Meta struct {
	Version string
	Date    time.Time
}

func (m Meta) date() string {
	d := m.Date
	if d.IsZero() {
		d = time.Now()
	}
	return d.UTC().Format(time.RFC3339)
}

// InventoryResult is one target's inventory in an InventoryDocument.
type InventoryResult struct {
	Image        string                `json:"image"`
	Digest       string                `json:"digest"`
	Architecture string                `json:"architecture"`
	Packages     []types.PackageRecord `json:"packages"`
}

// Failure records a target whose extraction failed.
type Failure struct {
	Image        string `json:"image"`
	Architecture string `json:"architecture"`
	Error        string `json:"error"`
}

// InventoryDocument is the JSON output of single and matrix inspections.
type InventoryDocument struct {
	Version            string            `json:"version"`
	InspectionDate     string            `json:"inspection_date"`
	TotalImages        int               `json:"total_images"`
	TotalArchitectures int               `json:"total_architectures"`
	Results            []InventoryResult `json:"results"`
	Failures           []Failure         `json:"failures,omitempty"`
}

// NewInventoryDocument builds the document from per-target results, keeping
// their order. Failed targets go to Failures.
func NewInventoryDocument(meta Meta, results []analysis.TargetResult) *InventoryDocument {
	doc := &InventoryDocument{
		Version:        meta.Version,
		InspectionDate: meta.date(),
		Results:        []InventoryResult{},
	}

	targets := make([]types.Target, 0, len(results))
	images := make(map[string]bool)
	for _, r := range results {
		targets = append(targets, r.Target)
		images[r.Target.Image] = true
		if !r.OK() {
			doc.Failures = append(doc.Failures, Failure{
				Image:        r.Target.Image,
				Architecture: r.Target.Architecture,
				Error:        r.Err.Error(),
			})
			continue
		}
		doc.Results = append(doc.Results, inventoryResult(r.Snapshot))
	}
	doc.TotalImages = len(images)
	doc.TotalArchitectures = target.CountArchitectures(targets)
	return doc
}

func inventoryResult(s *types.InventorySnapshot) InventoryResult {
	packages := s.Records
	if packages == nil {
		packages = []types.PackageRecord{}
	}
	return InventoryResult{
		Image:        s.Target.Image,
		Digest:       s.Target.Digest,
		Architecture: s.Target.Architecture,
		Packages:     packages,
	}
}

// ImageRef describes one side of a diff.
type ImageRef struct {
	Name          string `json:"name"`
	Digest        string `json:"digest,omitempty"`
	Architecture  string `json:"architecture,omitempty"`
	TotalPackages int    `json:"total_packages"`
}

// Differences holds the three diff partitions.
type Differences struct {
	Added   []types.AddedPackage   `json:"added"`
	Removed []types.PackageRecord  `json:"removed"`
	Changed []types.ChangedPackage `json:"changed"`
}

// DiffDocument is the JSON output of diff mode.
type DiffDocument struct {
	Version        string        `json:"version"`
	InspectionDate string        `json:"inspection_date"`
	ComparisonType string        `json:"comparison_type"`
	ImageFrom      ImageRef      `json:"image_from"`
	ImageTo        ImageRef      `json:"image_to"`
	Summary        types.Summary `json:"summary"`
	Differences    Differences   `json:"differences"`
	ExclusionImage *ImageRef     `json:"exclusion_image,omitempty"`
	InheritedCount int           `json:"inherited_count,omitempty"`
}

// NewDiffDocument wraps a diff result for output.
func NewDiffDocument(meta Meta, res *types.DiffResult) *DiffDocument {
	doc := &DiffDocument{
		Version:        meta.Version,
		InspectionDate: meta.date(),
		ComparisonType: "diff",
		ImageFrom:      imageRef(res.From),
		ImageTo:        imageRef(res.To),
		Summary:        res.Summary,
		Differences: Differences{
			Added:   res.Added,
			Removed: res.Removed,
			Changed: res.Changed,
		},
	}
	if res.Exclusion != nil {
		ref := ImageRef{Name: res.Exclusion.Target.Image, TotalPackages: res.Exclusion.TotalPackages}
		doc.ExclusionImage = &ref
		doc.InheritedCount = diff.InheritedCount(res)
	}
	return doc
}

func imageRef(side types.DiffSide) ImageRef {
	return ImageRef{
		Name:          side.Target.Image,
		Digest:        side.Target.Digest,
		Architecture:  side.Target.Architecture,
		TotalPackages: side.TotalPackages,
	}
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}
