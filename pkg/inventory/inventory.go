package inventory

import (
	"slices"
	"sort"
	"time"

	"github.com/northcutted/pkg-inspector/pkg/attribution"
	"github.com/northcutted/pkg-inspector/pkg/license"
	"github.com/northcutted/pkg-inspector/pkg/types"
)

// Source is the output of one extractor for one target.
type Source struct {
	Name    string
	Type    types.PackageType
	Entries []types.RawEntry
}

// Assembler turns extractor output into an immutable snapshot.
type Assembler struct {
	Normalizer *license.Normalizer
	Now        func() time.Time
}

// NewAssembler returns an Assembler using normalizer (nil selects the
// default keyword set) and the wall clock.
func NewAssembler(normalizer *license.Normalizer) *Assembler {
	if normalizer == nil {
		normalizer = license.New(nil)
	}
	return &Assembler{Normalizer: normalizer, Now: time.Now}
}

// Assemble normalizes licenses, attributes dependencies and merges sources
// into one snapshot. Python sources precede binary sources; within a type the
// given order is kept. A later record with the same (name, package_type)
// replaces the earlier one in place. A record with an empty name fails the
// whole assembly with a *types.ValidationError.
func (a *Assembler) Assemble(target types.Target, sources []Source) (*types.InventorySnapshot, error) {
	ordered := slices.Clone(sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Type.Rank() < ordered[j].Type.Rank()
	})

	n := a.Normalizer
	if n == nil {
		n = license.New(nil)
	}

	var records []types.PackageRecord
	var requires [][]string
	position := make(map[types.Key]int)

	for _, src := range ordered {
		for i, e := range src.Entries {
			if e.Name == "" {
				return nil, &types.ValidationError{Source: src.Name, Index: i, Reason: "empty package name"}
			}
			raw := e.RawLicense
			if raw == "" && e.LicenseText != "" {
				raw = n.FromCopyright(e.LicenseText)
			}
			rec := types.PackageRecord{
				Name:            e.Name,
				Version:         e.Version,
				Source:          e.Source,
				License:         n.Normalize(raw),
				LicenseSource:   e.LicenseSource,
				SourceCodeURL:   e.SourceCodeURL,
				PackageType:     src.Type,
				PackageProvider: e.Provider,
			}
			var reqs []string
			if src.Type == types.PackageTypePython {
				reqs = e.DeclaredRequirements
			}
			if pos, ok := position[rec.Key()]; ok {
				records[pos] = rec
				requires[pos] = reqs
				continue
			}
			position[rec.Key()] = len(records)
			records = append(records, rec)
			requires = append(requires, reqs)
		}
	}

	present := make([]string, len(records))
	var decls []attribution.Declaration
	for i, r := range records {
		present[i] = r.Name
		if len(requires[i]) > 0 {
			decls = append(decls, attribution.Declaration{Name: r.Name, Requires: requires[i]})
		}
	}
	idx := attribution.Build(present, decls)
	for i := range records {
		attr := idx.Lookup(records[i].Name)
		records[i].IsDependency = attr.IsDependency
		records[i].ParentPackages = attr.ParentPackages
	}

	if records == nil {
		records = []types.PackageRecord{}
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return &types.InventorySnapshot{
		Target:    target,
		Records:   records,
		CreatedAt: now().UTC(),
	}, nil
}

// CountByType returns the number of records of each package type.
func CountByType(s *types.InventorySnapshot) map[types.PackageType]int {
	counts := make(map[types.PackageType]int)
	for _, r := range s.Records {
		counts[r.PackageType]++
	}
	return counts
}
