package diff

import (
	"slices"
	"sort"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

// Options controls a comparison.
type Options struct {
	// Exclude marks added records whose key also exists in this snapshot as
	// inherited. They are still counted as added.
	Exclude *types.InventorySnapshot
}

// Compare classifies every identity key of from and to into added, removed,
// changed or unchanged. A key present on both sides is changed when its
// version or license differs; no other field takes part in the comparison.
func Compare(from, to *types.InventorySnapshot, opts Options) *types.DiffResult {
	if from == nil {
		from = &types.InventorySnapshot{}
	}
	if to == nil {
		to = &types.InventorySnapshot{}
	}

	fromIdx := index(from)
	toIdx := index(to)

	res := &types.DiffResult{
		From:    types.DiffSide{Target: from.Target, TotalPackages: len(fromIdx)},
		To:      types.DiffSide{Target: to.Target, TotalPackages: len(toIdx)},
		Added:   []types.AddedPackage{},
		Removed: []types.PackageRecord{},
		Changed: []types.ChangedPackage{},
	}

	var excluded map[types.Key]types.PackageRecord
	if opts.Exclude != nil {
		excluded = index(opts.Exclude)
		res.Exclusion = &types.DiffSide{Target: opts.Exclude.Target, TotalPackages: len(excluded)}
	}

	// Keys union
	keys := make([]types.Key, 0, len(fromIdx)+len(toIdx))
	for k := range fromIdx {
		keys = append(keys, k)
	}
	for k := range toIdx {
		if _, ok := fromIdx[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, k := range keys {
		f, fok := fromIdx[k]
		t, tok := toIdx[k]

		switch {
		case fok && !tok:
			res.Removed = append(res.Removed, copyRecord(f))
		case !fok && tok:
			added := types.AddedPackage{PackageRecord: copyRecord(t)}
			if _, ok := excluded[k]; ok {
				added.Inherited = true
				added.InheritedFrom = opts.Exclude.Target.Image
			}
			res.Added = append(res.Added, added)
		case fok && tok:
			if f.Version == t.Version && f.License == t.License {
				res.Unchanged++
				continue
			}
			res.Changed = append(res.Changed, types.ChangedPackage{
				Name:        k.Name,
				PackageType: k.PackageType,
				VersionFrom: f.Version,
				VersionTo:   t.Version,
				LicenseFrom: f.License,
				LicenseTo:   t.License,
			})
		}
	}

	res.Summary = types.Summary{
		Added:     len(res.Added),
		Removed:   len(res.Removed),
		Changed:   len(res.Changed),
		Unchanged: res.Unchanged,
	}
	return res
}

// index keys a snapshot by identity. Snapshots from the assembler are
// already unique; for anything else the last record wins.
func index(s *types.InventorySnapshot) map[types.Key]types.PackageRecord {
	out := make(map[types.Key]types.PackageRecord, len(s.Records))
	for _, r := range s.Records {
		out[r.Key()] = r
	}
	return out
}

func copyRecord(r types.PackageRecord) types.PackageRecord {
	r.ParentPackages = slices.Clone(r.ParentPackages)
	if r.ParentPackages == nil {
		r.ParentPackages = []string{}
	}
	return r
}

// InheritedCount returns the number of added records marked as inherited.
func InheritedCount(res *types.DiffResult) int {
	n := 0
	for _, a := range res.Added {
		if a.Inherited {
			n++
		}
	}
	return n
}
