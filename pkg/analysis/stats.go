package analysis

import "github.com/northcutted/pkg-inspector/pkg/types"

// TargetResult is the outcome of one target's pipeline: a snapshot or an
// error, never both.
type TargetResult struct {
	Target   types.Target
	Snapshot *types.InventorySnapshot
	Err      error
}

// OK reports whether the target produced a snapshot.
func (r TargetResult) OK() bool {
	return r.Err == nil && r.Snapshot != nil
}

// Stats summarizes a batch of target results.
type Stats struct {
	Targets       int
	Succeeded     int
	Failed        int
	TotalPackages int
	PythonCount   int
	BinaryCount   int
}

// Summarize counts successes, failures and packages across results.
func Summarize(results []TargetResult) Stats {
	s := Stats{Targets: len(results)}
	for _, r := range results {
		if !r.OK() {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.TotalPackages += len(r.Snapshot.Records)
		for _, rec := range r.Snapshot.Records {
			switch rec.PackageType {
			case types.PackageTypePython:
				s.PythonCount++
			case types.PackageTypeBinary:
				s.BinaryCount++
			}
		}
	}
	return s
}

// Failures returns the failed results in target order.
func Failures(results []TargetResult) []TargetResult {
	var out []TargetResult
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
