package attribution

import (
	"regexp"
	"slices"
	"strings"
)

// Declaration is one package together with the requirement names it declares.
type Declaration struct {
	Name     string
	Requires []string
}

// Attribution is the dependency information computed for one package name.
type Attribution struct {
	IsDependency   bool
	ParentPackages []string
}

// Index maps a package name to its attribution within one snapshot.
type Index map[string]Attribution

var requirementName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)

// CleanRequirement strips extras, version constraints and environment
// markers from a requirement, e.g. `urllib3[socks]>=1.21; python_version>"3"`
// becomes "urllib3".
func CleanRequirement(req string) string {
	return requirementName.FindString(strings.TrimSpace(req))
}

// Build computes the attribution index for the names present in a snapshot.
// Requirements naming a package that is not present are ignored. Matching is
// exact on the cleaned name. Cycles are not detected and produce mutual
// parents; a package requiring itself is not its own parent.
func Build(present []string, decls []Declaration) Index {
	known := make(map[string]bool, len(present))
	for _, name := range present {
		known[name] = true
	}

	idx := make(Index)
	for _, d := range decls {
		for _, req := range d.Requires {
			dep := CleanRequirement(req)
			if dep == "" || dep == d.Name || !known[dep] {
				continue
			}
			a := idx[dep]
			a.IsDependency = true
			if !slices.Contains(a.ParentPackages, d.Name) {
				a.ParentPackages = append(a.ParentPackages, d.Name)
			}
			idx[dep] = a
		}
	}
	return idx
}

// Lookup returns the attribution for name. Packages nobody requires get an
// empty, non-nil parent list.
func (idx Index) Lookup(name string) Attribution {
	a, ok := idx[name]
	if !ok {
		return Attribution{ParentPackages: []string{}}
	}
	return Attribution{IsDependency: a.IsDependency, ParentPackages: slices.Clone(a.ParentPackages)}
}
