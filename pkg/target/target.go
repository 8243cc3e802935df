package target

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

// Mode selects how the resolved target set is used.
type Mode int

const (
	ModeSingle Mode = iota
	ModeMatrix
	ModeDiff
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeMatrix:
		return "matrix"
	case ModeDiff:
		return "diff"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Architectures that may appear as an inline suffix or a global override.
var knownArchitectures = []string{
	"amd64", "arm64", "386", "ppc64le", "s390x", "riscv64", "mips64le", "arm",
	"arm/v5", "arm/v6", "arm/v7", "arm64/v8",
}

// Variants contain a "/" themselves and must be matched before the
// single-segment tokens.
var variantArchitectures = []string{"arm/v5", "arm/v6", "arm/v7", "arm64/v8"}

// IsKnownArchitecture reports whether arch is an accepted architecture token.
func IsKnownArchitecture(arch string) bool {
	return slices.Contains(knownArchitectures, arch)
}

// KnownArchitectures returns the accepted architecture tokens.
func KnownArchitectures() []string {
	return slices.Clone(knownArchitectures)
}

// DefaultArchitecture is used when neither an inline nor a global
// architecture is given.
func DefaultArchitecture() string {
	return runtime.GOARCH
}

// Spec is a parsed image specification.
type Spec struct {
	Image        string
	Architecture string
}

// ParseImageSpec splits an optional inline architecture off an image
// specification. "python:3.11/arm64" yields ("python:3.11", "arm64");
// the architecture is only recognized after a tag.
func ParseImageSpec(raw string) (Spec, error) {
	spec := strings.TrimSpace(raw)
	if spec == "" {
		return Spec{}, &types.ResolutionError{Spec: raw, Reason: "empty image specification"}
	}
	if strings.ContainsAny(spec, " \t\r\n") {
		return Spec{}, &types.ResolutionError{Spec: raw, Reason: "image specification contains whitespace"}
	}
	if strings.HasPrefix(spec, "@") || strings.HasPrefix(spec, "sha256:") {
		return Spec{}, &types.ResolutionError{Spec: raw, Reason: "digest without repository"}
	}

	for _, variant := range variantArchitectures {
		if image, ok := strings.CutSuffix(spec, "/"+variant); ok && hasTag(image) {
			return validImage(raw, image, variant)
		}
	}

	if idx := strings.LastIndex(spec, "/"); idx > 0 {
		image, suffix := spec[:idx], spec[idx+1:]
		if hasTag(image) && slices.Contains(knownArchitectures, suffix) {
			return validImage(raw, image, suffix)
		}
	}

	return validImage(raw, spec, "")
}

func validImage(raw, image, arch string) (Spec, error) {
	if strings.HasSuffix(image, ":") || strings.HasSuffix(image, "/") || strings.HasSuffix(image, "@") {
		return Spec{}, &types.ResolutionError{Spec: raw, Reason: "incomplete image reference"}
	}
	return Spec{Image: image, Architecture: arch}, nil
}

// hasTag reports whether the last path segment of image carries a tag.
func hasTag(image string) bool {
	last := image
	if idx := strings.LastIndex(image, "/"); idx >= 0 {
		last = image[idx+1:]
	}
	return strings.Contains(last, ":") || strings.Contains(last, "@")
}

// Request describes one resolution: the ordered image specifications, the
// global architecture overrides and the mode.
type Request struct {
	Specs               []string
	Architectures       []string
	Mode                Mode
	DefaultArchitecture string
}

// Resolve expands a request into the ordered, deduplicated target set.
// Specs with an inline architecture are pinned to it; all others are
// crossed with the global architectures (or the default one).
func Resolve(req Request) ([]types.Target, error) {
	if len(req.Specs) == 0 {
		return nil, &types.ResolutionError{Reason: "no images specified"}
	}

	archs := make([]string, 0, len(req.Architectures))
	for _, a := range req.Architectures {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if !IsKnownArchitecture(a) {
			return nil, &types.ResolutionError{Reason: fmt.Sprintf("unknown architecture %q (known: %s)", a, strings.Join(knownArchitectures, ", "))}
		}
		if !slices.Contains(archs, a) {
			archs = append(archs, a)
		}
	}

	if req.Mode == ModeDiff && len(archs) > 1 {
		return nil, &types.ResolutionError{Reason: fmt.Sprintf("diff mode accepts at most one global architecture, got %d", len(archs))}
	}

	if len(archs) == 0 {
		def := req.DefaultArchitecture
		if def == "" {
			def = DefaultArchitecture()
		}
		archs = []string{def}
	}

	var targets []types.Target
	seen := make(map[types.Target]bool)
	add := func(t types.Target) {
		if seen[t] {
			return
		}
		seen[t] = true
		targets = append(targets, t)
	}

	for _, raw := range req.Specs {
		spec, err := ParseImageSpec(raw)
		if err != nil {
			return nil, err
		}
		if spec.Architecture != "" {
			add(types.Target{Image: spec.Image, Architecture: spec.Architecture})
			continue
		}
		for _, a := range archs {
			add(types.Target{Image: spec.Image, Architecture: a})
		}
	}

	if req.Mode == ModeDiff && len(targets) != 2 {
		return nil, &types.ResolutionError{Reason: fmt.Sprintf("diff mode requires exactly 2 targets, resolved %d", len(targets))}
	}

	return targets, nil
}

// CountArchitectures returns the number of distinct architectures in targets.
func CountArchitectures(targets []types.Target) int {
	seen := make(map[string]bool)
	for _, t := range targets {
		seen[t.Architecture] = true
	}
	return len(seen)
}
