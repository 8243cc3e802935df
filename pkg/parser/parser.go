package parser

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	dockerfile "github.com/moby/buildkit/frontend/dockerfile/parser"
)

// BaseImage is an external image referenced by a FROM instruction.
type BaseImage struct {
	Image    string
	Platform string // e.g. "linux/arm64", empty when not given
	Stage    string // the "AS" name, if any
	Line     int
}

// Architecture returns the architecture part of Platform, e.g. "arm64" for
// "linux/arm64" or "arm/v7" for "linux/arm/v7".
func (b BaseImage) Architecture() string {
	_, arch, ok := strings.Cut(b.Platform, "/")
	if !ok {
		return ""
	}
	return arch
}

// Spec renders the base image as an image specification with an inline
// architecture when the FROM line pins one. An inline architecture needs a
// tag, so ":latest" is made explicit in that case.
func (b BaseImage) Spec() string {
	arch := b.Architecture()
	if arch == "" {
		return b.Image
	}
	image := b.Image
	last := image[strings.LastIndex(image, "/")+1:]
	if !strings.ContainsAny(last, ":@") {
		image += ":latest"
	}
	return image + "/" + arch
}

// Parse reads the Dockerfile at path and returns its external base images
// in order of appearance.
func Parse(path string) ([]BaseImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dockerfile: %w", err)
	}
	defer func() { _ = f.Close() }()

	res, err := dockerfile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dockerfile: %w", err)
	}
	for _, w := range res.Warnings {
		slog.Debug("dockerfile warning", "path", path, "warning", w.Short)
	}

	args := make(map[string]string)
	stages := make(map[string]bool)
	seenFrom := false
	var images []BaseImage

	for _, node := range res.AST.Children {
		switch strings.ToLower(node.Value) {
		case "arg":
			// Only ARGs before the first FROM are visible to FROM lines.
			if seenFrom {
				continue
			}
			for n := node.Next; n != nil; n = n.Next {
				name, value, _ := strings.Cut(n.Value, "=")
				args[name] = strings.Trim(value, `"'`)
			}

		case "from":
			seenFrom = true
			if node.Next == nil {
				continue
			}
			base := BaseImage{Line: node.StartLine}
			image, ok := expand(node.Next.Value, args)
			if !ok {
				slog.Warn("skipping FROM with unresolved variable", "line", node.StartLine, "image", node.Next.Value)
				continue
			}
			base.Image = image
			if as := node.Next.Next; as != nil && strings.EqualFold(as.Value, "as") && as.Next != nil {
				base.Stage = as.Next.Value
			}
			for _, flag := range node.Flags {
				if value, ok := strings.CutPrefix(flag, "--platform="); ok {
					if platform, ok := expand(value, args); ok {
						base.Platform = platform
					}
				}
			}
			internal := strings.EqualFold(image, "scratch") || stages[strings.ToLower(image)]
			if base.Stage != "" {
				stages[strings.ToLower(base.Stage)] = true
			}
			if internal {
				continue
			}
			images = append(images, base)
		}
	}

	return images, nil
}

// expand substitutes $VAR and ${VAR} from args. It reports false when a
// referenced variable has no value.
func expand(s string, args map[string]string) (string, bool) {
	ok := true
	out := os.Expand(s, func(name string) string {
		v, found := args[name]
		if !found || v == "" {
			ok = false
		}
		return v
	})
	return out, ok
}

// Specs returns the unique image specifications of bases in order.
func Specs(bases []BaseImage) []string {
	var specs []string
	seen := make(map[string]bool)
	for _, b := range bases {
		s := b.Spec()
		if seen[s] {
			continue
		}
		seen[s] = true
		specs = append(specs, s)
	}
	return specs
}
