package license

import (
	"regexp"
	"slices"
	"strings"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

// DefaultKeywords mark a license string as corporate or proprietary.
var DefaultKeywords = []string{"proprietary", "commercial", "corporate", "confidential", "eula"}

// Joiner separates canonical license tokens.
const Joiner = " | "

const longText = 200

var placeholders = map[string]bool{
	"unknown":         true,
	"none":            true,
	"n/a":             true,
	"na":              true,
	"unknown license": true,
}

var whitespace = regexp.MustCompile(`\s+`)

// Separators in priority order. "/" is skipped inside URLs.
var (
	sepAndOr = regexp.MustCompile(`(?i)\s+and/or\s+`)
	sepOr    = regexp.MustCompile(`(?i)\s+or\s+`)
	sepAnd   = regexp.MustCompile(`(?i)\s+and\s+`)
	sepComma = regexp.MustCompile(`,`)
	sepSlash = regexp.MustCompile(`/`)
	sepPipe  = regexp.MustCompile(`\|`)

	allSeparators = []*regexp.Regexp{sepAndOr, sepOr, sepAnd, sepComma, sepSlash, sepPipe}
)

// versionSuffix matches a comma-separated version qualifier such as the
// "Version 2.0" in "Apache License, Version 2.0".
var versionSuffix = regexp.MustCompile(`(?i)^\s*(?:version|ver\.?|v\.?)\s*\d+(?:\.\d+)*\+?\s*$`)

var (
	licenseWord = regexp.MustCompile(`(?i)\blicen[cs]e\b`)
	identifier  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9.+-]*$`)
)

// orgLicense matches "<Org> License" and "<Org> Software License" phrases.
var orgLicense = regexp.MustCompile(`\b([A-Z][A-Za-z0-9&.\-]*)\s+(?:Software\s+|End\s+User\s+)?License\b`)

// Leading words of open license names that look like an organization.
var openLicenseWords = map[string]bool{
	"MIT": true, "Apache": true, "BSD": true, "ISC": true, "GPL": true, "LGPL": true,
	"AGPL": true, "MPL": true, "Mozilla": true, "GNU": true, "Public": true,
	"General": true, "Lesser": true, "Foundation": true, "Python": true, "PSF": true,
	"Artistic": true, "Zlib": true, "Boost": true, "Eclipse": true, "Unlicense": true,
	"Creative": true, "Commons": true, "Academic": true, "Open": true, "Free": true,
	"Perl": true, "Ruby": true, "PHP": true, "OpenSSL": true, "SSLeay": true,
	"Expat": true, "X11": true, "Original": true, "Modified": true, "Simplified": true,
	"New": true, "Revised": true, "Historical": true, "Common": true, "Development": true,
	"Distribution": true, "Mulan": true, "Universal": true, "Permissive": true,
	"Unicode": true, "Dual": true, "Zope": true, "W3C": true, "Source": true, "Sleepycat": true,
	"Vim": true, "Educational": true, "Attribution": true, "Affero": true, "Standard": true,
}

// Normalizer canonicalizes raw license text.
type Normalizer struct {
	keywords *regexp.Regexp
}

// New returns a Normalizer using keywords as proprietary markers. A nil or
// empty slice selects DefaultKeywords.
func New(keywords []string) *Normalizer {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(k))
	}
	if len(quoted) == 0 {
		return New(nil)
	}
	return &Normalizer{
		keywords: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

var defaultNormalizer = New(nil)

// Normalize canonicalizes raw with the default keyword set.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// Normalize returns the canonical form of raw: "Unknown" for empty input,
// a string that is one proprietary phrase kept whole, otherwise the
// deduplicated tokens joined with " | ". Multi-word tokens naming a standard
// license are replaced by its identifier. The result is never empty.
func (n *Normalizer) Normalize(raw string) string {
	s := collapse(raw)
	if s == "" || placeholders[strings.ToLower(s)] {
		return types.UnknownLicense
	}

	if len(s) > longText {
		if detected := Detect(s); detected != "" {
			s = detected
		} else {
			s = condense(s)
		}
	}

	tokens := split(s, allSeparators)
	if len(tokens) == 0 {
		return types.UnknownLicense
	}
	if len(tokens) > 1 && n.IsProprietary(s) && n.singlePhrase(tokens) {
		return s
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if strings.Contains(tok, " ") && !n.IsProprietary(tok) {
			if id := Detect(tok); id != "" {
				tok = id
			}
		}
		if !slices.Contains(out, tok) {
			out = append(out, tok)
		}
	}
	return strings.Join(out, Joiner)
}

// singlePhrase reports whether tokens split from a proprietary string are
// parts of one phrase: every token either carries a proprietary marker or is
// not a license name of its own ("Addendum", "restricted").
func (n *Normalizer) singlePhrase(tokens []string) bool {
	for _, tok := range tokens {
		if !n.IsProprietary(tok) && standalone(tok) {
			return false
		}
	}
	return true
}

// standalone reports whether tok names a license by itself: a detected
// license, a phrase containing "license", or an identifier such as MIT or
// GPL-2.0.
func standalone(tok string) bool {
	if Detect(tok) != "" || licenseWord.MatchString(tok) {
		return true
	}
	if !identifier.MatchString(tok) {
		return false
	}
	return strings.ContainsAny(tok, "0123456789") || (len(tok) > 1 && tok == strings.ToUpper(tok))
}

// IsProprietary reports whether s carries a proprietary keyword or names an
// organization license such as "NVIDIA Software License".
func (n *Normalizer) IsProprietary(s string) bool {
	if n.keywords.MatchString(s) {
		return true
	}
	for _, m := range orgLicense.FindAllStringSubmatch(s, -1) {
		if !openLicenseWords[m[1]] {
			return true
		}
	}
	return false
}

func split(s string, separators []*regexp.Regexp) []string {
	tokens := []string{s}
	for _, sep := range separators {
		var next []string
		for _, tok := range tokens {
			if sep == sepSlash && strings.Contains(tok, "://") {
				next = append(next, tok)
				continue
			}
			parts := sep.Split(tok, -1)
			if sep == sepComma {
				parts = joinVersions(parts)
			}
			next = append(next, parts...)
		}
		tokens = next
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" || slices.Contains(out, tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// joinVersions glues version qualifiers back onto the part before them.
func joinVersions(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(out) > 0 && versionSuffix.MatchString(p) {
			out[len(out)-1] += "," + p
			continue
		}
		out = append(out, p)
	}
	return out
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

var sentenceEnd = regexp.MustCompile(`[.!]\s+`)

// condense shortens free text to its first sentence, or to 100 characters.
func condense(s string) string {
	s = collapse(s)
	if len(s) <= 100 {
		return s
	}
	if first := strings.TrimSpace(sentenceEnd.Split(s, 2)[0]); first != "" && len(first) < 100 {
		return first
	}
	return strings.TrimSpace(s[:100]) + "..."
}
