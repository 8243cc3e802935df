package license

import (
	"regexp"
	"strings"
)

type pattern struct {
	re *regexp.Regexp
	id string
}

// Ordered by specificity; the first match wins.
var patterns = []pattern{
	{regexp.MustCompile(`apache license\s*,?\s*(?:version\s*|v)?2(?:\.0)?\b`), "Apache-2.0"},
	{regexp.MustCompile(`apache license version 2`), "Apache-2.0"},
	{regexp.MustCompile(`\bapache-2\.0`), "Apache-2.0"},
	{regexp.MustCompile(`gnu general public license.*version 3`), "GPL-3.0"},
	{regexp.MustCompile(`gnu general public license.*version 2`), "GPL-2.0"},
	{regexp.MustCompile(`\bgpl-3`), "GPL-3.0"},
	{regexp.MustCompile(`\bgpl-2`), "GPL-2.0"},
	{regexp.MustCompile(`gnu lesser general public license.*version 3`), "LGPL-3.0"},
	{regexp.MustCompile(`gnu lesser general public license.*version 2`), "LGPL-2.0"},
	{regexp.MustCompile(`\blgpl-3`), "LGPL-3.0"},
	{regexp.MustCompile(`\blgpl-2`), "LGPL-2.0"},
	{regexp.MustCompile(`\bmit license`), "MIT"},
	{regexp.MustCompile(`permission is hereby granted, free of charge`), "MIT"},
	{regexp.MustCompile(`bsd[- ]3[- ]clause`), "BSD-3-Clause"},
	{regexp.MustCompile(`3[- ]clause bsd`), "BSD-3-Clause"},
	{regexp.MustCompile(`neither the name of.*nor the names of its contributors`), "BSD-3-Clause"},
	{regexp.MustCompile(`redistribution and use in source and binary forms.*neither the name`), "BSD-3-Clause"},
	{regexp.MustCompile(`bsd[- ]2[- ]clause`), "BSD-2-Clause"},
	{regexp.MustCompile(`2[- ]clause bsd`), "BSD-2-Clause"},
	{regexp.MustCompile(`redistribution and use in source and binary forms`), "BSD"},
	{regexp.MustCompile(`mozilla public license.*version 2\.0`), "MPL-2.0"},
	{regexp.MustCompile(`\bmpl-2\.0`), "MPL-2.0"},
	{regexp.MustCompile(`\bisc license`), "ISC"},
}

// Detect returns the SPDX-style identifier of the first standard license
// recognized in content, or "" when none is found.
func Detect(content string) string {
	if content == "" {
		return ""
	}
	lower := strings.ToLower(content)
	for _, p := range patterns {
		if p.re.MatchString(lower) {
			return p.id
		}
	}
	return ""
}

// FromCopyright extracts a license string from a Debian copyright file or
// a license file. Explicit "License:" fields come first, then a license
// detected in the full text, then sentences naming a proprietary license.
func (n *Normalizer) FromCopyright(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	var found []string
	add := func(lic string) {
		lic = strings.TrimSpace(lic)
		if lic == "" {
			return
		}
		for _, f := range found {
			if f == lic {
				return
			}
		}
		found = append(found, lic)
	}

	for _, line := range strings.Split(content, "\n") {
		value, ok := strings.CutPrefix(strings.TrimSpace(line), "License:")
		if !ok {
			continue
		}
		for _, tok := range split(collapse(value), allSeparators) {
			if id := Detect(tok); id != "" {
				add(id)
			} else {
				add(tok)
			}
		}
	}

	add(Detect(content))

	if n.keywords.MatchString(content) {
		for _, sentence := range sentenceEnd.Split(content, -1) {
			if n.keywords.MatchString(sentence) {
				add(condense(sentence))
			}
		}
	}

	if len(found) == 0 {
		return condense(content)
	}
	return strings.Join(found, Joiner)
}
