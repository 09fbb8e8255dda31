package agent

import (
	"strings"
)

// DirectoryGuesser picks a directory for a bare filename. It returns a
// prefix ending in "/".
type DirectoryGuesser interface {
	Guess(filename string) string
}

// HintRule maps a lowercase substring of a filename to a directory.
type HintRule struct {
	Hint string
	Dir  string
}

// HintGuesser checks Rules in order and falls back to Fallback.
type HintGuesser struct {
	Rules    []HintRule
	Fallback string
}

// Guess implements DirectoryGuesser.
func (g HintGuesser) Guess(filename string) string {
	lower := strings.ToLower(filename)
	for _, r := range g.Rules {
		if strings.Contains(lower, r.Hint) {
			return r.Dir
		}
	}
	return g.Fallback
}

// DefaultGuesser is the built-in hint table with the src/ fallback.
var DefaultGuesser DirectoryGuesser = HintGuesser{
	Rules: []HintRule{
		{Hint: "model", Dir: "server/models/"},
		{Hint: "route", Dir: "server/routes/"},
		{Hint: "controller", Dir: "server/controllers/"},
		{Hint: "component", Dir: "client/src/components/"},
	},
	Fallback: "src/",
}

// rootFiles stay at the project root.
var rootFiles = map[string]bool{
	"README.md":    true,
	"package.json": true,
	".gitignore":   true,
}

const unsafeChars = `<>:"|?*`

// segmentCutset is trimmed from both ends of every path segment.
const segmentCutset = " \t\r\n'`"

// NormalizePath cleans a model-supplied path with DefaultGuesser.
func NormalizePath(p string) string {
	return NormalizePathWith(p, DefaultGuesser)
}

// NormalizePathWith cleans p: surrounding quotes and backticks go,
// backslashes become slashes, unsafe characters are removed, and ".", ".."
// and "~" segments are dropped. A bare filename outside the root whitelist
// gets a guessed directory. The result never starts with "/" and never
// contains "..". Normalizing twice gives the same result.
func NormalizePathWith(p string, g DirectoryGuesser) string {
	if g == nil {
		g = DefaultGuesser
	}
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeChars, r) {
			return -1
		}
		return r
	}, p)

	segs := strings.Split(p, "/")
	kept := segs[:0]
	for _, s := range segs {
		s = strings.Trim(s, segmentCutset)
		switch s {
		case "", ".", "..", "~":
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return ""
	}
	if len(kept) == 1 && !rootFiles[kept[0]] {
		return g.Guess(kept[0]) + kept[0]
	}
	return strings.Join(kept, "/")
}
