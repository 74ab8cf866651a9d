package features

import (
	"fmt"
	"strings"

	"asrprep/internal/manifest"
)

// Replacement rewrites a leading Old path prefix to New.
type Replacement struct {
	Old string
	New string
}

// ParseReplacement parses "old=new".
func ParseReplacement(s string) (Replacement, error) {
	old, repl, ok := strings.Cut(s, "=")
	if !ok || old == "" {
		return Replacement{}, fmt.Errorf("invalid replacement %q, want old=new", s)
	}
	return Replacement{Old: old, New: repl}, nil
}

type RelocateOptions struct {
	Replace     []Replacement
	StripSpaces bool
}

// Relocate rewrites a cuts file: feature storage paths and recording sources
// get their prefixes replaced, and supervision text optionally loses its
// spaces. Returns the number of cuts written.
func Relocate(in, out string, opts RelocateOptions) (int, error) {
	cuts, err := manifest.ReadJSONL[Cut](in)
	if err != nil {
		return 0, err
	}
	for i := range cuts {
		RelocateCut(&cuts[i], opts)
	}
	if err := manifest.WriteJSONL(out, cuts); err != nil {
		return 0, err
	}
	return len(cuts), nil
}

func RelocateCut(c *Cut, opts RelocateOptions) {
	if c.Features != nil {
		c.Features.StoragePath = replacePrefix(c.Features.StoragePath, opts.Replace)
	}
	sources := make([]manifest.AudioSource, len(c.Recording.Sources))
	for i, src := range c.Recording.Sources {
		src.Source = replacePrefix(src.Source, opts.Replace)
		sources[i] = src
	}
	c.Recording.Sources = sources

	if opts.StripSpaces {
		for i := range c.Supervisions {
			c.Supervisions[i].Text = strings.ReplaceAll(c.Supervisions[i].Text, " ", "")
		}
	}
}

// first matching replacement wins
func replacePrefix(path string, repl []Replacement) string {
	for _, r := range repl {
		if strings.HasPrefix(path, r.Old) {
			return r.New + strings.TrimPrefix(path, r.Old)
		}
	}
	return path
}
