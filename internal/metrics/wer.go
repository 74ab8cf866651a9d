package metrics

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	punctRe = regexp.MustCompile(`[.,!?;:"“”'‘’\-–—()[\]{}«»…/\\@#$%^&*+=<>|~` + "`" + `、。，．！？「」『』（）・]`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// normalizeText - NFKC, нижний регистр, без пунктуации и лишних пробелов
func normalizeText(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)
	text = punctRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ErrorCount - edit distance against a reference of Ref units.
type ErrorCount struct {
	Edits int
	Ref   int
}

// Rate returns Edits/Ref. An empty reference scores 0 against an empty
// hypothesis and 1 otherwise.
func (c ErrorCount) Rate() float64 {
	if c.Ref == 0 {
		if c.Edits == 0 {
			return 0
		}
		return 1
	}
	return float64(c.Edits) / float64(c.Ref)
}

func (c ErrorCount) Add(o ErrorCount) ErrorCount {
	return ErrorCount{Edits: c.Edits + o.Edits, Ref: c.Ref + o.Ref}
}

func WordErrors(reference, hypothesis string) ErrorCount {
	ref := strings.Fields(normalizeText(reference))
	hyp := strings.Fields(normalizeText(hypothesis))
	return ErrorCount{Edits: levenshtein(ref, hyp), Ref: len(ref)}
}

// CharErrors ignores whitespace. Transcripts without word boundaries
// (Japanese) are usually scored this way.
func CharErrors(reference, hypothesis string) ErrorCount {
	ref := []rune(strings.ReplaceAll(normalizeText(reference), " ", ""))
	hyp := []rune(strings.ReplaceAll(normalizeText(hypothesis), " ", ""))
	return ErrorCount{Edits: levenshtein(ref, hyp), Ref: len(ref)}
}

// WER - Word Error Rate
func WER(reference, hypothesis string) float64 {
	return WordErrors(reference, hypothesis).Rate()
}

// CER - Character Error Rate
func CER(reference, hypothesis string) float64 {
	return CharErrors(reference, hypothesis).Rate()
}

func levenshtein[T comparable](a, b []T) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
